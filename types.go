package xevent

import (
	"time"
)

// NoticeType enumerates dispatch lifecycle notices for the Observer pattern.
type NoticeType string

const (
	PublishStart    NoticeType = "publish_start"
	PublishDone     NoticeType = "publish_done"
	ListenerStart   NoticeType = "listener_start"
	ListenerDone    NoticeType = "listener_done"
	ListenerFailed  NoticeType = "listener_failed"
	ConditionFailed NoticeType = "condition_failed"
	ChainExpanded   NoticeType = "chain_expanded"
	ChainAborted    NoticeType = "chain_aborted"
	AsyncRejected   NoticeType = "async_rejected"
)

// Notice carries telemetry for observers.
type Notice struct {
	Type          NoticeType
	EventID       string
	EventType     string
	CorrelationID string
	ListenerID    ListenerID
	Listener      string
	Mode          Mode
	Depth         int
	Duration      time.Duration
	Err           error
}

// PoolStats returns telemetry about a worker pool.
type PoolStats struct {
	Rejected  uint64 // Tasks refused because the queue was full
	Processed uint64 // Tasks run to completion (including panicking ones)
	Panics    uint64
	Queued    int // Current queue depth
	Running   int
	Workers   int
	QueueSize int
}

// Metrics defines observable telemetry for the bus.
type Metrics struct {
	Published       uint64
	Delivered       uint64 // Listener invocations
	Failed          uint64 // Listener failures, sync and async
	ConditionErrors uint64
	ChainsExpanded  uint64
	ChainsAborted   uint64
	AsyncRejected   uint64
	AsyncPending    int64
	NoticesDropped  uint64
	// AvgProcessingTimeMs is an exponential moving average of listener run time.
	AvgProcessingTimeMs float64
}

// HealthStatus indicates bus health for Kubernetes probes.
type HealthStatus struct {
	Status    string // "healthy", "degraded", "unhealthy"
	Metrics   Metrics
	Timestamp time.Time
	Message   string
}
