package redisdlq

// Field constants (avoid typos/allocs)
const (
	fieldListenerID    = "listener_id"
	fieldListener      = "listener"
	fieldEventID       = "event_id"
	fieldEventType     = "event_type"
	fieldCorrelationID = "correlation_id"
	fieldCausationID   = "causation_id"
	fieldSource        = "source"
	fieldCodec         = "codec"
	fieldPayload       = "payload" // raw bytes, no base64
	fieldPayloadError  = "payload_error"
	fieldError         = "error"
	fieldPanic         = "panic"
	fieldStack         = "stack"
	fieldFailedAt      = "failedAt" // int64 ns
	fieldMetaPrefix    = "meta:"
)
