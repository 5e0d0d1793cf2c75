// Package redisdlq provides a Redis Streams dead-letter sink for xevent.
//
// Every failure of an asynchronous listener is appended to a stream as one
// entry (XADD). Operators read the entries back with Read and remove handled
// ones with Ack (XDEL).
//
// Minimal config keys for ConfigFromMap:
// - addr: "host:port" (default "127.0.0.1:6379")
// - stream: stream name (default "xevent:dead-letter")
// - max_len_approx: approximate stream cap, 0 for unbounded
// - write_timeout: per-entry timeout of the sink (default 2s)
//
// Example:
//
//	store, err := redisdlq.New(redisdlq.Defaults())
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	bus := xevent.Use(xevent.Defaults(), redisdlq.Use(store))
package redisdlq
