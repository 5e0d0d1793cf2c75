package redisdlq

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xevent"
)

// ErrClosed is returned by a store after Close.
var ErrClosed = errors.New("redisdlq: store is closed")

// Store persists async listener failures to a Redis stream.
type Store struct {
	cfg        Config
	client     *redis.Client
	ownsClient bool
	codec      xevent.Codec
	clock      xclock.Clock
	logger     *xlog.Logger

	closeOnce sync.Once
	closed    atomic.Bool

	written     atomic.Uint64
	writeErrors atomic.Uint64
}

// Entry is one dead-letter record with its stream ID.
type Entry struct {
	ID     string
	Record xevent.FailureRecord
}

// New connects to Redis and returns a store owning the client.
func New(cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ropts := &redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
	}
	if cfg.TLS {
		ropts.TLSConfig = &tls.Config{
			MinVersion:    tls.VersionTLS12,
			ServerName:    cfg.TLSServerName,
			Renegotiation: tls.RenegotiateNever,
		}
	}

	client := redis.NewClient(ropts)
	if err := ping(client); err != nil {
		_ = client.Close()
		return nil, err
	}
	s := newStore(client, cfg, opts)
	s.ownsClient = true
	return s, nil
}

// NewWithClient uses an existing client. Close leaves the client open.
func NewWithClient(client *redis.Client, cfg Config, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("redisdlq: nil client")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newStore(client, cfg, opts), nil
}

func newStore(client *redis.Client, cfg Config, opts []Option) *Store {
	// Validate already resolved the name.
	codec, err := xevent.NewCodec(cfg.Codec)
	if err != nil {
		codec = xevent.JSONCodec{}
	}
	s := &Store{
		cfg:    cfg,
		client: client,
		codec:  codec,
		clock:  xclock.Default(),
		logger: xlog.Default(),
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	return s
}

// Sink returns an xevent.ErrorSink writing every failure to the stream.
// Write errors are logged, never returned to the bus.
func (s *Store) Sink() xevent.ErrorSink {
	return func(err error, id xevent.ListenerID, e *xevent.Event) {
		rec := xevent.NewFailureRecord(s.codec, err, id, e, s.clock.Now())

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		defer cancel()

		if _, werr := s.Write(ctx, rec); werr != nil {
			s.logger.Warn().
				Err(werr).
				Str("stream", s.cfg.Stream).
				Str("listener_id", rec.ListenerID).
				Str("event_id", rec.EventID).
				Msg("redisdlq: write failed")
		}
	}
}

// Write appends one record and returns its stream ID.
func (s *Store) Write(ctx context.Context, rec xevent.FailureRecord) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}

	// Pre-size map: fixed fields + metadata
	vals := make(map[string]any, 14+len(rec.Metadata))
	vals[fieldListenerID] = rec.ListenerID
	vals[fieldListener] = rec.Listener
	vals[fieldEventID] = rec.EventID
	vals[fieldEventType] = rec.EventType
	vals[fieldCorrelationID] = rec.CorrelationID
	vals[fieldCausationID] = rec.CausationID
	vals[fieldSource] = rec.Source
	vals[fieldCodec] = rec.Codec
	vals[fieldPayload] = rec.Payload
	vals[fieldPayloadError] = rec.PayloadError
	vals[fieldError] = rec.Error
	vals[fieldPanic] = strconv.FormatBool(rec.Panic)
	vals[fieldStack] = rec.Stack
	vals[fieldFailedAt] = rec.FailedAt.UnixNano()
	for k, v := range rec.Metadata {
		vals[fieldMetaPrefix+k] = v
	}

	args := &redis.XAddArgs{
		Stream: s.cfg.Stream,
		ID:     "*",
		Values: vals,
	}
	if s.cfg.MaxLenApprox > 0 {
		args.MaxLen = s.cfg.MaxLenApprox
		args.Approx = true
	}

	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		s.writeErrors.Add(1)
		return "", err
	}
	s.written.Add(1)
	return id, nil
}

// Read returns up to count oldest entries. count <= 0 reads everything.
func (s *Store) Read(ctx context.Context, count int64) ([]Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var (
		msgs []redis.XMessage
		err  error
	)
	if count > 0 {
		msgs, err = s.client.XRangeN(ctx, s.cfg.Stream, "-", "+", count).Result()
	} else {
		msgs, err = s.client.XRange(ctx, s.cfg.Stream, "-", "+").Result()
	}
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Entry{ID: m.ID, Record: decode(m.Values)})
	}
	return out, nil
}

// Ack removes handled entries.
func (s *Store) Ack(ctx context.Context, ids ...string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if len(ids) == 0 {
		return nil
	}
	return s.client.XDel(ctx, s.cfg.Stream, ids...).Err()
}

// Len returns the number of entries in the stream.
func (s *Store) Len(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	return s.client.XLen(ctx, s.cfg.Stream).Result()
}

// Stats returns write counters.
func (s *Store) Stats() (written, failed uint64) {
	return s.written.Load(), s.writeErrors.Load()
}

// Close releases the client if the store created it. Idempotent.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.ownsClient {
			err = s.client.Close()
		}
	})
	return err
}

func decode(vals map[string]any) xevent.FailureRecord {
	rec := xevent.FailureRecord{
		ListenerID:    str(vals[fieldListenerID]),
		Listener:      str(vals[fieldListener]),
		EventID:       str(vals[fieldEventID]),
		EventType:     str(vals[fieldEventType]),
		CorrelationID: str(vals[fieldCorrelationID]),
		CausationID:   str(vals[fieldCausationID]),
		Source:        str(vals[fieldSource]),
		Codec:         str(vals[fieldCodec]),
		PayloadError:  str(vals[fieldPayloadError]),
		Error:         str(vals[fieldError]),
		Stack:         str(vals[fieldStack]),
	}
	if p := str(vals[fieldPayload]); p != "" {
		rec.Payload = []byte(p)
	}
	rec.Panic, _ = strconv.ParseBool(str(vals[fieldPanic]))
	if ns, err := strconv.ParseInt(str(vals[fieldFailedAt]), 10, 64); err == nil {
		rec.FailedAt = time.Unix(0, ns).UTC()
	}
	for k, v := range vals {
		if strings.HasPrefix(k, fieldMetaPrefix) {
			if rec.Metadata == nil {
				rec.Metadata = make(map[string]string)
			}
			rec.Metadata[strings.TrimPrefix(k, fieldMetaPrefix)] = str(v)
		}
	}
	return rec
}

func str(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}

func ping(c *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := c.Ping(ctx).Result()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("redis ping timeout: %w", err)
		}
		return err
	}

	if strings.ToUpper(res) != "PONG" {
		return fmt.Errorf("unexpected redis ping result: %s", res)
	}
	return nil
}
