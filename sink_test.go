package xevent

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xlog"
)

type unencodable struct {
	C chan int
}

func TestNewFailureRecord(t *testing.T) {
	at := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	e := New("billing", Order{ID: "o-1", Amount: 9}, WithMeta("tenant", "acme"), WithCorrelationID("corr"))
	err := &ListenerError{ListenerID: "l-1", Listener: "charge", Mode: Async, Event: e,
		Err: &PanicError{Value: "boom"}, Panic: "boom", Stack: []byte("stack")}

	rec := NewFailureRecord(nil, err, "l-1", e, at)
	assert.Equal(t, "l-1", rec.ListenerID)
	assert.Equal(t, "charge", rec.Listener)
	assert.Equal(t, e.ID(), rec.EventID)
	assert.Equal(t, "corr", rec.CorrelationID)
	assert.Equal(t, "billing", rec.Source)
	assert.Equal(t, "json", rec.Codec)
	assert.True(t, rec.Panic)
	assert.Equal(t, "stack", rec.Stack)
	assert.Equal(t, "acme", rec.Metadata["tenant"])
	assert.Equal(t, at, rec.FailedAt)
	assert.Contains(t, rec.Error, "panicked")

	o, derr := DecodePayload[Order](JSONCodec{}, rec)
	require.NoError(t, derr)
	assert.Equal(t, Order{ID: "o-1", Amount: 9}, o)
}

func TestNewFailureRecord_PayloadError(t *testing.T) {
	e := New("src", unencodable{C: make(chan int)})
	rec := NewFailureRecord(JSONCodec{}, errors.New("x"), "l", e, time.Now())
	assert.Empty(t, rec.Payload)
	assert.NotEmpty(t, rec.PayloadError)

	rec = NewFailureRecord(nil, errors.New("x"), "l", nil, time.Now())
	assert.Empty(t, rec.EventID)
	assert.Equal(t, "x", rec.Error)
}

func TestMultiSink(t *testing.T) {
	var a, b int
	s := MultiSink(
		func(error, ListenerID, *Event) { a++ },
		nil,
		func(error, ListenerID, *Event) { b++ },
	)
	s(errors.New("x"), "l", nil)
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)

	assert.NotPanics(t, func() { LogSink(xlog.Default())(errors.New("x"), "l", nil) })
	assert.NotPanics(t, func() { LogSink(nil)(errors.New("x"), "l", nil) })
}

func TestBus_PanickingSinkIsContained(t *testing.T) {
	bus := newTestBus(t, func(b *BusBuilder) {
		b.WithErrorSink(func(error, ListenerID, *Event) { panic("sink") })
	})
	bus.MustRegister(On(func(ctx context.Context, o Order) error { return errors.New("x") }, AsAsync()))

	require.NoError(t, bus.Emit(context.Background(), "test", Order{}))
	drain(t, bus)
	assert.Equal(t, uint64(1), bus.GetMetrics().Failed)
}

// hexJSON stores JSON as hex text.
type hexJSON struct{}

func (hexJSON) Name() string { return "hex-json" }

func (hexJSON) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []byte(hex.EncodeToString(b)), nil
}

func (hexJSON) Unmarshal(data []byte, v any) error {
	b, err := hex.DecodeString(string(data))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func TestCodecRegistry(t *testing.T) {
	c, err := NewCodec("json")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	c, err = NewCodec("")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	_, err = NewCodec("xml")
	assert.ErrorIs(t, err, ErrUnknownCodec)

	assert.ErrorIs(t, RegisterCodec("", func() Codec { return JSONCodec{} }), ErrInvalidConfig)
	assert.Error(t, RegisterCodec("x", nil))
}

func TestDecodePayload_ResolvesRecordCodec(t *testing.T) {
	require.NoError(t, RegisterCodec("hex-json", func() Codec { return hexJSON{} }))

	e := New("billing", Order{ID: "o-7", Amount: 70})
	rec := NewFailureRecord(hexJSON{}, errors.New("boom"), "l", e, time.Now())
	assert.Equal(t, "hex-json", rec.Codec)
	assert.NotContains(t, string(rec.Payload), "o-7")

	o, err := DecodePayload[Order](nil, rec)
	require.NoError(t, err)
	assert.Equal(t, Order{ID: "o-7", Amount: 70}, o)

	_, err = DecodePayload[Order](JSONCodec{}, rec)
	assert.Error(t, err)

	rec.Codec = "xml"
	_, err = DecodePayload[Order](nil, rec)
	assert.ErrorIs(t, err, ErrUnknownCodec)
}
