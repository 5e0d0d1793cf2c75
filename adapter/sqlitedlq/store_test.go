package sqlitedlq

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xevent"
)

type Reading struct {
	Sensor string
	Value  int
}

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_WriteListGetDelete(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	at := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	id, err := s.Write(ctx, xevent.FailureRecord{
		ListenerID: "l-1",
		Listener:   "thermostat",
		EventID:    "e-1",
		Payload:    []byte(`{"Sensor":"s1","Value":3}`),
		Error:      "too hot",
		Panic:      true,
		Metadata:   map[string]string{"room": "kitchen"},
		FailedAt:   at,
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	entries, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	rec := entries[0].Record
	assert.Equal(t, "thermostat", rec.Listener)
	assert.Equal(t, "too hot", rec.Error)
	assert.True(t, rec.Panic)
	assert.Equal(t, "kitchen", rec.Metadata["room"])
	assert.True(t, rec.FailedAt.Equal(at))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entries[0], got)

	require.NoError(t, s.Delete(ctx, id))
	assert.ErrorIs(t, s.Delete(ctx, id), ErrNotFound)

	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_ListLimit(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Write(ctx, xevent.FailureRecord{ListenerID: "l", Error: "e", FailedAt: time.Now()})
		require.NoError(t, err)
	}
	entries, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Less(t, entries[0].ID, entries[1].ID)
}

func TestStore_SinkFromBus(t *testing.T) {
	s := openMemory(t)

	bus, closeFn, err := xevent.New(func(b *xevent.BusBuilder) {
		b.WithErrorSink(s.Sink())
	})
	require.NoError(t, err)
	defer closeFn()

	_, err = bus.Register(xevent.On(func(ctx context.Context, r Reading) error {
		_ = 10 / (r.Value - r.Value)
		return nil
	}, xevent.AsAsync(), xevent.Named("divider")))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bus.Emit(ctx, "sensor", Reading{Sensor: "s1", Value: 4}))

	dctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, bus.Drain(dctx))

	entries, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	rec := entries[0].Record
	assert.Equal(t, "divider", rec.Listener)
	assert.True(t, rec.Panic)
	assert.Contains(t, rec.Error, "divide by zero")

	payload, err := xevent.DecodePayload[Reading](nil, rec)
	require.NoError(t, err)
	assert.Equal(t, Reading{Sensor: "s1", Value: 4}, payload)
}

func TestStore_FileConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dlq.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Write(ctx, xevent.FailureRecord{ListenerID: "l", Error: "e", FailedAt: time.Now()})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestStore_Closed(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Write(context.Background(), xevent.FailureRecord{})
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = s.List(context.Background(), 0)
	assert.ErrorIs(t, err, ErrStoreClosed)
}
