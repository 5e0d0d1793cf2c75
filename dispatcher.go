package xevent

import (
	"context"
	"errors"
	"reflect"
	"runtime/debug"
)

// dispatch runs the listeners matched for e in order. Sync listeners run inline;
// async ones are handed to the executor. A follow-up returned by a listener is
// dispatched before the next listener runs. Only chain overflow is returned.
func (b *Bus) dispatch(ctx context.Context, e *Event, dc *DispatchContext) error {
	for _, en := range b.matcher.resolve(e) {
		if en.reg.Mode == Async {
			b.submit(ctx, en, e, dc)
			continue
		}
		if err := b.runSync(ctx, en, e, dc); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) runSync(ctx context.Context, en *entry, e *Event, dc *DispatchContext) error {
	res, err := b.invoke(ctx, en, e, dc)
	if err == nil {
		var next []*Event
		next, err = b.followUps(en, e, res)
		if err == nil {
			return b.chain(ctx, next, dc)
		}
		err = b.listenerError(en, e, err)
	}
	if errors.Is(err, ErrChainTooDeep) {
		return err
	}

	b.metrics.failed.Add(1)
	b.logger.Warn().
		Err(err).
		Str("listener", en.reg.Name).
		Str("listener_id", string(en.reg.ID)).
		Str("event_id", e.id).
		Str("event_type", e.token.String()).
		Msg("xevent: listener failed")
	return nil
}

// submit hands an async listener to the executor. Every failure of the task,
// including rejection by the executor, reaches the sink exactly once.
func (b *Bus) submit(ctx context.Context, en *entry, e *Event, dc *DispatchContext) {
	actx := context.WithoutCancel(ctx)
	dc = dc.fork()
	b.metrics.asyncPending.Add(1)

	task := func() {
		defer b.asyncDone()

		tctx := actx
		if b.asyncTimeout > 0 {
			var cancel context.CancelFunc
			tctx, cancel = context.WithTimeout(actx, b.asyncTimeout)
			defer cancel()
		}

		res, err := b.invoke(tctx, en, e, dc)
		if err == nil {
			var next []*Event
			next, err = b.followUps(en, e, res)
			if err == nil {
				err = b.chain(tctx, next, dc)
			} else {
				err = b.listenerError(en, e, err)
			}
		}
		if err == nil {
			err = dc.state.err()
		}
		if err != nil {
			b.fail(err, en, e)
		}
	}

	if err := b.executor.Submit(task); err != nil {
		b.asyncDone()
		b.metrics.asyncRejected.Add(1)
		lerr := &ListenerError{ListenerID: en.reg.ID, Listener: en.reg.Name, Mode: Async, Event: e, Err: err}
		b.notify(b.listenerNotice(AsyncRejected, en, e, dc, lerr))
		b.fail(lerr, en, e)
	}
}

// fail reports an async failure to the sink. A panicking sink is logged.
func (b *Bus) fail(err error, en *entry, e *Event) {
	b.metrics.failed.Add(1)
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Err(err).Str("listener", en.reg.Name).Msg("xevent: error sink panicked")
		}
	}()
	b.sink(err, en.reg.ID, e)
}

// invoke calls one listener. The returned error is a *ListenerError, or a chain
// overflow raised by a nested publish, which is passed through unwrapped.
func (b *Bus) invoke(ctx context.Context, en *entry, e *Event, dc *DispatchContext) (res any, err error) {
	lctx := withListener(withDispatchContext(ctx, dc), en.reg)

	b.metrics.delivered.Add(1)
	b.notify(b.listenerNotice(ListenerStart, en, e, dc, nil))
	start := b.clock.Now()

	func() {
		defer func() {
			if r := recover(); r != nil {
				res, err = nil, &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		res, err = en.handler(lctx, e)
	}()

	dur := b.clock.Since(start)
	b.recordProcessingTime(dur.Nanoseconds())

	if err != nil && !errors.Is(err, ErrChainTooDeep) {
		err = b.listenerError(en, e, err)
	}
	n := b.listenerNotice(ListenerDone, en, e, dc, err)
	if err != nil {
		n.Type = ListenerFailed
	}
	n.Duration = dur
	b.notify(n)
	return res, err
}

// chain dispatches follow-up events depth-first under dc.
func (b *Bus) chain(ctx context.Context, next []*Event, dc *DispatchContext) error {
	for _, fe := range next {
		child, err := dc.child(fe)
		if err != nil {
			b.chainAborted(dc, fe, err)
			return err
		}
		b.metrics.chainsExpanded.Add(1)
		b.notify(Notice{
			Type:          ChainExpanded,
			EventID:       fe.id,
			EventType:     fe.token.String(),
			CorrelationID: fe.correlationID,
			Depth:         child.depth,
		})
		if err := b.dispatch(ctx, fe, child); err != nil {
			return err
		}
	}
	return nil
}

// chainAborted records an overflow on the chain of dc and reports it.
func (b *Bus) chainAborted(dc *DispatchContext, e *Event, err error) {
	dc.state.abort(err)
	b.metrics.chainsAborted.Add(1)
	b.notify(Notice{
		Type:          ChainAborted,
		EventID:       e.id,
		EventType:     e.token.String(),
		CorrelationID: e.correlationID,
		Err:           err,
	})
}

// followUps converts a listener result into events linked to parent.
// An *Event or []*Event is used as is; any other value becomes the payload of a
// new event whose source is the listener name.
func (b *Bus) followUps(en *entry, parent *Event, res any) ([]*Event, error) {
	switch v := res.(type) {
	case nil:
		return nil, nil
	case *Event:
		if v == nil {
			return nil, nil
		}
		if err := checkEvent(v); err != nil {
			return nil, err
		}
		return []*Event{link(parent, v)}, nil
	case []*Event:
		out := make([]*Event, 0, len(v))
		for _, fe := range v {
			if fe == nil {
				continue
			}
			if err := checkEvent(fe); err != nil {
				return nil, err
			}
			out = append(out, link(parent, fe))
		}
		return out, nil
	default:
		if !isNonNil(reflect.ValueOf(v)) {
			return nil, nil
		}
		return []*Event{NewAny(en.reg.Name, v,
			WithEventClock(b.clock),
			WithCorrelationID(parent.correlationID),
			WithCausationID(parent.id),
		)}, nil
	}
}

// link attaches parent lineage to an event built without it.
func link(parent, e *Event) *Event {
	if parent == nil || e.causationID != "" {
		return e
	}
	return e.derive(parent)
}

func (b *Bus) listenerError(en *entry, e *Event, err error) error {
	var le *ListenerError
	if errors.As(err, &le) && le.ListenerID == en.reg.ID && le.Event == e {
		return err
	}
	le = &ListenerError{ListenerID: en.reg.ID, Listener: en.reg.Name, Mode: en.reg.Mode, Event: e, Err: err}
	var pe *PanicError
	if errors.As(err, &pe) {
		le.Panic, le.Stack = pe.Value, pe.Stack
	}
	return le
}

func (b *Bus) listenerNotice(t NoticeType, en *entry, e *Event, dc *DispatchContext, err error) Notice {
	return Notice{
		Type:          t,
		EventID:       e.id,
		EventType:     e.token.String(),
		CorrelationID: e.correlationID,
		ListenerID:    en.reg.ID,
		Listener:      en.reg.Name,
		Mode:          en.reg.Mode,
		Depth:         dc.depth,
		Err:           err,
	}
}

func (b *Bus) onConditionError(err *ConditionError, e *Event) {
	b.metrics.conditionErrors.Add(1)
	b.notify(Notice{
		Type:          ConditionFailed,
		EventID:       e.id,
		EventType:     e.token.String(),
		CorrelationID: e.correlationID,
		ListenerID:    err.ListenerID,
		Listener:      err.Listener,
		Err:           err,
	})
}
