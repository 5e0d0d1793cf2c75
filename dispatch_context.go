package xevent

import "sync"

// DefaultMaxChainDepth bounds follow-up chains when no limit is configured.
const DefaultMaxChainDepth = 10

// DispatchContext tracks one logical publish: the root event and every
// follow-up event produced from it. Each link is immutable; a follow-up gets a
// child link one level deeper. The root event is at depth 1.
type DispatchContext struct {
	root   *Event
	parent *DispatchContext
	event  *Event
	depth  int
	limit  int
	state  *chainState
}

// chainState is shared by every link dispatched on the same goroutine path. It
// remembers a depth overflow hit by a nested publish so the outermost Publish
// can report it even when the listener dropped the error.
type chainState struct {
	mu      sync.Mutex
	aborted error
}

func (s *chainState) abort(err error) {
	s.mu.Lock()
	if s.aborted == nil {
		s.aborted = err
	}
	s.mu.Unlock()
}

func (s *chainState) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

func newDispatchContext(e *Event, limit int) *DispatchContext {
	if limit < 1 {
		limit = DefaultMaxChainDepth
	}
	return &DispatchContext{root: e, event: e, depth: 1, limit: limit, state: &chainState{}}
}

// child links a follow-up event. It fails with *ChainTooDeepError when the new
// depth would exceed the limit.
func (dc *DispatchContext) child(e *Event) (*DispatchContext, error) {
	depth := dc.depth + 1
	if depth > dc.limit {
		return nil, &ChainTooDeepError{
			Limit:     dc.limit,
			Depth:     depth,
			EventType: e.Type().String(),
			RootID:    dc.root.ID(),
		}
	}
	return &DispatchContext{root: dc.root, parent: dc, event: e, depth: depth, limit: dc.limit, state: dc.state}, nil
}

// fork returns a copy of dc with its own overflow record. Async tasks use it so
// their overflows stay out of the publisher's result.
func (dc *DispatchContext) fork() *DispatchContext {
	cp := *dc
	cp.state = &chainState{}
	return &cp
}

// Root is the event originally passed to Publish.
func (dc *DispatchContext) Root() *Event { return dc.root }

// Event is the event being dispatched at this link.
func (dc *DispatchContext) Event() *Event { return dc.event }

// Parent is the previous link, nil at the root.
func (dc *DispatchContext) Parent() *DispatchContext { return dc.parent }

// Depth is 1 for the root event, 2 for its follow-ups and so on.
func (dc *DispatchContext) Depth() int { return dc.depth }

// Limit is the maximum depth allowed for this chain.
func (dc *DispatchContext) Limit() int { return dc.limit }

// Trail returns the events from the root down to this link.
func (dc *DispatchContext) Trail() []*Event {
	out := make([]*Event, dc.depth)
	for c := dc; c != nil; c = c.parent {
		out[c.depth-1] = c.event
	}
	return out
}
