package xevent

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Registration is the read-only view of a registered listener.
type Registration struct {
	ID          ListenerID
	Name        string
	Accepts     []TypeToken
	Order       int
	Mode        Mode
	Conditional bool
	// Seq is the registration sequence used to break order ties.
	Seq uint64
}

// accepts reports whether any declared token receives tok.
func (r Registration) accepts(tok TypeToken) bool {
	for _, a := range r.Accepts {
		if a.Accepts(tok) {
			return true
		}
	}
	return false
}

func (r Registration) clone() Registration {
	r.Accepts = slices.Clone(r.Accepts)
	return r
}

type entry struct {
	reg     Registration
	cond    Condition
	handler HandlerFunc
}

// snapshot is an immutable view of the registry. Readers load it without
// locking; writers replace it wholesale.
type snapshot struct {
	entries []*entry // sorted by (Order, Seq)
	byID    map[ListenerID]*entry
	byType  sync.Map // TypeToken -> []*entry
}

func (s *snapshot) candidates(tok TypeToken) []*entry {
	if v, ok := s.byType.Load(tok); ok {
		return v.([]*entry)
	}
	var out []*entry
	for _, en := range s.entries {
		if en.reg.accepts(tok) {
			out = append(out, en)
		}
	}
	v, _ := s.byType.LoadOrStore(tok, out)
	return v.([]*entry)
}

// Registry stores listener registrations ordered by (Order, Seq).
// Register and Unregister may run concurrently with lookups; a lookup observes
// either the state before or after a write, never a partial update.
type Registry struct {
	mu   sync.Mutex
	seq  uint64
	snap atomic.Pointer[snapshot]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.snap.Store(&snapshot{byID: map[ListenerID]*entry{}})
	return r
}

// Register validates l and stores it. The handler is stored as given.
func (r *Registry) Register(l Listener) (ListenerID, error) {
	if err := l.validate(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	en := &entry{
		reg: Registration{
			ID:          ListenerID(uuid.NewString()),
			Name:        l.Name,
			Accepts:     slices.Clone(l.Accepts),
			Order:       l.Order,
			Mode:        l.Mode,
			Conditional: l.Condition != nil,
			Seq:         r.seq,
		},
		cond:    l.Condition,
		handler: l.Handler,
	}

	cur := r.snap.Load()
	// First entry with a strictly greater order; the new entry has the highest
	// sequence so it goes after every entry of equal order.
	at := slices.IndexFunc(cur.entries, func(x *entry) bool { return x.reg.Order > en.reg.Order })
	if at < 0 {
		at = len(cur.entries)
	}
	entries := make([]*entry, 0, len(cur.entries)+1)
	entries = append(entries, cur.entries[:at]...)
	entries = append(entries, en)
	entries = append(entries, cur.entries[at:]...)

	r.publish(entries)
	return en.reg.ID, nil
}

// Unregister removes a listener. Unknown IDs fail with ErrListenerNotFound.
func (r *Registry) Unregister(id ListenerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	if _, ok := cur.byID[id]; !ok {
		return ErrListenerNotFound
	}
	entries := make([]*entry, 0, len(cur.entries)-1)
	for _, en := range cur.entries {
		if en.reg.ID != id {
			entries = append(entries, en)
		}
	}
	r.publish(entries)
	return nil
}

// publish installs a new snapshot. Caller holds r.mu.
func (r *Registry) publish(entries []*entry) {
	byID := make(map[ListenerID]*entry, len(entries))
	for _, en := range entries {
		byID[en.reg.ID] = en
	}
	r.snap.Store(&snapshot{entries: entries, byID: byID})
}

// ListenersFor returns the listeners whose declared types accept tok, in
// dispatch order. Conditions are not evaluated.
func (r *Registry) ListenersFor(tok TypeToken) []Registration {
	return registrations(r.snap.Load().candidates(tok))
}

// All returns every registration in dispatch order.
func (r *Registry) All() []Registration {
	return registrations(r.snap.Load().entries)
}

// Get returns a single registration.
func (r *Registry) Get(id ListenerID) (Registration, bool) {
	en, ok := r.snap.Load().byID[id]
	if !ok {
		return Registration{}, false
	}
	return en.reg.clone(), true
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int { return len(r.snap.Load().entries) }

func (r *Registry) candidates(tok TypeToken) []*entry {
	return r.snap.Load().candidates(tok)
}

func registrations(entries []*entry) []Registration {
	out := make([]Registration, len(entries))
	for i, en := range entries {
		out[i] = en.reg.clone()
	}
	return out
}
