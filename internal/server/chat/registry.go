package chat

import "sync"

// Member is a registered recipient of broadcasts.
type Member interface {
	ID() string
	Username() string
	// Deliver queues frame for sending without blocking.
	Deliver(frame []byte) error
}

// Registry is the set of authenticated, still-connected sessions, kept in
// registration order. The lock is held only to mutate or copy the slice.
type Registry struct {
	mu      sync.Mutex
	members []Member
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds m. It reports false if a member with the same ID is already
// present.
func (r *Registry) Register(m Member) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.members {
		if existing.ID() == m.ID() {
			return false
		}
	}
	r.members = append(r.members, m)
	return true
}

// Deregister removes m and reports whether it was present. Removing an
// absent member is a no-op.
func (r *Registry) Deregister(m Member) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.members {
		if existing.ID() == m.ID() {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the current members. Later registry changes do
// not affect the returned slice.
func (r *Registry) Snapshot() []Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Member, len(r.members))
	copy(out, r.members)
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}
