package session

import (
	"sort"
	"sync"
)

// Registry holds the active session per tenant (thread-safe). The map mutex
// is never held while a factory performs I/O.
type Registry struct {
	mu       sync.RWMutex
	sessions map[TenantID]*Session
	pending  map[TenantID]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[TenantID]*Session),
		pending:  make(map[TenantID]struct{}),
	}
}

// TryRegister reserves tenant, builds a session with factory and publishes it.
// Concurrent calls for the same tenant yield one success; the others get
// ErrAlreadyActive without running their factory. A factory error or panic
// leaves the tenant unregistered.
func (r *Registry) TryRegister(tenant TenantID, factory func() (*Session, error)) (*Session, error) {
	r.mu.Lock()
	if _, ok := r.sessions[tenant]; ok {
		r.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	if _, ok := r.pending[tenant]; ok {
		r.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	r.pending[tenant] = struct{}{}
	r.mu.Unlock()

	released := false
	defer func() {
		if !released {
			r.mu.Lock()
			delete(r.pending, tenant)
			r.mu.Unlock()
		}
	}()

	s, err := factory()

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, tenant)
	released = true
	if err != nil {
		return nil, err
	}
	// A session finalized while its factory was still running (its timer
	// fired early) must not become addressable.
	if s.State() == StateFinalized {
		return s, nil
	}
	r.sessions[tenant] = s
	return s, nil
}

// Get returns the tenant's current session.
func (r *Registry) Get(tenant TenantID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[tenant]
	return s, ok
}

// Remove deletes the tenant's entry if it is still s and reports whether it did.
func (r *Registry) Remove(tenant TenantID, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(tenant, s)
}

// Finalize deregisters s and moves it to Finalized in one step, so no tenant
// ever has a finalized session addressable as current.
func (r *Registry) Finalize(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := r.removeLocked(s.tenant, s)
	s.markFinalized()
	return removed
}

func (r *Registry) removeLocked(tenant TenantID, s *Session) bool {
	cur, ok := r.sessions[tenant]
	if !ok || cur != s {
		return false
	}
	delete(r.sessions, tenant)
	return true
}

// Active returns the registered sessions ordered by tenant.
func (r *Registry) Active() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].tenant < out[j].tenant })
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
