package session

import (
	"context"
	"sync"
)

// Registry tracks live sessions by id. It is safe for concurrent use; the
// lock covers only map bookkeeping, never conversational state.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	wg       sync.WaitGroup
}

type entry struct {
	sess   *Session
	cancel context.CancelFunc
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*entry)}
}

// Create adds a fresh session under id with the given starting agent. If a
// session already exists for id it is returned unchanged.
func (r *Registry) Create(id, agentName, voiceID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		return e.sess
	}
	s := newSession(id, agentName, voiceID)
	r.sessions[id] = &entry{sess: s}
	return s
}

// Get returns the session for id, or nil if unknown.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		return e.sess
	}
	return nil
}

// Attach associates a connection's cancel func with the session and joins the
// registry wait group. The returned release func must be called exactly once
// when the connection finishes.
func (r *Registry) Attach(id string, cancel context.CancelFunc) (release func(), ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, exists := r.sessions[id]
	if !exists {
		return nil, false
	}
	e.cancel = cancel
	r.wg.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			r.detach(id)
			r.wg.Done()
		})
	}, true
}

func (r *Registry) detach(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Remove drops the session without cancelling it. Used for sessions that
// never attached a connection.
func (r *Registry) Remove(id string) {
	r.detach(id)
}

// List returns the ids of all live sessions.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CancelAll requests cancellation of every attached connection.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(r.sessions))
	for _, e := range r.sessions {
		if e.cancel != nil {
			cancels = append(cancels, e.cancel)
		}
	}
	r.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// Wait blocks until every attached connection has released.
func (r *Registry) Wait() {
	r.wg.Wait()
}
