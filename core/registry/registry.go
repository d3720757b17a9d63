// Package registry keeps the connected vehicles and their pending commands.
//
// Vehicle identifiers are generated here when a connection is accepted; ids
// asserted by the vehicle itself are never used.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/fleetcmd/core/pending"
	"github.com/kilianp07/fleetcmd/core/protocol"
)

// Conn is the coordinator's handle on a vehicle connection. Send must not
// block past ctx and must fail, not panic, once the connection is closed.
type Conn interface {
	Send(ctx context.Context, env protocol.Envelope) error
	Close() error
}

// Session is a connected vehicle.
type Session struct {
	ID          string
	Conn        Conn
	Pending     *pending.Store
	ConnectedAt time.Time
}

// Registry maps vehicle ids to sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	newID    func() string
	now      func() time.Time
}

// Option customizes a Registry.
type Option func(*Registry)

// WithIDGenerator replaces the default vehicle id generator.
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) { r.newID = gen }
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		newID:    defaultID,
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func defaultID() string {
	return "vehicle-" + uuid.NewString()[:8]
}

// Register creates a session for conn under a fresh id. Colliding ids are
// regenerated.
func (r *Registry) Register(conn Conn) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.newID()
	for {
		if _, taken := r.sessions[id]; !taken {
			break
		}
		id = r.newID()
	}
	s := &Session{ID: id, Conn: conn, Pending: pending.NewStore(), ConnectedAt: r.now()}
	r.sessions[id] = s
	return s
}

// Deregister removes the session and clears its pending commands, returning
// the records that were abandoned. Unknown ids are a no-op.
func (r *Registry) Deregister(id string) ([]pending.Record, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	return s.Pending.Clear(), true
}

// Get returns the session for id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// FindByCommandID returns the session whose pending store holds commandID.
// This is a linear scan over connected vehicles.
func (r *Registry) FindByCommandID(commandID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if _, ok := s.Pending.Find(commandID); ok {
			return s, true
		}
	}
	return nil, false
}

// List returns the connected sessions ordered by connection time.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Len returns the number of connected vehicles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
