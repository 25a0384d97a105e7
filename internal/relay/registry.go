package relay

import (
	"sync"

	"github.com/sirupsen/logrus"

	"cachet/internal/domain"
)

// Handle is the delivery endpoint of one live, authenticated connection.
// It is owned by the Gateway for the connection's lifetime.
type Handle interface {
	// Identity returns the identity the connection authenticated as.
	Identity() domain.Identity
	// Deliver hands an envelope to the connection's outbound queue without
	// waiting for the peer. It reports false if the connection is closed
	// (or its queue is saturated), in which case the recipient counts as
	// offline for this envelope.
	Deliver(ev domain.DeliverEvent) bool
	// Close tears the connection down. Idempotent.
	Close()
}

// Registry maps identities to their single live connection. State is
// process-scoped and in-memory; a restart empties it and every client must
// re-authenticate.
type Registry struct {
	mu      sync.RWMutex
	entries map[domain.UserID]Handle
	log     logrus.FieldLogger
}

// NewRegistry returns an empty registry. It is constructed and passed in
// explicitly; there is no package-level instance.
func NewRegistry(log logrus.FieldLogger) *Registry {
	return &Registry{
		entries: make(map[domain.UserID]Handle),
		log:     log,
	}
}

// Register binds identity to handle. An existing entry for the same
// identity is superseded, and the superseded handle is closed outside the
// lock so no duplicate live session survives.
func (r *Registry) Register(id domain.UserID, h Handle) {
	r.mu.Lock()
	prev := r.entries[id]
	r.entries[id] = h
	r.mu.Unlock()

	if prev != nil && prev != h {
		r.log.WithField("user_id", id).Info("superseding existing connection")
		prev.Close()
	}
}

// Lookup returns the live handle for identity, if any. The caller forwards
// after the lock is released.
func (r *Registry) Lookup(id domain.UserID) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.entries[id]
	return h, ok
}

// Remove deletes the entry for identity only if it still points at h.
// A stale disconnect callback for a superseded connection is a no-op.
func (r *Registry) Remove(id domain.UserID, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[id] == h {
		delete(r.entries, id)
	}
}

// Len reports how many identities are currently connected.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
