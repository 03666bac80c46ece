package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/AAYUSKARKI/sanjal-signaling/internal/core"
	"github.com/AAYUSKARKI/sanjal-signaling/internal/domain"
)

type connEntry struct {
	ConnID core.ConnID
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

// Registry maps a durable Identity to its one live connection handle.
// Last registration wins: a second connect for the same identity replaces
// and closes the previous one.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.Identity]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.Identity]*connEntry),
	}
}

// Register binds identity to conn, replacing any prior handle. The replaced
// connection is canceled and closed so two writers never share an identity.
func (r *Registry) Register(id domain.Identity, cid core.ConnID, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	old := r.conns[id]
	r.conns[id] = &connEntry{ConnID: cid, Conn: conn, Cancel: cancel}
	r.mu.Unlock()

	if old != nil {
		if old.Cancel != nil {
			old.Cancel()
		}
		old.Conn.Close()
		log.Info().Str("module", "app.registry").Str("identity", string(id)).Str("replaced", string(old.ConnID)).Msg("replaced live connection")
	}
	log.Info().Str("module", "app.registry").Str("identity", string(id)).Str("conn", string(cid)).Msg("registered")
}

// Unregister removes the mapping only when cid is still the current handle.
// A stale disconnect from an already-replaced connection is a no-op.
func (r *Registry) Unregister(id domain.Identity, cid core.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.conns[id]
	if !ok || entry.ConnID != cid {
		return false
	}
	delete(r.conns, id)
	log.Info().Str("module", "app.registry").Str("identity", string(id)).Str("conn", string(cid)).Msg("unregistered")
	return true
}

func (r *Registry) Lookup(id domain.Identity) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (r *Registry) Online(id domain.Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[id]
	return ok
}

// Snapshot returns every live connection, for offline broadcasts.
func (r *Registry) Snapshot() []core.PresenceDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.PresenceDTO, 0, len(r.conns))
	for id, e := range r.conns {
		out = append(out, core.PresenceDTO{Identity: id, ConnID: e.ConnID})
	}
	return out
}

// Each calls fn for every live connection without holding the lock during
// sends; fn must not block.
func (r *Registry) Each(fn func(domain.Identity, core.SignalConnection)) {
	r.mu.RLock()
	entries := make(map[domain.Identity]core.SignalConnection, len(r.conns))
	for id, e := range r.conns {
		entries[id] = e.Conn
	}
	r.mu.RUnlock()
	for id, conn := range entries {
		fn(id, conn)
	}
}
