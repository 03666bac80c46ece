package app

import (
	"errors"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/AAYUSKARKI/sanjal-signaling/internal/domain"
)

var (
	ErrCallExists   = errors.New("call already registered")
	ErrCallTornDown = errors.New("call id was already torn down")
)

// tombstoneTTL bounds how long an ended CallID stays blocked from reuse.
// Long enough to outlive any late signaling traffic for the call.
const tombstoneTTL = time.Hour

// CallTable tracks live call sessions by CallID. A CallID is inserted at
// most once; once the last link is gone the entry lands in the tombstone
// cache and can never be reinserted, which is what makes client-side
// idempotent teardown safe against late duplicates.
type CallTable struct {
	mu    sync.RWMutex
	calls map[domain.CallID]*domain.CallSession
	ended *gocache.Cache
}

func NewCallTable() *CallTable {
	return &CallTable{
		calls: make(map[domain.CallID]*domain.CallSession),
		ended: gocache.New(tombstoneTTL, 10*time.Minute),
	}
}

// Insert registers a new call session with its first link. Fails when the
// CallID is live or was already torn down.
func (t *CallTable) Insert(id domain.CallID, initiator, callee domain.Identity) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.calls[id]; ok {
		return ErrCallExists
	}
	if _, ok := t.ended.Get(string(id)); ok {
		return ErrCallTornDown
	}
	t.calls[id] = domain.NewCallSession(id, initiator, callee)
	log.Info().Str("module", "app.calltable").Str("call", string(id)).Str("initiator", string(initiator)).Str("callee", string(callee)).Msg("call registered")
	return nil
}

// AddLink grows an existing session by one pairwise link. Offers carrying an
// already-registered CallID (group fan-out) land here instead of Insert.
func (t *CallTable) AddLink(id domain.CallID, from, to domain.Identity) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.calls[id]
	if !ok {
		return false
	}
	sess.AddLink(from, to)
	return true
}

// Routable reports whether a signaling event between from and to on call id
// may be forwarded. Unknown, torn-down and foreign-link CallIDs all answer
// false; such events are late or stale and are dropped silently.
func (t *CallTable) Routable(id domain.CallID, from, to domain.Identity) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sess, ok := t.calls[id]
	return ok && sess.HasLink(from, to)
}

// DropLink removes one pairwise link and tears the whole entry down when it
// was the last. Safe to call for unknown CallIDs.
func (t *CallTable) DropLink(id domain.CallID, from, to domain.Identity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.calls[id]
	if !ok {
		return
	}
	if !sess.RemoveLink(from, to) {
		t.remove(id)
	}
}

// DropParticipant removes every link touching member, returning the peers
// that were still linked to it. The entry dies with its last link.
func (t *CallTable) DropParticipant(id domain.CallID, member domain.Identity) []domain.Identity {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.calls[id]
	if !ok {
		return nil
	}
	peers := sess.PeersOf(member)
	if !sess.DropParticipant(member) {
		t.remove(id)
	}
	return peers
}

// remove must be called with the lock held.
func (t *CallTable) remove(id domain.CallID) {
	delete(t.calls, id)
	t.ended.SetDefault(string(id), struct{}{})
	log.Info().Str("module", "app.calltable").Str("call", string(id)).Msg("call torn down")
}

func (t *CallTable) Contains(id domain.CallID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.calls[id]
	return ok
}

// SessionsOf lists the CallIDs of every live session referencing identity,
// used for force-teardown when its connection drops.
func (t *CallTable) SessionsOf(id domain.Identity) []domain.CallID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.CallID, 0, 2)
	for cid, sess := range t.calls {
		if sess.Has(id) {
			out = append(out, cid)
		}
	}
	return out
}

func (t *CallTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.calls)
}
