package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallID is the single correlation key for every message belonging to one
// call. Minted by the initiating client, never reused after teardown.
type CallID string

func NewCallID() CallID {
	return CallID(uuid.NewString())
}

// LinkKey names one pairwise signaling link inside a call, direction-free.
type LinkKey struct {
	A, B Identity
}

func NewLinkKey(x, y Identity) LinkKey {
	if y < x {
		x, y = y, x
	}
	return LinkKey{A: x, B: y}
}

// CallSession is the server-side record for one negotiation/active-call
// cycle. A group call shares one CallID across N pairwise links, so the
// session tracks links explicitly: a participant is gone when its last link
// is, and the session is gone when no links remain.
type CallSession struct {
	ID        CallID
	Initiator Identity
	Links     map[LinkKey]struct{}
	CreatedAt time.Time
}

func NewCallSession(id CallID, initiator, callee Identity) *CallSession {
	return &CallSession{
		ID:        id,
		Initiator: initiator,
		Links:     map[LinkKey]struct{}{NewLinkKey(initiator, callee): {}},
		CreatedAt: time.Now(),
	}
}

func (s *CallSession) AddLink(x, y Identity) {
	s.Links[NewLinkKey(x, y)] = struct{}{}
}

// HasLink reports whether a signaling event between x and y may be routed.
func (s *CallSession) HasLink(x, y Identity) bool {
	_, ok := s.Links[NewLinkKey(x, y)]
	return ok
}

// RemoveLink drops one pairwise link and reports whether any links remain.
func (s *CallSession) RemoveLink(x, y Identity) bool {
	delete(s.Links, NewLinkKey(x, y))
	return len(s.Links) > 0
}

func (s *CallSession) Has(id Identity) bool {
	for k := range s.Links {
		if k.A == id || k.B == id {
			return true
		}
	}
	return false
}

// PeersOf returns every identity linked to id, for force-teardown fan-out.
func (s *CallSession) PeersOf(id Identity) []Identity {
	out := make([]Identity, 0, len(s.Links))
	for k := range s.Links {
		switch id {
		case k.A:
			out = append(out, k.B)
		case k.B:
			out = append(out, k.A)
		}
	}
	return out
}

// DropParticipant removes every link touching id and reports whether any
// links remain.
func (s *CallSession) DropParticipant(id Identity) bool {
	for k := range s.Links {
		if k.A == id || k.B == id {
			delete(s.Links, k)
		}
	}
	return len(s.Links) > 0
}
