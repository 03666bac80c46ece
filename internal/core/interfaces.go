package core

import "github.com/AAYUSKARKI/sanjal-signaling/internal/domain"

// Frame is a raw serialized signaling payload.
type Frame []byte

// ConnID identifies one live transport connection. Ephemeral: a new ID is
// issued on every connect, and an Identity owns at most one at a time.
type ConnID string

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// PresenceDTO is a read-only view for APIs (no transport fields).
type PresenceDTO struct {
	Identity domain.Identity `json:"identity"`
	ConnID   ConnID          `json:"connId"`
}
