package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/AAYUSKARKI/sanjal-signaling/internal/domain"
)

// GroupHub tracks which identities joined which group chat. Membership is
// connection-scoped: it carries no persistence and is dropped when the
// member's connection goes away.
type GroupHub struct {
	mu     sync.RWMutex
	groups map[string]map[domain.Identity]struct{}
}

func NewGroupHub() *GroupHub {
	return &GroupHub{
		groups: make(map[string]map[domain.Identity]struct{}),
	}
}

func (h *GroupHub) Join(groupID string, id domain.Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.groups[groupID]
	if !ok {
		members = make(map[domain.Identity]struct{})
		h.groups[groupID] = members
	}
	members[id] = struct{}{}
	log.Info().Str("module", "app.rooms").Str("group", groupID).Str("identity", string(id)).Msg("joined group")
}

func (h *GroupHub) Leave(groupID string, id domain.Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(groupID, id)
}

// LeaveAll clears every membership of id, called on disconnect.
func (h *GroupHub) LeaveAll(id domain.Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for groupID, members := range h.groups {
		if _, ok := members[id]; ok {
			h.drop(groupID, id)
		}
	}
}

func (h *GroupHub) drop(groupID string, id domain.Identity) {
	members, ok := h.groups[groupID]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(h.groups, groupID)
	}
}

// Members snapshots the group excluding from, the broadcast set for one
// group message.
func (h *GroupHub) Members(groupID string, from domain.Identity) []domain.Identity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.groups[groupID]
	out := make([]domain.Identity, 0, len(members))
	for id := range members {
		if id != from {
			out = append(out, id)
		}
	}
	return out
}
