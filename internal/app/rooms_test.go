package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AAYUSKARKI/sanjal-signaling/internal/domain"
)

func identities(ids []domain.Identity) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}

func TestGroupHubMembershipLifecycle(t *testing.T) {
	h := NewGroupHub()
	h.Join("g1", "alice")
	h.Join("g1", "bob")
	h.Join("g2", "alice")

	assert.ElementsMatch(t, []string{"bob"}, identities(h.Members("g1", "alice")))
	assert.Empty(t, h.Members("g2", "alice"), "sender is excluded from the broadcast set")

	h.Leave("g1", "bob")
	assert.Empty(t, h.Members("g1", "alice"))

	// Leaving a group never joined is fine.
	h.Leave("g9", "alice")
}

func TestGroupHubLeaveAll(t *testing.T) {
	h := NewGroupHub()
	h.Join("g1", "alice")
	h.Join("g1", "bob")
	h.Join("g2", "alice")

	h.LeaveAll("alice")

	assert.ElementsMatch(t, []string{"bob"}, identities(h.Members("g1", "carol")))
	assert.Empty(t, h.Members("g2", "carol"))
}
