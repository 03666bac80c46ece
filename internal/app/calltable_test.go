package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AAYUSKARKI/sanjal-signaling/internal/domain"
)

func TestCallTableInsertOnce(t *testing.T) {
	tbl := NewCallTable()
	id := domain.NewCallID()

	require.NoError(t, tbl.Insert(id, "alice", "bob"))
	assert.ErrorIs(t, tbl.Insert(id, "alice", "carol"), ErrCallExists)
	assert.True(t, tbl.Routable(id, "alice", "bob"))
	assert.True(t, tbl.Routable(id, "bob", "alice"), "links are direction-agnostic")
	assert.False(t, tbl.Routable(id, "alice", "carol"))
}

func TestCallTableTombstoneBlocksReinsert(t *testing.T) {
	tbl := NewCallTable()
	id := domain.NewCallID()

	require.NoError(t, tbl.Insert(id, "alice", "bob"))
	tbl.DropLink(id, "alice", "bob")

	assert.False(t, tbl.Contains(id))
	assert.ErrorIs(t, tbl.Insert(id, "alice", "bob"), ErrCallTornDown)
}

func TestCallTableEntryDiesWithLastLink(t *testing.T) {
	tbl := NewCallTable()
	id := domain.NewCallID()

	require.NoError(t, tbl.Insert(id, "alice", "bob"))
	assert.True(t, tbl.AddLink(id, "alice", "carol"))

	tbl.DropLink(id, "alice", "bob")
	assert.True(t, tbl.Contains(id), "one link left, entry must survive")
	assert.True(t, tbl.Routable(id, "alice", "carol"))

	tbl.DropLink(id, "alice", "carol")
	assert.False(t, tbl.Contains(id))

	// Dropping on an unknown id stays a no-op.
	tbl.DropLink(id, "alice", "carol")
}

func TestCallTableDropParticipant(t *testing.T) {
	tbl := NewCallTable()
	id := domain.NewCallID()

	require.NoError(t, tbl.Insert(id, "alice", "bob"))
	tbl.AddLink(id, "alice", "carol")

	peers := tbl.DropParticipant(id, "alice")
	assert.ElementsMatch(t, []domain.Identity{"bob", "carol"}, peers)
	assert.False(t, tbl.Contains(id))

	assert.Nil(t, tbl.DropParticipant(id, "alice"))
}

func TestCallTableSessionsOf(t *testing.T) {
	tbl := NewCallTable()
	a := domain.NewCallID()
	b := domain.NewCallID()

	require.NoError(t, tbl.Insert(a, "alice", "bob"))
	require.NoError(t, tbl.Insert(b, "carol", "alice"))

	assert.ElementsMatch(t, []domain.CallID{a, b}, tbl.SessionsOf("alice"))
	assert.ElementsMatch(t, []domain.CallID{a}, tbl.SessionsOf("bob"))
	assert.Empty(t, tbl.SessionsOf("dave"))
	assert.Equal(t, 2, tbl.Len())
}
