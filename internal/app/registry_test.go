package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AAYUSKARKI/sanjal-signaling/internal/core"
	"github.com/AAYUSKARKI/sanjal-signaling/internal/domain"
)

func TestRegistryLastRegistrationWins(t *testing.T) {
	r := NewRegistry()
	first := &fakeConn{}
	second := &fakeConn{}
	firstCanceled := false

	r.Register("alice", "c1", first, func() { firstCanceled = true })
	r.Register("alice", "c2", second, func() {})

	assert.True(t, first.closed, "replaced connection must be closed")
	assert.True(t, firstCanceled)

	conn, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, second, conn.(*fakeConn))
}

func TestRegistryUnregisterGuardsConnID(t *testing.T) {
	r := NewRegistry()
	r.Register("alice", "c1", &fakeConn{}, func() {})
	r.Register("alice", "c2", &fakeConn{}, func() {})

	assert.False(t, r.Unregister("alice", "c1"), "stale handle must not unregister")
	assert.True(t, r.Online("alice"))

	assert.True(t, r.Unregister("alice", "c2"))
	assert.False(t, r.Online("alice"))
	assert.False(t, r.Unregister("alice", "c2"))
}

func TestRegistrySnapshotAndEach(t *testing.T) {
	r := NewRegistry()
	r.Register("alice", "c1", &fakeConn{}, func() {})
	r.Register("bob", "c2", &fakeConn{}, func() {})

	assert.Len(t, r.Snapshot(), 2)

	seen := 0
	r.Each(func(_ domain.Identity, _ core.SignalConnection) { seen++ })
	assert.Equal(t, 2, seen)
}
