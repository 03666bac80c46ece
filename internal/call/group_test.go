package call

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AAYUSKARKI/sanjal-signaling/internal/domain"
)

func TestStartGroupFansOutOneCallID(t *testing.T) {
	h := newHarness()
	mgr := newManager(h)

	g, err := mgr.StartGroup(context.Background(), []domain.Identity{"carol", "bob", "alice"})
	require.NoError(t, err)

	offers := h.sig.byType(domain.EventCallOffer)
	require.Len(t, offers, 2, "self is skipped")
	assert.Equal(t, domain.Identity("bob"), offers[0].To, "members are dialed in deterministic order")
	assert.Equal(t, domain.Identity("carol"), offers[1].To)
	assert.Equal(t, g.CallID(), offers[0].CallID)
	assert.Equal(t, g.CallID(), offers[1].CallID)

	assert.Equal(t, 1, h.media.acquireCount(), "one capture shared by every member link")
	assert.True(t, g.Active())
	assert.ElementsMatch(t, []domain.Identity{"bob", "carol"}, g.Peers())
}

func TestGroupMemberHangupLeavesOthersActive(t *testing.T) {
	h := newHarness()
	mgr := newManager(h)

	g, err := mgr.StartGroup(context.Background(), []domain.Identity{"bob", "carol"})
	require.NoError(t, err)

	mgr.Dispatch(domain.Envelope{Type: domain.EventEndCall, From: "bob", CallID: g.CallID()})

	assert.True(t, g.Active())
	assert.ElementsMatch(t, []domain.Identity{"carol"}, g.Peers())
	assert.False(t, g.Media().Stopped(), "shared stream lives while any member does")

	mgr.Dispatch(domain.Envelope{Type: domain.EventEndCall, From: "carol", CallID: g.CallID()})

	assert.False(t, g.Active())
	assert.True(t, g.Media().Stopped())
}

func TestGroupOfflineDropsOnlyThatPeer(t *testing.T) {
	h := newHarness()
	mgr := newManager(h)

	g, err := mgr.StartGroup(context.Background(), []domain.Identity{"bob", "carol"})
	require.NoError(t, err)

	mgr.Dispatch(domain.Envelope{Type: domain.EventUserOffline, UserID: "bob"})

	assert.True(t, g.Active())
	assert.ElementsMatch(t, []domain.Identity{"carol"}, g.Peers())
}

func TestGroupEndStopsEveryLink(t *testing.T) {
	h := newHarness()
	mgr := newManager(h)

	g, err := mgr.StartGroup(context.Background(), []domain.Identity{"bob", "carol"})
	require.NoError(t, err)

	g.End()

	assert.False(t, g.Active())
	assert.True(t, g.Media().Stopped())
	assert.Len(t, h.sig.byType(domain.EventEndCall), 2, "one hang-up per member link")
}

func TestAcceptGroupAutoAcceptsFurtherMembers(t *testing.T) {
	h := newHarness()
	mgr := newManager(h)

	mgr.Dispatch(domain.Envelope{
		Type: domain.EventIncomingCall, From: "bob", CallID: "g-call", Offer: mustOffer(t),
	})
	require.NotNil(t, mgr.Staged())

	g, err := mgr.AcceptGroup(context.Background())
	require.NoError(t, err)
	assert.Len(t, h.sig.byType(domain.EventCallAnswer), 1)

	// Carol joins the same call; her offer is answered without another
	// accept from the user, against the same shared stream.
	mgr.Dispatch(domain.Envelope{
		Type: domain.EventIncomingCall, From: "carol", CallID: "g-call", Offer: mustOffer(t),
	})

	assert.Len(t, h.sig.byType(domain.EventCallAnswer), 2)
	assert.Equal(t, 1, h.media.acquireCount())
	assert.ElementsMatch(t, []domain.Identity{"bob", "carol"}, g.Peers())
}

func TestAcceptGroupWithoutStagedCall(t *testing.T) {
	h := newHarness()
	mgr := newManager(h)

	_, err := mgr.AcceptGroup(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStartGroupWhileBusy(t *testing.T) {
	h := newHarness()
	mgr := newManager(h)

	_, err := mgr.Start(context.Background(), "bob")
	require.NoError(t, err)

	_, err = mgr.StartGroup(context.Background(), []domain.Identity{"carol"})
	assert.ErrorIs(t, err, ErrBusy)
}
