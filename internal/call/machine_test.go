package call

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AAYUSKARKI/sanjal-signaling/internal/domain"
)

type fakeSignaler struct {
	mu   sync.Mutex
	sent []domain.Envelope
	fail bool
}

func (s *fakeSignaler) Send(env domain.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("signaler down")
	}
	s.sent = append(s.sent, env)
	return nil
}

func (s *fakeSignaler) byType(t domain.EventType) []domain.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Envelope
	for _, env := range s.sent {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

type fakePeerLink struct {
	mu           sync.Mutex
	tracks       int
	remote       *webrtc.SessionDescription
	candidates   []webrtc.ICECandidateInit
	closed       bool
	remoteErr    error
	onICE        func(webrtc.ICECandidateInit)
	onConn       func(Connectivity)
	onTrack      func(*webrtc.TrackRemote)
	gatherOffer  webrtc.SessionDescription
	gatherAnswer webrtc.SessionDescription
}

func newFakePeerLink() *fakePeerLink {
	return &fakePeerLink{
		gatherOffer:  webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"},
		gatherAnswer: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"},
	}
}

func (l *fakePeerLink) AddTrack(webrtc.TrackLocal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracks++
	return nil
}

func (l *fakePeerLink) CreateOffer() (webrtc.SessionDescription, error) {
	return l.gatherOffer, nil
}

func (l *fakePeerLink) CreateAnswer() (webrtc.SessionDescription, error) {
	return l.gatherAnswer, nil
}

func (l *fakePeerLink) SetRemoteDescription(sd webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remoteErr != nil {
		return l.remoteErr
	}
	l.remote = &sd
	return nil
}

func (l *fakePeerLink) AddICECandidate(ci webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.candidates = append(l.candidates, ci)
	return nil
}

func (l *fakePeerLink) OnICECandidate(fn func(webrtc.ICECandidateInit)) { l.onICE = fn }
func (l *fakePeerLink) OnConnectivityChange(fn func(Connectivity))      { l.onConn = fn }
func (l *fakePeerLink) OnRemoteTrack(fn func(*webrtc.TrackRemote))      { l.onTrack = fn }

func (l *fakePeerLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakePeerLink) appliedCandidates() []webrtc.ICECandidateInit {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]webrtc.ICECandidateInit, len(l.candidates))
	copy(out, l.candidates)
	return out
}

type fakeTrack struct {
	mu    sync.Mutex
	stops int
}

func (t *fakeTrack) Local() webrtc.TrackLocal  { return nil }
func (t *fakeTrack) Kind() webrtc.RTPCodecType { return webrtc.RTPCodecTypeAudio }

func (t *fakeTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
	return nil
}

func (t *fakeTrack) stopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

type fakeMedia struct {
	mu       sync.Mutex
	acquired int
	fail     bool
	tracks   []*fakeTrack
}

func (f *fakeMedia) Acquire(ctx context.Context) (*LocalMedia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("no camera")
	}
	f.acquired++
	tr := &fakeTrack{}
	f.tracks = append(f.tracks, tr)
	return NewLocalMedia([]Track{tr}), nil
}

func (f *fakeMedia) acquireCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired
}

type harness struct {
	sig   *fakeSignaler
	media *fakeMedia
	mu    sync.Mutex
	links []*fakePeerLink
}

func newHarness() *harness {
	return &harness{sig: &fakeSignaler{}, media: &fakeMedia{}}
}

func (h *harness) factory() (PeerLink, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	l := newFakePeerLink()
	h.links = append(h.links, l)
	return l, nil
}

func (h *harness) link(i int) *fakePeerLink {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.links[i]
}

func (h *harness) machineConfig(remote domain.Identity) MachineConfig {
	return MachineConfig{
		Self:        "alice",
		Remote:      remote,
		Signaler:    h.sig,
		NewPeerLink: h.factory,
		Media:       h.media,
		GracePeriod: 30 * time.Millisecond,
	}
}

func mustOffer(t *testing.T) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"})
	require.NoError(t, err)
	return b
}

func TestMachineStartSendsOffer(t *testing.T) {
	h := newHarness()
	m := NewMachine(h.machineConfig("bob"))

	require.NoError(t, m.Start(context.Background()))

	assert.Equal(t, StateDialing, m.State())
	offers := h.sig.byType(domain.EventCallOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, domain.Identity("bob"), offers[0].To)
	assert.Equal(t, m.CallID(), offers[0].CallID)
	assert.NotEmpty(t, offers[0].Offer)
	assert.Equal(t, 1, h.link(0).tracks)

	assert.ErrorIs(t, m.Start(context.Background()), ErrInvalidState)
}

func TestMachineAcceptDrainsQueuedCandidatesInOrder(t *testing.T) {
	h := newHarness()
	m := newRinging(h.machineConfig("bob"), "call-1", mustOffer(t))

	for _, c := range []string{"candidate:1", "candidate:2", "candidate:3"} {
		b, _ := json.Marshal(webrtc.ICECandidateInit{Candidate: c})
		m.HandleCandidate("call-1", b)
	}

	require.NoError(t, m.Accept(context.Background()))
	assert.Equal(t, StateConnecting, m.State())

	applied := h.link(0).appliedCandidates()
	require.Len(t, applied, 3)
	assert.Equal(t, "candidate:1", applied[0].Candidate)
	assert.Equal(t, "candidate:3", applied[2].Candidate)

	answers := h.sig.byType(domain.EventCallAnswer)
	require.Len(t, answers, 1)
	assert.Equal(t, domain.CallID("call-1"), answers[0].CallID)
}

func TestMachineCandidateAfterRemoteDescriptionAppliesDirectly(t *testing.T) {
	h := newHarness()
	m := NewMachine(h.machineConfig("bob"))
	require.NoError(t, m.Start(context.Background()))

	answer, _ := json.Marshal(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"})
	m.HandleAnswer(m.CallID(), answer)
	assert.Equal(t, StateConnecting, m.State())

	cand, _ := json.Marshal(webrtc.ICECandidateInit{Candidate: "candidate:9"})
	m.HandleCandidate(m.CallID(), cand)
	require.Len(t, h.link(0).appliedCandidates(), 1)
}

func TestMachineIgnoresForeignCallID(t *testing.T) {
	h := newHarness()
	m := NewMachine(h.machineConfig("bob"))
	require.NoError(t, m.Start(context.Background()))

	answer, _ := json.Marshal(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"})
	m.HandleAnswer("some-other-call", answer)
	assert.Equal(t, StateDialing, m.State())

	m.HandleEnded("some-other-call")
	assert.Equal(t, StateDialing, m.State())

	m.HandleRejected("some-other-call")
	assert.Equal(t, StateDialing, m.State())
}

func TestMachineEndIsIdempotent(t *testing.T) {
	h := newHarness()
	m := NewMachine(h.machineConfig("bob"))
	require.NoError(t, m.Start(context.Background()))

	m.End()
	m.End()
	m.HandleEnded(m.CallID())

	assert.Equal(t, StateEnded, m.State())
	assert.Len(t, h.sig.byType(domain.EventEndCall), 1)
	assert.Equal(t, 1, h.media.tracks[0].stopCount())
	assert.True(t, h.link(0).closed)
	assert.Nil(t, m.Media())
}

func TestMachineRemoteHangupDoesNotEcho(t *testing.T) {
	h := newHarness()
	m := NewMachine(h.machineConfig("bob"))
	require.NoError(t, m.Start(context.Background()))

	m.HandleEnded(m.CallID())

	assert.Equal(t, StateEnded, m.State())
	assert.Empty(t, h.sig.byType(domain.EventEndCall))
}

func TestMachineRejectNeverTouchesMedia(t *testing.T) {
	h := newHarness()
	m := newRinging(h.machineConfig("bob"), "call-1", mustOffer(t))

	require.NoError(t, m.Reject())

	assert.Equal(t, StateEnded, m.State())
	require.Len(t, h.sig.byType(domain.EventCallRejected), 1)
	assert.Equal(t, 0, h.media.acquireCount())

	assert.ErrorIs(t, m.Reject(), ErrInvalidState)
}

func TestMachineMediaFailureEndsCall(t *testing.T) {
	h := newHarness()
	h.media.fail = true
	m := NewMachine(h.machineConfig("bob"))

	err := m.Start(context.Background())
	assert.ErrorIs(t, err, ErrMediaAcquisition)
	assert.Equal(t, StateEnded, m.State())
	assert.Empty(t, h.sig.byType(domain.EventCallOffer))
}

func TestMachineGraceTimerEndsDegradedCall(t *testing.T) {
	h := newHarness()
	m := NewMachine(h.machineConfig("bob"))
	require.NoError(t, m.Start(context.Background()))

	link := h.link(0)
	link.onConn(ConnectivityConnected)
	assert.Equal(t, StateActive, m.State())

	link.onConn(ConnectivityDisconnected)
	assert.Eventually(t, func() bool { return m.State() == StateEnded },
		500*time.Millisecond, 5*time.Millisecond)
	assert.Len(t, h.sig.byType(domain.EventEndCall), 1)
}

func TestMachineGraceTimerCanceledOnRecovery(t *testing.T) {
	h := newHarness()
	m := NewMachine(h.machineConfig("bob"))
	require.NoError(t, m.Start(context.Background()))

	link := h.link(0)
	link.onConn(ConnectivityConnected)
	link.onConn(ConnectivityDisconnected)
	link.onConn(ConnectivityConnected)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateActive, m.State())
	assert.Empty(t, h.sig.byType(domain.EventEndCall))
}

func TestMachineLocalCandidateSuppressedAfterEnd(t *testing.T) {
	h := newHarness()
	m := NewMachine(h.machineConfig("bob"))
	require.NoError(t, m.Start(context.Background()))

	link := h.link(0)
	link.onICE(webrtc.ICECandidateInit{Candidate: "candidate:live"})
	require.Len(t, h.sig.byType(domain.EventICECandidate), 1)

	m.End()
	link.onICE(webrtc.ICECandidateInit{Candidate: "candidate:late"})
	assert.Len(t, h.sig.byType(domain.EventICECandidate), 1)
}

func TestMachineSharedMediaIsNotStopped(t *testing.T) {
	h := newHarness()
	tr := &fakeTrack{}
	shared := NewLocalMedia([]Track{tr})

	cfg := h.machineConfig("bob")
	cfg.SharedMedia = shared
	m := NewMachine(cfg)
	require.NoError(t, m.Start(context.Background()))

	m.End()
	assert.Equal(t, 0, tr.stopCount())
	assert.False(t, shared.Stopped())
	assert.Equal(t, 0, h.media.acquireCount())
}
