package call

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/AAYUSKARKI/sanjal-signaling/internal/domain"
)

// MachineConfig wires one Machine to its collaborators.
type MachineConfig struct {
	Self   domain.Identity
	Remote domain.Identity

	Signaler    Signaler
	NewPeerLink PeerLinkFactory
	Media       MediaSource

	// GracePeriod is how long a degraded link may linger before the call is
	// force-ended. Zero falls back to DefaultGracePeriod.
	GracePeriod time.Duration

	// CallID, when set, is used instead of minting a fresh one (group calls
	// share one id across machines).
	CallID domain.CallID

	// SharedMedia, when set, is used instead of acquiring via Media and is
	// never stopped by this machine; the owner (group coordinator) stops it.
	SharedMedia *LocalMedia

	// OnUpdate projects state and status text for the UI. Called with the
	// machine lock held: it must not call back into the machine.
	OnUpdate func(State, string)

	// OnRemoteTrack surfaces remote media tracks; the core does not own
	// media transport, it only hands tracks through.
	OnRemoteTrack func(*webrtc.TrackRemote)
}

const DefaultGracePeriod = 5 * time.Second

// Machine is the per-call state machine. All transitions are serialized by
// one mutex; the two slow operations (media acquisition stays outside the
// lock, see start/accept) re-check liveness before applying their result so
// a late completion after hang-up is a no-op.
type Machine struct {
	cfg MachineConfig

	mu           sync.Mutex
	state        atomic.Int32
	callID       domain.CallID
	initiator    bool
	link         PeerLink
	local        *LocalMedia
	pendingOffer json.RawMessage
	candQueue    []webrtc.ICECandidateInit
	remoteSet    bool
	degraded     bool
	graceTimer   *time.Timer
	status       string
}

func NewMachine(cfg MachineConfig) *Machine {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	m := &Machine{cfg: cfg, callID: cfg.CallID}
	m.state.Store(int32(StateIdle))
	return m
}

// newRinging stages an incoming offer. Used by the Manager; the UI decides
// between Accept and Reject.
func newRinging(cfg MachineConfig, callID domain.CallID, offer json.RawMessage) *Machine {
	m := NewMachine(cfg)
	m.callID = callID
	m.pendingOffer = offer
	m.state.Store(int32(StateRinging))
	m.status = "incoming call"
	return m
}

// State is readable without the machine lock so aggregate views (group
// coordinator) can poll it from inside their own callbacks.
func (m *Machine) State() State { return State(m.state.Load()) }

func (m *Machine) CallID() domain.CallID { return m.callID }

func (m *Machine) Remote() domain.Identity { return m.cfg.Remote }

func (m *Machine) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Media returns the local media while the call holds it, nil after teardown.
func (m *Machine) Media() *LocalMedia {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.local
}

// Start dials the remote side: acquires media, builds the peer link, sends
// the offer. Valid only from Idle.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.State() != StateIdle {
		m.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidState, m.State())
	}
	if m.callID == "" {
		m.callID = domain.NewCallID()
	}
	m.initiator = true
	m.setLocked(StateDialing, "calling")
	m.mu.Unlock()

	local, err := m.acquireMedia(ctx)
	if err != nil {
		m.mu.Lock()
		m.endLocked("failed: could not access camera or microphone", false)
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrMediaAcquisition, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.State() == StateEnded {
		// Hung up while the permission prompt was open.
		m.releaseMediaLocked(local)
		return nil
	}
	m.local = local

	offer, err := m.buildLinkAndOfferLocked()
	if err != nil {
		m.endLocked("failed: negotiation error", false)
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}

	payload, err := json.Marshal(offer)
	if err != nil {
		m.endLocked("failed: negotiation error", false)
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}
	if err := m.cfg.Signaler.Send(domain.Envelope{
		Type:   domain.EventCallOffer,
		To:     m.cfg.Remote,
		CallID: m.callID,
		Offer:  payload,
	}); err != nil {
		m.endLocked("failed: signaling unavailable", false)
		return err
	}
	m.setLocked(StateDialing, "waiting for answer")
	return nil
}

// Accept answers the staged offer. Valid only from Ringing.
func (m *Machine) Accept(ctx context.Context) error {
	m.mu.Lock()
	if m.State() != StateRinging {
		m.mu.Unlock()
		return fmt.Errorf("%w: accept from %s", ErrInvalidState, m.State())
	}
	m.setLocked(StateRinging, "accepting")
	m.mu.Unlock()

	local, err := m.acquireMedia(ctx)
	if err != nil {
		m.mu.Lock()
		m.endLocked("failed: could not access camera or microphone", false)
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrMediaAcquisition, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.State() != StateRinging {
		m.releaseMediaLocked(local)
		return nil
	}
	m.local = local

	var offer webrtc.SessionDescription
	if err := json.Unmarshal(m.pendingOffer, &offer); err != nil {
		m.endLocked("failed: malformed offer", false)
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}

	answer, err := m.buildLinkAndAnswerLocked(offer)
	if err != nil {
		m.endLocked("failed: negotiation error", false)
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}

	payload, err := json.Marshal(answer)
	if err != nil {
		m.endLocked("failed: negotiation error", false)
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}
	if err := m.cfg.Signaler.Send(domain.Envelope{
		Type:   domain.EventCallAnswer,
		To:     m.cfg.Remote,
		CallID: m.callID,
		Answer: payload,
	}); err != nil {
		m.endLocked("failed: signaling unavailable", true)
		return err
	}
	m.pendingOffer = nil
	m.setLocked(StateConnecting, "connecting")
	return nil
}

// Reject declines the staged offer without ever touching media.
func (m *Machine) Reject() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.State() != StateRinging {
		return fmt.Errorf("%w: reject from %s", ErrInvalidState, m.State())
	}
	_ = m.cfg.Signaler.Send(domain.Envelope{
		Type:   domain.EventCallRejected,
		To:     m.cfg.Remote,
		CallID: m.callID,
	})
	m.endLocked("call rejected", false)
	return nil
}

// End hangs up. Idempotent: retries after the first are no-ops.
func (m *Machine) End() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endLocked("call ended", true)
}

// HandleAnswer applies the remote answer. Valid from Dialing and only for
// this machine's own call; anything else belongs to a stale or foreign call
// and must not mutate state.
func (m *Machine) HandleAnswer(callID domain.CallID, answer json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if callID != m.callID || m.State() != StateDialing || m.link == nil {
		log.Debug().Str("module", "call.machine").Str("call", string(callID)).Msg("answer ignored")
		return
	}

	var desc webrtc.SessionDescription
	if err := json.Unmarshal(answer, &desc); err != nil {
		m.endLocked("failed: malformed answer", true)
		return
	}
	if err := m.link.SetRemoteDescription(desc); err != nil {
		log.Error().Err(err).Str("module", "call.machine").Str("call", string(m.callID)).Msg("apply answer")
		m.endLocked("failed: negotiation error", true)
		return
	}
	m.remoteSet = true
	m.drainCandidatesLocked()
	m.setLocked(StateConnecting, "connecting")
}

// HandleCandidate applies or stages one remote ICE candidate. Candidates
// arriving before the remote description queue FIFO and drain the moment it
// is applied; candidates for a foreign call are discarded.
func (m *Machine) HandleCandidate(callID domain.CallID, candidate json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if callID != m.callID || m.State() == StateEnded {
		return
	}
	var ci webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &ci); err != nil {
		log.Warn().Err(err).Str("module", "call.machine").Msg("malformed candidate dropped")
		return
	}
	if m.remoteSet && m.link != nil {
		if err := m.link.AddICECandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "call.machine").Str("call", string(m.callID)).Msg("add candidate")
		}
		return
	}
	m.candQueue = append(m.candQueue, ci)
}

// HandleRejected ends the call after the remote side declined.
func (m *Machine) HandleRejected(callID domain.CallID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if callID != m.callID {
		return
	}
	m.endLocked("call rejected", false)
}

// HandleEnded ends the call after the remote side hung up.
func (m *Machine) HandleEnded(callID domain.CallID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if callID != m.callID {
		return
	}
	m.endLocked("call ended by remote", false)
}

// HandlePeerOffline ends the call when its remote identity dropped off the
// relay entirely.
func (m *Machine) HandlePeerOffline(id domain.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id != m.cfg.Remote || m.State() == StateIdle {
		return
	}
	m.endLocked("user offline", false)
}

func (m *Machine) acquireMedia(ctx context.Context) (*LocalMedia, error) {
	if m.cfg.SharedMedia != nil {
		return m.cfg.SharedMedia, nil
	}
	return m.cfg.Media.Acquire(ctx)
}

// releaseMediaLocked undoes a late acquisition the machine no longer wants.
func (m *Machine) releaseMediaLocked(local *LocalMedia) {
	if m.cfg.SharedMedia == nil && local != nil {
		local.Stop()
	}
}

func (m *Machine) buildLinkAndOfferLocked() (webrtc.SessionDescription, error) {
	if err := m.buildLinkLocked(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return m.link.CreateOffer()
}

func (m *Machine) buildLinkAndAnswerLocked(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := m.buildLinkLocked(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := m.link.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	m.remoteSet = true
	m.drainCandidatesLocked()
	return m.link.CreateAnswer()
}

func (m *Machine) buildLinkLocked() error {
	link, err := m.cfg.NewPeerLink()
	if err != nil {
		return err
	}
	m.link = link
	for _, t := range m.local.Tracks() {
		if err := link.AddTrack(t.Local()); err != nil {
			return err
		}
	}
	link.OnICECandidate(m.onLocalCandidate)
	link.OnConnectivityChange(m.onConnectivity)
	if m.cfg.OnRemoteTrack != nil {
		link.OnRemoteTrack(m.cfg.OnRemoteTrack)
	}
	return nil
}

func (m *Machine) drainCandidatesLocked() {
	for _, ci := range m.candQueue {
		if err := m.link.AddICECandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "call.machine").Str("call", string(m.callID)).Msg("drain candidate")
		}
	}
	m.candQueue = nil
}

// onLocalCandidate runs on pion goroutines. Emission is suppressed once the
// machine ended so no signaling leaks for a call nobody tracks anymore.
func (m *Machine) onLocalCandidate(ci webrtc.ICECandidateInit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.State() == StateEnded || m.callID == "" {
		return
	}
	payload, err := json.Marshal(ci)
	if err != nil {
		return
	}
	_ = m.cfg.Signaler.Send(domain.Envelope{
		Type:      domain.EventICECandidate,
		To:        m.cfg.Remote,
		CallID:    m.callID,
		Candidate: payload,
	})
}

func (m *Machine) onConnectivity(c Connectivity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.State() == StateEnded {
		return
	}
	switch {
	case c == ConnectivityConnected:
		m.degraded = false
		if m.graceTimer != nil {
			m.graceTimer.Stop()
			m.graceTimer = nil
		}
		m.setLocked(StateActive, "connected")
	case c.Degraded():
		m.degraded = true
		m.setLocked(m.State(), "connection issues, trying to recover")
		if m.graceTimer == nil {
			m.graceTimer = time.AfterFunc(m.cfg.GracePeriod, m.onGraceExpired)
		}
	}
}

// onGraceExpired fires once per degradation episode; recovery before the
// timer cancels it.
func (m *Machine) onGraceExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graceTimer = nil
	if m.State() == StateEnded || !m.degraded {
		return
	}
	m.endLocked("connection lost", true)
}

// endLocked is the single teardown path every ending shares. It stops media
// exactly once, closes the link, clears call-scoped state and, when this
// side owes the remote a notification, emits one end-call.
func (m *Machine) endLocked(status string, notify bool) {
	if m.State() == StateEnded {
		return
	}
	prev := m.State()

	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
	if m.local != nil && m.cfg.SharedMedia == nil {
		m.local.Stop()
	}
	m.local = nil
	if m.link != nil {
		if err := m.link.Close(); err != nil {
			log.Warn().Err(err).Str("module", "call.machine").Str("call", string(m.callID)).Msg("close link")
		}
		m.link = nil
	}
	m.candQueue = nil
	m.pendingOffer = nil
	m.remoteSet = false
	m.degraded = false

	if notify && (prev == StateDialing || prev == StateConnecting || prev == StateActive) {
		_ = m.cfg.Signaler.Send(domain.Envelope{
			Type:   domain.EventEndCall,
			To:     m.cfg.Remote,
			CallID: m.callID,
		})
	}

	m.setLocked(StateEnded, status)
	log.Info().Str("module", "call.machine").Str("call", string(m.callID)).Str("status", status).Msg("call ended")
}

func (m *Machine) setLocked(s State, status string) {
	m.state.Store(int32(s))
	m.status = status
	if m.cfg.OnUpdate != nil {
		m.cfg.OnUpdate(s, status)
	}
}
