package call

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AAYUSKARKI/sanjal-signaling/internal/domain"
)

// endpoint is anything inbound envelopes route to by CallID: a single
// Machine or a group coordinator.
type endpoint interface {
	handleEnvelope(domain.Envelope)
	handleOffline(domain.Identity)
	done() bool
}

// ManagerConfig wires a Manager to its collaborators; every Machine it
// creates inherits them.
type ManagerConfig struct {
	Self        domain.Identity
	Signaler    Signaler
	NewPeerLink PeerLinkFactory
	Media       MediaSource
	GracePeriod time.Duration
	OnUpdate    func(domain.CallID, State, string)
}

// IncomingCall is a staged offer awaiting the user's accept or reject.
type IncomingCall struct {
	From    domain.Identity
	CallID  domain.CallID
	machine *Machine
}

// Manager owns every live call endpoint on this client and routes inbound
// signaling envelopes to them. At most one call (or group call) is pending
// or live at a time; overlapping incoming offers are auto-rejected.
type Manager struct {
	cfg ManagerConfig

	mu         sync.Mutex
	routes     map[domain.CallID]endpoint
	staged     *IncomingCall
	incomingMu sync.RWMutex
	incoming   []func(*IncomingCall)
}

func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		cfg:    cfg,
		routes: make(map[domain.CallID]endpoint),
	}
}

// OnIncoming registers a callback fired for each staged incoming call.
func (mgr *Manager) OnIncoming(fn func(*IncomingCall)) {
	mgr.incomingMu.Lock()
	mgr.incoming = append(mgr.incoming, fn)
	mgr.incomingMu.Unlock()
}

// Start dials remote. Fails with ErrBusy while another call is pending.
func (mgr *Manager) Start(ctx context.Context, remote domain.Identity) (*Machine, error) {
	mgr.mu.Lock()
	if mgr.busyLocked() {
		mgr.mu.Unlock()
		return nil, ErrBusy
	}
	callID := domain.NewCallID()
	m := NewMachine(mgr.machineConfig(remote, callID, nil))
	mgr.routes[callID] = m
	mgr.mu.Unlock()

	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Accept answers the staged incoming call.
func (mgr *Manager) Accept(ctx context.Context) (*Machine, error) {
	mgr.mu.Lock()
	staged := mgr.staged
	mgr.staged = nil
	mgr.mu.Unlock()
	if staged == nil {
		return nil, ErrInvalidState
	}
	if err := staged.machine.Accept(ctx); err != nil {
		return nil, err
	}
	return staged.machine, nil
}

// Reject declines the staged incoming call.
func (mgr *Manager) Reject() error {
	mgr.mu.Lock()
	staged := mgr.staged
	mgr.staged = nil
	mgr.mu.Unlock()
	if staged == nil {
		return ErrInvalidState
	}
	return staged.machine.Reject()
}

// Staged returns the pending incoming call, if any.
func (mgr *Manager) Staged() *IncomingCall {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.staged
}

// Dispatch routes one inbound signaling envelope. Unroutable events are
// stale, a race the relay already allows for, and are dropped.
func (mgr *Manager) Dispatch(env domain.Envelope) {
	switch env.Type {
	case domain.EventIncomingCall:
		mgr.handleIncoming(env)
	case domain.EventUserOffline:
		mgr.handleOffline(env.UserID)
	default:
		mgr.mu.Lock()
		ep, ok := mgr.routes[env.CallID]
		mgr.mu.Unlock()
		if !ok {
			log.Debug().Str("module", "call.manager").Str("type", string(env.Type)).Str("call", string(env.CallID)).Msg("unroutable event dropped")
			return
		}
		ep.handleEnvelope(env)
	}
	mgr.prune()
}

// Close hangs up everything, e.g. on app shutdown.
func (mgr *Manager) Close() {
	mgr.mu.Lock()
	eps := make([]endpoint, 0, len(mgr.routes))
	for _, ep := range mgr.routes {
		eps = append(eps, ep)
	}
	mgr.routes = make(map[domain.CallID]endpoint)
	staged := mgr.staged
	mgr.staged = nil
	mgr.mu.Unlock()

	if staged != nil {
		_ = staged.machine.Reject()
	}
	for _, ep := range eps {
		ep.handleOffline("")
	}
}

func (mgr *Manager) handleIncoming(env domain.Envelope) {
	if env.CallID == "" || env.From == "" {
		return
	}
	mgr.mu.Lock()
	if ep, ok := mgr.routes[env.CallID]; ok {
		// Group fan-in: another member of a call we already joined.
		mgr.mu.Unlock()
		ep.handleEnvelope(env)
		return
	}
	if mgr.busyLocked() {
		mgr.mu.Unlock()
		// Already ringing or in a call: the remote is rejected, not
		// silently ignored.
		_ = mgr.cfg.Signaler.Send(domain.Envelope{
			Type:   domain.EventCallRejected,
			To:     env.From,
			CallID: env.CallID,
		})
		log.Info().Str("module", "call.manager").Str("from", string(env.From)).Str("call", string(env.CallID)).Msg("busy, auto-rejected")
		return
	}

	m := newRinging(mgr.machineConfig(env.From, env.CallID, nil), env.CallID, env.Offer)
	ic := &IncomingCall{From: env.From, CallID: env.CallID, machine: m}
	mgr.staged = ic
	mgr.routes[env.CallID] = m
	mgr.mu.Unlock()

	mgr.incomingMu.RLock()
	handlers := make([]func(*IncomingCall), len(mgr.incoming))
	copy(handlers, mgr.incoming)
	mgr.incomingMu.RUnlock()
	for _, fn := range handlers {
		fn(ic)
	}
}

func (mgr *Manager) handleOffline(id domain.Identity) {
	mgr.mu.Lock()
	eps := make([]endpoint, 0, len(mgr.routes))
	for _, ep := range mgr.routes {
		eps = append(eps, ep)
	}
	if mgr.staged != nil && mgr.staged.From == id {
		mgr.staged = nil
	}
	mgr.mu.Unlock()
	for _, ep := range eps {
		ep.handleOffline(id)
	}
}

// prune drops finished endpoints so their CallIDs stop routing. A dropped
// CallID is gone for good: late events for it fall through to the
// unroutable path.
func (mgr *Manager) prune() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	for id, ep := range mgr.routes {
		if ep.done() {
			delete(mgr.routes, id)
		}
	}
	if mgr.staged != nil && mgr.staged.machine.State() == StateEnded {
		mgr.staged = nil
	}
}

func (mgr *Manager) busyLocked() bool {
	if mgr.staged != nil && mgr.staged.machine.State() != StateEnded {
		return true
	}
	for _, ep := range mgr.routes {
		if !ep.done() {
			return true
		}
	}
	return false
}

func (mgr *Manager) machineConfig(remote domain.Identity, callID domain.CallID, shared *LocalMedia) MachineConfig {
	cfg := MachineConfig{
		Self:        mgr.cfg.Self,
		Remote:      remote,
		Signaler:    mgr.cfg.Signaler,
		NewPeerLink: mgr.cfg.NewPeerLink,
		Media:       mgr.cfg.Media,
		GracePeriod: mgr.cfg.GracePeriod,
		CallID:      callID,
		SharedMedia: shared,
	}
	if mgr.cfg.OnUpdate != nil {
		cfg.OnUpdate = func(s State, status string) {
			mgr.cfg.OnUpdate(callID, s, status)
		}
	}
	return cfg
}

// Machine endpoint plumbing.

func (m *Machine) handleEnvelope(env domain.Envelope) {
	switch env.Type {
	case domain.EventCallAccepted:
		m.HandleAnswer(env.CallID, env.Answer)
	case domain.EventPeerNegotiation:
		m.HandleCandidate(env.CallID, env.Candidate)
	case domain.EventCallRejected:
		m.HandleRejected(env.CallID)
	case domain.EventEndCall:
		m.HandleEnded(env.CallID)
	case domain.EventIncomingCall:
		// Duplicate offer for a call this machine already tracks.
		log.Debug().Str("module", "call.machine").Str("call", string(env.CallID)).Msg("duplicate offer ignored")
	}
}

func (m *Machine) handleOffline(id domain.Identity) {
	if id == "" {
		m.End()
		return
	}
	m.HandlePeerOffline(id)
}

func (m *Machine) done() bool { return m.State() == StateEnded }
