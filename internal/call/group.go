package call

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/AAYUSKARKI/sanjal-signaling/internal/domain"
)

// Group fans one local media stream out to one Machine per remote member,
// all sharing a single CallID. Every member link lives and dies on its own:
// one member dropping ends only its machine, never the call. The shared
// stream is stopped once the last machine has ended.
type Group struct {
	callID domain.CallID
	mgr    *Manager
	ctx    context.Context

	mu       sync.Mutex
	machines map[domain.Identity]*Machine
	local    *LocalMedia
	ready    bool
}

// StartGroup acquires media once and dials every member with the same
// CallID, each offer addressed individually. Members are dialed in
// deterministic order; a member that fails to dial only loses its own link.
func (mgr *Manager) StartGroup(ctx context.Context, members []domain.Identity) (*Group, error) {
	mgr.mu.Lock()
	if mgr.busyLocked() {
		mgr.mu.Unlock()
		return nil, ErrBusy
	}
	mgr.mu.Unlock()

	local, err := mgr.cfg.Media.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaAcquisition, err)
	}

	g := &Group{
		callID:   domain.NewCallID(),
		mgr:      mgr,
		ctx:      ctx,
		machines: make(map[domain.Identity]*Machine),
		local:    local,
	}
	mgr.mu.Lock()
	mgr.routes[g.callID] = g
	mgr.mu.Unlock()

	sorted := make([]domain.Identity, 0, len(members))
	for _, id := range members {
		if id != mgr.cfg.Self {
			sorted = append(sorted, id)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for _, member := range sorted {
		m := NewMachine(g.memberConfig(member))
		g.mu.Lock()
		g.machines[member] = m
		g.mu.Unlock()
		if err := m.Start(ctx); err != nil {
			log.Warn().Err(err).Str("module", "call.group").Str("member", string(member)).Str("call", string(g.callID)).Msg("member dial failed")
		}
	}

	g.mu.Lock()
	g.ready = true
	g.mu.Unlock()
	g.reapIfDone()
	return g, nil
}

// AcceptGroup answers the staged offer as a group call: the staged sender
// becomes the first member and offers from further members carrying the
// same CallID are accepted automatically against the shared stream.
func (mgr *Manager) AcceptGroup(ctx context.Context) (*Group, error) {
	mgr.mu.Lock()
	staged := mgr.staged
	mgr.staged = nil
	mgr.mu.Unlock()
	if staged == nil || staged.machine.State() != StateRinging {
		return nil, ErrInvalidState
	}

	local, err := mgr.cfg.Media.Acquire(ctx)
	if err != nil {
		_ = staged.machine.Reject()
		return nil, fmt.Errorf("%w: %v", ErrMediaAcquisition, err)
	}

	g := &Group{
		callID:   staged.CallID,
		mgr:      mgr,
		ctx:      ctx,
		machines: make(map[domain.Identity]*Machine),
		local:    local,
	}

	// Rebuild the staged machine against the shared stream, carrying over
	// the offer and any candidates queued while it rang.
	staged.machine.mu.Lock()
	offer := staged.machine.pendingOffer
	queued := staged.machine.candQueue
	staged.machine.pendingOffer = nil
	staged.machine.candQueue = nil
	staged.machine.mu.Unlock()

	m := newRinging(g.memberConfig(staged.From), staged.CallID, offer)
	m.candQueue = queued
	g.mu.Lock()
	g.machines[staged.From] = m
	g.mu.Unlock()

	mgr.mu.Lock()
	mgr.routes[g.callID] = g
	mgr.mu.Unlock()

	if err := m.Accept(ctx); err != nil {
		g.mu.Lock()
		g.ready = true
		g.mu.Unlock()
		g.reapIfDone()
		return nil, err
	}
	g.mu.Lock()
	g.ready = true
	g.mu.Unlock()
	return g, nil
}

func (g *Group) CallID() domain.CallID { return g.callID }

// Active reports whether at least one member link has not ended.
func (g *Group) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.machines {
		if m.State() != StateEnded {
			return true
		}
	}
	return false
}

// Peers lists the members whose links are still up.
func (g *Group) Peers() []domain.Identity {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.Identity, 0, len(g.machines))
	for id, m := range g.machines {
		if m.State() != StateEnded {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Media exposes the shared local stream for mic/camera toggles.
func (g *Group) Media() *LocalMedia { return g.local }

// End hangs up every member link and releases the shared stream.
func (g *Group) End() {
	g.mu.Lock()
	machines := make([]*Machine, 0, len(g.machines))
	for _, m := range g.machines {
		machines = append(machines, m)
	}
	g.mu.Unlock()
	for _, m := range machines {
		m.End()
	}
	g.reapIfDone()
}

func (g *Group) handleEnvelope(env domain.Envelope) {
	if env.From == "" {
		log.Debug().Str("module", "call.group").Str("type", string(env.Type)).Msg("group event without sender dropped")
		return
	}
	g.mu.Lock()
	m, ok := g.machines[env.From]
	if !ok && env.Type == domain.EventIncomingCall && g.ready {
		// A further member of the call we already joined; accept against
		// the shared stream.
		m = newRinging(g.memberConfig(env.From), env.CallID, env.Offer)
		g.machines[env.From] = m
		g.mu.Unlock()
		if err := m.Accept(g.ctx); err != nil {
			log.Warn().Err(err).Str("module", "call.group").Str("member", string(env.From)).Msg("member accept failed")
		}
		return
	}
	g.mu.Unlock()
	if !ok {
		return
	}
	m.handleEnvelope(env)
	g.reapIfDone()
}

func (g *Group) handleOffline(id domain.Identity) {
	g.mu.Lock()
	machines := make([]*Machine, 0, len(g.machines))
	for _, m := range g.machines {
		machines = append(machines, m)
	}
	g.mu.Unlock()
	for _, m := range machines {
		m.handleOffline(id)
	}
	g.reapIfDone()
}

func (g *Group) done() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.ready {
		return false
	}
	for _, m := range g.machines {
		if m.State() != StateEnded {
			return false
		}
	}
	return true
}

// reapIfDone releases the shared stream once the last member link ended.
func (g *Group) reapIfDone() {
	if g.done() {
		g.local.Stop()
	}
}

func (g *Group) memberConfig(member domain.Identity) MachineConfig {
	return g.mgr.machineConfig(member, g.callID, g.local)
}
