package app

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/AAYUSKARKI/sanjal-signaling/internal/core"
	"github.com/AAYUSKARKI/sanjal-signaling/internal/domain"
)

// Relay is the stateless signaling router. It validates each inbound event
// against the Registry and CallTable and forwards it verbatim; it never
// parses offers, answers or candidates. Nothing here is fatal to the
// process: a failing call only ever touches its own CallID and the two
// identities involved.
type Relay struct {
	Registry *Registry
	Calls    *CallTable
	Groups   *GroupHub
	Presence Presence
}

func NewRelay(presence Presence) *Relay {
	if presence == nil {
		presence = NoopPresence{}
	}
	return &Relay{
		Registry: NewRegistry(),
		Calls:    NewCallTable(),
		Groups:   NewGroupHub(),
		Presence: presence,
	}
}

// Register binds identity to its live connection (last one wins) and mirrors
// the online state.
func (r *Relay) Register(ctx context.Context, id domain.Identity, cid core.ConnID, conn core.SignalConnection, cancel context.CancelFunc) error {
	if err := id.Validate(); err != nil {
		return err
	}
	r.Registry.Register(id, cid, conn, cancel)
	r.Presence.Online(ctx, id)
	return nil
}

// RelayOffer routes a call-offer. An unreachable destination answers the
// sender with user-offline and leaves no trace in the call table.
func (r *Relay) RelayOffer(from domain.Identity, env domain.Envelope) {
	if env.To == "" || env.CallID == "" {
		return
	}
	dest, ok := r.Registry.Lookup(env.To)
	if !ok {
		r.replyOffline(from, env.To)
		return
	}

	if err := r.Calls.Insert(env.CallID, from, env.To); err != nil {
		switch err {
		case ErrCallExists:
			// Group fan-out: same CallID, one more pairwise link.
			r.Calls.AddLink(env.CallID, from, env.To)
		case ErrCallTornDown:
			log.Debug().Str("module", "app.relay").Str("call", string(env.CallID)).Msg("offer for torn-down call dropped")
			return
		}
	}

	fwd := domain.Envelope{
		Type:   domain.EventIncomingCall,
		From:   from,
		CallID: env.CallID,
		Offer:  env.Offer,
	}
	if !r.send(dest, fwd) {
		r.Calls.DropLink(env.CallID, from, env.To)
		r.replyOffline(from, env.To)
	}
}

// RelayAnswer forwards a call-answer to the initiator. Unknown or foreign
// CallIDs are late events for calls already torn down and are dropped.
func (r *Relay) RelayAnswer(from domain.Identity, env domain.Envelope) {
	r.forward(from, env, domain.Envelope{
		Type:   domain.EventCallAccepted,
		From:   from,
		CallID: env.CallID,
		Answer: env.Answer,
	})
}

// RelayCandidate forwards one ICE candidate along a live link.
func (r *Relay) RelayCandidate(from domain.Identity, env domain.Envelope) {
	r.forward(from, env, domain.Envelope{
		Type:      domain.EventPeerNegotiation,
		From:      from,
		CallID:    env.CallID,
		Candidate: env.Candidate,
	})
}

// RelayReject forwards a rejection and drops the pairwise link.
func (r *Relay) RelayReject(from domain.Identity, env domain.Envelope) {
	if r.forward(from, env, domain.Envelope{
		Type:   domain.EventCallRejected,
		From:   from,
		CallID: env.CallID,
	}) {
		r.Calls.DropLink(env.CallID, from, env.To)
	}
}

// RelayEnd forwards a hang-up and drops the pairwise link; the table entry
// dies with its last link.
func (r *Relay) RelayEnd(from domain.Identity, env domain.Envelope) {
	if r.forward(from, env, domain.Envelope{
		Type:   domain.EventEndCall,
		From:   from,
		CallID: env.CallID,
	}) {
		r.Calls.DropLink(env.CallID, from, env.To)
	}
}

// RelayMessage passes an opaque chat payload through to one identity.
func (r *Relay) RelayMessage(from domain.Identity, env domain.Envelope) {
	if env.To == "" {
		return
	}
	dest, ok := r.Registry.Lookup(env.To)
	if !ok {
		r.replyOffline(from, env.To)
		return
	}
	r.send(dest, domain.Envelope{
		Type:    domain.EventReceiveMessage,
		From:    from,
		Message: env.Message,
	})
}

func (r *Relay) JoinGroup(from domain.Identity, env domain.Envelope) {
	if env.GroupID == "" {
		return
	}
	r.Groups.Join(env.GroupID, from)
}

func (r *Relay) LeaveGroup(from domain.Identity, env domain.Envelope) {
	if env.GroupID == "" {
		return
	}
	r.Groups.Leave(env.GroupID, from)
}

// RelayGroupMessage broadcasts an opaque payload to every joined member
// except the sender.
func (r *Relay) RelayGroupMessage(from domain.Identity, env domain.Envelope) {
	if env.GroupID == "" {
		return
	}
	fwd := domain.Envelope{
		Type:    domain.EventReceiveGroup,
		From:    from,
		GroupID: env.GroupID,
		Message: env.Message,
	}
	for _, member := range r.Groups.Members(env.GroupID, from) {
		if conn, ok := r.Registry.Lookup(member); ok {
			r.send(conn, fwd)
		}
	}
}

// Disconnect handles a dropped connection handle: unregister (only when cid
// is still current), mirror offline, force-end every call referencing the
// identity and tell everyone it went offline.
func (r *Relay) Disconnect(ctx context.Context, id domain.Identity, cid core.ConnID) {
	if !r.Registry.Unregister(id, cid) {
		return
	}
	r.Presence.Offline(ctx, id)
	r.Groups.LeaveAll(id)

	for _, callID := range r.Calls.SessionsOf(id) {
		for _, peer := range r.Calls.DropParticipant(callID, id) {
			if conn, ok := r.Registry.Lookup(peer); ok {
				r.send(conn, domain.Envelope{
					Type:   domain.EventEndCall,
					From:   id,
					CallID: callID,
				})
			}
		}
	}

	offline := domain.Envelope{Type: domain.EventUserOffline, UserID: id}
	r.Registry.Each(func(_ domain.Identity, conn core.SignalConnection) {
		r.send(conn, offline)
	})
	log.Info().Str("module", "app.relay").Str("identity", string(id)).Msg("disconnected, calls force-ended")
}

// forward validates the pairwise link and delivers fwd to env.To. Returns
// whether the event was routable at all.
func (r *Relay) forward(from domain.Identity, env, fwd domain.Envelope) bool {
	if env.To == "" || env.CallID == "" {
		return false
	}
	if !r.Calls.Routable(env.CallID, from, env.To) {
		log.Debug().Str("module", "app.relay").Str("type", string(env.Type)).Str("call", string(env.CallID)).Msg("stale event dropped")
		return false
	}
	if dest, ok := r.Registry.Lookup(env.To); ok {
		r.send(dest, fwd)
	}
	return true
}

func (r *Relay) replyOffline(to, about domain.Identity) {
	if conn, ok := r.Registry.Lookup(to); ok {
		r.send(conn, domain.Envelope{Type: domain.EventUserOffline, UserID: about})
	}
}

func (r *Relay) send(conn core.SignalConnection, env domain.Envelope) bool {
	b, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("marshal envelope")
		return false
	}
	if err := conn.TrySend(core.Frame(b)); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Str("type", string(env.Type)).Msg("send failed")
		return false
	}
	return true
}
