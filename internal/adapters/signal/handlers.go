package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/AAYUSKARKI/sanjal-signaling/internal/domain"
)

func (ctl *RelayWSController) handleSignal(ctx context.Context, c *WsConn, cancel context.CancelFunc, data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	if env.Type == domain.EventRegister {
		ctl.handleRegister(ctx, c, cancel, env)
		return
	}

	// Everything below routes on behalf of a bound identity.
	if c.identity == "" {
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Str("conn", string(c.id)).Msg("event before register dropped")
		return
	}

	switch env.Type {
	case domain.EventCallOffer:
		if !ctl.Limits.Allow(c.identity) {
			log.Warn().Str("module", "signal").Str("identity", string(c.identity)).Msg("call-offer rate limited")
			return
		}
		ctl.Relay.RelayOffer(c.identity, env)
	case domain.EventCallAnswer:
		ctl.Relay.RelayAnswer(c.identity, env)
	case domain.EventICECandidate:
		ctl.Relay.RelayCandidate(c.identity, env)
	case domain.EventCallRejected:
		ctl.Relay.RelayReject(c.identity, env)
	case domain.EventEndCall:
		ctl.Relay.RelayEnd(c.identity, env)
	case domain.EventSendMessage:
		ctl.Relay.RelayMessage(c.identity, env)
	case domain.EventJoinGroup:
		ctl.Relay.JoinGroup(c.identity, env)
	case domain.EventLeaveGroup:
		ctl.Relay.LeaveGroup(c.identity, env)
	case domain.EventGroupMessage:
		ctl.Relay.RelayGroupMessage(c.identity, env)
	default:
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Msg("unknown signal")
	}
}

func (ctl *RelayWSController) handleRegister(ctx context.Context, c *WsConn, cancel context.CancelFunc, env domain.Envelope) {
	id := env.UserID
	if id == "" {
		id = env.From
	}
	if err := ctl.Relay.Register(ctx, id, c.id, c, cancel); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("register rejected")
		return
	}
	c.identity = id
	log.Info().Str("module", "signal").Str("identity", string(id)).Str("conn", string(c.id)).Msg("registered")
}
