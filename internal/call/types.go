// Package call implements the per-call client state machine and the group
// call coordinator. It is deliberately standalone: coupling to transport is
// via the Signaler interface, to WebRTC via PeerLink, to capture hardware
// via MediaSource. The server never imports this package.
package call

import (
	"github.com/pion/webrtc/v4"

	"github.com/AAYUSKARKI/sanjal-signaling/internal/domain"
)

// Signaler is the only surface the call package needs from the signaling
// transport. Send must preserve ordering per destination.
type Signaler interface {
	Send(domain.Envelope) error
}

// Connectivity is the transport-level state of one peer link, reduced to
// what the state machine reacts to.
type Connectivity int

const (
	ConnectivityNew Connectivity = iota
	ConnectivityConnected
	ConnectivityDisconnected
	ConnectivityFailed
	ConnectivityClosed
)

func (c Connectivity) String() string {
	switch c {
	case ConnectivityConnected:
		return "connected"
	case ConnectivityDisconnected:
		return "disconnected"
	case ConnectivityFailed:
		return "failed"
	case ConnectivityClosed:
		return "closed"
	default:
		return "new"
	}
}

// Degraded reports whether the link lost its transport path.
func (c Connectivity) Degraded() bool {
	return c == ConnectivityDisconnected || c == ConnectivityFailed
}

// PeerLink abstracts one peer connection. The pion implementation lives in
// internal/adapters/rtc; tests substitute fakes.
type PeerLink interface {
	AddTrack(webrtc.TrackLocal) error
	// CreateOffer builds an offer and installs it as local description.
	CreateOffer() (webrtc.SessionDescription, error)
	// CreateAnswer builds an answer and installs it as local description.
	// Valid only once a remote offer was applied.
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnConnectivityChange(func(Connectivity))
	OnRemoteTrack(func(*webrtc.TrackRemote))
	Close() error
}

// PeerLinkFactory builds one fresh PeerLink per negotiation.
type PeerLinkFactory func() (PeerLink, error)

// State is the finite call lifecycle. Ended is terminal and reachable from
// every other state.
type State int32

const (
	StateIdle State = iota
	StateDialing
	StateRinging
	StateConnecting
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateDialing:
		return "dialing"
	case StateRinging:
		return "ringing"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "idle"
	}
}
