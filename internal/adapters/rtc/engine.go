// Package rtc is the pion adapter: it builds peer connections for the call
// package and captures local media where the platform supports it.
package rtc

import (
	"github.com/pion/webrtc/v4"

	"github.com/AAYUSKARKI/sanjal-signaling/internal/call"
)

// Engine holds one configured webrtc.API and stamps out peer links from it.
type Engine struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

func DefaultICEServers() []string {
	return []string{"stun:stun.l.google.com:19302"}
}

func NewEngine(iceServers []string) (*Engine, error) {
	if len(iceServers) == 0 {
		iceServers = DefaultICEServers()
	}
	api, err := newAPI()
	if err != nil {
		return nil, err
	}
	return &Engine{
		api: api,
		cfg: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
		},
	}, nil
}

// NewPeerLink satisfies call.PeerLinkFactory.
func (e *Engine) NewPeerLink() (call.PeerLink, error) {
	pc, err := e.api.NewPeerConnection(e.cfg)
	if err != nil {
		return nil, err
	}
	return newPeerLink(pc), nil
}
