package rtc

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/AAYUSKARKI/sanjal-signaling/internal/call"
)

// peerLink adapts one *webrtc.PeerConnection to call.PeerLink. Candidates
// trickle: descriptions are returned as soon as they are installed locally
// and gathering continues through OnICECandidate.
type peerLink struct {
	pc *webrtc.PeerConnection
}

func newPeerLink(pc *webrtc.PeerConnection) *peerLink {
	return &peerLink{pc: pc}
}

func (l *peerLink) AddTrack(track webrtc.TrackLocal) error {
	_, err := l.pc.AddTrack(track)
	return err
}

func (l *peerLink) CreateOffer() (webrtc.SessionDescription, error) {
	// With no local tracks the offer still needs m-lines with ICE
	// credentials, so receive-only transceivers stand in for them.
	if len(l.pc.GetSenders()) == 0 {
		l.addRecvOnlyTransceivers()
	}
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (l *peerLink) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (l *peerLink) SetRemoteDescription(sd webrtc.SessionDescription) error {
	return l.pc.SetRemoteDescription(sd)
}

func (l *peerLink) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(ci)
}

func (l *peerLink) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	l.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && fn != nil {
			fn(cand.ToJSON())
		}
	})
}

func (l *peerLink) OnConnectivityChange(fn func(call.Connectivity)) {
	l.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "rtc").Str("ice_state", s.String()).Msg("ICE state")
		if fn == nil {
			return
		}
		switch s {
		case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
			fn(call.ConnectivityConnected)
		case webrtc.ICEConnectionStateDisconnected:
			fn(call.ConnectivityDisconnected)
		case webrtc.ICEConnectionStateFailed:
			fn(call.ConnectivityFailed)
		case webrtc.ICEConnectionStateClosed:
			fn(call.ConnectivityClosed)
		}
	})
}

func (l *peerLink) OnRemoteTrack(fn func(*webrtc.TrackRemote)) {
	l.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("remote track")
		if fn != nil {
			fn(track)
		}
	})
}

func (l *peerLink) Close() error {
	return l.pc.Close()
}

func (l *peerLink) addRecvOnlyTransceivers() {
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err := l.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Str("kind", kind.String()).Msg("add transceiver failed")
		}
	}
}
