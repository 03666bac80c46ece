//go:build !linux

package rtc

import (
	"context"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/AAYUSKARKI/sanjal-signaling/internal/call"
)

// Capture via pion/mediadevices needs platform drivers (V4L2, malgo) that
// are only wired on Linux; elsewhere links are receive-only.
func newAPI() (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, err
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	), nil
}

// CaptureSource yields a trackless stream here; the peer link fills the SDP
// with receive-only transceivers.
type CaptureSource struct{}

func NewCaptureSource() call.MediaSource { return CaptureSource{} }

func (CaptureSource) Acquire(ctx context.Context) (*call.LocalMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return call.NewLocalMedia(nil), nil
}
