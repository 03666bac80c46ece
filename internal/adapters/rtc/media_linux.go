//go:build linux

package rtc

import (
	"context"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/AAYUSKARKI/sanjal-signaling/internal/call"
)

// newAPI registers the VP8/Opus codecs the capture pipeline encodes with.
// Generous ICE timeouts so a brief NAT hiccup rides the grace timer instead
// of killing the link outright.
func newAPI() (*webrtc.API, error) {
	selector, err := newCodecSelector()
	if err != nil {
		return nil, err
	}

	mediaEngine := &webrtc.MediaEngine{}
	selector.Populate(mediaEngine)

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, err
	}

	se := webrtc.SettingEngine{}
	se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	), nil
}

func newCodecSelector() (*mediadevices.CodecSelector, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	return mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	), nil
}

// captureTrack adapts a mediadevices track; Close releases the device.
type captureTrack struct{ t mediadevices.Track }

func (c captureTrack) Local() webrtc.TrackLocal  { return c.t }
func (c captureTrack) Kind() webrtc.RTPCodecType { return c.t.Kind() }
func (c captureTrack) Stop() error               { return c.t.Close() }

// CaptureSource opens camera and microphone through pion/mediadevices
// (V4L2 and malgo). GetUserMedia fails as a unit when either device cannot
// open, so it retries video-only and audio-only before giving up; total
// failure degrades to a trackless, receive-only stream.
type CaptureSource struct{}

func NewCaptureSource() call.MediaSource { return CaptureSource{} }

func (CaptureSource) Acquire(ctx context.Context) (*call.LocalMedia, error) {
	type result struct {
		media *call.LocalMedia
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		m, err := capture()
		ch <- result{m, err}
	}()
	select {
	case r := <-ch:
		return r.media, r.err
	case <-ctx.Done():
		// Release the devices when the slow open finally completes.
		go func() {
			if r := <-ch; r.media != nil {
				r.media.Stop()
			}
		}()
		return nil, ctx.Err()
	}
}

func capture() (*call.LocalMedia, error) {
	selector, err := newCodecSelector()
	if err != nil {
		return nil, err
	}

	type attempt struct {
		video bool
		audio bool
		label string
	}
	for _, a := range []attempt{
		{true, true, "video+audio"},
		{true, false, "video-only"},
		{false, true, "audio-only"},
	} {
		constraints := mediadevices.MediaStreamConstraints{Codec: selector}
		if a.video {
			constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
				// Raw formats only: MJPEG camera nodes can emit malformed
				// frames that poison the VP8 encoder.
				c.FrameFormat = prop.FrameFormatOneOf{
					frame.FormatYUYV,
					frame.FormatI420,
					frame.FormatI444,
					frame.FormatRGBA,
				}
				c.Width = prop.IntRanged{Max: 640}
				c.Height = prop.IntRanged{Max: 480}
			}
		}
		if a.audio {
			constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
		}

		stream, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			log.Warn().Err(err).Str("module", "rtc").Str("attempt", a.label).Msg("capture attempt failed")
			continue
		}

		tracks := stream.GetTracks()
		wrapped := make([]call.Track, 0, len(tracks))
		for _, t := range tracks {
			t.OnEnded(func(err error) {
				if err != nil {
					log.Warn().Err(err).Str("module", "rtc").Msg("local track ended")
				}
			})
			wrapped = append(wrapped, captureTrack{t: t})
		}
		log.Info().Str("module", "rtc").Str("attempt", a.label).Int("tracks", len(wrapped)).Msg("local media captured")
		return call.NewLocalMedia(wrapped), nil
	}

	log.Warn().Str("module", "rtc").Msg("all capture attempts failed, receive-only")
	return call.NewLocalMedia(nil), nil
}
