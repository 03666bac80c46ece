package call

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Track is one local capture track. Stop releases the device.
type Track interface {
	Local() webrtc.TrackLocal
	Kind() webrtc.RTPCodecType
	Stop() error
}

// MediaSource acquires the local capture stream. Acquisition may be slow
// (permission prompt) and must honor ctx cancellation.
type MediaSource interface {
	Acquire(ctx context.Context) (*LocalMedia, error)
}

// LocalMedia owns the acquired capture tracks for exactly one call (or one
// group call sharing them across peer links). Stop runs its track-stop pass
// exactly once no matter how often teardown is retried.
type LocalMedia struct {
	mu      sync.Mutex
	tracks  []Track
	mic     bool
	camera  bool
	stopped bool
}

func NewLocalMedia(tracks []Track) *LocalMedia {
	return &LocalMedia{tracks: tracks, mic: true, camera: true}
}

func (m *LocalMedia) Tracks() []Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Track, len(m.tracks))
	copy(out, m.tracks)
	return out
}

// ToggleMic flips the mic flag and returns the new enabled state.
func (m *LocalMedia) ToggleMic() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mic = !m.mic
	return m.mic
}

// ToggleCamera flips the camera flag and returns the new enabled state.
func (m *LocalMedia) ToggleCamera() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.camera = !m.camera
	return m.camera
}

func (m *LocalMedia) MicEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mic
}

func (m *LocalMedia) CameraEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.camera
}

// Stop stops every track once. Later calls are no-ops.
func (m *LocalMedia) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	tracks := m.tracks
	m.tracks = nil
	m.mu.Unlock()

	for _, t := range tracks {
		if err := t.Stop(); err != nil {
			log.Warn().Err(err).Str("module", "call.media").Msg("track stop")
		}
	}
}

func (m *LocalMedia) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}
