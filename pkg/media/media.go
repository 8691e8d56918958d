package media

import (
	"sync/atomic"

	"github.com/pion/webrtc/v3"
)

// Kind of a call. An audio call carries a single audio track, a video call
// carries an audio and a video track.
type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

func (t CallType) Valid() bool {
	return t == CallTypeAudio || t == CallTypeVideo
}

// LocalMedia owns the locally originated tracks of a single call, along with
// their mute state. It is handed out by a `Provider` and must be closed when
// the call ends; closing twice is safe.
type LocalMedia struct {
	tracks []webrtc.TrackLocal
	stop   func()

	closed       atomic.Bool
	audioEnabled atomic.Bool
	videoEnabled atomic.Bool
}

func NewLocalMedia(tracks []webrtc.TrackLocal, hasVideo bool, stop func()) *LocalMedia {
	m := &LocalMedia{tracks: tracks, stop: stop}
	m.audioEnabled.Store(true)
	m.videoEnabled.Store(hasVideo)
	return m
}

// Tracks to add to the peer connection.
func (m *LocalMedia) Tracks() []webrtc.TrackLocal {
	return m.tracks
}

// SetAudioEnabled flips the microphone mute state. Disabled tracks stay
// negotiated, only their payload stops flowing, matching how muting works
// in browsers.
func (m *LocalMedia) SetAudioEnabled(enabled bool) {
	m.audioEnabled.Store(enabled)
}

func (m *LocalMedia) AudioEnabled() bool {
	return m.audioEnabled.Load()
}

// SetVideoEnabled flips the camera state.
func (m *LocalMedia) SetVideoEnabled(enabled bool) {
	m.videoEnabled.Store(enabled)
}

func (m *LocalMedia) VideoEnabled() bool {
	return m.videoEnabled.Load()
}

// Close stops the capture backing the tracks. Idempotent.
func (m *LocalMedia) Close() {
	if m.closed.CompareAndSwap(false, true) && m.stop != nil {
		m.stop()
	}
}

// Provider acquires local media for a call. Acquisition may be slow (device
// capture, permission prompts), so callers must expect it to block and must
// tolerate the call being gone by the time it returns.
type Provider interface {
	AcquireMedia(callType CallType) (*LocalMedia, error)
}
