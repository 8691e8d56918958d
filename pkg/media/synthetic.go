package media

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

const (
	audioFrameInterval = 20 * time.Millisecond
	videoFrameInterval = 33 * time.Millisecond
)

// A single opus frame encoding 20ms of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SyntheticProvider produces tracks with generated payloads instead of real
// device capture: opus silence and an opaque VP8-labelled byte pattern. The
// payloads are not meant to decode to anything, they exist to drive a real
// negotiation and keep RTP flowing end to end. Used by the CLI and by tests.
type SyntheticProvider struct{}

func NewSyntheticProvider() *SyntheticProvider {
	return &SyntheticProvider{}
}

func (p *SyntheticProvider) AcquireMedia(callType CallType) (*LocalMedia, error) {
	streamID := uuid.NewString()

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}

	tracks := []webrtc.TrackLocal{audio}

	var video *webrtc.TrackLocalStaticSample
	if callType == CallTypeVideo {
		video, err = webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video", streamID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create video track: %w", err)
		}
		tracks = append(tracks, video)
	}

	stop := make(chan struct{})
	localMedia := NewLocalMedia(tracks, video != nil, func() { close(stop) })

	go writeSamples(audio, opusSilence, audioFrameInterval, stop, localMedia.AudioEnabled)
	if video != nil {
		frame := make([]byte, 64)
		go writeSamples(video, frame, videoFrameInterval, stop, localMedia.VideoEnabled)
	}

	return localMedia, nil
}

func writeSamples(
	track *webrtc.TrackLocalStaticSample,
	payload []byte,
	interval time.Duration,
	stop <-chan struct{},
	enabled func() bool,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !enabled() {
				continue
			}
			// An unbound track swallows writes, so this is safe before
			// negotiation completes.
			_ = track.WriteSample(media.Sample{Data: payload, Duration: interval})
		}
	}
}
