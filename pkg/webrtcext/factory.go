package webrtcext

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
)

// Peer connection factory is used to construct new (pre-configured) peer connections.
type PeerConnectionFactory struct {
	api        *webrtc.API
	iceServers []webrtc.ICEServer
}

func NewPeerConnectionFactory(config Config) (*PeerConnectionFactory, error) {
	config = config.withDefaults()

	api, err := createWebRTCAPI()
	if err != nil {
		return nil, fmt.Errorf("failed to create WebRTC API: %w", err)
	}

	iceServers := make([]webrtc.ICEServer, 0, len(config.ICEServers))
	for _, url := range config.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{url}})
	}

	return &PeerConnectionFactory{api, iceServers}, nil
}

// Creates a peer connection backed by the pre-configured API.
func (f *PeerConnectionFactory) CreatePeerConnection() (*webrtc.PeerConnection, error) {
	return f.api.NewPeerConnection(webrtc.Configuration{ICEServers: f.iceServers})
}

// Creates Pion's WebRTC API with the default codecs and the default
// RTP/RTCP interceptor pipeline (NACKs, RTCP reports) configured.
func createWebRTCAPI() (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register default codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to set default interceptors: %w", err)
	}

	return webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(registry)), nil
}
