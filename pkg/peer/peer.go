package peer

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/remindly/callcore/pkg/channel"
	"github.com/remindly/callcore/pkg/webrtcext"
	"github.com/sirupsen/logrus"
)

// RTPHandler taps every inbound RTP packet of a remote track. It runs on the
// track's read loop, so it must not block.
type RTPHandler func(track *webrtc.TrackRemote, packet *rtp.Packet)

var (
	ErrCantCreatePeerConnection = errors.New("can't create peer connection")
	ErrCantAddTrack             = errors.New("can't add track")
	ErrCantCreateOffer          = errors.New("can't create offer")
	ErrCantCreateAnswer         = errors.New("can't create answer")
	ErrCantSetRemoteDescription = errors.New("can't set remote description")
	ErrCantSetLocalDescription  = errors.New("can't set local description")
)

// A wrapped representation of the peer connection (the remote party of a 1:1 call).
// The peer gets information about the things happening outside via public methods
// and informs the outside world about the things happening inside by posting
// messages to the sink.
type Peer[ID comparable] struct {
	logger         *logrus.Entry
	peerConnection *webrtc.PeerConnection
	sink           *channel.SinkWithSender[ID, MessageContent]

	inboundPackets atomic.Uint64
	inboundBytes   atomic.Uint64

	rtpMutex   sync.Mutex
	rtpHandler RTPHandler
}

// Instantiates a new peer with the given local tracks already added, so that
// the first offer or answer we produce negotiates them.
func NewPeer[ID comparable](
	connectionFactory *webrtcext.PeerConnectionFactory,
	tracks []webrtc.TrackLocal,
	sink *channel.SinkWithSender[ID, MessageContent],
	logger *logrus.Entry,
) (*Peer[ID], error) {
	peerConnection, err := connectionFactory.CreatePeerConnection()
	if err != nil {
		logger.WithError(err).Error("failed to create peer connection")
		return nil, ErrCantCreatePeerConnection
	}

	peer := &Peer[ID]{
		logger:         logger,
		peerConnection: peerConnection,
		sink:           sink,
	}

	for _, track := range tracks {
		if _, err := peerConnection.AddTrack(track); err != nil {
			logger.WithError(err).Error("failed to add local track")
			peerConnection.Close()
			return nil, ErrCantAddTrack
		}
	}

	peerConnection.OnTrack(peer.onRtpTrackReceived)
	peerConnection.OnICECandidate(peer.onICECandidateGathered)
	peerConnection.OnICEConnectionStateChange(peer.onICEConnectionStateChanged)
	peerConnection.OnICEGatheringStateChange(peer.onICEGatheringStateChanged)
	peerConnection.OnConnectionStateChange(peer.onConnectionStateChanged)
	peerConnection.OnSignalingStateChange(peer.onSignalingStateChanged)

	return peer, nil
}

// Closes the peer connection. From this moment on, no new messages will be sent from the peer.
func (p *Peer[ID]) Terminate() {
	// Seal first, so that the callbacks fired by the closing connection
	// don't reach an owner that has already moved on.
	p.sink.Seal()

	if err := p.peerConnection.Close(); err != nil {
		p.logger.WithError(err).Error("failed to close peer connection")
	}
}

// Creates an SDP offer negotiating our local tracks and installs it as the
// local description, which starts ICE gathering.
func (p *Peer[ID]) CreateOffer() (*webrtc.SessionDescription, error) {
	offer, err := p.peerConnection.CreateOffer(nil)
	if err != nil {
		p.logger.WithError(err).Error("failed to create offer")
		return nil, ErrCantCreateOffer
	}

	if err := p.peerConnection.SetLocalDescription(offer); err != nil {
		p.logger.WithError(err).Error("failed to set local description")
		return nil, ErrCantSetLocalDescription
	}

	return &offer, nil
}

// Applies the SDP offer received from the remote peer and generates an SDP answer.
func (p *Peer[ID]) ProcessSDPOffer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := p.peerConnection.SetRemoteDescription(offer); err != nil {
		p.logger.WithError(err).Error("failed to set remote description")
		return nil, ErrCantSetRemoteDescription
	}

	answer, err := p.peerConnection.CreateAnswer(nil)
	if err != nil {
		p.logger.WithError(err).Error("failed to create answer")
		return nil, ErrCantCreateAnswer
	}

	if err := p.peerConnection.SetLocalDescription(answer); err != nil {
		p.logger.WithError(err).Error("failed to set local description")
		return nil, ErrCantSetLocalDescription
	}

	return &answer, nil
}

// Processes the SDP answer received from the remote peer.
func (p *Peer[ID]) ProcessSDPAnswer(answer webrtc.SessionDescription) error {
	if err := p.peerConnection.SetRemoteDescription(answer); err != nil {
		p.logger.WithError(err).Error("failed to set remote description")
		return ErrCantSetRemoteDescription
	}

	return nil
}

// Processes the remote ICE candidates.
func (p *Peer[ID]) ProcessNewRemoteCandidates(candidates []webrtc.ICECandidateInit) {
	for _, candidate := range candidates {
		if err := p.peerConnection.AddICECandidate(candidate); err != nil {
			p.logger.WithError(err).Error("failed to add ICE candidate")
		}
	}
}

// Reports whether a remote description has been applied yet. Remote ICE
// candidates must be held back until it has.
func (p *Peer[ID]) HasRemoteDescription() bool {
	return p.peerConnection.RemoteDescription() != nil
}

// OnRTPPacket registers the single inbound RTP tap, replacing any previously
// registered one. Pass `nil` to remove the tap.
func (p *Peer[ID]) OnRTPPacket(handler RTPHandler) {
	p.rtpMutex.Lock()
	defer p.rtpMutex.Unlock()
	p.rtpHandler = handler
}

func (p *Peer[ID]) tapRTP() RTPHandler {
	p.rtpMutex.Lock()
	defer p.rtpMutex.Unlock()
	return p.rtpHandler
}

// Inbound RTP volume observed so far, for diagnostics.
func (p *Peer[ID]) InboundStats() (packets, bytes uint64) {
	return p.inboundPackets.Load(), p.inboundBytes.Load()
}
