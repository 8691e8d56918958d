package peer

import (
	"errors"
	"io"

	"github.com/pion/webrtc/v3"
)

// A callback that is called once we receive the first RTP packets from a
// remote track, i.e. we call this function each time a new track arrives.
func (p *Peer[ID]) onRtpTrackReceived(remoteTrack *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	p.logger.WithField("track_id", remoteTrack.ID()).Info("remote track received")
	p.sink.Send(RemoteTrackReceived{Track: remoteTrack, Receiver: receiver})

	// Keep draining the track so that the interceptor pipeline (NACKs, RTCP
	// reports) stays alive even when nobody consumes the media.
	go func() {
		for {
			packet, _, err := remoteTrack.ReadRTP()
			if err != nil {
				if errors.Is(err, io.EOF) {
					p.logger.Info("remote track closed")
				} else {
					p.logger.WithError(err).Warn("failed to read from remote track")
				}
				p.sink.Send(RemoteTrackEnded{TrackID: remoteTrack.ID()})
				return
			}

			p.inboundPackets.Add(1)
			p.inboundBytes.Add(uint64(packet.MarshalSize()))

			if tap := p.tapRTP(); tap != nil {
				tap(remoteTrack, packet)
			}
		}
	}()
}

// A callback that is called once we gather an ICE candidate for this peer connection.
func (p *Peer[ID]) onICECandidateGathered(candidate *webrtc.ICECandidate) {
	if candidate == nil {
		p.logger.Info("ICE candidate gathering finished")
		p.sink.Send(ICEGatheringComplete{})
		return
	}

	p.logger.WithField("candidate", candidate).Debug("ICE candidate gathered")
	p.sink.Send(NewICECandidate{Candidate: candidate})
}

func (p *Peer[ID]) onICEConnectionStateChanged(state webrtc.ICEConnectionState) {
	p.logger.Infof("ICE connection state changed: %v", state)
}

func (p *Peer[ID]) onICEGatheringStateChanged(state webrtc.ICEGathererState) {
	p.logger.Debugf("ICE gathering state changed: %v", state)
}

func (p *Peer[ID]) onSignalingStateChanged(state webrtc.SignalingState) {
	p.logger.Debugf("signaling state changed: %v", state)
}

func (p *Peer[ID]) onConnectionStateChanged(state webrtc.PeerConnectionState) {
	p.logger.Infof("connection state changed: %v", state)

	switch state {
	case webrtc.PeerConnectionStateConnected:
		p.sink.Send(ConnectedToPeer{})
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
		p.sink.Send(ConnectionFailed{})
	}
}
