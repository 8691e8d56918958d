package call

import (
	"errors"

	"github.com/remindly/callcore/pkg/channel"
	"github.com/remindly/callcore/pkg/peer"
	"github.com/remindly/callcore/pkg/signaling"
)

var errTransportFailed = errors.New("peer transport failed")

// Process a message from the session's peer connection.
func (m *Manager) processPeerEvent(event channel.Message[string, peer.MessageContent]) {
	s := m.session
	if s == nil || event.Sender != s.id {
		// An event of an already terminated peer connection.
		return
	}

	// Since Go does not support ADTs, we have to use a switch statement to
	// determine the actual type of the message.
	switch message := event.Content.(type) {
	case peer.ConnectedToPeer:
		m.onConnectedToPeer(s)
	case peer.ConnectionFailed:
		m.onConnectionFailed(s)
	case peer.NewICECandidate:
		candidate := message.Candidate.ToJSON()
		s.localCandidates = append(s.localCandidates, candidate)
		m.sendTo(signaling.TypeICECandidate, s.remoteUserID, candidate)
	case peer.ICEGatheringComplete:
		m.logger.Debug("local ICE gathering complete")
	case peer.RemoteTrackReceived:
		m.emit(RemoteTrackAdded{Track: message.Track})
	case peer.RemoteTrackEnded:
		m.logger.WithField("track_id", message.TrackID).Debug("remote track ended")
	default:
		m.logger.Errorf("unknown peer message type: %T", message)
	}
}

func (m *Manager) onConnectedToPeer(s *session) {
	if s.state == StateConnected {
		return
	}

	s.state = StateConnected
	s.telemetry.AddEvent("connected")
	m.logger.WithField("remote", s.remoteUserID).Info("call connected")
	m.emit(StateChanged{State: StateConnected})
}

func (m *Manager) onConnectionFailed(s *session) {
	s.telemetry.AddError(errTransportFailed)
	m.emit(CallEnded{Remote: s.remoteUserID})
	m.teardownSession(true)
}
