package call

import (
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/remindly/callcore/pkg/media"
	"github.com/remindly/callcore/pkg/signaling"
)

// Routes an inbound signaling message. The active session has routing
// priority: negotiation messages belonging to it never reach the incoming
// call handling, and vice versa.
func (m *Manager) processSignalMessage(message *signaling.Message) {
	// Our own frames may be echoed back by the relay.
	if message.SenderID == m.creds.UserID() {
		return
	}
	// Frames addressed to somebody else are not ours to act on.
	if message.TargetID != "" && message.TargetID != m.creds.UserID() {
		return
	}
	// Late frames from a room we already left.
	if message.RoomID != "" && m.roomID != "" && message.RoomID != m.roomID {
		m.logger.WithField("room_id", message.RoomID).Debug("dropping message from a stale room")
		return
	}

	switch message.Type {
	case signaling.TypeCallStart:
		m.onCallStart(message)
	case signaling.TypeOffer:
		m.onOffer(message)
	case signaling.TypeAnswer:
		m.onAnswer(message)
	case signaling.TypeICECandidate:
		m.onCandidate(message)
	case signaling.TypeCallAccept:
		m.onCallAccept(message)
	case signaling.TypeCallEnd:
		m.onCallEnd(message)
	case signaling.TypePeerDisconnected:
		m.onPeerDisconnected(message)
	case signaling.TypeError:
		m.onRelayError(message)
	default:
		m.logger.Warnf("unknown signaling message type: %s", message.Type)
	}
}

func (m *Manager) processSignalingState(state signaling.State) {
	m.lastSignalingState = state
	m.emit(SignalingStateChanged{State: state})
}

func (m *Manager) onCallStart(message *signaling.Message) {
	if m.session != nil {
		if message.SenderID == m.session.remoteUserID {
			// A retransmit from the party we're already on a call with; a
			// busy reply would tear down the live call on their side.
			m.logger.Debug("ignoring duplicate call-start from the current peer")
			return
		}

		// Busy: at most one call at a time.
		m.logger.WithField("caller", message.SenderID).Info("rejecting call-start, busy")
		m.sendTo(signaling.TypeCallEnd, message.SenderID, nil)
		return
	}

	if m.notice != nil || m.noticeLatched {
		m.logger.WithField("caller", message.SenderID).Debug("swallowing call-start, notice latched")
		return
	}

	data, err := message.CallStart()
	if err != nil {
		m.logger.WithError(err).Warn("malformed call-start payload")
		return
	}

	callType := media.CallType(data.CallType)
	if !callType.Valid() {
		callType = media.CallTypeAudio
	}

	callerUsername := data.CallerUsername
	if callerUsername == "" {
		callerUsername = message.Username
	}

	m.presentNotice(Notice{
		CallerID:       message.SenderID,
		CallerUsername: callerUsername,
		CallType:       callType,
		ReceivedAt:     time.Now(),
	})
}

func (m *Manager) onOffer(message *signaling.Message) {
	if s := m.session; s != nil {
		if message.SenderID != s.remoteUserID {
			m.logger.WithField("sender", message.SenderID).Debug("dropping offer from a non-remote sender")
			return
		}

		if !s.answerer {
			// Glare: both sides offered. We placed the call, so our offer wins.
			m.logger.Warn("ignoring remote offer while we are the offerer")
			return
		}

		if s.remoteDescriptionSet {
			m.logger.Warn("ignoring repeated offer")
			return
		}

		offer, err := message.SessionDescription()
		if err != nil {
			m.logger.WithError(err).Warn("malformed offer payload")
			return
		}

		if s.peer == nil {
			// Local media is still being acquired.
			if s.pendingOffer != nil {
				m.logger.Warn("ignoring repeated offer")
				return
			}
			s.pendingOffer = &offer
			return
		}

		m.applyRemoteOffer(s, offer)
		return
	}

	// No session yet: an early offer for the call that is still ringing is
	// staged and handed over if the user accepts. Only the first one counts.
	if m.notice != nil && message.SenderID == m.notice.CallerID {
		if m.stagedOffer != nil {
			m.logger.Warn("second offer for a ringing call, ignoring")
			return
		}
		staged := *message
		m.stagedOffer = &staged
		return
	}

	m.logger.WithField("sender", message.SenderID).Debug("dropping offer without a matching call")
}

func (m *Manager) onAnswer(message *signaling.Message) {
	s := m.session
	if s == nil || s.answerer || message.SenderID != s.remoteUserID {
		m.logger.WithField("sender", message.SenderID).Debug("dropping unexpected answer")
		return
	}

	if s.peer == nil {
		// We never sent an offer yet, so this answer can't be for us.
		m.logger.Warn("dropping answer, no offer was sent")
		return
	}

	if s.remoteDescriptionSet {
		m.logger.Warn("ignoring repeated answer")
		return
	}

	answer, err := message.SessionDescription()
	if err != nil {
		m.logger.WithError(err).Warn("malformed answer payload")
		return
	}

	if err := s.peer.ProcessSDPAnswer(answer); err != nil {
		m.failSession(err)
		return
	}

	s.remoteDescriptionSet = true
	m.drainPendingCandidates(s)
	// Still `calling`: connected is only entered when the transport is up.
}

func (m *Manager) onCandidate(message *signaling.Message) {
	if s := m.session; s != nil && message.SenderID == s.remoteUserID {
		candidate, err := message.ICECandidate()
		if err != nil {
			m.logger.WithError(err).Warn("malformed ICE candidate payload")
			return
		}

		if s.remoteDescriptionSet && s.peer != nil {
			s.peer.ProcessNewRemoteCandidates([]webrtc.ICECandidateInit{candidate})
			return
		}

		// The remote description is not in place yet, queue the candidate.
		s.pendingRemoteCandidates = append(s.pendingRemoteCandidates, candidate)
		return
	}

	if m.notice != nil && message.SenderID == m.notice.CallerID {
		m.stagedCandidates = append(m.stagedCandidates, *message)
		return
	}

	m.logger.WithField("sender", message.SenderID).Debug("dropping candidate without a matching call")
}

func (m *Manager) onCallAccept(message *signaling.Message) {
	s := m.session
	if s == nil || s.answerer {
		m.logger.WithField("sender", message.SenderID).Debug("dropping unexpected call-accept")
		return
	}

	if message.SenderID == s.remoteUserID {
		// The party we offered to picked up; their answer will follow.
		m.logger.Debug("call accepted by the callee")
		return
	}

	if s.state == StateConnected || s.remoteDescriptionSet {
		// Somebody else picked up after negotiation settled: they're late.
		m.logger.WithField("sender", message.SenderID).Info("rejecting late call-accept, busy")
		m.sendTo(signaling.TypeCallEnd, message.SenderID, nil)
		return
	}

	// A different room member picked up before the original target reacted.
	// Re-target the session: repeat our offer and everything gathered so far.
	data, err := message.CallAccept()
	if err != nil {
		m.logger.WithError(err).Warn("malformed call-accept payload")
	}

	m.logger.WithField("accepter", message.SenderID).Info("call accepted by another room member, re-targeting")

	s.remoteUserID = message.SenderID
	if data.AccepterUsername != "" {
		s.remoteUsername = data.AccepterUsername
	} else {
		s.remoteUsername = message.Username
	}
	s.pendingRemoteCandidates = nil

	if s.localOffer != nil {
		m.sendTo(signaling.TypeOffer, s.remoteUserID, s.localOffer)
		for _, candidate := range s.localCandidates {
			m.sendTo(signaling.TypeICECandidate, s.remoteUserID, candidate)
		}
	}
}

func (m *Manager) onCallEnd(message *signaling.Message) {
	if s := m.session; s != nil && message.SenderID == s.remoteUserID {
		m.emit(CallEnded{Remote: s.remoteUserID})
		m.teardownSession(false)
		return
	}

	if m.notice != nil && message.SenderID == m.notice.CallerID {
		// The caller gave up before we decided.
		m.clearNotice(DismissedCancelled)
		return
	}
}

func (m *Manager) onPeerDisconnected(message *signaling.Message) {
	// The relay noticed the other party's socket going away. For an
	// established call this is informational (media flows peer to peer), but
	// a ringing or negotiating call can't proceed without them.
	if s := m.session; s != nil && message.SenderID == s.remoteUserID && s.state != StateConnected {
		m.emit(CallEnded{Remote: s.remoteUserID})
		m.teardownSession(false)
		return
	}

	if m.notice != nil && message.SenderID == m.notice.CallerID {
		m.clearNotice(DismissedCancelled)
	}
}

func (m *Manager) onRelayError(message *signaling.Message) {
	data, err := message.ErrorData()
	if err != nil {
		m.logger.WithError(err).Warn("malformed relay error payload")
		return
	}

	m.logger.WithField("error", data.Error).Warnf("relay error: %s", data.Message)

	if s := m.session; s != nil && s.state == StateCalling && data.Error == signaling.ErrorTargetNotFound {
		m.failSession(ErrTargetNotFound)
	}
}
