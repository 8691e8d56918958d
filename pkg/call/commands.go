package call

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/remindly/callcore/pkg/channel"
	"github.com/remindly/callcore/pkg/media"
	"github.com/remindly/callcore/pkg/peer"
	"github.com/remindly/callcore/pkg/signaling"
	"github.com/remindly/callcore/pkg/telemetry"
	"github.com/remindly/callcore/pkg/watchdog"
	"go.opentelemetry.io/otel/attribute"
)

func (m *Manager) connect(roomID string) {
	if m.roomID != roomID {
		// Switching rooms invalidates everything tied to the old one.
		m.clearNotice(DismissedCancelled)
		m.teardownSession(true)
		m.roomID = roomID
	}

	m.signaler.Connect(roomID)
}

func (m *Manager) disconnect() {
	m.clearNotice(DismissedCancelled)
	m.teardownSession(true)
	m.roomID = ""
	m.signaler.Disconnect()
}

func (m *Manager) placeCall(targets []string, callType media.CallType) {
	if m.session != nil {
		m.logger.Warn("refusing to place a call, another one is in progress")
		m.emit(CallFailed{ErrCallInProgress})
		return
	}

	if !callType.Valid() {
		m.emit(CallFailed{ErrInvalidCallType})
		return
	}

	if len(targets) == 0 {
		m.emit(CallFailed{ErrNoCallTargets})
		return
	}

	if m.lastSignalingState != signaling.StateOpen {
		m.emit(CallFailed{ErrSignalingNotConnected})
		return
	}

	// The offer goes to the first target; the rest only ring until one of
	// them picks up and the session re-targets to the accepter.
	s := m.newSession(targets[0], "", callType, false)
	m.session = s
	m.emit(StateChanged{StateCalling})

	for _, target := range targets {
		m.sendTo(signaling.TypeCallStart, target, signaling.CallStartData{
			CallerUsername: m.creds.Username(),
			CallType:       string(callType),
		})
	}

	m.acquireMedia(s)
}

func (m *Manager) acceptCall() {
	if m.notice == nil {
		m.logger.Warn("no pending incoming call to accept")
		return
	}
	if m.session != nil {
		// Can't happen while the notice exists, but guard anyway.
		m.logger.Error("pending notice while a session exists")
		return
	}

	notice := *m.notice
	stagedOffer := m.stagedOffer
	stagedCandidates := m.stagedCandidates
	m.clearNotice(DismissedAccepted)

	s := m.newSession(notice.CallerID, notice.CallerUsername, notice.CallType, true)

	// Staged-offer handoff: negotiation material that arrived while ringing
	// belongs to the new session now.
	if stagedOffer != nil {
		if offer, err := stagedOffer.SessionDescription(); err == nil {
			s.pendingOffer = &offer
		} else {
			m.logger.WithError(err).Warn("discarding malformed staged offer")
		}
	}
	for _, message := range stagedCandidates {
		if candidate, err := message.ICECandidate(); err == nil {
			s.pendingRemoteCandidates = append(s.pendingRemoteCandidates, candidate)
		} else {
			m.logger.WithError(err).Warn("discarding malformed staged candidate")
		}
	}

	m.session = s
	m.emit(StateChanged{StateCalling})

	m.sendTo(signaling.TypeCallAccept, notice.CallerID, signaling.CallAcceptData{
		AccepterUsername: m.creds.Username(),
	})

	m.acquireMedia(s)
}

func (m *Manager) declineCall(reason DismissReason) {
	if m.notice == nil {
		return
	}

	m.sendTo(signaling.TypeCallEnd, m.notice.CallerID, nil)
	m.clearNotice(reason)
}

func (m *Manager) hangUp() {
	if m.session == nil {
		return
	}

	m.emit(CallEnded{Remote: m.session.remoteUserID})
	m.teardownSession(true)
}

func (m *Manager) newSession(remoteUserID, remoteUsername string, callType media.CallType, answerer bool) *session {
	m.epoch++

	direction := "outgoing"
	if answerer {
		direction = "incoming"
	}

	s := &session{
		id:             uuid.NewString(),
		epoch:          m.epoch,
		state:          StateCalling,
		callType:       callType,
		answerer:       answerer,
		remoteUserID:   remoteUserID,
		remoteUsername: remoteUsername,
	}

	s.telemetry = telemetry.NewTelemetry(
		context.Background(),
		"call_session",
		attribute.String("session_id", s.id),
		attribute.String("direction", direction),
		attribute.String("call_type", string(callType)),
	)

	return s
}

// Kicks off local media acquisition off the loop. The continuation is posted
// back as a command and checks the epoch, since the session may be long gone
// by the time capture is ready.
func (m *Manager) acquireMedia(s *session) {
	epoch := s.epoch
	callType := s.callType

	go func() {
		localMedia, err := m.mediaProvider.AcquireMedia(callType)
		posted := m.post(func() { m.mediaAcquired(epoch, localMedia, err) })
		if !posted && localMedia != nil {
			localMedia.Close()
		}
	}()
}

func (m *Manager) mediaAcquired(epoch uint64, localMedia *media.LocalMedia, err error) {
	s := m.session
	if s == nil || s.epoch != epoch {
		// The call was gone before capture finished.
		if localMedia != nil {
			localMedia.Close()
		}
		return
	}

	if err != nil {
		m.failSession(fmt.Errorf("failed to acquire local media: %w", err))
		return
	}

	s.localMedia = localMedia

	sink := channel.NewSink[string, peer.MessageContent](s.id, m.peerEvents)
	remotePeer, err := peer.NewPeer(
		m.connectionFactory,
		localMedia.Tracks(),
		sink,
		m.logger.WithField("session_id", s.id),
	)
	if err != nil {
		m.failSession(err)
		return
	}
	s.peer = remotePeer

	m.emit(LocalMediaReady{Media: localMedia})

	if s.answerer {
		if s.pendingOffer != nil {
			offer := *s.pendingOffer
			s.pendingOffer = nil
			m.applyRemoteOffer(s, offer)
		}
		// Otherwise the offer is still in flight and will be applied on arrival.
		return
	}

	offer, err := remotePeer.CreateOffer()
	if err != nil {
		m.failSession(err)
		return
	}

	s.localOffer = offer
	m.sendTo(signaling.TypeOffer, s.remoteUserID, offer)
}

func (m *Manager) applyRemoteOffer(s *session, offer webrtc.SessionDescription) {
	answer, err := s.peer.ProcessSDPOffer(offer)
	if err != nil {
		m.failSession(err)
		return
	}

	s.remoteDescriptionSet = true
	m.sendTo(signaling.TypeAnswer, s.remoteUserID, answer)
	m.drainPendingCandidates(s)
}

// Applies the remote candidates that were queued while the remote description
// was missing, preserving their arrival order.
func (m *Manager) drainPendingCandidates(s *session) {
	if len(s.pendingRemoteCandidates) == 0 {
		return
	}

	s.peer.ProcessNewRemoteCandidates(s.pendingRemoteCandidates)
	s.pendingRemoteCandidates = nil
}

func (m *Manager) ringingTimedOut() {
	if m.notice == nil {
		return
	}

	m.logger.WithField("caller", m.notice.CallerID).Info("incoming call timed out")
	m.sendTo(signaling.TypeCallEnd, m.notice.CallerID, nil)
	m.clearNotice(DismissedTimeout)
}

func (m *Manager) presentNotice(notice Notice) {
	m.notice = &notice
	m.noticeLatched = true

	m.ringing = watchdog.NewWatchdog(m.config.RingingTimeout, func() {
		m.post(m.ringingTimedOut)
	})
	m.ringing.Start()

	m.emit(IncomingCall{Notice: notice})
}

// Removes the pending notice along with everything staged for it. The dedupe
// latch stays up for the grace period, so the caller's retries don't make the
// same call ring twice.
func (m *Manager) clearNotice(reason DismissReason) {
	if m.notice == nil {
		return
	}

	m.notice = nil
	m.stagedOffer = nil
	m.stagedCandidates = nil

	if m.ringing != nil {
		m.ringing.Close()
		m.ringing = nil
	}

	m.emit(NoticeDismissed{Reason: reason})

	time.AfterFunc(m.config.NoticeGracePeriod, func() {
		m.post(func() { m.noticeLatched = false })
	})
}

func (m *Manager) failSession(err error) {
	s := m.session
	if s == nil {
		return
	}

	m.logger.WithError(err).Error("call session failed")
	s.telemetry.Fail(err)
	m.emit(CallFailed{Err: err})
	m.teardownSession(true)
}

// Tears the active session down: terminates the peer connection, releases
// local media and returns to idle. Safe to call with no session.
func (m *Manager) teardownSession(sendCallEnd bool) {
	s := m.session
	if s == nil {
		return
	}
	m.session = nil

	if sendCallEnd && s.remoteUserID != "" {
		m.sendTo(signaling.TypeCallEnd, s.remoteUserID, nil)
	}

	if s.peer != nil {
		s.peer.Terminate()
	}
	if s.localMedia != nil {
		s.localMedia.Close()
	}
	s.telemetry.End()

	m.emit(StateChanged{State: StateIdle})
}
