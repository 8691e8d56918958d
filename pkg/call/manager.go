package call

import (
	"errors"
	"sync"
	"time"

	"github.com/remindly/callcore/pkg/channel"
	"github.com/remindly/callcore/pkg/media"
	"github.com/remindly/callcore/pkg/peer"
	"github.com/remindly/callcore/pkg/signaling"
	"github.com/remindly/callcore/pkg/watchdog"
	"github.com/remindly/callcore/pkg/webrtcext"
	"github.com/remindly/callcore/pkg/worker"
	"github.com/sirupsen/logrus"
)

var (
	ErrCallInProgress        = errors.New("a call is already in progress")
	ErrInvalidCallType       = errors.New("invalid call type")
	ErrNoCallTargets         = errors.New("no call targets")
	ErrSignalingNotConnected = errors.New("signaling channel is not connected")
	ErrTargetNotFound        = errors.New("call target is not in the room")
)

// Signaler is the wire the manager talks through. Satisfied by
// `signaling.Channel`; faked in tests.
type Signaler interface {
	Connect(roomID string)
	Disconnect()
	Send(message *signaling.Message) bool
	OnMessage(handler signaling.MessageHandler)
	OnStateChange(handler signaling.StateHandler)
}

// Manager drives at most one call at a time: it owns the session state
// machine, coordinates incoming call notices and routes signaling messages.
// All state is confined to a single event loop; the public methods only post
// commands to it and the outside world observes it via `Notifications`.
type Manager struct {
	config            Config
	creds             signaling.Credentials
	signaler          Signaler
	connectionFactory *webrtcext.PeerConnectionFactory
	mediaProvider     media.Provider
	logger            *logrus.Entry

	commands        chan func()
	signals         chan signaling.Message
	signalingStates chan signaling.State
	peerEvents      chan channel.Message[string, peer.MessageContent]
	notifications   chan Notification

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// Sending goes through a worker so that a stuck socket write never
	// blocks the event loop.
	sendWorker *worker.Worker[*signaling.Message]

	// Everything below is owned by the event loop.
	roomID             string
	lastSignalingState signaling.State
	epoch              uint64
	session            *session
	notice             *Notice
	noticeLatched      bool
	stagedOffer        *signaling.Message
	stagedCandidates   []signaling.Message
	ringing            *watchdog.Watchdog
}

func NewManager(
	config Config,
	creds signaling.Credentials,
	signaler Signaler,
	connectionFactory *webrtcext.PeerConnectionFactory,
	mediaProvider media.Provider,
	logger *logrus.Entry,
) *Manager {
	manager := &Manager{
		config:            config.withDefaults(),
		creds:             creds,
		signaler:          signaler,
		connectionFactory: connectionFactory,
		mediaProvider:     mediaProvider,
		logger:            logger,
		commands:          make(chan func(), 64),
		signals:           make(chan signaling.Message, 128),
		signalingStates:   make(chan signaling.State, 16),
		peerEvents:        make(chan channel.Message[string, peer.MessageContent], 128),
		notifications:     make(chan Notification, 64),
		stop:              make(chan struct{}),
		done:              make(chan struct{}),
	}

	manager.sendWorker = worker.StartWorker(worker.Config[*signaling.Message]{
		ChannelSize: 128,
		Timeout:     time.Hour,
		OnTimeout:   func() {},
		OnTask: func(message *signaling.Message) {
			if !manager.signaler.Send(message) {
				manager.logger.WithField("type", message.Type).Warn("signaling message not sent")
			}
		},
	})

	signaler.OnMessage(func(message *signaling.Message) {
		select {
		case manager.signals <- *message:
		default:
			manager.logger.Warn("signaling queue overflow, dropping message")
		}
	})

	signaler.OnStateChange(func(state signaling.State) {
		select {
		case manager.signalingStates <- state:
		default:
			manager.logger.Warn("signaling state queue overflow")
		}
	})

	// Start the manager's "main loop".
	go manager.processEvents()

	return manager
}

// Notifications the manager emits towards the application. The channel is
// never closed; slow consumers lose notifications rather than block calls.
func (m *Manager) Notifications() <-chan Notification {
	return m.notifications
}

// Connect joins the given room's signaling. Switching rooms ends the active
// call and dismisses any pending notice first.
func (m *Manager) Connect(roomID string) {
	m.post(func() { m.connect(roomID) })
}

// Disconnect leaves signaling, ending the active call and dismissing any
// pending notice.
func (m *Manager) Disconnect() {
	m.post(func() { m.disconnect() })
}

// PlaceCall starts an outgoing call towards the given room members. Every
// member is sent a call-start so all of them ring, but negotiation happens
// with the first target; whoever picks up first becomes the remote party.
// Progress and failures are reported via notifications.
func (m *Manager) PlaceCall(targets []string, callType media.CallType) {
	m.post(func() { m.placeCall(targets, callType) })
}

// AcceptCall accepts the pending incoming call, if any.
func (m *Manager) AcceptCall() {
	m.post(func() { m.acceptCall() })
}

// DeclineCall declines the pending incoming call, if any.
func (m *Manager) DeclineCall() {
	m.post(func() { m.declineCall(DismissedDeclined) })
}

// HangUp ends the active call, if any.
func (m *Manager) HangUp() {
	m.post(func() { m.hangUp() })
}

// SetAudioEnabled flips the microphone of the active call.
func (m *Manager) SetAudioEnabled(enabled bool) {
	m.post(func() {
		if m.session != nil && m.session.localMedia != nil {
			m.session.localMedia.SetAudioEnabled(enabled)
		}
	})
}

// SetVideoEnabled flips the camera of the active call.
func (m *Manager) SetVideoEnabled(enabled bool) {
	m.post(func() {
		if m.session != nil && m.session.localMedia != nil {
			m.session.localMedia.SetVideoEnabled(enabled)
		}
	})
}

// CurrentState returns the session state as seen by the event loop.
func (m *Manager) CurrentState() State {
	reply := make(chan State, 1)
	m.post(func() {
		if m.session == nil {
			reply <- StateIdle
		} else {
			reply <- m.session.state
		}
	})

	select {
	case state := <-reply:
		return state
	case <-m.done:
		return StateIdle
	}
}

// Close shuts the manager down, ending the active call. The manager must not
// be used afterwards.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
	m.sendWorker.Stop()
	m.signaler.Disconnect()
}

// Listen on messages from incoming channels and process them.
// This is essentially the main loop of the manager.
func (m *Manager) processEvents() {
	defer close(m.done)

	for {
		select {
		case <-m.stop:
			m.clearNotice(DismissedCancelled)
			m.teardownSession(true)
			return
		case command := <-m.commands:
			command()
		case message := <-m.signals:
			m.processSignalMessage(&message)
		case state := <-m.signalingStates:
			m.processSignalingState(state)
		case event := <-m.peerEvents:
			m.processPeerEvent(event)
		}
	}
}

// Posts a command to the event loop. Returns false if the manager is stopped,
// in which case the command will never run.
func (m *Manager) post(command func()) bool {
	select {
	case m.commands <- command:
		return true
	case <-m.stop:
		return false
	}
}

func (m *Manager) emit(notification Notification) {
	select {
	case m.notifications <- notification:
	default:
		m.logger.Warnf("notification queue overflow, dropping %T", notification)
	}
}

func (m *Manager) sendTo(msgType signaling.Type, targetID string, data interface{}) {
	message, err := signaling.NewMessage(msgType, targetID, data)
	if err != nil {
		m.logger.WithError(err).Errorf("failed to construct %s message", msgType)
		return
	}

	if err := m.sendWorker.Send(message); err != nil {
		m.logger.WithError(err).Errorf("failed to enqueue %s message", msgType)
	}
}
