package call_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/remindly/callcore/pkg/call"
	"github.com/remindly/callcore/pkg/media"
	"github.com/remindly/callcore/pkg/signaling"
	"github.com/remindly/callcore/pkg/webrtcext"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// One end of an in-memory relay connecting two managers directly. Messages
// are stamped and delivered synchronously to the other end's handler, which
// preserves the per-connection FIFO ordering the real relay provides.
type loopEnd struct {
	userID   string
	username string
	other    *loopEnd

	mutex        sync.Mutex
	room         string
	handler      signaling.MessageHandler
	stateHandler signaling.StateHandler
}

func loopPair(aliceID, bobID string) (*loopEnd, *loopEnd) {
	alice := &loopEnd{userID: aliceID, username: "alice"}
	bob := &loopEnd{userID: bobID, username: "bob"}
	alice.other = bob
	bob.other = alice
	return alice, bob
}

func (e *loopEnd) Connect(roomID string) {
	e.mutex.Lock()
	e.room = roomID
	handler := e.stateHandler
	e.mutex.Unlock()

	if handler != nil {
		handler(signaling.StateOpen)
	}
}

func (e *loopEnd) Disconnect() {
	e.mutex.Lock()
	e.room = ""
	handler := e.stateHandler
	e.mutex.Unlock()

	if handler != nil {
		handler(signaling.StateDisconnected)
	}
}

func (e *loopEnd) Send(message *signaling.Message) bool {
	e.mutex.Lock()
	room := e.room
	e.mutex.Unlock()

	if room == "" {
		return false
	}

	stamped := *message
	stamped.ID = uuid.NewString()
	stamped.SenderID = e.userID
	stamped.Username = e.username
	stamped.RoomID = room

	e.other.mutex.Lock()
	handler := e.other.handler
	e.other.mutex.Unlock()

	if handler != nil {
		handler(&stamped)
	}
	return true
}

func (e *loopEnd) OnMessage(handler signaling.MessageHandler) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.handler = handler
}

func (e *loopEnd) OnStateChange(handler signaling.StateHandler) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.stateHandler = handler
}

func newLoopManager(t *testing.T, end *loopEnd) *call.Manager {
	t.Helper()

	factory, err := webrtcext.NewPeerConnectionFactory(webrtcext.Config{})
	require.NoError(t, err)

	creds := signaling.StaticCredentials{ID: end.userID, Name: end.username, Token: "secret"}
	logger := logrus.NewEntry(logrus.New()).WithField("user_id", end.userID)

	manager := call.NewManager(call.Config{}, creds, end, factory, media.NewSyntheticProvider(), logger)
	t.Cleanup(manager.Close)
	return manager
}

// Waits until the manager has processed the signaling channel opening, so
// that commands posted afterwards see the open state.
func waitSignalingOpen(t *testing.T, notifications <-chan call.Notification) {
	t.Helper()

	for {
		if state, ok := waitFor[call.SignalingStateChanged](t, notifications); ok && state.State == signaling.StateOpen {
			return
		}
	}
}

func waitConnected(t *testing.T, notifications <-chan call.Notification) {
	t.Helper()

	deadline := time.After(30 * time.Second)
	for {
		select {
		case notification := <-notifications:
			if state, ok := notification.(call.StateChanged); ok && state.State == call.StateConnected {
				return
			}
		case <-deadline:
			t.Fatal("call never connected")
		}
	}
}

// Drives a full call between two managers over an in-memory relay: place,
// ring, accept, negotiate and establish the transport over loopback ICE.
func TestLoopback_CallConnects(t *testing.T) {
	if testing.Short() {
		t.Skip("establishing a real transport takes a while")
	}

	aliceEnd, bobEnd := loopPair("@alice:test", "@bob:test")
	alice := newLoopManager(t, aliceEnd)
	bob := newLoopManager(t, bobEnd)

	alice.Connect(testRoom)
	bob.Connect(testRoom)

	aliceNotifications := alice.Notifications()
	bobNotifications := bob.Notifications()

	waitSignalingOpen(t, aliceNotifications)
	waitSignalingOpen(t, bobNotifications)

	alice.PlaceCall([]string{"@bob:test"}, media.CallTypeAudio)

	incoming, _ := waitFor[call.IncomingCall](t, bobNotifications)
	require.Equal(t, "@alice:test", incoming.Notice.CallerID)
	require.Equal(t, "alice", incoming.Notice.CallerUsername)

	bob.AcceptCall()

	waitConnected(t, aliceNotifications)
	waitConnected(t, bobNotifications)

	assert.Equal(t, call.StateConnected, alice.CurrentState())
	assert.Equal(t, call.StateConnected, bob.CurrentState())

	// Hanging up on one side idles both.
	alice.HangUp()

	ended, _ := waitFor[call.CallEnded](t, bobNotifications)
	assert.Equal(t, "@alice:test", ended.Remote)

	require.Eventually(t, func() bool {
		return alice.CurrentState() == call.StateIdle && bob.CurrentState() == call.StateIdle
	}, 10*time.Second, 50*time.Millisecond)
}
