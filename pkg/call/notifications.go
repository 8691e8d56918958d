package call

import (
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/remindly/callcore/pkg/media"
	"github.com/remindly/callcore/pkg/signaling"
)

// Due to the limitation of Go, we're using the `interface{}` to be able to switch on the actual
// type of the notification at runtime.
type Notification = interface{}

// The session state changed.
type StateChanged struct {
	State State
}

// An incoming call is ringing. The UI is expected to present the notice and
// answer with `AcceptCall` or `DeclineCall`; otherwise the call is declined
// automatically once the ringing timeout elapses.
type IncomingCall struct {
	Notice Notice
}

// The pending incoming call notice went away: the callee accepted or
// declined, the caller hung up, or the ringing timed out.
type NoticeDismissed struct {
	Reason DismissReason
}

// Local capture is up and its tracks are negotiated into the session.
type LocalMediaReady struct {
	Media *media.LocalMedia
}

// The remote party's track arrived.
type RemoteTrackAdded struct {
	Track *webrtc.TrackRemote
}

// The session ended, either by the remote party or locally.
type CallEnded struct {
	Remote string
}

// The session failed before or after being established.
type CallFailed struct {
	Err error
}

// The signaling channel changed state. Note that an established call keeps
// running on a lost signaling connection since media flows peer to peer.
type SignalingStateChanged struct {
	State signaling.State
}

// A pending incoming call, not yet accepted.
type Notice struct {
	CallerID       string
	CallerUsername string
	CallType       media.CallType
	ReceivedAt     time.Time
}

type DismissReason string

const (
	DismissedDeclined  DismissReason = "declined"
	DismissedCancelled DismissReason = "cancelled"
	DismissedTimeout   DismissReason = "timeout"
	DismissedAccepted  DismissReason = "accepted"
)
