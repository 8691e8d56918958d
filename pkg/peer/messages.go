package peer

import (
	"github.com/pion/webrtc/v3"
)

// Due to the limitation of Go, we're using the `interface{}` to be able to switch on the actual
// type of the message at runtime. The underlying types do not necessarily need to be structures.
type MessageContent = interface{}

// The transport to the remote party is established. This is the signal that
// the call is truly connected; receiving an SDP answer alone is not.
type ConnectedToPeer struct{}

// The transport failed or was torn down by the remote side.
type ConnectionFailed struct{}

type NewICECandidate struct {
	Candidate *webrtc.ICECandidate
}

type ICEGatheringComplete struct{}

// First RTP packet of a new inbound track arrived.
type RemoteTrackReceived struct {
	Track    *webrtc.TrackRemote
	Receiver *webrtc.RTPReceiver
}

// The inbound track stopped producing data.
type RemoteTrackEnded struct {
	TrackID string
}
