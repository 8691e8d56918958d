package call

import (
	"github.com/pion/webrtc/v3"
	"github.com/remindly/callcore/pkg/media"
	"github.com/remindly/callcore/pkg/peer"
	"github.com/remindly/callcore/pkg/telemetry"
)

// A single 1:1 call, either being negotiated or established. All fields are
// owned by the manager's event loop.
type session struct {
	// Identifies the session towards the peer event sink, so that events of
	// an already terminated peer connection can be told apart from the
	// current one.
	id string
	// Guards asynchronous continuations (media acquisition) against
	// completing into a session that has been replaced in the meantime.
	epoch uint64

	state    State
	callType media.CallType
	// True when we accepted the call rather than placed it.
	answerer bool

	remoteUserID   string
	remoteUsername string

	localMedia *media.LocalMedia
	peer       *peer.Peer[string]

	// Our current offer and the candidates we gathered so far, kept around so
	// the call can be re-offered if a different room member picks up.
	localOffer      *webrtc.SessionDescription
	localCandidates []webrtc.ICECandidateInit

	// A remote offer that arrived before local media (and thus the peer
	// connection) was ready.
	pendingOffer *webrtc.SessionDescription
	// Remote candidates that arrived before the remote description. Applied
	// in arrival order once the description is set.
	pendingRemoteCandidates []webrtc.ICECandidateInit
	remoteDescriptionSet    bool

	telemetry *telemetry.Telemetry
}
