package call

// State of the call session. A pending incoming call (ringing) is not a
// session state: until the callee accepts, the call exists only as a notice.
type State int

const (
	// No session.
	StateIdle State = iota
	// A session exists and is negotiating, i.e. we placed or accepted a call
	// but the transport is not established yet.
	StateCalling
	// The transport to the remote party is established. Entered only once the
	// peer connection reports so; receiving an SDP answer is not enough.
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCalling:
		return "calling"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
