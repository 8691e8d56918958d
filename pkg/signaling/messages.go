package signaling

import (
	"encoding/json"
	"time"

	"github.com/pion/webrtc/v3"
)

// Type of a signaling message exchanged over the relay.
type Type string

const (
	TypeOffer        Type = "offer"
	TypeAnswer       Type = "answer"
	TypeICECandidate Type = "ice-candidate"
	TypeCallStart    Type = "call-start"
	TypeCallAccept   Type = "call-accept"
	TypeCallEnd      Type = "call-end"
	// Sent by the relay itself when a participant's socket goes away.
	TypePeerDisconnected Type = "peer-disconnected"
	// Sent by the relay itself when a message could not be delivered.
	TypeError Type = "error"
)

// The wire unit exchanged over the relay. Frames are UTF-8 JSON.
// The relay stamps `id`, `room_id`, `sender_id`, `username` and `created_at`
// on every forwarded frame, so the client only fills `type`, `target_id`
// and `data` when sending.
type Message struct {
	ID       string `json:"id,omitempty"`
	Type     Type   `json:"type"`
	RoomID   string `json:"room_id,omitempty"`
	SenderID string `json:"sender_id,omitempty"`
	TargetID string `json:"target_id,omitempty"`
	Username string `json:"username,omitempty"`
	// Payload, shape depends on `Type`: an SDP blob for offer/answer, ICE
	// candidate fields for ice-candidate, `CallStartData` for call-start.
	Data json.RawMessage `json:"data,omitempty"`
	// Sender-assigned send time. Used for display and debugging only, never
	// for ordering (ordering is FIFO per connection, not across reconnects).
	CreatedAt string `json:"created_at,omitempty"`
}

// Payload of a `call-start` message.
type CallStartData struct {
	CallerUsername string `json:"caller_username"`
	CallType       string `json:"call_type"`
}

// Payload of a `call-accept` message.
type CallAcceptData struct {
	AccepterUsername string `json:"accepter_username"`
}

// Payload of a relay-originated `error` message.
type ErrorData struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

const ErrorTargetNotFound = "target_not_found"

func NewMessage(msgType Type, targetID string, data interface{}) (*Message, error) {
	message := &Message{
		Type:      msgType,
		TargetID:  targetID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		message.Data = payload
	}

	return message, nil
}

// The SDP payload of an offer/answer message. The JSON shape matches the
// serialization of a browser's RTCSessionDescription, so Go and web peers
// can interoperate over the same relay.
func (m *Message) SessionDescription() (webrtc.SessionDescription, error) {
	var description webrtc.SessionDescription
	err := json.Unmarshal(m.Data, &description)
	return description, err
}

// The candidate payload of an ice-candidate message (RTCIceCandidate JSON).
func (m *Message) ICECandidate() (webrtc.ICECandidateInit, error) {
	var candidate webrtc.ICECandidateInit
	err := json.Unmarshal(m.Data, &candidate)
	return candidate, err
}

func (m *Message) CallAccept() (CallAcceptData, error) {
	var data CallAcceptData
	err := json.Unmarshal(m.Data, &data)
	return data, err
}

func (m *Message) CallStart() (CallStartData, error) {
	var data CallStartData
	err := json.Unmarshal(m.Data, &data)
	return data, err
}

func (m *Message) ErrorData() (ErrorData, error) {
	var data ErrorData
	err := json.Unmarshal(m.Data, &data)
	return data, err
}
