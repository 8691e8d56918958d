package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/remindly/callcore/pkg/signaling"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Hub routes signaling messages between the clients of each room. All room
// state is owned by the hub's event loop; clients talk to it via channels.
type Hub struct {
	logger *logrus.Entry

	register       chan *Client
	unregister     chan *Client
	directMessages chan *signaling.Message

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// Owned by the event loop: room id -> user id -> client.
	rooms map[string]map[string]*Client
}

func NewHub(logger *logrus.Entry) *Hub {
	hub := &Hub{
		logger:         logger,
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		directMessages: make(chan *signaling.Message, 256),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
		rooms:          make(map[string]map[string]*Client),
	}

	go hub.processEvents()
	return hub
}

// Close stops the hub's loop and closes every client's outbound queue.
func (h *Hub) Close() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

func (h *Hub) processEvents() {
	defer close(h.done)

	for {
		select {
		case <-h.stop:
			for _, room := range h.rooms {
				for _, client := range room {
					close(client.messages)
				}
			}
			h.rooms = nil
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case message := <-h.directMessages:
			h.routeMessage(message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	room := h.rooms[client.roomID]
	if room == nil {
		room = make(map[string]*Client)
		h.rooms[client.roomID] = room
		h.logger.WithField("room_id", client.roomID).Info("room created")
	}

	// A reconnect may beat the old socket's cleanup; the newer one wins.
	if old, exists := room[client.userID]; exists {
		close(old.messages)
	}

	room[client.userID] = client
	h.logger.WithFields(logrus.Fields{
		"room_id": client.roomID,
		"user_id": client.userID,
		"members": members(room),
	}).Info("client joined")
}

func members(room map[string]*Client) []string {
	ids := maps.Keys(room)
	slices.Sort(ids)
	return ids
}

func (h *Hub) unregisterClient(client *Client) {
	room, ok := h.rooms[client.roomID]
	if !ok {
		return
	}

	current, exists := room[client.userID]
	if !exists || current != client {
		// Already replaced by a newer connection of the same user.
		return
	}

	delete(room, client.userID)
	close(client.messages)

	h.logger.WithFields(logrus.Fields{
		"room_id": client.roomID,
		"user_id": client.userID,
		"clients": len(room),
	}).Info("client left")

	// Let the others know, so that calls ringing towards or negotiating with
	// this user can be wound down.
	notice := &signaling.Message{
		ID:        uuid.NewString(),
		Type:      signaling.TypePeerDisconnected,
		RoomID:    client.roomID,
		SenderID:  client.userID,
		Username:  client.username,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for _, other := range room {
		other.trySend(notice)
	}

	if len(room) == 0 {
		delete(h.rooms, client.roomID)
		h.logger.WithField("room_id", client.roomID).Info("room deleted")
	}
}

func (h *Hub) routeMessage(message *signaling.Message) {
	room, ok := h.rooms[message.RoomID]
	if !ok {
		h.logger.WithField("room_id", message.RoomID).Warn("message for an unknown room")
		return
	}

	target, ok := room[message.TargetID]
	if !ok {
		h.logger.WithFields(logrus.Fields{
			"room_id":   message.RoomID,
			"target_id": message.TargetID,
		}).Warn("target client not found")

		// Tell the sender, so a pending call can fail fast instead of
		// waiting for a timeout.
		if sender, ok := room[message.SenderID]; ok {
			sender.trySend(errorMessage(message, signaling.ErrorTargetNotFound, "target user is not connected"))
		}
		return
	}

	if !target.trySend(message) {
		h.logger.WithField("target_id", message.TargetID).Warn("target queue full, dropping message")
	}
}

func errorMessage(cause *signaling.Message, code, text string) *signaling.Message {
	message, err := signaling.NewMessage(signaling.TypeError, cause.SenderID, signaling.ErrorData{
		Error:   code,
		Message: text,
	})
	if err != nil {
		// Marshalling a plain struct cannot fail.
		panic(err)
	}

	message.ID = uuid.NewString()
	message.RoomID = cause.RoomID
	message.SenderID = "system"
	return message
}
