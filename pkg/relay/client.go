package relay

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/remindly/callcore/pkg/signaling"
	"github.com/sirupsen/logrus"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
	readTimeout  = 60 * time.Second

	clientQueueSize = 16
)

// A single client connection of the relay.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	logger *logrus.Entry

	userID   string
	username string
	roomID   string

	// Outbound queue, closed by the hub on unregister.
	messages chan *signaling.Message
}

func newClient(hub *Hub, conn *websocket.Conn, userID, username, roomID string, logger *logrus.Entry) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		logger:   logger,
		userID:   userID,
		username: username,
		roomID:   roomID,
		messages: make(chan *signaling.Message, clientQueueSize),
	}
}

// Queues a message for delivery without blocking the hub loop.
// Must only be called from the hub loop.
func (c *Client) trySend(message *signaling.Message) bool {
	select {
	case c.messages <- message:
		return true
	default:
		return false
	}
}

// Drains the outbound queue into the socket and keeps the connection alive
// with periodic pings.
func (c *Client) writePump() {
	defer c.conn.Close()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.messages:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.logger.WithError(err).Warn("write failed")
				}
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Reads frames from the socket, stamps the sender metadata and hands them to
// the hub for routing. Returns when the connection dies.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		var message signaling.Message
		if err := c.conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WithError(err).Warn("read failed")
			}
			return
		}

		c.conn.SetReadDeadline(time.Now().Add(readTimeout))

		// The relay is the authority on who sent what and when; whatever the
		// client put into these fields is overwritten.
		message.ID = uuid.NewString()
		message.RoomID = c.roomID
		message.SenderID = c.userID
		message.Username = c.username
		message.CreatedAt = time.Now().UTC().Format(time.RFC3339)

		if message.TargetID == "" {
			c.logger.Debug("dropping message without target_id")
			continue
		}

		select {
		case c.hub.directMessages <- &message:
		case <-c.hub.stop:
			return
		}
	}
}
