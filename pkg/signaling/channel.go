package signaling

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	// The relay pings well within this window; a silent connection is dead.
	readTimeout = 60 * time.Second
)

// Connection state of the channel. `StateUnavailable` is distinct from
// `StateDisconnected`: it means the reconnect attempts have been exhausted and
// calls can be neither placed nor received until the next explicit `Connect`.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Handler for inbound messages. Registering a new handler replaces the old
// one; the channel is not a multi-subscriber fan-out.
type MessageHandler func(*Message)

// Handler for connection state transitions.
type StateHandler func(State)

// Channel owns a single logical WebSocket connection per active room and
// takes care of connecting, reconnecting with exponential backoff, sending
// and dispatching inbound messages to the registered handler.
//
// Retrying a failed connection is solely the reconnect loop's responsibility;
// individual transport errors are observed but never retried in place.
type Channel struct {
	config Config
	creds  Credentials
	logger *logrus.Entry

	mutex          sync.Mutex
	state          State
	roomID         string
	conn           *websocket.Conn
	generation     uint64
	attempts       int
	delays         *backoff.ExponentialBackOff
	reconnectTimer *time.Timer
	handler        MessageHandler
	stateHandler   StateHandler

	// Serializes writes to the socket; gorilla connections support one
	// concurrent writer only.
	writeMutex sync.Mutex

	stateEvents chan State
	closeOnce   sync.Once
}

func NewChannel(config Config, creds Credentials, logger *logrus.Entry) *Channel {
	config = config.withDefaults()

	channel := &Channel{
		config:      config,
		creds:       creds,
		logger:      logger,
		state:       StateDisconnected,
		delays:      reconnectSchedule(config),
		stateEvents: make(chan State, 16),
	}

	// A dedicated goroutine delivers state transitions in order, so that the
	// handler may call back into the channel without deadlocking.
	go func() {
		for state := range channel.stateEvents {
			channel.mutex.Lock()
			handler := channel.stateHandler
			channel.mutex.Unlock()

			if handler != nil {
				handler(state)
			}
		}
	}()

	return channel
}

// The backoff schedule for reconnect attempts: the delay starts at the base
// delay and doubles on every attempt, capped at the maximum delay. A
// successful open resets the schedule.
func reconnectSchedule(config Config) *backoff.ExponentialBackOff {
	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = config.ReconnectBaseDelay
	schedule.MaxInterval = config.ReconnectMaxDelay
	schedule.Multiplier = 2
	schedule.RandomizationFactor = 0
	schedule.MaxElapsedTime = 0
	schedule.Reset()
	return schedule
}

// Connect opens a connection to the given room. It is idempotent: connecting
// to the room we're already connected (or connecting) to is a no-op. If a
// connection to a different room exists, it is closed first and only then is
// the new one opened, so that two live sockets never coexist.
//
// Having a bearer credential is a precondition: without one the channel
// settles into `StateDisconnected` without dialing.
func (c *Channel) Connect(roomID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.creds.AccessToken() == "" {
		c.logger.Warn("no access token, cannot open signaling connection")
		c.setStateLocked(StateDisconnected)
		return
	}

	if c.roomID == roomID && (c.state == StateOpen || c.state == StateConnecting) {
		return
	}

	c.teardownLocked()

	c.roomID = roomID
	c.attempts = 0
	c.delays.Reset()
	c.dialLocked()
}

// Disconnect closes the active connection with a normal-closure code, cancels
// any pending reconnect and resets the channel to `StateDisconnected`. Safe
// to call when not connected.
func (c *Channel) Disconnect() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.teardownLocked()
	c.roomID = ""
	c.attempts = 0
	c.delays.Reset()
	c.setStateLocked(StateDisconnected)
}

// Close disconnects and releases the channel's internal resources. The
// channel must not be used afterwards.
func (c *Channel) Close() {
	c.Disconnect()
	c.closeOnce.Do(func() {
		close(c.stateEvents)
	})
}

// Send writes the message to the socket and reports whether it was written.
// The channel does not buffer: if the socket is not open the message is not
// sent and the caller decides whether to queue, drop or surface an error.
func (c *Channel) Send(message *Message) bool {
	c.mutex.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mutex.Unlock()

	if !open || conn == nil {
		return false
	}

	if message.CreatedAt == "" {
		message.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(message); err != nil {
		c.logger.WithError(err).Warn("failed to send signaling message")
		return false
	}

	return true
}

// OnMessage registers the single inbound message handler, replacing any
// previously registered one.
func (c *Channel) OnMessage(handler MessageHandler) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.handler = handler
}

// OnStateChange registers the single state transition handler, replacing any
// previously registered one.
func (c *Channel) OnStateChange(handler StateHandler) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.stateHandler = handler
}

func (c *Channel) State() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// Room returns the currently desired room id, or "" when disconnected.
func (c *Channel) Room() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.roomID
}

func (c *Channel) setStateLocked(state State) {
	if c.state == state {
		return
	}
	c.state = state

	select {
	case c.stateEvents <- state:
	default:
		c.logger.Warn("state handler too slow, dropping state transition")
	}
}

// Cancels any pending reconnect, invalidates in-flight dials and read pumps
// and closes the current socket, if any. Callers adjust state and room.
func (c *Channel) teardownLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}

	c.generation++

	if c.conn != nil {
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeTimeout))
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Channel) endpoint(roomID string) string {
	token := url.QueryEscape(c.creds.AccessToken())
	return fmt.Sprintf("%s/%s?token=%s", c.config.URL, url.PathEscape(roomID), token)
}

func (c *Channel) dialLocked() {
	c.generation++
	generation := c.generation
	roomID := c.roomID

	c.setStateLocked(StateConnecting)

	go c.dial(roomID, generation)
}

func (c *Channel) dial(roomID string, generation uint64) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, response, err := dialer.Dial(c.endpoint(roomID), nil)
	if response != nil && response.Body != nil {
		response.Body.Close()
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	// Stale-connection guard: the desired room may have changed while we
	// were dialing, in which case this socket must not be acted upon.
	if generation != c.generation || roomID != c.roomID {
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		c.logger.WithError(err).WithField("room_id", roomID).Warn("signaling dial failed")
		c.scheduleReconnectLocked()
		return
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
	})

	c.conn = conn
	c.attempts = 0
	c.delays.Reset()
	c.setStateLocked(StateOpen)
	c.logger.WithField("room_id", roomID).Info("signaling connected")

	go c.readPump(conn, roomID, generation)
}

func (c *Channel) readPump(conn *websocket.Conn, roomID string, generation uint64) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(roomID, generation, err)
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))

		var message Message
		if err := json.Unmarshal(payload, &message); err != nil {
			// Malformed frames must not crash the handler pipeline.
			c.logger.WithError(err).Debug("dropping malformed signaling frame")
			continue
		}

		c.mutex.Lock()
		handler := c.handler
		stale := generation != c.generation
		c.mutex.Unlock()

		if stale {
			return
		}
		if handler != nil {
			handler(&message)
		}
	}
}

func (c *Channel) handleClose(roomID string, generation uint64, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	// A stale pump belongs to a socket we already replaced or closed ourselves.
	if generation != c.generation || roomID != c.roomID {
		return
	}

	c.conn = nil

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Info("signaling connection closed cleanly")
		c.setStateLocked(StateDisconnected)
		return
	}

	c.logger.WithError(err).Warn("signaling connection lost")
	c.scheduleReconnectLocked()
}

func (c *Channel) scheduleReconnectLocked() {
	c.attempts++
	if c.attempts > c.config.ReconnectMaxAttempts {
		c.logger.Error("signaling reconnect attempts exhausted")
		c.setStateLocked(StateUnavailable)
		return
	}

	delay := c.delays.NextBackOff()
	c.setStateLocked(StateConnecting)

	c.logger.WithFields(logrus.Fields{
		"attempt": c.attempts,
		"delay":   delay,
	}).Info("scheduling signaling reconnect")

	roomID := c.roomID
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.reconnect(roomID)
	})
}

func (c *Channel) reconnect(roomID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	// Stale-room guard: the user may have navigated to another room (or away)
	// while the reconnect was pending.
	if roomID != c.roomID || c.state != StateConnecting {
		return
	}

	c.reconnectTimer = nil
	c.dialLocked()
}
