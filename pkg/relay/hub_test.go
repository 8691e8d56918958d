package relay_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/remindly/callcore/pkg/relay"
	"github.com/remindly/callcore/pkg/signaling"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func startRelay(t *testing.T) *httptest.Server {
	t.Helper()

	logger := logrus.NewEntry(logrus.New())
	hub := relay.NewHub(logger)
	t.Cleanup(hub.Close)

	handler := relay.NewHandler(hub, relay.Config{JWTSecret: testSecret}, logger)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return server
}

func accessToken(t *testing.T, userID, username string) string {
	t.Helper()

	claims := relay.Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func dial(t *testing.T, server *httptest.Server, roomID, token string) *websocket.Conn {
	t.Helper()

	endpoint := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/signaling/" + roomID + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) signaling.Message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var message signaling.Message
	require.NoError(t, conn.ReadJSON(&message))
	return message
}

func TestRelay_RoutesAndStampsMessages(t *testing.T) {
	server := startRelay(t)

	alice := dial(t, server, "room-1", accessToken(t, "alice-id", "alice"))
	bob := dial(t, server, "room-1", accessToken(t, "bob-id", "bob"))

	outbound, err := signaling.NewMessage(signaling.TypeCallStart, "bob-id",
		signaling.CallStartData{CallerUsername: "alice", CallType: "audio"})
	require.NoError(t, err)
	// Whatever the client claims about itself must be overwritten.
	outbound.SenderID = "someone-else"
	outbound.RoomID = "another-room"
	require.NoError(t, alice.WriteJSON(outbound))

	received := readMessage(t, bob)
	assert.Equal(t, signaling.TypeCallStart, received.Type)
	assert.Equal(t, "alice-id", received.SenderID)
	assert.Equal(t, "alice", received.Username)
	assert.Equal(t, "bob-id", received.TargetID)
	assert.Equal(t, "room-1", received.RoomID)
	assert.NotEmpty(t, received.ID)
	assert.NotEmpty(t, received.CreatedAt)

	data, err := received.CallStart()
	require.NoError(t, err)
	assert.Equal(t, "audio", data.CallType)
}

func TestRelay_RejectsInvalidToken(t *testing.T) {
	server := startRelay(t)

	endpoint := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/signaling/room-1?token=garbage"
	_, response, err := websocket.DefaultDialer.Dial(endpoint, nil)
	require.Error(t, err)
	require.NotNil(t, response)
	assert.Equal(t, 401, response.StatusCode)
}

func TestRelay_RejectsWrongSigningKey(t *testing.T) {
	server := startRelay(t)

	claims := relay.Claims{UserID: "mallory-id", Username: "mallory"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	endpoint := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/signaling/room-1?token=" + token
	_, response, dialErr := websocket.DefaultDialer.Dial(endpoint, nil)
	require.Error(t, dialErr)
	require.NotNil(t, response)
	assert.Equal(t, 401, response.StatusCode)
}

func TestRelay_TargetNotFound(t *testing.T) {
	server := startRelay(t)

	alice := dial(t, server, "room-1", accessToken(t, "alice-id", "alice"))

	outbound, err := signaling.NewMessage(signaling.TypeOffer, "nobody", nil)
	require.NoError(t, err)
	require.NoError(t, alice.WriteJSON(outbound))

	received := readMessage(t, alice)
	assert.Equal(t, signaling.TypeError, received.Type)
	assert.Equal(t, "system", received.SenderID)

	data, err := received.ErrorData()
	require.NoError(t, err)
	assert.Equal(t, signaling.ErrorTargetNotFound, data.Error)
}

func TestRelay_NotifiesPeerDisconnected(t *testing.T) {
	server := startRelay(t)

	alice := dial(t, server, "room-1", accessToken(t, "alice-id", "alice"))
	bob := dial(t, server, "room-1", accessToken(t, "bob-id", "bob"))

	// Make sure both are registered before killing bob's socket.
	ping, err := signaling.NewMessage(signaling.TypeCallStart, "alice-id", signaling.CallStartData{})
	require.NoError(t, err)
	require.NoError(t, bob.WriteJSON(ping))
	readMessage(t, alice)

	bob.Close()

	received := readMessage(t, alice)
	assert.Equal(t, signaling.TypePeerDisconnected, received.Type)
	assert.Equal(t, "bob-id", received.SenderID)
	assert.Equal(t, "bob", received.Username)
}

func TestRelay_DropsMessagesWithoutTarget(t *testing.T) {
	server := startRelay(t)

	alice := dial(t, server, "room-1", accessToken(t, "alice-id", "alice"))
	bob := dial(t, server, "room-1", accessToken(t, "bob-id", "bob"))

	unaddressed, err := signaling.NewMessage(signaling.TypeCallEnd, "", nil)
	require.NoError(t, err)
	require.NoError(t, alice.WriteJSON(unaddressed))

	// The connection survives and routing still works afterwards.
	addressed, err := signaling.NewMessage(signaling.TypeCallEnd, "bob-id", nil)
	require.NoError(t, err)
	require.NoError(t, alice.WriteJSON(addressed))

	received := readMessage(t, bob)
	assert.Equal(t, signaling.TypeCallEnd, received.Type)
}

func TestRelay_RoomsAreIsolated(t *testing.T) {
	server := startRelay(t)

	alice := dial(t, server, "room-1", accessToken(t, "alice-id", "alice"))
	dial(t, server, "room-2", accessToken(t, "bob-id", "bob"))

	// Bob is in another room, so he's unreachable from room-1.
	outbound, err := signaling.NewMessage(signaling.TypeOffer, "bob-id", nil)
	require.NoError(t, err)
	require.NoError(t, alice.WriteJSON(outbound))

	received := readMessage(t, alice)
	assert.Equal(t, signaling.TypeError, received.Type)
}

func TestRelay_ReconnectReplacesOldConnection(t *testing.T) {
	server := startRelay(t)

	stale := dial(t, server, "room-1", accessToken(t, "alice-id", "alice"))
	bob := dial(t, server, "room-1", accessToken(t, "bob-id", "bob"))
	fresh := dial(t, server, "room-1", accessToken(t, "alice-id", "alice"))

	// The stale socket gets closed by the relay.
	stale.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := stale.ReadMessage()
	assert.Error(t, err)

	// Messages for alice reach the fresh socket.
	outbound, sendErr := signaling.NewMessage(signaling.TypeCallEnd, "alice-id", nil)
	require.NoError(t, sendErr)
	require.NoError(t, bob.WriteJSON(outbound))

	received := readMessage(t, fresh)
	assert.Equal(t, signaling.TypeCallEnd, received.Type)
	assert.Equal(t, "bob-id", received.SenderID)
}
