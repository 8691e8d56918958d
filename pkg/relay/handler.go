package relay

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnexpectedSigningMethod = errors.New("unexpected token signing method")
	ErrIncompleteClaims        = errors.New("token misses user_id or username")
)

// The identity claims the access tokens carry.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Handler upgrades authenticated HTTP requests to signaling connections.
// The room id is the last path segment and the access token is passed as the
// `token` query parameter, since browser WebSocket clients can't set headers.
type Handler struct {
	hub      *Hub
	secret   []byte
	logger   *logrus.Entry
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, config Config, logger *logrus.Entry) *Handler {
	return &Handler{
		hub:    hub,
		secret: []byte(config.JWTSecret),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
			// The token authenticates the request; the origin adds nothing.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := path(r)
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	claims, err := h.authenticate(r.URL.Query().Get("token"))
	if err != nil {
		h.logger.WithError(err).Warn("rejecting signaling connection")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	logger := h.logger.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": claims.UserID,
	})
	logger.Info("signaling connection established")

	client := newClient(h.hub, conn, claims.UserID, claims.Username, roomID, logger)
	h.hub.register <- client

	go client.writePump()
	client.readPump()
}

func (h *Handler) authenticate(token string) (*Claims, error) {
	if token == "" {
		return nil, jwt.ErrTokenMalformed
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnexpectedSigningMethod
		}
		return h.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.UserID == "" || claims.Username == "" {
		return nil, ErrIncompleteClaims
	}

	return claims, nil
}

func path(r *http.Request) string {
	trimmed := strings.Trim(r.URL.Path, "/")
	segments := strings.Split(trimmed, "/")
	return segments[len(segments)-1]
}
