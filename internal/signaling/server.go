package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hackgods/telecare/internal/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// TokenParser turns a bearer token into the caller.
type TokenParser interface {
	Parse(token string) (auth.Principal, error)
}

// Handler upgrades GET /ws and runs the read and write pumps of one peer.
type Handler struct {
	hub      *Hub
	tokens   TokenParser
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewHandler(hub *Hub, tokens TokenParser, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Browsers cannot set headers on a WebSocket handshake, so the token may also
// arrive as ?token=.
func requestToken(r *http.Request) (string, error) {
	if t := r.URL.Query().Get("token"); t != "" {
		return t, nil
	}
	return auth.BearerToken(r)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, err := requestToken(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	who, err := h.tokens.Parse(token)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	peer := NewPeer(uuid.NewString(), who)
	h.hub.Register(peer)

	h.logger.Debug().
		Str("peer_id", peer.ID).
		Str("user_id", who.UserID.String()).
		Str("role", string(who.Role)).
		Msg("signaling peer connected")

	go h.writePump(peer, ws)
	h.readPump(context.WithoutCancel(r.Context()), peer, ws)
}

func (h *Handler) readPump(ctx context.Context, peer *Peer, ws *websocket.Conn) {
	defer func() {
		h.hub.Unregister(ctx, peer)
		ws.Close()
		h.logger.Debug().Str("peer_id", peer.ID).Msg("signaling peer disconnected")
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Str("peer_id", peer.ID).Msg("signaling read failed")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.hub.SendError(peer, "", errors.New("malformed message"))
			continue
		}

		if err := h.hub.Handle(ctx, peer, msg); err != nil {
			h.logger.Debug().Err(err).Str("peer_id", peer.ID).Str("type", string(msg.Type)).Msg("signaling request refused")
			h.hub.SendError(peer, msg.ConsultationID, err)
		}
	}
}

func (h *Handler) writePump(peer *Peer, ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case data, ok := <-peer.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
