package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/nexushub/marketplace/internal/app/domain/actor"
	"github.com/nexushub/marketplace/internal/app/domain/chat"
	"github.com/nexushub/marketplace/internal/errors"
	"github.com/nexushub/marketplace/internal/httputil"
	"github.com/nexushub/marketplace/internal/middleware"
)

// Close codes sent when the handshake-level checks fail after upgrade.
const (
	closeUnauthenticated = 4001
	closeNotParticipant  = 4003
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers enforce their own same-origin policy; tokens gate access.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEvent is one frame sent to the client.
type wsEvent struct {
	Type    string                  `json:"type"`
	Message *chat.Message           `json:"message,omitempty"`
	Error   *httputil.ErrorResponse `json:"error,omitempty"`
}

// wsInbound is one frame received from the client.
type wsInbound struct {
	Content string `json:"content"`
}

// wsConn serializes writes; gorilla connections allow one writer at a
// time.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) writeClose(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// chatSocket upgrades the connection, authenticates via the token query
// parameter, and relays the room's live feed both ways. Auth failures
// close with 4001, membership failures with 4003, so clients can tell
// them apart from transport errors.
func (h *Handler) chatSocket(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	token := middleware.TokenFromRequest(r)
	if token == "" {
		conn.writeClose(closeUnauthenticated, "missing token")
		return
	}
	claims, err := h.auth.Verify(token)
	if err != nil {
		conn.writeClose(closeUnauthenticated, "invalid token")
		return
	}
	act := actor.Actor{ID: claims.Subject, Role: actor.Role(claims.Role)}

	sub, err := h.app.Chat.Join(r.Context(), act, roomID)
	if err != nil {
		if errors.HasCode(err, errors.CodeUnauthorized) {
			conn.writeClose(closeNotParticipant, "not a participant")
		} else {
			conn.writeClose(websocket.ClosePolicyViolation, "room unavailable")
		}
		return
	}
	defer sub.Close()

	done := make(chan struct{})
	go h.writePump(conn, sub.C(), done)

	raw.SetReadLimit(64 << 10)
	_ = raw.SetReadDeadline(time.Now().Add(pongWait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in wsInbound
		if err := raw.ReadJSON(&in); err != nil {
			break
		}
		if _, err := h.app.Chat.SendMessage(r.Context(), act, roomID, in.Content); err != nil {
			svcErr := errors.GetServiceError(err)
			if svcErr == nil {
				svcErr = errors.Internal("internal error", err)
			}
			_ = conn.writeJSON(wsEvent{Type: "error", Error: &httputil.ErrorResponse{
				Code:    string(svcErr.Code),
				Message: svcErr.Message,
				Details: svcErr.Details,
			}})
		}
	}
	close(done)
}

// writePump forwards the subscription to the client and keeps the
// connection alive with pings.
func (h *Handler) writePump(conn *wsConn, feed <-chan *chat.Message, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-feed:
			if !ok {
				return
			}
			if err := conn.writeJSON(wsEvent{Type: "message", Message: msg}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
