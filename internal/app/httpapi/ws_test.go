package httpapi

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nexushub/marketplace/internal/app/domain/actor"
	"github.com/nexushub/marketplace/internal/middleware"
)

func wsURL(env *testEnv, roomID, token string) string {
	url := strings.Replace(env.server.URL, "http://", "ws://", 1) + "/chat/ws/" + roomID
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != code {
		t.Fatalf("expected close code %d, got %d", code, closeErr.Code)
	}
}

func openRoomForWS(t *testing.T, env *testEnv) string {
	t.Helper()
	var room struct {
		ID string `json:"id"`
	}
	resp := env.do(t, http.MethodPost, "/chat/rooms/p1/student-1", env.ownerToken, nil, &room)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open room failed: %d", resp.StatusCode)
	}
	return room.ID
}

func TestChatSocketRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)
	roomID := openRoomForWS(t, env)

	conn := dialWS(t, wsURL(env, roomID, ""))
	defer conn.Close()
	expectClose(t, conn, closeUnauthenticated)
}

func TestChatSocketRejectsInvalidToken(t *testing.T) {
	env := newTestEnv(t)
	roomID := openRoomForWS(t, env)

	conn := dialWS(t, wsURL(env, roomID, "garbage"))
	defer conn.Close()
	expectClose(t, conn, closeUnauthenticated)
}

func TestChatSocketRejectsNonParticipant(t *testing.T) {
	env := newTestEnv(t)
	roomID := openRoomForWS(t, env)

	outsider, err := middleware.NewToken(testSecret, "outsider-1", actor.RoleStudent, "", time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	conn := dialWS(t, wsURL(env, roomID, outsider))
	defer conn.Close()
	expectClose(t, conn, closeNotParticipant)
}

func TestChatSocketDelivery(t *testing.T) {
	env := newTestEnv(t)
	roomID := openRoomForWS(t, env)

	sender := dialWS(t, wsURL(env, roomID, env.ownerToken))
	defer sender.Close()
	receiver := dialWS(t, wsURL(env, roomID, env.studentToken))
	defer receiver.Close()

	// The subscriptions attach during the handshake; give the server a
	// beat before sending.
	time.Sleep(50 * time.Millisecond)

	if err := sender.WriteJSON(map[string]string{"content": "live hello"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, conn := range []*websocket.Conn{sender, receiver} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var event wsEvent
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("read: %v", err)
		}
		if event.Type != "message" || event.Message == nil || event.Message.Content != "live hello" {
			t.Fatalf("unexpected event: %+v", event)
		}
	}
}

func TestChatSocketReportsBlankMessage(t *testing.T) {
	env := newTestEnv(t)
	roomID := openRoomForWS(t, env)

	conn := dialWS(t, wsURL(env, roomID, env.ownerToken))
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	if err := conn.WriteJSON(map[string]string{"content": "   "}); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event wsEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read: %v", err)
	}
	if event.Type != "error" || event.Error == nil || event.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected event: %+v", event)
	}
}
