package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/nexushub/marketplace/internal/app"
	"github.com/nexushub/marketplace/internal/app/domain/actor"
	"github.com/nexushub/marketplace/internal/app/domain/application"
	"github.com/nexushub/marketplace/internal/app/domain/chat"
	"github.com/nexushub/marketplace/internal/app/domain/notification"
	"github.com/nexushub/marketplace/internal/app/domain/project"
	"github.com/nexushub/marketplace/internal/app/storage/memory"
	"github.com/nexushub/marketplace/internal/logging"
	"github.com/nexushub/marketplace/internal/middleware"
)

const testSecret = "test-secret"

type testEnv struct {
	server *httptest.Server
	store  *memory.Store

	studentToken string
	ownerToken   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	store.PutProject(&project.Project{ID: "p1", OwnerID: "owner-1", Title: "Portfolio site", Status: project.StatusOpen})
	store.PutUser(&actor.User{ID: "student-1", Username: "student", Email: "student@example.com", Role: actor.RoleStudent})
	store.PutUser(&actor.User{ID: "owner-1", Username: "owner", Email: "owner@example.com", Role: actor.RoleCompany})

	log := logging.NewDefault("httpapi-test")
	application := app.New(app.Stores{
		Applications:  store,
		Notifications: store,
		Chat:          store,
		Projects:      store,
		Users:         store,
	}, app.Deps{Logger: log})

	auth := middleware.NewAuth(testSecret, log, "/chat/ws/")
	router := mux.NewRouter()
	router.Use(auth.Middleware)
	NewHandler(application, auth).Register(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	mint := func(id string, role actor.Role) string {
		token, err := middleware.NewToken(testSecret, id, role, "", time.Hour)
		if err != nil {
			t.Fatalf("mint token: %v", err)
		}
		return token
	}

	return &testEnv{
		server:       server,
		store:        store,
		studentToken: mint("student-1", actor.RoleStudent),
		ownerToken:   mint("owner-1", actor.RoleCompany),
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response of %s %s: %v", method, path, err)
		}
	}
	return resp
}

func TestAuthenticationRequired(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/applications/my", "", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/applications/my", "not-a-token", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", resp.StatusCode)
	}
}

func TestApplicationLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	var created application.Application
	resp := env.do(t, http.MethodPost, "/applications", env.studentToken,
		map[string]string{"project_id": "p1", "cover_letter": "hi"}, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if created.Status != application.StatusPending {
		t.Fatalf("expected pending, got %s", created.Status)
	}

	// Duplicate application conflicts.
	resp = env.do(t, http.MethodPost, "/applications", env.studentToken,
		map[string]string{"project_id": "p1"}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	statusPath := fmt.Sprintf("/applications/%s/status", created.ID)

	// The applicant cannot accept their own application: 403, not 400.
	resp = env.do(t, http.MethodPut, statusPath, env.studentToken,
		map[string]string{"status": "accepted"}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	var updated application.Application
	resp = env.do(t, http.MethodPut, statusPath, env.ownerToken,
		map[string]string{"status": "accepted"}, &updated)
	if resp.StatusCode != http.StatusOK || updated.Status != application.StatusAccepted {
		t.Fatalf("accept failed: %d %s", resp.StatusCode, updated.Status)
	}

	env.do(t, http.MethodPut, statusPath, env.studentToken,
		map[string]string{"status": "in_progress"}, nil)
	resp = env.do(t, http.MethodPut, statusPath, env.studentToken,
		map[string]string{"status": "submitted", "note": "done, please review"}, &updated)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit failed: %d", resp.StatusCode)
	}
	if updated.SubmissionNote != "done, please review" {
		t.Fatalf("submission note missing: %q", updated.SubmissionNote)
	}

	// Unreachable target is an invalid-state error with details.
	var errBody struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	}
	resp = env.do(t, http.MethodPut, statusPath, env.ownerToken,
		map[string]string{"status": "completed"}, &errBody)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if errBody.Code != "INVALID_STATE" {
		t.Fatalf("expected INVALID_STATE, got %q", errBody.Code)
	}
	if errBody.Details["current_status"] != "submitted" {
		t.Fatalf("unexpected details: %v", errBody.Details)
	}

	// Listings.
	var apps []*application.Application
	resp = env.do(t, http.MethodGet, "/applications/project/p1", env.ownerToken, nil, &apps)
	if resp.StatusCode != http.StatusOK || len(apps) != 1 {
		t.Fatalf("project listing: %d, %d apps", resp.StatusCode, len(apps))
	}
	resp = env.do(t, http.MethodGet, "/applications/project/p1", env.studentToken, nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner listing, got %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodGet, "/applications/my", env.studentToken, nil, &apps)
	if resp.StatusCode != http.StatusOK || len(apps) != 1 {
		t.Fatalf("my listing: %d, %d apps", resp.StatusCode, len(apps))
	}
}

func waitForUnread(t *testing.T, env *testEnv, token string, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		var count struct {
			Count int64 `json:"count"`
		}
		env.do(t, http.MethodGet, "/notifications/unread-count", token, nil, &count)
		if count.Count == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("unread count never reached %d, last %d", want, count.Count)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestNotificationFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	// Applying notifies the project owner asynchronously.
	resp := env.do(t, http.MethodPost, "/applications", env.studentToken,
		map[string]string{"project_id": "p1"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit failed: %d", resp.StatusCode)
	}
	waitForUnread(t, env, env.ownerToken, 1)

	var recs []*notification.Record
	env.do(t, http.MethodGet, "/notifications?unread_only=true", env.ownerToken, nil, &recs)
	if len(recs) != 1 {
		t.Fatalf("expected 1 unread notification, got %d", len(recs))
	}

	resp = env.do(t, http.MethodPut, "/notifications/"+recs[0].ID+"/read", env.ownerToken, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mark read failed: %d", resp.StatusCode)
	}
	waitForUnread(t, env, env.ownerToken, 0)

	// Re-reading the same notification is a 404.
	resp = env.do(t, http.MethodPut, "/notifications/"+recs[0].ID+"/read", env.ownerToken, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for already-read, got %d", resp.StatusCode)
	}

	// Another user's notification is invisible.
	resp = env.do(t, http.MethodPut, "/notifications/"+recs[0].ID+"/read", env.studentToken, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign notification, got %d", resp.StatusCode)
	}

	var marked struct {
		Marked int `json:"marked"`
	}
	resp = env.do(t, http.MethodPost, "/notifications/read-all", env.ownerToken, nil, &marked)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("read-all failed: %d", resp.StatusCode)
	}
}

func TestChatFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	var room chat.Room
	resp := env.do(t, http.MethodPost, "/chat/rooms/p1/student-1", env.ownerToken, nil, &room)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open room failed: %d", resp.StatusCode)
	}

	// Opening from the other side lands in the same room.
	var same chat.Room
	env.do(t, http.MethodPost, "/chat/rooms/p1/owner-1", env.studentToken, nil, &same)
	if same.ID != room.ID {
		t.Fatalf("room identity differs: %q vs %q", same.ID, room.ID)
	}

	var msg chat.Message
	resp = env.do(t, http.MethodPost, "/chat/rooms/"+room.ID+"/messages", env.ownerToken,
		map[string]string{"content": "hello"}, &msg)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send failed: %d", resp.StatusCode)
	}

	var msgs []*chat.Message
	resp = env.do(t, http.MethodGet, "/chat/rooms/"+room.ID+"/messages", env.studentToken, nil, &msgs)
	if resp.StatusCode != http.StatusOK || len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Fatalf("history: %d, %+v", resp.StatusCode, msgs)
	}

	var rooms []*chat.Room
	env.do(t, http.MethodGet, "/chat/rooms", env.studentToken, nil, &rooms)
	if len(rooms) != 1 || rooms[0].LastMessage != "hello" {
		t.Fatalf("room listing: %+v", rooms)
	}

	// Empty content is rejected.
	resp = env.do(t, http.MethodPost, "/chat/rooms/"+room.ID+"/messages", env.ownerToken,
		map[string]string{"content": "  "}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank message, got %d", resp.StatusCode)
	}
}
