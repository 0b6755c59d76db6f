// Package httpapi exposes the marketplace services over REST and
// websocket endpoints.
package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/nexushub/marketplace/internal/app"
	"github.com/nexushub/marketplace/internal/app/domain/application"
	"github.com/nexushub/marketplace/internal/errors"
	"github.com/nexushub/marketplace/internal/httputil"
	"github.com/nexushub/marketplace/internal/middleware"
)

// Handler owns the route table.
type Handler struct {
	app  *app.App
	auth *middleware.Auth
}

// NewHandler builds the handler.
func NewHandler(a *app.App, auth *middleware.Auth) *Handler {
	return &Handler{app: a, auth: auth}
}

// Register attaches every route to the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/applications", h.submitApplication).Methods(http.MethodPost)
	r.HandleFunc("/applications/my", h.listMyApplications).Methods(http.MethodGet)
	r.HandleFunc("/applications/project/{projectID}", h.listProjectApplications).Methods(http.MethodGet)
	r.HandleFunc("/applications/{id}/status", h.updateApplicationStatus).Methods(http.MethodPut)

	r.HandleFunc("/notifications", h.listNotifications).Methods(http.MethodGet)
	r.HandleFunc("/notifications/unread-count", h.unreadCount).Methods(http.MethodGet)
	r.HandleFunc("/notifications/read-all", h.markAllRead).Methods(http.MethodPost)
	r.HandleFunc("/notifications/{id}/read", h.markRead).Methods(http.MethodPut)

	r.HandleFunc("/chat/rooms", h.listRooms).Methods(http.MethodGet)
	r.HandleFunc("/chat/rooms/{projectID}/{otherUserID}", h.openRoom).Methods(http.MethodPost)
	r.HandleFunc("/chat/rooms/{roomID}/messages", h.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/chat/rooms/{roomID}/messages", h.sendMessage).Methods(http.MethodPost)
	r.HandleFunc("/chat/ws/{roomID}", h.chatSocket).Methods(http.MethodGet)
}

func pageParams(r *http.Request) (page, size int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	size, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return page, size
}

type submitApplicationRequest struct {
	ProjectID   string `json:"project_id"`
	CoverLetter string `json:"cover_letter"`
}

func (h *Handler) submitApplication(w http.ResponseWriter, r *http.Request) {
	act, ok := middleware.ActorFromContext(r)
	if !ok {
		httputil.WriteError(w, errors.Unauthorized("authentication required"))
		return
	}

	var req submitApplicationRequest
	if err := httputil.DecodeJSON(r.Body, &req); err != nil {
		httputil.WriteError(w, errors.Validation("invalid request body"))
		return
	}
	if req.ProjectID == "" {
		httputil.WriteError(w, errors.Validation("project_id is required"))
		return
	}

	created, err := h.app.Applications.Submit(r.Context(), act, req.ProjectID, req.CoverLetter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

type updateStatusRequest struct {
	Status application.Status `json:"status"`
	Note   *string            `json:"note,omitempty"`
}

func (h *Handler) updateApplicationStatus(w http.ResponseWriter, r *http.Request) {
	act, ok := middleware.ActorFromContext(r)
	if !ok {
		httputil.WriteError(w, errors.Unauthorized("authentication required"))
		return
	}

	var req updateStatusRequest
	if err := httputil.DecodeJSON(r.Body, &req); err != nil {
		httputil.WriteError(w, errors.Validation("invalid request body"))
		return
	}
	if req.Status == "" {
		httputil.WriteError(w, errors.Validation("status is required"))
		return
	}

	updated, err := h.app.Applications.Transition(r.Context(), act, mux.Vars(r)["id"], req.Status, req.Note)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) listProjectApplications(w http.ResponseWriter, r *http.Request) {
	act, ok := middleware.ActorFromContext(r)
	if !ok {
		httputil.WriteError(w, errors.Unauthorized("authentication required"))
		return
	}

	apps, err := h.app.Applications.ListByProject(r.Context(), act, mux.Vars(r)["projectID"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, apps)
}

func (h *Handler) listMyApplications(w http.ResponseWriter, r *http.Request) {
	act, ok := middleware.ActorFromContext(r)
	if !ok {
		httputil.WriteError(w, errors.Unauthorized("authentication required"))
		return
	}

	apps, err := h.app.Applications.ListMine(r.Context(), act)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, apps)
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	act, ok := middleware.ActorFromContext(r)
	if !ok {
		httputil.WriteError(w, errors.Unauthorized("authentication required"))
		return
	}

	page, size := pageParams(r)
	unreadOnly := r.URL.Query().Get("unread_only") == "true"

	recs, err := h.app.Notifications.List(r.Context(), act.ID, unreadOnly, page, size)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, recs)
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	act, ok := middleware.ActorFromContext(r)
	if !ok {
		httputil.WriteError(w, errors.Unauthorized("authentication required"))
		return
	}

	count, err := h.app.Notifications.UnreadCount(r.Context(), act.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	act, ok := middleware.ActorFromContext(r)
	if !ok {
		httputil.WriteError(w, errors.Unauthorized("authentication required"))
		return
	}

	if err := h.app.Notifications.MarkRead(r.Context(), act.ID, mux.Vars(r)["id"]); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	act, ok := middleware.ActorFromContext(r)
	if !ok {
		httputil.WriteError(w, errors.Unauthorized("authentication required"))
		return
	}

	count, err := h.app.Notifications.MarkAllRead(r.Context(), act.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"marked": count})
}

func (h *Handler) openRoom(w http.ResponseWriter, r *http.Request) {
	act, ok := middleware.ActorFromContext(r)
	if !ok {
		httputil.WriteError(w, errors.Unauthorized("authentication required"))
		return
	}

	vars := mux.Vars(r)
	room, err := h.app.Chat.GetOrCreateRoom(r.Context(), act, vars["projectID"], vars["otherUserID"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, room)
}

func (h *Handler) listRooms(w http.ResponseWriter, r *http.Request) {
	act, ok := middleware.ActorFromContext(r)
	if !ok {
		httputil.WriteError(w, errors.Unauthorized("authentication required"))
		return
	}

	rooms, err := h.app.Chat.ListRooms(r.Context(), act)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rooms)
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	act, ok := middleware.ActorFromContext(r)
	if !ok {
		httputil.WriteError(w, errors.Unauthorized("authentication required"))
		return
	}

	page, size := pageParams(r)
	msgs, err := h.app.Chat.ListMessages(r.Context(), act, mux.Vars(r)["roomID"], page, size)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, msgs)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	act, ok := middleware.ActorFromContext(r)
	if !ok {
		httputil.WriteError(w, errors.Unauthorized("authentication required"))
		return
	}

	var req sendMessageRequest
	if err := httputil.DecodeJSON(r.Body, &req); err != nil {
		httputil.WriteError(w, errors.Validation("invalid request body"))
		return
	}

	msg, err := h.app.Chat.SendMessage(r.Context(), act, mux.Vars(r)["roomID"], req.Content)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, msg)
}
