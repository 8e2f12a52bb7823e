package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	chatmodel "github.com/oakdemir/pharmachat/internal/model/chat"
	"github.com/oakdemir/pharmachat/internal/service/conversation"
	"github.com/oakdemir/pharmachat/pkg/utils"
)

// Handler exposes the session and single-shot chat endpoints.
type Handler struct {
	manager *conversation.Manager
}

// New creates the chat handler.
func New(manager *conversation.Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes wires the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions", h.handleListSessions)
	r.Get("/sessions/{sessionID}/messages", h.handleListMessages)
	r.Delete("/sessions/{sessionID}", h.handleDeleteSession)
	r.Post("/chat", h.handleSendMessage)
	r.Post("/chat/retry", h.handleRetry)
}

// OwnerID extracts the authenticated user id the upstream auth layer put in
// the request. An empty value means the caller is not authenticated.
func OwnerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	owner := OwnerID(r)
	if owner == "" {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	ctrl := h.manager.Controller(owner)
	if err := ctrl.RefreshSessions(r.Context()); err != nil {
		utils.RespondError(w, utils.StatusForError(err), "failed to list sessions")
		return
	}
	utils.RespondJSON(w, http.StatusOK, ctrl.Sessions())
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	owner := OwnerID(r)
	if owner == "" {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	ctrl := h.manager.Controller(owner)
	if err := SelectWithRefresh(r, ctrl, sessionID); err != nil {
		utils.RespondError(w, utils.StatusForError(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, ctrl.Entries())
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	owner := OwnerID(r)
	if owner == "" {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	ctrl := h.manager.Controller(owner)
	if err := ctrl.RefreshSessions(r.Context()); err != nil {
		utils.RespondError(w, utils.StatusForError(err), "failed to load sessions")
		return
	}
	if err := ctrl.DeleteSession(r.Context(), sessionID); err != nil {
		utils.RespondError(w, utils.StatusForError(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// SendRequest is the single-shot and streaming request body. An empty
// sessionId starts a new conversation on the first turn.
type SendRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	owner := OwnerID(r)
	if owner == "" {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var payload SendRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctrl := h.manager.Controller(owner)
	if err := EnsureTarget(r, ctrl, payload.SessionID); err != nil {
		utils.RespondError(w, utils.StatusForError(err), err.Error())
		return
	}

	result, err := ctrl.SendMessage(r.Context(), payload.Message)
	if err != nil {
		var partial *chatmodel.PartialTurnError
		if errors.As(err, &partial) {
			utils.RespondJSON(w, http.StatusConflict, map[string]string{
				"error":         "assistant reply could not be persisted",
				"sessionId":     partial.SessionID,
				"userMessageId": partial.UserMessage.ID,
			})
			return
		}
		utils.RespondError(w, utils.StatusForError(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	owner := OwnerID(r)
	if owner == "" {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	ctrl := h.manager.Controller(owner)
	msg, err := ctrl.RetryAssistant(r.Context())
	if err != nil {
		utils.RespondError(w, utils.StatusForError(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, msg)
}

// EnsureTarget points the controller at the requested session before a send:
// an explicit session id is selected, an empty one resets to a fresh chat.
func EnsureTarget(r *http.Request, ctrl *conversation.Controller, sessionID string) error {
	if sessionID == "" {
		if ctrl.CurrentSession() != "" {
			ctrl.StartNewChat()
		}
		return nil
	}
	if ctrl.CurrentSession() == sessionID {
		return nil
	}
	return SelectWithRefresh(r, ctrl, sessionID)
}

// SelectWithRefresh selects a session, refreshing the possibly-stale session
// list once when the first lookup misses.
func SelectWithRefresh(r *http.Request, ctrl *conversation.Controller, sessionID string) error {
	err := ctrl.SelectSession(r.Context(), sessionID)
	if !errors.Is(err, chatmodel.ErrNotFound) {
		return err
	}
	if refreshErr := ctrl.RefreshSessions(r.Context()); refreshErr != nil {
		return refreshErr
	}
	return ctrl.SelectSession(r.Context(), sessionID)
}
