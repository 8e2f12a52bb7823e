// Package stream serves the incremental delivery variant of the chat round
// trip over Server-Sent Events.
package stream

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	chathandler "github.com/oakdemir/pharmachat/internal/handler/chat"
	chatmodel "github.com/oakdemir/pharmachat/internal/model/chat"
	"github.com/oakdemir/pharmachat/internal/service/conversation"
	"github.com/oakdemir/pharmachat/pkg/utils"
)

// Handler streams chunk/complete/error events for one chat turn.
type Handler struct {
	manager *conversation.Manager
}

// New creates the streaming handler.
func New(manager *conversation.Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes wires the streaming endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/stream", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	owner := chathandler.OwnerID(r)
	if owner == "" {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var payload chathandler.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	ctrl := h.manager.Controller(owner)
	if err := chathandler.EnsureTarget(r, ctrl, payload.SessionID); err != nil {
		utils.RespondError(w, utils.StatusForError(err), err.Error())
		return
	}

	utils.SetupSSEHeaders(w)

	send := func(event conversation.StreamEvent) error {
		return utils.SendSSEEvent(w, flusher, string(event.Type), event)
	}

	outcome, result, err := ctrl.SendMessageStream(r.Context(), payload.Message, send)
	switch outcome {
	case conversation.OutcomeComplete:
		log.Printf("[stream] completed turn for owner=%s session=%s", owner, result.SessionID)
	case conversation.OutcomeCancelled:
		log.Printf("[stream] cancelled turn for owner=%s: %v", owner, err)
	case conversation.OutcomeError:
		// Rejections before the first event never reached the client.
		if errors.Is(err, chatmodel.ErrValidation) {
			_ = send(conversation.StreamEvent{
				Type:    conversation.EventError,
				Content: "Mesaj gönderilemedi.",
				Error:   err.Error(),
			})
		}
		log.Printf("[stream] failed turn for owner=%s: %v", owner, err)
	}
}
