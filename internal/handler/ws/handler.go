// Package ws serves the chunk/complete/error event protocol over a
// WebSocket connection, one JSON payload per text message.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	chathandler "github.com/oakdemir/pharmachat/internal/handler/chat"
	chatmodel "github.com/oakdemir/pharmachat/internal/model/chat"
	"github.com/oakdemir/pharmachat/internal/service/conversation"
	"github.com/oakdemir/pharmachat/pkg/utils"
)

// Handler upgrades the connection and runs one streaming turn per request
// message.
type Handler struct {
	manager  *conversation.Manager
	upgrader websocket.Upgrader
}

// New creates the WebSocket handler.
func New(manager *conversation.Manager) *Handler {
	return &Handler{
		manager: manager,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes wires the WebSocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/ws", h.handleWebSocket)
}

// outbound mirrors conversation.StreamEvent with the event type inlined,
// since WebSocket frames have no event-name channel of their own.
type outbound struct {
	Event       string `json:"event"`
	Content     string `json:"content"`
	FullContent string `json:"fullContent,omitempty"`
	Error       string `json:"error,omitempty"`
	Code        string `json:"code,omitempty"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	owner := chathandler.OwnerID(r)
	if owner == "" {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ctrl := h.manager.Controller(owner)

	for {
		var payload chathandler.SendRequest
		if err := conn.ReadJSON(&payload); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[ws] read failed for owner=%s: %v", owner, err)
			}
			return
		}

		if err := h.ensureTarget(r, ctrl, payload.SessionID); err != nil {
			h.writeEvent(conn, outbound{Event: string(conversation.EventError), Content: "Oturum seçilemedi.", Error: err.Error()})
			continue
		}

		send := func(event conversation.StreamEvent) error {
			return h.writeEvent(conn, outbound{
				Event:       string(event.Type),
				Content:     event.Content,
				FullContent: event.FullContent,
				Error:       event.Error,
				Code:        event.Code,
			})
		}

		outcome, _, err := ctrl.SendMessageStream(ctx, payload.Message, send)
		if outcome == conversation.OutcomeError && err != nil {
			// Rejections before the first event never reached the client.
			if errors.Is(err, chatmodel.ErrValidation) {
				h.writeEvent(conn, outbound{Event: string(conversation.EventError), Content: "Mesaj gönderilemedi.", Error: err.Error()})
			}
			log.Printf("[ws] failed turn for owner=%s: %v", owner, err)
		}
		if outcome == conversation.OutcomeCancelled {
			return
		}
	}
}

func (h *Handler) ensureTarget(r *http.Request, ctrl *conversation.Controller, sessionID string) error {
	return chathandler.EnsureTarget(r, ctrl, sessionID)
}

func (h *Handler) writeEvent(conn *websocket.Conn, event outbound) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
