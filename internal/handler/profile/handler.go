package profile

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	chathandler "github.com/oakdemir/pharmachat/internal/handler/chat"
	"github.com/oakdemir/pharmachat/internal/model/profile"
	"github.com/oakdemir/pharmachat/pkg/utils"
)

// Handler exposes the health-record attributes consumed by prompt building.
type Handler struct {
	profiles profile.Store
}

// New creates the profile handler.
func New(profiles profile.Store) *Handler {
	return &Handler{profiles: profiles}
}

// RegisterRoutes wires the profile routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/profile", h.handleGetProfile)
	r.Put("/profile", h.handlePutProfile)
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	owner := chathandler.OwnerID(r)
	if owner == "" {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	record, ok := h.profiles.FindByUser(owner)
	if !ok {
		record = profile.Record{UserID: owner, Attributes: map[string]string{}}
	}
	utils.RespondJSON(w, http.StatusOK, record)
}

func (h *Handler) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	owner := chathandler.OwnerID(r)
	if owner == "" {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var payload struct {
		Attributes map[string]string `json:"attributes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record := profile.Record{UserID: owner, Attributes: payload.Attributes}
	h.profiles.Put(record)
	utils.RespondJSON(w, http.StatusOK, record)
}
