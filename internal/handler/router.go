package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	chathandler "github.com/oakdemir/pharmachat/internal/handler/chat"
	profilehandler "github.com/oakdemir/pharmachat/internal/handler/profile"
	streamhandler "github.com/oakdemir/pharmachat/internal/handler/stream"
	wshandler "github.com/oakdemir/pharmachat/internal/handler/ws"
	middlewarePkg "github.com/oakdemir/pharmachat/internal/middleware"
	profilemodel "github.com/oakdemir/pharmachat/internal/model/profile"
	"github.com/oakdemir/pharmachat/internal/service/conversation"
	"github.com/oakdemir/pharmachat/pkg/utils"
)

// NewRouter wires HTTP routes to core services. The streaming and WebSocket
// endpoints are registered only when a completion gateway exists.
func NewRouter(manager *conversation.Manager, profiles profilemodel.Store, gatewayReady bool) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chathandler.New(manager)
	profileHandler := profilehandler.New(profiles)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		profileHandler.RegisterRoutes(api)

		if gatewayReady {
			streamhandler.New(manager).RegisterRoutes(api)
			wshandler.New(manager).RegisterRoutes(api)
		} else {
			api.Post("/chat/stream", func(w http.ResponseWriter, r *http.Request) {
				utils.RespondError(w, http.StatusServiceUnavailable, "completion gateway unavailable")
			})
		}
	})

	return r
}
