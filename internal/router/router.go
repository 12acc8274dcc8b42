package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"agriwise-backend/internal/handlers"
	"agriwise-backend/internal/middleware"
	"agriwise-backend/internal/websocket"
)

func New(
	chatHandler *handlers.ChatHandler,
	wsHub *websocket.Hub,
	chatLimiter *middleware.RateLimiter,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Chat Routes ────
		r.Route("/chat", func(r chi.Router) {
			r.With(chatLimiter.Middleware).Post("/", chatHandler.Ask)

			// ──── WebSocket ────
			r.Get("/ws", wsHub.HandleWebSocket)
		})
	})

	return r
}
