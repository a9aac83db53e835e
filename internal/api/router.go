package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vidrelay/vidrelay/internal/api/handler"
	mw "github.com/vidrelay/vidrelay/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes configured. The
// notification socket is passed as a plain handler so the router does not
// depend on the hub type.
func NewRouter(
	downloadHandler *handler.DownloadHandler,
	infoHandler *handler.InfoHandler,
	eventHandler *handler.EventHandler,
	healthHandler *handler.HealthHandler,
	notificationsWS http.HandlerFunc,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware. No Timeout middleware: a relayed download may
	// legitimately run for hours and is bounded by the server write timeout.
	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(mw.CORS)

	// Health endpoints
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)

	// Push notification channel
	r.Get("/ws/notifications", notificationsWS)

	// API v1 (download endpoints are unauthenticated; the notification join
	// path carries the token)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", healthHandler.Stats)

		// Metadata read path
		r.Post("/youtube/list", infoHandler.List)
		r.Post("/youtube/formats", infoHandler.Formats)
		r.Post("/youtube/download-meta", infoHandler.DownloadMeta)

		// Streaming download; the platform segment is advisory
		r.Post("/{platform}/download", downloadHandler.Download)

		// Event journal
		r.Get("/events", eventHandler.List)
		r.Get("/events/recent", eventHandler.Recent)
		r.Get("/events/stats", eventHandler.Stats)
		r.Get("/events/stream", eventHandler.Stream)
	})

	return r
}
