package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cuchu-notify/internal/config"
	"github.com/cuchu-notify/internal/domain"
	"github.com/cuchu-notify/internal/realtime"
	"github.com/cuchu-notify/internal/transport/http/handler"
	appmiddleware "github.com/cuchu-notify/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. ctx bounds the
// background work of the rate limiters.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", appmiddleware.ProducerKeyHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 handshakes/second per IP, burst of 10.
	handshakeRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(5), 10)
	producerRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(50), 100)

	healthH := handler.NewHealthHandler(deps.Hub.Registry().Len)
	notifH := handler.NewNotificationHandler(deps.Notifications, deps.Hub)
	producerH := handler.NewProducerHandler(deps.Producer)
	wsH := realtime.NewWSHandler(deps.Hub, cfg.AllowedOrigins, logger)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)

		// The socket checks its own credential before upgrading.
		r.With(handshakeRL.Limit).Get("/ws", wsH.ServeHTTP)

		// ── Internal producers ───────────────────────────────────────────────
		r.Route("/internal", func(r chi.Router) {
			r.Use(producerRL.Limit)
			r.Use(appmiddleware.RequireProducerKey(cfg.ProducerKeyHash))
			r.Post("/notifications", producerH.Notify)
			r.Post("/events/user-registered", producerH.UserRegistered)
			r.Post("/events/doorbell", producerH.Doorbell)
		})

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Auth(deps.Verifier))

			r.Get("/notifications", notifH.List)
			r.Get("/notifications/unread-count", notifH.UnreadCount)
			r.Get("/notifications/stats", notifH.Stats)
			r.Get("/notifications/{id}", notifH.Get)
			r.Post("/notifications", notifH.Create)
			r.Put("/notifications/mark-all-read", notifH.MarkAllRead)
			r.Put("/notifications/{id}/read", notifH.MarkRead)
			r.Put("/notifications/{id}/archive", notifH.Archive)
			r.Put("/notifications/{id}", notifH.Update)
			r.Delete("/notifications/{id}", notifH.Delete)
			r.Delete("/notifications", notifH.DeleteAll)

			r.With(appmiddleware.RequireRole(domain.RoleAdmin, domain.RoleSuperAdmin)).
				Post("/admin/notifications/sweep", notifH.Sweep)
		})
	})

	return r
}
