// Package api assembles the portal's HTTP router.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jts-services/portal/internal/api/handlers"
	"github.com/jts-services/portal/internal/api/middleware"
	"github.com/jts-services/portal/internal/auth"
	"github.com/jts-services/portal/internal/jobs"
	"github.com/jts-services/portal/internal/repository"
	"github.com/rs/zerolog"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Drive          handlers.DriveService
	Ledger         handlers.LedgerService
	Notifications  repository.NotificationRepository
	Realtime       handlers.Realtime
	Publisher      jobs.Publisher
	JobStore       jobs.JobStore
	Verifier       *auth.Verifier
	WebhookSecret  string
	AllowedOrigins []string
	MaxUploadBytes int64
	Health         HealthChecker
	Log            zerolog.Logger
}

// NewRouter returns the full HTTP handler.
func NewRouter(d Deps) http.Handler {
	folders := handlers.NewFoldersHandler(d.Drive, d.Log)
	files := handlers.NewFilesHandler(d.Drive, d.MaxUploadBytes, d.Log)
	customers := handlers.NewCustomersHandler(d.Ledger, time.UTC, d.Log)
	notifications := handlers.NewNotificationsHandler(d.Notifications, d.Realtime, d.Log)
	webhooks := handlers.NewWebhooksHandler(d.Publisher, d.WebhookSecret, d.Log)
	jobsHandler := handlers.NewJobsHandler(d.JobStore, d.Log)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(d.Log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Log))
	r.Use(middleware.CORS(d.AllowedOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", health(d.Health))
	r.Post("/api/webhooks/payments", webhooks.Payment)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(d.Verifier))

		r.Route("/api/folders", func(r chi.Router) {
			r.Get("/tree", folders.Tree)
			r.Post("/", folders.Create)
			r.Patch("/{id}", folders.Update)
			r.Delete("/{id}", folders.Delete)
			r.Get("/{id}/path", folders.Path)
		})

		r.Route("/api/files", func(r chi.Router) {
			r.Get("/", files.List)
			r.Post("/", files.Upload)
			r.Get("/{id}/url", files.URL)
			r.Get("/{id}/content", files.Content)
			r.Delete("/{id}", files.Delete)
		})

		r.Get("/api/customers/{id}/transactions", customers.Transactions)
		r.Get("/api/customers/{id}/statement", customers.Statement)

		r.Get("/api/notifications", notifications.List)
		r.Post("/api/notifications/{id}/read", notifications.MarkRead)
		r.Get("/api/notifications/ws", notifications.Subscribe)

		r.Get("/api/jobs", jobsHandler.ListJobs)
		r.Get("/api/jobs/{id}", jobsHandler.GetJob)
	})

	return r
}

func health(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "healthy", http.StatusOK
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.Ping(ctx); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		middleware.WriteJSON(w, code, map[string]string{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
		})
	}
}
