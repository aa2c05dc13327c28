// Package httpapi wires the ambient HTTP surface the core pipeline
// needs operationally: liveness, chat-platform webhook ingress, and
// export artifact download. CRUD over stored articles, OAuth redirects,
// and slash-command UIs live outside this module.
package httpapi

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/threadloom/threadloom/internal/handler"
	"github.com/threadloom/threadloom/internal/middleware"
	"github.com/threadloom/threadloom/internal/sourcefetch"
)

// Deps are the collaborators the router's handlers call into. Version is
// reported on the health endpoint.
type Deps struct {
	DB                handler.DBPinger
	Exports           handler.Blobstore
	ChatPublisher     sourcefetch.Publisher
	ChatSourceType    string
	MonitoredChannels func(serverID, channelID string) bool
	FrontendURL       string
	Version           string
}

// NewRouter builds the full middleware-wrapped route table.
func NewRouter(deps Deps) *chi.Mux {
	reg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(reg)
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		MaxRequests: 120,
		Window:      time.Minute,
	})

	r := chi.NewRouter()
	r.Use(middleware.Logging)
	r.Use(middleware.Monitoring(metrics))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(deps.FrontendURL))
	r.Use(middleware.RateLimit(rateLimiter))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", handler.Health(deps.DB, deps.Version))
	r.Get("/metrics", middleware.MetricsHandler(reg).ServeHTTP)

	if deps.ChatPublisher != nil {
		r.Post("/webhooks/chat", handler.ChatWebhook(deps.ChatPublisher, deps.ChatSourceType, deps.MonitoredChannels))
	}

	if deps.Exports != nil {
		r.Get("/exports/{id}.jsonl", handler.ExportDataset(deps.Exports))
		r.Get("/exports/{id}.c2pa.json", handler.ExportManifest(deps.Exports))
	}

	return r
}
