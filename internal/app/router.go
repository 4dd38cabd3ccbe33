package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/laptop-assistant/internal/adapter/httpserver"
	"github.com/fairyhunter13/laptop-assistant/internal/adapter/observability"
	"github.com/fairyhunter13/laptop-assistant/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.RequestID())
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	perMin := cfg.RateLimitPerMin
	if perMin <= 0 {
		perMin = 60
	}
	// chat turns can wait on several completions with retries
	chatTimeout := cfg.CompletionMaxElapsed*3 + cfg.ChatTimeout
	if chatTimeout <= 0 {
		chatTimeout = 3 * time.Minute
	}

	r.Group(func(wr chi.Router) {
		wr.Use(httprate.LimitByIP(perMin, time.Minute))
		wr.With(httpserver.TimeoutMiddleware(chatTimeout)).Post("/v1/chat", srv.ChatHandler())
		wr.With(httpserver.TimeoutMiddleware(30*time.Second)).Post("/v1/chat/reset", srv.ResetHandler())
		wr.With(httpserver.TimeoutMiddleware(chatTimeout)).Post("/v1/recommend", srv.RecommendHandler())
		// ingestion maps every row and is bounded only by the client
		wr.Post("/v1/ingest", srv.IngestHandler())
	})
	r.With(httpserver.TimeoutMiddleware(30*time.Second)).Get("/v1/chat/{id}", srv.TranscriptHandler())

	r.Get("/healthz", srv.HealthzHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Handle("/metrics", promhttp.Handler())

	return httpserver.SecurityHeaders(r)
}
