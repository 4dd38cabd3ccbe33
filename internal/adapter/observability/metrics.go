package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider, operation and outcome",
		},
		[]string{"provider", "operation", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"provider", "operation"},
	)
	AITokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Estimated tokens sent and received by provider and direction",
		},
		[]string{"provider", "direction"},
	)

	ConversationTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_turns_total",
			Help: "Conversation turns by resulting phase",
		},
		[]string{"phase"},
	)
	ModerationFlagsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moderation_flags_total",
			Help: "Conversations reset because moderation flagged a message",
		},
	)
	DegradedTurnsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conversation_degraded_turns_total",
			Help: "Turns answered with a retry prompt after an upstream failure",
		},
	)
	RecommendationsServedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendations_served_total",
			Help: "Recommendation replies sent to users",
		},
	)

	MappingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapping_cache_lookups_total",
			Help: "Product mapping cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)

	IngestionRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingestion_rows_total",
			Help: "Catalog rows written by ingestion runs",
		},
	)
	IngestionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestion_runs_total",
			Help: "Ingestion runs by outcome",
		},
		[]string{"outcome"},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_events_published_total",
			Help: "Conversation events published by type and outcome",
		},
		[]string{"type", "outcome"},
	)
)

var initOnce sync.Once

// InitMetrics registers all collectors with the default registry. Safe to call
// more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AIRequestsTotal,
			AIRequestDuration,
			AITokensTotal,
			ConversationTurnsTotal,
			ModerationFlagsTotal,
			DegradedTurnsTotal,
			RecommendationsServedTotal,
			MappingCacheTotal,
			IngestionRowsTotal,
			IngestionRunsTotal,
			EventsPublishedTotal,
		)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// route pattern is only known after chi has routed the request
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveAIRequest records one provider call.
func ObserveAIRequest(provider, operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	AIRequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
	AIRequestDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}

// ObserveTokens records estimated token usage for one provider call.
func ObserveTokens(provider string, prompt, completion int) {
	AITokensTotal.WithLabelValues(provider, "prompt").Add(float64(prompt))
	AITokensTotal.WithLabelValues(provider, "completion").Add(float64(completion))
}

// ObserveTurn records the outcome of one conversation turn.
func ObserveTurn(phase string, flagged, degraded, recommended bool) {
	ConversationTurnsTotal.WithLabelValues(phase).Inc()
	if flagged {
		ModerationFlagsTotal.Inc()
	}
	if degraded {
		DegradedTurnsTotal.Inc()
	}
	if recommended {
		RecommendationsServedTotal.Inc()
	}
}

// ObserveCacheLookup records a mapping cache lookup on tier (l1 or l2).
func ObserveCacheLookup(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	MappingCacheTotal.WithLabelValues(tier, result).Inc()
}

// ObserveIngestion records a finished ingestion run.
func ObserveIngestion(rows int, err error) {
	if err != nil {
		IngestionRunsTotal.WithLabelValues("error").Inc()
		return
	}
	IngestionRunsTotal.WithLabelValues("ok").Inc()
	IngestionRowsTotal.Add(float64(rows))
}

// ObserveEvent records a conversation event publish attempt.
func ObserveEvent(eventType string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	EventsPublishedTotal.WithLabelValues(eventType, outcome).Inc()
}
