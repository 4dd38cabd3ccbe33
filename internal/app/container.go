package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/laptop-assistant/internal/adapter/ai/breaker"
	"github.com/fairyhunter13/laptop-assistant/internal/adapter/ai/gemini"
	"github.com/fairyhunter13/laptop-assistant/internal/adapter/ai/openai"
	"github.com/fairyhunter13/laptop-assistant/internal/adapter/cache"
	httpserver "github.com/fairyhunter13/laptop-assistant/internal/adapter/httpserver"
	"github.com/fairyhunter13/laptop-assistant/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/laptop-assistant/internal/adapter/ratelimit"
	"github.com/fairyhunter13/laptop-assistant/internal/adapter/repo/file"
	"github.com/fairyhunter13/laptop-assistant/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/laptop-assistant/internal/adapter/repo/sqlite"
	"github.com/fairyhunter13/laptop-assistant/internal/adapter/session"
	"github.com/fairyhunter13/laptop-assistant/internal/adapter/storage/s3"
	"github.com/fairyhunter13/laptop-assistant/internal/adapter/tabular"
	"github.com/fairyhunter13/laptop-assistant/internal/config"
	"github.com/fairyhunter13/laptop-assistant/internal/domain"
	"github.com/fairyhunter13/laptop-assistant/internal/prompts"
	"github.com/fairyhunter13/laptop-assistant/internal/usecase"
)

// Container holds every wired dependency of the assistant.
type Container struct {
	Cfg     config.Config
	Prompts *prompts.Set

	Chat      domain.ChatProvider
	Moderator domain.Moderator

	Codec    tabular.Codec
	Catalog  domain.CatalogStore
	Objects  domain.ObjectStore
	Sessions domain.SessionStore
	Feedback domain.FeedbackRecorder
	Events   domain.EventPublisher

	Mapper       *usecase.ProductMapper
	Recommender  *usecase.Recommender
	Orchestrator usecase.Orchestrator
	Ingestion    usecase.IngestionService

	Checks  []httpserver.ReadinessCheck
	Sweeper *SessionSweeper

	closers []func() error
}

// Options tweaks Build for callers that do not serve chat traffic.
type Options struct {
	// SkipEvents leaves the Kafka producer unconnected.
	SkipEvents bool
}

// Build wires adapters and usecases from cfg. Optional infrastructure
// (Redis, Kafka, S3) is skipped when unconfigured. Close must be called
// even when Build fails.
func Build(ctx context.Context, cfg config.Config, opts Options) (c *Container, err error) {
	c = &Container{Cfg: cfg, Codec: tabular.New()}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	if c.Prompts, err = prompts.Load(); err != nil {
		return c, fmt.Errorf("op=app.Build: %w", err)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		ropts, perr := redis.ParseURL(cfg.RedisURL)
		if perr != nil {
			return c, fmt.Errorf("op=app.Build: redis url: %w", perr)
		}
		rdb = redis.NewClient(ropts)
		c.closers = append(c.closers, rdb.Close)
	}

	if err = c.buildProviders(ctx, rdb); err != nil {
		return c, err
	}
	var db Pinger
	if db, err = c.buildStores(ctx); err != nil {
		return c, err
	}

	if rdb != nil {
		c.Sessions = session.NewRedisStore(rdb, cfg.SessionTTL)
	} else {
		mem := session.NewMemoryStore(cfg.SessionTTL)
		c.Sessions = mem
		c.Sweeper = NewSessionSweeper(mem, time.Minute)
	}

	if cfg.S3Enabled() {
		store, serr := s3.New(s3.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
			Prefix:    "catalogs/",
		})
		if serr != nil {
			return c, fmt.Errorf("op=app.Build: %w", serr)
		}
		c.Objects = store
	}

	if cfg.KafkaEnabled() && !opts.SkipEvents {
		p, perr := redpanda.NewProducer(ctx, cfg.KafkaBrokers, cfg.HandoffTopic, cfg.KafkaTransactionalID)
		if perr != nil {
			return c, fmt.Errorf("op=app.Build: %w", perr)
		}
		c.Events = p
		c.closers = append(c.closers, p.Close)
	}

	l1, err := cache.NewLRU(cfg.MappingCacheSize)
	if err != nil {
		return c, fmt.Errorf("op=app.Build: %w", err)
	}
	var l2 domain.MappingCache
	if rdb != nil {
		l2 = cache.NewRedis(rdb, "mapping:", cfg.MappingCacheTTL)
	}

	retry := cfg.GetRetryConfig()
	gw := usecase.NewCompletionGateway(c.Chat, usecase.NewRetryPolicy(retry.MaxAttempts, retry.MinInterval, retry.MaxInterval, retry.MaxElapsed))
	minBudget := cfg.MinBudget
	if minBudget <= 0 {
		minBudget = domain.DefaultMinBudget
	}

	c.Mapper = usecase.NewProductMapper(gw, c.Prompts, cache.NewTiered(l1, l2), cfg.MappingWorkers)
	c.Mapper.CallTimeout = retry.MaxElapsed + cfg.ChatTimeout
	c.Recommender = usecase.NewRecommender(c.Catalog, c.Mapper, gw, c.Prompts)
	c.Orchestrator = usecase.Orchestrator{
		Gateway:     gw,
		Moderation:  usecase.ModerationGate{Moderator: c.Moderator},
		Extractor:   usecase.NewProfileExtractor(gw, c.Prompts, minBudget),
		Recommender: c.Recommender,
		Prompts:     c.Prompts,
		Feedback:    c.Feedback,
		Events:      c.Events,
		MinBudget:   minBudget,
	}
	c.Ingestion = usecase.IngestionService{
		Codec:        c.Codec,
		Catalog:      c.Catalog,
		Mapper:       c.Mapper,
		Objects:      c.Objects,
		SnapshotPath: cfg.MappedSnapshot,
	}

	var rc RedisClient
	if rdb != nil {
		rc = redisPinger{rdb}
	}
	c.Checks = BuildReadinessChecks(db, rc, c.Catalog)
	return c, nil
}

// buildProviders selects the chat provider and wraps both providers with a
// circuit breaker and, when Redis is available, the shared throttle.
func (c *Container) buildProviders(ctx context.Context, rdb *redis.Client) error {
	cfg := c.Cfg
	oa := openai.New(openai.Options{
		BaseURL:         cfg.OpenAIBaseURL,
		APIKey:          cfg.OpenAIAPIKey,
		ChatModel:       cfg.ChatModel,
		ModerationModel: cfg.ModerationModel,
		Timeout:         cfg.ChatTimeout,
	})
	if cfg.OpenAIAPIKey == "" {
		slog.Warn("OPENAI_API_KEY not set; moderation calls will fail and turns will degrade")
	}

	var chat domain.ChatProvider = oa
	if strings.EqualFold(cfg.LLMProvider, config.ProviderGemini) {
		gc, err := gemini.New(ctx, gemini.Options{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})
		if err != nil {
			return fmt.Errorf("op=app.Build: %w", err)
		}
		chat = gc
	}

	var mod domain.Moderator = oa
	chat = breaker.ChatProvider{Next: chat, Breaker: breaker.New("chat", cfg.BreakerMaxFailures, cfg.BreakerOpenTimeout, 1)}
	mod = breaker.Moderator{Next: mod, Breaker: breaker.New("moderation", cfg.BreakerMaxFailures, cfg.BreakerOpenTimeout, 1)}

	if rdb != nil && (cfg.LLMRequestsPerMin > 0 || cfg.ModerationRequestsPerMin > 0) {
		lim := ratelimit.NewRedisLimiter(rdb, map[string]ratelimit.BucketConfig{
			ratelimit.KeyChat:       ratelimit.NewBucketConfigFromPerMinute(cfg.LLMRequestsPerMin),
			ratelimit.KeyModeration: ratelimit.NewBucketConfigFromPerMinute(cfg.ModerationRequestsPerMin),
		})
		chat = ratelimit.ChatProvider{Next: chat, Limiter: lim}
		mod = ratelimit.Moderator{Next: mod, Limiter: lim}
	}
	c.Chat, c.Moderator = chat, mod
	return nil
}

// buildStores opens the catalog backend and, where the backend is a
// database, the ratings table next to it. The returned Pinger is nil for
// the file backend.
func (c *Container) buildStores(ctx context.Context) (Pinger, error) {
	cfg := c.Cfg
	switch strings.ToLower(cfg.CatalogBackend) {
	case config.CatalogPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("op=app.Build: %w", err)
		}
		c.closers = append(c.closers, func() error { pool.Close(); return nil })
		repo, err := postgres.NewCatalogRepo(pool, cfg.CatalogTable)
		if err != nil {
			return nil, fmt.Errorf("op=app.Build: %w", err)
		}
		fb := postgres.NewFeedbackRepo(pool)
		if err := fb.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("op=app.Build: %w", err)
		}
		c.Catalog, c.Feedback = repo, fb
		return pool, nil
	case config.CatalogSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("op=app.Build: %w", err)
		}
		c.closers = append(c.closers, db.Close)
		repo, err := sqlite.NewCatalogRepo(db, cfg.CatalogTable)
		if err != nil {
			return nil, fmt.Errorf("op=app.Build: %w", err)
		}
		fb := sqlite.NewFeedbackRepo(db)
		if err := fb.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("op=app.Build: %w", err)
		}
		c.Catalog, c.Feedback = repo, fb
		return sqlPinger{db}, nil
	case config.CatalogFile:
		c.Catalog = file.NewCatalogRepo(c.Codec, cfg.CatalogFile)
		return nil, nil
	}
	return nil, fmt.Errorf("op=app.Build: %w: catalog backend %q", domain.ErrInvalidArgument, cfg.CatalogBackend)
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	if err := errors.Join(errs...); err != nil {
		slog.Error("closing dependencies", slog.Any("error", err))
	}
}

// Server returns the HTTP server for the container's usecases.
func (c *Container) Server() *httpserver.Server {
	return httpserver.NewServer(c.Cfg, c.Sessions, c.Orchestrator, c.Ingestion, c.Recommender, c.Catalog, c.Checks...)
}

type redisPinger struct{ c *redis.Client }

func (r redisPinger) Ping(ctx context.Context) RedisPingResult { return r.c.Ping(ctx) }

type sqlPinger struct{ db *sql.DB }

func (s sqlPinger) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
