package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-campus/internal/audit"
	"github.com/odyssey-erp/odyssey-campus/internal/auth"
	"github.com/odyssey-erp/odyssey-campus/internal/elections"
	"github.com/odyssey-erp/odyssey-campus/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-campus/internal/platform/db"
	"github.com/odyssey-erp/odyssey-campus/internal/shared"
)

// Services holds the domain services shared by the server, worker and CLI.
type Services struct {
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Auth      *auth.Service
	Elections *elections.Service
	Audit     *audit.Service
	// Memory is set when STORE_DRIVER=memory.
	Memory *elections.MemoryStore
}

// ServicesOptions carries optional collaborators for BuildServices.
type ServicesOptions struct {
	VoteObserver elections.VoteObserver
	// Users seeds the in-memory account store.
	Users []auth.User
}

// BuildServices connects postgres and redis per cfg and wires the domain
// services. When redis is unreachable at startup results are computed on
// every request.
func BuildServices(ctx context.Context, cfg *Config, logger *slog.Logger, opts ServicesOptions) (*Services, error) {
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	resultsClient := redisClient
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
		resultsClient = nil
	}
	svcs := &Services{Redis: redisClient}

	var (
		store    elections.Store
		sink     shared.AuditSink
		authRepo auth.Repository
		trail    audit.Repository
	)
	switch cfg.StoreDriver {
	case StoreDriverMemory:
		mem := elections.NewMemoryStore()
		svcs.Memory = mem
		store = mem
		memLog := audit.NewMemoryLog()
		sink = shared.AuditSinks{memLog, shared.SlogAuditSink{Logger: logger}}
		trail = memLog
		authRepo = auth.NewMemoryRepository(opts.Users...)
	default:
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
		if err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		svcs.Pool = pool
		store = elections.NewRepository(pool)
		sink = shared.NewAuditLogger(pool)
		trail = audit.NewRepository(pool)
		authRepo = auth.NewRepository(pool)
	}

	svcs.Auth = auth.NewService(authRepo)
	svcs.Audit = audit.NewService(trail)
	svcs.Elections = elections.NewService(store, elections.ServiceConfig{
		Audit:   sink,
		Cache:   elections.NewRedisResultsCache(resultsClient, cfg.ResultsCacheTTL),
		Metrics: opts.VoteObserver,
		Logger:  logger,
	})
	return svcs, nil
}

// Close releases connections.
func (s *Services) Close(logger *slog.Logger) {
	if s == nil {
		return
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}
}
