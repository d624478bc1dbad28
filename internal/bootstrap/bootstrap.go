package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/crypto/bcrypt"

	"posledger/backend/internal/cache"
	"posledger/backend/internal/config"
	"posledger/backend/internal/domain"
	"posledger/backend/internal/events"
	"posledger/backend/internal/logger"
	"posledger/backend/internal/metrics"
	"posledger/backend/internal/service"
	"posledger/backend/internal/store"
	"posledger/backend/internal/store/memory"
	pgstore "posledger/backend/internal/store/postgres"
)

var ErrDatabaseRequired = errors.New("DATABASE_URL is required")

type Options struct {
	// AllowMemory falls back to the seeded in-memory store when DATABASE_URL is empty.
	AllowMemory bool
}

// Runtime is the wired ledger: store, service, change feed and metrics.
type Runtime struct {
	Repo     store.Repository
	Service  *service.Service
	Hub      *events.Hub
	Registry *prometheus.Registry

	cancelRelay context.CancelFunc
	closers     []func() error
}

func Open(ctx context.Context, cfg config.Config, log *logger.Logger, opts Options) (*Runtime, error) {
	rt := &Runtime{
		Hub:      events.NewHub(),
		Registry: prometheus.NewRegistry(),
	}
	rt.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	repo, err := rt.openStore(ctx, cfg, log, opts)
	if err != nil {
		return nil, err
	}
	rt.Repo = repo

	loc, err := cfg.Location()
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	var (
		publisher   events.Publisher  = rt.Hub
		reportCache cache.ReportCache = cache.NewMemoryReportCache()
	)
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisCache := cache.NewRedisReportCache(client)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn(ctx, fmt.Sprintf("redis unavailable (%v), using in-process cache and feed", err))
			_ = redisCache.Close()
		} else {
			rt.closers = append(rt.closers, redisCache.Close)
			reportCache = redisCache
			bus := events.NewRedisBus(client, cfg.EventsChannel)
			publisher = bus
			rt.startRelay(bus, log)
			log.Info(ctx, "cache and change feed: redis")
		}
	}

	rt.Service = service.New(repo, service.Options{
		Location:       loc,
		RefundPolicy:   cfg.RefundPolicy,
		CommitRetries:  cfg.CommitRetries,
		Logger:         log,
		Metrics:        metrics.NewLedgerMetrics(rt.Registry),
		Events:         publisher,
		ReportCache:    reportCache,
		ReportCacheTTL: cfg.ReportCacheTTL(),
	})
	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context, cfg config.Config, log *logger.Logger, opts Options) (store.Repository, error) {
	if cfg.DatabaseURL == "" {
		if !opts.AllowMemory {
			return nil, ErrDatabaseRequired
		}
		log.Info(ctx, "repository: in-memory")
		return memory.NewSeeded(), nil
	}

	pg, err := pgstore.New(ctx, cfg.DatabaseURL, log.Zerolog())
	if err != nil {
		return nil, fmt.Errorf("postgres unavailable: %w", err)
	}
	rt.closers = append(rt.closers, pg.Close)

	if err := pg.EnsureSchema(ctx); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := pg.SeedCatalog(ctx, memory.SeedProducts(time.Now().UTC())); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("seed catalog: %w", err)
	}
	if err := SeedAdmin(ctx, pg, cfg.SeedAdminPassword); err != nil {
		_ = rt.Close()
		return nil, err
	}
	log.Info(ctx, "repository: postgres")
	return pg, nil
}

// SeedAdmin creates the first admin account when the user store is empty.
func SeedAdmin(ctx context.Context, users store.UserStore, password string) error {
	existing, err := users.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	if len(existing) > 0 || password == "" {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	err = users.CreateUser(ctx, domain.UserAccount{
		Username:    "admin",
		DisplayName: "Administrator",
		Password:    string(hash),
		Role:        "admin",
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil
	}
	return err
}

func (rt *Runtime) startRelay(bus *events.RedisBus, log *logger.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	rt.cancelRelay = cancel
	go func() {
		err := bus.Relay(ctx, rt.Hub, func(err error) {
			log.Error(ctx, "decode change feed message", err)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error(ctx, "change feed relay stopped", err)
		}
	}()
}

// Close stops the relay and releases connections in reverse order of opening.
func (rt *Runtime) Close() error {
	if rt.cancelRelay != nil {
		rt.cancelRelay()
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
