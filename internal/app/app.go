// Package app wires the sourcemart API server.
package app

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/sourcemart/db"
	"github.com/xenking/sourcemart/internal/domain/checkout"
	"github.com/xenking/sourcemart/internal/events"
	"github.com/xenking/sourcemart/internal/handler"
	"github.com/xenking/sourcemart/internal/idempotency"
	"github.com/xenking/sourcemart/internal/memstore"
	"github.com/xenking/sourcemart/internal/repository"
	"github.com/xenking/sourcemart/internal/seed"
	"github.com/xenking/sourcemart/pkg/health"
	"github.com/xenking/sourcemart/pkg/httpmiddleware"
)

const serviceName = "sourcemart-api"

// backend is the storage the service runs on plus its optional integrations.
type backend struct {
	deps    checkout.Deps
	guard   idempotency.Guard
	health  *health.Health
	closers []func() error
}

func (b *backend) close(lg *zap.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			lg.Warn("Close failed", zap.Error(err))
		}
	}
}

// Run creates all dependencies, serves HTTP and shuts down gracefully when
// ctx is done.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	b, err := openBackend(ctx, lg, m, cfg)
	if err != nil {
		return err
	}
	defer b.close(lg)

	svc, err := checkout.NewService(cfg.checkoutConfig(), b.deps,
		checkout.WithMeterProvider(m.MeterProvider()),
		checkout.WithTracerProvider(m.TracerProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create checkout service")
	}

	b.health.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))
	b.health.Start(ctx, 10*time.Second)
	b.health.SetReady(true)

	h := handler.New(svc, svc.Coupons(), handler.WithIdempotency(b.guard))
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           newRouter(ctx, cfg, h, b.health, m),
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		b.health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		b.health.Stop()
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newRouter assembles middlewares, health endpoints and API routes.
func newRouter(ctx context.Context, cfg *Config, h *handler.Handler, hs *health.Health, m httpmiddleware.Telemetry) http.Handler {
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Instrument(serviceName, m),
		httpmiddleware.LogRequests(),
	)
	r.Get("/livez", hs.LiveEndpoint)
	r.Get("/readyz", hs.ReadyEndpoint)
	h.Mount(r)

	// Validated by LoadConfig.
	proxies, _ := cfg.RateLimit.trustedProxies()
	return httpmiddleware.Wrap(r,
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.RequestID(),
		httpmiddleware.Recovery(),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.Origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Idempotency-Key", httpmiddleware.HeaderRequestID},
			ExposedHeaders:   []string{httpmiddleware.HeaderRequestID, "Idempotent-Replayed", "Retry-After"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			RPS:            cfg.RateLimit.RPS,
			Burst:          cfg.RateLimit.Burst,
			TrustedProxies: proxies,
		}),
	)
}

func openBackend(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) (*backend, error) {
	b := &backend{health: health.New()}

	var err error
	switch cfg.Storage {
	case StorageMemory:
		err = b.openMemory(ctx, cfg)
	default:
		err = b.openPostgres(ctx, cfg)
	}
	if err != nil {
		b.close(lg)
		return nil, err
	}

	if cfg.Redis.Addr != "" {
		client, err := idempotency.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			b.close(lg)
			return nil, errors.Wrap(err, "connect redis")
		}
		guard := idempotency.NewRedisGuard(client, cfg.Redis.IdempotencyTTL)
		b.guard = guard
		b.closers = append(b.closers, client.Close)
		b.health.Add(health.Readiness, "redis", 2*time.Second, health.PingCheck(guard))
		lg.Info("Idempotency keys stored in Redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		b.guard = idempotency.NewMemoryGuard(cfg.Redis.IdempotencyTTL)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		pub := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic,
			events.WithTracerProvider(m.TracerProvider()),
			events.WithPropagator(m.TextMapPropagator()),
		)
		b.deps.Events = pub
		b.closers = append(b.closers, pub.Close)
		lg.Info("Publishing order events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	return b, nil
}

func (b *backend) openMemory(ctx context.Context, cfg *Config) error {
	data := db.Catalog
	if cfg.SeedFile != "" {
		raw, err := os.ReadFile(cfg.SeedFile)
		if err != nil {
			return errors.Wrap(err, "read seed file")
		}
		data = raw
	}
	catalog, err := seed.Parse(data)
	if err != nil {
		return errors.Wrap(err, "parse catalog")
	}

	store := memstore.New()
	if err := seed.Apply(ctx, store, catalog); err != nil {
		return errors.Wrap(err, "seed memory store")
	}
	b.deps = checkout.Deps{
		Products: store.Products(),
		Users:    store.Users(),
		Coupons:  store.Coupons(),
		Orders:   store.Orders(),
		Carts:    store.Carts(),
	}
	return nil
}

func (b *backend) openPostgres(ctx context.Context, cfg *Config) error {
	if err := repository.RunMigrations(cfg.DatabaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	b.closers = append(b.closers, func() error { pool.Close(); return nil })
	b.health.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))

	b.deps = checkout.Deps{
		Products: repository.NewProductRepository(pool),
		Users:    repository.NewUserRepository(pool),
		Coupons:  repository.NewCouponRepository(pool),
		Orders:   repository.NewOrderRepository(pool),
		Carts:    repository.NewCartRepository(pool),
	}
	return nil
}
