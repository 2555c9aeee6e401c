package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/oakmart/lucky-store/internal/checkout"
	"github.com/oakmart/lucky-store/internal/domain/money"
	"github.com/oakmart/lucky-store/internal/domain/product"
	"github.com/oakmart/lucky-store/internal/handler"
	"github.com/oakmart/lucky-store/internal/payment"
	"github.com/oakmart/lucky-store/internal/storage/postgres"
	"github.com/oakmart/lucky-store/internal/storage/rediscache"
	"github.com/oakmart/lucky-store/pkg/health"
	"github.com/oakmart/lucky-store/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	maxAmount, err := money.FromString(cfg.Checkout.MaxOrderAmount)
	if err != nil {
		return errors.Wrap(err, "parse max order amount")
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories. The catalog gets a Redis read-through cache when a cache
	// address is configured; everything transactional stays on Postgres.
	var products product.Repository = postgres.NewProductRepository(pool)
	if cfg.CacheAddr != "" {
		cache := redis.NewClient(&redis.Options{Addr: cfg.CacheAddr})
		defer func() { _ = cache.Close() }()
		healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
			return cache.Ping(ctx).Err()
		})
		products = rediscache.New(products, cache, cfg.CacheTTL)
	}
	carts := postgres.NewCartStore(pool)
	orders := postgres.NewOrderLedger(pool)
	apikeys := postgres.NewAPIKeyRepository(pool)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Payment provider client: checkout sessions and catalog sync.
	provider := payment.NewClient(payment.ClientConfig{
		BaseURL: cfg.Payment.BaseURL,
		APIKey:  cfg.Payment.APIKey,
		Timeout: cfg.Payment.Timeout,
	})

	// Checkout coordinator over the transactional store.
	coordinator := checkout.New(postgres.NewStore(pool), provider, checkout.Config{
		MaxOrderAmount: maxAmount,
		SuccessURL:     cfg.Payment.SuccessURL,
		CancelURL:      cfg.Payment.CancelURL,
	})

	// HTTP handlers.
	h := handler.New(
		handler.Config{
			APIKeyPepper:  []byte(cfg.APIKeyPepper),
			WebhookSecret: []byte(cfg.Payment.WebhookSecret),
		},
		products,
		carts,
		orders,
		coordinator,
		provider,
		apikeys,
	)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", http.StripPrefix("/api", h.Routes()))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-API-Key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("store-api",
				otelhttpWithProviders(m)...,
			),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// otelhttpWithProviders binds HTTP instrumentation to the application's
// telemetry providers instead of the globals.
func otelhttpWithProviders(m *app.Telemetry) []otelhttp.Option {
	return []otelhttp.Option{
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	}
}
