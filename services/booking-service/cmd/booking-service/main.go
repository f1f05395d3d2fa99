package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptengine/libs/config"
	"github.com/md-rashed-zaman/apptengine/libs/db"
	"github.com/md-rashed-zaman/apptengine/libs/httpx"
	"github.com/md-rashed-zaman/apptengine/libs/kafkax"
	otelx "github.com/md-rashed-zaman/apptengine/libs/otel"
	"github.com/md-rashed-zaman/apptengine/libs/runtime"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/cache"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/sweeper"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	lockTimeout, err := config.Duration("DB_LOCK_TIMEOUT", 5*time.Second)
	if err != nil {
		panic(err)
	}
	engineCfg, err := engineConfig()
	if err != nil {
		panic(err)
	}

	readyChecks := []runtime.ReadyCheck{}
	var store storage.Store
	brokers := config.String("KAFKA_BROKERS", "")
	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err := db.Open(ctx, dbURL, db.Options{LockTimeout: lockTimeout})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()

		outboxRepo := outbox.NewRepository()
		pg := storage.NewPostgres(pool, outboxRepo)
		if config.Bool("DB_MIGRATE", true) {
			if err := pg.Migrate(ctx); err != nil {
				logger.Error("db migration failed", "err", err)
				panic(err)
			}
		}
		store = pg
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		if strings.TrimSpace(brokers) != "" {
			publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
				Brokers:   brokers,
				PollEvery: 2 * time.Second,
				BatchSize: 50,
			})
			go publisher.Run(ctx)
			readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		}
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory store, events are not relayed to kafka")
		store = storage.NewMemory(lockTimeout)
	}

	eventBuffer, err := config.Int("EVENT_BUFFER", 256)
	if err != nil {
		panic(err)
	}
	broadcaster := events.NewBroadcaster(logger, eventBuffer)
	defer broadcaster.Close()
	engine := booking.New(store, broadcaster, logger, engineCfg)

	var rdb *redis.Client
	var availCache handlers.AvailabilityCache
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		defer func() { _ = rdb.Close() }()
		c := cache.NewAvailabilityCache(rdb, 30*time.Second, config.String("AVAILABILITY_CACHE_PREFIX", "avail"), logger)
		go c.Watch(ctx, broadcaster)
		availCache = c
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	noShows, err := sweeper.NewNoShowSweeper(config.String("NO_SHOW_SWEEP_SPEC", "@every 5m"), engine, logger, time.Minute)
	if err != nil {
		panic(err)
	}
	go noShows.Run(ctx)

	if err := startGrpcServer(ctx, logger, store); err != nil {
		logger.Error("grpc server init failed", "err", err)
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handlers.NewHandler(engine, logger, config.String("AUTH_HS256_SECRET", ""), availCache).Register(mux)

	middleware := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", ""), ","),
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", handlers.IdempotencyKeyHeader, handlers.ActorRoleHeader, httpx.RequestIDHeader},
			ExposedHeaders: []string{"Retry-After", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(1 << 20),
	}
	limit, err := config.Int("RATE_LIMIT_PER_MINUTE", 0)
	if err != nil {
		panic(err)
	}
	if limit > 0 {
		if rdb != nil {
			middleware = append(middleware, httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "rl:booking").Middleware(logger, true))
		} else {
			middleware = append(middleware, httpx.NewRateLimiter(limit, time.Minute).Middleware())
		}
	}
	handlerTimeout, err := config.Duration("HTTP_HANDLER_TIMEOUT", 15*time.Second)
	if err != nil {
		panic(err)
	}
	if handlerTimeout > 0 {
		// Innermost, so the timeout only covers the handler itself.
		middleware = append(middleware, httpx.WithTimeout(handlerTimeout))
	}
	httpHandler := httpx.Chain(mux, middleware...)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func engineConfig() (booking.Config, error) {
	cfg := booking.DefaultConfig()
	var err error
	if cfg.MaxReschedules, err = config.Int("MAX_RESCHEDULES", cfg.MaxReschedules); err != nil {
		return cfg, err
	}
	if cfg.MinRescheduleLead, err = config.Duration("RESCHEDULE_MIN_LEAD", cfg.MinRescheduleLead); err != nil {
		return cfg, err
	}
	if cfg.NoShowGrace, err = config.Duration("NO_SHOW_GRACE", cfg.NoShowGrace); err != nil {
		return cfg, err
	}
	return cfg, nil
}
