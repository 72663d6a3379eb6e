package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SupragyaBasnet/StepStunner-sub001/internal/accountlock"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/audit"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/bruteforce"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/config"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/csrf"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/handlers"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/ratelimit"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/report"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/security"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/storage"
	"github.com/SupragyaBasnet/StepStunner-sub001/libs/health"
	"github.com/SupragyaBasnet/StepStunner-sub001/libs/httpmiddleware"
	"github.com/SupragyaBasnet/StepStunner-sub001/libs/kafka"
	"github.com/SupragyaBasnet/StepStunner-sub001/libs/logging"
	"github.com/SupragyaBasnet/StepStunner-sub001/libs/metrics"
	"github.com/SupragyaBasnet/StepStunner-sub001/libs/trace"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"log/slog"
)

func main() {
	cfg, err := config.Load(os.Getenv("STEPSTUNNER_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.App.LogLevel, cfg.App.ServiceName, cfg.App.Env)

	shutdownTracer, err := trace.InitTracer(cfg.App.ServiceName, cfg.App.Env)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
	} else {
		defer func() {
			_ = shutdownTracer(context.Background())
		}()
	}

	if cfg.App.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	pool, err := connectDB(cfg)
	if err != nil {
		logger.Error("db connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := storage.New(pool)
	ready := health.NewManager(true, store)

	redisClient, err := connectRedis(cfg, logger)
	if err != nil {
		logger.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer func() {
			_ = redisClient.Close()
		}()
	}

	recorder, closeRecorder, err := buildRecorder(cfg, pool, registry, logger)
	if err != nil {
		logger.Error("audit recorder init failed", "error", err)
		os.Exit(1)
	}
	defer closeRecorder()

	limiter := ratelimit.New(buildRateStore(cfg, redisClient), rateClasses(cfg), logging.Component(logger, "ratelimit"))
	guard := bruteforce.New(bruteforce.NewMemoryStore(), cfg.Security.BruteForce.Threshold, cfg.Security.BruteForce.Window)
	csrfSvc := csrf.NewService(buildCSRFStore(cfg, redisClient), cfg.Security.CSRF.SessionTTL)

	locks := accountlock.New(store, recorder)
	reports := report.New(audit.NewPostgresStore(pool), store, cfg.Security.Audit.MaxEventFeed)

	argon := security.DefaultArgon2Params()
	argon.Memory = cfg.Auth.Argon2Memory
	argon.Iterations = cfg.Auth.Argon2Iters
	argon.Parallelism = cfg.Auth.Argon2Lanes

	authHandler := handlers.NewAuthHandler(store, logger, cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTTL, argon, csrfSvc)
	shopHandler := handlers.NewShopHandler(store, logger)
	adminHandler := handlers.NewAdminHandler(reports, locks, logger, cfg.Security.Lockout.DefaultDuration)

	router := gin.New()
	router.Use(httpmiddleware.RequestID())
	router.Use(httpmiddleware.Logger(logger))
	router.Use(httpmiddleware.Recovery(logger))
	router.Use(trace.Middleware(cfg.App.ServiceName))

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(ready))
	router.GET(cfg.App.MetricsPath, gin.WrapH(metrics.Handler(registry)))

	handlers.Register(router, handlers.Pipeline{
		Logger:        logger,
		Recorder:      recorder,
		Limiter:       limiter,
		Guard:         guard,
		CSRF:          csrfSvc,
		CSRFHeader:    cfg.Security.CSRF.HeaderName,
		SessionCookie: cfg.Security.CSRF.CookieName,
		SessionTTL:    cfg.Security.CSRF.SessionTTL,
		JWTSecret:     []byte(cfg.Auth.JWTSecret),
		APIKeys:       store,
	}, authHandler, shopHandler, adminHandler)

	addr := fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("storefront starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(server, logger)
}

func connectDB(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DB.ConnString())
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// connectRedis returns nil when no address is configured; the counter stores
// then stay process-local, which is fine for a single instance.
func connectRedis(cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if cfg.App.Env == "dev" || cfg.App.Env == "test" {
			logger.Warn("redis unavailable, falling back to memory stores", "error", err)
			return nil, nil
		}
		return nil, err
	}

	return client, nil
}

func buildRateStore(cfg *config.Config, client *redis.Client) ratelimit.Store {
	if client != nil {
		return ratelimit.NewRedisStore(client, cfg.Redis.Prefix+"rl:")
	}
	return ratelimit.NewMemoryStore()
}

func buildCSRFStore(cfg *config.Config, client *redis.Client) csrf.TokenStore {
	if client != nil {
		return csrf.NewRedisStore(client, cfg.Redis.Prefix+"csrf:")
	}
	return csrf.NewMemoryStore()
}

func rateClasses(cfg *config.Config) map[string]ratelimit.Policy {
	classes := map[string]ratelimit.Policy{}
	if !cfg.Security.RateLimit.Enabled {
		return classes
	}
	for name, class := range cfg.Security.RateLimit.Classes {
		classes[name] = ratelimit.Policy{Limit: class.Limit, Window: class.Window}
	}
	return classes
}

func buildRecorder(cfg *config.Config, pool *pgxpool.Pool, registry *prometheus.Registry, logger *slog.Logger) (*audit.Recorder, func(), error) {
	var opts []audit.RecorderOption
	opts = append(opts, audit.WithQueueSize(cfg.Security.Audit.QueueSize))

	var producer kafka.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		p, err := kafka.NewSyncProducer(cfg.Kafka.Brokers, logging.Component(logger, "kafka"), kafka.NewProducerMetrics(registry))
		if err != nil {
			if cfg.App.Env != "dev" && cfg.App.Env != "test" {
				return nil, nil, err
			}
			logger.Warn("kafka unavailable, security events stay local", "error", err)
		} else {
			producer = p
			opts = append(opts, audit.WithPublisher(producer, cfg.Kafka.SecurityEventTopic))
		}
	}

	recorder := audit.NewRecorder(
		audit.NewPostgresStore(pool),
		logging.Component(logger, "audit"),
		cfg.Security.Audit.SkipPaths,
		opts...,
	)
	recorder.Start()

	closeFn := func() {
		recorder.Close()
		if producer != nil {
			_ = producer.Close()
		}
	}
	return recorder, closeFn, nil
}

func waitForShutdown(server *http.Server, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutdown started")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		return
	}
	logger.Info("shutdown complete")
}
