package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/api"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/appointment"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/config"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/correlation"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/db"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/fieldcipher"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/logging"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/metrics"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/phone"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/reconcile"
	redisclient "github.com/Talhasaeed420/Clinic-Ai-Agent/internal/redis"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/timeparse"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err.Error())
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort, "version", version)

	cipher, err := fieldcipher.New(cfg.EncryptionKey)
	if err != nil {
		fatal(logger, "invalid ENCRYPTION_KEY", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(cfg.PostgresDSN); err != nil {
		fatal(logger, "migration error", err)
	}

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		fatal(logger, "postgres connection error", err)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		fatal(logger, "redis connection error", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", "error", err.Error())
		}
	}()
	logger.Info("connected to Redis")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	bookings := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		redisclient.NewRedisLocker(rdb, cfg.LockTTL),
		logger,
	)
	store := correlation.NewStore(correlation.NewPgRepository(pgPool), bookings, logger)
	times := timeparse.New()

	forwarder := reconcile.NewForwarder(reconcile.ForwarderConfig{
		BookingURL: cfg.BookingWebhookURL,
		SMSURL:     cfg.SMSWebhookURL,
		Timeout:    cfg.ForwardTimeout,
		Workers:    cfg.ForwardWorkers,
		QueueSize:  cfg.ForwardQueueSize,
		Phone:      phone.NewNormalizer(cfg.PhoneDefaultRegion),
		Logger:     logger,
		Metrics:    m,
	})
	if cfg.BookingWebhookURL == "" {
		logger.Warn("BOOKING_WEBHOOK_URL not set, bookings will not be forwarded")
	}

	engine := reconcile.NewEngine(reconcile.EngineConfig{
		Normalizer:            times,
		Bookings:              bookings,
		Correlation:           store,
		Cipher:                cipher,
		Dispatcher:            forwarder,
		Logger:                logger,
		Metrics:               m,
		StoreTimeout:          cfg.StoreTimeout,
		ForwardPlaintextEmail: cfg.ForwardPlaintextEmail,
	})

	router := api.NewRouter(api.RouterConfig{
		Appointments:     bookings,
		Correlation:      store,
		Engine:           engine,
		Cipher:           cipher,
		Times:            times,
		Postgres:         pgPool,
		Redis:            api.RedisPinger(rdb),
		Metrics:          m,
		MetricsHandler:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Logger:           logger,
		AdminJWTSecret:   cfg.AdminJWTSecret,
		WebhookRateLimit: cfg.WebhookRateLimit,
		WebhookRateBurst: cfg.WebhookRateBurst,
		Env:              cfg.Env,
		Version:          version,
	})

	// The forwarder outlives request handling so in-flight pushes drain
	// after the server stops accepting webhooks.
	fwdCtx, stopForwarder := context.WithCancel(context.Background())
	fwdDone := make(chan struct{})
	go func() {
		defer close(fwdDone)
		_ = forwarder.Run(fwdCtx)
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server error", "error", err.Error())
		}
	}

	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err.Error())
	}

	stopForwarder()
	select {
	case <-fwdDone:
		logger.Info("forwarder drained")
	case <-shutdownCtx.Done():
		logger.Warn("forwarder drain timed out")
	}
}

func fatal(logger *logging.Logger, msg string, err error) {
	logger.Error(msg, "error", err.Error())
	os.Exit(1)
}
