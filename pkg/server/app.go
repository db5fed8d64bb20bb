package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	pkgch "FinCast/pkg/clickhouse"
	"FinCast/pkg/config"
	xhttp "FinCast/pkg/http"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	chClient    *pkgch.Client
	redisClient *redis.Client
	consumer    *queue.RedisQueue
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
	closers     []func() error
	background  []func(context.Context)
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	chClient *pkgch.Client,
	redisClient *redis.Client,
	consumer *queue.RedisQueue,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:         cfg,
		log:         log,
		chClient:    chClient,
		redisClient: redisClient,
		consumer:    consumer,
		httpHandler: handler,
	}
}

// AddCloser registers extra cleanup to run on shutdown.
func (a *App) AddCloser(fn func() error) { a.closers = append(a.closers, fn) }

// AddBackground registers a task that runs for the lifetime of the server.
// The task's context is cancelled when Run returns.
func (a *App) AddBackground(fn func(context.Context)) { a.background = append(a.background, fn) }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []xhttp.ServerOption{
		xhttp.WithHost("0.0.0.0"),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	}
	if a.cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithRequestMetrics(a.log, 2*time.Second))
	}
	a.httpServer = xhttp.NewServer(a.httpHandler, opts...)

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.log.Error("queue start error", applogger.Error(err))
			return err
		}
		a.log.Info("prediction queue started", applogger.Int("workers", a.cfg.Queue.Workers))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("server started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("environment", a.cfg.Environment))

	for _, fn := range a.background {
		go fn(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("queue stop error", applogger.Error(err))
		}
	}

	for _, fn := range a.closers {
		if err := fn(); err != nil {
			a.log.Warn("cleanup error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("redis close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
