package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"

	"github.com/justmadeid/social-services/internal/api/handlers"
	"github.com/justmadeid/social-services/internal/http/mw"
	"github.com/justmadeid/social-services/internal/shutdown"
	"github.com/justmadeid/social-services/internal/tasks"
	"github.com/justmadeid/social-services/internal/version"
)

const (
	shutdownTimeout = 30 * time.Second
	cacheGCInterval = 10 * time.Minute
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the task workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if cmd.Flags().Changed("port") {
				a.cfg.Port = port
			}
			return serve(cmd.Context(), a)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default PORT)")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger

	logger.Info("starting social scraper",
		"version", version.Get().Version,
		"port", cfg.Port,
		"workers", cfg.WorkerConcurrency,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	engine, err := a.Engine()
	if err != nil {
		return err
	}
	go a.cacheStore.RunGC(ctx, cacheGCInterval)

	go func() {
		if err := a.launcher.Warmup(ctx); err != nil {
			logger.Warn("browser warmup failed; the first capture will retry", "error", err)
		}
	}()

	taskStore, err := tasks.NewSQLiteStore(a.db, a.isMemory, logger)
	if err != nil {
		return err
	}
	defer taskStore.Close()

	queue := tasks.NewQueue(taskStore, logger)
	worker := tasks.NewWorker(taskStore, tasks.NewRunner(engine), tasks.Config{
		PollInterval: cfg.WorkerPollInterval,
		Concurrency:  cfg.WorkerConcurrency,
		ResultTTL:    cfg.CacheTTLTaskResult,
	}, logger)

	// Running tasks outlive the shutdown signal until drainWorker gives up.
	workerCtx, workerCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer workerCancel()
	worker.Start(workerCtx)

	idle := shutdown.New(shutdown.Config{
		Timeout: cfg.IdleTimeout,
		Busy:    worker.Active,
		Logger:  logger,
	})
	idle.Start()

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.RequestContext)
	r.Use(mw.AccessLog(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.APIVersion())
	r.Use(idle.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-API-Version"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authEnabled := cfg.JWTSecret != "" && !cfg.AllowUnauthenticated
	switch {
	case authEnabled:
		logger.Info("authentication middleware enabled")
		r.Use(mw.OnPrefix("/v1/", mw.Auth(mw.AuthConfig{Secret: cfg.JWTSecret, Logger: logger})))
	case cfg.AllowUnauthenticated:
		logger.Warn("authentication disabled - ALLOW_UNAUTHENTICATED is set")
	default:
		logger.Warn("no authentication configured - service is unprotected")
	}

	r.Use(mw.OnPrefix("/v1/scrape/", mw.RateLimitByIP(cfg.RateLimitPerMinute)))

	humaConfig := huma.DefaultConfig("Social Scraper", version.Get().Version)
	humaConfig.Info.Description = "Queue user search, follow graph and timeline scrapes and poll for results"
	api := humachi.New(r, humaConfig)
	if authEnabled {
		mw.BearerSecurity(api)
	}
	handlers.Register(api, handlers.New(queue, engine, logger))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case <-idle.Done():
		logger.Info("shutting down after idle timeout")
	case err := <-serveErr:
		if err != nil {
			workerCancel()
			worker.Stop()
			idle.Stop()
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	drainWorker(worker, workerCancel, shutdownTimeout, logger)
	idle.Stop()
	cancel()

	logger.Info("server stopped")
	return nil
}

// drainWorker stops the worker, letting running tasks finish for up to
// timeout before cancelling them.
func drainWorker(w *tasks.Worker, cancel context.CancelFunc, timeout time.Duration, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("tasks still running after drain timeout, cancelling", "timeout", timeout)
		cancel()
		<-done
	}
}
