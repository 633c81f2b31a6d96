package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"supercv-backend/internal/bootstrap"
	"supercv-backend/internal/shared/config"
	"supercv-backend/internal/shared/server"
	"supercv-backend/internal/shared/telemetry"
	"supercv-backend/internal/shared/tracing"
	"supercv-backend/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Print(err)
		return 1
	}
	flush, err := telemetry.Init(cfg.Env)
	if err != nil {
		log.Printf("init logger: %v", err)
		return 1
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg)
}

// serve runs the API until ctx is done and returns the process exit code.
func serve(ctx context.Context, cfg config.Config) int {
	shutdownTracing := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
	})

	app, err := bootstrap.Build(ctx, cfg, bootstrap.RoleAPI)
	if err != nil {
		telemetry.Error("api.bootstrap_failed", map[string]any{"error": err})
		return 1
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              server.Addr(cfg.Port),
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		telemetry.Info("api.listening", map[string]any{"addr": srv.Addr, "env": cfg.Env})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if app.MemoryQueue != nil {
		// Without SQS the jobs stay in this process.
		runner := worker.NewMemoryRunner(app.MemoryQueue, app.Processor, cfg.WorkerConcurrency)
		g.Go(func() error { return runner.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			telemetry.Warn("api.shutdown_failed", map[string]any{"error": err})
		}
		return shutdownTracing(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		telemetry.Error("api.stopped", map[string]any{"error": err})
		return 1
	}
	telemetry.Info("api.stopped", nil)
	return 0
}
