package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"supercv-backend/internal/bootstrap"
	"supercv-backend/internal/shared/config"
	"supercv-backend/internal/shared/telemetry"
	"supercv-backend/internal/shared/tracing"
	"supercv-backend/internal/worker"
)

const defaultShutdownTimeout = 30 * time.Second

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

// serve consumes the queue until ctx is done and returns the process exit code.
func serve(ctx context.Context, cfg config.Config) int {
	if cfg.SQSQueueURL == "" {
		telemetry.Error("worker.config_invalid", map[string]any{"error": "SQS_QUEUE_URL is required"})
		return 1
	}

	shutdownTracing := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: cfg.ServiceName + "-worker",
		Environment: cfg.Env,
	})

	app, err := bootstrap.Build(ctx, cfg, bootstrap.RoleWorker)
	if err != nil {
		telemetry.Error("worker.bootstrap_failed", map[string]any{"error": err})
		return 1
	}
	defer app.Close()

	runner := worker.NewSQSRunner(app.SQS, cfg.SQSQueueURL, app.Processor, cfg.WorkerConcurrency, cfg.VisibilitySeconds)
	runner.ShutdownTimeout = defaultShutdownTimeout

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTracing(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		telemetry.Error("worker.stopped", map[string]any{"error": err})
		return 1
	}
	return 0
}
