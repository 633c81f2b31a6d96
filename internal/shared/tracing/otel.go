package tracing

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"supercv-backend/internal/shared/telemetry"
)

// Config selects whether tracing is active and how spans are labeled.
type Config struct {
	Enabled     bool
	ServiceName string
	Environment string
}

var (
	initOnce sync.Once
	shutdown = func(context.Context) error { return nil }
)

// Init installs a global tracer provider once per process. When tracing is
// disabled the no-op provider stays in place and the returned func does nothing.
func Init(ctx context.Context, cfg Config) func(context.Context) error {
	initOnce.Do(func() {
		if !cfg.Enabled {
			return
		}
		name := strings.TrimSpace(cfg.ServiceName)
		if name == "" {
			name = "supercv"
		}
		res, err := resource.New(ctx, resource.WithAttributes(
			attribute.String("service.name", name),
			attribute.String("deployment.environment", cfg.Environment),
		))
		if err != nil {
			telemetry.Warn("otel.resource_failed", map[string]any{"error": err})
		}
		exporter, err := stdouttrace.New()
		if err != nil {
			telemetry.Error("otel.exporter_failed", map[string]any{"error": err})
			return
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		shutdown = tp.Shutdown
		telemetry.Info("otel.initialized", map[string]any{"service": name})
	})
	return shutdown
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
