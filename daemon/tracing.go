package daemon

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// initTracer wires a batching OTLP/gRPC span exporter for the daemon's RPC
// handlers. The exporter dials lazily — if no collector is listening at
// OTEL_EXPORTER_OTLP_ENDPOINT, span export simply fails silently in the
// background rather than blocking startup, matching otlptracegrpc's own
// default non-blocking dial behavior.
func initTracer(ctx context.Context) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", "lifoshd"),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

var tracer = otel.Tracer("github.com/lifosh/lifosh/daemon")

// traced wraps an RPC handler in a span named after its route, the daemon
// analogue of the per-command log line every shell builtin already emits.
func traced(route string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), route, trace.WithAttributes(
			attribute.String("http.method", r.Method),
		))
		defer span.End()
		handler(w, r.WithContext(ctx))
	}
}

func shutdownTracer(ctx context.Context, tp *sdktrace.TracerProvider) {
	if tp == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		slog.WarnContext(ctx, "shutdownTracer", "error", err)
	}
}
