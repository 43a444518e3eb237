// Package tracing wires the OTel tracer the bus and skill layers emit spans
// through. Spans are recorded only when an OTLP collector is configured via
// OTEL_EXPORTER_OTLP_ENDPOINT; otherwise every tracer handed out is a no-op.
package tracing

import (
	"context"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "cortex"

var setup struct {
	once     sync.Once
	provider trace.TracerProvider
	sdk      *sdktrace.TracerProvider
}

// Tracer hands out a named tracer, initializing the provider on first use.
func Tracer(name string) trace.Tracer {
	setup.once.Do(configure)
	return setup.provider.Tracer(name)
}

// Shutdown flushes buffered spans. A no-op when no collector was configured.
func Shutdown(ctx context.Context) error {
	setup.once.Do(configure)
	if setup.sdk == nil {
		return nil
	}
	return setup.sdk.Shutdown(ctx)
}

func configure() {
	setup.provider = noop.NewTracerProvider()

	endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		return
	}

	ctx := context.Background()
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(trimScheme(endpoint)),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		res = resource.Default()
	}

	setup.sdk = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	setup.provider = setup.sdk
	otel.SetTracerProvider(setup.sdk)
}

// trimScheme drops the http(s) scheme; otlptracehttp wants a bare host.
func trimScheme(endpoint string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if strings.HasPrefix(endpoint, prefix) {
			return strings.TrimPrefix(endpoint, prefix)
		}
	}
	return endpoint
}
