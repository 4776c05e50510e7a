package obs

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig mirrors the OTEL_* environment table the gateway
// reads at startup.
type TracingConfig struct {
	Enabled                 bool
	ServiceName             string
	OTLPEndpoint            string
	SamplingRatio           float64
	BatchIntervalSecs       uint32
	ParentBasedTraceIDRatio float64
}

// TracingConfigFromEnv loads TracingConfig from the OTEL_* variables,
// falling back to the documented defaults on missing or unparsable
// values.
func TracingConfigFromEnv() TracingConfig {
	return TracingConfig{
		Enabled:                 parseBoolDefault(os.Getenv("OTEL_ENABLED"), false),
		ServiceName:             envOrDefault("OTEL_SERVICE_NAME", "mcp-security-gateway"),
		OTLPEndpoint:            envOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4317"),
		SamplingRatio:           parseFloatDefault(os.Getenv("OTEL_SAMPLER_RATIO"), 1.0),
		BatchIntervalSecs:       parseUintDefault(os.Getenv("OTEL_BATCH_INTERVAL_SECS"), 5),
		ParentBasedTraceIDRatio: parseFloatDefault(os.Getenv("OTEL_PARENT_BASED_RATIO"), 1.0),
	}
}

func envOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseBoolDefault(raw string, def bool) bool {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func parseFloatDefault(raw string, def float64) float64 {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

func parseUintDefault(raw string, def uint32) uint32 {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return def
	}
	return uint32(v)
}

// InitTracing wires an OTLP gRPC exporter behind a parent-based sampler
// when cfg.Enabled, and returns a shutdown func safe to defer
// unconditionally (a no-op when tracing was never enabled).
func InitTracing(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpointURL(cfg.OTLPEndpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	sampler := sdktrace.ParentBased(
		sdktrace.TraceIDRatioBased(cfg.SamplingRatio),
		sdktrace.WithRemoteParentSampled(sdktrace.TraceIDRatioBased(cfg.ParentBasedTraceIDRatio)),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(time.Duration(cfg.BatchIntervalSecs)*time.Second)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}
