// Package config loads the gateway's process configuration from its
// environment. Every variable except MCP_BIND_ADDRESS falls back
// silently to its documented default on an absent or unparsable
// value; an invalid MCP_BIND_ADDRESS is a startup failure since the
// gateway cannot pick a safe listen address on its own behalf.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
)

type Config struct {
	BindAddress string

	OTelEnabled           bool
	OTelServiceName       string
	OTelExporterEndpoint  string
	OTelSamplerRatio      float64
	OTelBatchIntervalSecs uint32
	OTelParentBasedRatio  float64

	LogFilter string

	MetricsBindAddress string
}

func Load() (Config, error) {
	bindAddr := envOrDefault("MCP_BIND_ADDRESS", "127.0.0.1:8081")
	if _, _, err := net.SplitHostPort(bindAddr); err != nil {
		return Config{}, fmt.Errorf("invalid MCP_BIND_ADDRESS %q: %w", bindAddr, err)
	}

	return Config{
		BindAddress: bindAddr,

		OTelEnabled:           parseBoolDefault(os.Getenv("OTEL_ENABLED"), false),
		OTelServiceName:       envOrDefault("OTEL_SERVICE_NAME", "mcp-security-gateway"),
		OTelExporterEndpoint:  envOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4317"),
		OTelSamplerRatio:      parseFloatDefault(os.Getenv("OTEL_SAMPLER_RATIO"), 1.0),
		OTelBatchIntervalSecs: parseUintDefault(os.Getenv("OTEL_BATCH_INTERVAL_SECS"), 5),
		OTelParentBasedRatio:  parseFloatDefault(os.Getenv("OTEL_PARENT_BASED_RATIO"), 1.0),

		LogFilter: envOrDefault("RUST_LOG", "info"),

		MetricsBindAddress: envOrDefault("MCP_METRICS_BIND_ADDRESS", ":9090"),
	}, nil
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
