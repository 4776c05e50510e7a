package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MCP_BIND_ADDRESS", "")
	t.Setenv("OTEL_ENABLED", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BindAddress != "127.0.0.1:8081" {
		t.Errorf("BindAddress = %q", cfg.BindAddress)
	}
	if cfg.OTelEnabled {
		t.Error("expected OTelEnabled default false")
	}
	if cfg.OTelSamplerRatio != 1.0 {
		t.Errorf("OTelSamplerRatio = %v", cfg.OTelSamplerRatio)
	}
	if cfg.LogFilter != "info" {
		t.Errorf("LogFilter = %q", cfg.LogFilter)
	}
}

func TestLoadInvalidBindAddressFails(t *testing.T) {
	t.Setenv("MCP_BIND_ADDRESS", "not-a-valid-address")
	_, err := Load()
	if err == nil {
		t.Fatal("expected startup failure for invalid MCP_BIND_ADDRESS")
	}
}

func TestLoadInvalidOtelValuesFallBackSilently(t *testing.T) {
	t.Setenv("OTEL_SAMPLER_RATIO", "not-a-float")
	t.Setenv("OTEL_BATCH_INTERVAL_SECS", "not-a-number")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OTelSamplerRatio != 1.0 {
		t.Errorf("expected fallback to default ratio, got %v", cfg.OTelSamplerRatio)
	}
	if cfg.OTelBatchIntervalSecs != 5 {
		t.Errorf("expected fallback to default interval, got %v", cfg.OTelBatchIntervalSecs)
	}
}
