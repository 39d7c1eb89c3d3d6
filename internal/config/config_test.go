package config

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.TelemetryBatchSize != 1 {
		t.Errorf("Expected batch size 1, got %d", cfg.TelemetryBatchSize)
	}
	if cfg.TelemetryFlushInterval != time.Second {
		t.Errorf("Expected flush interval 1s, got %v", cfg.TelemetryFlushInterval)
	}
	if cfg.MaxConsecutiveFailures != 10 {
		t.Errorf("Expected 10 consecutive failures, got %d", cfg.MaxConsecutiveFailures)
	}
	if cfg.FPSWindow != 30 {
		t.Errorf("Expected FPS window 30, got %d", cfg.FPSWindow)
	}
	if cfg.ShutdownFlushTimeout != 2*time.Second {
		t.Errorf("Expected shutdown flush 2s, got %v", cfg.ShutdownFlushTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("CONFIDENCE_THRESHOLD", "0.7")
	t.Setenv("TELEMETRY_BATCH_SIZE", "5")
	t.Setenv("SAVE_OUTPUT", "true")
	t.Setenv("STORE_BACKEND", "InfluxDB")
	t.Setenv("READ_TIMEOUT_MS", "250")
	t.Setenv("FPS_WINDOW", "not-a-number")

	cfg := Load()

	if cfg.ConfidenceThreshold != 0.7 {
		t.Errorf("Expected threshold 0.7, got %v", cfg.ConfidenceThreshold)
	}
	if cfg.TelemetryBatchSize != 5 {
		t.Errorf("Expected batch size 5, got %d", cfg.TelemetryBatchSize)
	}
	if !cfg.SaveOutput {
		t.Error("Expected SaveOutput to be true")
	}
	if cfg.StoreBackend != "influxdb" {
		t.Errorf("Expected influxdb backend, got %s", cfg.StoreBackend)
	}
	if cfg.ReadTimeout != 250*time.Millisecond {
		t.Errorf("Expected 250ms read timeout, got %v", cfg.ReadTimeout)
	}
	if cfg.FPSWindow != 30 {
		t.Errorf("Invalid value should fall back to default, got %d", cfg.FPSWindow)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"threshold above one", func(c *Config) { c.ConfidenceThreshold = 1.5 }},
		{"no source", func(c *Config) { c.VideoSource = "" }},
		{"zero failures", func(c *Config) { c.MaxConsecutiveFailures = 0 }},
		{"unknown backend", func(c *Config) { c.StoreBackend = "postgres" }},
		{"output without path", func(c *Config) { c.SaveOutput = true; c.OutputPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoadClasses_MissingFileUsesDefaults(t *testing.T) {
	w, err := LoadClasses(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadClasses failed: %v", err)
	}

	if len(w.Classes()) != 7 {
		t.Errorf("Expected 7 default classes, got %d", len(w.Classes()))
	}
	if c, ok := w.Lookup(22); !ok || c.Name != "zebra" {
		t.Errorf("Expected zebra for id 22, got %+v", c)
	}
}

func TestLoadClasses_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.yaml")
	content := `
classes:
  - coco_id: 17
    name: horse
    color: [0, 0, 255]
  - coco_id: 22
    name: zebra
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write classes file: %v", err)
	}

	w, err := LoadClasses(path)
	if err != nil {
		t.Fatalf("LoadClasses failed: %v", err)
	}

	horse, ok := w.Lookup(17)
	if !ok {
		t.Fatal("Expected horse to be whitelisted")
	}
	if horse.Color != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("Expected BGR [0,0,255] to map to red, got %+v", horse.Color)
	}
	if _, ok := w.Lookup(18); ok {
		t.Error("Sheep should not be whitelisted")
	}
}

func TestLoadClasses_InvalidColor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.yaml")
	content := "classes:\n  - coco_id: 17\n    name: horse\n    color: [300, 0, 0]\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write classes file: %v", err)
	}

	if _, err := LoadClasses(path); err == nil {
		t.Error("Expected error for out-of-range color")
	}
}

func TestLoadClasses_ShippedFile(t *testing.T) {
	w, err := LoadClasses(filepath.Join("..", "..", "config", "classes.yaml"))
	if err != nil {
		t.Fatalf("Shipped classes.yaml is invalid: %v", err)
	}

	horse, ok := w.Lookup(19)
	if !ok || horse.Name != "horse" {
		t.Errorf("Expected horse at id 19, got %+v", horse)
	}
	if len(w.Names()) != 7 {
		t.Errorf("Expected 7 classes, got %d", len(w.Names()))
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()

	if err := LoadEnvFile(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("Missing .env should be ignored, got %v", err)
	}

	good := filepath.Join(dir, "good.env")
	if err := os.WriteFile(good, []byte("CENSUS_TEST_SOURCE_ID=barn_2\n"), 0644); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("CENSUS_TEST_SOURCE_ID") })
	if err := LoadEnvFile(good); err != nil {
		t.Fatalf("LoadEnvFile failed: %v", err)
	}
	if got := os.Getenv("CENSUS_TEST_SOURCE_ID"); got != "barn_2" {
		t.Errorf("Expected barn_2, got %q", got)
	}

	bad := filepath.Join(dir, "bad.env")
	if err := os.WriteFile(bad, []byte("BAD-KEY=1\n"), 0644); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	if err := LoadEnvFile(bad); err == nil {
		t.Error("Expected error for malformed .env")
	}
}
