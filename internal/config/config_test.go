package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.EventFeedEnabled() {
		t.Error("event feed should be off without brokers")
	}
	if cfg.Generator.Interval != 30*time.Second || cfg.Generator.Probability != 0.1 {
		t.Errorf("unexpected generator defaults %+v", cfg.Generator)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.Session.Key != "rockguard_user" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Kafka.Producer.BatchTimeout != 100*time.Millisecond {
		t.Errorf("nested duration default lost: %v", cfg.Kafka.Producer.BatchTimeout)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rockguard.yaml")
	body := `
http:
  addr: ":9090"
generator:
  interval: 5s
  probability: 0.5
notifications:
  seed_demo: true
kafka:
  brokers: ["kafka-1:9092", "kafka-2:9092"]
  producer:
    compression: lz4
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Generator.Interval != 5*time.Second || cfg.Generator.Probability != 0.5 {
		t.Errorf("generator = %+v", cfg.Generator)
	}
	if !cfg.Notifications.SeedDemo {
		t.Error("seed_demo not read")
	}
	if len(cfg.Kafka.Brokers) != 2 || !cfg.EventFeedEnabled() {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.Producer.Compression != "lz4" || cfg.Kafka.Producer.PoolSize != 2 {
		t.Errorf("producer = %+v", cfg.Kafka.Producer)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ROCKGUARD_GENERATOR_PROBABILITY", "1")
	t.Setenv("ROCKGUARD_SESSION_BACKEND", "redis")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Generator.Probability != 1 {
		t.Errorf("probability = %v", cfg.Generator.Probability)
	}
	if cfg.Session.Backend != "redis" {
		t.Errorf("backend = %q", cfg.Session.Backend)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"probability above one", func(c *Config) { c.Generator.Probability = 1.5 }, true},
		{"negative probability", func(c *Config) { c.Generator.Probability = -0.1 }, true},
		{"zero interval", func(c *Config) { c.Generator.Interval = 0 }, true},
		{"zero interval disabled", func(c *Config) { c.Generator.Enabled = false; c.Generator.Interval = 0 }, false},
		{"unknown backend", func(c *Config) { c.Session.Backend = "cookie" }, true},
		{"empty queue", func(c *Config) { c.Notifications.QueueSize = 0 }, true},
		{"zero rate limit", func(c *Config) { c.RateLimit.RequestsPerMinute = 0 }, true},
		{"negative rate limit", func(c *Config) { c.RateLimit.RequestsPerMinute = -10 }, true},
		{"zero rate limit disabled", func(c *Config) { c.RateLimit.Enabled = false; c.RateLimit.RequestsPerMinute = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
