package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.EndpointClass != EndpointClassStandard {
		t.Errorf("expected standard endpoint class, got %s", cfg.EndpointClass)
	}
	if cfg.PollInterval != 3*time.Second {
		t.Errorf("expected 3s poll interval, got %s", cfg.PollInterval)
	}
	if cfg.ReconnectAttempts != 5 {
		t.Errorf("expected 5 reconnect attempts, got %d", cfg.ReconnectAttempts)
	}
}

func TestLoadServerless(t *testing.T) {
	t.Setenv("MOLVA_ENDPOINT_CLASS", EndpointClassServerless)
	t.Setenv("MOLVA_POLL_INTERVAL", "500ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.EndpointClass != EndpointClassServerless {
		t.Errorf("expected serverless, got %s", cfg.EndpointClass)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %s", cfg.PollInterval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad endpoint class", func(c *Config) { c.EndpointClass = "lambda" }, true},
		{"missing ws url", func(c *Config) { c.WSURL = "" }, true},
		{"serverless without ws url", func(c *Config) {
			c.EndpointClass = EndpointClassServerless
			c.WSURL = ""
		}, false},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				APIBaseURL:    "http://localhost:8080",
				WSURL:         "ws://localhost:8080/ws",
				EndpointClass: EndpointClassStandard,
				PollInterval:  3 * time.Second,
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
