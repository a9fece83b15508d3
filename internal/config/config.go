package config

import (
	"fmt"
	"os"
	"time"
)

// EndpointClass tells the transport layer what the backend can sustain.
// A "serverless" backend cannot hold long-lived connections, so the client
// falls back to polling for the whole session.
const (
	EndpointClassStandard   = "standard"
	EndpointClassServerless = "serverless"
)

type Config struct {
	APIBaseURL    string
	WSURL         string
	EndpointClass string

	PollInterval      time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration

	TypingStaleAfter time.Duration
	TypingEmitWindow time.Duration
	OptimisticWindow time.Duration

	// HistoryPath enables the local bbolt message cache when non-empty.
	HistoryPath string
}

func Load() (*Config, error) {
	pollInterval, err := time.ParseDuration(getEnv("MOLVA_POLL_INTERVAL", "3s"))
	if err != nil {
		return nil, fmt.Errorf("MOLVA_POLL_INTERVAL: %w", err)
	}

	cfg := &Config{
		APIBaseURL:        getEnv("MOLVA_API_URL", "http://localhost:8080"),
		WSURL:             getEnv("MOLVA_WS_URL", "ws://localhost:8080/ws"),
		EndpointClass:     getEnv("MOLVA_ENDPOINT_CLASS", EndpointClassStandard),
		PollInterval:      pollInterval,
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Second,
		TypingStaleAfter:  5 * time.Second,
		TypingEmitWindow:  2 * time.Second,
		OptimisticWindow:  90 * time.Second,
		HistoryPath:       os.Getenv("MOLVA_HISTORY_DB"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API base URL is required")
	}

	switch c.EndpointClass {
	case EndpointClassStandard, EndpointClassServerless:
	default:
		return fmt.Errorf("unknown endpoint class %q", c.EndpointClass)
	}

	if c.EndpointClass == EndpointClassStandard && c.WSURL == "" {
		return fmt.Errorf("WS URL is required for the standard endpoint class")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be greater than 0")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
