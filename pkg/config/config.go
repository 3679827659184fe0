package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// AgenticConfig holds every environment-sourced setting the agentic run
// subsystem needs, with production-ready defaults.
type AgenticConfig struct {
	// AgentServiceURL is the base URL of the downstream agent service.
	AgentServiceURL string

	// RunTimeoutSeconds is the per-turn wall-clock timeout.
	RunTimeoutSeconds int

	// SSEHeartbeatSeconds is the heartbeat interval in the Stream Reader.
	SSEHeartbeatSeconds int

	// RunLockTTLSeconds is the lease TTL.
	RunLockTTLSeconds int

	// RunLockRefreshSeconds is the lease refresh period; must be <= ttl/3.
	RunLockRefreshSeconds int

	// CancelTTLSeconds is the cancel marker TTL.
	CancelTTLSeconds int

	// CompletionEventTypes is the allow-list of event_type values treated
	// as carrying the final assistant message. Not formalised upstream;
	// kept configurable per the open question in the design notes.
	CompletionEventTypes []string
}

// DefaultAgenticConfig returns the built-in defaults.
func DefaultAgenticConfig() *AgenticConfig {
	return &AgenticConfig{
		RunTimeoutSeconds:     300,
		SSEHeartbeatSeconds:   15,
		RunLockTTLSeconds:     90,
		RunLockRefreshSeconds: 30,
		CancelTTLSeconds:      900,
		CompletionEventTypes:  []string{"assistant.message"},
	}
}

// RunTimeout returns RunTimeoutSeconds as a time.Duration.
func (c *AgenticConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

// SSEHeartbeat returns SSEHeartbeatSeconds as a time.Duration.
func (c *AgenticConfig) SSEHeartbeat() time.Duration {
	return time.Duration(c.SSEHeartbeatSeconds) * time.Second
}

// RunLockTTL returns RunLockTTLSeconds as a time.Duration.
func (c *AgenticConfig) RunLockTTL() time.Duration {
	return time.Duration(c.RunLockTTLSeconds) * time.Second
}

// RunLockRefresh returns RunLockRefreshSeconds as a time.Duration.
func (c *AgenticConfig) RunLockRefresh() time.Duration {
	return time.Duration(c.RunLockRefreshSeconds) * time.Second
}

// CancelTTL returns CancelTTLSeconds as a time.Duration.
func (c *AgenticConfig) CancelTTL() time.Duration {
	return time.Duration(c.CancelTTLSeconds) * time.Second
}

// IsCompletionEvent reports whether eventType is configured as
// completion-bearing.
func (c *AgenticConfig) IsCompletionEvent(eventType string) bool {
	for _, t := range c.CompletionEventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// LoadAgenticConfigFromEnv loads AgenticConfig from environment variables,
// applying defaults and validating the result.
func LoadAgenticConfigFromEnv() (*AgenticConfig, error) {
	cfg := DefaultAgenticConfig()

	cfg.AgentServiceURL = os.Getenv("AGENT_SERVICE_URL")

	var err error
	if cfg.RunTimeoutSeconds, err = getEnvIntOrDefault("RUN_TIMEOUT_SECONDS", cfg.RunTimeoutSeconds); err != nil {
		return nil, err
	}
	if cfg.SSEHeartbeatSeconds, err = getEnvIntOrDefault("SSE_HEARTBEAT_SECONDS", cfg.SSEHeartbeatSeconds); err != nil {
		return nil, err
	}
	if cfg.RunLockTTLSeconds, err = getEnvIntOrDefault("RUN_LOCK_TTL_SECONDS", cfg.RunLockTTLSeconds); err != nil {
		return nil, err
	}
	if cfg.RunLockRefreshSeconds, err = getEnvIntOrDefault("RUN_LOCK_REFRESH_SECONDS", cfg.RunLockRefreshSeconds); err != nil {
		return nil, err
	}
	if cfg.CancelTTLSeconds, err = getEnvIntOrDefault("CANCEL_TTL_SECONDS", cfg.CancelTTLSeconds); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks invariants called out in the design: the downstream URL
// must be set and the refresh period must be at most a third of the lease
// TTL, so the lease survives one missed refresh.
func (c *AgenticConfig) Validate() error {
	if c.AgentServiceURL == "" {
		return fmt.Errorf("AGENT_SERVICE_URL is required")
	}
	if c.RunTimeoutSeconds < 1 {
		return fmt.Errorf("RUN_TIMEOUT_SECONDS must be at least 1")
	}
	if c.RunLockTTLSeconds < 1 {
		return fmt.Errorf("RUN_LOCK_TTL_SECONDS must be at least 1")
	}
	if c.RunLockRefreshSeconds*3 > c.RunLockTTLSeconds {
		return fmt.Errorf("RUN_LOCK_REFRESH_SECONDS (%d) must be at most RUN_LOCK_TTL_SECONDS/3 (%d)",
			c.RunLockRefreshSeconds, c.RunLockTTLSeconds/3)
	}
	if len(c.CompletionEventTypes) == 0 {
		return fmt.Errorf("CompletionEventTypes must not be empty")
	}
	return nil
}

func getEnvIntOrDefault(key string, defaultVal int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
