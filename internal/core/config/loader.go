package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	defaultBufferSize     = 64
	defaultBackpressure   = "block"
	defaultFlushInterval  = 500 * time.Millisecond
	defaultMaxResubscribe = 5
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${VAR} references and
// applying defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	for i := range cfg.Chains {
		es := &cfg.Chains[i].EventSource
		if es.BufferSize == 0 {
			es.BufferSize = defaultBufferSize
		}
		if es.Backpressure == "" {
			es.Backpressure = defaultBackpressure
		}
		if es.FlushInterval == 0 {
			es.FlushInterval = defaultFlushInterval
		}
		if es.MaxResubscribe == 0 {
			es.MaxResubscribe = defaultMaxResubscribe
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the listener cannot use.
func (c *AppConfig) Validate() error {
	seen := make(map[string]struct{}, len(c.Chains))
	for i, ch := range c.Chains {
		if ch.ChainID == "" {
			return fmt.Errorf("chains[%d]: id is required", i)
		}
		if _, dup := seen[string(ch.ChainID)]; dup {
			return fmt.Errorf("chains[%d]: duplicate chain id %q", i, ch.ChainID)
		}
		seen[string(ch.ChainID)] = struct{}{}

		if ch.WebsocketAddr == "" {
			return fmt.Errorf("chain %q: websocket_addr is required", ch.ChainID)
		}
		switch ch.EventSource.Backpressure {
		case "block", "drop_newest":
		default:
			return fmt.Errorf("chain %q: unknown backpressure policy %q", ch.ChainID, ch.EventSource.Backpressure)
		}
		if ch.EventSource.BufferSize < 0 {
			return fmt.Errorf("chain %q: buffer_size must not be negative", ch.ChainID)
		}
	}

	if c.Server.Port < 0 || c.Server.GRPCPort < 0 {
		return fmt.Errorf("server ports must not be negative")
	}
	return nil
}
