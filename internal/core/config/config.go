package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/listen/internal/core/domain"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Chains  []ChainConfig `yaml:"chains"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the health endpoints. A zero port disables the server.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ChainConfig holds settings for a specific blockchain.
type ChainConfig struct {
	ChainID       domain.ChainID    `yaml:"id"`
	WebsocketAddr string            `yaml:"websocket_addr"`
	EventSource   EventSourceConfig `yaml:"event_source"`
}

// EventSourceConfig tunes the subscription and the batch stream.
type EventSourceConfig struct {
	BufferSize     int           `yaml:"buffer_size"`
	Backpressure   string        `yaml:"backpressure"` // block, drop_newest
	FlushInterval  time.Duration `yaml:"flush_interval"`
	MaxResubscribe int           `yaml:"max_resubscribe"`
}

// ErrChainNotFound is matched by every ChainNotFoundError.
var ErrChainNotFound = errors.New("chain not found in configuration")

// ChainNotFoundError is returned by FindChain for an unknown chain.
type ChainNotFoundError struct {
	ChainID domain.ChainID
}

func (e *ChainNotFoundError) Error() string {
	return fmt.Sprintf("chain '%s' not found in configuration", e.ChainID)
}

func (e *ChainNotFoundError) Is(target error) bool {
	return target == ErrChainNotFound
}

// FindChain returns the configuration of the given chain.
func (c *AppConfig) FindChain(id domain.ChainID) (*ChainConfig, error) {
	for i := range c.Chains {
		if c.Chains[i].ChainID == id {
			return &c.Chains[i], nil
		}
	}
	return nil, &ChainNotFoundError{ChainID: id}
}
