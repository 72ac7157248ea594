// Package config loads the release feed client configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type ClientConfig struct {
	// FeedURL is the WebSocket endpoint of the release feed.
	FeedURL string `yaml:"feed_url"`
	// BufferSize caps the number of undelivered events held by the client.
	BufferSize uint `yaml:"buffer_size"`
}

func LoadConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &ClientConfig{BufferSize: 100}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if cfg.FeedURL == "" {
		return nil, errors.New("config: feed_url is required")
	}
	if cfg.BufferSize == 0 {
		return nil, errors.New("config: buffer_size must be positive")
	}
	return cfg, nil
}
