// Package config loads the zealtime command's YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileName is the config file the command looks for by default.
const FileName = "zealtime.yaml"

// Config holds the defaults for every subcommand.
type Config struct {
	// Variables are applied before rendering.
	Variables map[string]any `yaml:"variables,omitempty"`

	Render RenderConfig `yaml:"render"`
	Watch  WatchConfig  `yaml:"watch"`
	Serve  ServeConfig  `yaml:"serve"`
}

// RenderConfig configures `zealtime render`.
type RenderConfig struct {
	Minify bool `yaml:"minify,omitempty"`
}

// WatchConfig configures `zealtime watch`.
type WatchConfig struct {
	URL            string        `yaml:"url,omitempty" validate:"omitempty,url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay,omitempty" validate:"gte=0"`
}

// ServeConfig configures `zealtime serve`.
type ServeConfig struct {
	Addr         string        `yaml:"addr" validate:"required,hostname_port"`
	Database     string        `yaml:"database,omitempty"`
	Demo         string        `yaml:"demo,omitempty"`
	DemoInterval time.Duration `yaml:"demo_interval,omitempty" validate:"gte=0"`
	ClientTTL    time.Duration `yaml:"client_ttl,omitempty" validate:"gte=0"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		Variables: map[string]any{},
		Watch: WatchConfig{
			ReconnectDelay: time.Second,
		},
		Serve: ServeConfig{
			Addr:         "0.0.0.0:8765",
			DemoInterval: 500 * time.Millisecond,
			ClientTTL:    time.Minute,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the config's field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("invalid config: %w", err)
		}
		msgs := make([]string, 0, len(fieldErrs))
		for _, e := range fieldErrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", e.Namespace(), e.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.Variables == nil {
		config.Variables = map[string]any{}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the config to path
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
