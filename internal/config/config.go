// Package config loads the agent's YAML configuration file and handles
// bootstrapping a fresh one from environment variables on first run.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// SourceConfig is one entry of the `sources` list.
type SourceConfig struct {
	Label string `mapstructure:"label" yaml:"label"`
	Path  string `mapstructure:"path" yaml:"path"`
}

// MTLSConfig is optional; when CACert is unset the agent dials the
// collection service without transport credentials.
type MTLSConfig struct {
	CACert     string `mapstructure:"ca_cert" yaml:"ca_cert,omitempty"`
	ClientCert string `mapstructure:"client_cert" yaml:"client_cert,omitempty"`
	ClientKey  string `mapstructure:"client_key" yaml:"client_key,omitempty"`
	ServerName string `mapstructure:"server_name" yaml:"server_name,omitempty"`
}

// Config is the complete materialized configuration.
type Config struct {
	ServerAddr        string         `mapstructure:"server_addr" yaml:"server_addr"`
	ProjectKey        string         `mapstructure:"project_key" yaml:"project_key"`
	BatchSize         int            `mapstructure:"batch_size" yaml:"batch_size"`
	FlushIntervalSecs int            `mapstructure:"flush_interval" yaml:"flush_interval"`
	HeartbeatSecs     int            `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	Sources           []SourceConfig `mapstructure:"sources" yaml:"sources"`
	StateDir          string         `mapstructure:"state_dir" yaml:"state_dir"`
	LogLevel          string         `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string         `mapstructure:"log_format" yaml:"log_format"`
	MTLS              MTLSConfig     `mapstructure:"mtls" yaml:"mtls,omitempty"`
}

// FlushInterval and HeartbeatInterval expose the duration fields in the
// form the rest of the agent consumes them.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSecs) * time.Second
}

func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatSecs) * time.Second
}

// Bootstrap materializes a config file from SERVER_ADDR/PROJECT_KEY env vars
// when none exists yet. A no-op if configPath already exists.
func Bootstrap(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	serverAddr := os.Getenv("SERVER_ADDR")
	projectKey := os.Getenv("PROJECT_KEY")
	if serverAddr == "" || projectKey == "" {
		return fmt.Errorf("no config file at %s and SERVER_ADDR/PROJECT_KEY not set", configPath)
	}

	cfg := Config{
		ServerAddr:        serverAddr,
		ProjectKey:        projectKey,
		BatchSize:         defaultBatchSize,
		FlushIntervalSecs: defaultFlushIntervalSecs,
		HeartbeatSecs:     defaultHeartbeatSecs,
		StateDir:          defaultStateDir,
		LogLevel:          defaultLogLevel,
		LogFormat:         defaultLogFormat,
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal bootstrapped config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("write bootstrapped config: %w", err)
	}
	return nil
}

const (
	defaultBatchSize         = 1000
	defaultFlushIntervalSecs = 10
	defaultHeartbeatSecs     = 30
	defaultStateDir          = "/var/lib/logagent"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
)

// Load reads and validates the configuration file: viper with explicit
// defaults, then required-field validation.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	v.SetDefault("batch_size", defaultBatchSize)
	v.SetDefault("flush_interval", defaultFlushIntervalSecs)
	v.SetDefault("heartbeat_interval", defaultHeartbeatSecs)
	v.SetDefault("state_dir", defaultStateDir)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("log_format", defaultLogFormat)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.ServerAddr == "" {
		return nil, fmt.Errorf("server_addr is required")
	}
	if cfg.ProjectKey == "" {
		return nil, fmt.Errorf("project_key is required")
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("at least one source must be configured")
	}

	return &cfg, nil
}
