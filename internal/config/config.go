// Package config loads and validates control-plane configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Registry    RegistryConfig    `mapstructure:"registry"`
	Broker      BrokerConfig      `mapstructure:"broker"`
	Artifacts   ArtifactsConfig   `mapstructure:"artifacts"`
	Provisioner ProvisionerConfig `mapstructure:"provisioner"`
	Dispatch    DispatchConfig    `mapstructure:"dispatch"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig holds the admin API credentials.
type AuthConfig struct {
	AdminToken  string `mapstructure:"admin_token"`
	ReaderToken string `mapstructure:"reader_token"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// RegistryConfig selects and configures the algorithm store.
type RegistryConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// BrokerConfig selects and configures the message broker.
type BrokerConfig struct {
	Provider    string `mapstructure:"provider"`
	ProjectID   string `mapstructure:"project_id"`
	ResultQueue string `mapstructure:"result_queue"`
	QueueDepth  int    `mapstructure:"queue_depth"`
}

// ArtifactsConfig selects and configures the artifact store.
type ArtifactsConfig struct {
	Provider string `mapstructure:"provider"`
	Bucket   string `mapstructure:"bucket"`
}

// ProvisionerConfig carries the platform settings shared by worker
// launch specs.
type ProvisionerConfig struct {
	WorkerIdentity   string `mapstructure:"worker_identity"`
	APIBase          string `mapstructure:"api_base"`
	APIKey           string `mapstructure:"api_key"`
	LogRetentionDays int    `mapstructure:"log_retention_days"`
}

// DispatchConfig tunes the provisioning worker pool.
type DispatchConfig struct {
	Depth       int `mapstructure:"depth"`
	Workers     int `mapstructure:"workers"`
	MaxAttempts int `mapstructure:"max_attempts"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CONTROLPLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("logging.development", false)
	v.SetDefault("registry.provider", "memory")
	v.SetDefault("registry.max_conns", 8)
	v.SetDefault("registry.min_conns", 1)
	v.SetDefault("broker.provider", "memory")
	v.SetDefault("broker.result_queue", "results")
	v.SetDefault("broker.queue_depth", 256)
	v.SetDefault("artifacts.provider", "none")
	v.SetDefault("provisioner.worker_identity", "")
	v.SetDefault("provisioner.log_retention_days", 7)
	v.SetDefault("dispatch.depth", 128)
	v.SetDefault("dispatch.workers", 2)
	v.SetDefault("dispatch.max_attempts", 3)
}

// Validate rejects unusable configurations before the service starts.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Registry.Provider {
	case "memory":
	case "postgres":
		if c.Registry.DSN == "" {
			return fmt.Errorf("registry.dsn is required for the postgres provider")
		}
	default:
		return fmt.Errorf("unknown registry.provider %q", c.Registry.Provider)
	}
	switch c.Broker.Provider {
	case "memory":
	case "pubsub":
		if c.Broker.ProjectID == "" {
			return fmt.Errorf("broker.project_id is required for the pubsub provider")
		}
	default:
		return fmt.Errorf("unknown broker.provider %q", c.Broker.Provider)
	}
	switch c.Artifacts.Provider {
	case "none", "memory":
	case "gcs":
		if c.Artifacts.Bucket == "" {
			return fmt.Errorf("artifacts.bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("unknown artifacts.provider %q", c.Artifacts.Provider)
	}
	if c.Broker.ResultQueue == "" {
		return fmt.Errorf("broker.result_queue must not be empty")
	}
	return nil
}
