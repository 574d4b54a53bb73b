package config

import (
	"fmt"
	"os"

	"bond-inventory/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Defaults applied to options the YAML file omits
const (
	DefaultRequestTimeoutSeconds  = 10
	DefaultRefreshIntervalSeconds = 4 * 60 * 60
	DefaultRetentionDays          = 30
	DefaultCacheTTLSeconds        = 3600
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.ApplyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// ApplyDefaults fills in options the file omitted
func (c *Config) ApplyDefaults() {
	if c.Source.RequestTimeoutSeconds <= 0 {
		c.Source.RequestTimeoutSeconds = DefaultRequestTimeoutSeconds
	}
	if c.Source.RefreshIntervalSeconds <= 0 {
		c.Source.RefreshIntervalSeconds = DefaultRefreshIntervalSeconds
	}
	if c.Source.RetentionDays <= 0 {
		c.Source.RetentionDays = DefaultRetentionDays
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = DefaultCacheTTLSeconds
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Source.Granularity == "" {
		c.Source.Granularity = string(models.GranularityInstant)
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	// Validate App configuration (Flattened)
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration (Flattened)
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Validate Storage configuration
	switch c.Storage.Backend {
	case "memory":
	case "file":
		if c.Storage.FilePath == "" {
			return fmt.Errorf("file path cannot be empty for file backend")
		}
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite backend")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("connection string cannot be empty for postgres backend")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.Storage.Backend)
	}

	// Validate Source configuration
	if c.Source.Endpoint == "" {
		return fmt.Errorf("source endpoint cannot be empty")
	}
	if c.Source.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Source.RefreshIntervalSeconds <= 0 {
		return fmt.Errorf("refresh interval must be greater than 0")
	}
	if _, ok := models.ParseGranularity(c.Source.Granularity); !ok {
		return fmt.Errorf("unsupported timestamp granularity: %s", c.Source.Granularity)
	}

	// Validate Cache configuration (negative disables, zero is defaulted)
	if c.Cache.TTLSeconds < -1 {
		return fmt.Errorf("cache ttl cannot be below -1")
	}

	return nil
}

// -----------------------------------------------------------------------------

// GranularityPolicy returns the validated timestamp granularity.
func (c *Config) GranularityPolicy() models.Granularity {
	g, _ := models.ParseGranularity(c.Source.Granularity)
	return g
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
