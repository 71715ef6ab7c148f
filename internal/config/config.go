package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Door            DoorConfig     `yaml:"door"`
	HomeKit         HomeKitConfig  `yaml:"homekit"`
	API             APIConfig      `yaml:"api"`
	MQTT            MQTTConfig     `yaml:"mqtt"`
	Database        DatabaseConfig `yaml:"database"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	EventBus        EventBusConfig `yaml:"eventbus"`
	Log             LogConfig      `yaml:"log"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// DoorConfig describes the remote door controller.
// Missing URLs are not an error: requests to them simply fail.
type DoorConfig struct {
	StatusURL       string   `yaml:"status_url"`
	ToggleURL       string   `yaml:"toggle_url"`
	BearerToken     string   `yaml:"bearer_token"`
	RefreshInterval Duration `yaml:"refresh_interval"` // Poll interval (default: 1s)
	AutoClose       Duration `yaml:"auto_close"`       // Close the door after it was open this long (default: 10m)
}

// HomeKitConfig contains the HomeKit accessory settings
type HomeKitConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Name         string `yaml:"name"`
	Manufacturer string `yaml:"manufacturer"`
	Model        string `yaml:"model"`
	SerialNumber string `yaml:"serial_number"`
	Pin          string `yaml:"pin"`
	StoragePath  string `yaml:"storage_path"`
	Port         string `yaml:"port"` // Empty picks a random port
}

// APIConfig contains HTTP control API settings
type APIConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Host           string  `yaml:"host"`
	Port           int     `yaml:"port"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`   // Target commands per second (default: 1)
	RateLimitBurst int     `yaml:"rate_limit_burst"` // Burst of target commands (default: 3)
}

// MQTTConfig contains MQTT bridge settings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	Enabled           *bool    `yaml:"enabled"`            // Default: true
	RetentionPeriod   Duration `yaml:"retention_period"`   // How long to keep entries (default: 30 days)
	RetentionInterval Duration `yaml:"retention_interval"` // How often to clean up (default: 24h)
}

// IsEnabled reports whether the ledger is enabled (default true).
func (c *LedgerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 2)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 2
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"use_json"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes and applies defaults
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	cfg := Config{
		HomeKit: HomeKitConfig{Enabled: true},
		API:     APIConfig{Enabled: true},
	}
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./garaged.sqlite"
	}

	// Door defaults
	if cfg.Door.RefreshInterval <= 0 {
		cfg.Door.RefreshInterval = Duration(1 * time.Second)
	}
	if cfg.Door.AutoClose <= 0 {
		cfg.Door.AutoClose = Duration(600 * time.Second)
	}

	// HomeKit defaults
	if cfg.HomeKit.Name == "" {
		cfg.HomeKit.Name = "Garage Door"
	}
	if cfg.HomeKit.Manufacturer == "" {
		cfg.HomeKit.Manufacturer = "Default-Manufacturer"
	}
	if cfg.HomeKit.Model == "" {
		cfg.HomeKit.Model = "Default-Model"
	}
	if cfg.HomeKit.SerialNumber == "" {
		cfg.HomeKit.SerialNumber = "Default-Serial"
	}
	if cfg.HomeKit.Pin == "" {
		cfg.HomeKit.Pin = "00102003"
	}
	if cfg.HomeKit.StoragePath == "" {
		cfg.HomeKit.StoragePath = "./homekit"
	}

	// API defaults
	if cfg.API.Host == "" {
		cfg.API.Host = "0.0.0.0"
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 9090
	}
	if cfg.API.RateLimitRPS <= 0 {
		cfg.API.RateLimitRPS = 1.0
	}
	if cfg.API.RateLimitBurst <= 0 {
		cfg.API.RateLimitBurst = 3
	}

	// MQTT defaults
	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = "tcp://localhost:1883"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "garaged"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "garage/door"
	}
	cfg.MQTT.TopicPrefix = strings.TrimSuffix(cfg.MQTT.TopicPrefix, "/")

	// Ledger defaults
	if cfg.Ledger.RetentionPeriod <= 0 {
		cfg.Ledger.RetentionPeriod = Duration(30 * 24 * time.Hour)
	}
	if cfg.Ledger.RetentionInterval <= 0 {
		cfg.Ledger.RetentionInterval = Duration(24 * time.Hour)
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// envVarPattern matches ${VAR} or ${VAR:default}
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
