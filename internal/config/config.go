// Package config loads the server configuration from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

// EnvPrefix prefixes every environment override, e.g. NETMIKO_MCP_HTTP_ENABLED
const EnvPrefix = "NETMIKO_MCP"

// Config is the complete server configuration
type Config struct {
	Server    ServerConfig                   `mapstructure:"server" yaml:"server"`
	HTTP      HTTPConfig                     `mapstructure:"http" yaml:"http"`
	Transport TransportConfig                `mapstructure:"transport" yaml:"transport"`
	Audit     AuditConfig                    `mapstructure:"audit" yaml:"audit"`
	Events    EventsConfig                   `mapstructure:"events" yaml:"events"`
	Devices   map[string]models.DeviceConfig `mapstructure:"devices" yaml:"devices"`
}

// ServerConfig names the server and sets up logging
type ServerConfig struct {
	Name      string `mapstructure:"name" yaml:"name"`
	Version   string `mapstructure:"version" yaml:"version"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// HTTPConfig controls the optional HTTP front-end. It has no authentication
// and binds to loopback by default; expose it on trusted networks only.
// Cross-origin requests are refused unless AllowedOrigins lists the origin.
type HTTPConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled"`
	Address        string   `mapstructure:"address" yaml:"address"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	RateLimit      float64  `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// TransportConfig tunes the SSH transport
type TransportConfig struct {
	KnownHostsFile string `mapstructure:"known_hosts_file" yaml:"known_hosts_file"`
	MaxOutputBytes int    `mapstructure:"max_output_bytes" yaml:"max_output_bytes"`
	TermWidth      int    `mapstructure:"term_width" yaml:"term_width"`
	TermHeight     int    `mapstructure:"term_height" yaml:"term_height"`
}

// AuditConfig controls the command audit trail. An empty PostgresDSN keeps
// the trail in memory.
type AuditConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	MaxConns    int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// EventsConfig controls lifecycle event publishing. An empty NATSURL
// disables it.
type EventsConfig struct {
	NATSURL       string        `mapstructure:"nats_url" yaml:"nats_url"`
	SubjectPrefix string        `mapstructure:"subject_prefix" yaml:"subject_prefix"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "netmiko-mcp-server")
	v.SetDefault("server.version", "1.0.0")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")

	v.SetDefault("http.enabled", false)
	v.SetDefault("http.address", "127.0.0.1:8080")
	v.SetDefault("http.allowed_origins", []string{})
	v.SetDefault("http.rate_limit", 0)

	v.SetDefault("transport.known_hosts_file", "")
	v.SetDefault("transport.max_output_bytes", 10<<20)
	v.SetDefault("transport.term_width", 511)
	v.SetDefault("transport.term_height", 24)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.postgres_dsn", "")
	v.SetDefault("audit.max_conns", 10)

	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject_prefix", "netmiko.devices")
	v.SetDefault("events.timeout", "5s")
}

// Default returns the built-in defaults without environment overrides
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("decode default config: %v", err))
	}
	cfg.Devices = make(map[string]models.DeviceConfig)
	return &cfg
}

// Load reads path (optional) and applies NETMIKO_MCP_* environment
// overrides on top of the defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// viper lowercases map keys; device ids are case sensitive
	if path != "" {
		devices, err := loadDevices(path)
		if err != nil {
			return nil, err
		}
		cfg.Devices = devices
	}
	if cfg.Devices == nil {
		cfg.Devices = make(map[string]models.DeviceConfig)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDevices(path string) (map[string]models.DeviceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var file struct {
		Devices map[string]models.DeviceConfig `yaml:"devices"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode devices in %s: %w", path, err)
	}
	return file.Devices, nil
}

// Validate checks settings that would otherwise fail late
func (c *Config) Validate() error {
	var problems []string
	if c.HTTP.Enabled && c.HTTP.Address == "" {
		problems = append(problems, "http.address is required when http is enabled")
	}
	if c.HTTP.RateLimit < 0 {
		problems = append(problems, "http.rate_limit must not be negative")
	}
	if c.Transport.MaxOutputBytes < 0 {
		problems = append(problems, "transport.max_output_bytes must not be negative")
	}
	switch strings.ToLower(c.Server.LogFormat) {
	case "", "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("server.log_format %q is not json or console", c.Server.LogFormat))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", models.ErrInvalidArgument, strings.Join(problems, "; "))
	}
	return nil
}

// ErrOutputExists is returned when WriteSample would overwrite a file
var ErrOutputExists = errors.New("output file already exists")
