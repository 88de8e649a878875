// Package config loads process configuration from file, environment, and
// defaults.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Config holds the process configuration.
type Config struct {
	DBPath             string        `mapstructure:"db_path"`
	WebServerPort      int           `mapstructure:"web_server_port"`
	ForwardProxyPort   int           `mapstructure:"forward_proxy_port"`
	ReverseProxyPort   int           `mapstructure:"reverse_proxy_port"`
	ReverseUpstream    string        `mapstructure:"reverse_upstream"`
	VolatileAliasesTTL int           `mapstructure:"volatile_aliases_ttl"` // seconds; non-positive saves are born expired
	CleanupInterval    int           `mapstructure:"cleanup_interval"`     // seconds; 0 disables the sweeper
	RouteLookupTimeout time.Duration `mapstructure:"route_lookup_timeout"`
	RoutesPath         string        `mapstructure:"routes_path"`
	WatchRoutes        bool          `mapstructure:"watch_routes"`
	LogLevel           string        `mapstructure:"log_level"`
	LogFormat          string        `mapstructure:"log_format"`
	Silent             bool          `mapstructure:"silent"`
}

// VolatileTTL returns the volatile alias TTL as a duration.
func (c *Config) VolatileTTL() time.Duration {
	return time.Duration(c.VolatileAliasesTTL) * time.Second
}

// CleanupEvery returns the sweep interval as a duration; zero disables.
func (c *Config) CleanupEvery() time.Duration {
	return time.Duration(c.CleanupInterval) * time.Second
}

// DefaultDir returns the masq home directory (~/.masq).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".masq"
	}
	return filepath.Join(home, ".masq")
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDir(), "config.yml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", filepath.Join(DefaultDir(), "masq.db"))
	v.SetDefault("web_server_port", 8089)
	v.SetDefault("forward_proxy_port", 9099)
	v.SetDefault("reverse_proxy_port", 9098)
	v.SetDefault("reverse_upstream", "")
	v.SetDefault("volatile_aliases_ttl", 3600)
	v.SetDefault("cleanup_interval", 60)
	v.SetDefault("route_lookup_timeout", "500ms")
	v.SetDefault("routes_path", "")
	v.SetDefault("watch_routes", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("silent", false)
}

// Load reads configuration from the given YAML file (or the default path when
// configPath is empty), layered under MASQ_* environment variables and the
// built-in defaults. A missing default file is fine; an explicitly requested
// file must exist.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MASQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	explicit := configPath != ""
	if !explicit {
		configPath = DefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", configPath)
		}
	} else if explicit {
		return nil, errors.Wrapf(err, "config file %s", configPath)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config file %s", configPath)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	ports := map[string]int{
		"web_server_port":    c.WebServerPort,
		"forward_proxy_port": c.ForwardProxyPort,
		"reverse_proxy_port": c.ReverseProxyPort,
	}
	for name, port := range ports {
		if port < 1 || port > 65535 {
			return errors.Newf("invalid %s: %d", name, port)
		}
	}
	if c.CleanupInterval < 0 {
		return errors.Newf("invalid cleanup_interval: %d", c.CleanupInterval)
	}
	if c.RouteLookupTimeout < 0 {
		return errors.Newf("invalid route_lookup_timeout: %s", c.RouteLookupTimeout)
	}
	return nil
}
