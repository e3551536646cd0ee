package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ChannelConfig describes a channel served by the static catalog
type ChannelConfig struct {
	Name       string   `yaml:"name" toml:"name" json:"name" validate:"required,startswith=#"`
	Topic      string   `yaml:"topic" toml:"topic" json:"topic"`
	InviteOnly bool     `yaml:"invite_only" toml:"invite_only" json:"invite_only"`
	Allowed    []string `yaml:"allowed" toml:"allowed" json:"allowed"`
}

// AccountConfig is a nick that must authenticate with a password
type AccountConfig struct {
	Nick         string `yaml:"nick" toml:"nick" json:"nick" validate:"required"`
	PasswordHash string `yaml:"password_hash" toml:"password_hash" json:"password_hash" validate:"required"`
}

// Config represents the server configuration
type Config struct {
	// Server settings
	Server struct {
		Name          string `yaml:"name" toml:"name" json:"name" env:"IRCD_SERVER_NAME" validate:"required"`
		Host          string `yaml:"host" toml:"host" json:"host" env:"IRCD_HOST"`
		Port          int    `yaml:"port" toml:"port" json:"port" env:"IRCD_PORT" validate:"gte=0,lte=65535"`
		MOTD          string `yaml:"motd" toml:"motd" json:"motd" env:"IRCD_MOTD"`
		BadAuth       string `yaml:"bad_auth" toml:"bad_auth" json:"bad_auth" env:"IRCD_BAD_AUTH"`
		Version       string `yaml:"version" toml:"version" json:"version" env:"IRCD_VERSION"`
		Password      string `yaml:"password" toml:"password" json:"password" env:"IRCD_PASSWORD"`
		ProxyProtocol bool   `yaml:"proxy_protocol" toml:"proxy_protocol" json:"proxy_protocol" env:"IRCD_PROXY_PROTOCOL"`
		IdleTimeout   int    `yaml:"idle_timeout" toml:"idle_timeout" json:"idle_timeout" env:"IRCD_IDLE_TIMEOUT" validate:"gte=0"`
	} `yaml:"server" toml:"server" json:"server"`

	// Admin API settings
	Admin struct {
		Enabled      bool     `yaml:"enabled" toml:"enabled" json:"enabled" env:"IRCD_ADMIN_ENABLED"`
		Host         string   `yaml:"host" toml:"host" json:"host" env:"IRCD_ADMIN_HOST"`
		Port         int      `yaml:"port" toml:"port" json:"port" env:"IRCD_ADMIN_PORT" validate:"gte=0,lte=65535"`
		BearerTokens []string `yaml:"bearer_tokens" toml:"bearer_tokens" json:"bearer_tokens" env:"IRCD_ADMIN_TOKENS"`
	} `yaml:"admin" toml:"admin" json:"admin"`

	// Metrics endpoint settings
	Metrics struct {
		Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled" env:"IRCD_METRICS_ENABLED"`
		Host    string `yaml:"host" toml:"host" json:"host" env:"IRCD_METRICS_HOST"`
		Port    int    `yaml:"port" toml:"port" json:"port" env:"IRCD_METRICS_PORT" validate:"gte=0,lte=65535"`
		Path    string `yaml:"path" toml:"path" json:"path" env:"IRCD_METRICS_PATH" validate:"required,startswith=/"`
	} `yaml:"metrics" toml:"metrics" json:"metrics"`

	// SQL catalog; an empty driver selects the static catalog below
	Store struct {
		Driver string `yaml:"driver" toml:"driver" json:"driver" env:"IRCD_STORE_DRIVER" validate:"omitempty,oneof=sqlite postgres mysql"`
		DSN    string `yaml:"dsn" toml:"dsn" json:"dsn" env:"IRCD_STORE_DSN" validate:"required_with=Driver"`
	} `yaml:"store" toml:"store" json:"store"`

	// Catalog lookup cache, in seconds
	Cache struct {
		TrueTTL  int `yaml:"true_ttl" toml:"true_ttl" json:"true_ttl" env:"IRCD_CACHE_TRUE_TTL" validate:"gte=0"`
		FalseTTL int `yaml:"false_ttl" toml:"false_ttl" json:"false_ttl" env:"IRCD_CACHE_FALSE_TTL" validate:"gte=0"`
	} `yaml:"cache" toml:"cache" json:"cache"`

	// Upstream IRC bridge
	Bridge struct {
		Enabled  bool     `yaml:"enabled" toml:"enabled" json:"enabled" env:"IRCD_BRIDGE_ENABLED"`
		Server   string   `yaml:"server" toml:"server" json:"server" env:"IRCD_BRIDGE_SERVER" validate:"required_if=Enabled true"`
		Port     int      `yaml:"port" toml:"port" json:"port" env:"IRCD_BRIDGE_PORT" validate:"gte=0,lte=65535"`
		Nick     string   `yaml:"nick" toml:"nick" json:"nick" env:"IRCD_BRIDGE_NICK"`
		User     string   `yaml:"user" toml:"user" json:"user" env:"IRCD_BRIDGE_USER"`
		Password string   `yaml:"password" toml:"password" json:"password" env:"IRCD_BRIDGE_PASSWORD"`
		TLS      bool     `yaml:"tls" toml:"tls" json:"tls" env:"IRCD_BRIDGE_TLS"`
		Channels []string `yaml:"channels" toml:"channels" json:"channels" env:"IRCD_BRIDGE_CHANNELS"`
	} `yaml:"bridge" toml:"bridge" json:"bridge"`

	// Static catalog
	Channels []ChannelConfig `yaml:"channels" toml:"channels" json:"channels" validate:"dive"`
	Accounts []AccountConfig `yaml:"accounts" toml:"accounts" json:"accounts" validate:"dive"`

	// Configuration source for reloading
	Source string `yaml:"-" toml:"-" json:"-"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	c.Server.Name = "localhost"
	c.Server.Host = "0.0.0.0"
	c.Server.Port = 6667
	c.Server.MOTD = "Message of the day"
	c.Server.BadAuth = "Your username and password were not recognized"
	c.Admin.Host = "127.0.0.1"
	c.Admin.Port = 8080
	c.Metrics.Host = "127.0.0.1"
	c.Metrics.Port = 7070
	c.Metrics.Path = "/metrics"
	c.Cache.TrueTTL = 60
	c.Cache.FalseTTL = 10
	c.Bridge.Port = 6697
	c.Bridge.Nick = "ircengine"
	c.Bridge.User = "ircengine"
	c.Bridge.TLS = true
}

// Load loads configuration from a file or URL. An empty source yields the
// defaults. Environment variables are applied last.
func Load(source string) (*Config, error) {
	cfg := Default()

	if source != "" {
		if err := cfg.loadFromSource(source); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Reload reloads the configuration from the original source or a new source
func (c *Config) Reload(newSource string) error {
	if newSource == "" {
		newSource = c.Source
	}

	newCfg, err := Load(newSource)
	if err != nil {
		return err
	}

	*c = *newCfg
	return nil
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// loadFromSource loads configuration from a file or URL
func (c *Config) loadFromSource(source string) error {
	var data []byte
	var err error

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := http.Get(source)
		if err != nil {
			return fmt.Errorf("failed to load config from URL: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("failed to load config from URL, status: %s", resp.Status)
		}

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read config from URL: %w", err)
		}
	} else {
		data, err = os.ReadFile(source)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	switch {
	case strings.HasSuffix(source, ".toml"):
		err = toml.Unmarshal(data, c)
	case strings.HasSuffix(source, ".json"):
		err = json.Unmarshal(data, c)
	default:
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	c.Source = source
	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	applyEnvOverridesRecursive(reflect.ValueOf(cfg).Elem())
}

func applyEnvOverridesRecursive(v reflect.Value) {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldValue := v.Field(i)

		if field.PkgPath != "" {
			continue
		}

		if envTag := field.Tag.Get("env"); envTag != "" {
			if envValue, exists := os.LookupEnv(envTag); exists {
				setFieldFromEnv(fieldValue, envValue)
			}
		} else if field.Type.Kind() == reflect.Struct {
			applyEnvOverridesRecursive(fieldValue)
		}
	}
}

// setFieldFromEnv sets a field's value from an environment variable
func setFieldFromEnv(field reflect.Value, envValue string) {
	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v, err := parseInt(envValue); err == nil {
			field.SetInt(v)
		}
	case reflect.Bool:
		field.SetBool(parseBool(envValue))
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			values := strings.Split(envValue, ",")
			slice := reflect.MakeSlice(field.Type(), len(values), len(values))
			for i, v := range values {
				slice.Index(i).SetString(strings.TrimSpace(v))
			}
			field.Set(slice)
		}
	}
}

func parseInt(s string) (int64, error) {
	var v int64
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "y"
}

// GetListenAddress returns the formatted listen address for the IRC listener
func (c *Config) GetListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetAdminListenAddress returns the formatted listen address for the admin API
func (c *Config) GetAdminListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Admin.Host, c.Admin.Port)
}

// GetMetricsListenAddress returns the formatted listen address for metrics
func (c *Config) GetMetricsListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Metrics.Host, c.Metrics.Port)
}

// GetIdleTimeout returns the session idle timeout, zero when disabled
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Server.IdleTimeout) * time.Second
}
