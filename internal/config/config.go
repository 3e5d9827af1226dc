// Package config loads fleetguard's configuration from defaults, an
// optional YAML file and FLEETGUARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/jmcleod/fleetguard/guard"
)

// EnvPrefix is prepended to every environment override, e.g.
// FLEETGUARD_SERVER_ADDR.
const EnvPrefix = "FLEETGUARD"

// DefaultAddr keeps the guard on the loopback interface. It serves the
// single identity signed in on this device.
const DefaultAddr = "127.0.0.1:8080"

const (
	DriverMemory   = "memory"
	DriverBolt     = "bbolt"
	DriverPostgres = "postgres"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Audit   AuditConfig   `mapstructure:"audit" yaml:"audit"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Guard   guard.Config  `mapstructure:"guard" yaml:"guard"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	TLSCert         string        `mapstructure:"tls_cert" yaml:"tls_cert"`
	TLSKey          string        `mapstructure:"tls_key" yaml:"tls_key"`
	// TrustedProxies lists CIDRs whose forwarding headers are believed
	// when keying the API limiter by client IP.
	TrustedProxies []string `mapstructure:"trusted_proxies" yaml:"trusted_proxies"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	Path   string `mapstructure:"path" yaml:"path"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

type AuditConfig struct {
	Log               bool          `mapstructure:"log" yaml:"log"`
	Store             bool          `mapstructure:"store" yaml:"store"`
	WebhookURL        string        `mapstructure:"webhook_url" yaml:"webhook_url"`
	WebhookAuthHeader string        `mapstructure:"webhook_auth_header" yaml:"webhook_auth_header"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers every key so that AutomaticEnv can override it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", DefaultAddr)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.tls_cert", "")
	v.SetDefault("server.tls_key", "")
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("storage.driver", DriverBolt)
	v.SetDefault("storage.path", "./data/fleetguard.db")
	v.SetDefault("storage.dsn", "")

	v.SetDefault("audit.log", true)
	v.SetDefault("audit.store", true)
	v.SetDefault("audit.webhook_url", "")
	v.SetDefault("audit.webhook_auth_header", "")
	v.SetDefault("audit.write_timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	g := guard.DefaultConfig()
	v.SetDefault("guard.api_limit.window", g.APILimit.Window.String())
	v.SetDefault("guard.api_limit.max_attempts", g.APILimit.MaxAttempts)
	v.SetDefault("guard.auth_limit.window", g.AuthLimit.Window.String())
	v.SetDefault("guard.auth_limit.max_attempts", g.AuthLimit.MaxAttempts)
	v.SetDefault("guard.sweep_interval", g.SweepInterval.String())
	v.SetDefault("guard.queue_size", g.QueueSize)
	v.SetDefault("guard.session.check_interval", g.Session.CheckInterval.String())
	v.SetDefault("guard.session.stale_after", g.Session.StaleAfter.String())
	v.SetDefault("guard.password.min_length", g.Password.MinLength)
	v.SetDefault("guard.password.max_length", g.Password.MaxLength)
	v.SetDefault("guard.password.require_upper", g.Password.RequireUpper)
	v.SetDefault("guard.password.require_lower", g.Password.RequireLower)
	v.SetDefault("guard.password.require_digit", g.Password.RequireDigit)
	v.SetDefault("guard.password.require_symbol", g.Password.RequireSymbol)
	v.SetDefault("guard.password.login_min_length", g.Password.LoginMinLength)

	rules := make([]map[string]any, 0, len(g.Alerts))
	for _, r := range g.Alerts {
		rules = append(rules, map[string]any{
			"event":     r.Event,
			"window":    r.Window.String(),
			"threshold": r.Threshold,
			"message":   r.Message,
		})
	}
	v.SetDefault("guard.alerts", rules)
}

// Load reads configuration into a fresh viper instance. configFile may be
// empty, in which case ./fleetguard.yaml and $HOME/.fleetguard.yaml are
// tried and a missing file is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	return LoadWith(v, configFile)
}

// LoadWith is Load on a caller-supplied viper, so that cobra flags bound
// to v take part in the precedence chain.
func LoadWith(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("fleetguard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Guard.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverBolt:
		if c.Storage.Path == "" {
			return errors.New("invalid config: storage.path is required for bbolt")
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return errors.New("invalid config: storage.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("invalid config: unknown storage driver %q", c.Storage.Driver)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid config: log.format must be text or json, got %q", c.Log.Format)
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return errors.New("invalid config: server.tls_cert and server.tls_key must be set together")
	}
	return nil
}

// NewLogger builds the process logger described by c.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
