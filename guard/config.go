package guard

import (
	"fmt"
	"time"

	"github.com/jmcleod/fleetguard/audit"
	"github.com/jmcleod/fleetguard/credential"
	"github.com/jmcleod/fleetguard/ratelimit"
	"github.com/jmcleod/fleetguard/session"
)

// Config gathers the tunables of every guard component.
type Config struct {
	APILimit      ratelimit.Config  `mapstructure:"api_limit" yaml:"api_limit"`
	AuthLimit     ratelimit.Config  `mapstructure:"auth_limit" yaml:"auth_limit"`
	SweepInterval time.Duration     `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	Session       session.Config    `mapstructure:"session" yaml:"session"`
	Password      credential.Policy `mapstructure:"password" yaml:"password"`
	Alerts        []audit.AlertRule `mapstructure:"alerts" yaml:"alerts"`
	QueueSize     int               `mapstructure:"queue_size" yaml:"queue_size"`
}

func DefaultConfig() Config {
	return Config{
		APILimit:      ratelimit.APIConfig(),
		AuthLimit:     ratelimit.AuthConfig(),
		SweepInterval: ratelimit.DefaultSweepInterval,
		Session:       session.DefaultConfig(),
		Password:      credential.DefaultPolicy(),
		Alerts:        audit.DefaultAlertRules(),
		QueueSize:     audit.DefaultQueueSize,
	}
}

func (c Config) Validate() error {
	if err := c.APILimit.Validate(); err != nil {
		return fmt.Errorf("api limit: %w", err)
	}
	if err := c.AuthLimit.Validate(); err != nil {
		return fmt.Errorf("auth limit: %w", err)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", c.SweepInterval)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := c.Password.Validate(); err != nil {
		return fmt.Errorf("password policy: %w", err)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive, got %d", c.QueueSize)
	}
	return nil
}
