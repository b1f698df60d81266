package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/universal-console/garage/internal/auth"
	"github.com/universal-console/garage/internal/interfaces"
)

// EnvOverrides holds profile settings read from the environment. Unset
// variables leave the corresponding field nil.
type EnvOverrides struct {
	URL             *string        `env:"GARAGE_URL"`
	Target          *string        `env:"GARAGE_TARGET"`
	PollInterval    *time.Duration `env:"GARAGE_POLL_INTERVAL"`
	KeepaliveBudget *time.Duration `env:"GARAGE_KEEPALIVE_BUDGET"`
	Token           *string        `env:"GARAGE_TOKEN"`
	Theme           *string        `env:"GARAGE_THEME"`
	Debug           bool           `env:"GARAGE_DEBUG"`
}

// ParseEnv loads overrides from the process environment
func ParseEnv() (EnvOverrides, error) {
	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return o, fmt.Errorf("parse env: %w", err)
	}
	return o, nil
}

// ParseEnvFrom loads overrides from vars instead of the process environment
func ParseEnvFrom(vars map[string]string) (EnvOverrides, error) {
	var o EnvOverrides
	if err := env.ParseWithOptions(&o, env.Options{Environment: vars}); err != nil {
		return o, fmt.Errorf("parse env: %w", err)
	}
	return o, nil
}

// Apply copies every set override onto profile. A token switches the
// profile to bearer authentication.
func (o EnvOverrides) Apply(profile *interfaces.Profile) {
	if o.URL != nil {
		profile.URL = *o.URL
	}
	if o.Target != nil {
		profile.Target = *o.Target
	}
	if o.PollInterval != nil {
		profile.PollInterval = *o.PollInterval
	}
	if o.KeepaliveBudget != nil {
		profile.KeepaliveBudget = *o.KeepaliveBudget
	}
	if o.Theme != nil {
		profile.Theme = *o.Theme
	}
	if o.Token != nil {
		profile.Auth = interfaces.AuthConfig{Type: auth.TypeBearer, Token: *o.Token}
	}
}
