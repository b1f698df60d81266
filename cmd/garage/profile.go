package main

import (
	"github.com/universal-console/garage/internal/auth"
	"github.com/universal-console/garage/internal/config"
	"github.com/universal-console/garage/internal/errors"
	"github.com/universal-console/garage/internal/interfaces"
)

// profileLoader is the part of the config manager profile resolution needs
type profileLoader interface {
	LoadProfile(name string) (*interfaces.Profile, error)
}

// resolveProfile builds the effective profile. Environment overrides apply
// on top of the stored profile and flags the user set apply last. A --url
// without --profile connects without touching the configuration file.
func resolveProfile(loader profileLoader, args *globalArgs, changed func(string) bool, env config.EnvOverrides) (*interfaces.Profile, error) {
	var profile *interfaces.Profile

	if args.URL != "" && args.Profile == "" {
		profile = &interfaces.Profile{
			Name: "temporary",
			URL:  args.URL,
			Auth: interfaces.AuthConfig{Type: auth.TypeNone},
		}
	} else {
		name := args.Profile
		if name == "" {
			name = config.DefaultProfile
		}

		loaded, err := loader.LoadProfile(name)
		if err != nil {
			return nil, errors.NewConfigurationError("cli").
				WithOperation("load_profile").
				WithMessage("failed to load profile").
				WithUserMessage("could not load profile '" + name + "'").
				WithContext("profile", name).
				WithCause(err).
				WithoutStackTrace().
				Build()
		}
		profile = loaded
	}

	env.Apply(profile)
	applyFlags(profile, args, changed)
	config.ApplyDefaults(profile)

	if err := config.Validate(profile); err != nil {
		return nil, errors.NewValidationError("cli").
			WithOperation("resolve_profile").
			WithMessage("invalid settings").
			WithUserMessage("invalid settings for profile '" + profile.Name + "'").
			WithCause(err).
			WithoutStackTrace().
			Build()
	}
	return profile, nil
}

func applyFlags(profile *interfaces.Profile, args *globalArgs, changed func(string) bool) {
	if changed("url") {
		profile.URL = args.URL
	}
	if changed("target") {
		profile.Target = args.Target
	}
	if changed("poll") {
		profile.PollInterval = args.Poll
	}
	if changed("keepalive") {
		profile.KeepaliveBudget = args.Keepalive
	}
	if changed("theme") {
		profile.Theme = args.Theme
	}
}
