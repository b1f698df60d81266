package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/universal-console/garage/internal/interfaces"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	m, err := NewManagerAt(filepath.Join(dir, "config", "profiles.yaml"), filepath.Join(dir, "security", "master.key"))
	require.NoError(t, err)
	return m
}

func validProfile() *interfaces.Profile {
	return &interfaces.Profile{
		Name:         "home",
		URL:          "https://garage.example.net/api",
		Target:       "Garage",
		PollInterval: 4 * time.Second,
		Auth:         interfaces.AuthConfig{Type: "none"},
	}
}

func TestDefaultConfigCreatedOnFirstLoad(t *testing.T) {
	m := newTestManager(t)

	p, err := m.LoadProfile(DefaultProfile)
	require.NoError(t, err)
	assert.Equal(t, DefaultTarget, p.Target)
	assert.Equal(t, DefaultPollInterval, p.PollInterval)
	assert.Equal(t, 0, p.KeepaliveTicks())

	info, err := os.Stat(m.GetConfigPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(m.GetConfigPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "pollInterval: 4s")
}

func TestSaveAndLoadEncryptsSecrets(t *testing.T) {
	m := newTestManager(t)

	bearer := validProfile()
	bearer.Auth = interfaces.AuthConfig{Type: "bearer", Token: "abcdef0123456789"}
	require.NoError(t, m.SaveProfile(bearer))

	basic := validProfile()
	basic.Name = "shed"
	basic.Auth = interfaces.AuthConfig{Type: "basic", Username: "door", Password: "hunter22"}
	require.NoError(t, m.SaveProfile(basic))

	data, err := os.ReadFile(m.GetConfigPath())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "abcdef0123456789")
	assert.NotContains(t, string(data), "hunter22")
	assert.Equal(t, 2, strings.Count(string(data), encryptedPrefix))

	m.InvalidateCache()

	got, err := m.LoadProfile("home")
	require.NoError(t, err)
	assert.Equal(t, "abcdef0123456789", got.Auth.Token)

	got, err = m.LoadProfile("shed")
	require.NoError(t, err)
	assert.Equal(t, "hunter22", got.Auth.Password)

	names, err := m.ListProfiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "home", "shed"}, names)
}

func TestPlaintextSecretsAccepted(t *testing.T) {
	m := newTestManager(t)
	yaml := `profiles:
  hand:
    url: http://10.0.0.2/door
    pollInterval: 2s
    keepaliveBudget: 30s
    auth:
      type: bearer
      token: handwritten-token-1
`
	require.NoError(t, os.WriteFile(m.GetConfigPath(), []byte(yaml), 0600))

	p, err := m.LoadProfile("hand")
	require.NoError(t, err)
	assert.Equal(t, "handwritten-token-1", p.Auth.Token)
	assert.Equal(t, "Garage", p.Target)
	assert.Equal(t, 15, p.KeepaliveTicks())
}

func TestLoadProfileErrors(t *testing.T) {
	m := newTestManager(t)

	_, err := m.LoadProfile("missing")
	assert.ErrorContains(t, err, "not found")

	require.NoError(t, os.WriteFile(m.GetConfigPath(), []byte("profiles: [unclosed"), 0600))
	m.InvalidateCache()
	_, err = m.LoadProfile("default")
	assert.ErrorContains(t, err, "failed to parse")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *interfaces.Profile)
		errMsg string
	}{
		{name: "valid", mutate: func(p *interfaces.Profile) {}},
		{name: "no name", mutate: func(p *interfaces.Profile) { p.Name = "" }, errMsg: "name"},
		{name: "relative url", mutate: func(p *interfaces.Profile) { p.URL = "/garage" }, errMsg: "url"},
		{name: "bad scheme", mutate: func(p *interfaces.Profile) { p.URL = "mqtt://broker/garage" }, errMsg: "url"},
		{name: "no target", mutate: func(p *interfaces.Profile) { p.Target = " " }, errMsg: "target"},
		{name: "fast poll", mutate: func(p *interfaces.Profile) { p.PollInterval = 50 * time.Millisecond }, errMsg: "pollInterval"},
		{name: "negative keepalive", mutate: func(p *interfaces.Profile) { p.KeepaliveBudget = -time.Second }, errMsg: "keepaliveBudget"},
		{name: "bearer no token", mutate: func(p *interfaces.Profile) { p.Auth.Type = "bearer" }, errMsg: "bearer"},
		{name: "basic no password", mutate: func(p *interfaces.Profile) {
			p.Auth = interfaces.AuthConfig{Type: "basic", Username: "u"}
		}, errMsg: "basic"},
		{name: "unknown auth", mutate: func(p *interfaces.Profile) { p.Auth.Type = "kerberos" }, errMsg: "unsupported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProfile()
			tt.mutate(p)
			err := Validate(p)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestLoadTheme(t *testing.T) {
	m := newTestManager(t)

	theme, err := m.LoadTheme("monokai")
	require.NoError(t, err)
	assert.Equal(t, "#a6e22e", theme.Open)

	_, err = m.LoadTheme("neon")
	assert.Error(t, err)
}

func TestDeleteProfile(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.SaveProfile(validProfile()))

	assert.Error(t, m.DeleteProfile(DefaultProfile))
	assert.Error(t, m.DeleteProfile("nope"))
	require.NoError(t, m.DeleteProfile("home"))

	names, err := m.ListProfiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, names)
}

func TestSecurityManagerRoundTrip(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "master.key")
	s, err := NewSecurityManager(keyPath)
	require.NoError(t, err)
	assert.True(t, s.SecureKeyExists())

	enc, err := s.EncryptCredential("secret-value")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(enc, encryptedPrefix))

	// a second manager over the same key file decrypts it
	s2, err := NewSecurityManager(keyPath)
	require.NoError(t, err)
	dec, err := s2.DecryptCredential(enc)
	require.NoError(t, err)
	assert.Equal(t, "secret-value", dec)

	_, err = s2.DecryptCredential(encryptedPrefix + "AAAA")
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	o, err := ParseEnvFrom(map[string]string{
		"GARAGE_URL":              "http://override.local/door",
		"GARAGE_POLL_INTERVAL":    "1500ms",
		"GARAGE_KEEPALIVE_BUDGET": "0s",
		"GARAGE_TOKEN":            "envtoken-123456",
		"GARAGE_DEBUG":            "true",
	})
	require.NoError(t, err)
	assert.True(t, o.Debug)
	assert.Nil(t, o.Target)

	p := validProfile()
	p.KeepaliveBudget = time.Minute
	o.Apply(p)

	assert.Equal(t, "http://override.local/door", p.URL)
	assert.Equal(t, "Garage", p.Target)
	assert.Equal(t, 1500*time.Millisecond, p.PollInterval)
	assert.Equal(t, time.Duration(0), p.KeepaliveBudget)
	assert.Equal(t, interfaces.AuthConfig{Type: "bearer", Token: "envtoken-123456"}, p.Auth)

	_, err = ParseEnvFrom(map[string]string{"GARAGE_POLL_INTERVAL": "soon"})
	assert.ErrorContains(t, err, "parse env:")
}
