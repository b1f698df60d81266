// Package config manages garage profiles: the YAML profiles file, theme
// definitions, credential encryption at rest, environment overrides and
// profile validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/universal-console/garage/internal/auth"
	"github.com/universal-console/garage/internal/interfaces"
	"github.com/universal-console/garage/internal/logging"
)

// Profile defaults
const (
	DefaultProfile      = "default"
	DefaultTarget       = "Garage"
	DefaultPollInterval = 4 * time.Second
	DefaultURL          = "http://localhost:8080/garage"
	DefaultTheme        = "classic"

	// MinPollInterval is the fastest poll rate a profile may ask for
	MinPollInterval = 100 * time.Millisecond
)

// Config represents the complete configuration file structure
type Config struct {
	Profiles map[string]interfaces.Profile `yaml:"profiles"`
	Themes   map[string]interfaces.Theme   `yaml:"themes"`
}

// Manager implements the ConfigManager interface
type Manager struct {
	configPath   string
	securityMgr  SecurityManager
	logger       *logging.Logger
	mutex        sync.Mutex
	cachedConfig *Config
}

// NewManager creates a configuration manager at the XDG config location
func NewManager() (*Manager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to determine configuration path: %w", err)
	}
	keyPath, err := getSecurityKeyPath()
	if err != nil {
		return nil, fmt.Errorf("failed to determine security key path: %w", err)
	}
	return NewManagerAt(configPath, keyPath)
}

// NewManagerAt creates a configuration manager using explicit file locations
func NewManagerAt(configPath, keyPath string) (*Manager, error) {
	securityMgr, err := NewSecurityManager(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize security manager: %w", err)
	}

	manager := &Manager{
		configPath:  configPath,
		securityMgr: securityMgr,
		logger:      logging.GetConfigLogger(),
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	return manager, nil
}

func getConfigPath() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "garage", "profiles.yaml"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "garage", "profiles.yaml"), nil
}

// loadConfig must be called with mutex held. A missing file is replaced by
// the default configuration.
func (m *Manager) loadConfig() (*Config, error) {
	if m.cachedConfig != nil {
		return m.cachedConfig, nil
	}

	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		config := createDefaultConfig()
		if err := m.saveConfig(config); err != nil {
			return nil, fmt.Errorf("failed to create default configuration: %w", err)
		}
		m.logger.Info("Created default configuration", "path", m.configPath)
		m.cachedConfig = config
		return config, nil
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}

	for name, profile := range config.Profiles {
		if err := m.decryptSecrets(&profile.Auth); err != nil {
			return nil, fmt.Errorf("failed to decrypt credentials for profile %s: %w", name, err)
		}
		config.Profiles[name] = profile
	}

	m.cachedConfig = &config
	return &config, nil
}

// saveConfig writes config with secrets encrypted; config itself is not modified
func (m *Manager) saveConfig(config *Config) error {
	configCopy := *config
	configCopy.Profiles = make(map[string]interfaces.Profile, len(config.Profiles))

	for name, profile := range config.Profiles {
		profileCopy := profile
		if err := m.encryptSecrets(&profileCopy.Auth); err != nil {
			return fmt.Errorf("failed to encrypt credentials for profile %s: %w", name, err)
		}
		configCopy.Profiles[name] = profileCopy
	}

	data, err := yaml.Marshal(&configCopy)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return nil
}

func (m *Manager) encryptSecrets(a *interfaces.AuthConfig) error {
	var err error
	switch auth.NormalizeType(a.Type) {
	case auth.TypeBearer:
		if a.Token != "" {
			a.Token, err = m.securityMgr.EncryptCredential(a.Token)
		}
	case auth.TypeBasic:
		if a.Password != "" {
			a.Password, err = m.securityMgr.EncryptCredential(a.Password)
		}
	}
	return err
}

func (m *Manager) decryptSecrets(a *interfaces.AuthConfig) error {
	var err error
	switch auth.NormalizeType(a.Type) {
	case auth.TypeBearer:
		if a.Token != "" {
			a.Token, err = m.securityMgr.DecryptCredential(a.Token)
		}
	case auth.TypeBasic:
		if a.Password != "" {
			a.Password, err = m.securityMgr.DecryptCredential(a.Password)
		}
	}
	return err
}

func createDefaultConfig() *Config {
	return &Config{
		Profiles: map[string]interfaces.Profile{
			DefaultProfile: {
				Name:         DefaultProfile,
				URL:          DefaultURL,
				Target:       DefaultTarget,
				PollInterval: DefaultPollInterval,
				Theme:        DefaultTheme,
				Auth:         interfaces.AuthConfig{Type: auth.TypeNone},
			},
		},
		Themes: BuiltinThemes(),
	}
}

// BuiltinThemes returns the themes every configuration starts with
func BuiltinThemes() map[string]interfaces.Theme {
	return map[string]interfaces.Theme{
		"classic": {
			Name:    "classic",
			Open:    "#28a745",
			Closed:  "#17a2b8",
			Moving:  "#ffc107",
			Unknown: "#6c757d",
		},
		"monokai": {
			Name:    "monokai",
			Open:    "#a6e22e",
			Closed:  "#66d9ef",
			Moving:  "#fd971f",
			Unknown: "#75715e",
		},
	}
}

// ApplyDefaults fills unset profile fields
func ApplyDefaults(profile *interfaces.Profile) {
	if strings.TrimSpace(profile.Target) == "" {
		profile.Target = DefaultTarget
	}
	if profile.PollInterval == 0 {
		profile.PollInterval = DefaultPollInterval
	}
	if profile.Theme == "" {
		profile.Theme = DefaultTheme
	}
	if profile.Auth.Type == "" {
		profile.Auth.Type = auth.TypeNone
	}
}

// LoadProfile retrieves a profile by name from the configuration file
func (m *Manager) LoadProfile(name string) (*interfaces.Profile, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	config, err := m.loadConfig()
	if err != nil {
		m.logger.LogConfigError("load", err)
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	profile, exists := config.Profiles[name]
	if !exists {
		return nil, fmt.Errorf("profile '%s' not found", name)
	}

	profile.Name = name
	ApplyDefaults(&profile)

	if err := m.ValidateProfile(&profile); err != nil {
		return nil, fmt.Errorf("profile '%s' is invalid: %w", name, err)
	}

	m.logger.LogConfigLoad(m.configPath, name)
	return &profile, nil
}

// SaveProfile persists a profile to the configuration file
func (m *Manager) SaveProfile(profile *interfaces.Profile) error {
	if err := m.ValidateProfile(profile); err != nil {
		return fmt.Errorf("cannot save invalid profile: %w", err)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	config, err := m.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if config.Profiles == nil {
		config.Profiles = make(map[string]interfaces.Profile)
	}
	config.Profiles[profile.Name] = *profile

	if err := m.saveConfig(config); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	return nil
}

// DeleteProfile removes a profile. The default profile cannot be deleted.
func (m *Manager) DeleteProfile(name string) error {
	if name == DefaultProfile {
		return fmt.Errorf("cannot delete the default profile")
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	config, err := m.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if _, exists := config.Profiles[name]; !exists {
		return fmt.Errorf("profile '%s' does not exist", name)
	}

	delete(config.Profiles, name)
	return m.saveConfig(config)
}

// ListProfiles returns all available profile names, sorted
func (m *Manager) ListProfiles() ([]string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	config, err := m.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	names := make([]string, 0, len(config.Profiles))
	for name := range config.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// LoadTheme retrieves theme configuration by name. Built-in themes are
// available even when the file does not define them.
func (m *Manager) LoadTheme(name string) (*interfaces.Theme, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	config, err := m.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	theme, exists := config.Themes[name]
	if !exists {
		theme, exists = BuiltinThemes()[name]
	}
	if !exists {
		return nil, fmt.Errorf("theme '%s' not found", name)
	}

	theme.Name = name
	return &theme, nil
}

// ValidateProfile ensures profile has all required fields
func (m *Manager) ValidateProfile(profile *interfaces.Profile) error {
	return Validate(profile)
}

// Validate checks a profile independent of any configuration file
func Validate(profile *interfaces.Profile) error {
	if profile == nil {
		return fmt.Errorf("profile cannot be nil")
	}
	if strings.TrimSpace(profile.Name) == "" {
		return fmt.Errorf("profile name cannot be empty")
	}

	u, err := url.Parse(strings.TrimSpace(profile.URL))
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be an absolute http or https URL, got %q", profile.URL)
	}

	if strings.TrimSpace(profile.Target) == "" {
		return fmt.Errorf("target cannot be empty")
	}
	if profile.PollInterval < MinPollInterval {
		return fmt.Errorf("pollInterval must be at least %s, got %s", MinPollInterval, profile.PollInterval)
	}
	if profile.KeepaliveBudget < 0 {
		return fmt.Errorf("keepaliveBudget cannot be negative")
	}
	if profile.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout cannot be negative")
	}

	switch auth.NormalizeType(profile.Auth.Type) {
	case auth.TypeNone:
	case auth.TypeBearer:
		if strings.TrimSpace(profile.Auth.Token) == "" {
			return fmt.Errorf("bearer token cannot be empty when auth type is 'bearer'")
		}
		if strings.ContainsAny(strings.TrimSpace(profile.Auth.Token), " \t\n\r") {
			return fmt.Errorf("bearer token cannot contain whitespace characters")
		}
	case auth.TypeBasic:
		if strings.TrimSpace(profile.Auth.Username) == "" || profile.Auth.Password == "" {
			return fmt.Errorf("basic auth requires a username and password")
		}
	default:
		return fmt.Errorf("unsupported authentication type: %s", profile.Auth.Type)
	}

	return nil
}

// GetConfigPath returns the path to the configuration file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// InvalidateCache forces the next access to re-read the file
func (m *Manager) InvalidateCache() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.cachedConfig = nil
}
