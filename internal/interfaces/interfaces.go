// Package interfaces defines the core types and interfaces shared across the
// Garage Console so that the polling session, transport, scheduler and display
// can be wired together through dependency injection and swapped out in tests.
package interfaces

import (
	"fmt"
	"time"
)

// Profile represents a complete configuration profile for one garage endpoint
type Profile struct {
	Name            string            `yaml:"name"`
	URL             string            `yaml:"url"`
	Target          string            `yaml:"target"`
	PollInterval    time.Duration     `yaml:"pollInterval"`
	KeepaliveBudget time.Duration     `yaml:"keepaliveBudget"`
	RequestTimeout  time.Duration     `yaml:"requestTimeout,omitempty"`
	Theme           string            `yaml:"theme"`
	Auth            AuthConfig        `yaml:"auth"`
	Metadata        map[string]string `yaml:"metadata,omitempty"`
}

// KeepaliveTicks returns the number of idle poll ticks the session may run
// before terminating. Zero means the keepalive is unbounded.
func (p *Profile) KeepaliveTicks() int {
	if p.KeepaliveBudget <= 0 || p.PollInterval <= 0 {
		return 0
	}
	ticks := int(p.KeepaliveBudget / p.PollInterval)
	if ticks < 1 {
		ticks = 1
	}
	return ticks
}

// AuthConfig represents authentication configuration for a profile
type AuthConfig struct {
	Type     string `yaml:"type"` // "none", "bearer", "basic"
	Token    string `yaml:"token,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// Theme represents visual styling configuration
type Theme struct {
	Name    string `yaml:"name"`
	Open    string `yaml:"open"`
	Closed  string `yaml:"closed"`
	Moving  string `yaml:"moving"`
	Unknown string `yaml:"unknown"`
}

// ConfigManager handles profile and theme management
type ConfigManager interface {
	// LoadProfile retrieves a profile by name from the configuration file
	LoadProfile(name string) (*Profile, error)

	// SaveProfile persists a profile to the configuration file
	SaveProfile(profile *Profile) error

	// ListProfiles returns all available profile names
	ListProfiles() ([]string, error)

	// LoadTheme retrieves theme configuration by name
	LoadTheme(name string) (*Theme, error)

	// ValidateProfile ensures profile has all required fields
	ValidateProfile(profile *Profile) error

	// GetConfigPath returns the path to the configuration file
	GetConfigPath() string
}

// AuthManager handles credentials for the garage endpoint
type AuthManager interface {
	// ValidateToken verifies the format and basic validity of an authentication token
	ValidateToken(token string, tokenType string) error

	// CreateAuthHeader constructs the Authorization header value, or "" for no auth
	CreateAuthHeader(auth *AuthConfig) (string, error)
}

// RequestTag identifies the logical purpose of an outstanding request. It is
// carried opaquely by the transport and echoed back on completion.
type RequestTag int32

// Tag values match the cookies the garage endpoint has always been sent.
const (
	TagStatusQuery   RequestTag = 294420452
	TagCommandSubmit RequestTag = 294420453
)

// String returns a readable name for the tag
func (t RequestTag) String() string {
	switch t {
	case TagStatusQuery:
		return "status"
	case TagCommandSubmit:
		return "command"
	default:
		return fmt.Sprintf("unknown(%d)", int32(t))
	}
}

// OverrideToggle is the override value asking the endpoint to toggle the door
const OverrideToggle int32 = 1

// StatusPayload is the body of a status query
type StatusPayload struct {
	Target    string
	CacheBust int32
}

// CommandPayload is the body of a door command
type CommandPayload struct {
	Target    string
	CacheBust int32
	Override  int32
}

// Result is the completion of an accepted send: exactly one of Success or
// Failure is delivered per accepted request.
type Result interface {
	ResultTag() RequestTag
}

// Success carries a decoded response body
type Success struct {
	Tag     RequestTag
	Payload map[string]any
}

// ResultTag implements Result
func (s Success) ResultTag() RequestTag { return s.Tag }

// Failure carries the HTTP status code, or 0 when no response was received
type Failure struct {
	Tag  RequestTag
	Code int
}

// ResultTag implements Result
func (f Failure) ResultTag() RequestTag { return f.Tag }

// Transport sends requests without blocking. Send reports whether the request
// was accepted; a rejected request never produces a completion. Each accepted
// request produces exactly one Result, delivered later on the event loop.
type Transport interface {
	Send(tag RequestTag, payload any) bool
}

// Display shows the current door status text. SetText must be safe to call
// at any time, including after the UI has been torn down.
type Display interface {
	SetText(text string)
}

// TimerHandle identifies a scheduled callback
type TimerHandle uint64

// Scheduler runs callbacks on the event loop after a delay
type Scheduler interface {
	// ScheduleOnce arranges for fn to run once after delay
	ScheduleOnce(delay time.Duration, fn func()) TimerHandle

	// Cancel prevents a scheduled callback from running. Cancelling an
	// already fired or unknown handle is a no-op.
	Cancel(handle TimerHandle)
}

// Poster hands a callback to the single cooperative event loop
type Poster interface {
	Post(fn func())
}

// SessionObserver receives notifications about the decisions the polling
// session makes. Implementations must not block.
type SessionObserver interface {
	RequestSent(tag RequestTag)
	RequestSkipped(tag RequestTag, reason string)
	ResponseReceived(tag RequestTag, outcome string)
	KeepaliveRemaining(ticks int)
}
