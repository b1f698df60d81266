// Package auth builds the credentials sent to the garage endpoint. It
// validates bearer tokens and basic credentials before they are used and
// turns a profile's AuthConfig into an Authorization header value.
package auth

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/universal-console/garage/internal/errors"
	"github.com/universal-console/garage/internal/interfaces"
	"github.com/universal-console/garage/internal/logging"
)

// Supported authentication types
const (
	TypeNone   = "none"
	TypeBearer = "bearer"
	TypeBasic  = "basic"
)

// Rejection codes carried by authentication errors
const (
	CodeInvalidToken       = "invalid_token"
	CodeInvalidCredentials = "invalid_credentials"
	CodeUnsupportedType    = "unsupported_type"
)

// Manager implements interfaces.AuthManager
type Manager struct {
	validator *TokenValidator
	logger    *logging.Logger
	mutex     sync.RWMutex
}

// NewManager creates an authentication manager. A nil clock uses time.Now.
func NewManager(now func() time.Time) *Manager {
	return &Manager{
		validator: NewTokenValidator(now),
		logger:    logging.GetGlobalLogger().WithComponent("auth"),
	}
}

// ValidateToken verifies the format and basic validity of an authentication token
func (m *Manager) ValidateToken(token string, tokenType string) error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.validator.ValidateToken(token, tokenType)
}

// CreateAuthHeader constructs the Authorization header value. An empty auth
// type is treated as "none".
func (m *Manager) CreateAuthHeader(auth *interfaces.AuthConfig) (string, error) {
	if auth == nil {
		return "", fmt.Errorf("authentication configuration cannot be nil")
	}

	authType := NormalizeType(auth.Type)
	logger := m.logger.WithField("auth_type", authType)
	switch authType {
	case TypeNone:
		return "", nil
	case TypeBearer:
		if err := m.ValidateToken(auth.Token, TypeBearer); err != nil {
			return "", m.rejection(logger, CodeInvalidToken, "the bearer token was rejected", err)
		}
		logger.Debug("Using bearer authentication", "token_type", m.validator.Kind(auth.Token))
		return "Bearer " + strings.TrimSpace(auth.Token), nil
	case TypeBasic:
		if err := m.validator.ValidateBasic(auth.Username, auth.Password); err != nil {
			return "", m.rejection(logger, CodeInvalidCredentials, "the username or password was rejected", err)
		}
		creds := auth.Username + ":" + auth.Password
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds)), nil
	default:
		return "", m.rejection(logger, CodeUnsupportedType,
			"authentication type '"+auth.Type+"' is not supported",
			fmt.Errorf("unsupported authentication type: %s", auth.Type))
	}
}

// rejection builds the error returned for credentials that cannot be used.
// Fixing them needs a configuration change, so it is never recoverable.
func (m *Manager) rejection(logger *logging.Logger, code, userMessage string, cause error) error {
	return errors.NewAuthenticationError("auth").
		WithOperation("create_auth_header").
		WithCode(code).
		WithMessage("invalid authentication configuration").
		WithUserMessage(userMessage).
		WithCause(cause).
		WithRecoverable(false).
		WithLogger(logger).
		WithoutStackTrace().
		Build()
}

// NormalizeType lowercases an auth type and maps "" to "none"
func NormalizeType(authType string) string {
	t := strings.ToLower(strings.TrimSpace(authType))
	if t == "" {
		return TypeNone
	}
	return t
}
