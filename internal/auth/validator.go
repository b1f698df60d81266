package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	jwtPattern     = regexp.MustCompile(`^[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]*$`)
	genericPattern = regexp.MustCompile(`^[A-Za-z0-9\-_.~+/]+=*$`)
)

// TokenValidator checks credentials before they are sent
type TokenValidator struct {
	now            func() time.Time
	minTokenLength int
	maxTokenLength int
}

// NewTokenValidator creates a validator. A nil clock uses time.Now.
func NewTokenValidator(now func() time.Time) *TokenValidator {
	if now == nil {
		now = time.Now
	}
	return &TokenValidator{
		now:            now,
		minTokenLength: 8,
		maxTokenLength: 4096,
	}
}

// ValidateToken validates token for the given auth type
func (v *TokenValidator) ValidateToken(token string, tokenType string) error {
	switch NormalizeType(tokenType) {
	case TypeNone:
		if token != "" {
			return fmt.Errorf("token must be empty when type is 'none'")
		}
		return nil
	case TypeBearer:
		if strings.TrimSpace(token) == "" {
			return fmt.Errorf("token cannot be empty for type 'bearer'")
		}
		return v.validateBearerToken(strings.TrimSpace(token))
	case TypeBasic:
		return fmt.Errorf("basic authentication uses a username and password, not a token")
	default:
		return fmt.Errorf("unsupported token type: %s", tokenType)
	}
}

// ValidateBasic validates basic authentication credentials
func (v *TokenValidator) ValidateBasic(username, password string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("username cannot be empty for type 'basic'")
	}
	if strings.Contains(username, ":") {
		return fmt.Errorf("username cannot contain ':'")
	}
	if password == "" {
		return fmt.Errorf("password cannot be empty for type 'basic'")
	}
	return nil
}

// Kind reports whether token looks like a JWT
func (v *TokenValidator) Kind(token string) string {
	if jwtPattern.MatchString(strings.TrimSpace(token)) {
		return "jwt"
	}
	return "opaque"
}

func (v *TokenValidator) validateBearerToken(token string) error {
	if len(token) < v.minTokenLength {
		return fmt.Errorf("token is too short (minimum %d characters)", v.minTokenLength)
	}
	if len(token) > v.maxTokenLength {
		return fmt.Errorf("token is too long (maximum %d characters)", v.maxTokenLength)
	}
	if strings.ContainsAny(token, " \t\n\r") {
		return fmt.Errorf("token cannot contain whitespace characters")
	}

	lower := strings.ToLower(token)
	for _, pattern := range []string{"placeholder", "your-token", "changeme"} {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("token appears to be a placeholder value")
		}
	}

	if jwtPattern.MatchString(token) {
		return v.validateJWT(token)
	}
	if !genericPattern.MatchString(token) {
		return fmt.Errorf("token contains invalid characters")
	}
	return nil
}

// validateJWT checks structure and the exp/nbf claims. Signatures are the
// endpoint's business.
func (v *TokenValidator) validateJWT(token string) error {
	parts := strings.Split(token, ".")
	for i, part := range parts[:2] {
		if _, err := decodeSegment(part); err != nil {
			return fmt.Errorf("JWT part %d is invalid: %w", i+1, err)
		}
	}

	raw, _ := decodeSegment(parts[1])
	var claims map[string]interface{}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return fmt.Errorf("invalid JWT claims JSON: %w", err)
	}

	now := v.now()
	if exp, ok := claims["exp"].(float64); ok && now.After(time.Unix(int64(exp), 0)) {
		return fmt.Errorf("JWT token has expired")
	}
	if nbf, ok := claims["nbf"].(float64); ok && now.Before(time.Unix(int64(nbf), 0)) {
		return fmt.Errorf("JWT token is not yet valid")
	}
	return nil
}

func decodeSegment(part string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(part, "="))
	if err != nil {
		return nil, fmt.Errorf("invalid base64URL encoding: %w", err)
	}
	return b, nil
}
