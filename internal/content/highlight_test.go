package content

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/universal-console/garage/internal/interfaces"
)

func sampleProfile() *interfaces.Profile {
	return &interfaces.Profile{
		Name:            "home",
		URL:             "http://garage.local/api",
		Target:          "Garage",
		PollInterval:    4 * time.Second,
		KeepaliveBudget: time.Minute,
		Auth:            interfaces.AuthConfig{Type: "basic", Username: "door", Password: "hunter22"},
		Metadata:        map[string]string{"site": "north"},
	}
}

func TestRenderProfileRedactsSecrets(t *testing.T) {
	p := sampleProfile()
	out, err := RenderProfile(p, nil)
	require.NoError(t, err)

	assert.Contains(t, out, "pollInterval: 4s")
	assert.Contains(t, out, "keepaliveBudget: 1m0s")
	assert.Contains(t, out, "username: door")
	assert.Contains(t, out, Redacted)
	assert.NotContains(t, out, "hunter22")

	// the original is untouched
	assert.Equal(t, "hunter22", p.Auth.Password)
}

func TestRenderProfileHighlighted(t *testing.T) {
	sh := NewSyntaxHighlighter("monokai", "terminal256")
	out, err := RenderProfile(sampleProfile(), sh)
	require.NoError(t, err)

	assert.Contains(t, out, "\x1b[")
	assert.Contains(t, out, "Garage")
	assert.NotContains(t, out, "hunter22")
}

func TestHighlightFallsBack(t *testing.T) {
	sh := NewSyntaxHighlighter("no-such-style", "no-such-formatter")
	out, err := sh.Highlight("key: value\n", "not-a-language")
	require.NoError(t, err)
	assert.Contains(t, out, "key")
}

func TestRenderProfileNil(t *testing.T) {
	_, err := RenderProfile(nil, nil)
	assert.Error(t, err)
}
