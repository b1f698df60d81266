package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/universal-console/garage/internal/interfaces"
)

func TestRequestGate(t *testing.T) {
	var g RequestGate

	assert.True(t, g.TryAcquire(interfaces.TagStatusQuery))
	assert.False(t, g.TryAcquire(interfaces.TagStatusQuery))
	assert.True(t, g.InFlight(interfaces.TagStatusQuery))

	// kinds are independent
	assert.True(t, g.TryAcquire(interfaces.TagCommandSubmit))

	g.Release(interfaces.TagStatusQuery)
	g.Release(interfaces.TagStatusQuery)
	assert.False(t, g.InFlight(interfaces.TagStatusQuery))
	assert.True(t, g.InFlight(interfaces.TagCommandSubmit))

	assert.False(t, g.TryAcquire(interfaces.RequestTag(7)))
	assert.False(t, g.InFlight(interfaces.RequestTag(7)))
	g.Release(interfaces.RequestTag(7))
}

func TestCacheBustGenerator(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	gen := NewCacheBustGenerator(func() time.Time {
		calls++
		return start
	})

	seen := map[int32]bool{}
	prev := int32(-1)
	for i := 0; i < 1000; i++ {
		v := gen.Next()
		assert.False(t, seen[v], "value %d repeated", v)
		seen[v] = true
		assert.Greater(t, v, prev)
		prev = v
	}

	assert.Equal(t, 1, calls, "clock is read only to seed")
	assert.Equal(t, int32(start.Unix())+999, prev)
}

func TestCacheBustFirstValueNotBeforeProcessStart(t *testing.T) {
	processStart := time.Now().Unix()
	gen := NewCacheBustGenerator(nil)
	assert.GreaterOrEqual(t, int64(gen.Next()), processStart)
}

func TestRequestBuilder(t *testing.T) {
	start := time.Unix(1000, 0)
	b := NewRequestBuilder("Garage", NewCacheBustGenerator(func() time.Time { return start }))

	status := b.BuildStatusRequest()
	assert.Equal(t, interfaces.StatusPayload{Target: "Garage", CacheBust: 1000}, status)

	cmd := b.BuildCommandRequest(interfaces.OverrideToggle)
	assert.Equal(t, interfaces.CommandPayload{Target: "Garage", CacheBust: 1001, Override: 1}, cmd)
	assert.Equal(t, "Garage", b.Target())
}

func TestFormatStatus(t *testing.T) {
	assert.Equal(t, "Garage: Open", FormatStatus("Garage", "Open"))
}
