package session

import "github.com/universal-console/garage/internal/interfaces"

// RequestBuilder produces the two request shapes. Building a request never
// sends it and never touches the RequestGate.
type RequestBuilder struct {
	target string
	bust   *CacheBustGenerator
}

// NewRequestBuilder creates a builder for target drawing values from bust
func NewRequestBuilder(target string, bust *CacheBustGenerator) *RequestBuilder {
	return &RequestBuilder{target: target, bust: bust}
}

// BuildStatusRequest returns a status query with a fresh cache-bust value
func (b *RequestBuilder) BuildStatusRequest() interfaces.StatusPayload {
	return interfaces.StatusPayload{
		Target:    b.target,
		CacheBust: b.bust.Next(),
	}
}

// BuildCommandRequest returns a door command carrying override
func (b *RequestBuilder) BuildCommandRequest(override int32) interfaces.CommandPayload {
	return interfaces.CommandPayload{
		Target:    b.target,
		CacheBust: b.bust.Next(),
		Override:  override,
	}
}

// Target returns the configured target name
func (b *RequestBuilder) Target() string {
	return b.target
}
