// Package protocol implements the garage endpoint's HTTP/JSON wire protocol.
// This file defines the wire keys, the request encoder, request validation
// and the error types returned by the client.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/universal-console/garage/internal/interfaces"
)

// Wire keys. The endpoint speaks a flat JSON object whose keys are small
// integers rendered as strings.
const (
	KeyCacheBust = "0"
	KeyOverride  = "1"
	KeyTarget    = "2"
	KeyStatus    = "3"
)

// HTTP headers sent with every request
const (
	HeaderCookie    = "X-Garage-Cookie"
	HeaderSessionID = "X-Session-ID"
	HeaderVersion   = "X-Console-Version"
)

// ClientVersion is reported in the User-Agent and version headers
const ClientVersion = "1.0.0"

// HTTP timeout configurations
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	// MaxResponseBytes caps how much of a response body is read
	MaxResponseBytes = 64 << 10
)

// EncodePayload converts a status or command payload into its wire object
func EncodePayload(payload any) (map[string]any, error) {
	switch p := payload.(type) {
	case interfaces.StatusPayload:
		return map[string]any{
			KeyTarget:    p.Target,
			KeyCacheBust: p.CacheBust,
		}, nil
	case *interfaces.StatusPayload:
		return EncodePayload(*p)
	case interfaces.CommandPayload:
		return map[string]any{
			KeyTarget:    p.Target,
			KeyCacheBust: p.CacheBust,
			KeyOverride:  p.Override,
		}, nil
	case *interfaces.CommandPayload:
		return EncodePayload(*p)
	default:
		return nil, &ValidationError{Field: "payload", Message: fmt.Sprintf("unsupported payload type %T", payload)}
	}
}

// ResponseMetadata contains common metadata for all responses
type ResponseMetadata struct {
	StatusCode    int           `json:"statusCode"`
	ResponseTime  time.Duration `json:"responseTime,omitempty"`
	ContentLength int64         `json:"contentLength,omitempty"`
}

// Response is a decoded endpoint reply
type Response struct {
	Tag      interfaces.RequestTag
	Payload  map[string]any
	Metadata ResponseMetadata
}

// Status returns the door status field when present and a string
func (r *Response) Status() (string, bool) {
	s, ok := r.Payload[KeyStatus].(string)
	return s, ok
}

// ConnectionStatistics tracks communication metrics for display and debugging
type ConnectionStatistics struct {
	TotalRequests       int           `json:"totalRequests"`
	SuccessfulRequests  int           `json:"successfulRequests"`
	FailedRequests      int           `json:"failedRequests"`
	AverageResponseTime time.Duration `json:"averageResponseTime"`
	LastRequestTime     time.Time     `json:"lastRequestTime"`
	LastSuccessTime     time.Time     `json:"lastSuccessTime"`
}

// HTTPErrorDetails provides detailed information about HTTP-level errors
type HTTPErrorDetails struct {
	StatusCode  int    `json:"statusCode"`
	StatusText  string `json:"statusText"`
	Body        string `json:"body,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// NetworkErrorDetails provides information about network-level errors
type NetworkErrorDetails struct {
	ErrorType   string    `json:"errorType"` // "timeout", "network_failure"
	LastAttempt time.Time `json:"lastAttempt"`
}

// ProtocolError represents errors that occur during protocol communication
type ProtocolError struct {
	Type           string               `json:"type"` // "network", "http", "protocol"
	Message        string               `json:"message"`
	HTTPDetails    *HTTPErrorDetails    `json:"httpDetails,omitempty"`
	NetworkDetails *NetworkErrorDetails `json:"networkDetails,omitempty"`
	OriginalError  error                `json:"-"`
	Timestamp      time.Time            `json:"timestamp"`
	Recoverable    bool                 `json:"recoverable"`
}

// Error implements the error interface for ProtocolError
func (pe *ProtocolError) Error() string {
	return pe.Message
}

// Unwrap provides access to the original underlying error
func (pe *ProtocolError) Unwrap() error {
	return pe.OriginalError
}

// StatusCode returns the HTTP status of the failed exchange, or 0 when no
// response was received.
func (pe *ProtocolError) StatusCode() int {
	if pe.HTTPDetails != nil {
		return pe.HTTPDetails.StatusCode
	}
	return 0
}

// ValidationError represents errors in request validation before sending
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface for ValidationError
func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", ve.Field, ve.Message)
}

// ValidateTag ensures tag is one the endpoint understands
func ValidateTag(tag interfaces.RequestTag) error {
	switch tag {
	case interfaces.TagStatusQuery, interfaces.TagCommandSubmit:
		return nil
	default:
		return &ValidationError{Field: "tag", Message: "unknown request tag", Value: int32(tag)}
	}
}

// ValidateTarget ensures the target name can be sent
func ValidateTarget(target string) error {
	if strings.TrimSpace(target) == "" {
		return &ValidationError{Field: "target", Message: "target cannot be empty"}
	}
	if len(target) > 100 {
		return &ValidationError{Field: "target", Message: "target exceeds maximum length of 100 characters"}
	}
	return nil
}

func cookieHeader(tag interfaces.RequestTag) string {
	return strconv.FormatInt(int64(tag), 10)
}
