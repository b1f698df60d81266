// Package protocol implements HTTP communication with the garage endpoint.
// This file provides the synchronous Client: request construction, auth and
// session headers, response decoding, error wrapping and request statistics.
package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/universal-console/garage/internal/interfaces"
	"github.com/universal-console/garage/internal/logging"
)

// Client performs single request/response exchanges with the garage endpoint
type Client struct {
	httpClient *http.Client
	endpoint   *url.URL
	authHeader string
	userAgent  string
	sessionID  string
	logger     *logging.Logger

	mutex     sync.RWMutex
	stats     ConnectionStatistics
	lastError error
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for request tracing
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for the profile's endpoint
func NewClient(profile *interfaces.Profile, authManager interfaces.AuthManager, opts ...Option) (*Client, error) {
	if profile == nil {
		return nil, fmt.Errorf("profile cannot be nil")
	}

	endpoint, err := ParseEndpoint(profile.URL)
	if err != nil {
		return nil, err
	}

	authHeader := ""
	if authManager != nil {
		authHeader, err = authManager.CreateAuthHeader(&profile.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to create auth header: %w", err)
		}
	}

	timeout := profile.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	client := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   DefaultConnectTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        4,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
		endpoint:   endpoint,
		authHeader: authHeader,
		userAgent:  fmt.Sprintf("Garage-Console/%s", ClientVersion),
		sessionID:  uuid.NewString(),
		logger:     logging.GetProtocolLogger(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// ParseEndpoint validates and parses an absolute http(s) URL
func ParseEndpoint(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &ValidationError{Field: "url", Message: "endpoint URL cannot be empty"}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ValidationError{Field: "url", Message: fmt.Sprintf("invalid endpoint URL: %v", err), Value: raw}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &ValidationError{Field: "url", Message: "endpoint URL must use http or https", Value: raw}
	}
	if u.Host == "" {
		return nil, &ValidationError{Field: "url", Message: "endpoint URL must include a host", Value: raw}
	}
	return u, nil
}

// Do sends payload tagged with tag and waits for the reply
func (c *Client) Do(ctx context.Context, tag interfaces.RequestTag, payload any) (*Response, error) {
	req, err := c.NewRequest(ctx, tag, payload)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	responseTime := time.Since(startTime)

	if err != nil {
		c.updateRequestStatistics(responseTime, false)
		return nil, c.wrapNetworkError("request execution failed", err)
	}
	defer resp.Body.Close()

	c.logger.LogHTTPRequest(req.Method, c.endpoint.Redacted(), resp.StatusCode, responseTime)

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		c.updateRequestStatistics(responseTime, false)
		return nil, c.wrapNetworkError("failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.updateRequestStatistics(responseTime, false)
		return nil, c.handleHTTPError(resp, body)
	}

	decoded, err := decodeBody(body)
	if err != nil {
		c.updateRequestStatistics(responseTime, false)
		return nil, c.wrapProtocolError(resp, "invalid response body", err)
	}

	c.updateRequestStatistics(responseTime, true)
	return &Response{
		Tag:     tag,
		Payload: decoded,
		Metadata: ResponseMetadata{
			StatusCode:    resp.StatusCode,
			ResponseTime:  responseTime,
			ContentLength: resp.ContentLength,
		},
	}, nil
}

// NewRequest builds the HTTP request for payload without sending it. Errors
// here mean the request can never be sent.
func (c *Client) NewRequest(ctx context.Context, tag interfaces.RequestTag, payload any) (*http.Request, error) {
	if err := ValidateTag(tag); err != nil {
		return nil, err
	}

	body, err := EncodePayload(payload)
	if err != nil {
		return nil, err
	}
	target, _ := body[KeyTarget].(string)
	if err := ValidateTarget(target); err != nil {
		return nil, err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setStandardHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderCookie, cookieHeader(tag))
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}

	return req, nil
}

// Statistics returns a copy of the request statistics
func (c *Client) Statistics() ConnectionStatistics {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.stats
}

// LastError returns the most recent communication error
func (c *Client) LastError() error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.lastError
}

// SessionID returns the identifier sent with every request
func (c *Client) SessionID() string {
	return c.sessionID
}

// Endpoint returns the endpoint URL with any password redacted
func (c *Client) Endpoint() string {
	return c.endpoint.Redacted()
}

// Close releases idle connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) setStandardHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set(HeaderVersion, ClientVersion)
	req.Header.Set(HeaderSessionID, c.sessionID)
}

// decodeBody accepts an empty body as an empty object; anything else must be
// a JSON object.
func decodeBody(body []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, err
	}
	if decoded == nil {
		return map[string]any{}, nil
	}
	return decoded, nil
}

func (c *Client) wrapNetworkError(message string, err error) error {
	errorType := "network_failure"
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		errorType = "timeout"
	}

	protocolErr := &ProtocolError{
		Type:          "network",
		Message:       fmt.Sprintf("%s: %v", message, err),
		OriginalError: err,
		Timestamp:     time.Now(),
		Recoverable:   true,
		NetworkDetails: &NetworkErrorDetails{
			ErrorType:   errorType,
			LastAttempt: time.Now(),
		},
	}

	c.setLastError(protocolErr)
	return protocolErr
}

func (c *Client) wrapProtocolError(resp *http.Response, message string, err error) error {
	protocolErr := &ProtocolError{
		Type:          "protocol",
		Message:       fmt.Sprintf("%s: %v", message, err),
		OriginalError: err,
		Timestamp:     time.Now(),
		Recoverable:   false,
		HTTPDetails: &HTTPErrorDetails{
			StatusCode:  resp.StatusCode,
			StatusText:  resp.Status,
			ContentType: resp.Header.Get("Content-Type"),
		},
	}

	c.setLastError(protocolErr)
	return protocolErr
}

func (c *Client) handleHTTPError(resp *http.Response, body []byte) error {
	protocolErr := &ProtocolError{
		Type:        "http",
		Message:     fmt.Sprintf("HTTP error %d: %s", resp.StatusCode, resp.Status),
		Timestamp:   time.Now(),
		Recoverable: resp.StatusCode >= 500,
		HTTPDetails: &HTTPErrorDetails{
			StatusCode:  resp.StatusCode,
			StatusText:  resp.Status,
			Body:        string(body),
			ContentType: resp.Header.Get("Content-Type"),
		},
	}

	c.setLastError(protocolErr)
	return protocolErr
}

func (c *Client) setLastError(err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.lastError = err
}

func (c *Client) updateRequestStatistics(responseTime time.Duration, success bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	stats := &c.stats
	stats.TotalRequests++
	stats.LastRequestTime = time.Now()

	if success {
		stats.SuccessfulRequests++
		stats.LastSuccessTime = stats.LastRequestTime
	} else {
		stats.FailedRequests++
	}

	if stats.TotalRequests == 1 {
		stats.AverageResponseTime = responseTime
	} else {
		total := stats.AverageResponseTime * time.Duration(stats.TotalRequests-1)
		stats.AverageResponseTime = (total + responseTime) / time.Duration(stats.TotalRequests)
	}
}
