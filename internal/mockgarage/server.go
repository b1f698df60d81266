// Package mockgarage provides an in-process garage endpoint for development
// and tests. It speaks the same flat JSON protocol as a real opener and
// simulates a door that takes time to travel between open and closed.
package mockgarage

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/universal-console/garage/internal/logging"
	"github.com/universal-console/garage/internal/protocol"
)

// DoorState is the simulated position of the door
type DoorState string

// Door states reported in the status field
const (
	DoorClosed  DoorState = "Closed"
	DoorOpening DoorState = "Opening"
	DoorOpen    DoorState = "Open"
	DoorClosing DoorState = "Closing"
)

// DefaultTravelTime is how long the door takes to open or close
const DefaultTravelTime = 8 * time.Second

// DefaultMaxRecorded is how many requests Requests keeps by default
const DefaultMaxRecorded = 256

// Config describes a simulated opener
type Config struct {
	Target     string
	TravelTime time.Duration
	Initial    DoorState
	// Token, when set, must arrive as a bearer Authorization header
	Token string
	// Delay is added before every reply
	Delay time.Duration
	// MaxRecorded bounds the request history; the oldest entries are dropped
	MaxRecorded int
	Now         func() time.Time
}

// Request is a decoded request as seen by the server
type Request struct {
	Cookie    string
	SessionID string
	Body      map[string]any
}

// Server is an http.Handler simulating a single garage door
type Server struct {
	cfg    Config
	logger *logging.Logger

	mu       sync.Mutex
	state    DoorState
	movedAt  time.Time
	requests []Request
	failures []int
}

// New creates a simulated opener
func New(cfg Config, logger *logging.Logger) *Server {
	if cfg.Target == "" {
		cfg.Target = "Garage"
	}
	if cfg.TravelTime <= 0 {
		cfg.TravelTime = DefaultTravelTime
	}
	if cfg.Initial == "" {
		cfg.Initial = DoorClosed
	}
	if cfg.MaxRecorded <= 0 {
		cfg.MaxRecorded = DefaultMaxRecorded
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &Server{
		cfg:    cfg,
		logger: logger.WithComponent("mockgarage"),
		state:  cfg.Initial,
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.cfg.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.cfg.Token {
		s.logger.Warn("Rejected unauthenticated request", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if s.cfg.Delay > 0 {
		select {
		case <-time.After(s.cfg.Delay):
		case <-r.Context().Done():
			return
		}
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, protocol.MaxResponseBytes))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		s.logger.Warn("Failed to decode request", "error", err.Error())
		http.Error(w, fmt.Sprintf("JSON decode error: %v", err), http.StatusBadRequest)
		return
	}

	s.record(Request{
		Cookie:    r.Header.Get(protocol.HeaderCookie),
		SessionID: r.Header.Get(protocol.HeaderSessionID),
		Body:      body,
	})

	if code := s.nextFailure(); code != 0 {
		s.logger.Info("Injected failure", "status_code", code)
		http.Error(w, http.StatusText(code), code)
		return
	}

	target, _ := body[protocol.KeyTarget].(string)
	if !strings.EqualFold(target, s.cfg.Target) {
		http.Error(w, "unknown target", http.StatusNotFound)
		return
	}

	if override, ok := body[protocol.KeyOverride].(float64); ok && override == 1 {
		s.Toggle()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(map[string]string{protocol.KeyStatus: string(s.State())}); err != nil {
		s.logger.Error("Failed to write response", "error", err.Error())
		return
	}

	s.logger.Debug("Request served",
		"cookie", r.Header.Get(protocol.HeaderCookie),
		"state", string(s.State()),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// State reports the door position, completing any travel that has finished
func (s *Server) State() DoorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settle()
}

// Toggle starts the door moving. A moving door reverses.
func (s *Server) Toggle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Now()
	switch s.settle() {
	case DoorClosed:
		s.state = DoorOpening
		s.movedAt = now
	case DoorOpen:
		s.state = DoorClosing
		s.movedAt = now
	case DoorOpening:
		s.state = DoorClosing
		s.movedAt = reversedStart(now, s.movedAt, s.cfg.TravelTime)
	case DoorClosing:
		s.state = DoorOpening
		s.movedAt = reversedStart(now, s.movedAt, s.cfg.TravelTime)
	}
	s.logger.Info("Door toggled", "state", string(s.state))
}

// FailNext makes the next len(codes) requests fail with the given HTTP codes
func (s *Server) FailNext(codes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, codes...)
}

// Requests returns the most recent requests, oldest first
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// settle must be called with mu held
func (s *Server) settle() DoorState {
	if s.state != DoorOpening && s.state != DoorClosing {
		return s.state
	}
	if s.cfg.Now().Sub(s.movedAt) < s.cfg.TravelTime {
		return s.state
	}
	if s.state == DoorOpening {
		s.state = DoorOpen
	} else {
		s.state = DoorClosed
	}
	return s.state
}

// reversedStart backdates the new movement so that reversing halfway takes
// as long as the distance already travelled.
func reversedStart(now, movedAt time.Time, travel time.Duration) time.Time {
	elapsed := now.Sub(movedAt)
	if elapsed > travel {
		elapsed = travel
	}
	return now.Add(-(travel - elapsed))
}

func (s *Server) record(req Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) >= s.cfg.MaxRecorded {
		n := copy(s.requests, s.requests[len(s.requests)-s.cfg.MaxRecorded+1:])
		s.requests = s.requests[:n]
	}
	s.requests = append(s.requests, req)
}

func (s *Server) nextFailure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.failures) == 0 {
		return 0
	}
	code := s.failures[0]
	s.failures = s.failures[1:]
	return code
}
