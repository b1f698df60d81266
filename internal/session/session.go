// Package session implements the garage polling session: the request gate,
// cache busting, the poll loop with its keepalive budget, the request
// builders and the response router.
//
// A Session is driven entirely from one cooperative event loop. Timer ticks,
// toggle requests and transport completions must all be delivered on that
// loop, one at a time; the Session performs no locking of its own.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/universal-console/garage/internal/errors"
	"github.com/universal-console/garage/internal/interfaces"
	"github.com/universal-console/garage/internal/logging"
)

// Display text shown before the first status arrives and while a command is pending
const (
	InitialText = "Updating..."
	PendingText = "..."
)

// Skip reasons reported to the observer
const (
	SkipGateBusy   = "gate_busy"
	SkipRejected   = "transport_rejected"
	SkipTerminated = "terminated"
	SkipNotStarted = "not_started"
)

// State is the poll loop state
type State int

const (
	StateIdle State = iota
	StateRunning
	StateTerminated
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Config holds the immutable session settings
type Config struct {
	Target       string
	PollInterval time.Duration
	// KeepaliveTicks is the number of idle poll ticks before the session
	// terminates itself. Zero keeps polling until Stop.
	KeepaliveTicks int
	// Now is the wall clock used to seed cache busting. Defaults to time.Now.
	Now func() time.Time
}

// Dependencies are the collaborators a Session drives
type Dependencies struct {
	Transport interfaces.Transport
	Display   interfaces.Display
	Scheduler interfaces.Scheduler
	Observer  interfaces.SessionObserver
	Logger    *logging.Logger
	// OnTerminate runs once when the session reaches StateTerminated
	OnTerminate func(reason string)
}

// Session is one running instance of the garage poller
type Session struct {
	config    Config
	transport interfaces.Transport
	display   interfaces.Display
	scheduler interfaces.Scheduler
	observer  interfaces.SessionObserver
	logger    *logging.Logger

	gate     RequestGate
	builder  *RequestBuilder
	router   *ResponseRouter
	terminal func(reason string)

	state       State
	timer       interfaces.TimerHandle
	timerActive bool
	remaining   int
	ticks       int
}

// New creates a session. It does not start polling; call Start.
func New(config Config, deps Dependencies) (*Session, error) {
	if strings.TrimSpace(config.Target) == "" {
		return nil, fmt.Errorf("target cannot be empty")
	}
	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", config.PollInterval)
	}
	if config.KeepaliveTicks < 0 {
		return nil, fmt.Errorf("keepalive ticks cannot be negative, got %d", config.KeepaliveTicks)
	}
	if deps.Transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if deps.Display == nil {
		return nil, fmt.Errorf("display cannot be nil")
	}
	if deps.Scheduler == nil {
		return nil, fmt.Errorf("scheduler cannot be nil")
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.GetSessionLogger()
	}

	s := &Session{
		config:    config,
		transport: deps.Transport,
		display:   deps.Display,
		scheduler: deps.Scheduler,
		observer:  deps.Observer,
		logger:    deps.Logger,
		builder:   NewRequestBuilder(config.Target, NewCacheBustGenerator(config.Now)),
		terminal:  deps.OnTerminate,
		state:     StateIdle,
	}
	s.router = NewResponseRouter(&s.gate, s.display, config.Target, s.observer, s.logger)

	return s, nil
}

// Start enters the running state: shows the initial text, schedules the first
// tick and fetches the status immediately. Calling Start again is a no-op.
func (s *Session) Start() {
	if s.state != StateIdle {
		return
	}

	s.state = StateRunning
	s.logger.LogUIStateChange(StateIdle.String(), StateRunning.String(), "start")
	s.display.SetText(InitialText)

	s.schedule()
	if s.Bounded() {
		s.remaining = s.config.KeepaliveTicks
		s.observer.KeepaliveRemaining(s.remaining)
	}

	s.FetchStatus()
}

// Stop tears the session down, cancelling the pending tick. In-flight
// requests are not cancelled; their completions are still safe to deliver.
func (s *Session) Stop() {
	s.terminate("teardown")
}

// FetchStatus issues a status query unless one is already outstanding.
// It reports whether a request was handed to the transport.
func (s *Session) FetchStatus() bool {
	tag := interfaces.TagStatusQuery
	if !s.canSend(tag) {
		return false
	}

	payload := s.builder.BuildStatusRequest()
	if !s.send(tag, payload) {
		return false
	}

	s.gate.TryAcquire(tag)
	s.logger.LogRequestSent(tag.String(), payload.Target, payload.CacheBust)
	return true
}

// SendCommand issues a door command unless one is already outstanding. On
// success the display shows the pending placeholder until the next status.
func (s *Session) SendCommand(override int32) bool {
	tag := interfaces.TagCommandSubmit
	if !s.canSend(tag) {
		return false
	}

	payload := s.builder.BuildCommandRequest(override)
	if !s.send(tag, payload) {
		return false
	}

	s.display.SetText(FormatStatus(s.config.Target, PendingText))
	s.gate.TryAcquire(tag)
	s.logger.LogRequestSent(tag.String(), payload.Target, payload.CacheBust)
	return true
}

// RequestToggle handles the user's toggle gesture. User activity refills the
// keepalive budget even when the command itself is skipped.
func (s *Session) RequestToggle() bool {
	s.ResetKeepalive()
	return s.SendCommand(interfaces.OverrideToggle)
}

// ResetKeepalive restores the keepalive budget to its configured maximum
func (s *Session) ResetKeepalive() {
	if !s.Bounded() || s.state != StateRunning {
		return
	}
	s.remaining = s.config.KeepaliveTicks
	s.observer.KeepaliveRemaining(s.remaining)
	s.logger.LogKeepalive(s.remaining, s.config.KeepaliveTicks)
}

// Dispatch delivers a transport completion
func (s *Session) Dispatch(result interfaces.Result) {
	s.router.Dispatch(result)
}

// State returns the current poll loop state
func (s *Session) State() State {
	return s.state
}

// Bounded reports whether a keepalive budget is configured
func (s *Session) Bounded() bool {
	return s.config.KeepaliveTicks > 0
}

// RemainingTicks returns the idle ticks left before termination, or -1 when unbounded
func (s *Session) RemainingTicks() int {
	if !s.Bounded() {
		return -1
	}
	return s.remaining
}

// KeepaliveTicks returns the configured keepalive budget in ticks
func (s *Session) KeepaliveTicks() int {
	return s.config.KeepaliveTicks
}

// Ticks returns the number of poll ticks handled so far
func (s *Session) Ticks() int {
	return s.ticks
}

// InFlight reports whether a request of kind is outstanding
func (s *Session) InFlight(kind interfaces.RequestTag) bool {
	return s.gate.InFlight(kind)
}

// Target returns the configured target name
func (s *Session) Target() string {
	return s.config.Target
}

func (s *Session) tick() {
	s.timerActive = false
	if s.state != StateRunning {
		return
	}

	s.ticks++
	s.FetchStatus()
	s.schedule()

	if !s.Bounded() {
		return
	}

	s.remaining--
	s.observer.KeepaliveRemaining(s.remaining)
	s.logger.LogKeepalive(s.remaining, s.config.KeepaliveTicks)
	if s.remaining <= 0 {
		s.terminate("keepalive expired")
	}
}

func (s *Session) schedule() {
	s.timer = s.scheduler.ScheduleOnce(s.config.PollInterval, s.tick)
	s.timerActive = true
}

func (s *Session) terminate(reason string) {
	if s.state == StateTerminated {
		return
	}

	if s.timerActive {
		s.scheduler.Cancel(s.timer)
		s.timerActive = false
	}

	from := s.state
	s.state = StateTerminated
	s.logger.LogUIStateChange(from.String(), StateTerminated.String(), reason)

	if s.terminal != nil {
		s.terminal(reason)
	}
}

func (s *Session) canSend(tag interfaces.RequestTag) bool {
	switch s.state {
	case StateIdle:
		s.skip(tag, SkipNotStarted)
		return false
	case StateTerminated:
		s.skip(tag, SkipTerminated)
		return false
	}
	if s.gate.InFlight(tag) {
		s.skip(tag, SkipGateBusy)
		errors.NewSessionError(errors.ErrorTypeGateBusy).
			WithLogger(s.logger).
			WithMessage("request already in flight").
			WithOperation(tag.String()).
			Build()
		return false
	}
	return true
}

func (s *Session) send(tag interfaces.RequestTag, payload any) bool {
	if s.transport.Send(tag, payload) {
		s.observer.RequestSent(tag)
		return true
	}

	s.skip(tag, SkipRejected)
	errors.NewSessionError(errors.ErrorTypeTransportRejected).
		WithLogger(s.logger).
		WithMessage("transport rejected request").
		WithOperation(tag.String()).
		Build()
	return false
}

func (s *Session) skip(tag interfaces.RequestTag, reason string) {
	s.observer.RequestSkipped(tag, reason)
	s.logger.LogRequestSkipped(tag.String(), reason)
}
