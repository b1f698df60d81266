// Package headless runs a polling session without a terminal UI. Display
// updates are written as lines to an output stream and toggle requests are
// read as lines from an input stream.
package headless

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/universal-console/garage/internal/app"
	"github.com/universal-console/garage/internal/interfaces"
	"github.com/universal-console/garage/internal/logging"
	"github.com/universal-console/garage/internal/loop"
	"github.com/universal-console/garage/internal/protocol"
)

// Options configure a Runner
type Options struct {
	Profile     *interfaces.Profile
	AuthManager interfaces.AuthManager
	Observer    interfaces.SessionObserver
	Input       io.Reader
	Output      io.Writer
	// Timestamps prefixes every line with the local time
	Timestamps    bool
	Logger        *logging.Logger
	ClientOptions []protocol.Option
}

// LineDisplay writes each display change as one line. Repeated text is
// written once.
type LineDisplay struct {
	mu         sync.Mutex
	w          io.Writer
	timestamps bool
	now        func() time.Time
	last       string
	closed     bool
}

// NewLineDisplay creates a display writing to w
func NewLineDisplay(w io.Writer, timestamps bool) *LineDisplay {
	return &LineDisplay{w: w, timestamps: timestamps, now: time.Now}
}

// SetText implements interfaces.Display
func (d *LineDisplay) SetText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || text == d.last {
		return
	}
	d.last = text
	if d.timestamps {
		fmt.Fprintf(d.w, "%s %s\n", d.now().Format("15:04:05"), text)
		return
	}
	fmt.Fprintln(d.w, text)
}

// Close makes further SetText calls no-ops
func (d *LineDisplay) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
}

// Runner drives one session on a loop.Loop
type Runner struct {
	opts    Options
	loop    *loop.Loop
	display *LineDisplay
	runtime *app.Runtime
	logger  *logging.Logger

	reason chan string
}

// New wires a runner. Nothing is sent until Run.
func New(opts Options) (*Runner, error) {
	if opts.Output == nil {
		return nil, fmt.Errorf("output cannot be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	r := &Runner{
		opts:    opts,
		loop:    loop.New(loop.DefaultBuffer),
		display: NewLineDisplay(opts.Output, opts.Timestamps),
		logger:  logger.WithComponent("headless"),
		reason:  make(chan string, 1),
	}

	rt, err := app.New(app.Options{
		Profile:       opts.Profile,
		AuthManager:   opts.AuthManager,
		Poster:        r.loop,
		Display:       r.display,
		Observer:      opts.Observer,
		OnTerminate:   r.onTerminate,
		Logger:        logger,
		ClientOptions: opts.ClientOptions,
	})
	if err != nil {
		return nil, err
	}
	r.runtime = rt
	return r, nil
}

// Runtime exposes the wired components
func (r *Runner) Runtime() *app.Runtime {
	return r.runtime
}

// Run polls until the session terminates itself, a quit line is read or
// ctx is cancelled. It returns the termination reason.
func (r *Runner) Run(ctx context.Context) (string, error) {
	inputCtx, cancelInput := context.WithCancel(ctx)
	defer cancelInput()

	r.loop.Post(r.runtime.Session.Start)

	if r.opts.Input != nil {
		go r.readInput(inputCtx, r.opts.Input)
	}

	// The loop outlives ctx so that Stop can still run on it.
	loopErr := make(chan error, 1)
	go func() { loopErr <- r.loop.Run(context.Background()) }()

	var reason string
	select {
	case reason = <-r.reason:
	case <-ctx.Done():
		r.loop.Post(r.runtime.Session.Stop)
		reason = <-r.reason
	}

	r.loop.Close()
	if err := <-loopErr; err != nil {
		return reason, fmt.Errorf("event loop: %w", err)
	}
	r.display.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), app.DefaultShutdownTimeout)
	defer shutdownCancel()
	if err := r.runtime.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("In-flight requests abandoned", "error", err.Error())
	}

	r.logger.Info("Session ended", "reason", reason)
	return reason, nil
}

// onTerminate runs on the loop
func (r *Runner) onTerminate(reason string) {
	select {
	case r.reason <- reason:
	default:
	}
}

// readInput turns input lines into loop callbacks. "t" or "toggle" toggles
// the door, "s" or "status" forces a status fetch and "q" or "quit" stops.
func (r *Runner) readInput(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "t", "toggle":
			r.loop.Post(func() { r.runtime.Session.RequestToggle() })
		case "s", "status":
			r.loop.Post(func() { r.runtime.Session.FetchStatus() })
		case "q", "quit":
			r.loop.Post(r.runtime.Session.Stop)
			return
		case "":
		default:
			r.logger.Debug("Ignoring input line", "line", scanner.Text())
		}
	}
}
