// Package app assembles a running garage session from a profile: the HTTP
// client, the asynchronous transport, the timer scheduler and the session
// itself. The terminal UI and the headless runner share this wiring and only
// differ in the event loop and display they supply.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/universal-console/garage/internal/interfaces"
	"github.com/universal-console/garage/internal/logging"
	"github.com/universal-console/garage/internal/loop"
	"github.com/universal-console/garage/internal/protocol"
	"github.com/universal-console/garage/internal/session"
)

// Options are the collaborators a Runtime is built around
type Options struct {
	Profile     *interfaces.Profile
	AuthManager interfaces.AuthManager
	Poster      interfaces.Poster
	Display     interfaces.Display
	Observer    interfaces.SessionObserver
	OnTerminate func(reason string)
	Logger      *logging.Logger

	// ClientOptions are passed through to protocol.NewClient
	ClientOptions []protocol.Option
}

// Runtime owns every component of one polling session
type Runtime struct {
	Client    *protocol.Client
	Transport *protocol.AsyncTransport
	Scheduler *loop.TimerScheduler
	Session   *session.Session

	logger *logging.Logger
}

// New wires a session for opts.Profile. Nothing is sent until
// Session.Start runs on the event loop.
func New(opts Options) (*Runtime, error) {
	if opts.Profile == nil {
		return nil, fmt.Errorf("profile cannot be nil")
	}
	if opts.Poster == nil {
		return nil, fmt.Errorf("poster cannot be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	clientOpts := append([]protocol.Option{protocol.WithLogger(logger.WithComponent("protocol"))}, opts.ClientOptions...)
	client, err := protocol.NewClient(opts.Profile, opts.AuthManager, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create protocol client: %w", err)
	}

	transport := protocol.NewAsyncTransport(client, opts.Poster, logger.WithComponent("transport"))
	scheduler := loop.NewTimerScheduler(opts.Poster)

	sess, err := session.New(session.Config{
		Target:         opts.Profile.Target,
		PollInterval:   opts.Profile.PollInterval,
		KeepaliveTicks: opts.Profile.KeepaliveTicks(),
	}, session.Dependencies{
		Transport:   transport,
		Display:     opts.Display,
		Scheduler:   scheduler,
		Observer:    opts.Observer,
		Logger:      logger.WithComponent("session"),
		OnTerminate: opts.OnTerminate,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	transport.OnResult(sess.Dispatch)

	logger.Info("Session ready",
		"profile", opts.Profile.Name,
		"endpoint", client.Endpoint(),
		"target", opts.Profile.Target,
		"poll_interval", opts.Profile.PollInterval.String(),
		"keepalive_ticks", opts.Profile.KeepaliveTicks(),
	)

	return &Runtime{
		Client:    client,
		Transport: transport,
		Scheduler: scheduler,
		Session:   sess,
		logger:    logger,
	}, nil
}

// Shutdown releases timers and connections once the event loop has stopped.
// In-flight exchanges get until ctx expires to finish.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.Scheduler.Stop()
	r.Transport.Close()
	err := r.Transport.Wait(ctx)
	r.Client.Close()

	stats := r.Client.Statistics()
	r.logger.Info("Session closed",
		"requests", stats.TotalRequests,
		"failed", stats.FailedRequests,
		"avg_response_ms", stats.AverageResponseTime.Milliseconds(),
	)
	return err
}

// DefaultShutdownTimeout bounds how long Shutdown waits for in-flight requests
const DefaultShutdownTimeout = 3 * time.Second
