package protocol

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/universal-console/garage/internal/interfaces"
	"github.com/universal-console/garage/internal/logging"
)

// Requester performs one blocking exchange. *Client implements it.
type Requester interface {
	Do(ctx context.Context, tag interfaces.RequestTag, payload any) (*Response, error)
}

// AsyncTransport turns a blocking Requester into the fire-and-forget
// Transport the session expects. Each accepted send runs on its own
// goroutine; its completion is posted back onto the event loop.
type AsyncTransport struct {
	requester Requester
	poster    interfaces.Poster
	logger    *logging.Logger

	mu      sync.Mutex
	deliver func(interfaces.Result)

	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewAsyncTransport creates a transport running exchanges on requester and
// posting completions to poster
func NewAsyncTransport(requester Requester, poster interfaces.Poster, logger *logging.Logger) *AsyncTransport {
	if logger == nil {
		logger = logging.GetProtocolLogger()
	}
	return &AsyncTransport{
		requester: requester,
		poster:    poster,
		logger:    logger,
	}
}

// OnResult sets the function completions are delivered to. Sends are
// rejected until it is set.
func (t *AsyncTransport) OnResult(fn func(interfaces.Result)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deliver = fn
}

// Send implements interfaces.Transport. Malformed requests are rejected
// synchronously and never produce a completion.
func (t *AsyncTransport) Send(tag interfaces.RequestTag, payload any) bool {
	if t.closed.Load() {
		return false
	}

	t.mu.Lock()
	deliver := t.deliver
	t.mu.Unlock()
	if deliver == nil {
		t.logger.Warn("Send rejected: no result handler registered", "tag", tag.String())
		return false
	}

	if err := ValidateTag(tag); err != nil {
		t.logger.Warn("Send rejected", "tag", tag.String(), "error", err.Error())
		return false
	}
	if _, err := EncodePayload(payload); err != nil {
		t.logger.Warn("Send rejected", "tag", tag.String(), "error", err.Error())
		return false
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		result := t.exchange(tag, payload)
		t.poster.Post(func() { deliver(result) })
	}()

	return true
}

// Close stops accepting new sends. In-flight exchanges are left to finish.
func (t *AsyncTransport) Close() {
	t.closed.Store(true)
}

// Wait blocks until all in-flight exchanges have posted their completion
func (t *AsyncTransport) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight requests: %w", ctx.Err())
	}
}

func (t *AsyncTransport) exchange(tag interfaces.RequestTag, payload any) interfaces.Result {
	resp, err := t.requester.Do(context.Background(), tag, payload)
	if err != nil {
		code := 0
		var pe *ProtocolError
		if stderrors.As(err, &pe) {
			code = pe.StatusCode()
		}
		t.logger.Debug("Exchange failed", "tag", tag.String(), "status_code", code, "error", err.Error())
		return interfaces.Failure{Tag: tag, Code: code}
	}

	return interfaces.Success{Tag: tag, Payload: resp.Payload}
}
