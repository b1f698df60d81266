package session

import (
	"github.com/universal-console/garage/internal/errors"
	"github.com/universal-console/garage/internal/interfaces"
	"github.com/universal-console/garage/internal/logging"
)

// StatusField is the response key holding the human readable door status
const StatusField = "3"

// Outcomes reported to the observer
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeMalformed = "malformed"
)

// ResponseRouter delivers completions back to the operation that issued them
// and clears the matching gate slot.
type ResponseRouter struct {
	gate     *RequestGate
	display  interfaces.Display
	target   string
	observer interfaces.SessionObserver
	logger   *logging.Logger
}

// NewResponseRouter creates a router clearing slots on gate and writing to display
func NewResponseRouter(gate *RequestGate, display interfaces.Display, target string, observer interfaces.SessionObserver, logger *logging.Logger) *ResponseRouter {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = logging.GetSessionLogger()
	}
	return &ResponseRouter{
		gate:     gate,
		display:  display,
		target:   target,
		observer: observer,
		logger:   logger,
	}
}

// Dispatch routes a Success or Failure to its handler
func (r *ResponseRouter) Dispatch(result interfaces.Result) {
	switch res := result.(type) {
	case interfaces.Success:
		r.OnSuccess(res.Tag, res.Payload)
	case *interfaces.Success:
		r.OnSuccess(res.Tag, res.Payload)
	case interfaces.Failure:
		r.OnFailure(res.Tag, res.Code)
	case *interfaces.Failure:
		r.OnFailure(res.Tag, res.Code)
	default:
		r.logger.Debug("Ignoring unknown result type")
	}
}

// OnFailure clears the gate slot for tag. The display is left alone and no
// retry is scheduled; the next poll tick retries status on its own.
func (r *ResponseRouter) OnFailure(tag interfaces.RequestTag, code int) {
	if !isKnownTag(tag) {
		r.logger.Debug("Ignoring failure for unknown tag", "tag", tag.String())
		return
	}

	r.gate.Release(tag)
	r.observer.ResponseReceived(tag, OutcomeFailure)
	r.logger.LogResponse(tag.String(), OutcomeFailure, code)

	errors.NewSessionError(errors.ErrorTypeTransportFailure).
		WithLogger(r.logger).
		WithMessage("request completed with failure").
		WithOperation(tag.String()).
		WithContext("status_code", code).
		Build()
}

// OnSuccess clears the gate slot for tag. A status response carrying a
// string status replaces the display text; anything else leaves it as is.
func (r *ResponseRouter) OnSuccess(tag interfaces.RequestTag, payload map[string]any) {
	switch tag {
	case interfaces.TagStatusQuery:
		r.gate.Release(tag)

		status, ok := payload[StatusField].(string)
		if !ok {
			r.observer.ResponseReceived(tag, OutcomeMalformed)
			errors.NewSessionError(errors.ErrorTypeMalformedResponse).
				WithLogger(r.logger).
				WithMessage("status response has no string status field").
				WithOperation(tag.String()).
				WithContext("field", StatusField).
				Build()
			return
		}

		r.observer.ResponseReceived(tag, OutcomeSuccess)
		r.logger.LogResponse(tag.String(), OutcomeSuccess, 0)
		r.display.SetText(FormatStatus(r.target, status))

	case interfaces.TagCommandSubmit:
		r.gate.Release(tag)
		r.observer.ResponseReceived(tag, OutcomeSuccess)
		r.logger.LogResponse(tag.String(), OutcomeSuccess, 0)

	default:
		r.logger.Debug("Ignoring success for unknown tag", "tag", tag.String())
	}
}

// FormatStatus renders the display line for target
func FormatStatus(target, status string) string {
	return target + ": " + status
}

func isKnownTag(tag interfaces.RequestTag) bool {
	return tag == interfaces.TagStatusQuery || tag == interfaces.TagCommandSubmit
}

type nopObserver struct{}

func (nopObserver) RequestSent(interfaces.RequestTag) {}
func (nopObserver) RequestSkipped(interfaces.RequestTag, string) {}
func (nopObserver) ResponseReceived(interfaces.RequestTag, string) {}
func (nopObserver) KeepaliveRemaining(int) {}
