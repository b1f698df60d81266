package session

import "github.com/universal-console/garage/internal/interfaces"

// RequestGate tracks which kinds of request are in flight. At most one
// request per kind may be outstanding; there is no queue.
//
// The gate is not safe for concurrent use. All calls happen on the event loop.
type RequestGate struct {
	statusInFlight  bool
	commandInFlight bool
}

// TryAcquire marks kind as in flight and returns true, or returns false
// without side effects if a request of that kind is already outstanding.
// Unknown kinds are never acquired.
func (g *RequestGate) TryAcquire(kind interfaces.RequestTag) bool {
	flag := g.flag(kind)
	if flag == nil || *flag {
		return false
	}
	*flag = true
	return true
}

// Release clears the in-flight flag for kind. Releasing a clear slot is a no-op.
func (g *RequestGate) Release(kind interfaces.RequestTag) {
	if flag := g.flag(kind); flag != nil {
		*flag = false
	}
}

// InFlight reports whether a request of kind is outstanding
func (g *RequestGate) InFlight(kind interfaces.RequestTag) bool {
	flag := g.flag(kind)
	return flag != nil && *flag
}

func (g *RequestGate) flag(kind interfaces.RequestTag) *bool {
	switch kind {
	case interfaces.TagStatusQuery:
		return &g.statusInFlight
	case interfaces.TagCommandSubmit:
		return &g.commandInFlight
	default:
		return nil
	}
}
