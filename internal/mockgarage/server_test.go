package mockgarage

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedServer(initial DoorState) (*Server, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	return New(Config{Initial: initial, TravelTime: 10 * time.Second, Now: clock.Now}, nil), clock
}

func post(t *testing.T, h http.Handler, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func replyStatus(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code)
	var reply map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	return reply["3"]
}

func TestDefaults(t *testing.T) {
	s := New(Config{}, nil)
	assert.Equal(t, DoorClosed, s.State())
	assert.Equal(t, "Garage", s.cfg.Target)
	assert.Equal(t, DefaultTravelTime, s.cfg.TravelTime)
	assert.Equal(t, DefaultMaxRecorded, s.cfg.MaxRecorded)
}

func TestToggleTravelsAndSettles(t *testing.T) {
	s, clock := newClockedServer(DoorClosed)

	s.Toggle()
	assert.Equal(t, DoorOpening, s.State())

	clock.Advance(9 * time.Second)
	assert.Equal(t, DoorOpening, s.State())

	clock.Advance(time.Second)
	assert.Equal(t, DoorOpen, s.State())

	s.Toggle()
	assert.Equal(t, DoorClosing, s.State())
	clock.Advance(10 * time.Second)
	assert.Equal(t, DoorClosed, s.State())
}

func TestToggleReversesMovingDoor(t *testing.T) {
	s, clock := newClockedServer(DoorClosed)

	s.Toggle()
	clock.Advance(3 * time.Second)
	s.Toggle()
	assert.Equal(t, DoorClosing, s.State())

	// back where it started after the same three seconds
	clock.Advance(2 * time.Second)
	assert.Equal(t, DoorClosing, s.State())
	clock.Advance(time.Second)
	assert.Equal(t, DoorClosed, s.State())
}

func TestReversedStart(t *testing.T) {
	now := time.Unix(1000, 0)
	travel := 10 * time.Second

	assert.Equal(t, now.Add(-7*time.Second), reversedStart(now, now.Add(-3*time.Second), travel))
	assert.Equal(t, now, reversedStart(now, now.Add(-time.Minute), travel))
}

func TestServeStatusAndToggle(t *testing.T) {
	s, _ := newClockedServer(DoorOpen)

	rec := post(t, s, `{"2":"Garage","0":1}`, http.Header{"X-Garage-Cookie": {"294420452"}})
	assert.Equal(t, "Open", replyStatus(t, rec))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = post(t, s, `{"2":"garage","0":2,"1":1}`, http.Header{"X-Garage-Cookie": {"294420453"}})
	assert.Equal(t, "Closing", replyStatus(t, rec))

	reqs := s.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "294420452", reqs[0].Cookie)
	assert.Equal(t, "294420453", reqs[1].Cookie)
	assert.Equal(t, float64(1), reqs[1].Body["1"])
}

func TestOverrideOtherThanToggleIsIgnored(t *testing.T) {
	s, _ := newClockedServer(DoorClosed)
	rec := post(t, s, `{"2":"Garage","0":1,"1":2}`, nil)
	assert.Equal(t, "Closed", replyStatus(t, rec))
}

func TestServeRejections(t *testing.T) {
	s := New(Config{Token: "letmein"}, nil)
	bearer := http.Header{"Authorization": {"Bearer letmein"}}

	tests := []struct {
		name   string
		method string
		body   string
		header http.Header
		want   int
	}{
		{name: "wrong method", method: http.MethodGet, header: bearer, want: http.StatusMethodNotAllowed},
		{name: "no token", method: http.MethodPost, body: `{"2":"Garage"}`, want: http.StatusUnauthorized},
		{name: "wrong token", method: http.MethodPost, body: `{"2":"Garage"}`,
			header: http.Header{"Authorization": {"Bearer nope"}}, want: http.StatusUnauthorized},
		{name: "bad json", method: http.MethodPost, body: `{"2":`, header: bearer, want: http.StatusBadRequest},
		{name: "unknown target", method: http.MethodPost, body: `{"2":"Shed","0":1}`, header: bearer, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", strings.NewReader(tt.body))
			for k, v := range tt.header {
				req.Header[k] = v
			}
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestFailNextIsConsumedInOrder(t *testing.T) {
	s := New(Config{}, nil)
	s.FailNext(http.StatusInternalServerError, http.StatusBadGateway)

	assert.Equal(t, http.StatusInternalServerError, post(t, s, `{"2":"Garage"}`, nil).Code)
	assert.Equal(t, http.StatusBadGateway, post(t, s, `{"2":"Garage"}`, nil).Code)
	assert.Equal(t, "Closed", replyStatus(t, post(t, s, `{"2":"Garage"}`, nil)))

	// failed requests are still recorded
	assert.Len(t, s.Requests(), 3)
}

func TestFailedCommandDoesNotToggle(t *testing.T) {
	s := New(Config{}, nil)
	s.FailNext(http.StatusServiceUnavailable)

	post(t, s, `{"2":"Garage","0":1,"1":1}`, nil)
	assert.Equal(t, DoorClosed, s.State())
}

func TestRequestHistoryIsBounded(t *testing.T) {
	s := New(Config{MaxRecorded: 3}, nil)

	for i := 1; i <= 10; i++ {
		post(t, s, fmt.Sprintf(`{"2":"Garage","0":%d}`, i), nil)
	}

	reqs := s.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, float64(8), reqs[0].Body["0"])
	assert.Equal(t, float64(10), reqs[2].Body["0"])
	assert.LessOrEqual(t, cap(s.requests), 4)
}
