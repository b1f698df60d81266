package protocol_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/universal-console/garage/internal/interfaces"
	"github.com/universal-console/garage/internal/logging"
	"github.com/universal-console/garage/internal/loop"
	"github.com/universal-console/garage/internal/mockgarage"
	"github.com/universal-console/garage/internal/protocol"
)

func waitResults(t *testing.T, q *loop.Queue, results *[]interfaces.Result, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for len(*results) < n {
		require.NoError(t, q.Wait(ctx))
		q.Drain()
	}
}

func TestAsyncTransportDeliversOnPoster(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mock := mockgarage.New(mockgarage.Config{Initial: mockgarage.DoorClosed, TravelTime: time.Hour}, nil)
	srv := httptest.NewServer(mock)
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	defer c.Close()

	q := loop.NewQueue()
	tr := protocol.NewAsyncTransport(c, q, logging.Discard())
	var results []interfaces.Result
	tr.OnResult(func(r interfaces.Result) { results = append(results, r) })

	require.True(t, tr.Send(interfaces.TagCommandSubmit,
		interfaces.CommandPayload{Target: "Garage", CacheBust: 1, Override: interfaces.OverrideToggle}))
	waitResults(t, q, &results, 1)

	require.True(t, tr.Send(interfaces.TagStatusQuery, interfaces.StatusPayload{Target: "Garage", CacheBust: 2}))
	waitResults(t, q, &results, 2)

	require.NoError(t, tr.Wait(context.Background()))

	assert.Equal(t, interfaces.TagCommandSubmit, results[0].ResultTag())
	status, ok := results[1].(interfaces.Success)
	require.True(t, ok)
	assert.Equal(t, "Opening", status.Payload["3"])
}

func TestAsyncTransportFailureCarriesCode(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mock := mockgarage.New(mockgarage.Config{}, nil)
	mock.FailNext(http.StatusBadGateway)
	srv := httptest.NewServer(mock)
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	defer c.Close()

	q := loop.NewQueue()
	tr := protocol.NewAsyncTransport(c, q, logging.Discard())
	var results []interfaces.Result
	tr.OnResult(func(r interfaces.Result) { results = append(results, r) })

	require.True(t, tr.Send(interfaces.TagStatusQuery, interfaces.StatusPayload{Target: "Garage", CacheBust: 1}))
	waitResults(t, q, &results, 1)
	require.NoError(t, tr.Wait(context.Background()))

	assert.Equal(t, interfaces.Failure{Tag: interfaces.TagStatusQuery, Code: http.StatusBadGateway}, results[0])
}

func TestAsyncTransportRejectsSynchronously(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	q := loop.NewQueue()
	c := newTestClient(t, "http://127.0.0.1:1", nil)
	tr := protocol.NewAsyncTransport(c, q, logging.Discard())

	// no handler yet
	assert.False(t, tr.Send(interfaces.TagStatusQuery, interfaces.StatusPayload{Target: "Garage"}))

	tr.OnResult(func(interfaces.Result) { t.Error("rejected send produced a completion") })
	assert.False(t, tr.Send(interfaces.RequestTag(5), interfaces.StatusPayload{Target: "Garage"}))
	assert.False(t, tr.Send(interfaces.TagStatusQuery, "not a payload"))

	tr.Close()
	assert.False(t, tr.Send(interfaces.TagStatusQuery, interfaces.StatusPayload{Target: "Garage"}))

	require.NoError(t, tr.Wait(context.Background()))
	assert.Equal(t, 0, q.Len())
}

func TestAsyncTransportWaitHonoursContext(t *testing.T) {
	mock := mockgarage.New(mockgarage.Config{Delay: 200 * time.Millisecond}, nil)
	srv := httptest.NewServer(mock)
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	tr := protocol.NewAsyncTransport(c, loop.NewQueue(), logging.Discard())
	tr.OnResult(func(interfaces.Result) {})
	require.True(t, tr.Send(interfaces.TagStatusQuery, interfaces.StatusPayload{Target: "Garage", CacheBust: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tr.Wait(ctx), context.DeadlineExceeded)

	require.NoError(t, tr.Wait(context.Background()))
}
