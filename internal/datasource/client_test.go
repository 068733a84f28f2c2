package datasource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoPolymarket/dexgate/internal/config"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test", config.HTTPSourceConfig{
		BaseURL: srv.URL, QPS: 1000, Burst: 100, Timeout: time.Second, BreakerFailures: 2, BreakerCooldown: time.Minute,
	}, nil)
}

func TestBreakersAreScoped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/down" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	})
	ctx := context.Background()

	for range 2 {
		assert.Error(t, c.GetJSON(ctx, "bsc", "/down", nil, &struct{}{}))
	}
	assert.Equal(t, gobreaker.StateOpen, c.breaker("bsc").State())

	var body struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.GetJSON(ctx, "ethereum", "/up", nil, &body))
	assert.True(t, body.OK)
	assert.Equal(t, gobreaker.StateClosed, c.breaker("ethereum").State())
	assert.Equal(t, gobreaker.StateClosed, c.breaker("listings").State())
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})
	ctx := context.Background()

	for range 5 {
		err := c.GetJSON(ctx, "ethereum", "/bad", nil, &struct{}{})
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadRequest, se.Code)
	}
	assert.EqualValues(t, 5, hits.Load())
	assert.Equal(t, gobreaker.StateClosed, c.breaker("ethereum").State())
}

func TestRateLimitedResponsesTripBreaker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	for range 2 {
		_ = c.GetJSON(context.Background(), "", "/busy", nil, &struct{}{})
	}
	assert.Equal(t, gobreaker.StateOpen, c.breaker("").State())
}

func TestIsBreakerSuccess(t *testing.T) {
	assert.True(t, isBreakerSuccess(nil))
	assert.True(t, isBreakerSuccess(ErrNotFound))
	assert.True(t, isBreakerSuccess(context.Canceled))
	assert.True(t, isBreakerSuccess(&StatusError{Code: http.StatusUnprocessableEntity}))
	assert.False(t, isBreakerSuccess(&StatusError{Code: http.StatusTooManyRequests}))
	assert.False(t, isBreakerSuccess(&StatusError{Code: http.StatusInternalServerError}))
	assert.False(t, isBreakerSuccess(context.DeadlineExceeded))
}
