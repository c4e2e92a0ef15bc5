package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volley/internal/core"
)

func TestEmitter_Counters(t *testing.T) {
	e := NewEmitter()
	e.Counter(core.CounterMessagesSent, 1)
	e.Counter(core.CounterMessagesSent, 2)
	e.Counter(core.CounterMessagesSent, -5)
	e.Rate(core.RateSend)

	assert.Equal(t, 3.0, testutil.ToFloat64(e.counters.WithLabelValues(core.CounterMessagesSent)))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.rates.WithLabelValues(core.RateSend)))
}

func TestEmitter_SessionLifecycle(t *testing.T) {
	e := NewEmitter()
	e.Event(core.EventStarted, nil)
	e.Event(core.EventStarted, nil)
	assert.Equal(t, 2.0, testutil.ToFloat64(e.activeSessions))

	e.Event(core.EventError, "ECONNREFUSED")
	e.Event(core.EventError, errors.New("broken pipe"))
	e.Event(core.EventCompleted, core.SessionResult{ID: 1, Duration: 250 * time.Millisecond})

	assert.Equal(t, 1.0, testutil.ToFloat64(e.activeSessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.events.WithLabelValues(core.EventStarted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.errors.WithLabelValues("ECONNREFUSED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.errors.WithLabelValues("broken pipe")))
	assert.Equal(t, 1, testutil.CollectAndCount(e.sessionDuration))
}

func TestEmitter_Handler(t *testing.T) {
	e := NewEmitter()
	e.Counter(core.CounterMessagesSent, 4)

	srv := httptest.NewServer(e.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `volley_counter_total{name="engine.ws.messages_sent"} 4`), string(body))

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestEmitter_Fanout(t *testing.T) {
	e := NewEmitter()
	rec := &core.RecordingEmitter{}
	var em core.Emitter = core.Fanout{e, rec}

	em.Rate(core.RateSessions)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.rates.WithLabelValues(core.RateSessions)))
	assert.Equal(t, 1, rec.Count("rate", core.RateSessions))
}
