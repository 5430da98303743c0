package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fogbridge/fogbridge/domain/ports"
	"github.com/fogbridge/fogbridge/log"
)

func TestPromMetrics(t *testing.T) {
	m := NewPromMetrics()

	m.MessageReceived()
	m.MessageReceived()
	m.ReadingProcessed()
	m.Passthrough()
	m.Dropped("filter")
	m.Dropped("filter")
	m.Dropped("queue")
	m.GuestLog()
	m.PublishError()
	m.PersistError()
	m.SetQueueDepth(7)
	m.ObserveFilter(3 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.received))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.processed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passthrough))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.dropped.WithLabelValues("filter")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues("queue")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.guestLogs))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishErrs))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.persistErrs))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, 1, testutil.CollectAndCount(m.filterTime))
}

func TestPromMetrics_IndependentRegistries(t *testing.T) {
	a, b := NewPromMetrics(), NewPromMetrics()
	a.MessageReceived()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.received))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.received))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := NewPromMetrics()
	m.Passthrough()

	rec := httptest.NewRecorder()
	NewHandler(m.Registry()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fogbridge_passthrough_total 1")
	assert.Contains(t, rec.Body.String(), "fogbridge_ingest_queue_depth 0")
}

func TestServer_StartAndShutdown(t *testing.T) {
	m := NewPromMetrics()
	srv, err := Start("127.0.0.1:0", m.Registry(), log.Discard())
	require.NoError(t, err)

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", strings.TrimSpace(string(body)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}

func TestNop(t *testing.T) {
	var n ports.NopMetrics
	assert.NotPanics(t, func() {
		n.MessageReceived()
		n.Dropped("x")
		n.ObserveFilter(time.Second)
		n.SetQueueDepth(1)
	})
}
