package metrics_test

import (
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"cfb8d/internal/metrics"
	"cfb8d/internal/protocol"
)

func TestCollectorCountsSessionLifecycle(t *testing.T) {
	c := metrics.New()
	sess := protocol.Session{Direction: protocol.Encrypt}

	c.SessionOpened("a", sess)
	c.BytesProcessed(protocol.Encrypt, 5)
	c.BytesProcessed(protocol.Encrypt, 7)
	c.SessionClosed("a", sess, nil)

	c.SessionOpened("b", protocol.Session{Direction: protocol.Decrypt})
	c.SessionClosed("b", protocol.Session{Direction: protocol.Decrypt}, fmt.Errorf("write: %w", protocol.ErrChannelIO))
	c.HandshakeFailed(fmt.Errorf("%w: 2", protocol.ErrInvalidDirection))
	c.ConnectionRejected("max_connections")

	expected := `
# HELP cfb8d_bytes_processed_total Bytes transformed, by direction.
# TYPE cfb8d_bytes_processed_total counter
cfb8d_bytes_processed_total{direction="encrypt"} 12
# HELP cfb8d_session_errors_total Connections that ended with an error, by error kind.
# TYPE cfb8d_session_errors_total counter
cfb8d_session_errors_total{kind="channel_io"} 1
cfb8d_session_errors_total{kind="invalid_direction"} 1
# HELP cfb8d_sessions_active Sessions currently streaming.
# TYPE cfb8d_sessions_active gauge
cfb8d_sessions_active 0
`
	if err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected),
		"cfb8d_bytes_processed_total", "cfb8d_session_errors_total", "cfb8d_sessions_active"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}

	snap := c.Snapshot()
	if snap.SessionsTotal["encrypt"] != 1 || snap.SessionsTotal["decrypt"] != 1 {
		t.Fatalf("unexpected session totals: %v", snap.SessionsTotal)
	}
	if snap.SessionsActive != 0 {
		t.Fatalf("expected no active sessions, got %d", snap.SessionsActive)
	}
	if snap.BytesTotal["encrypt"] != 12 {
		t.Fatalf("expected 12 encrypted bytes, got %d", snap.BytesTotal["encrypt"])
	}
	if snap.Rejected["max_connections"] != 1 {
		t.Fatalf("expected one rejection, got %v", snap.Rejected)
	}
	if snap.Errors[protocol.KindInvalidDirection] != 1 || snap.Errors[protocol.KindChannelIO] != 1 {
		t.Fatalf("unexpected error counts: %v", snap.Errors)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	c := metrics.New()
	snap := c.Snapshot()
	snap.BytesTotal["encrypt"] = 99
	if c.Snapshot().BytesTotal["encrypt"] != 0 {
		t.Fatal("mutating a snapshot leaked into the collector")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := metrics.New()
	c.SessionOpened("x", protocol.Session{Direction: protocol.Decrypt})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `cfb8d_sessions_total{direction="decrypt"} 1`) {
		t.Fatalf("expected sessions counter in exposition, got:\n%s", body)
	}
}
