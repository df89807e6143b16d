package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

// TestMetrics_Labels tests label values are accepted
func TestMetrics_Labels(t *testing.T) {
	ActiveConnections.WithLabelValues("market").Set(1)
	ActiveConnections.WithLabelValues("user").Set(0)
	MessagesReceivedTotal.WithLabelValues("market").Inc()
	MessagesDroppedTotal.WithLabelValues("user", "channel_full").Inc()
	ConnectionDuration.WithLabelValues("market").Observe(900)
}

// TestMetrics_FailuresCounted tests failed dials are counted per channel
func TestMetrics_FailuresCounted(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	before := testutil.ToFloat64(ReconnectFailuresTotal.WithLabelValues("metrics-test"))

	c := New(Config{
		Name:   "metrics-test",
		URL:    url,
		Retry:  RetryConfig{InitialDelay: 1, MaxAttempts: 2},
		Logger: zap.NewNop(),
	})
	if err := c.Run(context.Background()); err == nil {
		t.Fatal("expected error from unreachable server")
	}

	if got := testutil.ToFloat64(ReconnectFailuresTotal.WithLabelValues("metrics-test")) - before; got != 2 {
		t.Errorf("expected 2 failures counted, got %v", got)
	}
}
