package orderbook

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func TestMetrics_SequenceGapCounted(t *testing.T) {
	m := New(&Config{Logger: zap.NewNop()})
	m.ApplySnapshot("tok", 0, nil, nil)

	before := testutil.ToFloat64(SequenceGapsTotal)
	err := m.ApplyDiff("tok", 5, nil)
	if err == nil {
		t.Fatal("expected gap error")
	}

	if got := testutil.ToFloat64(SequenceGapsTotal) - before; got != 1 {
		t.Errorf("expected 1 gap counted, got %v", got)
	}
}

func TestMetrics_BooksTracked(t *testing.T) {
	m := New(&Config{Logger: zap.NewNop()})
	m.ApplySnapshot("a", 0, nil, nil)
	m.ApplySnapshot("b", 0, nil, nil)

	if got := testutil.ToFloat64(BooksTracked); got != 2 {
		t.Errorf("expected 2 books tracked, got %v", got)
	}

	m.Reset()
	if got := testutil.ToFloat64(BooksTracked); got != 0 {
		t.Errorf("expected 0 books tracked after reset, got %v", got)
	}
}
