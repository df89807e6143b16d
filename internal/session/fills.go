package session

import (
	"context"
	"sync"
	"time"

	"github.com/mselser95/polymarket-boxspread/internal/inventory"
	"github.com/mselser95/polymarket-boxspread/internal/orders"
	"github.com/mselser95/polymarket-boxspread/internal/storage"
	"go.uber.org/zap"
)

// parkedFill is a fill whose order has not been acked yet.
type parkedFill struct {
	fill inventory.Fill
	at   time.Time
}

// handleFill routes a fill to its order by exchange order id. A fill can
// beat its order's ack, so unknown ids wait for FillParkTimeout.
func (s *Session) handleFill(f inventory.Fill) {
	o, ok := s.orders.ByExchangeID(f.ExchangeOrderID)
	if !ok {
		FillsParkedTotal.Inc()
		s.parked = append(s.parked, parkedFill{fill: f, at: s.now()})
		s.logger.Debug("fill-parked-unknown-order",
			zap.String("fill-id", f.ID),
			zap.String("exchange-order-id", f.ExchangeOrderID))
		return
	}
	s.applyFill(o, f)
}

func (s *Session) releaseParked(exchangeOrderID string) {
	if len(s.parked) == 0 {
		return
	}

	var ready []inventory.Fill
	kept := s.parked[:0]
	for _, p := range s.parked {
		if p.fill.ExchangeOrderID == exchangeOrderID {
			ready = append(ready, p.fill)
			continue
		}
		kept = append(kept, p)
	}
	s.parked = kept

	if len(ready) == 0 {
		return
	}
	o, ok := s.orders.ByExchangeID(exchangeOrderID)
	if !ok {
		return
	}
	for _, f := range ready {
		s.applyFill(o, f)
	}
}

// expireParked drops fills whose order never showed up, e.g. leftovers of
// an earlier session.
func (s *Session) expireParked() {
	if len(s.parked) == 0 {
		return
	}

	cutoff := s.now().Add(-s.cfg.FillParkTimeout)
	kept := s.parked[:0]
	for _, p := range s.parked {
		if p.at.After(cutoff) {
			kept = append(kept, p)
			continue
		}
		FillsDroppedTotal.Inc()
		s.logger.Info("fill-dropped-unknown-order",
			zap.String("fill-id", p.fill.ID),
			zap.String("exchange-order-id", p.fill.ExchangeOrderID),
			zap.String("size", p.fill.Size.String()))
	}
	s.parked = kept
}

// applyFill books a fill into the ledger and then the order. Duplicates are
// dropped by the ledger before touching the order.
func (s *Session) applyFill(o orders.Order, f inventory.Fill) {
	f.IntentID = o.IntentID
	f.Side = o.Side
	if f.OutcomeID == "" {
		f.OutcomeID = o.OutcomeID
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = s.now()
	}

	applied, err := s.ledger.ApplyFill(f)
	if err != nil {
		s.logger.Warn("fill-rejected", zap.String("intent-id", o.IntentID), zap.Error(err))
		return
	}
	if !applied {
		return
	}

	if _, err := s.orders.ApplyFill(f); err != nil {
		s.logger.Warn("fill-order-update-failed", zap.String("intent-id", o.IntentID), zap.Error(err))
	}

	s.dirty = true
	s.breaker.ObserveExposure(s.ledger.Exposure())
	s.ledger.LockProfit()

	s.recorder.Record(f)
}

// fillRecorder writes fills to storage from its own goroutine so a slow
// database never stalls the event loop.
type fillRecorder struct {
	store   storage.Storage
	market  string
	timeout time.Duration
	logger  *zap.Logger

	queue     chan inventory.Fill
	done      chan struct{}
	closeOnce sync.Once
}

func newFillRecorder(store storage.Storage, market string, logger *zap.Logger) *fillRecorder {
	r := &fillRecorder{
		store:   store,
		market:  market,
		timeout: 2 * time.Second,
		logger:  logger,
		queue:   make(chan inventory.Fill, 1024),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues a fill. A full queue drops the record; the ledger state
// file still holds the fill.
func (r *fillRecorder) Record(f inventory.Fill) {
	select {
	case r.queue <- f:
	default:
		FillRecordsTotal.WithLabelValues("dropped").Inc()
		r.logger.Error("fill-record-queue-full", zap.String("fill-key", f.Key()))
	}
}

func (r *fillRecorder) run() {
	defer close(r.done)
	for f := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := r.store.RecordFill(ctx, r.market, f)
		cancel()

		if err != nil {
			FillRecordsTotal.WithLabelValues("error").Inc()
			r.logger.Warn("fill-record-failed", zap.String("fill-key", f.Key()), zap.Error(err))
			continue
		}
		FillRecordsTotal.WithLabelValues("ok").Inc()
	}
}

// Close writes the queued fills and stops the recorder.
func (r *fillRecorder) Close() {
	r.closeOnce.Do(func() {
		close(r.queue)
	})
	<-r.done
}
