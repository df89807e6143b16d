package session

import (
	"context"
	"time"

	"github.com/mselser95/polymarket-boxspread/internal/strategy"
	"go.uber.org/zap"
)

// shutdown stops intent generation, cancels every order and waits (bounded)
// for the cancels to settle, sweeps whatever the exchange still holds for the
// market and, with flatten, sells the unhedged leg once.
func (s *Session) shutdown(ctx context.Context, flatten bool) {
	start := time.Now()
	defer func() {
		ShutdownDuration.Observe(time.Since(start).Seconds())
	}()

	s.engine.Stop()
	s.mode.Store(strategy.ModeStopped)

	s.logger.Info("session-shutdown-starting",
		zap.Bool("flatten", flatten),
		zap.Int("live-orders", len(s.orders.Live())),
		zap.String("delta-q", s.ledger.Exposure().String()))

	s.orders.CancelAll(ctx)
	if !s.drain(ctx, func() bool { return len(s.orders.Live()) == 0 }) {
		s.logger.Warn("shutdown-cancel-wait-timed-out", zap.Int("live-orders", len(s.orders.Live())))
	}

	sweepCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	n, err := s.cfg.Exchange.CancelMarketOrders(sweepCtx, s.market.ConditionID)
	cancel()
	if err != nil {
		s.logger.Error("shutdown-sweep-failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Warn("shutdown-sweep-cancelled-orders", zap.Int("count", n))
	}

	if !flatten {
		return
	}

	req, ok := s.engine.Flatten(s.books, s.ledger)
	if !ok {
		s.logger.Info("flatten-skipped-balanced")
		return
	}

	if err := s.orders.Place(ctx, req); err != nil {
		FlattensTotal.WithLabelValues("error").Inc()
		s.logger.Error("flatten-place-failed", zap.Error(err))
		return
	}

	s.logger.Info("flatten-submitted",
		zap.String("intent-id", req.IntentID),
		zap.String("outcome-id", req.OutcomeID),
		zap.String("price", req.Price.String()),
		zap.String("size", req.Size.String()))

	settled := s.drain(ctx, func() bool {
		o, found := s.orders.Get(req.IntentID)
		return !found || o.Status.Terminal()
	})

	o, _ := s.orders.Get(req.IntentID)
	result := string(o.Status)
	if !settled {
		result = "timeout"
	}
	FlattensTotal.WithLabelValues(result).Inc()
	s.logger.Info("flatten-finished",
		zap.String("status", string(o.Status)),
		zap.String("filled", o.Filled.String()),
		zap.String("delta-q", s.ledger.Exposure().String()))
}

// drain keeps applying order results and stream events until done holds or
// ShutdownTimeout passes. The strategy is not evaluated.
func (s *Session) drain(ctx context.Context, done func() bool) bool {
	timer := time.NewTimer(s.cfg.ShutdownTimeout)
	defer timer.Stop()

	for !done() {
		select {
		case ev := <-s.orders.Events():
			if err := s.handleOrder(ctx, ev); err != nil {
				return false
			}
		case ev, ok := <-s.events:
			if !ok {
				s.events = nil
				continue
			}
			s.handleStream(ctx, ev)
		case <-timer.C:
			return false
		}
	}
	return true
}
