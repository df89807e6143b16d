package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/polymarket-boxspread/internal/orders"
	"github.com/mselser95/polymarket-boxspread/internal/strategy"
	"github.com/mselser95/polymarket-boxspread/internal/supervisor"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// loop serializes stream events, order results and clock ticks, and
// re-evaluates the strategy after each one.
func (s *Session) loop(ctx, ioCtx context.Context, streamErr <-chan error) (string, error) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	persist := time.NewTicker(s.cfg.PersistInterval)
	defer persist.Stop()

	var expiredAt time.Time

	for {
		select {
		case <-ctx.Done():
			return ExitShutdown, nil

		case ev, ok := <-s.events:
			if !ok {
				s.events = nil
				err := <-streamErr
				if errors.Is(err, supervisor.ErrAuthentication) {
					return ExitAuth, err
				}
				if err == nil {
					err = errors.New("stream closed")
				}
				return ExitStream, fmt.Errorf("market stream: %w", err)
			}
			s.handleStream(ioCtx, ev)

		case ev := <-s.orders.Events():
			if err := s.handleOrder(ioCtx, ev); err != nil {
				return ExitAuth, err
			}

		case <-ticker.C:
			s.expireParked()

		case <-persist.C:
			if s.dirty {
				s.persist()
			}
		}

		mode := s.step(ioCtx)
		if mode != strategy.ModeExpired {
			continue
		}

		now := s.now()
		if expiredAt.IsZero() {
			expiredAt = now
			s.logger.Info("final-exit-started",
				zap.Duration("time-to-expiry", s.market.TimeToExpiry(now)),
				zap.String("delta-q", s.ledger.Exposure().String()))
		}

		live := s.orders.Live()
		if len(live) == 0 {
			return ExitFinal, nil
		}
		if now.Sub(expiredAt) > s.cfg.ShutdownTimeout {
			s.logger.Warn("final-exit-orders-unresolved", zap.Int("live-orders", len(live)))
			return ExitFinal, nil
		}
	}
}

// step evaluates the strategy on the current state and executes its intents.
func (s *Session) step(ctx context.Context) strategy.Mode {
	d := s.engine.Evaluate(s.now(), s.books, s.ledger, s.orders.Live())
	s.mode.Store(d.Mode)
	s.execute(ctx, d)
	return d.Mode
}

func (s *Session) execute(ctx context.Context, d strategy.Decision) {
	for _, in := range d.Intents {
		switch in.Action {
		case strategy.ActionCancel:
			s.cancel(ctx, in.CancelIntentID)

		case strategy.ActionPlace:
			if !s.allow(in.Request.Role) {
				continue
			}
			if err := s.orders.Place(ctx, in.Request); err != nil {
				s.placeFailed(in.Request, err)
			}

		case strategy.ActionReplace:
			if !s.allow(in.Request.Role) {
				// The resting order is mispriced either way.
				s.cancel(ctx, in.CancelIntentID)
				continue
			}
			if err := s.orders.Replace(ctx, in.CancelIntentID, in.Request); err != nil {
				s.placeFailed(in.Request, err)
			}
		}
	}
}

func (s *Session) allow(role orders.Role) bool {
	if s.breaker.Allow(role) {
		return true
	}
	PlacementsBlockedTotal.WithLabelValues(string(role)).Inc()
	s.logger.Debug("placement-blocked-by-breaker", zap.String("role", string(role)))
	return false
}

func (s *Session) cancel(ctx context.Context, intentID string) {
	if err := s.orders.Cancel(ctx, intentID); err != nil {
		s.logger.Warn("order-cancel-failed", zap.String("intent-id", intentID), zap.Error(err))
	}
}

func (s *Session) placeFailed(req orders.Request, err error) {
	level := s.logger.Warn
	if errors.Is(err, orders.ErrDuplicateIntent) {
		level = s.logger.Error
	}
	level("order-place-failed",
		zap.String("intent-id", req.IntentID),
		zap.String("role", string(req.Role)),
		zap.String("price", req.Price.String()),
		zap.String("size", req.Size.String()),
		zap.Error(err))
}

func (s *Session) handleStream(ctx context.Context, ev supervisor.Event) {
	switch ev.Kind {
	case supervisor.EventSnapshot:
		s.books.ApplySnapshot(ev.OutcomeID, ev.Sequence, ev.Bids, ev.Asks)
		if ev.TickSize.IsPositive() {
			s.applyTickSize(ev.OutcomeID, ev.TickSize)
		}

	case supervisor.EventDiff:
		if err := s.books.ApplyDiff(ev.OutcomeID, ev.Sequence, ev.Changes); err != nil {
			ResyncRequestsTotal.Inc()
			s.logger.Warn("book-diff-rejected-resyncing",
				zap.String("outcome-id", ev.OutcomeID),
				zap.Uint64("sequence", ev.Sequence),
				zap.Error(err))
			s.stream.Resync()
		}

	case supervisor.EventStale:
		if ev.OutcomeID == "" {
			s.books.MarkAllStale()
		} else {
			s.books.MarkStale(ev.OutcomeID)
		}

	case supervisor.EventTickSize:
		s.applyTickSize(ev.OutcomeID, ev.TickSize)

	case supervisor.EventFill:
		s.handleFill(ev.Fill)

	case supervisor.EventConnected:
		if ev.Stream == supervisor.StreamMarket {
			s.streaming.Store(true)
		}
		s.logger.Info("stream-connected", zap.String("stream", ev.Stream), zap.Uint64("epoch", ev.Epoch))

	case supervisor.EventDown:
		if ev.Stream == supervisor.StreamMarket {
			s.streaming.Store(false)
		}
		s.logger.Warn("stream-down", zap.String("stream", ev.Stream), zap.Error(ev.Err))
	}
}

func (s *Session) applyTickSize(outcomeID string, tick decimal.Decimal) {
	if !tick.IsPositive() || tick.Equal(s.engine.Params().TickSize) {
		return
	}
	if s.cfg.Ticks != nil {
		s.cfg.Ticks.UpdateTickSize(outcomeID, tick)
	}
	s.engine.SetTickSize(tick)
}

// handleOrder applies an order result. It returns an error wrapping
// supervisor.ErrAuthentication when the exchange refused our credentials.
func (s *Session) handleOrder(ctx context.Context, ev orders.Event) error {
	o, err := s.orders.Reconcile(ctx, ev)
	if err != nil {
		s.logger.Warn("order-event-unreconciled",
			zap.String("intent-id", ev.IntentID),
			zap.String("event", string(ev.Kind)),
			zap.Error(err))
		return nil
	}

	if errors.Is(ev.Err, types.ErrUnauthorized) {
		s.logger.Error("order-call-unauthorized",
			zap.String("intent-id", ev.IntentID),
			zap.String("event", string(ev.Kind)),
			zap.Error(ev.Err))
		return fmt.Errorf("order %s: %w: %w", ev.IntentID, supervisor.ErrAuthentication, ev.Err)
	}

	switch ev.Kind {
	case orders.EventAck:
		s.breaker.RecordAck()
	case orders.EventReject:
		s.breaker.RecordReject()
		s.logger.Warn("order-rejected",
			zap.String("intent-id", o.IntentID),
			zap.String("role", string(o.Role)),
			zap.String("code", ev.Code),
			zap.String("reason", ev.Reason))
		s.handleRejectCode(ev.Code, o)
	}

	if o.ExchangeOrderID != "" {
		s.releaseParked(o.ExchangeOrderID)
	}
	return nil
}

// handleRejectCode reacts to the reject codes that say our view of the
// market or account is wrong.
func (s *Session) handleRejectCode(code string, o orders.Order) {
	switch code {
	case types.ErrInvalidMinTickSize:
		// Snapshots carry the current tick size.
		ResyncRequestsTotal.Inc()
		s.logger.Warn("order-tick-size-rejected-resyncing", zap.String("outcome-id", o.OutcomeID))
		s.stream.Resync()
	case types.ErrNotEnoughBalance:
		s.logger.Error("order-rejected-insufficient-balance",
			zap.String("intent-id", o.IntentID),
			zap.String("size", o.Size.String()),
			zap.String("price", o.Price.String()))
	case types.ErrFOKNotFilled:
		s.logger.Warn("order-fok-not-filled",
			zap.String("intent-id", o.IntentID),
			zap.String("role", string(o.Role)))
	}
}
