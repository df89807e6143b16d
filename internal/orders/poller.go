package orders

import (
	"context"
	"errors"
	"time"

	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/mselser95/polymarket-boxspread/pkg/websocket"
	"go.uber.org/zap"
)

// pollStatus queries an order with exponential backoff until the exchange
// answers, then posts the report. It never guesses an outcome. A refused
// credential ends polling with EventAuthFailed.
func (m *Manager) pollStatus(ctx context.Context, intentID, exchangeID string) {
	defer m.wg.Done()

	retry := websocket.NewRetry(websocket.RetryConfig{
		InitialDelay:      m.pollInitial,
		MaxDelay:          m.pollMax,
		BackoffMultiplier: m.pollMult,
	})

	for {
		callCtx, cancel := context.WithTimeout(ctx, m.ackTimeout)
		report, err := m.exchange.OrderStatus(callCtx, exchangeID)
		cancel()

		if err == nil {
			report.ExchangeOrderID = exchangeID
			StatusPollsTotal.WithLabelValues("resolved").Inc()
			m.logger.Info("order-status-resolved",
				zap.String("intent-id", intentID),
				zap.String("exchange-order-id", exchangeID),
				zap.Bool("found", report.Found),
				zap.String("status", string(report.Status)),
				zap.Int("attempts", retry.Attempt()+1))
			m.post(Event{Kind: EventStatus, IntentID: intentID, ExchangeOrderID: exchangeID, Report: report})
			return
		}

		if errors.Is(err, types.ErrUnauthorized) {
			StatusPollsTotal.WithLabelValues("unauthorized").Inc()
			m.logger.Error("order-status-unauthorized",
				zap.String("intent-id", intentID),
				zap.String("exchange-order-id", exchangeID),
				zap.Error(err))
			m.post(Event{Kind: EventAuthFailed, IntentID: intentID, ExchangeOrderID: exchangeID, Err: err})
			return
		}

		delay, _ := retry.Fail()
		StatusPollsTotal.WithLabelValues("retry").Inc()
		m.logger.Warn("order-status-query-failed-retrying",
			zap.String("intent-id", intentID),
			zap.String("exchange-order-id", exchangeID),
			zap.Int("attempt", retry.Attempt()),
			zap.Duration("backoff", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.logger.Warn("order-status-poll-canceled",
				zap.String("intent-id", intentID),
				zap.Error(ctx.Err()))
			return
		case <-m.done:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
