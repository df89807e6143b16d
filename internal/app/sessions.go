package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/polymarket-boxspread/internal/circuitbreaker"
	"github.com/mselser95/polymarket-boxspread/internal/discovery"
	"github.com/mselser95/polymarket-boxspread/internal/session"
	"github.com/mselser95/polymarket-boxspread/internal/strategy"
	"github.com/mselser95/polymarket-boxspread/internal/supervisor"
	"github.com/mselser95/polymarket-boxspread/pkg/config"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// runSessions trades one market after another until the app context ends.
// Authentication failures stop the app since retrying cannot fix them.
func (a *App) runSessions() {
	defer a.wg.Done()
	defer close(a.sessionsDone)

	for a.ctx.Err() == nil {
		err := a.runSession(a.ctx)

		switch {
		case a.ctx.Err() != nil:
			return

		case errors.Is(err, supervisor.ErrAuthentication):
			a.stop(fmt.Errorf("market session: %w", err))
			return

		case err == nil:
			if a.opts.Once {
				a.stop(nil)
				return
			}
			continue

		case errors.Is(err, discovery.ErrNoMarket):
			a.logger.Info("no-market-available-waiting", zap.Duration("retry-in", a.cfg.SessionRetryDelay))

		default:
			a.logger.Error("market-session-failed",
				zap.Duration("retry-in", a.cfg.SessionRetryDelay),
				zap.Error(err))
			if a.opts.Once {
				a.stop(err)
				return
			}
		}

		select {
		case <-a.ctx.Done():
			return
		case <-time.After(a.cfg.SessionRetryDelay):
		}
	}
}

// runSession runs discover, sweep, preflight and then the session itself.
func (a *App) runSession(ctx context.Context) error {
	market, err := a.prepareMarket(ctx)
	if err != nil {
		return err
	}
	defer a.discovery.Invalidate()

	if err := a.sweep(ctx, market); err != nil {
		return err
	}

	if err := a.preflight(ctx); err != nil {
		return err
	}

	params := strategy.ParamsFromConfig(a.cfg)
	breaker, err := circuitbreaker.New(&circuitbreaker.Config{
		RejectThreshold: a.cfg.RejectBreakerThreshold,
		Cooldown:        a.cfg.EmergencyCooldown,
		MaxExposure:     params.MaxExposure,
		Logger:          a.logger,
	})
	if err != nil {
		return fmt.Errorf("create circuit breaker: %w", err)
	}

	sess, err := session.New(&session.Config{
		Market:          market,
		Params:          params,
		Exchange:        a.exchange,
		Breaker:         breaker,
		Storage:         a.storage,
		Ticks:           a.metadata,
		NewStream:       a.streamFactory(market),
		ExecutionMode:   a.cfg.ExecutionMode,
		StateFile:       a.cfg.StateFile,
		PersistInterval: a.cfg.StatePersistInterval,
		AckTimeout:      a.cfg.OrderAckTimeout,
		PollMaxBackoff:  a.cfg.StatusPollMaxBackoff,
		ShutdownTimeout: a.cfg.ShutdownTimeout,
		Logger:          a.logger,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	a.setCurrent(sess)
	defer a.setCurrent(nil)

	return sess.Run(ctx)
}

// prepareMarket selects the next market and applies the exchange's tick and
// minimum size to it.
func (a *App) prepareMarket(ctx context.Context) (*types.BinaryMarket, error) {
	next, err := a.discovery.NextMarket(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover market: %w", err)
	}

	rules, err := a.metadata.ForMarket(ctx, next, decimal.NewFromFloat(a.cfg.MinOrderSize))
	if err != nil {
		return nil, fmt.Errorf("market rules: %w", err)
	}

	market := *next
	market.TickSize = rules.TickSize.InexactFloat64()
	market.MinOrderSize = rules.MinOrderSize.InexactFloat64()

	a.logger.Info("market-selected",
		zap.String("slug", market.Slug),
		zap.String("condition-id", market.ConditionID),
		zap.Time("end-time", market.EndTime),
		zap.String("tick-size", rules.TickSize.String()),
		zap.String("min-order-size", rules.MinOrderSize.String()))

	return &market, nil
}

// sweep cancels orders a previous process may have left on the market.
func (a *App) sweep(ctx context.Context, market *types.BinaryMarket) error {
	sweepCtx, cancel := context.WithTimeout(ctx, a.cfg.OrderAckTimeout)
	defer cancel()

	n, err := a.exchange.CancelMarketOrders(sweepCtx, market.ConditionID)
	if err != nil {
		return fmt.Errorf("sweep stale orders: %w", err)
	}
	if n > 0 {
		a.logger.Warn("stale-orders-swept",
			zap.String("condition-id", market.ConditionID),
			zap.Int("count", n))
	}
	return nil
}

// preflight requires enough USDC to fund both traps at the pair target.
func (a *App) preflight(ctx context.Context) error {
	if a.walletClient == nil {
		return nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if _, err := a.walletClient.Preflight(checkCtx, a.funder, a.cfg.SessionFunding()); err != nil {
		return fmt.Errorf("funding preflight: %w", err)
	}
	return nil
}

func (a *App) streamFactory(market *types.BinaryMarket) func(time.Time) session.Stream {
	return func(since time.Time) session.Stream {
		userURL := a.cfg.UserWSURL()
		if a.cfg.ExecutionMode == config.ModeDryRun {
			// Paper orders never trade, so there are no fills to follow.
			userURL = ""
		}

		return supervisor.New(&supervisor.Config{
			Market:            market,
			Source:            a.client,
			MarketURL:         a.cfg.MarketWSURL(),
			UserURL:           userURL,
			APIKey:            a.cfg.PolymarketAPIKey,
			Secret:            a.cfg.PolymarketSecret,
			Passphrase:        a.cfg.PolymarketPassphrase,
			FillsSince:        since,
			DialTimeout:       a.cfg.WSDialTimeout,
			PingInterval:      a.cfg.WSPingInterval,
			MessageBufferSize: a.cfg.WSMessageBufferSize,
			Retry:             retryConfig(a.cfg),
			Logger:            a.logger,
		})
	}
}

func (a *App) setCurrent(s *session.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = s
}

func (a *App) currentSession() *session.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// SessionStatus implements httpserver.SessionSource.
func (a *App) SessionStatus() (session.Status, bool) {
	s := a.currentSession()
	if s == nil {
		return session.Status{}, false
	}
	return s.Status(), true
}

func (a *App) sessionReady() (bool, string) {
	s := a.currentSession()
	if s == nil {
		return false, "no active market session"
	}
	if !s.Ready() {
		return false, "market stream not connected"
	}
	return true, ""
}

// stop ends the app. A non-nil err is returned from Run.
func (a *App) stop(err error) {
	a.mu.Lock()
	if a.fatal == nil {
		a.fatal = err
	}
	a.mu.Unlock()
	a.cancel()
}
