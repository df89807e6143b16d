package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Tracker periodically refreshes the balance gauges while the engine runs
// and warns once each time the funder drops below what a session needs.
type Tracker struct {
	client       *Client
	address      common.Address
	pollInterval time.Duration
	required     decimal.Decimal
	underfunded  bool
	logger       *zap.Logger
}

// Config holds tracker configuration.
type Config struct {
	Client       *Client
	Address      common.Address
	PollInterval time.Duration
	Required     decimal.Decimal // USDC one session locks up; zero disables the check
	Logger       *zap.Logger
}

// NewTracker creates a new balance tracker.
func NewTracker(cfg *Config) (t *Tracker, err error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Client == nil {
		return nil, errors.New("client cannot be nil")
	}

	if cfg.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}

	return &Tracker{
		client:       cfg.Client,
		address:      cfg.Address,
		pollInterval: cfg.PollInterval,
		required:     cfg.Required,
		logger:       cfg.Logger,
	}, nil
}

// Run polls until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) (err error) {
	t.logger.Info("wallet-tracker-starting",
		zap.Duration("poll-interval", t.pollInterval),
		zap.String("address", t.address.Hex()))

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		if pollErr := t.poll(ctx); pollErr != nil {
			t.logger.Warn("wallet-poll-failed", zap.Error(pollErr))
			UpdateErrorsTotal.Inc()
		}

		select {
		case <-ctx.Done():
			t.logger.Info("wallet-tracker-stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t *Tracker) poll(ctx context.Context) error {
	start := time.Now()
	defer func() {
		UpdateDuration.Observe(time.Since(start).Seconds())
	}()

	pollCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	balances, err := t.client.GetBalances(pollCtx, t.address)
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}

	observe(balances)
	LastUpdateTimestamp.Set(float64(time.Now().Unix()))
	t.checkFunding(balances)
	return nil
}

func (t *Tracker) checkFunding(b *Balances) {
	if t.required.IsZero() {
		return
	}

	shortfall := decimal.Max(t.required.Sub(b.USDCAmount()), decimal.Zero)
	FundingShortfall.Set(shortfall.InexactFloat64())

	underfunded := shortfall.IsPositive()
	switch {
	case underfunded && !t.underfunded:
		t.logger.Warn("wallet-underfunded",
			zap.String("address", t.address.Hex()),
			zap.String("usdc", b.USDCAmount().String()),
			zap.String("required", t.required.String()))
	case !underfunded && t.underfunded:
		t.logger.Info("wallet-funded",
			zap.String("address", t.address.Hex()),
			zap.String("usdc", b.USDCAmount().String()))
	}
	t.underfunded = underfunded
}
