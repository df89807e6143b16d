// Package session runs one market from its first book snapshot to final exit
// or shutdown. Every mutation of the books, ledger and order set happens on
// the session loop goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mselser95/polymarket-boxspread/internal/circuitbreaker"
	"github.com/mselser95/polymarket-boxspread/internal/inventory"
	"github.com/mselser95/polymarket-boxspread/internal/orderbook"
	"github.com/mselser95/polymarket-boxspread/internal/orders"
	"github.com/mselser95/polymarket-boxspread/internal/storage"
	"github.com/mselser95/polymarket-boxspread/internal/strategy"
	"github.com/mselser95/polymarket-boxspread/internal/supervisor"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Exit reasons recorded in the session summary.
const (
	ExitFinal    = "final-exit"
	ExitShutdown = "shutdown"
	ExitStream   = "stream-failed"
	ExitAuth     = "authentication"
)

// Exchange is the order transport plus the per-market sweep used on exit.
type Exchange interface {
	orders.Exchange
	CancelMarketOrders(ctx context.Context, conditionID string) (int, error)
}

// Stream is the event source of a market, normally a *supervisor.Supervisor.
type Stream interface {
	Events() <-chan supervisor.Event
	Resync()
	Run(ctx context.Context) error
}

// TickSizes receives exchange tick size changes, normally *markets.Service.
type TickSizes interface {
	UpdateTickSize(tokenID string, tick decimal.Decimal)
}

// Config holds session configuration.
type Config struct {
	Market   *types.BinaryMarket
	Params   strategy.Params
	Exchange Exchange
	Breaker  *circuitbreaker.Breaker
	Storage  storage.Storage
	Ticks    TickSizes // optional

	// NewStream builds the market's stream. Fill catch-up starts at fillsSince.
	NewStream func(fillsSince time.Time) Stream

	ExecutionMode   string
	StateFile       string // empty disables persistence
	PersistInterval time.Duration
	TickInterval    time.Duration // clock tick driving expiry checks
	AckTimeout      time.Duration
	PollMaxBackoff  time.Duration
	ShutdownTimeout time.Duration // bound on each shutdown wait
	FillParkTimeout time.Duration // how long fills for unknown orders wait for an ack

	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string
}

// Session trades one market.
type Session struct {
	cfg    *Config
	id     string
	market *types.BinaryMarket
	logger *zap.Logger
	now    func() time.Time

	books    *orderbook.Model
	ledger   *inventory.Ledger
	orders   *orders.Manager
	engine   *strategy.Engine
	breaker  *circuitbreaker.Breaker
	store    storage.Storage
	recorder *fillRecorder
	stream   Stream
	events   <-chan supervisor.Event

	parked    []parkedFill
	startedAt time.Time
	dirty     bool

	mode      atomic.Value // strategy.Mode
	streaming atomic.Bool
	finished  atomic.Bool
	runOnce   sync.Once
}

// New builds a session and restores the ledger from the state file when it
// belongs to the same market.
func New(cfg *Config) (*Session, error) {
	if cfg == nil || cfg.Market == nil {
		return nil, errors.New("session: market is required")
	}
	if cfg.Exchange == nil || cfg.Breaker == nil || cfg.Storage == nil || cfg.NewStream == nil {
		return nil, errors.New("session: exchange, breaker, storage and stream are required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("session: logger cannot be nil")
	}
	applyDefaults(cfg)

	id := uuid.NewString()
	logger := cfg.Logger.With(
		zap.String("session-id", id),
		zap.String("market", cfg.Market.Slug))

	engine, err := strategy.New(&strategy.Config{
		Params: cfg.Params,
		Market: cfg.Market,
		Logger: logger,
		NewID:  cfg.NewID,
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	s := &Session{
		cfg:     cfg,
		id:      id,
		market:  cfg.Market,
		logger:  logger,
		now:     cfg.Now,
		books:   orderbook.New(&orderbook.Config{Logger: logger, Now: cfg.Now}),
		ledger:  inventory.New(&inventory.Config{OutcomeA: cfg.Market.OutcomeA, OutcomeB: cfg.Market.OutcomeB, Logger: logger}),
		engine:  engine,
		breaker: cfg.Breaker,
		store:   cfg.Storage,
	}
	s.recorder = newFillRecorder(cfg.Storage, cfg.Market.ConditionID, logger)
	s.orders = orders.New(&orders.Config{
		Exchange:       cfg.Exchange,
		Logger:         logger,
		AckTimeout:     cfg.AckTimeout,
		PollMaxBackoff: cfg.PollMaxBackoff,
		Now:            cfg.Now,
	})
	s.mode.Store(strategy.ModeOpen)

	if err := s.restore(); err != nil {
		s.recorder.Close()
		return nil, err
	}

	// Fills before the session start belong to orders this process never
	// placed; they would only be parked and dropped.
	s.stream = cfg.NewStream(s.now())
	s.events = s.stream.Events()

	return s, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.PersistInterval <= 0 {
		cfg.PersistInterval = 30 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.FillParkTimeout <= 0 {
		cfg.FillParkTimeout = 30 * time.Second
	}
	if cfg.ExecutionMode == "" {
		cfg.ExecutionMode = "live"
	}
}

// ID is the session's unique id.
func (s *Session) ID() string {
	return s.id
}

// Market is the market this session trades.
func (s *Session) Market() *types.BinaryMarket {
	return s.market
}

// Ready reports whether the book stream is connected and trading is live.
func (s *Session) Ready() bool {
	return s.streaming.Load() && !s.finished.Load()
}

// Run drives the session until final exit, ctx cancellation (which runs the
// shutdown sequence) or a fatal stream failure. It may be called once.
func (s *Session) Run(ctx context.Context) error {
	err := errors.New("session already run")
	s.runOnce.Do(func() {
		err = s.run(ctx)
	})
	return err
}

func (s *Session) run(ctx context.Context) error {
	s.startedAt = s.now()
	ActiveSessions.Inc()
	defer ActiveSessions.Dec()

	s.logger.Info("session-starting",
		zap.String("condition-id", s.market.ConditionID),
		zap.String("outcome-a", s.market.OutcomeA),
		zap.String("outcome-b", s.market.OutcomeB),
		zap.Time("end-time", s.market.EndTime),
		zap.String("c-target", s.engine.Params().CTarget.String()))

	// Order I/O and the streams outlive ctx so the shutdown sequence can
	// still cancel, flatten and observe fills.
	ioCtx, cancelIO := context.WithCancel(context.WithoutCancel(ctx))
	streamCtx, cancelStream := context.WithCancel(context.WithoutCancel(ctx))

	streamErr := make(chan error, 1)
	go func() {
		streamErr <- s.stream.Run(streamCtx)
	}()

	reason, runErr := s.loop(ctx, ioCtx, streamErr)

	switch reason {
	case ExitShutdown:
		s.shutdown(ioCtx, true)
	case ExitStream, ExitAuth:
		s.shutdown(ioCtx, false)
	}

	s.finished.Store(true)
	s.streaming.Store(false)

	cancelIO()
	s.orders.Close()
	cancelStream()
	if s.events != nil {
		for range s.events {
		}
		<-streamErr
	}

	s.recorder.Close()
	s.persist()
	s.recordSummary(context.WithoutCancel(ctx), reason)

	SessionsTotal.WithLabelValues(reason).Inc()
	s.logger.Info("session-finished",
		zap.String("exit-reason", reason),
		zap.String("delta-q", s.ledger.Exposure().String()),
		zap.String("locked-profit", s.ledger.Stats().LockedProfit.String()),
		zap.Error(runErr))

	return runErr
}

func (s *Session) recordSummary(ctx context.Context, reason string) {
	stats := s.ledger.Stats()
	a, b := s.ledger.Position(s.market.OutcomeA), s.ledger.Position(s.market.OutcomeB)

	summary := &storage.Summary{
		SessionID:       s.id,
		ConditionID:     s.market.ConditionID,
		Slug:            s.market.Slug,
		Mode:            s.cfg.ExecutionMode,
		StartedAt:       s.startedAt,
		EndedAt:         s.now(),
		ExitReason:      reason,
		FinalMode:       string(s.Mode()),
		QuantityA:       a.Quantity,
		QuantityB:       b.Quantity,
		VWAPA:           a.VWAP,
		VWAPB:           b.VWAP,
		FinalExposure:   stats.Exposure,
		LockedProfit:    stats.LockedProfit,
		CompletedRounds: stats.CompletedRounds,
		TotalTrades:     stats.TotalTrades,
		TotalVolume:     stats.TotalVolume,
	}

	recordCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.store.RecordSession(recordCtx, summary); err != nil {
		s.logger.Error("session-record-failed", zap.Error(err))
	}
}

// Mode is the strategy mode of the last evaluation.
func (s *Session) Mode() strategy.Mode {
	m, _ := s.mode.Load().(strategy.Mode)
	return m
}
