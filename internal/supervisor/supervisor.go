package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mselser95/polymarket-boxspread/internal/inventory"
	"github.com/mselser95/polymarket-boxspread/internal/orderbook"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/mselser95/polymarket-boxspread/pkg/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrAuthentication means the user channel or REST API refused our
// credentials. It is fatal for the session.
var ErrAuthentication = errors.New("stream authentication failed")

// Source provides the REST data used to recover from gaps.
type Source interface {
	BookSnapshot(ctx context.Context, tokenID string) (*types.BookMessage, error)
	TradesSince(ctx context.Context, market string, after time.Time) ([]types.TradeRecord, error)
}

// EventKind identifies a supervisor event.
type EventKind string

// Events posted to the owning loop, in stream order.
const (
	EventSnapshot  EventKind = "snapshot"   // replace an outcome's ladder
	EventDiff      EventKind = "diff"       // apply changes at Sequence
	EventStale     EventKind = "stale"      // books untrusted until the next snapshots
	EventTickSize  EventKind = "tick_size"  // exchange changed an outcome's tick
	EventFill      EventKind = "fill"       // candidate fill, possibly not ours
	EventConnected EventKind = "connected"  // stream (re)connected
	EventDown      EventKind = "disconnect" // stream lost
)

// Stream names.
const (
	StreamMarket = "market"
	StreamUser   = "user"
)

// Event is one ordered update from a stream.
type Event struct {
	Kind      EventKind
	Stream    string
	OutcomeID string
	Sequence  uint64

	Bids    []orderbook.Level
	Asks    []orderbook.Level
	Changes []orderbook.Change

	TickSize     decimal.Decimal
	MinOrderSize decimal.Decimal

	Fill inventory.Fill

	Epoch uint64
	Err   error
	At    time.Time
}

// Config holds supervisor configuration.
type Config struct {
	Market *types.BinaryMarket
	Source Source

	MarketURL string
	UserURL   string // empty disables the fill stream

	APIKey     string
	Secret     string
	Passphrase string

	// FillsSince is where fill catch-up starts, normally the ledger's last fill.
	FillsSince time.Time

	DialTimeout       time.Duration
	PingInterval      time.Duration
	MessageBufferSize int
	Retry             websocket.RetryConfig

	// SnapshotWait is how long a reconnected stream may take to send its own
	// book snapshots before they are fetched over REST.
	SnapshotWait time.Duration

	EventBuffer int
	Logger      *zap.Logger
}

// Supervisor owns the book and fill streams of one market and turns their
// frames into ordered events. It never mutates session state itself.
type Supervisor struct {
	cfg    *Config
	logger *zap.Logger
	market *types.BinaryMarket
	source Source

	marketConn *websocket.Conn
	userConn   *websocket.Conn

	events chan Event
	resync chan struct{}

	mu         sync.Mutex
	fillsSince time.Time
}

// New creates a supervisor. Nothing is dialed until Run.
func New(cfg *Config) *Supervisor {
	if cfg.SnapshotWait <= 0 {
		cfg.SnapshotWait = 2 * time.Second
	}
	buf := cfg.EventBuffer
	if buf <= 0 {
		buf = 1024
	}

	s := &Supervisor{
		cfg:        cfg,
		logger:     cfg.Logger.With(zap.String("market", cfg.Market.Slug)),
		market:     cfg.Market,
		source:     cfg.Source,
		events:     make(chan Event, buf),
		resync:     make(chan struct{}, 1),
		fillsSince: cfg.FillsSince,
	}

	s.marketConn = websocket.New(websocket.Config{
		Name:              StreamMarket,
		URL:               cfg.MarketURL,
		DialTimeout:       cfg.DialTimeout,
		PingInterval:      cfg.PingInterval,
		MessageBufferSize: cfg.MessageBufferSize,
		Retry:             cfg.Retry,
		Subscribe: func() (any, error) {
			return types.MarketSubscription{Type: StreamMarket, AssetsIDs: cfg.Market.Outcomes()}, nil
		},
		Logger: cfg.Logger,
	})

	if cfg.UserURL != "" {
		s.userConn = websocket.New(websocket.Config{
			Name:              StreamUser,
			URL:               cfg.UserURL,
			DialTimeout:       cfg.DialTimeout,
			PingInterval:      cfg.PingInterval,
			MessageBufferSize: cfg.MessageBufferSize,
			Retry:             cfg.Retry,
			Subscribe: func() (any, error) {
				return types.UserSubscription{
					Type:    StreamUser,
					Markets: []string{cfg.Market.ConditionID},
					Auth: types.UserAuth{
						APIKey:     cfg.APIKey,
						Secret:     cfg.Secret,
						Passphrase: cfg.Passphrase,
					},
				}, nil
			},
			Logger: cfg.Logger,
		})
	}

	return s
}

// Events delivers stream events until Run returns, then is closed.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// Resync asks for fresh book snapshots, e.g. after the owner saw a sequence
// gap. Requests made while one is pending are coalesced.
func (s *Supervisor) Resync() {
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

// Run supervises both streams until ctx is done or one fails for good.
// A refused credential returns ErrAuthentication.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.events)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 4)
	var wg sync.WaitGroup

	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("%s stream: %w", name, err)
			}
		}()
	}

	start("market-conn", s.marketConn.Run)
	start("market-loop", s.runMarket)
	if s.userConn != nil {
		start("user-conn", s.userConn.Run)
		start("user-loop", s.runUser)
	}

	s.logger.Info("supervisor-started",
		zap.Strings("outcomes", s.market.Outcomes()),
		zap.Bool("user-stream", s.userConn != nil))

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
		if errors.Is(err, websocket.ErrHandshakeUnauthorized) {
			err = fmt.Errorf("%w: %w", ErrAuthentication, err)
		}
		s.logger.Error("supervisor-stream-failed", zap.Error(err))
	}

	cancel()
	wg.Wait()

	if err != nil {
		return err
	}
	return ctx.Err()
}

// post delivers an event, blocking while the owner catches up.
func (s *Supervisor) post(ctx context.Context, ev Event) bool {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case s.events <- ev:
		EventsTotal.WithLabelValues(string(ev.Kind)).Inc()
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Supervisor) lastFill() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fillsSince
}

func (s *Supervisor) observeFill(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at.After(s.fillsSince) {
		s.fillsSince = at
	}
}
