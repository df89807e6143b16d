package orderbook

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrSequenceGap means a diff did not follow the last applied sequence.
	// The ladder is left untouched and the caller must resnapshot.
	ErrSequenceGap = errors.New("orderbook sequence gap")

	// ErrUnknownBook means no snapshot has been applied for the outcome yet.
	ErrUnknownBook = errors.New("orderbook unknown")

	// ErrStaleBook means the book is crossed, disconnected or awaiting a resync.
	ErrStaleBook = errors.New("orderbook stale")
)

// Side of a ladder.
type Side string

// Ladder sides, named after the wire values in price_change events.
const (
	Bid Side = "BUY"
	Ask Side = "SELL"
)

// Level is an aggregate size resting at one price.
type Level struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// Change sets the aggregate size at a price. Zero size removes the level.
type Change struct {
	Side  Side
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Quote is the top of one outcome's book.
type Quote struct {
	OutcomeID   string          `json:"outcome_id"`
	BestBid     decimal.Decimal `json:"best_bid"`
	BestBidSize decimal.Decimal `json:"best_bid_size"`
	BestAsk     decimal.Decimal `json:"best_ask"`
	BestAskSize decimal.Decimal `json:"best_ask_size"`
	HasBid      bool            `json:"has_bid"`
	HasAsk      bool            `json:"has_ask"`
	Sequence    uint64          `json:"sequence"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Ladder is one outcome's price ladder.
type Ladder struct {
	OutcomeID    string
	LastSequence uint64
	UpdatedAt    time.Time

	bids  map[string]Level
	asks  map[string]Level
	stale bool
}

func newLadder(outcomeID string) *Ladder {
	return &Ladder{
		OutcomeID: outcomeID,
		bids:      make(map[string]Level),
		asks:      make(map[string]Level),
	}
}

func (l *Ladder) side(s Side) map[string]Level {
	if s == Bid {
		return l.bids
	}
	return l.asks
}

func (l *Ladder) set(s Side, price, size decimal.Decimal) {
	levels := l.side(s)
	key := price.String()
	if size.Sign() <= 0 {
		delete(levels, key)
		return
	}
	levels[key] = Level{Price: price, Size: size}
}

// best returns the highest bid or lowest ask.
func (l *Ladder) best(s Side) (Level, bool) {
	var out Level
	found := false
	for _, lvl := range l.side(s) {
		if !found {
			out, found = lvl, true
			continue
		}
		if s == Bid && lvl.Price.GreaterThan(out.Price) {
			out = lvl
		}
		if s == Ask && lvl.Price.LessThan(out.Price) {
			out = lvl
		}
	}
	return out, found
}

func (l *Ladder) crossed() bool {
	bid, hasBid := l.best(Bid)
	ask, hasAsk := l.best(Ask)
	return hasBid && hasAsk && bid.Price.GreaterThanOrEqual(ask.Price)
}

// sorted returns levels best first.
func (l *Ladder) sorted(s Side, depth int) []Level {
	levels := make([]Level, 0, len(l.side(s)))
	for _, lvl := range l.side(s) {
		levels = append(levels, lvl)
	}
	sort.Slice(levels, func(i, j int) bool {
		if s == Bid {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
	if depth > 0 && len(levels) > depth {
		levels = levels[:depth]
	}
	return levels
}

// Model holds the ladders of every outcome in the active market.
// Mutations come from the session loop; reads may come from any goroutine.
type Model struct {
	mu     sync.RWMutex
	books  map[string]*Ladder
	logger *zap.Logger
	now    func() time.Time
}

// Config holds orderbook model configuration.
type Config struct {
	Logger *zap.Logger
	Now    func() time.Time // defaults to time.Now
}

// New creates an empty model.
func New(cfg *Config) *Model {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Model{
		books:  make(map[string]*Ladder),
		logger: cfg.Logger,
		now:    now,
	}
}

// ApplySnapshot replaces the outcome's ladder wholesale and sets its sequence.
func (m *Model) ApplySnapshot(outcomeID string, sequence uint64, bids, asks []Level) {
	timer := prometheus.NewTimer(UpdateProcessingDuration)
	defer timer.ObserveDuration()
	UpdatesTotal.WithLabelValues("snapshot").Inc()

	ladder := newLadder(outcomeID)
	for _, lvl := range bids {
		ladder.set(Bid, lvl.Price, lvl.Size)
	}
	for _, lvl := range asks {
		ladder.set(Ask, lvl.Price, lvl.Size)
	}
	ladder.LastSequence = sequence
	ladder.UpdatedAt = m.now()
	ladder.stale = ladder.crossed()

	m.mu.Lock()
	m.books[outcomeID] = ladder
	BooksTracked.Set(float64(len(m.books)))
	m.mu.Unlock()

	if ladder.stale {
		CrossedBooksTotal.Inc()
		m.logger.Warn("orderbook-snapshot-crossed",
			zap.String("outcome-id", outcomeID),
			zap.Uint64("sequence", sequence))
		return
	}

	m.logger.Debug("orderbook-snapshot-applied",
		zap.String("outcome-id", outcomeID),
		zap.Uint64("sequence", sequence),
		zap.Int("bids", len(ladder.bids)),
		zap.Int("asks", len(ladder.asks)))
}

// ApplyDiff applies incremental changes when sequence directly follows the
// last applied one. Any other sequence returns ErrSequenceGap and marks the
// book stale until the next snapshot.
func (m *Model) ApplyDiff(outcomeID string, sequence uint64, changes []Change) error {
	timer := prometheus.NewTimer(UpdateProcessingDuration)
	defer timer.ObserveDuration()

	m.mu.Lock()
	defer m.mu.Unlock()

	ladder, ok := m.books[outcomeID]
	if !ok {
		return fmt.Errorf("apply diff to %s: %w", outcomeID, ErrUnknownBook)
	}

	if sequence != ladder.LastSequence+1 {
		ladder.stale = true
		SequenceGapsTotal.Inc()
		return fmt.Errorf("apply diff to %s: expected %d, got %d: %w",
			outcomeID, ladder.LastSequence+1, sequence, ErrSequenceGap)
	}

	UpdatesTotal.WithLabelValues("diff").Inc()

	for _, c := range changes {
		ladder.set(c.Side, c.Price, c.Size)
	}
	ladder.LastSequence = sequence
	ladder.UpdatedAt = m.now()

	wasStale := ladder.stale
	ladder.stale = ladder.crossed()
	if ladder.stale && !wasStale {
		CrossedBooksTotal.Inc()
		m.logger.Warn("orderbook-crossed",
			zap.String("outcome-id", outcomeID),
			zap.Uint64("sequence", sequence))
	}

	return nil
}

// Best returns the top of book. It fails with ErrUnknownBook before the first
// snapshot and ErrStaleBook while the book is crossed or awaiting a resync.
func (m *Model) Best(outcomeID string) (Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ladder, ok := m.books[outcomeID]
	if !ok {
		return Quote{}, ErrUnknownBook
	}
	if ladder.stale {
		return Quote{}, ErrStaleBook
	}

	q := Quote{
		OutcomeID: outcomeID,
		Sequence:  ladder.LastSequence,
		UpdatedAt: ladder.UpdatedAt,
	}
	if bid, found := ladder.best(Bid); found {
		q.BestBid, q.BestBidSize, q.HasBid = bid.Price, bid.Size, true
	}
	if ask, found := ladder.best(Ask); found {
		q.BestAsk, q.BestAskSize, q.HasAsk = ask.Price, ask.Size, true
	}

	return q, nil
}

// MarkStale flags one outcome's book as untrusted until its next snapshot.
func (m *Model) MarkStale(outcomeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ladder, ok := m.books[outcomeID]; ok {
		ladder.stale = true
	}
}

// MarkAllStale flags every book, e.g. after the stream disconnects.
func (m *Model) MarkAllStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ladder := range m.books {
		ladder.stale = true
	}
}

// IsStale reports whether Best would refuse to quote the outcome.
func (m *Model) IsStale(outcomeID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ladder, ok := m.books[outcomeID]
	return !ok || ladder.stale
}

// LastSequence returns the last applied sequence, or false for an unknown book.
func (m *Model) LastSequence(outcomeID string) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ladder, ok := m.books[outcomeID]
	if !ok {
		return 0, false
	}
	return ladder.LastSequence, true
}

// Levels returns up to depth levels per side, best first. Depth <= 0 returns all.
func (m *Model) Levels(outcomeID string, depth int) (bids, asks []Level, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ladder, ok := m.books[outcomeID]
	if !ok {
		return nil, nil, ErrUnknownBook
	}
	return ladder.sorted(Bid, depth), ladder.sorted(Ask, depth), nil
}

// Reset forgets every book, e.g. at market rollover.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.books = make(map[string]*Ladder)
	BooksTracked.Set(0)
}
