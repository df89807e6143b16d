package strategy

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mselser95/polymarket-boxspread/internal/inventory"
	"github.com/mselser95/polymarket-boxspread/internal/orderbook"
	"github.com/mselser95/polymarket-boxspread/internal/orders"
	"github.com/mselser95/polymarket-boxspread/pkg/config"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Mode is the engine state.
type Mode string

// Engine modes. Expired and Stopped are terminal for a session.
const (
	ModeOpen    Mode = "open"
	ModeHedging Mode = "hedging"
	ModeExpired Mode = "expired"
	ModeStopped Mode = "stopped"
)

// Books is the read side of the orderbook model.
type Books interface {
	Best(outcomeID string) (orderbook.Quote, error)
}

// Inventory is the read side of the ledger.
type Inventory interface {
	Exposure() decimal.Decimal
	VWAP(outcomeID string) (decimal.Decimal, bool)
}

// Action is what the session must do with an intent.
type Action string

// Intent actions.
const (
	ActionPlace   Action = "place"
	ActionCancel  Action = "cancel"
	ActionReplace Action = "replace"
)

// Intent is one order instruction. CancelIntentID is set for cancel and
// replace; Request is set for place and replace.
type Intent struct {
	Action         Action
	CancelIntentID string
	Request        orders.Request
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Mode       Mode
	Intents    []Intent
	Violations []error
}

// Engine decides trap and hedge orders from the current books, inventory and
// live orders. It keeps only its mode between calls and is not safe for
// concurrent use.
type Engine struct {
	params Params
	market *types.BinaryMarket
	logger *zap.Logger
	newID  func() string
	mode   Mode
}

// Config holds engine configuration.
type Config struct {
	Params Params
	Market *types.BinaryMarket
	Logger *zap.Logger
	NewID  func() string // defaults to uuid.NewString
}

// New creates an engine for one market. The market's own tick and minimum
// size take precedence when they are stricter.
func New(cfg *Config) (*Engine, error) {
	if cfg.Market == nil {
		return nil, fmt.Errorf("strategy: market is required")
	}

	params := cfg.Params
	if cfg.Market.TickSize > 0 {
		params.TickSize = decimal.NewFromFloat(cfg.Market.TickSize)
	}
	if minSize := decimal.NewFromFloat(cfg.Market.MinOrderSize); minSize.GreaterThan(params.MinOrderSize) {
		params.MinOrderSize = minSize
	}

	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("strategy params: %w", err)
	}

	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Engine{
		params: params,
		market: cfg.Market,
		logger: cfg.Logger,
		newID:  newID,
		mode:   ModeOpen,
	}, nil
}

// Mode returns the mode of the last evaluation.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Params returns the effective parameters.
func (e *Engine) Params() Params {
	return e.params
}

// SetTickSize applies a tick size change from the exchange.
func (e *Engine) SetTickSize(tick decimal.Decimal) {
	if tick.Sign() <= 0 || tick.Equal(e.params.TickSize) {
		return
	}
	e.logger.Info("strategy-tick-size-changed",
		zap.String("old", e.params.TickSize.String()),
		zap.String("new", tick.String()))
	e.params.TickSize = tick
}

// Stop ends intent generation for good.
func (e *Engine) Stop() {
	e.setMode(ModeStopped, decimal.Zero)
}

// legOrders are the live orders of one role grouped by outcome.
type legOrders map[string][]orders.Order

func groupLive(live []orders.Order) (traps, hedges legOrders) {
	traps, hedges = legOrders{}, legOrders{}
	for _, o := range live {
		if !wanted(o) {
			continue
		}
		switch o.Role {
		case orders.RoleTrap:
			traps[o.OutcomeID] = append(traps[o.OutcomeID], o)
		case orders.RoleHedge:
			hedges[o.OutcomeID] = append(hedges[o.OutcomeID], o)
		}
	}
	return traps, hedges
}

// wanted reports whether o still counts toward its leg. Orders on their way
// out, including a place whose cancel is deferred until the ack, do not.
func wanted(o orders.Order) bool {
	return o.Status != orders.StatusPendingCancel && !o.Status.Terminal() && !o.CancelRequested
}

// Evaluate recomputes the desired orders from scratch.
func (e *Engine) Evaluate(now time.Time, books Books, inv Inventory, live []orders.Order) Decision {
	if e.mode == ModeStopped {
		return Decision{Mode: ModeStopped}
	}

	exposure := inv.Exposure()
	tte := e.market.TimeToExpiry(now)

	if e.mode == ModeExpired || tte <= e.params.FinalExitBuffer {
		e.setMode(ModeExpired, exposure)
		d := Decision{Mode: ModeExpired}
		for _, o := range live {
			if wanted(o) {
				d.cancel(o)
			}
		}
		EvaluationsTotal.WithLabelValues(string(d.Mode)).Inc()
		return d
	}

	traps, hedges := groupLive(live)
	abs := exposure.Abs()

	var d Decision
	if e.needsHedge(abs) {
		e.setMode(ModeHedging, exposure)
		d.Mode = ModeHedging
		e.hedge(&d, tte, exposure, books, inv, traps, hedges)
	} else {
		e.setMode(ModeOpen, exposure)
		d.Mode = ModeOpen
		e.open(&d, tte, abs, books, traps, hedges)
	}

	for _, err := range d.Violations {
		e.logger.Warn("strategy-intent-dropped", zap.Error(err))
	}
	EvaluationsTotal.WithLabelValues(string(d.Mode)).Inc()

	return d
}

func (e *Engine) needsHedge(abs decimal.Decimal) bool {
	if !abs.GreaterThan(e.params.MinHedgeThreshold) {
		return false
	}
	_, ok := e.params.HedgeSize(abs)
	return ok
}

func (e *Engine) open(d *Decision, tte time.Duration, abs decimal.Decimal, books Books, traps, hedges legOrders) {
	for _, leg := range e.market.Outcomes() {
		d.cancelAll(hedges[leg])
	}

	if tte <= e.params.ExpiryBuffer || abs.GreaterThanOrEqual(e.params.MaxExposure) {
		for _, leg := range e.market.Outcomes() {
			d.cancelAll(traps[leg])
		}
		return
	}

	size, ok := e.params.TrapSizeFor(abs)
	if !ok {
		for _, leg := range e.market.Outcomes() {
			d.cancelAll(traps[leg])
		}
		return
	}

	targets := make(map[string]decimal.Decimal, 2)
	for _, leg := range e.market.Outcomes() {
		opp, err := books.Best(e.market.Opposite(leg))
		if err != nil || !opp.HasAsk {
			WithheldTotal.WithLabelValues(string(orders.RoleTrap)).Inc()
			continue
		}

		price, err := e.params.TrapPrice(opp.BestAsk)
		if err != nil {
			InvariantViolationsTotal.WithLabelValues("trap_range").Inc()
			d.Violations = append(d.Violations, fmt.Errorf("%s trap: %w", e.market.Label(leg), err))
			d.cancelAll(traps[leg])
			delete(traps, leg)
			continue
		}

		TrapPrice.WithLabelValues(e.market.Label(leg)).Set(price.InexactFloat64())
		targets[leg] = price
	}

	force := e.checkPairCost(d, targets, traps)

	for _, leg := range e.market.Outcomes() {
		price, ok := targets[leg]
		if !ok {
			continue
		}
		e.maintain(d, traps[leg], orders.Request{
			IntentID:  e.intentID(orders.RoleTrap),
			OutcomeID: leg,
			Side:      inventory.Buy,
			Role:      orders.RoleTrap,
			Price:     price,
			Size:      size,
		}, false, force[leg])
	}
}

// checkPairCost drops targets whose pair would cost more than C_target. Each
// leg is priced at what will rest after maintain: a trap within the reprice
// tolerance of its target keeps its price, and a leg without a fresh target
// keeps its resting trap. When only the kept prices break the bound, the
// returned legs are repriced to their targets regardless of tolerance.
func (e *Engine) checkPairCost(d *Decision, targets map[string]decimal.Decimal, traps legOrders) map[string]bool {
	a, b := e.market.OutcomeA, e.market.OutcomeB

	effective := func(leg string) (price decimal.Decimal, kept, ok bool) {
		target, hasTarget := targets[leg]
		resting := traps[leg]
		switch {
		case hasTarget && len(resting) > 0 &&
			resting[0].Price.Sub(target).Abs().LessThanOrEqual(e.params.RepriceTolerance):
			return resting[0].Price, true, true
		case hasTarget:
			return target, false, true
		case len(resting) > 0:
			return resting[0].Price, false, true
		}
		return decimal.Zero, false, false
	}

	pa, keptA, okA := effective(a)
	pb, keptB, okB := effective(b)
	if !okA || !okB || pa.Add(pb).LessThanOrEqual(e.params.CTarget) {
		return nil
	}

	if keptA || keptB {
		ta, tb := pa, pb
		if keptA {
			ta = targets[a]
		}
		if keptB {
			tb = targets[b]
		}
		if ta.Add(tb).LessThanOrEqual(e.params.CTarget) {
			return map[string]bool{a: keptA, b: keptB}
		}
	}

	InvariantViolationsTotal.WithLabelValues("pair_cost").Inc()
	d.Violations = append(d.Violations, fmt.Errorf("trap pair %s + %s exceeds %s: %w",
		pa, pb, e.params.CTarget, ErrInvariantViolation))

	for _, leg := range []string{a, b} {
		if _, ok := targets[leg]; ok {
			delete(targets, leg)
			d.cancelAll(traps[leg])
		}
	}
	return nil
}

func (e *Engine) hedge(d *Decision, tte time.Duration, exposure decimal.Decimal, books Books, inv Inventory, traps, hedges legOrders) {
	long := e.market.OutcomeA
	if exposure.Sign() < 0 {
		long = e.market.OutcomeB
	}
	target := e.market.Opposite(long)

	for _, leg := range e.market.Outcomes() {
		d.cancelAll(traps[leg])
	}
	d.cancelAll(hedges[long])

	vwap, ok := inv.VWAP(long)
	if !ok {
		WithheldTotal.WithLabelValues(string(orders.RoleHedge)).Inc()
		return
	}

	ceiling, err := e.params.HedgeCeiling(vwap)
	if err != nil {
		InvariantViolationsTotal.WithLabelValues("hedge_range").Inc()
		d.Violations = append(d.Violations, fmt.Errorf("%s hedge: %w", e.market.Label(target), err))
		d.cancelAll(hedges[target])
		return
	}
	HedgeCeiling.Set(ceiling.InexactFloat64())

	size, _ := e.params.HedgeSize(exposure.Abs())

	opp, err := books.Best(target)
	if err != nil {
		WithheldTotal.WithLabelValues(string(orders.RoleHedge)).Inc()
		return
	}

	allowLoss := e.params.HedgeCrossPolicy == config.HedgePolicyCross &&
		tte-e.params.FinalExitBuffer <= e.params.HedgeCrossWindow
	price := e.params.HedgePrice(ceiling, opp.BestAsk, opp.HasAsk, allowLoss)

	if price.GreaterThan(ceiling) {
		e.logger.Warn("hedge-crossing-at-loss",
			zap.String("ceiling", ceiling.String()),
			zap.String("price", price.String()),
			zap.Duration("time-to-expiry", tte))
	}

	e.maintain(d, hedges[target], orders.Request{
		IntentID:  e.intentID(orders.RoleHedge),
		OutcomeID: target,
		Side:      inventory.Buy,
		Role:      orders.RoleHedge,
		Price:     price,
		Size:      size,
	}, true, false)
}

// maintain keeps one resting order per leg at the wanted price. Orders that
// drifted past the tolerance, or any order when force is set, are replaced;
// extras are cancelled.
func (e *Engine) maintain(d *Decision, resting []orders.Order, want orders.Request, matchSize, force bool) {
	if len(resting) == 0 {
		d.place(want)
		return
	}

	current := resting[0]
	for _, extra := range resting[1:] {
		d.cancel(extra)
	}

	drift := current.Price.Sub(want.Price).Abs()
	resize := matchSize && !current.Remaining().Equal(want.Size)
	if force || drift.GreaterThan(e.params.RepriceTolerance) || resize {
		d.replace(current, want)
	}
}

// Flatten builds the one aggressive sell of the unhedged long leg used at
// shutdown. ok is false when inventory is balanced.
func (e *Engine) Flatten(books Books, inv Inventory) (orders.Request, bool) {
	exposure := inv.Exposure()
	if exposure.IsZero() {
		return orders.Request{}, false
	}

	long := e.market.OutcomeA
	if exposure.Sign() < 0 {
		long = e.market.OutcomeB
	}

	q, err := books.Best(long)
	hasBid := err == nil && q.HasBid

	return orders.Request{
		IntentID:    e.intentID(orders.RoleFlatten),
		OutcomeID:   long,
		Side:        inventory.Sell,
		Role:        orders.RoleFlatten,
		Price:       e.params.FlattenPrice(q.BestBid, hasBid),
		Size:        exposure.Abs(),
		TimeInForce: orders.FOK,
	}, true
}

func (e *Engine) intentID(role orders.Role) string {
	return string(role) + "-" + e.newID()
}

func (e *Engine) setMode(m Mode, exposure decimal.Decimal) {
	if e.mode == m {
		return
	}
	ModeTransitionsTotal.WithLabelValues(string(m)).Inc()
	e.logger.Info("strategy-mode-changed",
		zap.String("from", string(e.mode)),
		zap.String("to", string(m)),
		zap.String("delta-q", exposure.String()))
	e.mode = m
}

func (d *Decision) place(req orders.Request) {
	IntentsTotal.WithLabelValues(string(ActionPlace), string(req.Role)).Inc()
	d.Intents = append(d.Intents, Intent{Action: ActionPlace, Request: req})
}

func (d *Decision) cancel(o orders.Order) {
	IntentsTotal.WithLabelValues(string(ActionCancel), string(o.Role)).Inc()
	d.Intents = append(d.Intents, Intent{Action: ActionCancel, CancelIntentID: o.IntentID})
}

func (d *Decision) cancelAll(resting []orders.Order) {
	for _, o := range resting {
		d.cancel(o)
	}
}

func (d *Decision) replace(o orders.Order, req orders.Request) {
	IntentsTotal.WithLabelValues(string(ActionReplace), string(req.Role)).Inc()
	d.Intents = append(d.Intents, Intent{Action: ActionReplace, CancelIntentID: o.IntentID, Request: req})
}

// Places returns the requests of every place and replace intent.
func (d Decision) Places() []orders.Request {
	var out []orders.Request
	for _, in := range d.Intents {
		if in.Action != ActionCancel {
			out = append(out, in.Request)
		}
	}
	return out
}

// Cancels returns the intent ids cancelled outright or by replacement.
func (d Decision) Cancels() []string {
	var out []string
	for _, in := range d.Intents {
		if in.Action != ActionPlace {
			out = append(out, in.CancelIntentID)
		}
	}
	return out
}
