package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mselser95/polymarket-boxspread/internal/inventory"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Manager tracks every order of a session by intent id. Exchange calls run in
// goroutines and their results come back through Events, to be applied by
// the owning loop with Reconcile.
type Manager struct {
	mu         sync.RWMutex
	orders     map[string]*Order // key: intent id
	byExchange map[string]string // exchange order id -> intent id

	exchange    Exchange
	logger      *zap.Logger
	ackTimeout  time.Duration
	pollInitial time.Duration
	pollMax     time.Duration
	pollMult    float64
	now         func() time.Time

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Config holds order manager configuration.
type Config struct {
	Exchange           Exchange
	Logger             *zap.Logger
	AckTimeout         time.Duration
	PollInitialBackoff time.Duration
	PollMaxBackoff     time.Duration
	PollBackoffMult    float64
	EventBuffer        int
	Now                func() time.Time
}

// New creates an order manager.
func New(cfg *Config) *Manager {
	m := &Manager{
		orders:      make(map[string]*Order),
		byExchange:  make(map[string]string),
		exchange:    cfg.Exchange,
		logger:      cfg.Logger,
		ackTimeout:  cfg.AckTimeout,
		pollInitial: cfg.PollInitialBackoff,
		pollMax:     cfg.PollMaxBackoff,
		pollMult:    cfg.PollBackoffMult,
		now:         cfg.Now,
		done:        make(chan struct{}),
	}

	if m.ackTimeout <= 0 {
		m.ackTimeout = 5 * time.Second
	}
	if m.pollInitial <= 0 {
		m.pollInitial = 250 * time.Millisecond
	}
	if m.pollMax <= 0 {
		m.pollMax = 5 * time.Second
	}
	if m.pollMult < 1 {
		m.pollMult = 2
	}
	if m.now == nil {
		m.now = time.Now
	}

	buf := cfg.EventBuffer
	if buf <= 0 {
		buf = 256
	}
	m.events = make(chan Event, buf)

	return m
}

// Events delivers exchange call results.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Place records the intent as PENDING_PLACE and submits it.
func (m *Manager) Place(ctx context.Context, req Request) error {
	if req.Size.Sign() <= 0 {
		return fmt.Errorf("place %s: size %s must be positive", req.IntentID, req.Size)
	}
	if req.Price.Sign() <= 0 || req.Price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("place %s: price %s outside (0, 1)", req.IntentID, req.Price)
	}
	if req.TimeInForce == "" {
		req.TimeInForce = GTC
	}

	m.mu.Lock()
	if existing, ok := m.orders[req.IntentID]; ok && !existing.Status.Terminal() {
		m.mu.Unlock()
		DuplicateIntentsTotal.Inc()
		return fmt.Errorf("place %s: %w", req.IntentID, ErrDuplicateIntent)
	}

	now := m.now()
	m.orders[req.IntentID] = &Order{
		IntentID:    req.IntentID,
		OutcomeID:   req.OutcomeID,
		Side:        req.Side,
		Role:        req.Role,
		TimeInForce: req.TimeInForce,
		Price:       req.Price,
		Size:        req.Size,
		Status:      StatusPendingPlace,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.updateGauges()
	m.mu.Unlock()

	OrdersSubmittedTotal.WithLabelValues(string(req.Role)).Inc()
	m.logger.Info("order-placing",
		zap.String("intent-id", req.IntentID),
		zap.String("role", string(req.Role)),
		zap.String("outcome-id", req.OutcomeID),
		zap.String("side", string(req.Side)),
		zap.String("price", req.Price.String()),
		zap.String("size", req.Size.String()),
		zap.String("tif", string(req.TimeInForce)))

	m.wg.Add(1)
	go m.submit(ctx, req)

	return nil
}

func (m *Manager) submit(ctx context.Context, req Request) {
	defer m.wg.Done()

	callCtx, cancel := context.WithTimeout(ctx, m.ackTimeout)
	defer cancel()

	start := time.Now()
	ack, err := m.exchange.SubmitOrder(callCtx, req)
	SubmitDurationSeconds.Observe(time.Since(start).Seconds())

	m.post(submitResult(req.IntentID, ack, err))
}

func submitResult(intentID string, ack Ack, err error) Event {
	if err == nil {
		return Event{Kind: EventAck, IntentID: intentID, ExchangeOrderID: ack.ExchangeOrderID}
	}

	var rejectErr *RejectError
	if errors.As(err, &rejectErr) {
		return Event{Kind: EventReject, IntentID: intentID, Reason: rejectErr.Reason, Code: rejectErr.Code, Err: err}
	}

	// A refused credential never placed the order.
	if errors.Is(err, types.ErrUnauthorized) {
		return Event{Kind: EventReject, IntentID: intentID, Reason: "unauthorized", Err: err}
	}

	var indErr *IndeterminateError
	if errors.As(err, &indErr) {
		return Event{Kind: EventIndeterminate, IntentID: intentID, ExchangeOrderID: indErr.ExchangeOrderID, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Event{Kind: EventIndeterminate, IntentID: intentID, Err: err}
	}

	return Event{Kind: EventReject, IntentID: intentID, Reason: err.Error(), Err: err}
}

// Cancel requests cancellation. It is a no-op for terminal and PENDING_CANCEL
// orders. A cancel during PENDING_PLACE is sent once the ack arrives.
func (m *Manager) Cancel(ctx context.Context, intentID string) error {
	m.mu.Lock()
	o, ok := m.orders[intentID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("cancel %s: %w", intentID, ErrUnknownIntent)
	}

	switch o.Status {
	case StatusFilled, StatusCancelled, StatusRejected, StatusPendingCancel:
		m.mu.Unlock()
		return nil
	case StatusPendingPlace:
		o.CancelRequested = true
		m.mu.Unlock()
		m.logger.Debug("order-cancel-deferred-until-ack", zap.String("intent-id", intentID))
		return nil
	}

	o.beforeCancel = o.Status
	o.CancelRequested = false
	o.Status = StatusPendingCancel
	o.UpdatedAt = m.now()
	exchangeID := o.ExchangeOrderID
	m.updateGauges()
	m.mu.Unlock()

	m.logger.Info("order-cancelling",
		zap.String("intent-id", intentID),
		zap.String("exchange-order-id", exchangeID))

	m.wg.Add(1)
	go m.cancel(ctx, intentID, exchangeID)

	return nil
}

func (m *Manager) cancel(ctx context.Context, intentID, exchangeID string) {
	defer m.wg.Done()

	callCtx, cancel := context.WithTimeout(ctx, m.ackTimeout)
	defer cancel()

	CancelsTotal.Inc()
	err := m.exchange.CancelOrder(callCtx, exchangeID)

	ev := Event{IntentID: intentID, ExchangeOrderID: exchangeID, Err: err}
	var rejectErr *RejectError
	switch {
	case err == nil:
		ev.Kind = EventCancelAck
	case errors.As(err, &rejectErr):
		ev.Kind = EventCancelReject
		ev.Reason = rejectErr.Reason
		ev.Code = rejectErr.Code
	case errors.Is(err, types.ErrUnauthorized):
		ev.Kind = EventCancelReject
		ev.Reason = "unauthorized"
	default:
		ev.Kind = EventCancelIndeterminate
	}
	m.post(ev)
}

// Replace cancels the old intent and places a new one under a fresh intent id.
func (m *Manager) Replace(ctx context.Context, oldIntentID string, req Request) error {
	if oldIntentID == req.IntentID {
		return fmt.Errorf("replace %s: %w", oldIntentID, ErrDuplicateIntent)
	}

	err := m.Cancel(ctx, oldIntentID)
	if err != nil && !errors.Is(err, ErrUnknownIntent) {
		return fmt.Errorf("replace cancel: %w", err)
	}

	err = m.Place(ctx, req)
	if err != nil {
		return fmt.Errorf("replace place: %w", err)
	}

	return nil
}

// Reconcile applies an exchange result and returns the order's new state.
// Follow-up calls (deferred cancels, status polls) run under ctx.
func (m *Manager) Reconcile(ctx context.Context, ev Event) (Order, error) {
	m.mu.Lock()
	o, ok := m.orders[ev.IntentID]
	if !ok {
		m.mu.Unlock()
		return Order{}, fmt.Errorf("reconcile %s %s: %w", ev.Kind, ev.IntentID, ErrUnknownIntent)
	}

	prev := o.Status
	var sendCancel, resendCancel, poll bool

	switch ev.Kind {
	case EventAck:
		m.setExchangeID(o, ev.ExchangeOrderID)
		if o.Status == StatusPendingPlace {
			o.Status = StatusOpen
			sendCancel = o.CancelRequested
		}

	case EventReject:
		if o.Status == StatusPendingPlace {
			o.Status = StatusRejected
			o.Reason = ev.Reason
			RejectsTotal.Inc()
		}

	case EventIndeterminate:
		IndeterminateTotal.Inc()
		if ev.ExchangeOrderID == "" && o.ExchangeOrderID == "" {
			// Nothing to query by; the order cannot have been matched to us.
			o.Status = StatusRejected
			o.Reason = "indeterminate without exchange order id"
			break
		}
		m.setExchangeID(o, ev.ExchangeOrderID)
		poll = true

	case EventCancelAck:
		if !o.Status.Terminal() {
			o.Status = StatusCancelled
		}

	case EventCancelReject:
		if o.Status == StatusPendingCancel {
			o.Status = o.beforeCancel
			o.Reason = ev.Reason
		}

	case EventCancelIndeterminate:
		IndeterminateTotal.Inc()
		if o.Status == StatusPendingCancel {
			poll = true
		}

	case EventStatus:
		sendCancel, resendCancel = m.applyReport(o, ev.Report)
	}

	o.UpdatedAt = m.now()
	out := *o
	exchangeID := o.ExchangeOrderID
	m.updateGauges()
	m.mu.Unlock()

	if prev != out.Status {
		TransitionsTotal.WithLabelValues(string(out.Status)).Inc()
		m.logger.Info("order-transition",
			zap.String("intent-id", out.IntentID),
			zap.String("exchange-order-id", exchangeID),
			zap.String("event", string(ev.Kind)),
			zap.String("from", string(prev)),
			zap.String("to", string(out.Status)),
			zap.String("reason", out.Reason))
	}

	switch {
	case sendCancel:
		if err := m.Cancel(ctx, out.IntentID); err != nil {
			return out, err
		}
	case resendCancel:
		m.wg.Add(1)
		go m.cancel(ctx, out.IntentID, exchangeID)
	case poll:
		m.logger.Warn("order-outcome-indeterminate-polling",
			zap.String("intent-id", out.IntentID),
			zap.String("exchange-order-id", exchangeID),
			zap.Error(ev.Err))
		m.wg.Add(1)
		go m.pollStatus(ctx, out.IntentID, exchangeID)
	}

	return out, nil
}

// applyReport folds a status query result into o. Caller holds the lock.
func (m *Manager) applyReport(o *Order, r StatusReport) (sendCancel, resendCancel bool) {
	if r.Filled.GreaterThan(o.Filled) {
		o.Filled = r.Filled
	}

	if !r.Found {
		switch o.Status {
		case StatusPendingPlace:
			o.Status = StatusRejected
			o.Reason = "order not found after indeterminate submit"
		case StatusPendingCancel:
			o.Status = StatusCancelled
		}
		return false, false
	}

	switch r.Status {
	case StatusFilled, StatusCancelled, StatusRejected:
		if !o.Status.Terminal() {
			o.Status = r.Status
		}
	default:
		live := StatusOpen
		if o.Filled.Sign() > 0 {
			live = StatusPartiallyFilled
		}
		switch o.Status {
		case StatusPendingPlace:
			o.Status = live
			sendCancel = o.CancelRequested
		case StatusPendingCancel:
			o.beforeCancel = live
			resendCancel = true
		case StatusOpen, StatusPartiallyFilled:
			o.Status = live
		}
	}

	return sendCancel, resendCancel
}

func (m *Manager) setExchangeID(o *Order, id string) {
	if id == "" || o.ExchangeOrderID == id {
		return
	}
	o.ExchangeOrderID = id
	m.byExchange[id] = o.IntentID
}

// ApplyFill records a fill against the order that produced it. Fills on
// PENDING_CANCEL orders apply before the cancel of the remainder finalizes;
// late fills on terminal orders only update the filled size.
func (m *Manager) ApplyFill(f inventory.Fill) (Order, error) {
	m.mu.Lock()
	o, ok := m.orders[f.IntentID]
	if !ok {
		m.mu.Unlock()
		return Order{}, fmt.Errorf("fill %s: %w", f.IntentID, ErrUnknownIntent)
	}

	prev := o.Status
	o.Filled = o.Filled.Add(f.Size)
	if o.Status == StatusPendingPlace {
		o.Status = StatusOpen
	}

	switch {
	case o.Status.Terminal():
	case o.Filled.GreaterThanOrEqual(o.Size):
		o.Status = StatusFilled
	case o.Status == StatusOpen:
		o.Status = StatusPartiallyFilled
	case o.Status == StatusPendingCancel:
		o.beforeCancel = StatusPartiallyFilled
	}

	o.UpdatedAt = m.now()
	out := *o
	m.updateGauges()
	m.mu.Unlock()

	if prev != out.Status {
		TransitionsTotal.WithLabelValues(string(out.Status)).Inc()
		m.logger.Info("order-transition",
			zap.String("intent-id", out.IntentID),
			zap.String("event", "fill"),
			zap.String("from", string(prev)),
			zap.String("to", string(out.Status)),
			zap.String("filled", out.Filled.String()))
	}

	return out, nil
}

// Get returns a copy of the order tracked under intentID.
func (m *Manager) Get(intentID string) (Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[intentID]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// ByExchangeID resolves an exchange order id to its tracked order.
func (m *Manager) ByExchangeID(exchangeOrderID string) (Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	intentID, ok := m.byExchange[exchangeOrderID]
	if !ok {
		return Order{}, false
	}
	return *m.orders[intentID], true
}

// Live returns every non-terminal order, oldest first.
func (m *Manager) Live() []Order {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		if !o.Status.Terminal() {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].IntentID < out[j].IntentID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CancelAll requests cancellation of every live order.
func (m *Manager) CancelAll(ctx context.Context) {
	for _, o := range m.Live() {
		if err := m.Cancel(ctx, o.IntentID); err != nil {
			m.logger.Warn("cancel-all-order-failed",
				zap.String("intent-id", o.IntentID),
				zap.Error(err))
		}
	}
}

func (m *Manager) updateGauges() {
	live := 0
	for _, o := range m.orders {
		if !o.Status.Terminal() {
			live++
		}
	}
	LiveOrders.Set(float64(live))
}

func (m *Manager) post(ev Event) {
	select {
	case m.events <- ev:
	case <-m.done:
		m.logger.Debug("order-event-dropped-after-close",
			zap.String("intent-id", ev.IntentID),
			zap.String("event", string(ev.Kind)))
	}
}

// Close stops accepting results and waits for in-flight calls to return.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}
