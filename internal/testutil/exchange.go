package testutil

import (
	"context"
	"sync"

	"github.com/mselser95/polymarket-boxspread/internal/orders"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/shopspring/decimal"
)

// FakeExchange acknowledges orders in memory. Exchange order ids are
// "ex-" + intent id so tests can predict them.
type FakeExchange struct {
	mu        sync.Mutex
	submitted []orders.Request
	cancelled []string
	status    map[string]orders.Status
	sweeps    []string

	// RejectRole makes every submit of that role fail with a RejectError.
	RejectRole orders.Role
	// RejectCode is the code of those rejects, "INVALID_ORDER" when empty.
	RejectCode string
	// SubmitErr, when set, is returned by every submit.
	SubmitErr error
}

// NewFakeExchange creates an empty fake.
func NewFakeExchange() *FakeExchange {
	return &FakeExchange{status: make(map[string]orders.Status)}
}

// ExchangeID is the id the fake assigns to an intent.
func ExchangeID(intentID string) string {
	return "ex-" + intentID
}

// SubmitOrder records the request and acks it.
func (f *FakeExchange) SubmitOrder(_ context.Context, req orders.Request) (orders.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.submitted = append(f.submitted, req)
	if f.SubmitErr != nil {
		return orders.Ack{}, f.SubmitErr
	}
	if f.RejectRole != "" && req.Role == f.RejectRole {
		code := f.RejectCode
		if code == "" {
			code = "INVALID_ORDER"
		}
		return orders.Ack{}, &orders.RejectError{Code: code, Reason: "rejected by fake"}
	}
	if req.TimeInForce == orders.FOK {
		return orders.Ack{}, &orders.RejectError{Code: types.ErrFOKNotFilled, Reason: "no liquidity"}
	}

	id := ExchangeID(req.IntentID)
	f.status[id] = orders.StatusOpen
	return orders.Ack{ExchangeOrderID: id, Status: "live"}, nil
}

// CancelOrder marks the order cancelled.
func (f *FakeExchange) CancelOrder(_ context.Context, exchangeOrderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelled = append(f.cancelled, exchangeOrderID)
	f.status[exchangeOrderID] = orders.StatusCancelled
	return nil
}

// OrderStatus reports the fake's view of an order.
func (f *FakeExchange) OrderStatus(_ context.Context, exchangeOrderID string) (orders.StatusReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, ok := f.status[exchangeOrderID]
	return orders.StatusReport{ExchangeOrderID: exchangeOrderID, Found: ok, Status: st, Filled: decimal.Zero}, nil
}

// CancelMarketOrders records a sweep of the market.
func (f *FakeExchange) CancelMarketOrders(_ context.Context, conditionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sweeps = append(f.sweeps, conditionID)
	n := 0
	for id, st := range f.status {
		if st == orders.StatusOpen {
			f.status[id] = orders.StatusCancelled
			n++
		}
	}
	return n, nil
}

// Submitted returns every request seen so far.
func (f *FakeExchange) Submitted() []orders.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]orders.Request(nil), f.submitted...)
}

// SubmittedRole returns the requests of one role.
func (f *FakeExchange) SubmittedRole(role orders.Role) []orders.Request {
	var out []orders.Request
	for _, r := range f.Submitted() {
		if r.Role == role {
			out = append(out, r)
		}
	}
	return out
}

// Cancelled returns the exchange ids cancelled so far.
func (f *FakeExchange) Cancelled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

// Sweeps returns the condition ids swept so far.
func (f *FakeExchange) Sweeps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sweeps...)
}
