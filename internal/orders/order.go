package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/polymarket-boxspread/internal/inventory"
	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicateIntent means the intent id is already tracked and not terminal.
	ErrDuplicateIntent = errors.New("duplicate intent")

	// ErrUnknownIntent means no order is tracked under the intent id.
	ErrUnknownIntent = errors.New("unknown intent")
)

// Status is an order's lifecycle state.
type Status string

// Order states. PENDING_CANCEL is transient; FILLED, CANCELLED and REJECTED are terminal.
const (
	StatusPendingPlace    Status = "PENDING_PLACE"
	StatusOpen            Status = "OPEN"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusPendingCancel   Status = "PENDING_CANCEL"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
	StatusRejected        Status = "REJECTED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// Role is the strategy purpose of an order.
type Role string

// Order roles.
const (
	RoleTrap    Role = "trap"
	RoleHedge   Role = "hedge"
	RoleFlatten Role = "flatten"
)

// TimeInForce of a submitted order.
type TimeInForce string

// Supported times in force.
const (
	GTC TimeInForce = "GTC"
	FOK TimeInForce = "FOK"
)

// Request is everything needed to submit one order.
type Request struct {
	IntentID    string
	OutcomeID   string
	Side        inventory.Side
	Role        Role
	Price       decimal.Decimal
	Size        decimal.Decimal
	TimeInForce TimeInForce
}

// Order is the tracked state of one intent.
type Order struct {
	IntentID        string          `json:"intent_id"`
	ExchangeOrderID string          `json:"exchange_order_id,omitempty"`
	OutcomeID       string          `json:"outcome_id"`
	Side            inventory.Side  `json:"side"`
	Role            Role            `json:"role"`
	TimeInForce     TimeInForce     `json:"time_in_force"`
	Price           decimal.Decimal `json:"price"`
	Size            decimal.Decimal `json:"size"`
	Filled          decimal.Decimal `json:"filled"`
	Status          Status          `json:"status"`
	Reason          string          `json:"reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	// CancelRequested is set when a cancel arrives while PENDING_PLACE. The
	// cancel is sent once the place is acknowledged.
	CancelRequested bool `json:"cancel_requested,omitempty"`

	beforeCancel Status // state to restore if a cancel is rejected
}

// Remaining is the unfilled size.
func (o *Order) Remaining() decimal.Decimal {
	r := o.Size.Sub(o.Filled)
	if r.Sign() < 0 {
		return decimal.Zero
	}
	return r
}

// Ack is the exchange's acceptance of an order.
type Ack struct {
	ExchangeOrderID string
	Status          string // exchange status: live, matched, delayed, unmatched
}

// StatusReport is the exchange's view of an order.
type StatusReport struct {
	ExchangeOrderID string
	Found           bool
	Status          Status
	Filled          decimal.Decimal
}

// Exchange is the order transport.
type Exchange interface {
	SubmitOrder(ctx context.Context, req Request) (Ack, error)
	CancelOrder(ctx context.Context, exchangeOrderID string) error
	OrderStatus(ctx context.Context, exchangeOrderID string) (StatusReport, error)
}

// RejectError is a definitive refusal by the exchange.
type RejectError struct {
	Code   string
	Reason string
}

func (e *RejectError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("order rejected: %s (%s)", e.Reason, e.Code)
	}
	return fmt.Sprintf("order rejected: %s", e.Reason)
}

// IndeterminateError means the outcome of a submit or cancel is unknown,
// usually after a timeout. ExchangeOrderID is set when it was known before sending.
type IndeterminateError struct {
	ExchangeOrderID string
	Err             error
}

func (e *IndeterminateError) Error() string {
	return fmt.Sprintf("order %s outcome unknown: %v", e.ExchangeOrderID, e.Err)
}

func (e *IndeterminateError) Unwrap() error {
	return e.Err
}

// EventKind identifies an asynchronous I/O result.
type EventKind string

// Result kinds posted back to the owning loop.
const (
	EventAck                 EventKind = "ack"
	EventReject              EventKind = "reject"
	EventIndeterminate       EventKind = "indeterminate"
	EventCancelAck           EventKind = "cancel_ack"
	EventCancelReject        EventKind = "cancel_reject"
	EventCancelIndeterminate EventKind = "cancel_indeterminate"
	EventStatus              EventKind = "status"
	EventAuthFailed          EventKind = "auth_failed" // credentials refused; state unchanged
)

// Event is the result of one exchange call, applied through Reconcile.
type Event struct {
	Kind            EventKind
	IntentID        string
	ExchangeOrderID string
	Reason          string
	Code            string // exchange reject code, when known
	Err             error
	Report          StatusReport
}
