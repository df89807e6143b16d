package exchange

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mselser95/polymarket-boxspread/internal/orders"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Paper is a dry-run exchange. Orders rest locally and never fill; FOK
// orders are killed immediately.
type Paper struct {
	mu     sync.Mutex
	orders map[string]orders.Status
	logger *zap.Logger
}

// NewPaper creates a dry-run exchange.
func NewPaper(logger *zap.Logger) *Paper {
	return &Paper{
		orders: make(map[string]orders.Status),
		logger: logger,
	}
}

// SubmitOrder acknowledges a GTC order locally.
func (p *Paper) SubmitOrder(_ context.Context, req orders.Request) (orders.Ack, error) {
	if req.TimeInForce == orders.FOK {
		OrderSubmissionsTotal.WithLabelValues("paper_killed").Inc()
		p.logger.Info("paper-fok-killed",
			zap.String("intent-id", req.IntentID),
			zap.String("price", req.Price.String()),
			zap.String("size", req.Size.String()))
		return orders.Ack{}, &orders.RejectError{Code: types.ErrFOKNotFilled, Reason: "dry-run orders never fill"}
	}

	id := "paper-" + uuid.NewString()

	p.mu.Lock()
	p.orders[id] = orders.StatusOpen
	p.mu.Unlock()

	OrderSubmissionsTotal.WithLabelValues("paper").Inc()
	p.logger.Info("paper-order-placed",
		zap.String("intent-id", req.IntentID),
		zap.String("exchange-order-id", id),
		zap.String("outcome-id", req.OutcomeID),
		zap.String("side", string(req.Side)),
		zap.String("price", req.Price.String()),
		zap.String("size", req.Size.String()))

	return orders.Ack{ExchangeOrderID: id, Status: "live"}, nil
}

// CancelOrder marks a paper order cancelled. Unknown ids count as gone.
func (p *Paper) CancelOrder(_ context.Context, exchangeOrderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.orders[exchangeOrderID]; ok {
		p.orders[exchangeOrderID] = orders.StatusCancelled
	}
	return nil
}

// OrderStatus reports the local state of a paper order.
func (p *Paper) OrderStatus(_ context.Context, exchangeOrderID string) (orders.StatusReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.orders[exchangeOrderID]
	if !ok {
		return orders.StatusReport{ExchangeOrderID: exchangeOrderID}, nil
	}
	return orders.StatusReport{
		ExchangeOrderID: exchangeOrderID,
		Found:           true,
		Status:          status,
		Filled:          decimal.Zero,
	}, nil
}

// Resting counts paper orders that are still open.
func (p *Paper) Resting() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, s := range p.orders {
		if s == orders.StatusOpen {
			n++
		}
	}
	return n
}

// CancelMarketOrders cancels every resting paper order. Paper orders are not
// tracked per market.
func (p *Paper) CancelMarketOrders(_ context.Context, conditionID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for id, s := range p.orders {
		if s == orders.StatusOpen {
			p.orders[id] = orders.StatusCancelled
			n++
		}
	}
	p.logger.Info("paper-orders-swept", zap.String("condition-id", conditionID), zap.Int("count", n))
	return n, nil
}
