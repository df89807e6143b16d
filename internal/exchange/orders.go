package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-boxspread/internal/inventory"
	"github.com/mselser95/polymarket-boxspread/internal/orders"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/polymarket/go-order-utils/pkg/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// SubmitOrder signs and posts a limit order. The order hash is computed
// before sending so an indeterminate outcome can still be queried.
func (c *Client) SubmitOrder(ctx context.Context, req orders.Request) (orders.Ack, error) {
	signed, orderID, err := c.buildOrder(req)
	if err != nil {
		return orders.Ack{}, &orders.RejectError{Code: "BUILD_FAILED", Reason: err.Error()}
	}

	tif := req.TimeInForce
	if tif == "" {
		tif = orders.GTC
	}
	body := types.OrderSubmissionRequest{
		Order:     toSignedOrderJSON(signed),
		Owner:     c.apiKey,
		OrderType: string(tif),
	}

	var resp types.OrderSubmissionResponse
	err = c.do(ctx, http.MethodPost, "/order", nil, body, true, &resp)
	if err != nil {
		OrderSubmissionsTotal.WithLabelValues("error").Inc()
		return orders.Ack{}, c.classifySubmitError(orderID, err)
	}

	if !resp.Success {
		OrderSubmissionsTotal.WithLabelValues("rejected").Inc()
		return orders.Ack{}, &orders.RejectError{Code: rejectCode(resp.ErrorMsg, resp.Status), Reason: resp.ErrorMsg}
	}

	OrderSubmissionsTotal.WithLabelValues("accepted").Inc()
	if resp.OrderID != "" && !strings.EqualFold(resp.OrderID, orderID) {
		c.logger.Warn("order-id-mismatch",
			zap.String("computed", orderID),
			zap.String("returned", resp.OrderID))
		orderID = resp.OrderID
	}

	c.logger.Debug("order-submitted",
		zap.String("intent-id", req.IntentID),
		zap.String("exchange-order-id", orderID),
		zap.String("status", resp.Status))

	return orders.Ack{ExchangeOrderID: orderID, Status: resp.Status}, nil
}

// classifySubmitError separates definitive refusals from unknown outcomes.
func (c *Client) classifySubmitError(orderID string, err error) error {
	if errors.Is(err, ErrUnauthorized) {
		return err
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
		msg := apiErrorMessage(apiErr.Body)
		return &orders.RejectError{Code: rejectCode(msg, fmt.Sprintf("HTTP_%d", apiErr.Status)), Reason: msg}
	}

	// Timeouts, transport failures and 5xx may or may not have reached the book.
	c.logger.Warn("order-submit-outcome-unknown",
		zap.String("exchange-order-id", orderID),
		zap.Bool("timeout", isTimeout(err)),
		zap.Error(err))
	return &orders.IndeterminateError{ExchangeOrderID: orderID, Err: err}
}

func (c *Client) buildOrder(req orders.Request) (*model.SignedOrder, string, error) {
	if c.privateKey == nil {
		return nil, "", ErrReadOnly
	}

	makerAmount, takerAmount, err := orderAmounts(req.Side, req.Price, req.Size)
	if err != nil {
		return nil, "", err
	}

	side := model.BUY
	if req.Side == inventory.Sell {
		side = model.SELL
	}

	data := &model.OrderData{
		Maker:         c.funder,
		Taker:         zeroAddress,
		TokenId:       req.OutcomeID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Side:          side,
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        c.address,
		Expiration:    "0",
		SignatureType: c.signatureType,
	}

	signed, err := c.orderBuilder.BuildSignedOrder(c.privateKey, data, model.CTFExchange)
	if err != nil {
		return nil, "", fmt.Errorf("build signed order: %w", err)
	}

	hash, err := c.orderBuilder.BuildOrderHash(&signed.Order, model.CTFExchange)
	if err != nil {
		return nil, "", fmt.Errorf("build order hash: %w", err)
	}

	return signed, hash.Hex(), nil
}

// orderAmounts converts price and size into 6-decimal raw maker and taker
// amounts. BUY pays USDC for tokens, SELL pays tokens for USDC.
func orderAmounts(side inventory.Side, price, size decimal.Decimal) (maker, taker string, err error) {
	size = size.Truncate(2)
	notional := price.Mul(size).Truncate(4)
	if size.Sign() <= 0 || notional.Sign() <= 0 {
		return "", "", fmt.Errorf("order amount rounds to zero (price %s size %s)", price, size)
	}

	if side == inventory.Sell {
		return rawAmount(size), rawAmount(notional), nil
	}
	return rawAmount(notional), rawAmount(size), nil
}

func rawAmount(d decimal.Decimal) string {
	return d.Shift(6).Truncate(0).String()
}

func toSignedOrderJSON(order *model.SignedOrder) types.SignedOrderJSON {
	side := "BUY"
	if order.Side.Uint64() == uint64(model.SELL) {
		side = "SELL"
	}

	return types.SignedOrderJSON{
		Salt:          order.Salt.Int64(),
		Maker:         order.Maker.Hex(),
		Signer:        order.Signer.Hex(),
		Taker:         order.Taker.Hex(),
		TokenID:       order.TokenId.String(),
		MakerAmount:   order.MakerAmount.String(),
		TakerAmount:   order.TakerAmount.String(),
		Side:          side,
		Expiration:    order.Expiration.String(),
		Nonce:         order.Nonce.String(),
		FeeRateBps:    order.FeeRateBps.String(),
		SignatureType: int(order.SignatureType.Int64()),
		Signature:     "0x" + common.Bytes2Hex(order.Signature),
	}
}

// CancelOrder cancels one order. An order that is already cancelled, matched
// or unknown to the exchange counts as cancelled.
func (c *Client) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	var resp types.CancelResponse
	err := c.do(ctx, http.MethodDelete, "/order", nil, types.CancelOrderRequest{OrderID: exchangeOrderID}, true, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			msg := apiErrorMessage(apiErr.Body)
			if alreadyGone(msg) {
				return nil
			}
			return &orders.RejectError{Code: fmt.Sprintf("HTTP_%d", apiErr.Status), Reason: msg}
		}
		return fmt.Errorf("cancel order %s: %w", exchangeOrderID, err)
	}

	for _, id := range resp.Canceled {
		if strings.EqualFold(id, exchangeOrderID) {
			CancelsTotal.WithLabelValues("canceled").Inc()
			return nil
		}
	}

	for id, reason := range resp.NotCanceled {
		if !strings.EqualFold(id, exchangeOrderID) {
			continue
		}
		if alreadyGone(reason) {
			CancelsTotal.WithLabelValues("already_gone").Inc()
			c.logger.Debug("order-already-gone",
				zap.String("exchange-order-id", exchangeOrderID),
				zap.String("reason", reason))
			return nil
		}
		CancelsTotal.WithLabelValues("rejected").Inc()
		return &orders.RejectError{Reason: reason}
	}

	return &orders.IndeterminateError{
		ExchangeOrderID: exchangeOrderID,
		Err:             errors.New("order missing from cancel response"),
	}
}

func alreadyGone(reason string) bool {
	reason = strings.ToLower(reason)
	return strings.Contains(reason, "already canceled") ||
		strings.Contains(reason, "already cancelled") ||
		strings.Contains(reason, "matched") ||
		strings.Contains(reason, "not found")
}

// OrderStatus queries one order by its hash.
func (c *Client) OrderStatus(ctx context.Context, exchangeOrderID string) (orders.StatusReport, error) {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, "/data/order/"+exchangeOrderID, nil, nil, true, &raw)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return orders.StatusReport{ExchangeOrderID: exchangeOrderID}, nil
		}
		return orders.StatusReport{}, fmt.Errorf("order status %s: %w", exchangeOrderID, err)
	}

	info, err := decodeOrderInfo(raw)
	if err != nil {
		return orders.StatusReport{}, fmt.Errorf("order status %s: %w", exchangeOrderID, err)
	}
	if info == nil || info.ID == "" {
		return orders.StatusReport{ExchangeOrderID: exchangeOrderID}, nil
	}

	return statusReport(info), nil
}

// decodeOrderInfo accepts both the bare and the {"order": {...}} shapes.
func decodeOrderInfo(raw json.RawMessage) (*types.OrderQueryResponse, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var wrapped struct {
		Order *types.OrderQueryResponse `json:"order"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Order != nil {
		return wrapped.Order, nil
	}

	var info types.OrderQueryResponse
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("parse order: %w", err)
	}
	return &info, nil
}

func statusReport(info *types.OrderQueryResponse) orders.StatusReport {
	filled, err := decimal.NewFromString(info.SizeMatched)
	if err != nil {
		filled = decimal.Zero
	}

	report := orders.StatusReport{
		ExchangeOrderID: info.ID,
		Found:           true,
		Filled:          filled,
	}

	switch strings.ToUpper(info.Status) {
	case types.OrderStatusMatched:
		report.Status = orders.StatusFilled
	case types.OrderStatusCanceled, types.OrderStatusUnmatched:
		report.Status = orders.StatusCancelled
	default:
		report.Status = orders.StatusOpen
		if filled.Sign() > 0 {
			report.Status = orders.StatusPartiallyFilled
		}
	}

	return report
}

// CancelMarketOrders cancels every resting order in one market.
func (c *Client) CancelMarketOrders(ctx context.Context, conditionID string) (int, error) {
	var resp types.CancelResponse
	err := c.do(ctx, http.MethodDelete, "/cancel-market-orders", nil, types.CancelMarketRequest{Market: conditionID}, true, &resp)
	if err != nil {
		return 0, fmt.Errorf("cancel market orders %s: %w", conditionID, err)
	}

	c.logger.Info("market-orders-cancelled",
		zap.String("market", conditionID),
		zap.Int("canceled", len(resp.Canceled)),
		zap.Int("not-canceled", len(resp.NotCanceled)))

	return len(resp.Canceled), nil
}

// CancelAll cancels every resting order of the account.
func (c *Client) CancelAll(ctx context.Context) (int, error) {
	var resp types.CancelResponse
	err := c.do(ctx, http.MethodDelete, "/cancel-all", nil, nil, true, &resp)
	if err != nil {
		return 0, fmt.Errorf("cancel all orders: %w", err)
	}

	c.logger.Info("all-orders-cancelled", zap.Int("canceled", len(resp.Canceled)))

	return len(resp.Canceled), nil
}

// OpenOrders lists resting orders, optionally limited to one market.
func (c *Client) OpenOrders(ctx context.Context, market string) ([]types.OrderQueryResponse, error) {
	var all []types.OrderQueryResponse
	cursor := ""

	for {
		query := url.Values{}
		if market != "" {
			query.Set("market", market)
		}
		if cursor != "" {
			query.Set("next_cursor", cursor)
		}

		var page types.OpenOrdersPage
		if err := c.do(ctx, http.MethodGet, "/data/orders", query, nil, true, &page); err != nil {
			return nil, fmt.Errorf("list open orders: %w", err)
		}
		all = append(all, page.Data...)

		if page.NextCursor == "" || page.NextCursor == types.EndCursor || page.NextCursor == cursor {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// rejectCode maps a CLOB error message to its known code, or fallback.
func rejectCode(msg, fallback string) string {
	upper := strings.ToUpper(msg)
	for _, code := range []string{types.ErrInvalidMinTickSize, types.ErrNotEnoughBalance, types.ErrFOKNotFilled} {
		if strings.Contains(upper, code) {
			return code
		}
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "not enough balance"):
		return types.ErrNotEnoughBalance
	case strings.Contains(lower, "minimum tick size") || strings.Contains(lower, "min tick size"):
		return types.ErrInvalidMinTickSize
	case strings.Contains(lower, "fok") && strings.Contains(lower, "fully filled"):
		return types.ErrFOKNotFilled
	}
	return fallback
}

func apiErrorMessage(body string) string {
	var parsed struct {
		Error    string `json:"error"`
		ErrorMsg string `json:"errorMsg"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err == nil {
		if parsed.ErrorMsg != "" {
			return parsed.ErrorMsg
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return strings.TrimSpace(body)
}
