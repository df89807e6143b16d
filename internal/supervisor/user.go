package supervisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-boxspread/internal/inventory"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/mselser95/polymarket-boxspread/pkg/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// catchUpSkew widens catch-up queries; the ledger drops the duplicates.
const catchUpSkew = 5 * time.Second

// runUser turns user channel trades into fill events. Every (re)connect and
// every dropped frame triggers a REST catch-up from the newest fill seen.
func (s *Supervisor) runUser(ctx context.Context) error {
	frames := s.userConn.Frames()
	var frameSeq uint64

	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-frames:
			if !ok {
				return nil
			}

			switch f.Kind {
			case websocket.FrameConnected:
				frameSeq = 0
				s.post(ctx, Event{Kind: EventConnected, Stream: StreamUser, Epoch: f.Epoch, At: f.ReceivedAt})
				if err := s.catchUp(ctx, "connected"); err != nil {
					return err
				}
				continue
			case websocket.FrameDisconnected:
				s.post(ctx, Event{Kind: EventDown, Stream: StreamUser, Epoch: f.Epoch, Err: f.Err, At: f.ReceivedAt})
				continue
			}

			gap := f.Seq != frameSeq+1
			frameSeq = f.Seq

			trades, err := parseUserMessage(f.Data)
			if err != nil {
				DecodeErrorsTotal.WithLabelValues(StreamUser).Inc()
				s.logger.Warn("user-message-decode-failed", zap.Error(err), zap.ByteString("data", truncate(f.Data)))
				gap = true
			}

			for i := range trades {
				s.postTrade(ctx, &trades[i], "stream")
			}

			if gap {
				GapsTotal.WithLabelValues(StreamUser).Inc()
				if err := s.catchUp(ctx, "gap"); err != nil {
					return err
				}
			}
		}
	}
}

// catchUp replays trades the stream may have missed. Only a refused
// credential is returned; other failures wait for the next trigger.
func (s *Supervisor) catchUp(ctx context.Context, reason string) error {
	since := s.lastFill()
	if since.IsZero() {
		return nil
	}

	trades, err := s.source.TradesSince(ctx, s.market.ConditionID, since.Add(-catchUpSkew))
	if err != nil {
		if errors.Is(err, types.ErrUnauthorized) {
			return fmt.Errorf("fill catch-up: %w: %w", ErrAuthentication, err)
		}
		if ctx.Err() == nil {
			s.logger.Warn("fill-catch-up-failed", zap.String("reason", reason), zap.Error(err))
		}
		return nil
	}

	CatchUpsTotal.WithLabelValues(reason).Inc()
	s.logger.Info("fill-catch-up",
		zap.String("reason", reason),
		zap.Time("since", since),
		zap.Int("trades", len(trades)))

	for _, rec := range trades {
		msg := tradeFromRecord(&rec)
		s.postTrade(ctx, &msg, "catch-up")
	}
	return nil
}

func (s *Supervisor) postTrade(ctx context.Context, trade *types.UserTradeMessage, source string) {
	if trade.Market != "" && trade.Market != s.market.ConditionID {
		return
	}
	if !trade.Counts() {
		if trade.Status == types.TradeStatusFailed {
			s.logger.Warn("trade-failed", zap.String("trade-id", trade.ID))
		}
		return
	}

	for _, fill := range tradeFills(trade, s.cfg.APIKey) {
		if !s.market.Has(fill.OutcomeID) {
			continue
		}
		s.observeFill(fill.Timestamp)
		FillsTotal.WithLabelValues(source).Inc()
		if !s.post(ctx, Event{Kind: EventFill, Stream: StreamUser, OutcomeID: fill.OutcomeID, Fill: fill, At: fill.Timestamp}) {
			return
		}
	}
}

// parseUserMessage decodes the trades of one user channel frame. Order
// events are ignored: order state comes from acks, fills and status polls.
func parseUserMessage(data []byte) ([]types.UserTradeMessage, error) {
	trimmed := bytes.TrimSpace(data)

	var raws []json.RawMessage
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("decode event array: %w", err)
		}
	} else {
		raws = []json.RawMessage{trimmed}
	}

	var out []types.UserTradeMessage
	for _, raw := range raws {
		var hdr types.EventHeader
		if err := json.Unmarshal(raw, &hdr); err != nil {
			return out, fmt.Errorf("decode event header: %w", err)
		}
		if hdr.EventType != types.EventTrade {
			continue
		}

		var trade types.UserTradeMessage
		if err := json.Unmarshal(raw, &trade); err != nil {
			return out, fmt.Errorf("decode trade: %w", err)
		}
		out = append(out, trade)
	}

	return out, nil
}

// tradeFills extracts the fills a trade may carry for us: one per maker
// order we own, or the taker side. Ownership by exchange order id is
// resolved by the consumer.
func tradeFills(trade *types.UserTradeMessage, apiKey string) []inventory.Fill {
	at := trade.Time()
	var fills []inventory.Fill

	if trade.TraderSide != types.TraderSideTaker {
		for _, mo := range trade.MakerOrders {
			if mo.Owner != "" && apiKey != "" && mo.Owner != apiKey {
				continue
			}
			price, err := decimal.NewFromString(mo.Price)
			if err != nil {
				continue
			}
			size, err := decimal.NewFromString(mo.MatchedAmount)
			if err != nil || size.Sign() <= 0 {
				continue
			}
			asset := mo.AssetID
			if asset == "" {
				asset = trade.AssetID
			}
			fills = append(fills, inventory.Fill{
				ID:              trade.ID + ":" + mo.OrderID,
				ExchangeOrderID: mo.OrderID,
				OutcomeID:       asset,
				Side:            fillSide(mo.Side),
				Price:           price,
				Size:            size,
				Timestamp:       at,
			})
		}
	}

	if len(fills) > 0 || trade.TraderSide == types.TraderSideMaker || trade.TakerOrderID == "" {
		return fills
	}

	price, err := decimal.NewFromString(trade.Price)
	if err != nil {
		return fills
	}
	size, err := decimal.NewFromString(trade.Size)
	if err != nil || size.Sign() <= 0 {
		return fills
	}

	return append(fills, inventory.Fill{
		ID:              trade.ID,
		ExchangeOrderID: trade.TakerOrderID,
		OutcomeID:       trade.AssetID,
		Side:            fillSide(trade.Side),
		Price:           price,
		Size:            size,
		Timestamp:       at,
	})
}

// fillSide maps a wire side; empty means the consumer takes it from the order.
func fillSide(side string) inventory.Side {
	switch strings.ToUpper(side) {
	case string(inventory.Buy):
		return inventory.Buy
	case string(inventory.Sell):
		return inventory.Sell
	}
	return ""
}

func tradeFromRecord(rec *types.TradeRecord) types.UserTradeMessage {
	return types.UserTradeMessage{
		EventType:    types.EventTrade,
		ID:           rec.ID,
		TakerOrderID: rec.TakerOrderID,
		MakerOrders:  rec.MakerOrders,
		AssetID:      rec.AssetID,
		Market:       rec.Market,
		Side:         rec.Side,
		Price:        rec.Price,
		Size:         rec.Size,
		Status:       rec.Status,
		MatchTime:    rec.MatchTime,
		Owner:        rec.Owner,
		TraderSide:   rec.TraderSide,
	}
}
