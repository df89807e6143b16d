package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-boxspread/internal/orderbook"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/mselser95/polymarket-boxspread/pkg/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const snapshotAttempts = 3

// bookState is the market loop's view of stream continuity.
type bookState struct {
	connected bool
	frameSeq  uint64
	seq       map[string]uint64    // last diff sequence per outcome
	awaiting  map[string]time.Time // outcome -> REST fallback deadline (zero: wait)
}

func newBookState(outcomes []string) *bookState {
	st := &bookState{
		seq:      make(map[string]uint64, len(outcomes)),
		awaiting: make(map[string]time.Time, len(outcomes)),
	}
	for _, o := range outcomes {
		st.awaiting[o] = time.Time{}
	}
	return st
}

// runMarket turns market frames into snapshot and diff events. Diff
// sequences restart at 1 after every snapshot of an outcome.
func (s *Supervisor) runMarket(ctx context.Context) error {
	st := newBookState(s.market.Outcomes())
	frames := s.marketConn.Frames()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			s.handleMarketFrame(ctx, st, f)
		case <-s.resync:
			if st.connected {
				s.resnapshot(ctx, st, "requested", s.market.Outcomes())
			}
		case now := <-ticker.C:
			s.checkAwaiting(ctx, st, now)
		}
	}
}

func (s *Supervisor) handleMarketFrame(ctx context.Context, st *bookState, f websocket.Frame) {
	switch f.Kind {
	case websocket.FrameConnected:
		st.connected = true
		st.frameSeq = 0
		deadline := f.ReceivedAt.Add(s.cfg.SnapshotWait)
		for _, o := range s.market.Outcomes() {
			st.awaiting[o] = deadline
		}
		s.post(ctx, Event{Kind: EventConnected, Stream: StreamMarket, Epoch: f.Epoch, At: f.ReceivedAt})
		s.post(ctx, Event{Kind: EventStale, Stream: StreamMarket, Epoch: f.Epoch, At: f.ReceivedAt})
		return

	case websocket.FrameDisconnected:
		st.connected = false
		for _, o := range s.market.Outcomes() {
			st.awaiting[o] = time.Time{}
		}
		s.post(ctx, Event{Kind: EventDown, Stream: StreamMarket, Epoch: f.Epoch, Err: f.Err, At: f.ReceivedAt})
		s.post(ctx, Event{Kind: EventStale, Stream: StreamMarket, Epoch: f.Epoch, At: f.ReceivedAt})
		return
	}

	gap := f.Seq != st.frameSeq+1
	st.frameSeq = f.Seq

	updates, err := parseMarketMessage(f.Data, f.ReceivedAt)
	if err != nil {
		DecodeErrorsTotal.WithLabelValues(StreamMarket).Inc()
		s.logger.Warn("market-message-decode-failed", zap.Error(err), zap.ByteString("data", truncate(f.Data)))
		gap = true
	}

	if gap {
		GapsTotal.WithLabelValues(StreamMarket).Inc()
		s.logger.Warn("market-stream-gap-resyncing", zap.Uint64("seq", f.Seq), zap.Uint64("epoch", f.Epoch))
		s.resnapshot(ctx, st, "gap", s.market.Outcomes())
	}

	for _, ev := range updates {
		if !s.market.Has(ev.OutcomeID) {
			continue
		}
		ev.Epoch = f.Epoch

		switch ev.Kind {
		case EventSnapshot:
			delete(st.awaiting, ev.OutcomeID)
			st.seq[ev.OutcomeID] = 0
			ev.Sequence = 0
		case EventDiff:
			if _, waiting := st.awaiting[ev.OutcomeID]; waiting {
				DiffsDroppedTotal.Inc()
				continue
			}
			st.seq[ev.OutcomeID]++
			ev.Sequence = st.seq[ev.OutcomeID]
		}

		if !s.post(ctx, ev) {
			return
		}
	}
}

// checkAwaiting fetches snapshots the stream did not deliver in time.
func (s *Supervisor) checkAwaiting(ctx context.Context, st *bookState, now time.Time) {
	if !st.connected {
		return
	}

	var due []string
	for _, o := range s.market.Outcomes() {
		deadline, waiting := st.awaiting[o]
		if waiting && !deadline.IsZero() && now.After(deadline) {
			due = append(due, o)
		}
	}
	if len(due) > 0 {
		s.resnapshot(ctx, st, "snapshot-timeout", due)
	}
}

// resnapshot marks the outcomes stale and replaces them with REST snapshots.
// Outcomes that cannot be fetched stay stale and are retried by the ticker.
func (s *Supervisor) resnapshot(ctx context.Context, st *bookState, reason string, outcomes []string) {
	ResyncsTotal.WithLabelValues(reason).Inc()

	for _, o := range outcomes {
		st.awaiting[o] = time.Time{}
		if !s.post(ctx, Event{Kind: EventStale, Stream: StreamMarket, OutcomeID: o}) {
			return
		}
	}

	for _, o := range outcomes {
		book, err := s.fetchSnapshot(ctx, o)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("book-snapshot-fetch-failed",
				zap.String("outcome-id", o),
				zap.String("reason", reason),
				zap.Error(err))
			st.awaiting[o] = time.Now().Add(s.cfg.SnapshotWait)
			continue
		}

		ev, err := snapshotEvent(book, time.Now())
		if err != nil {
			s.logger.Warn("book-snapshot-invalid", zap.String("outcome-id", o), zap.Error(err))
			st.awaiting[o] = time.Now().Add(s.cfg.SnapshotWait)
			continue
		}
		ev.OutcomeID = o

		delete(st.awaiting, o)
		st.seq[o] = 0
		if !s.post(ctx, ev) {
			return
		}
		s.logger.Info("book-resynced", zap.String("outcome-id", o), zap.String("reason", reason))
	}
}

func (s *Supervisor) fetchSnapshot(ctx context.Context, outcomeID string) (*types.BookMessage, error) {
	retry := websocket.NewRetry(websocket.RetryConfig{
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2,
		MaxAttempts:       snapshotAttempts,
	})

	for {
		book, err := s.source.BookSnapshot(ctx, outcomeID)
		if err == nil {
			return book, nil
		}
		if _, retryErr := retry.Fail(); retryErr != nil {
			return nil, fmt.Errorf("%w: %w", retryErr, err)
		}
		if waitErr := retry.Wait(ctx); waitErr != nil {
			return nil, waitErr
		}
	}
}

// parseMarketMessage decodes one market channel frame, which holds either a
// single event or an array of them.
func parseMarketMessage(data []byte, receivedAt time.Time) ([]Event, error) {
	trimmed := bytes.TrimSpace(data)

	var raws []json.RawMessage
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("decode event array: %w", err)
		}
	} else {
		raws = []json.RawMessage{trimmed}
	}

	var out []Event
	for _, raw := range raws {
		var hdr types.EventHeader
		if err := json.Unmarshal(raw, &hdr); err != nil {
			return out, fmt.Errorf("decode event header: %w", err)
		}

		switch hdr.EventType {
		case types.EventBook:
			var msg types.BookMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				return out, fmt.Errorf("decode book: %w", err)
			}
			ev, err := snapshotEvent(&msg, receivedAt)
			if err != nil {
				return out, err
			}
			out = append(out, ev)

		case types.EventPriceChange:
			var msg types.PriceChangeMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				return out, fmt.Errorf("decode price change: %w", err)
			}
			diffs, err := diffEvents(&msg, receivedAt)
			if err != nil {
				return out, err
			}
			out = append(out, diffs...)

		case types.EventTickSizeChange:
			var msg types.TickSizeChangeMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				return out, fmt.Errorf("decode tick size change: %w", err)
			}
			tick, err := decimal.NewFromString(msg.NewTickSize)
			if err != nil {
				return out, fmt.Errorf("parse tick size %q: %w", msg.NewTickSize, err)
			}
			out = append(out, Event{
				Kind:      EventTickSize,
				Stream:    StreamMarket,
				OutcomeID: msg.AssetID,
				TickSize:  tick,
				At:        receivedAt,
			})
		}
	}

	return out, nil
}

func snapshotEvent(msg *types.BookMessage, receivedAt time.Time) (Event, error) {
	bids, err := orderbook.ParseLevels(msg.Bids)
	if err != nil {
		return Event{}, fmt.Errorf("book %s bids: %w", msg.AssetID, err)
	}
	asks, err := orderbook.ParseLevels(msg.Asks)
	if err != nil {
		return Event{}, fmt.Errorf("book %s asks: %w", msg.AssetID, err)
	}

	ev := Event{
		Kind:      EventSnapshot,
		Stream:    StreamMarket,
		OutcomeID: msg.AssetID,
		Bids:      bids,
		Asks:      asks,
		At:        eventTime(msg.Timestamp, receivedAt),
	}
	if tick, err := decimal.NewFromString(msg.TickSize); err == nil {
		ev.TickSize = tick
	}
	if minSize, err := decimal.NewFromString(msg.MinOrderSize); err == nil {
		ev.MinOrderSize = minSize
	}

	return ev, nil
}

// diffEvents splits a price_change message into one diff per outcome,
// keeping the order in which outcomes first appear.
func diffEvents(msg *types.PriceChangeMessage, receivedAt time.Time) ([]Event, error) {
	var out []Event
	index := make(map[string]int)

	for _, pc := range msg.PriceChanges {
		change, err := orderbook.ParseChange(pc)
		if err != nil {
			return nil, fmt.Errorf("price change %s: %w", pc.AssetID, err)
		}

		i, ok := index[pc.AssetID]
		if !ok {
			i = len(out)
			index[pc.AssetID] = i
			out = append(out, Event{
				Kind:      EventDiff,
				Stream:    StreamMarket,
				OutcomeID: pc.AssetID,
				At:        eventTime(msg.Timestamp, receivedAt),
			})
		}
		out[i].Changes = append(out[i].Changes, change)
	}

	return out, nil
}

func eventTime(ms int64, fallback time.Time) time.Time {
	if ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	return fallback
}

func truncate(b []byte) []byte {
	const limit = 256
	if len(b) > limit {
		return b[:limit]
	}
	return b
}
