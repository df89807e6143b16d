package storage

import (
	"context"

	"github.com/mselser95/polymarket-boxspread/internal/inventory"
	"go.uber.org/zap"
)

// ConsoleStorage implements Storage by logging.
type ConsoleStorage struct {
	logger *zap.Logger
}

// NewConsoleStorage creates a console storage.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{logger: logger}
}

// RecordFill logs a fill.
func (c *ConsoleStorage) RecordFill(_ context.Context, conditionID string, f inventory.Fill) error {
	c.logger.Info("fill-recorded",
		zap.String("condition-id", conditionID),
		zap.String("fill-id", f.Key()),
		zap.String("intent-id", f.IntentID),
		zap.String("outcome-id", f.OutcomeID),
		zap.String("side", string(f.Side)),
		zap.String("price", f.Price.String()),
		zap.String("size", f.Size.String()),
		zap.Time("timestamp", f.Timestamp))
	return nil
}

// RecordSession logs a session summary.
func (c *ConsoleStorage) RecordSession(_ context.Context, s *Summary) error {
	c.logger.Info("session-recorded",
		zap.String("session-id", s.SessionID),
		zap.String("slug", s.Slug),
		zap.String("exit-reason", s.ExitReason),
		zap.String("final-mode", s.FinalMode),
		zap.Duration("duration", s.EndedAt.Sub(s.StartedAt)),
		zap.String("quantity-a", s.QuantityA.String()),
		zap.String("quantity-b", s.QuantityB.String()),
		zap.String("final-exposure", s.FinalExposure.String()),
		zap.String("locked-profit", s.LockedProfit.String()),
		zap.Int("completed-rounds", s.CompletedRounds),
		zap.Int("total-trades", s.TotalTrades))
	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}
