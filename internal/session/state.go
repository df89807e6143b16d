package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-boxspread/internal/inventory"
	"go.uber.org/zap"
)

// savedState is the layout of the state file.
type savedState struct {
	ConditionID string          `json:"condition_id"`
	SessionID   string          `json:"session_id"`
	SavedAt     time.Time       `json:"saved_at"`
	Ledger      inventory.State `json:"ledger"`
}

// restore loads the ledger from the state file. Files for another market or
// that cannot be decoded are ignored.
func (s *Session) restore() error {
	path := s.cfg.StateFile
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}

	var st savedState
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("state-file-unreadable", zap.String("path", path), zap.Error(err))
		return nil
	}

	if st.ConditionID != s.market.ConditionID {
		s.logger.Info("state-file-other-market",
			zap.String("path", path),
			zap.String("saved-condition-id", st.ConditionID))
		return nil
	}

	if err := s.ledger.Restore(st.Ledger); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}

	StateOperationsTotal.WithLabelValues("restore", "ok").Inc()
	s.logger.Info("state-restored",
		zap.String("path", path),
		zap.String("saved-session-id", st.SessionID),
		zap.Time("saved-at", st.SavedAt),
		zap.String("delta-q", s.ledger.Exposure().String()))
	return nil
}

// persist writes the ledger to the state file through a rename so readers
// never see a partial file.
func (s *Session) persist() {
	path := s.cfg.StateFile
	if path == "" {
		return
	}

	st := savedState{
		ConditionID: s.market.ConditionID,
		SessionID:   s.id,
		SavedAt:     s.now(),
		Ledger:      s.ledger.Snapshot(),
	}

	if err := writeState(path, &st); err != nil {
		StateOperationsTotal.WithLabelValues("persist", "error").Inc()
		s.logger.Error("state-persist-failed", zap.String("path", path), zap.Error(err))
		return
	}

	s.dirty = false
	StateOperationsTotal.WithLabelValues("persist", "ok").Inc()
	s.logger.Debug("state-persisted", zap.String("path", path))
}

func writeState(path string, st *savedState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
