package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // postgres driver
	"github.com/mselser95/polymarket-boxspread/internal/inventory"
	"go.uber.org/zap"
)

// Schema creates the journal tables.
const Schema = `
CREATE TABLE IF NOT EXISTS boxspread_fills (
	fill_key          TEXT PRIMARY KEY,
	condition_id      TEXT NOT NULL,
	intent_id         TEXT NOT NULL,
	exchange_order_id TEXT,
	outcome_id        TEXT NOT NULL,
	side              TEXT NOT NULL,
	price             NUMERIC NOT NULL,
	size              NUMERIC NOT NULL,
	filled_at         TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS boxspread_sessions (
	session_id       TEXT PRIMARY KEY,
	condition_id     TEXT NOT NULL,
	slug             TEXT NOT NULL,
	execution_mode   TEXT NOT NULL,
	started_at       TIMESTAMPTZ NOT NULL,
	ended_at         TIMESTAMPTZ NOT NULL,
	exit_reason      TEXT NOT NULL,
	final_mode       TEXT NOT NULL,
	quantity_a       NUMERIC NOT NULL,
	quantity_b       NUMERIC NOT NULL,
	vwap_a           NUMERIC NOT NULL,
	vwap_b           NUMERIC NOT NULL,
	final_exposure   NUMERIC NOT NULL,
	locked_profit    NUMERIC NOT NULL,
	completed_rounds INTEGER NOT NULL,
	total_trades     INTEGER NOT NULL,
	total_volume     NUMERIC NOT NULL
);`

const insertFill = `
	INSERT INTO boxspread_fills (
		fill_key, condition_id, intent_id, exchange_order_id, outcome_id,
		side, price, size, filled_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (fill_key) DO NOTHING`

const insertSession = `
	INSERT INTO boxspread_sessions (
		session_id, condition_id, slug, execution_mode, started_at, ended_at,
		exit_reason, final_mode, quantity_a, quantity_b, vwap_a, vwap_b,
		final_exposure, locked_profit, completed_rounds, total_trades, total_volume
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStorage connects and ensures the schema exists.
func NewPostgresStorage(ctx context.Context, cfg *PostgresConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	p, err := newPostgres(ctx, db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))
	return p, nil
}

func newPostgres(ctx context.Context, db *sql.DB, logger *zap.Logger) (*PostgresStorage, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStorage{db: db, logger: logger}, nil
}

// RecordFill stores a fill. Replays of the same fill are ignored.
func (p *PostgresStorage) RecordFill(ctx context.Context, conditionID string, f inventory.Fill) error {
	_, err := p.db.ExecContext(ctx, insertFill,
		f.Key(),
		conditionID,
		f.IntentID,
		f.ExchangeOrderID,
		f.OutcomeID,
		string(f.Side),
		f.Price.String(),
		f.Size.String(),
		f.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert fill: %w", err)
	}

	p.logger.Debug("fill-stored", zap.String("fill-id", f.Key()), zap.String("condition-id", conditionID))
	return nil
}

// RecordSession stores a session summary.
func (p *PostgresStorage) RecordSession(ctx context.Context, s *Summary) error {
	_, err := p.db.ExecContext(ctx, insertSession,
		s.SessionID,
		s.ConditionID,
		s.Slug,
		s.Mode,
		s.StartedAt,
		s.EndedAt,
		s.ExitReason,
		s.FinalMode,
		s.QuantityA.String(),
		s.QuantityB.String(),
		s.VWAPA.String(),
		s.VWAPB.String(),
		s.FinalExposure.String(),
		s.LockedProfit.String(),
		s.CompletedRounds,
		s.TotalTrades,
		s.TotalVolume.String(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	p.logger.Debug("session-stored", zap.String("session-id", s.SessionID))
	return nil
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}
