package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"tuxpilot/pkg/logx"
	"tuxpilot/pkg/proto"
)

const schema = `
CREATE TABLE IF NOT EXISTS usage_runs (
	run_id         TEXT PRIMARY KEY,
	chat_id        TEXT NOT NULL,
	started_at     TIMESTAMP NOT NULL,
	total_tokens   INTEGER NOT NULL,
	total_cost_usd REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_agents (
	run_id            TEXT NOT NULL REFERENCES usage_runs(run_id) ON DELETE CASCADE,
	agent_id          TEXT NOT NULL,
	agent_type        TEXT NOT NULL,
	model             TEXT NOT NULL,
	tokens_used       INTEGER NOT NULL,
	cost_usd          REAL NOT NULL,
	PRIMARY KEY (run_id, agent_id)
);

CREATE INDEX IF NOT EXISTS idx_usage_runs_chat ON usage_runs(chat_id);
`

// Store persists run usage to SQLite so accounting survives restarts.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the usage database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open usage database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping usage database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize usage schema: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logx.Infof("usage database ready: %s", dbPath)
	return &Store{db: db}, nil
}

// SaveRun records the final usage of one run. Saving the same run twice
// replaces the earlier record, so retried shutdown paths stay idempotent.
func (s *Store) SaveRun(ctx context.Context, run RunUsage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin usage transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO usage_runs (run_id, chat_id, started_at, total_tokens, total_cost_usd)
		 VALUES (?, ?, ?, ?, ?)`,
		run.RunID, run.ChatID, run.StartedAt.UTC(), run.TotalTokens, run.TotalCostUSD,
	); err != nil {
		return fmt.Errorf("failed to save run usage: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM usage_agents WHERE run_id = ?`, run.RunID); err != nil {
		return fmt.Errorf("failed to clear agent usage: %w", err)
	}
	for i := range run.Agents {
		m := &run.Agents[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO usage_agents (run_id, agent_id, agent_type, model, tokens_used, cost_usd)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			run.RunID, m.AgentID, string(m.AgentType), m.Model, m.TokensUsed, m.CostUSD,
		); err != nil {
			return fmt.Errorf("failed to save agent usage: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit usage transaction: %w", err)
	}
	return nil
}

// LoadRun returns the persisted usage for one run.
func (s *Store) LoadRun(ctx context.Context, runID string) (RunUsage, error) {
	var run RunUsage
	var startedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, chat_id, started_at, total_tokens, total_cost_usd
		 FROM usage_runs WHERE run_id = ?`, runID,
	).Scan(&run.RunID, &run.ChatID, &startedAt, &run.TotalTokens, &run.TotalCostUSD)
	if err != nil {
		return RunUsage{}, fmt.Errorf("failed to load run usage: %w", err)
	}
	run.StartedAt = startedAt

	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, agent_type, model, tokens_used, cost_usd
		 FROM usage_agents WHERE run_id = ? ORDER BY agent_id`, runID)
	if err != nil {
		return RunUsage{}, fmt.Errorf("failed to load agent usage: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m proto.AgentMetric
		var agentType string
		if err := rows.Scan(&m.AgentID, &agentType, &m.Model, &m.TokensUsed, &m.CostUSD); err != nil {
			return RunUsage{}, fmt.Errorf("failed to scan agent usage: %w", err)
		}
		m.AgentType = proto.AgentType(agentType)
		run.Agents = append(run.Agents, m)
	}
	if err := rows.Err(); err != nil {
		return RunUsage{}, fmt.Errorf("failed to read agent usage: %w", err)
	}
	return run, nil
}

// ChatTotals sums tokens and cost across every persisted run of a chat.
func (s *Store) ChatTotals(ctx context.Context, chatID string) (totalTokens int, totalCostUSD float64, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_tokens), 0), COALESCE(SUM(total_cost_usd), 0)
		 FROM usage_runs WHERE chat_id = ?`, chatID,
	).Scan(&totalTokens, &totalCostUSD)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum chat usage: %w", err)
	}
	return totalTokens, totalCostUSD, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close usage database: %w", err)
	}
	return nil
}
