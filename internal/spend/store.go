// Package spend keeps a local ledger of proxy token usage and estimated
// cost, one row per successful completion.
package spend

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS spend (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	cost REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_spend_model ON spend(model);
`

// Store is a SQLite-backed spend ledger.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the default ledger location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "gateward-spend.db")
	}
	return filepath.Join(home, ".gateward", "spend.db")
}

// Open opens (or creates) the ledger database.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("spend: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("spend: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("spend: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Add records one completion.
func (s *Store) Add(model string, promptTokens, completionTokens int, cost float64) error {
	_, err := s.db.Exec(
		"INSERT INTO spend (ts, model, prompt_tokens, completion_tokens, cost) VALUES (?, ?, ?, ?, ?)",
		time.Now().UTC().Format(time.RFC3339), model, promptTokens, completionTokens, cost,
	)
	if err != nil {
		return fmt.Errorf("spend: insert: %w", err)
	}
	return nil
}

// Total is the aggregate over all recorded completions.
type Total struct {
	Requests         int     `json:"requests"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	Cost             float64 `json:"estimated_cost_usd"`
}

// Totals returns the overall aggregate.
func (s *Store) Totals() (Total, error) {
	row := s.db.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(prompt_tokens),0), COALESCE(SUM(completion_tokens),0), COALESCE(SUM(cost),0) FROM spend",
	)
	var t Total
	if err := row.Scan(&t.Requests, &t.PromptTokens, &t.CompletionTokens, &t.Cost); err != nil {
		return Total{}, fmt.Errorf("spend: totals: %w", err)
	}
	return t, nil
}

// ModelTotal is the aggregate for one model.
type ModelTotal struct {
	Model string `json:"model"`
	Total
}

// PerModel returns aggregates grouped by model, highest cost first.
func (s *Store) PerModel() ([]ModelTotal, error) {
	rows, err := s.db.Query(
		"SELECT model, COUNT(*), COALESCE(SUM(prompt_tokens),0), COALESCE(SUM(completion_tokens),0), COALESCE(SUM(cost),0) FROM spend GROUP BY model ORDER BY SUM(cost) DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("spend: per-model: %w", err)
	}
	defer rows.Close()

	var out []ModelTotal
	for rows.Next() {
		var mt ModelTotal
		if err := rows.Scan(&mt.Model, &mt.Requests, &mt.PromptTokens, &mt.CompletionTokens, &mt.Cost); err != nil {
			return nil, fmt.Errorf("spend: scan: %w", err)
		}
		out = append(out, mt)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
