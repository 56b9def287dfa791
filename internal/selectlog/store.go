// Package selectlog persists the per-iteration hypothesis selections of
// detection factors so that association switching can be inspected
// offline: which hypothesis each factor picked at each optimizer
// iteration, and at what cost. Recording is optional; the factors
// themselves never touch storage.
package selectlog

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const maxBusyRetries = 5

// retryOnBusy retries fn while sqlite reports a busy/locked database,
// with a short linear backoff.
func retryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxBusyRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		msg := err.Error()
		if !strings.Contains(msg, "SQLITE_BUSY") && !strings.Contains(msg, "database is locked") {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return err
}

// Selection is one recorded hypothesis-selection event.
type Selection struct {
	RunID         string  `json:"run_id"`
	Iteration     int     `json:"iteration"`
	FactorID      string  `json:"factor_id"`
	SelectedIndex int     `json:"selected_index"`
	ErrorValue    float64 `json:"error_value"`
	CreatedAt     int64   `json:"created_at"` // unix nanos
}

// Store persists hypothesis selections in a sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the selection log at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open selection log: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS hypothesis_selections (
			run_id            TEXT NOT NULL,
			iteration         BIGINT NOT NULL,
			factor_id         TEXT NOT NULL,
			selected_index    BIGINT NOT NULL,
			error_value       DOUBLE NOT NULL,
			created_at        BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_selections_run
			ON hypothesis_selections(run_id, iteration);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("apply selection log schema: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// Record persists one selection event. A missing CreatedAt is filled
// with the current time.
func (s *Store) Record(sel Selection) error {
	if sel.RunID == "" {
		return fmt.Errorf("record selection: empty run_id")
	}
	if sel.CreatedAt == 0 {
		sel.CreatedAt = time.Now().UnixNano()
	}
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO hypothesis_selections (
				run_id, iteration, factor_id, selected_index, error_value, created_at
			) VALUES (?, ?, ?, ?, ?, ?)`,
			sel.RunID, sel.Iteration, sel.FactorID, sel.SelectedIndex, sel.ErrorValue, sel.CreatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("inserting selection for factor %s: %w", sel.FactorID, err)
	}
	return nil
}

// ListByRun returns all selections of a run ordered by iteration, then
// factor id.
func (s *Store) ListByRun(runID string) ([]Selection, error) {
	rows, err := s.db.Query(`
		SELECT run_id, iteration, factor_id, selected_index, error_value, created_at
		FROM hypothesis_selections
		WHERE run_id = ?
		ORDER BY iteration ASC, factor_id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query selections: %w", err)
	}
	defer rows.Close()

	var out []Selection
	for rows.Next() {
		var sel Selection
		if err := rows.Scan(&sel.RunID, &sel.Iteration, &sel.FactorID,
			&sel.SelectedIndex, &sel.ErrorValue, &sel.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan selection: %w", err)
		}
		out = append(out, sel)
	}
	return out, rows.Err()
}

// SwitchCount returns, per factor, how many times the selected index
// changed between consecutive iterations of a run. Factors that never
// switch are omitted.
func (s *Store) SwitchCount(runID string) (map[string]int, error) {
	sels, err := s.ListByRun(runID)
	if err != nil {
		return nil, err
	}
	last := make(map[string]int)
	counts := make(map[string]int)
	for _, sel := range sels {
		if prev, ok := last[sel.FactorID]; ok && prev != sel.SelectedIndex {
			counts[sel.FactorID]++
		}
		last[sel.FactorID] = sel.SelectedIndex
	}
	return counts, nil
}
