package tracelog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run is one recorded evaluation.
type Run struct {
	ID        string    `json:"id" yaml:"id"`
	Expr      string    `json:"expr" yaml:"expr"`
	Result    string    `json:"result" yaml:"result"`
	Rounds    int       `json:"rounds" yaml:"rounds"`
	Rakes     int       `json:"rakes" yaml:"rakes"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Event is one recorded contraction event.
type Event struct {
	Seq   int    `json:"seq" yaml:"seq"`
	Kind  string `json:"kind" yaml:"kind"`
	Round int    `json:"round" yaml:"round"`
	Phase string `json:"phase" yaml:"phase"`
	Line  string `json:"line" yaml:"line"`
}

// CreateRun inserts a run. If run.ID is empty, CreateRun assigns a new
// time-ordered ID; if run.CreatedAt is zero, it is set to the current time.
func (s *Store) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.Must(uuid.NewV7()).String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, expr, result, rounds, rakes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Expr,
		run.Result,
		run.Rounds,
		run.Rakes,
		run.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// AppendEvents appends events to a run in one transaction. Events are
// numbered after any already recorded for the run; their Seq fields are
// updated to match.
func (s *Store) AppendEvents(ctx context.Context, runID string, events []Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events WHERE run_id = ?`, runID).Scan(&next)
	if err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (run_id, seq, kind, round, phase, line)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	defer stmt.Close()
	for i := range events {
		next++
		events[i].Seq = next
		ev := events[i]
		if _, err := stmt.ExecContext(ctx, runID, ev.Seq, ev.Kind, ev.Round, ev.Phase, ev.Line); err != nil {
			return fmt.Errorf("append event %d: %w", ev.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	return nil
}
