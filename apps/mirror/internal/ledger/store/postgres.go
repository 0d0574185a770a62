package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tilsley/anonmirror/apps/mirror/internal/ledger"
)

// Compile-time check: *PGRecorder implements ledger.Recorder.
var _ ledger.Recorder = (*PGRecorder)(nil)

// PGRecorder stores ledger events as rows of mirror_events.
type PGRecorder struct {
	pool *pgxpool.Pool
}

// NewPGRecorder creates a new PGRecorder with the given connection pool.
func NewPGRecorder(pool *pgxpool.Pool) *PGRecorder {
	return &PGRecorder{pool: pool}
}

// Record inserts one event row.
func (s *PGRecorder) Record(ctx context.Context, e ledger.Event) error {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO mirror_events (run_id, event_type, repo, path, bytes, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.RunID, string(e.Type), e.Repo, nilIfEmpty(e.Path), e.Bytes, nilIfEmpty(e.Error), at,
	)
	if err != nil {
		return fmt.Errorf("insert mirror_event: %w", err)
	}
	return nil
}

// Summary aggregates the run's rows, returning nil if the run has none.
func (s *PGRecorder) Summary(ctx context.Context, runID string) (*ledger.Summary, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			COALESCE(MAX(repo) FILTER (WHERE event_type = 'run_started'), MAX(repo)),
			CASE
				WHEN COUNT(*) FILTER (WHERE event_type = 'run_failed') > 0 THEN 'failed'
				WHEN COUNT(*) FILTER (WHERE event_type = 'run_completed') > 0 THEN 'completed'
				ELSE 'running'
			END,
			COUNT(*) FILTER (WHERE event_type = 'file_downloaded'),
			COUNT(*) FILTER (WHERE event_type = 'file_skipped'),
			COALESCE(SUM(bytes) FILTER (WHERE event_type = 'file_downloaded'), 0),
			COALESCE(MAX(error) FILTER (WHERE event_type = 'run_failed'), ''),
			MIN(created_at) FILTER (WHERE event_type = 'run_started'),
			MAX(created_at) FILTER (WHERE event_type IN ('run_completed', 'run_failed')),
			COUNT(*)
		FROM mirror_events
		WHERE run_id = $1
	`, runID)

	var (
		sum       ledger.Summary
		startedAt *time.Time
		total     int
	)
	sum.RunID = runID
	var repo *string
	err := row.Scan(&repo, &sum.Status, &sum.Downloaded, &sum.Skipped, &sum.Bytes, &sum.Error, &startedAt, &sum.FinishedAt, &total)
	if err != nil {
		return nil, fmt.Errorf("summary query %q: %w", runID, err)
	}
	if total == 0 {
		return nil, nil //nolint:nilnil // caller checks nil value to detect "not found"
	}
	if repo != nil {
		sum.Repo = *repo
	}
	if startedAt != nil {
		sum.StartedAt = *startedAt
	}
	return &sum, nil
}

// Events returns every event recorded for runID in insertion order.
func (s *PGRecorder) Events(ctx context.Context, runID string) ([]ledger.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, event_type, repo, COALESCE(path, ''), bytes, COALESCE(error, ''), created_at
		FROM mirror_events
		WHERE run_id = $1
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("events query %q: %w", runID, err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.Event, error) {
		var e ledger.Event
		var typ string
		if err := row.Scan(&e.RunID, &typ, &e.Repo, &e.Path, &e.Bytes, &e.Error, &e.At); err != nil {
			return ledger.Event{}, err
		}
		e.Type = ledger.EventType(typ)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan events %q: %w", runID, err)
	}
	return events, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
