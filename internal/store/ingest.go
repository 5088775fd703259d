package store

import (
	"context"
	"database/sql"
	"time"
)

// IngestRun represents a single upstream fetch for auditing.
type IngestRun struct {
	ID                int64
	StartedAt         time.Time
	FinishedAt        sql.NullTime
	Source            string // "fmi"
	Endpoint          string // "observations/timevaluepair"
	HTTPStatus        sql.NullInt64
	ResponseSizeBytes sql.NullInt64
	RecordsParsed     sql.NullInt64
	RecordsStored     sql.NullInt64
	Success           bool
	ErrorMessage      sql.NullString
}

// StartIngestRun creates a new ingest run record and returns it.
func (s *Store) StartIngestRun(ctx context.Context, source, endpoint string, startedAt time.Time) (*IngestRun, error) {
	run := &IngestRun{
		StartedAt: startedAt.UTC(),
		Source:    source,
		Endpoint:  endpoint,
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (started_at, source, endpoint, success)
		VALUES (?, ?, ?, FALSE)
	`, run.StartedAt, run.Source, run.Endpoint)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteIngestRun updates the ingest run with results.
func (s *Store) CompleteIngestRun(ctx context.Context, run *IngestRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.ExecContext(ctx, `
		UPDATE ingest_runs SET
			finished_at = ?,
			http_status = ?,
			response_size_bytes = ?,
			records_parsed = ?,
			records_stored = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.HTTPStatus, run.ResponseSizeBytes, run.RecordsParsed,
		run.RecordsStored, run.Success, run.ErrorMessage, run.ID)
	return err
}

// IngestStats summarises ingest runs since a point in time.
type IngestStats struct {
	TotalRuns   int       `json:"total_runs"`
	FailedRuns  int       `json:"failed_runs"`
	LastSuccess time.Time `json:"last_success,omitzero"`
}

// GetIngestStats counts runs started after since and finds the latest success.
func (s *Store) GetIngestStats(since time.Time) (*IngestStats, error) {
	var stats IngestStats
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0)
		FROM ingest_runs
		WHERE started_at >= ?
	`, since.UTC()).Scan(&stats.TotalRuns, &stats.FailedRuns)
	if err != nil {
		return nil, err
	}

	var last sql.NullTime
	err = s.db.QueryRow(`
		SELECT started_at FROM ingest_runs WHERE success = TRUE ORDER BY id DESC LIMIT 1
	`).Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if last.Valid {
		stats.LastSuccess = last.Time
	}
	return &stats, nil
}

// GetRecentIngestErrors returns recent failed ingest runs, newest first.
func (s *Store) GetRecentIngestErrors(limit int) ([]IngestRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, source, endpoint, http_status,
		       response_size_bytes, records_parsed, records_stored, success, error_message
		FROM ingest_runs
		WHERE success = FALSE
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []IngestRun
	for rows.Next() {
		var r IngestRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Source, &r.Endpoint,
			&r.HTTPStatus, &r.ResponseSizeBytes, &r.RecordsParsed, &r.RecordsStored,
			&r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
