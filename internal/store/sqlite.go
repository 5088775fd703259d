// Package store archives FMI fetches and the snapshots built from them in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lox/vantaaweather/internal/fmi"
	"github.com/lox/vantaaweather/internal/weather"
)

const (
	SourceFMI            = "fmi"
	EndpointObservations = "observations/timevaluepair"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// SnapshotRecord is an archived snapshot with the time it was fetched.
type SnapshotRecord struct {
	ID          int64     `json:"-"`
	IngestRunID int64     `json:"-"`
	FetchedAt   time.Time `json:"fetched_at"`
	weather.Snapshot
}

func (s *Store) InsertSnapshot(ctx context.Context, runID int64, fetchedAt time.Time, snap weather.Snapshot) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (ingest_run_id, fetched_at, station, temperature, feels_like, wind_speed, condition, condition_fi, wawa_code, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, nullInt64(runID), fetchedAt.UTC(), snap.Station, nullFloat(snap.Temperature), nullFloat(snap.FeelsLike),
		nullFloat(snap.WindSpeed), snap.Condition, snap.ConditionFi, nullInt(snap.WawaCode), nullString(snap.Timestamp))
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	return result.LastInsertId()
}

// LatestSnapshot returns the most recently archived snapshot, or nil if none.
func (s *Store) LatestSnapshot() (*SnapshotRecord, error) {
	recs, err := s.RecentSnapshots(1)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

// RecentSnapshots returns up to limit archived snapshots, newest first.
func (s *Store) RecentSnapshots(limit int) ([]SnapshotRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, ingest_run_id, fetched_at, station, temperature, feels_like, wind_speed, condition, condition_fi, wawa_code, observed_at
		FROM snapshots
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SnapshotRecord
	for rows.Next() {
		var (
			rec                      SnapshotRecord
			runID, wawa              sql.NullInt64
			temp, feelsLike, windSpd sql.NullFloat64
			observedAt               sql.NullString
		)
		if err := rows.Scan(&rec.ID, &runID, &rec.FetchedAt, &rec.Station, &temp, &feelsLike, &windSpd,
			&rec.Condition, &rec.ConditionFi, &wawa, &observedAt); err != nil {
			return nil, err
		}
		rec.IngestRunID = runID.Int64
		rec.Temperature = floatPtr(temp)
		rec.FeelsLike = floatPtr(feelsLike)
		rec.WindSpeed = floatPtr(windSpd)
		if wawa.Valid {
			code := int(wawa.Int64)
			rec.WawaCode = &code
		}
		if observedAt.Valid {
			rec.Timestamp = &observedAt.String
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// RecordFetch archives one upstream attempt: an ingest run, the raw payload if
// one was received, and the snapshot if one was built. The ingest run is always
// completed; an archive failure is recorded as its error.
func (s *Store) RecordFetch(ctx context.Context, rec weather.FetchRecord) (err error) {
	run, err := s.StartIngestRun(ctx, SourceFMI, EndpointObservations, rec.StartedAt)
	if err != nil {
		return fmt.Errorf("start ingest run: %w", err)
	}

	defer func() {
		failure := errors.Join(rec.Err, err)
		run.Success = failure == nil
		if failure != nil {
			run.ErrorMessage = sql.NullString{String: failure.Error(), Valid: true}
		}
		if cerr := s.CompleteIngestRun(ctx, run); cerr != nil {
			err = errors.Join(err, fmt.Errorf("complete ingest run: %w", cerr))
		}
	}()

	var statusErr *fmi.StatusError
	switch {
	case errors.As(rec.Err, &statusErr):
		run.HTTPStatus = sql.NullInt64{Int64: int64(statusErr.StatusCode), Valid: true}
	case rec.Payload != nil:
		run.HTTPStatus = sql.NullInt64{Int64: 200, Valid: true}
	}

	if rec.Payload != nil {
		run.ResponseSizeBytes = sql.NullInt64{Int64: int64(len(rec.Payload)), Valid: true}
		run.RecordsParsed = sql.NullInt64{Int64: int64(rec.Params), Valid: true}
		if _, err := s.StoreRawPayload(ctx, run.ID, SourceFMI, EndpointObservations, rec.Payload); err != nil {
			return err
		}
	}

	if rec.Snapshot != nil {
		if _, err := s.InsertSnapshot(ctx, run.ID, rec.StartedAt, *rec.Snapshot); err != nil {
			return err
		}
		run.RecordsStored = sql.NullInt64{Int64: 1, Valid: true}
	}
	return nil
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
