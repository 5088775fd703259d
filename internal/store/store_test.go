package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	_ "modernc.org/sqlite"

	"github.com/lox/vantaaweather/internal/fmi"
	"github.com/lox/vantaaweather/internal/weather"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := New(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func ptr[T any](v T) *T { return &v }

func readRawPayload(s *Store, id int64) ([]byte, error) {
	var compressed []byte
	if err := s.db.QueryRow(`SELECT payload_compressed FROM raw_payloads WHERE id = ?`, id).Scan(&compressed); err != nil {
		return nil, err
	}
	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

func TestMigrate_Idempotent(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("version = %d, want %d", version, len(migrations))
	}
}

func TestRawPayload_RoundTripAndDedupe(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	payload := []byte(`<wfs:FeatureCollection xmlns:wfs="http://www.opengis.net/wfs/2.0"/>`)

	id, err := store.StoreRawPayload(ctx, 0, SourceFMI, EndpointObservations, payload)
	if err != nil {
		t.Fatalf("StoreRawPayload: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id for first insert")
	}

	got, err := readRawPayload(store, id)
	if err != nil {
		t.Fatalf("readRawPayload: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("payload = %q, want %q", got, payload)
	}

	dup, err := store.StoreRawPayload(ctx, 0, SourceFMI, EndpointObservations, payload)
	if err != nil {
		t.Fatalf("StoreRawPayload duplicate: %v", err)
	}
	if dup != 0 {
		t.Errorf("duplicate id = %d, want 0", dup)
	}
}

func TestCleanupOldRawPayloads(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.StoreRawPayload(ctx, 0, SourceFMI, EndpointObservations, []byte("new")); err != nil {
		t.Fatalf("StoreRawPayload: %v", err)
	}
	old, err := compress([]byte("old"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.db.Exec(`
		INSERT INTO raw_payloads (fetched_at, source, endpoint, payload_compressed, payload_hash)
		VALUES (?, ?, ?, ?, ?)
	`, time.Now().UTC().Add(-40*24*time.Hour), SourceFMI, EndpointObservations, old, "oldhash"); err != nil {
		t.Fatalf("insert old payload: %v", err)
	}

	deleted, err := store.CleanupOldRawPayloads(30)
	if err != nil {
		t.Fatalf("CleanupOldRawPayloads: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}

func TestSnapshots_InsertAndRecent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if latest, err := store.LatestSnapshot(); err != nil || latest != nil {
		t.Fatalf("LatestSnapshot on empty store = %v, %v; want nil, nil", latest, err)
	}

	first := weather.Snapshot{
		Temperature: ptr(-5.3),
		Condition:   "Snow",
		ConditionFi: "Lumisadetta",
		Station:     "Vantaa",
		WawaCode:    ptr(71),
		Timestamp:   ptr("2026-02-19T18:50:00Z"),
	}
	second := weather.Snapshot{
		Temperature: ptr(-6.1),
		FeelsLike:   ptr(-9.4),
		WindSpeed:   ptr(3.2),
		Condition:   "N/A",
		ConditionFi: "N/A",
		Station:     "Vantaa",
	}

	now := time.Now()
	if _, err := store.InsertSnapshot(ctx, 0, now.Add(-10*time.Minute), first); err != nil {
		t.Fatalf("InsertSnapshot: %v", err)
	}
	if _, err := store.InsertSnapshot(ctx, 0, now, second); err != nil {
		t.Fatalf("InsertSnapshot: %v", err)
	}

	recs, err := store.RecentSnapshots(10)
	if err != nil {
		t.Fatalf("RecentSnapshots: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len(recs) = %d, want 2", len(recs))
	}

	got := recs[0]
	if got.Temperature == nil || *got.Temperature != -6.1 {
		t.Errorf("Temperature = %v, want -6.1", got.Temperature)
	}
	if got.WawaCode != nil {
		t.Errorf("WawaCode = %v, want nil", *got.WawaCode)
	}
	if got.Timestamp != nil {
		t.Errorf("Timestamp = %v, want nil", *got.Timestamp)
	}

	older := recs[1]
	if older.WawaCode == nil || *older.WawaCode != 71 {
		t.Errorf("WawaCode = %v, want 71", older.WawaCode)
	}
	if older.Timestamp == nil || *older.Timestamp != "2026-02-19T18:50:00Z" {
		t.Errorf("Timestamp = %v, want 2026-02-19T18:50:00Z", older.Timestamp)
	}
	if older.FeelsLike != nil {
		t.Errorf("FeelsLike = %v, want nil", *older.FeelsLike)
	}
}

func TestRecordFetch_Success(t *testing.T) {
	store := setupTestStore(t)

	snap := weather.Snapshot{Temperature: ptr(-6.1), Condition: "Snow", ConditionFi: "Lumisadetta", Station: "Vantaa"}
	err := store.RecordFetch(context.Background(), weather.FetchRecord{
		StartedAt: time.Now(),
		Payload:   []byte("<xml/>"),
		Params:    3,
		Snapshot:  &snap,
	})
	if err != nil {
		t.Fatalf("RecordFetch: %v", err)
	}

	latest, err := store.LatestSnapshot()
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if latest == nil || latest.Condition != "Snow" {
		t.Fatalf("LatestSnapshot = %+v, want Snow", latest)
	}
	if latest.IngestRunID == 0 {
		t.Error("expected snapshot linked to ingest run")
	}

	stats, err := store.GetIngestStats(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("GetIngestStats: %v", err)
	}
	if stats.TotalRuns != 1 || stats.FailedRuns != 0 {
		t.Errorf("stats = %+v, want 1 run, 0 failed", stats)
	}
	if stats.LastSuccess.IsZero() {
		t.Error("expected LastSuccess to be set")
	}
}

func TestRecordFetch_Failure(t *testing.T) {
	store := setupTestStore(t)

	err := store.RecordFetch(context.Background(), weather.FetchRecord{
		StartedAt: time.Now(),
		Err:       errors.Join(errors.New("fetch"), &fmi.StatusError{StatusCode: 503}),
	})
	if err != nil {
		t.Fatalf("RecordFetch: %v", err)
	}

	runs, err := store.GetRecentIngestErrors(10)
	if err != nil {
		t.Fatalf("GetRecentIngestErrors: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	if !runs[0].HTTPStatus.Valid || runs[0].HTTPStatus.Int64 != 503 {
		t.Errorf("HTTPStatus = %v, want 503", runs[0].HTTPStatus)
	}
	if !runs[0].ErrorMessage.Valid {
		t.Error("expected error message")
	}
	if runs[0].RecordsStored.Valid {
		t.Error("expected no records stored")
	}

	if latest, _ := store.LatestSnapshot(); latest != nil {
		t.Errorf("LatestSnapshot = %+v, want nil", latest)
	}
}

func TestRecordFetch_ArchiveFailureCompletesRun(t *testing.T) {
	store := setupTestStore(t)
	if _, err := store.db.Exec(`DROP TABLE snapshots`); err != nil {
		t.Fatal(err)
	}

	snap := weather.Snapshot{Condition: "Snow", ConditionFi: "Lumisadetta", Station: "Vantaa"}
	err := store.RecordFetch(context.Background(), weather.FetchRecord{
		StartedAt: time.Now(),
		Payload:   []byte("<xml/>"),
		Params:    3,
		Snapshot:  &snap,
	})
	if err == nil {
		t.Fatal("expected RecordFetch to fail without a snapshots table")
	}

	runs, err := store.GetRecentIngestErrors(10)
	if err != nil {
		t.Fatalf("GetRecentIngestErrors: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	run := runs[0]
	if !run.FinishedAt.Valid {
		t.Error("expected run to be completed")
	}
	if !strings.Contains(run.ErrorMessage.String, "insert snapshot") {
		t.Errorf("ErrorMessage = %q, want insert snapshot error", run.ErrorMessage.String)
	}
	if !run.HTTPStatus.Valid || run.HTTPStatus.Int64 != 200 {
		t.Errorf("HTTPStatus = %v, want 200", run.HTTPStatus)
	}
	if run.RecordsStored.Valid {
		t.Error("expected no records stored")
	}
}
