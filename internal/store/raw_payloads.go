package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/klauspost/compress/gzip"
)

// StoreRawPayload archives a compressed feed body. Identical bodies are stored
// once; a duplicate returns id 0.
func (s *Store) StoreRawPayload(ctx context.Context, runID int64, source, endpoint string, payload []byte) (int64, error) {
	compressed, err := compress(payload)
	if err != nil {
		return 0, err
	}

	hash := sha256.Sum256(payload)

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_payloads
		(ingest_run_id, fetched_at, source, endpoint, payload_compressed, payload_hash, schema_version)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(payload_hash) DO NOTHING
	`, nullInt64(runID), time.Now().UTC(), source, endpoint, compressed, hex.EncodeToString(hash[:]))
	if err != nil {
		return 0, fmt.Errorf("insert raw payload: %w", err)
	}

	if n, err := result.RowsAffected(); err != nil || n == 0 {
		return 0, err
	}
	return result.LastInsertId()
}

// CleanupOldRawPayloads deletes raw payloads older than retentionDays and
// returns the number removed.
func (s *Store) CleanupOldRawPayloads(retentionDays int) (int64, error) {
	result, err := s.db.Exec(`
		DELETE FROM raw_payloads
		WHERE SUBSTR(fetched_at, 1, 19) < datetime('now', '-' || ? || ' days')
	`, retentionDays)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("close gzip: %w", err)
	}
	return buf.Bytes(), nil
}
