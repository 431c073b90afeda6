//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"momenta/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveExperiment(ctx context.Context, exp model.ExperimentRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeExperiment(exp)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO experiments (id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, exp.ID, exp.SchemaVersion, exp.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (model.ExperimentRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.ExperimentRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM experiments WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ExperimentRecord{}, false, nil
		}
		return model.ExperimentRecord{}, false, err
	}

	exp, err := DecodeExperiment(payload)
	if err != nil {
		return model.ExperimentRecord{}, false, fmt.Errorf("decode experiment %s: %w", id, err)
	}
	return exp, true, nil
}

func (s *SQLiteStore) ListExperimentIDs(ctx context.Context) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id FROM experiments ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) SaveMoments(ctx context.Context, agg model.AggregatedMoments) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeMoments(agg)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO moments (run_id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, agg.RunID, agg.SchemaVersion, agg.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetMoments(ctx context.Context, runID string) (model.AggregatedMoments, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.AggregatedMoments{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM moments WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.AggregatedMoments{}, false, nil
		}
		return model.AggregatedMoments{}, false, err
	}

	agg, err := DecodeMoments(payload)
	if err != nil {
		return model.AggregatedMoments{}, false, fmt.Errorf("decode moments %s: %w", runID, err)
	}
	return agg, true, nil
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `DELETE FROM experiments; DELETE FROM moments;`)
	return err
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS experiments (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS moments (
			run_id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
