package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"neurofault/internal/model"

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

func (s *SQLiteStore) SaveCampaign(ctx context.Context, campaign model.CampaignRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeCampaign(campaign)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO campaigns (id, created_at_utc, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at_utc = excluded.created_at_utc,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, campaign.ID, campaign.CreatedAtUTC, campaign.SchemaVersion, campaign.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetCampaign(ctx context.Context, id string) (model.CampaignRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.CampaignRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM campaigns WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.CampaignRecord{}, false, nil
		}
		return model.CampaignRecord{}, false, err
	}

	campaign, err := DecodeCampaign(payload)
	if err != nil {
		return model.CampaignRecord{}, false, fmt.Errorf("decode campaign %s: %w", id, err)
	}
	return campaign, true, nil
}

func (s *SQLiteStore) ListCampaigns(ctx context.Context) ([]model.CampaignRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, payload FROM campaigns ORDER BY created_at_utc DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CampaignRecord
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		campaign, err := DecodeCampaign(payload)
		if err != nil {
			return nil, fmt.Errorf("decode campaign %s: %w", id, err)
		}
		out = append(out, campaign)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveFaultRun(ctx context.Context, run model.FaultRunRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeFaultRun(run)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO fault_runs (campaign_id, run_key, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(campaign_id, run_key) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, run.CampaignID, run.Key, run.SchemaVersion, run.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetFaultRun(ctx context.Context, campaignID, key string) (model.FaultRunRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.FaultRunRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM fault_runs WHERE campaign_id = ? AND run_key = ?`, campaignID, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.FaultRunRecord{}, false, nil
		}
		return model.FaultRunRecord{}, false, err
	}

	run, err := DecodeFaultRun(payload)
	if err != nil {
		return model.FaultRunRecord{}, false, fmt.Errorf("decode fault run %s/%s: %w", campaignID, key, err)
	}
	return run, true, nil
}

func (s *SQLiteStore) ListFaultRuns(ctx context.Context, campaignID string) ([]model.FaultRunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT run_key, payload FROM fault_runs WHERE campaign_id = ? ORDER BY run_key ASC`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FaultRunRecord
	for rows.Next() {
		var (
			key     string
			payload []byte
		)
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, err
		}
		run, err := DecodeFaultRun(payload)
		if err != nil {
			return nil, fmt.Errorf("decode fault run %s/%s: %w", campaignID, key, err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteCampaign(ctx context.Context, id string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM fault_runs WHERE campaign_id = ?`, id); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM campaigns WHERE id = ?`, id); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
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
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS campaigns (
			id TEXT PRIMARY KEY,
			created_at_utc TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS fault_runs (
			campaign_id TEXT NOT NULL,
			run_key TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (campaign_id, run_key)
		);
	`)
	return err
}
