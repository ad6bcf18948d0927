package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/loyalty/internal/model"
)

type ArchiveStore struct {
	db *sql.DB
}

func NewArchiveStore(db *sql.DB) *ArchiveStore {
	return &ArchiveStore{db: db}
}

const archiveCols = `id, merchant_id, from_activity_id, to_activity_id, record_count, object_key, created_at`

func scanArchiveRun(sc scanner) (*model.ArchiveRun, error) {
	var r model.ArchiveRun
	err := sc.Scan(&r.ID, &r.MerchantID, &r.FromActivityID, &r.ToActivityID, &r.RecordCount, &r.ObjectKey, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LastRun returns the merchant's most recent archive run, or nil if none.
func (s *ArchiveStore) LastRun(ctx context.Context, merchantID int64) (*model.ArchiveRun, error) {
	r, err := scanArchiveRun(s.db.QueryRowContext(ctx,
		`SELECT `+archiveCols+` FROM archive_runs WHERE merchant_id = ? ORDER BY to_activity_id DESC LIMIT 1`,
		merchantID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last archive run: %w", err)
	}
	return r, nil
}

func (s *ArchiveStore) Record(ctx context.Context, run model.ArchiveRun) (*model.ArchiveRun, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO archive_runs (merchant_id, from_activity_id, to_activity_id, record_count, object_key)
		 VALUES (?, ?, ?, ?, ?)`,
		run.MerchantID, run.FromActivityID, run.ToActivityID, run.RecordCount, run.ObjectKey,
	)
	if err != nil {
		return nil, fmt.Errorf("insert archive run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	r, err := scanArchiveRun(s.db.QueryRowContext(ctx, `SELECT `+archiveCols+` FROM archive_runs WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("read archive run: %w", err)
	}
	return r, nil
}
