package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LeaseRepository keeps one row per document being ingested. A lease can be
// taken over only after it expires, or re-taken by the same holder.
type LeaseRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewLeaseRepository(db *sql.DB) *LeaseRepository {
	return &LeaseRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *LeaseRepository) Acquire(ctx context.Context, documentID, holder string, ttl time.Duration) (bool, error) {
	now := r.now()
	res, err := r.db.ExecContext(ctx, `
INSERT INTO ingestion_leases (document_id, holder, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (document_id) DO UPDATE
SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
WHERE ingestion_leases.expires_at < $4 OR ingestion_leases.holder = EXCLUDED.holder
`, documentID, holder, now.Add(ttl), now)
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *LeaseRepository) Active(ctx context.Context, documentID string) (bool, error) {
	var active bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ingestion_leases WHERE document_id = $1 AND expires_at >= $2)`,
		documentID, r.now(),
	).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("check lease: %w", err)
	}
	return active, nil
}

func (r *LeaseRepository) Release(ctx context.Context, documentID, holder string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM ingestion_leases WHERE document_id = $1 AND holder = $2`, documentID, holder)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
