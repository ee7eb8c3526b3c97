package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// AssetRepository is a persistent asset tier: raw bytes by URL.
type AssetRepository struct {
	db  *sql.DB
	now func() time.Time
}

// Assets returns the asset repository for this store.
func (s *Store) Assets() *AssetRepository {
	return &AssetRepository{db: s.db, now: time.Now}
}

// Get returns the stored bytes for url. A missing entry is not an error.
func (r *AssetRepository) Get(ctx context.Context, url string) ([]byte, bool, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT data FROM assets WHERE url = ?`, url).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "get asset %s", url)
	}
	return data, true, nil
}

// Put stores data for url, replacing any previous copy.
func (r *AssetRepository) Put(ctx context.Context, url string, data []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO assets (url, data, size, fetched_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET data = excluded.data, size = excluded.size, fetched_at = excluded.fetched_at`,
		url, data, len(data), r.now().UnixNano())
	return errors.Wrapf(err, "put asset %s", url)
}

// Delete removes url's entry.
func (r *AssetRepository) Delete(ctx context.Context, url string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM assets WHERE url = ?`, url)
	return errors.Wrapf(err, "delete asset %s", url)
}

// Prune removes entries fetched before cutoff and reports how many went.
func (r *AssetRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM assets WHERE fetched_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, errors.Wrap(err, "prune assets")
	}
	return res.RowsAffected()
}

// Usage reports the number of stored assets and their total size.
func (r *AssetRepository) Usage(ctx context.Context) (count, bytes int64, err error) {
	err = r.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM assets`).Scan(&count, &bytes)
	return count, bytes, errors.Wrap(err, "asset usage")
}
