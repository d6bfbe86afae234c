package fetcher

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// CachedFetcher wraps another Fetcher with a read-through page cache backed
// by a local SQLite file. Cache hits skip the network and the rate limiter,
// which makes repeated diff runs against the same source cheap.
type CachedFetcher struct {
	inner Fetcher
	db    *sql.DB
	ttl   time.Duration
}

const cacheMigration = `
CREATE TABLE IF NOT EXISTS page_cache (
	url        TEXT PRIMARY KEY,
	body       BLOB NOT NULL,
	fetched_at DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_page_cache_expires ON page_cache(expires_at);
`

// NewCachedFetcher opens (or creates) the cache database at path and wraps
// inner with it.
func NewCachedFetcher(inner Fetcher, path string, ttl time.Duration) (*CachedFetcher, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open cache %s", path)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "fetcher: cache pragma %s", pragma)
		}
	}
	if _, err := db.Exec(cacheMigration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "fetcher: migrate cache")
	}
	return &CachedFetcher{inner: inner, db: db, ttl: ttl}, nil
}

// Fetch returns the cached body when fresh, otherwise fetches through and
// stores the result.
func (c *CachedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT body FROM page_cache WHERE url = ? AND expires_at > datetime('now')`,
		url,
	).Scan(&body)
	if err == nil {
		return body, nil
	}
	if err != sql.ErrNoRows {
		zap.L().Warn("page cache read failed", zap.String("url", url), zap.Error(err))
	}

	body, err = c.inner.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO page_cache (url, body, fetched_at, expires_at)
		 VALUES (?, ?, datetime('now'), datetime('now', ?))
		 ON CONFLICT(url) DO UPDATE SET
			body = excluded.body,
			fetched_at = excluded.fetched_at,
			expires_at = excluded.expires_at`,
		url, body, ttlModifier(c.ttl),
	)
	if err != nil {
		// A cache write failure only costs a refetch later.
		zap.L().Warn("page cache write failed", zap.String("url", url), zap.Error(err))
	}
	return body, nil
}

// Prune removes expired entries and returns how many were deleted.
func (c *CachedFetcher) Prune(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM page_cache WHERE expires_at <= datetime('now')`)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: prune cache")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close closes the cache database.
func (c *CachedFetcher) Close() error {
	return c.db.Close()
}

func ttlModifier(ttl time.Duration) string {
	secs := int64(ttl.Seconds())
	if secs <= 0 {
		secs = 24 * 3600
	}
	return "+" + strconv.FormatInt(secs, 10) + " seconds"
}
