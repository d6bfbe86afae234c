// Package fetcher downloads source pages and bulk files over HTTP and FTP,
// with per-domain rate limiting and an optional read-through page cache.
package fetcher

import (
	"context"
)

// Fetcher retrieves the raw content of a source URL. Implementations are
// safe for concurrent use; all scrape workers share one Fetcher so that
// per-domain rate limits hold across the whole pool.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}
