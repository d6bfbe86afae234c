package scrape

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/propsight/market-cli/internal/db"
	"github.com/propsight/market-cli/internal/trust"
)

// RunFilter specifies criteria for listing ingestion runs.
type RunFilter struct {
	Scraper string
	Status  RunStatus
	Limit   int
}

// Store defines persistence for ingestion runs and staged entities.
type Store interface {
	CreateRun(ctx context.Context, run *Run) (string, error)
	StartRun(ctx context.Context, runID string) error
	CompleteRun(ctx context.Context, runID string, counters Counters) error
	FailRun(ctx context.Context, runID string, counters Counters, errMsg string) error
	CancelRun(ctx context.Context, runID string, counters Counters) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
	AddPromoted(ctx context.Context, runID string, n int) error

	UpsertStaged(ctx context.Context, s *Staged) error
	GetStaged(ctx context.Context, entityType, entityKey, sourceDomain string) (*Staged, error)
	ListStagedByRun(ctx context.Context, runID string) ([]Staged, error)
}

// Counters holds the aggregate run statistics.
type Counters struct {
	PagesFetched   int
	ItemsExtracted int
	Errors         int
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CreateRun inserts a pending run with its config snapshot and returns its id.
func (s *PostgresStore) CreateRun(ctx context.Context, run *Run) (string, error) {
	var cfgJSON []byte
	if run.Config != nil {
		var err error
		cfgJSON, err = json.Marshal(run.Config)
		if err != nil {
			return "", eris.Wrap(err, "scrape: marshal run config")
		}
	}

	// The id is minted client side so logs can carry it before the
	// insert commits.
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO market.ingestion_runs (id, scraper, source_domain, source_tier, source_type, status, config)
		 VALUES ($1, $2, $3, $4, $5, 'pending', $6)`,
		id, run.Scraper, run.SourceDomain, string(run.SourceTier), string(run.SourceType), cfgJSON,
	)
	if err != nil {
		return "", eris.Wrapf(err, "scrape: create run for %s", run.Scraper)
	}
	return id, nil
}

// StartRun moves a run from pending to running.
func (s *PostgresStore) StartRun(ctx context.Context, runID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE market.ingestion_runs SET status = 'running', started_at = now() WHERE id = $1`,
		runID,
	)
	if err != nil {
		return eris.Wrapf(err, "scrape: start run %s", runID)
	}
	return nil
}

// CompleteRun finalizes a successful run with its counters.
func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, c Counters) error {
	return s.finishRun(ctx, runID, RunCompleted, c, "")
}

// FailRun marks a run failed, preserving the error message and trace.
func (s *PostgresStore) FailRun(ctx context.Context, runID string, c Counters, errMsg string) error {
	return s.finishRun(ctx, runID, RunFailed, c, errMsg)
}

// CancelRun marks a run cancelled, keeping whatever partial counters exist.
func (s *PostgresStore) CancelRun(ctx context.Context, runID string, c Counters) error {
	return s.finishRun(ctx, runID, RunCancelled, c, "")
}

func (s *PostgresStore) finishRun(ctx context.Context, runID string, status RunStatus, c Counters, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE market.ingestion_runs
		 SET status = $2, pages_fetched = $3, items_extracted = $4, errors = $5,
		     error = NULLIF($6, ''), completed_at = now()
		 WHERE id = $1`,
		runID, string(status), c.PagesFetched, c.ItemsExtracted, c.Errors, errMsg,
	)
	if err != nil {
		return eris.Wrapf(err, "scrape: finish run %s as %s", runID, status)
	}
	return nil
}

// AddPromoted bumps the promoted-items counter after the promotion engine
// processes staged rows from this run.
func (s *PostgresStore) AddPromoted(ctx context.Context, runID string, n int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE market.ingestion_runs SET items_promoted = items_promoted + $2 WHERE id = $1`,
		runID, n,
	)
	if err != nil {
		return eris.Wrapf(err, "scrape: add promoted for run %s", runID)
	}
	return nil
}

const runColumns = `id, scraper, source_domain, source_tier, source_type, status, config,
	pages_fetched, items_extracted, items_promoted, errors, error, started_at, completed_at, created_at`

// GetRun fetches one run by id.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM market.ingestion_runs WHERE id = $1`, runID)
	run, err := scanRun(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "scrape: get run %s", runID)
	}
	return run, nil
}

// ListRuns returns runs matching the filter, most recent first.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM market.ingestion_runs
		 WHERE ($1 = '' OR scraper = $1) AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC LIMIT $3`,
		filter.Scraper, string(filter.Status), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "scrape: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var tier, sourceType, status string
	var cfgJSON []byte
	var errStr *string
	if err := row.Scan(
		&r.ID, &r.Scraper, &r.SourceDomain, &tier, &sourceType, &status, &cfgJSON,
		&r.PagesFetched, &r.ItemsExtracted, &r.ItemsPromoted, &r.Errors, &errStr,
		&r.StartedAt, &r.CompletedAt, &r.CreatedAt,
	); err != nil {
		return nil, err
	}
	r.SourceTier = trust.Tier(tier)
	r.SourceType = SourceType(sourceType)
	r.Status = RunStatus(status)
	if errStr != nil {
		r.Error = *errStr
	}
	if cfgJSON != nil {
		_ = json.Unmarshal(cfgJSON, &r.Config)
	}
	return &r, nil
}

// UpsertStaged writes one staged extraction, overwriting any prior row for
// the same (entityType, entityKey, sourceDomain).
func (s *PostgresStore) UpsertStaged(ctx context.Context, staged *Staged) error {
	fieldsJSON, err := json.Marshal(staged.Fields)
	if err != nil {
		return eris.Wrap(err, "scrape: marshal staged fields")
	}
	var errsJSON []byte
	if len(staged.ParseErrors) > 0 {
		errsJSON, err = json.Marshal(staged.ParseErrors)
		if err != nil {
			return eris.Wrap(err, "scrape: marshal parse errors")
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO market.scraped_entities
			(entity_type, entity_key, source_domain, source_tier, source_url, run_id,
			 fields, content_hash, parse_status, parse_errors, scraped_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		 ON CONFLICT (entity_type, entity_key, source_domain) DO UPDATE SET
			source_tier = EXCLUDED.source_tier,
			source_url = EXCLUDED.source_url,
			run_id = EXCLUDED.run_id,
			fields = EXCLUDED.fields,
			content_hash = EXCLUDED.content_hash,
			parse_status = EXCLUDED.parse_status,
			parse_errors = EXCLUDED.parse_errors,
			scraped_at = now()`,
		staged.EntityType, staged.EntityKey, staged.SourceDomain, string(staged.SourceTier),
		staged.SourceURL, staged.RunID, fieldsJSON, staged.ContentHash,
		string(staged.ParseStatus), errsJSON,
	)
	if err != nil {
		return eris.Wrapf(err, "scrape: upsert staged %s/%s from %s",
			staged.EntityType, staged.EntityKey, staged.SourceDomain)
	}
	return nil
}

const stagedColumns = `id, entity_type, entity_key, source_domain, source_tier, source_url,
	run_id, fields, content_hash, parse_status, parse_errors, scraped_at`

// GetStaged fetches the current staged extraction for one (entity, source)
// pair, or nil if none exists.
func (s *PostgresStore) GetStaged(ctx context.Context, entityType, entityKey, sourceDomain string) (*Staged, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+stagedColumns+` FROM market.scraped_entities
		 WHERE entity_type = $1 AND entity_key = $2 AND source_domain = $3`,
		entityType, entityKey, sourceDomain,
	)
	staged, err := scanStaged(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "scrape: get staged %s/%s", entityType, entityKey)
	}
	return staged, nil
}

// ListStagedByRun returns all staged entities written by one run.
func (s *PostgresStore) ListStagedByRun(ctx context.Context, runID string) ([]Staged, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stagedColumns+` FROM market.scraped_entities WHERE run_id = $1 ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: list staged for run %s", runID)
	}
	defer rows.Close()

	var out []Staged
	for rows.Next() {
		staged, err := scanStaged(rows)
		if err != nil {
			return nil, eris.Wrap(err, "scrape: scan staged")
		}
		out = append(out, *staged)
	}
	return out, rows.Err()
}

func scanStaged(row rowScanner) (*Staged, error) {
	var st Staged
	var tier, parseStatus string
	var runID *string
	var fieldsJSON, errsJSON []byte
	if err := row.Scan(
		&st.ID, &st.EntityType, &st.EntityKey, &st.SourceDomain, &tier, &st.SourceURL,
		&runID, &fieldsJSON, &st.ContentHash, &parseStatus, &errsJSON, &st.ScrapedAt,
	); err != nil {
		return nil, err
	}
	st.SourceTier = trust.Tier(tier)
	st.ParseStatus = ParseStatus(parseStatus)
	if runID != nil {
		st.RunID = *runID
	}
	if fieldsJSON != nil {
		_ = json.Unmarshal(fieldsJSON, &st.Fields)
	}
	if errsJSON != nil {
		_ = json.Unmarshal(errsJSON, &st.ParseErrors)
	}
	return &st, nil
}

// isNoRows matches pgx.ErrNoRows by identity or message; mock pools return
// an equivalent error that is not the same sentinel value.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || err.Error() == "no rows in result set"
}

var _ Store = (*PostgresStore)(nil)
