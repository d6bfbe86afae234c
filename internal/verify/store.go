package verify

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/propsight/market-cli/internal/db"
)

// CandidateFilter specifies criteria for listing verification candidates.
type CandidateFilter struct {
	EntityType   string
	Status       Status
	ReviewStatus ReviewStatus
	Limit        int
}

// Store defines persistence for verification candidates. Candidates mutate
// only through the review transitions, never by direct field edits.
type Store interface {
	CreateCandidate(ctx context.Context, c *Candidate) (string, error)
	GetCandidate(ctx context.Context, id string) (*Candidate, error)
	ListCandidates(ctx context.Context, filter CandidateFilter) ([]Candidate, error)
	AutoConfirm(ctx context.Context, id string) error
	Review(ctx context.Context, id string, status ReviewStatus, resolution Resolution) error
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CreateCandidate inserts a verification candidate and fills in its id.
func (s *PostgresStore) CreateCandidate(ctx context.Context, c *Candidate) (string, error) {
	currentJSON, err := json.Marshal(c.CurrentValue)
	if err != nil {
		return "", eris.Wrap(err, "verify: marshal current value")
	}
	verifiedJSON, err := json.Marshal(c.VerifiedValue)
	if err != nil {
		return "", eris.Wrap(err, "verify: marshal verified value")
	}
	sources := c.Sources
	if sources == nil {
		sources = []SourceValue{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return "", eris.Wrap(err, "verify: marshal sources")
	}
	var mismatchJSON []byte
	if len(c.Mismatches) > 0 {
		mismatchJSON, err = json.Marshal(c.Mismatches)
		if err != nil {
			return "", eris.Wrap(err, "verify: marshal mismatches")
		}
	}

	var id string
	err = s.pool.QueryRow(ctx,
		`INSERT INTO market.verification_candidates
			(entity_type, entity_key, field, current_value, value_origin, verified_value,
			 sources, agreeing_source_count, total_source_count, verification_status, mismatches)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		c.EntityType, c.EntityKey, c.Field, currentJSON, string(c.ValueOrigin), verifiedJSON,
		sourcesJSON, c.AgreeingSourceCount, c.TotalSourceCount, string(c.VerificationStatus), mismatchJSON,
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "verify: create candidate %s/%s", c.EntityKey, c.Field)
	}
	c.ID = id
	c.ReviewStatus = ReviewOpen
	return id, nil
}

const candidateColumns = `id, entity_type, entity_key, field, current_value, value_origin,
	verified_value, sources, agreeing_source_count, total_source_count, verification_status,
	mismatches, review_status, resolution, created_at, resolved_at`

// GetCandidate fetches one candidate by id, or nil if it does not exist.
func (s *PostgresStore) GetCandidate(ctx context.Context, id string) (*Candidate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+` FROM market.verification_candidates WHERE id = $1`, id)
	c, err := scanCandidate(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "verify: get candidate %s", id)
	}
	return c, nil
}

// ListCandidates returns candidates matching the filter, oldest first.
func (s *PostgresStore) ListCandidates(ctx context.Context, filter CandidateFilter) ([]Candidate, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+candidateColumns+` FROM market.verification_candidates
		 WHERE ($1 = '' OR entity_type = $1)
		   AND ($2 = '' OR verification_status = $2)
		   AND ($3 = '' OR review_status = $3)
		 ORDER BY created_at ASC LIMIT $4`,
		filter.EntityType, string(filter.Status), string(filter.ReviewStatus), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "verify: list candidates")
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "verify: scan candidate")
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// AutoConfirm transitions an open candidate to auto_confirmed with the
// keep_current resolution.
func (s *PostgresStore) AutoConfirm(ctx context.Context, id string) error {
	return s.transition(ctx, id, ReviewAutoConfirmed, ResolveKeepCurrent)
}

// Review records a human review decision on an open candidate.
func (s *PostgresStore) Review(ctx context.Context, id string, status ReviewStatus, resolution Resolution) error {
	return s.transition(ctx, id, status, resolution)
}

func (s *PostgresStore) transition(ctx context.Context, id string, status ReviewStatus, resolution Resolution) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE market.verification_candidates
		 SET review_status = $2, resolution = NULLIF($3, ''), resolved_at = now()
		 WHERE id = $1 AND review_status = 'open'`,
		id, string(status), string(resolution),
	)
	if err != nil {
		return eris.Wrapf(err, "verify: transition candidate %s to %s", id, status)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("verify: candidate %s is not open for review", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (*Candidate, error) {
	var c Candidate
	var origin, status, reviewStatus string
	var resolution *string
	var currentJSON, verifiedJSON, sourcesJSON, mismatchJSON []byte
	if err := row.Scan(
		&c.ID, &c.EntityType, &c.EntityKey, &c.Field, &currentJSON, &origin,
		&verifiedJSON, &sourcesJSON, &c.AgreeingSourceCount, &c.TotalSourceCount, &status,
		&mismatchJSON, &reviewStatus, &resolution, &c.CreatedAt, &c.ResolvedAt,
	); err != nil {
		return nil, err
	}
	c.ValueOrigin = ValueOrigin(origin)
	c.VerificationStatus = Status(status)
	c.ReviewStatus = ReviewStatus(reviewStatus)
	if resolution != nil {
		c.Resolution = Resolution(*resolution)
	}
	if currentJSON != nil {
		_ = json.Unmarshal(currentJSON, &c.CurrentValue)
	}
	if verifiedJSON != nil {
		_ = json.Unmarshal(verifiedJSON, &c.VerifiedValue)
	}
	if sourcesJSON != nil {
		_ = json.Unmarshal(sourcesJSON, &c.Sources)
	}
	if mismatchJSON != nil {
		_ = json.Unmarshal(mismatchJSON, &c.Mismatches)
	}
	return &c, nil
}

// isNoRows matches pgx.ErrNoRows by identity or message; mock pools return
// an equivalent error that is not the same sentinel value.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || err.Error() == "no rows in result set"
}

var _ Store = (*PostgresStore)(nil)
