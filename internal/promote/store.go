package promote

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/propsight/market-cli/internal/db"
	"github.com/propsight/market-cli/internal/trust"
)

// CanonicalFilter specifies criteria for listing canonical entities.
type CanonicalFilter struct {
	EntityType string
	Status     CanonicalStatus
	Limit      int
}

// CandidateFilter specifies criteria for listing review candidates.
type CandidateFilter struct {
	EntityType   string
	Reason       CandidateReason
	ReviewStatus ReviewStatus
	Limit        int
}

// Store defines persistence for canonical entities and review candidates.
type Store interface {
	GetCanonical(ctx context.Context, entityType, entityKey string) (*Canonical, error)
	CreateCanonical(ctx context.Context, c *Canonical) error
	UpdateCanonical(ctx context.Context, c *Canonical) error
	ListCanonical(ctx context.Context, filter CanonicalFilter) ([]Canonical, error)

	CreateCandidate(ctx context.Context, c *Candidate) (string, error)
	GetCandidate(ctx context.Context, id string) (*Candidate, error)
	ListCandidates(ctx context.Context, filter CandidateFilter) ([]Candidate, error)
	ReviewCandidate(ctx context.Context, id string, status ReviewStatus, reviewer string) error
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const canonicalColumns = `id, entity_type, entity_key, fields, labels, content_hash, confidence,
	status, highest_tier, provenance, first_seen_at, last_updated_at, last_promoted_at`

// GetCanonical fetches the canonical record for one entity, or nil if the
// entity has never been promoted.
func (s *PostgresStore) GetCanonical(ctx context.Context, entityType, entityKey string) (*Canonical, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+canonicalColumns+` FROM market.canonical_entities
		 WHERE entity_type = $1 AND entity_key = $2`,
		entityType, entityKey,
	)
	c, err := scanCanonical(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "promote: get canonical %s/%s", entityType, entityKey)
	}
	return c, nil
}

// CreateCanonical inserts a new canonical entity and fills in its id.
func (s *PostgresStore) CreateCanonical(ctx context.Context, c *Canonical) error {
	fieldsJSON, labelsJSON, provJSON, err := marshalCanonical(c)
	if err != nil {
		return err
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO market.canonical_entities
			(entity_type, entity_key, fields, labels, content_hash, confidence,
			 status, highest_tier, provenance, last_promoted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		 RETURNING id`,
		c.EntityType, c.EntityKey, fieldsJSON, labelsJSON, c.ContentHash, c.Confidence,
		string(c.Status), string(c.HighestTier), provJSON,
	).Scan(&c.ID)
	if err != nil {
		return eris.Wrapf(err, "promote: create canonical %s/%s", c.EntityType, c.EntityKey)
	}
	return nil
}

// UpdateCanonical persists a merged canonical record. The write is a single
// statement keyed by id, so a merge commits or fails whole.
func (s *PostgresStore) UpdateCanonical(ctx context.Context, c *Canonical) error {
	fieldsJSON, labelsJSON, provJSON, err := marshalCanonical(c)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE market.canonical_entities
		 SET fields = $2, labels = $3, content_hash = $4, confidence = $5,
		     status = $6, highest_tier = $7, provenance = $8,
		     last_updated_at = now(), last_promoted_at = now()
		 WHERE id = $1`,
		c.ID, fieldsJSON, labelsJSON, c.ContentHash, c.Confidence,
		string(c.Status), string(c.HighestTier), provJSON,
	)
	if err != nil {
		return eris.Wrapf(err, "promote: update canonical %s/%s", c.EntityType, c.EntityKey)
	}
	return nil
}

// ListCanonical returns canonical entities matching the filter.
func (s *PostgresStore) ListCanonical(ctx context.Context, filter CanonicalFilter) ([]Canonical, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+canonicalColumns+` FROM market.canonical_entities
		 WHERE ($1 = '' OR entity_type = $1) AND ($2 = '' OR status = $2)
		 ORDER BY last_updated_at DESC LIMIT $3`,
		filter.EntityType, string(filter.Status), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "promote: list canonical")
	}
	defer rows.Close()

	var out []Canonical
	for rows.Next() {
		c, err := scanCanonical(rows)
		if err != nil {
			return nil, eris.Wrap(err, "promote: scan canonical")
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func marshalCanonical(c *Canonical) (fields, labels, prov []byte, err error) {
	fields, err = json.Marshal(c.Fields)
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "promote: marshal canonical fields")
	}
	labelMap := c.Labels
	if labelMap == nil {
		labelMap = map[string]string{}
	}
	labels, err = json.Marshal(labelMap)
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "promote: marshal canonical labels")
	}
	provList := c.Provenance
	if provList == nil {
		provList = []ProvenanceEntry{}
	}
	prov, err = json.Marshal(provList)
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "promote: marshal provenance")
	}
	return fields, labels, prov, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCanonical(row rowScanner) (*Canonical, error) {
	var c Canonical
	var status, tier string
	var fieldsJSON, labelsJSON, provJSON []byte
	if err := row.Scan(
		&c.ID, &c.EntityType, &c.EntityKey, &fieldsJSON, &labelsJSON, &c.ContentHash,
		&c.Confidence, &status, &tier, &provJSON,
		&c.FirstSeenAt, &c.LastUpdatedAt, &c.LastPromotedAt,
	); err != nil {
		return nil, err
	}
	c.Status = CanonicalStatus(status)
	c.HighestTier = trust.Tier(tier)
	if fieldsJSON != nil {
		_ = json.Unmarshal(fieldsJSON, &c.Fields)
	}
	if labelsJSON != nil {
		_ = json.Unmarshal(labelsJSON, &c.Labels)
	}
	if provJSON != nil {
		_ = json.Unmarshal(provJSON, &c.Provenance)
	}
	return &c, nil
}

// CreateCandidate inserts a review-queue entry and returns its id.
func (s *PostgresStore) CreateCandidate(ctx context.Context, c *Candidate) (string, error) {
	fieldsJSON, err := json.Marshal(c.Fields)
	if err != nil {
		return "", eris.Wrap(err, "promote: marshal candidate fields")
	}
	var conflictJSON []byte
	if len(c.ConflictDetails) > 0 {
		conflictJSON, err = json.Marshal(c.ConflictDetails)
		if err != nil {
			return "", eris.Wrap(err, "promote: marshal conflict details")
		}
	}

	var id string
	err = s.pool.QueryRow(ctx,
		`INSERT INTO market.entity_candidates
			(entity_type, entity_key, source_domain, source_tier, fields, reason, conflict_details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		c.EntityType, c.EntityKey, c.SourceDomain, string(c.SourceTier),
		fieldsJSON, string(c.Reason), conflictJSON,
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "promote: create candidate %s/%s", c.EntityType, c.EntityKey)
	}
	c.ID = id
	c.ReviewStatus = ReviewOpen
	return id, nil
}

const candidateColumns = `id, entity_type, entity_key, source_domain, source_tier, fields,
	reason, conflict_details, review_status, reviewed_by, reviewed_at, created_at`

// GetCandidate fetches one candidate by id, or nil if it does not exist.
func (s *PostgresStore) GetCandidate(ctx context.Context, id string) (*Candidate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+` FROM market.entity_candidates WHERE id = $1`, id)
	c, err := scanCandidate(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "promote: get candidate %s", id)
	}
	return c, nil
}

// ListCandidates returns review candidates matching the filter, oldest first
// so reviewers drain the queue in arrival order.
func (s *PostgresStore) ListCandidates(ctx context.Context, filter CandidateFilter) ([]Candidate, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+candidateColumns+` FROM market.entity_candidates
		 WHERE ($1 = '' OR entity_type = $1) AND ($2 = '' OR reason = $2) AND ($3 = '' OR review_status = $3)
		 ORDER BY created_at ASC LIMIT $4`,
		filter.EntityType, string(filter.Reason), string(filter.ReviewStatus), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "promote: list candidates")
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "promote: scan candidate")
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ReviewCandidate records a review decision. Only open candidates move;
// a second decision on the same candidate is a no-op reported as an error.
func (s *PostgresStore) ReviewCandidate(ctx context.Context, id string, status ReviewStatus, reviewer string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE market.entity_candidates
		 SET review_status = $2, reviewed_by = NULLIF($3, ''), reviewed_at = now()
		 WHERE id = $1 AND review_status = 'open'`,
		id, string(status), reviewer,
	)
	if err != nil {
		return eris.Wrapf(err, "promote: review candidate %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("promote: candidate %s is not open for review", id)
	}
	return nil
}

func scanCandidate(row rowScanner) (*Candidate, error) {
	var c Candidate
	var tier, reason, reviewStatus string
	var reviewedBy *string
	var fieldsJSON, conflictJSON []byte
	if err := row.Scan(
		&c.ID, &c.EntityType, &c.EntityKey, &c.SourceDomain, &tier, &fieldsJSON,
		&reason, &conflictJSON, &reviewStatus, &reviewedBy, &c.ReviewedAt, &c.CreatedAt,
	); err != nil {
		return nil, err
	}
	c.SourceTier = trust.Tier(tier)
	c.Reason = CandidateReason(reason)
	c.ReviewStatus = ReviewStatus(reviewStatus)
	if reviewedBy != nil {
		c.ReviewedBy = *reviewedBy
	}
	if fieldsJSON != nil {
		_ = json.Unmarshal(fieldsJSON, &c.Fields)
	}
	if conflictJSON != nil {
		_ = json.Unmarshal(conflictJSON, &c.ConflictDetails)
	}
	return &c, nil
}

// isNoRows matches pgx.ErrNoRows by identity or message; mock pools return
// an equivalent error that is not the same sentinel value.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || err.Error() == "no rows in result set"
}

var _ Store = (*PostgresStore)(nil)
