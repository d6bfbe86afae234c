// Package promote is the reconciliation state machine: it merges staged
// per-source extractions into canonical records, gated by tier capability
// and field authority. Unauthorized or conflicting updates are diverted
// into a review queue instead of applied.
package promote

import (
	"time"

	"github.com/propsight/market-cli/internal/trust"
)

// CanonicalStatus is the serving-layer state of a canonical entity.
type CanonicalStatus string

const (
	StatusActive      CanonicalStatus = "active"
	StatusDeprecated  CanonicalStatus = "deprecated"
	StatusNeedsReview CanonicalStatus = "needs_review"
	StatusPending     CanonicalStatus = "pending"
)

// ProvenanceEntry records one source's contribution to a canonical entity.
type ProvenanceEntry struct {
	Source    string     `json:"source"`
	StagedID  int64      `json:"staged_id"`
	Tier      trust.Tier `json:"tier"`
	Fields    []string   `json:"fields"`
	Timestamp time.Time  `json:"timestamp"`
}

// Canonical is the merged, serving-layer truth for one (entityType, entityKey).
type Canonical struct {
	ID             int64             `json:"id"`
	EntityType     string            `json:"entity_type"`
	EntityKey      string            `json:"entity_key"`
	Fields         map[string]any    `json:"fields"`
	Labels         map[string]string `json:"labels,omitempty"` // verification labels per field
	ContentHash    string            `json:"content_hash"`
	Confidence     float64           `json:"confidence"`
	Status         CanonicalStatus   `json:"status"`
	HighestTier    trust.Tier        `json:"highest_tier"`
	Provenance     []ProvenanceEntry `json:"provenance"`
	FirstSeenAt    time.Time         `json:"first_seen_at"`
	LastUpdatedAt  time.Time         `json:"last_updated_at"`
	LastPromotedAt *time.Time        `json:"last_promoted_at,omitempty"`
}

// CandidateReason explains why an entity landed in the review queue.
type CandidateReason string

const (
	ReasonTierCOnly     CandidateReason = "tier_c_only"
	ReasonConflict      CandidateReason = "conflict"
	ReasonSchemaChange  CandidateReason = "schema_change"
	ReasonLowConfidence CandidateReason = "low_confidence"
	ReasonFieldMismatch CandidateReason = "field_mismatch"
)

// ReviewStatus is the review workflow state of a candidate.
type ReviewStatus string

const (
	ReviewOpen     ReviewStatus = "open"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
	ReviewMerged   ReviewStatus = "merged"
)

// FieldConflict is one field's expected/actual pair in a conflict candidate.
type FieldConflict struct {
	Expected any `json:"expected"`
	Actual   any `json:"actual"`
}

// Candidate is a staged-but-not-merged entity awaiting human review.
// Candidates mutate only through the store's review transitions.
type Candidate struct {
	ID              string                   `json:"id"`
	EntityType      string                   `json:"entity_type"`
	EntityKey       string                   `json:"entity_key"`
	SourceDomain    string                   `json:"source_domain"`
	SourceTier      trust.Tier               `json:"source_tier"`
	Fields          map[string]any           `json:"fields"`
	Reason          CandidateReason          `json:"reason"`
	ConflictDetails map[string]FieldConflict `json:"conflict_details,omitempty"`
	ReviewStatus    ReviewStatus             `json:"review_status"`
	ReviewedBy      string                   `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time               `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
}

// Outcome is the result of promoting one staged entity.
type Outcome string

const (
	OutcomeCreated      Outcome = "created"
	OutcomeMerged       Outcome = "merged"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeQueuedReview Outcome = "queued_review"
)

// Result reports what a single promotion did.
type Result struct {
	Outcome   Outcome
	Reason    CandidateReason // set when Outcome == OutcomeQueuedReview
	Detail    string
	Canonical *Canonical
	Candidate *Candidate
}

// Summary aggregates outcomes over a batch of promotions.
type Summary struct {
	Created int
	Merged  int
	Skipped int
	Queued  int
	Errors  int
}

// Promoted returns how many staged entities reached canonical.
func (s Summary) Promoted() int {
	return s.Created + s.Merged
}
