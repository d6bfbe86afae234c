// Package verify cross-checks stored field values against several
// institutional sources and requires a quorum of independent agreement
// before a discrepancy can be confirmed automatically. Anything below
// quorum goes to human review, no matter how confident a single source is.
package verify

import (
	"context"
	"time"
)

// Quorum is the minimum count of independently agreeing sources required
// for automatic confirmation.
const Quorum = 3

// MinMatchScore is the fuzzy name-match floor below which an adapter result
// is discarded as a wrong-project match.
const MinMatchScore = 0.6

// Confidence bands for adapter results.
const (
	confidenceHigh   = 0.95
	confidenceMedium = 0.8
)

// Band grades an adapter's self-reported confidence.
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// BandFor maps a confidence score to its band.
func BandFor(confidence float64) Band {
	switch {
	case confidence >= confidenceHigh:
		return BandHigh
	case confidence >= confidenceMedium:
		return BandMedium
	default:
		return BandLow
	}
}

// ResultKind discriminates an adapter lookup result. Not-found and
// low-confidence outcomes are data, not errors.
type ResultKind string

const (
	ResultFound    ResultKind = "found"
	ResultNotFound ResultKind = "not_found"
	ResultError    ResultKind = "error"
)

// Result is one adapter's answer for one project lookup.
type Result struct {
	Kind       ResultKind
	Data       map[string]any
	Confidence float64
	MatchScore float64
	SourceURL  string
	Message    string
}

// Found builds a successful lookup result.
func Found(data map[string]any, confidence, matchScore float64, sourceURL string) Result {
	return Result{
		Kind: ResultFound, Data: data,
		Confidence: confidence, MatchScore: matchScore, SourceURL: sourceURL,
	}
}

// NotFound builds a no-match result.
func NotFound() Result {
	return Result{Kind: ResultNotFound}
}

// Failed builds an error result carrying the fault message.
func Failed(message string) Result {
	return Result{Kind: ResultError, Message: message}
}

// Band returns the result's confidence band.
func (r Result) Band() Band {
	return BandFor(r.Confidence)
}

// Usable reports whether the result contributes to verification: a found
// match at or above the name-match floor.
func (r Result) Usable() bool {
	return r.Kind == ResultFound && r.MatchScore >= MinMatchScore
}

// Adapter is the per-source verification contract. Concrete adapters wrap
// one institutional site's search and are injected into the Verifier.
type Adapter interface {
	// Name returns the unique adapter identifier.
	Name() string

	// Domain returns the source domain the adapter queries.
	Domain() string

	// VerifyProject looks up a project by name and returns whatever fields
	// the source publishes for it.
	VerifyProject(ctx context.Context, projectName string) Result

	// SearchProject returns candidate project names matching a query, for
	// interactive disambiguation.
	SearchProject(ctx context.Context, query string) ([]string, error)
}

// ValueOrigin records where the current stored value came from.
type ValueOrigin string

const (
	OriginCSV      ValueOrigin = "csv"
	OriginDatabase ValueOrigin = "database"
	OriginComputed ValueOrigin = "computed"
)

// Status is the verification outcome for one field.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusMismatch   Status = "mismatch"
	StatusUnverified Status = "unverified"
	StatusConflict   Status = "conflict"
)

// ReviewStatus is the review workflow state of a verification candidate.
type ReviewStatus string

const (
	ReviewOpen          ReviewStatus = "open"
	ReviewApproved      ReviewStatus = "approved"
	ReviewRejected      ReviewStatus = "rejected"
	ReviewAutoConfirmed ReviewStatus = "auto_confirmed"
	ReviewDeferred      ReviewStatus = "deferred"
)

// Resolution tags how a reviewed candidate was settled.
type Resolution string

const (
	ResolveKeepCurrent        Resolution = "keep_current"
	ResolveUpdateToVerified   Resolution = "update_to_verified"
	ResolveNeedsInvestigation Resolution = "needs_investigation"
	ResolveSourceError        Resolution = "source_error"
)

// SourceValue is one source's reported value for one field.
type SourceValue struct {
	Domain    string    `json:"domain"`
	Value     any       `json:"value"`
	URL       string    `json:"url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Candidate is the cross-validation result for one (entity, field).
type Candidate struct {
	ID                  string        `json:"id"`
	EntityType          string        `json:"entity_type"`
	EntityKey           string        `json:"entity_key"`
	Field               string        `json:"field"`
	CurrentValue        any           `json:"current_value"`
	ValueOrigin         ValueOrigin   `json:"value_origin"`
	VerifiedValue       any           `json:"verified_value"`
	Sources             []SourceValue `json:"sources"`
	AgreeingSourceCount int           `json:"agreeing_source_count"`
	TotalSourceCount    int           `json:"total_source_count"`
	VerificationStatus  Status        `json:"verification_status"`
	Mismatches          []string      `json:"mismatches,omitempty"`
	ReviewStatus        ReviewStatus  `json:"review_status"`
	Resolution          Resolution    `json:"resolution,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	ResolvedAt          *time.Time    `json:"resolved_at,omitempty"`
}

// CanAutoConfirm reports whether the candidate may skip human review. It
// holds only with a full quorum of agreeing sources and a confirmed status.
func (c *Candidate) CanAutoConfirm() bool {
	return c.AgreeingSourceCount >= Quorum && c.VerificationStatus == StatusConfirmed
}
