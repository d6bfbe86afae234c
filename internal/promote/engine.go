package promote

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/propsight/market-cli/internal/authority"
	"github.com/propsight/market-cli/internal/canonhash"
	"github.com/propsight/market-cli/internal/scrape"
	"github.com/propsight/market-cli/internal/trust"
)

// Confidence seeds for newly created canonical entities.
const (
	confidenceTierA = 1.0
	confidenceOther = 0.8
)

// keyLock serializes promotions per entity. Two sources racing to promote
// the same entity would otherwise interleave their read-merge-write cycles.
type keyLock struct {
	locks sync.Map
}

func (k *keyLock) lock(key string) func() {
	v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Engine applies staged extractions to the canonical layer. Every write is
// gated twice: the source tier's entity-level capability first, then the
// per-field authority matrix. Anything that fails a gate with data still
// worth keeping becomes a review candidate.
type Engine struct {
	store Store
	runs  scrape.Store
	tiers *trust.Table
	rules *authority.Table
	locks keyLock
}

// NewEngine creates a promotion engine. The runs store is used to bump
// per-run promoted counters and may be nil when promoting ad hoc.
func NewEngine(store Store, runs scrape.Store, tiers *trust.Table, rules *authority.Table) *Engine {
	return &Engine{store: store, runs: runs, tiers: tiers, rules: rules}
}

// PromoteRun promotes every staged entity written by one ingestion run and
// returns the aggregate outcome. Individual promotion failures are counted
// and logged, never fatal to the batch.
func (e *Engine) PromoteRun(ctx context.Context, runID string) (Summary, error) {
	log := zap.L().With(
		zap.String("component", "promote.engine"),
		zap.String("run_id", runID),
	)

	var sum Summary
	if e.runs == nil {
		return sum, eris.New("promote: engine has no run store")
	}
	staged, err := e.runs.ListStagedByRun(ctx, runID)
	if err != nil {
		return sum, err
	}

	for i := range staged {
		st := &staged[i]
		if st.ParseStatus == scrape.ParseFailed {
			sum.Skipped++
			continue
		}
		res, err := e.PromoteStaged(ctx, st)
		if err != nil {
			sum.Errors++
			log.Warn("promotion failed",
				zap.String("entity_key", st.EntityKey),
				zap.Error(err),
			)
			continue
		}
		switch res.Outcome {
		case OutcomeCreated:
			sum.Created++
		case OutcomeMerged:
			sum.Merged++
		case OutcomeQueuedReview:
			sum.Queued++
		default:
			sum.Skipped++
		}
	}

	if n := sum.Promoted(); n > 0 {
		if err := e.runs.AddPromoted(ctx, runID, n); err != nil {
			log.Error("failed to record promoted count", zap.Error(err))
		}
	}

	log.Info("run promoted",
		zap.Int("created", sum.Created),
		zap.Int("merged", sum.Merged),
		zap.Int("queued", sum.Queued),
		zap.Int("skipped", sum.Skipped),
		zap.Int("errors", sum.Errors),
	)
	return sum, nil
}

// PromoteStaged promotes one staged extraction. Promotions for the same
// (entityType, entityKey) are serialized.
func (e *Engine) PromoteStaged(ctx context.Context, st *scrape.Staged) (*Result, error) {
	unlock := e.locks.lock(st.EntityType + "|" + st.EntityKey)
	defer unlock()

	caps := e.tiers.Capabilities(st.SourceTier)
	if !caps.CanUpdateCanonical {
		return e.queueCandidate(ctx, st, ReasonTierCOnly, nil)
	}

	canonical, err := e.store.GetCanonical(ctx, st.EntityType, st.EntityKey)
	if err != nil {
		return nil, err
	}
	if canonical == nil {
		if !caps.CanCreateCanonical {
			return e.queueCandidate(ctx, st, ReasonTierCOnly, nil)
		}
		return e.create(ctx, st)
	}
	return e.merge(ctx, st, canonical)
}

// create builds the first canonical record for an entity from the fields
// the source tier is allowed to write at all.
func (e *Engine) create(ctx context.Context, st *scrape.Staged) (*Result, error) {
	fields := e.rules.FilterAllowed(st.EntityType, st.SourceTier, trust.TierC, st.Fields)
	if len(fields) == 0 {
		return &Result{Outcome: OutcomeSkipped, Detail: "no writable fields"}, nil
	}

	hash, err := canonhash.Hash(fields)
	if err != nil {
		return nil, eris.Wrapf(err, "promote: hash %s/%s", st.EntityType, st.EntityKey)
	}

	confidence := confidenceOther
	if st.SourceTier == trust.TierA {
		confidence = confidenceTierA
	}

	c := &Canonical{
		EntityType:  st.EntityType,
		EntityKey:   st.EntityKey,
		Fields:      fields,
		Labels:      e.labelsFor(st.EntityType, fields, nil),
		ContentHash: hash,
		Confidence:  confidence,
		Status:      StatusActive,
		HighestTier: st.SourceTier,
		Provenance: []ProvenanceEntry{
			provenanceFrom(st, fieldNames(fields)),
		},
	}
	if err := e.store.CreateCanonical(ctx, c); err != nil {
		return nil, err
	}

	zap.L().Info("canonical created",
		zap.String("component", "promote.engine"),
		zap.String("entity_type", st.EntityType),
		zap.String("entity_key", st.EntityKey),
		zap.String("tier", string(st.SourceTier)),
		zap.Int("fields", len(fields)),
	)
	return &Result{Outcome: OutcomeCreated, Canonical: c}, nil
}

// merge folds a staged extraction into an existing canonical record. A field
// merges only if its value actually changed and the tier clears the authority
// check against the canonical's highest contributing tier. Any field failing
// that check turns the whole extraction into a conflict candidate, with no
// canonical mutation at all.
func (e *Engine) merge(ctx context.Context, st *scrape.Staged, c *Canonical) (*Result, error) {
	allowed := e.rules.FilterAllowed(st.EntityType, st.SourceTier, trust.TierC, st.Fields)

	mergeable := make(map[string]any)
	conflicts := make(map[string]FieldConflict)
	for f, v := range allowed {
		cur, has := c.Fields[f]
		if has && canonhash.MustHash(cur) == canonhash.MustHash(v) {
			continue
		}
		if e.rules.CanUpdate(st.EntityType, f, st.SourceTier, c.HighestTier) {
			mergeable[f] = v
			continue
		}
		conflicts[f] = FieldConflict{Expected: cur, Actual: v}
	}

	if len(conflicts) > 0 {
		return e.queueCandidate(ctx, st, ReasonConflict, conflicts)
	}
	if len(mergeable) == 0 {
		return &Result{Outcome: OutcomeSkipped, Detail: "no new data"}, nil
	}

	merged := make(map[string]any, len(c.Fields)+len(mergeable))
	for f, v := range c.Fields {
		merged[f] = v
	}
	for f, v := range mergeable {
		merged[f] = v
	}

	hash, err := canonhash.Hash(merged)
	if err != nil {
		return nil, eris.Wrapf(err, "promote: hash %s/%s", st.EntityType, st.EntityKey)
	}

	c.Fields = merged
	c.Labels = e.labelsFor(st.EntityType, mergeable, c.Labels)
	c.ContentHash = hash
	c.HighestTier = trust.Best(c.HighestTier, st.SourceTier)
	if st.SourceTier == trust.TierA {
		c.Confidence = confidenceTierA
	} else if c.Confidence < confidenceOther {
		c.Confidence = confidenceOther
	}
	c.Provenance = append(c.Provenance, provenanceFrom(st, fieldNames(mergeable)))

	if err := e.store.UpdateCanonical(ctx, c); err != nil {
		return nil, err
	}

	zap.L().Info("canonical merged",
		zap.String("component", "promote.engine"),
		zap.String("entity_type", st.EntityType),
		zap.String("entity_key", st.EntityKey),
		zap.String("tier", string(st.SourceTier)),
		zap.Strings("fields", fieldNames(mergeable)),
	)
	return &Result{Outcome: OutcomeMerged, Canonical: c}, nil
}

// queueCandidate parks the staged extraction in the review queue instead of
// touching canonical.
func (e *Engine) queueCandidate(ctx context.Context, st *scrape.Staged, reason CandidateReason, conflicts map[string]FieldConflict) (*Result, error) {
	cand := &Candidate{
		EntityType:      st.EntityType,
		EntityKey:       st.EntityKey,
		SourceDomain:    st.SourceDomain,
		SourceTier:      st.SourceTier,
		Fields:          st.Fields,
		Reason:          reason,
		ConflictDetails: conflicts,
	}
	if _, err := e.store.CreateCandidate(ctx, cand); err != nil {
		return nil, err
	}

	zap.L().Info("queued for review",
		zap.String("component", "promote.engine"),
		zap.String("entity_type", st.EntityType),
		zap.String("entity_key", st.EntityKey),
		zap.String("reason", string(reason)),
		zap.Int("conflicts", len(conflicts)),
	)
	return &Result{Outcome: OutcomeQueuedReview, Reason: reason, Candidate: cand}, nil
}

// ApproveCandidate applies a reviewed candidate to canonical and marks it
// merged. Human approval overrides the tier and authority gates that parked
// the candidate, so all of its fields land.
func (e *Engine) ApproveCandidate(ctx context.Context, id, reviewer string) (*Canonical, error) {
	cand, err := e.store.GetCandidate(ctx, id)
	if err != nil {
		return nil, err
	}
	if cand == nil {
		return nil, eris.Errorf("promote: candidate %s not found", id)
	}
	if cand.ReviewStatus != ReviewOpen {
		return nil, eris.Errorf("promote: candidate %s is %s, not open", id, cand.ReviewStatus)
	}

	unlock := e.locks.lock(cand.EntityType + "|" + cand.EntityKey)
	defer unlock()

	canonical, err := e.store.GetCanonical(ctx, cand.EntityType, cand.EntityKey)
	if err != nil {
		return nil, err
	}

	prov := ProvenanceEntry{
		Source:    cand.SourceDomain,
		Tier:      cand.SourceTier,
		Fields:    fieldNames(cand.Fields),
		Timestamp: time.Now().UTC(),
	}

	if canonical == nil {
		hash, err := canonhash.Hash(cand.Fields)
		if err != nil {
			return nil, eris.Wrap(err, "promote: hash candidate fields")
		}
		confidence := confidenceOther
		if cand.SourceTier == trust.TierA {
			confidence = confidenceTierA
		}
		canonical = &Canonical{
			EntityType:  cand.EntityType,
			EntityKey:   cand.EntityKey,
			Fields:      cand.Fields,
			Labels:      e.labelsFor(cand.EntityType, cand.Fields, nil),
			ContentHash: hash,
			Confidence:  confidence,
			Status:      StatusActive,
			HighestTier: cand.SourceTier,
			Provenance:  []ProvenanceEntry{prov},
		}
		if err := e.store.CreateCanonical(ctx, canonical); err != nil {
			return nil, err
		}
	} else {
		merged := make(map[string]any, len(canonical.Fields)+len(cand.Fields))
		for f, v := range canonical.Fields {
			merged[f] = v
		}
		for f, v := range cand.Fields {
			merged[f] = v
		}
		hash, err := canonhash.Hash(merged)
		if err != nil {
			return nil, eris.Wrap(err, "promote: hash merged fields")
		}
		canonical.Fields = merged
		canonical.Labels = e.labelsFor(cand.EntityType, cand.Fields, canonical.Labels)
		canonical.ContentHash = hash
		canonical.HighestTier = trust.Best(canonical.HighestTier, cand.SourceTier)
		canonical.Provenance = append(canonical.Provenance, prov)
		if err := e.store.UpdateCanonical(ctx, canonical); err != nil {
			return nil, err
		}
	}

	if err := e.store.ReviewCandidate(ctx, id, ReviewMerged, reviewer); err != nil {
		return nil, err
	}
	return canonical, nil
}

// RejectCandidate closes a candidate without touching canonical.
func (e *Engine) RejectCandidate(ctx context.Context, id, reviewer string) error {
	return e.store.ReviewCandidate(ctx, id, ReviewRejected, reviewer)
}

// labelsFor returns the canonical label map after stamping the required
// verification label onto every newly written field that demands one.
func (e *Engine) labelsFor(entityType string, written map[string]any, existing map[string]string) map[string]string {
	var out map[string]string
	if existing != nil {
		out = make(map[string]string, len(existing))
		for f, l := range existing {
			out[f] = l
		}
	}
	for f := range written {
		if label := e.rules.RequiredLabel(entityType, f); label != "" {
			if out == nil {
				out = make(map[string]string)
			}
			out[f] = label
		}
	}
	return out
}

func provenanceFrom(st *scrape.Staged, fields []string) ProvenanceEntry {
	return ProvenanceEntry{
		Source:    st.SourceDomain,
		StagedID:  st.ID,
		Tier:      st.SourceTier,
		Fields:    fields,
		Timestamp: time.Now().UTC(),
	}
}

func fieldNames(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for f := range m {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
