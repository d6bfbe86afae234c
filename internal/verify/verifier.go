package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/propsight/market-cli/internal/authority"
	"github.com/propsight/market-cli/internal/canonhash"
)

// Request is one cross-source verification job: check the given fields of a
// stored entity against every registered adapter.
type Request struct {
	EntityType  string
	EntityKey   string
	ProjectName string
	Fields      []string
	Current     map[string]any
	Origin      ValueOrigin
}

// Verifier fans a lookup out to every adapter and aggregates agreement per
// field. Below-quorum agreement is never applied automatically.
type Verifier struct {
	store    Store
	rules    *authority.Table
	adapters []Adapter
}

// NewVerifier creates a verifier over the given adapters.
func NewVerifier(store Store, rules *authority.Table, adapters ...Adapter) *Verifier {
	return &Verifier{store: store, rules: rules, adapters: adapters}
}

// sourceResult pairs an adapter with its lookup outcome.
type sourceResult struct {
	domain string
	result Result
}

// Verify runs one verification job and returns the persisted per-field
// candidates. Eligible candidates are auto-confirmed in the same pass.
func (v *Verifier) Verify(ctx context.Context, req Request) ([]Candidate, error) {
	if len(v.adapters) == 0 {
		return nil, eris.New("verify: no adapters registered")
	}
	log := zap.L().With(
		zap.String("component", "verify.verifier"),
		zap.String("entity_key", req.EntityKey),
	)

	results := v.query(ctx, req.ProjectName, log)

	var out []Candidate
	for _, field := range req.Fields {
		cand := v.aggregate(req, field, results)

		if v.store != nil {
			if _, err := v.store.CreateCandidate(ctx, &cand); err != nil {
				return out, err
			}
			if cand.CanAutoConfirm() {
				if err := v.store.AutoConfirm(ctx, cand.ID); err != nil {
					return out, err
				}
				cand.ReviewStatus = ReviewAutoConfirmed
				cand.Resolution = ResolveKeepCurrent
			}
		} else if cand.CanAutoConfirm() {
			cand.ReviewStatus = ReviewAutoConfirmed
			cand.Resolution = ResolveKeepCurrent
		}

		log.Info("field verified",
			zap.String("field", field),
			zap.String("status", string(cand.VerificationStatus)),
			zap.Int("agreeing", cand.AgreeingSourceCount),
			zap.Int("total", cand.TotalSourceCount),
			zap.String("review", string(cand.ReviewStatus)),
		)
		out = append(out, cand)
	}
	return out, nil
}

// query fans the project lookup out to every adapter and keeps the usable
// answers. Adapter faults are results, not errors; one broken source never
// sinks a verification pass.
func (v *Verifier) query(ctx context.Context, projectName string, log *zap.Logger) []sourceResult {
	results := make([]sourceResult, len(v.adapters))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, a := range v.adapters {
		g.Go(func() error {
			results[i] = sourceResult{domain: a.Domain(), result: a.VerifyProject(gctx, projectName)}
			return nil
		})
	}
	_ = g.Wait()

	usable := make([]sourceResult, 0, len(results))
	for _, sr := range results {
		switch {
		case sr.result.Kind == ResultError:
			log.Warn("adapter failed", zap.String("domain", sr.domain), zap.String("error", sr.result.Message))
		case sr.result.Usable():
			usable = append(usable, sr)
		}
	}
	return usable
}

// aggregate folds all source answers for one field into a candidate. The
// verified value is the one reported by the largest agreeing set of sources;
// agreement uses the field's comparison policy, so tolerance-graded numerics
// absorb rounding drift between portals.
func (v *Verifier) aggregate(req Request, field string, results []sourceResult) Candidate {
	cand := Candidate{
		EntityType:   req.EntityType,
		EntityKey:    req.EntityKey,
		Field:        field,
		CurrentValue: req.Current[field],
		ValueOrigin:  req.Origin,
		ReviewStatus: ReviewOpen,
		CreatedAt:    time.Now().UTC(),
	}

	var values []SourceValue
	for _, sr := range results {
		val, ok := sr.result.Data[field]
		if !ok {
			continue
		}
		values = append(values, SourceValue{
			Domain:    sr.domain,
			Value:     val,
			URL:       sr.result.SourceURL,
			Timestamp: time.Now().UTC(),
		})
	}
	cand.Sources = values
	cand.TotalSourceCount = len(values)

	// Group sources into agreeing sets and take the largest.
	var groups [][]int
	for i, sv := range values {
		placed := false
		for gi, group := range groups {
			if v.agrees(req.EntityType, field, values[group[0]].Value, sv.Value) {
				groups[gi] = append(group, i)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []int{i})
		}
	}

	best := -1
	for gi, group := range groups {
		if best == -1 || len(group) > len(groups[best]) {
			best = gi
		}
	}
	if best >= 0 {
		cand.AgreeingSourceCount = len(groups[best])
		cand.VerifiedValue = values[groups[best][0]].Value
		for gi, group := range groups {
			if gi == best {
				continue
			}
			for _, i := range group {
				cand.Mismatches = append(cand.Mismatches,
					fmt.Sprintf("%s reports %v", values[i].Domain, values[i].Value))
			}
		}
	}

	cand.VerificationStatus = v.status(req.EntityType, field, &cand)
	return cand
}

// status derives the verification outcome. Quorum is checked first: two
// agreeing sources are never enough, no matter how they align with the
// stored value.
func (v *Verifier) status(entityType, field string, c *Candidate) Status {
	if c.AgreeingSourceCount < Quorum {
		return StatusUnverified
	}
	if c.AgreeingSourceCount*2 <= c.TotalSourceCount {
		return StatusConflict
	}
	if c.CurrentValue != nil && v.agrees(entityType, field, c.CurrentValue, c.VerifiedValue) {
		return StatusConfirmed
	}
	return StatusMismatch
}

// agrees compares two reported values: within tolerance for tolerance-graded
// fields, canonical-hash equality otherwise.
func (v *Verifier) agrees(entityType, field string, a, b any) bool {
	rule, ok := v.rules.Rule(entityType, field)
	if ok && rule.Compare == authority.CompareTolerance {
		fa, aOK := asFloat(a)
		fb, bOK := asFloat(b)
		if aOK && bOK {
			return authority.WithinTolerance(fa, fb, rule.TolerancePct)
		}
	}
	return canonhash.MustHash(a) == canonhash.MustHash(b)
}

// Approve settles an open candidate with the given resolution.
func (v *Verifier) Approve(ctx context.Context, id string, resolution Resolution) error {
	if resolution == "" {
		return eris.New("verify: approval requires a resolution")
	}
	return v.store.Review(ctx, id, ReviewApproved, resolution)
}

// Reject closes an open candidate as wrong.
func (v *Verifier) Reject(ctx context.Context, id string, resolution Resolution) error {
	if resolution == "" {
		resolution = ResolveSourceError
	}
	return v.store.Review(ctx, id, ReviewRejected, resolution)
}

// Defer parks an open candidate for later investigation.
func (v *Verifier) Defer(ctx context.Context, id string) error {
	return v.store.Review(ctx, id, ReviewDeferred, ResolveNeedsInvestigation)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
