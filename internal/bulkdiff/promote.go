package bulkdiff

import (
	"context"

	"go.uber.org/zap"
)

// Syncer adapts one domain table to the bulk pipeline. Implementations own
// the SQL; the pipeline owns the gating and ordering.
type Syncer interface {
	// EntityType names the dataset (e.g., "gls_tender").
	EntityType() string

	// KeyField is the natural-key field in incoming records.
	KeyField() string

	// CompareFields lists the fields the diff phase compares.
	CompareFields() []string

	// LoadExisting returns the current table contents keyed by natural key.
	LoadExisting(ctx context.Context) (map[string]map[string]any, error)

	// Recompute fills in derived fields on a prospective row. It runs before
	// every insert and update so denormalized values never go stale.
	Recompute(record map[string]any)

	// Insert writes new rows in one batch and returns how many landed.
	Insert(ctx context.Context, records []map[string]any) (int64, error)

	// Update rewrites one existing row with the merged record.
	Update(ctx context.Context, key string, record map[string]any) error
}

// PromoteOptions controls the promotion phase.
type PromoteOptions struct {
	// Force applies conflicting changes and overrides the blocking gate.
	Force bool
	// DryRun counts what would happen without writing.
	DryRun bool
}

// PromoteSummary reports what the promotion phase did.
type PromoteSummary struct {
	Inserted         int `json:"inserted"`
	Updated          int `json:"updated"`
	SkippedUnchanged int `json:"skipped_unchanged"`
	SkippedMissing   int `json:"skipped_missing"`
	SkippedConflict  int `json:"skipped_conflict"`
}

// Applied returns how many rows were written.
func (s PromoteSummary) Applied() int {
	return s.Inserted + s.Updated
}

// Promote applies a diff report to the domain table. With blocking conflicts
// present and no force flag the whole batch is refused with nothing written;
// otherwise new rows insert, changed rows take their non-conflicting field
// changes (all changes when forced), and missing rows are left alone.
func Promote(ctx context.Context, s Syncer, report *Report, opts PromoteOptions) (PromoteSummary, error) {
	log := zap.L().With(
		zap.String("component", "bulkdiff.promote"),
		zap.String("entity_type", s.EntityType()),
	)

	var sum PromoteSummary
	if !report.CanAutoPromote() && !opts.Force {
		sum.SkippedConflict = report.BlockingConflicts
		log.Warn("promotion refused",
			zap.Int("blocking_conflicts", report.BlockingConflicts),
		)
		return sum, nil
	}

	var inserts []map[string]any
	for i := range report.Diffs {
		d := &report.Diffs[i]
		switch d.Status {
		case StatusUnchanged:
			sum.SkippedUnchanged++

		case StatusMissing:
			// Rows that vanished from the source are never auto-deleted.
			sum.SkippedMissing++

		case StatusNew:
			rec := cloneRecord(d.Incoming)
			s.Recompute(rec)
			inserts = append(inserts, rec)
			sum.Inserted++

		case StatusChanged:
			rec := cloneRecord(d.Existing)
			applied := 0
			for _, c := range d.Changes {
				if c.IsConflict && !opts.Force {
					continue
				}
				rec[c.Field] = c.New
				applied++
			}
			if applied == 0 {
				sum.SkippedConflict++
				continue
			}
			s.Recompute(rec)
			if !opts.DryRun {
				if err := s.Update(ctx, d.Key, rec); err != nil {
					return sum, err
				}
			}
			sum.Updated++
		}
	}

	if len(inserts) > 0 && !opts.DryRun {
		if _, err := s.Insert(ctx, inserts); err != nil {
			return sum, err
		}
	}

	log.Info("promotion applied",
		zap.Int("inserted", sum.Inserted),
		zap.Int("updated", sum.Updated),
		zap.Int("skipped_unchanged", sum.SkippedUnchanged),
		zap.Int("skipped_missing", sum.SkippedMissing),
		zap.Int("skipped_conflict", sum.SkippedConflict),
		zap.Bool("dry_run", opts.DryRun),
	)
	return sum, nil
}

func cloneRecord(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
