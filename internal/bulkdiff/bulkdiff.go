// Package bulkdiff is the coarse-grained reconciliation path for whole-table
// syncs (CSV re-uploads, tender-list re-scrapes). It diffs a full incoming
// dataset against existing rows, classifies blocking versus warning
// conflicts, and gates bulk promotion on the absence of blocking conflicts.
package bulkdiff

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/propsight/market-cli/internal/authority"
	"github.com/propsight/market-cli/internal/canonhash"
)

// Severity grades a conflicting field change. A blocking conflict halts
// bulk promotion unless forced; a warning is informational only.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityBlock   Severity = "block"
)

// Status classifies one incoming entity against the existing table.
type Status string

const (
	StatusUnchanged Status = "unchanged"
	StatusChanged   Status = "changed"
	StatusNew       Status = "new"
	StatusMissing   Status = "missing"
)

// FieldChange is one differing field on a changed entity.
type FieldChange struct {
	Field      string   `json:"field"`
	Old        any      `json:"old"`
	New        any      `json:"new"`
	IsConflict bool     `json:"is_conflict"`
	Severity   Severity `json:"severity,omitempty"`
}

// EntityDiff is the per-entity diff result.
type EntityDiff struct {
	Key      string         `json:"key"`
	Status   Status         `json:"status"`
	Changes  []FieldChange  `json:"changes,omitempty"`
	Incoming map[string]any `json:"-"`
	Existing map[string]any `json:"-"`
}

func (d *EntityDiff) blockingConflicts() int {
	n := 0
	for _, c := range d.Changes {
		if c.IsConflict && c.Severity == SeverityBlock {
			n++
		}
	}
	return n
}

// Report is the full diff of one dataset pass.
type Report struct {
	EntityType        string       `json:"entity_type"`
	Unchanged         int          `json:"unchanged"`
	Changed           int          `json:"changed"`
	New               int          `json:"new"`
	Missing           int          `json:"missing"`
	WarningConflicts  int          `json:"warning_conflicts"`
	BlockingConflicts int          `json:"blocking_conflicts"`
	Diffs             []EntityDiff `json:"diffs"`
}

// CanAutoPromote reports whether the batch may be promoted without an
// explicit override.
func (r *Report) CanAutoPromote() bool {
	return r.BlockingConflicts == 0
}

// ConflictFunc decides whether a field change is a conflict and how severe.
// It sees the field name and both values; returning false means the change
// is a plain update.
type ConflictFunc func(field string, oldVal, newVal any) (bool, Severity)

// NoConflicts treats every change as a plain update.
func NoConflicts(string, any, any) (bool, Severity) { return false, "" }

// AuthorityConflicts derives a ConflictFunc from the field authority matrix:
// a change conflicts when the values disagree under the field's comparison
// policy, so tolerance-graded numeric fields absorb small drift. Fields in
// the blocking set grade as block, the rest as warning.
func AuthorityConflicts(rules *authority.Table, entityType string, blocking map[string]bool) ConflictFunc {
	return func(field string, oldVal, newVal any) (bool, Severity) {
		if oldVal == nil {
			return false, ""
		}
		if rules.ValuesMatch(entityType, field, oldVal, newVal) {
			return false, ""
		}
		if blocking[field] {
			return true, SeverityBlock
		}
		return true, SeverityWarning
	}
}

// diffWorkers bounds the parallel per-record compare phase.
const diffWorkers = 8

// Diff compares a full incoming dataset against existing rows keyed by the
// natural key. Only compareFields are compared; keys present in existing but
// absent from incoming are reported missing, never deleted. The diff phase
// is read-only and runs in parallel per record; output order is incoming
// order, then missing keys sorted.
func Diff(ctx context.Context, entityType string, incoming []map[string]any, existing map[string]map[string]any, keyField string, compareFields []string, conflict ConflictFunc) (*Report, error) {
	if keyField == "" {
		return nil, eris.New("bulkdiff: key field required")
	}
	if conflict == nil {
		conflict = NoConflicts
	}

	diffs := make([]EntityDiff, len(incoming))
	seen := make(map[string]bool, len(incoming))

	// Key extraction stays sequential so duplicate detection is ordered.
	keys := make([]string, len(incoming))
	for i, rec := range incoming {
		key, err := KeyString(rec[keyField])
		if err != nil {
			return nil, eris.Wrapf(err, "bulkdiff: record %d", i)
		}
		if seen[key] {
			return nil, eris.Errorf("bulkdiff: duplicate key %q in incoming data", key)
		}
		seen[key] = true
		keys[i] = key
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(diffWorkers)
	for i := range incoming {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			diffs[i] = diffOne(keys[i], incoming[i], existing[keys[i]], compareFields, conflict)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var missingKeys []string
	for key := range existing {
		if !seen[key] {
			missingKeys = append(missingKeys, key)
		}
	}
	sort.Strings(missingKeys)
	for _, key := range missingKeys {
		diffs = append(diffs, EntityDiff{Key: key, Status: StatusMissing, Existing: existing[key]})
	}

	report := &Report{EntityType: entityType, Diffs: diffs}
	for i := range diffs {
		d := &diffs[i]
		switch d.Status {
		case StatusUnchanged:
			report.Unchanged++
		case StatusChanged:
			report.Changed++
		case StatusNew:
			report.New++
		case StatusMissing:
			report.Missing++
		}
		for _, c := range d.Changes {
			if !c.IsConflict {
				continue
			}
			if c.Severity == SeverityBlock {
				report.BlockingConflicts++
			} else {
				report.WarningConflicts++
			}
		}
	}
	return report, nil
}

func diffOne(key string, incoming, existing map[string]any, compareFields []string, conflict ConflictFunc) EntityDiff {
	if existing == nil {
		return EntityDiff{Key: key, Status: StatusNew, Incoming: incoming}
	}

	var changes []FieldChange
	for _, f := range compareFields {
		newVal, has := incoming[f]
		if !has {
			// Absent incoming fields never clobber existing values.
			continue
		}
		oldVal := existing[f]
		if valuesEqual(oldVal, newVal) {
			continue
		}
		isConflict, severity := conflict(f, oldVal, newVal)
		changes = append(changes, FieldChange{
			Field: f, Old: oldVal, New: newVal,
			IsConflict: isConflict, Severity: severity,
		})
	}

	if len(changes) == 0 {
		return EntityDiff{Key: key, Status: StatusUnchanged, Incoming: incoming, Existing: existing}
	}
	return EntityDiff{Key: key, Status: StatusChanged, Changes: changes, Incoming: incoming, Existing: existing}
}

func valuesEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	return canonhash.MustHash(a) == canonhash.MustHash(b)
}

// KeyString renders a natural-key value as a string. Numeric keys from CSV
// parsing render without a decimal point when integral.
func KeyString(v any) (string, error) {
	switch k := v.(type) {
	case string:
		if k == "" {
			return "", eris.New("empty key")
		}
		return k, nil
	case float64:
		if k == float64(int64(k)) {
			return strconv.FormatInt(int64(k), 10), nil
		}
		return strconv.FormatFloat(k, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(k), nil
	case int64:
		return strconv.FormatInt(k, 10), nil
	case nil:
		return "", eris.New("missing key")
	default:
		return fmt.Sprintf("%v", k), nil
	}
}
