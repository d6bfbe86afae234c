// Package authority holds the per-entity-type, per-field rules governing
// which trust tier may write which field, whether values carry a
// verification label, and how two values are compared for agreement.
package authority

import (
	"math"
	"strings"

	"github.com/propsight/market-cli/internal/canonhash"
	"github.com/propsight/market-cli/internal/geo"
	"github.com/propsight/market-cli/internal/trust"
)

// coordinateToleranceM is how far apart two coordinate values for the same
// entity may sit and still count as the same location. Portals round their
// pins to the building, not the lot corner.
const coordinateToleranceM = 50.0

// ComparePolicy decides how two values for a field are compared.
type ComparePolicy string

const (
	CompareExact            ComparePolicy = "exact"
	CompareTolerance        ComparePolicy = "tolerance"
	CompareLatestWins       ComparePolicy = "latest_wins"
	CompareAlwaysUnverified ComparePolicy = "always_unverified"
)

// Rule governs one (entityType, field) pair.
type Rule struct {
	MinTier            trust.Tier    `yaml:"min_tier"`
	TierAAuthoritative bool          `yaml:"tier_a_authoritative"` // Tier B cannot override a Tier-A-sourced value
	AllowTierB         bool          `yaml:"allow_tier_b"`
	AllowTierC         bool          `yaml:"allow_tier_c"`
	RequireLabel       bool          `yaml:"require_label"`
	Label              string        `yaml:"label"`
	Compare            ComparePolicy `yaml:"compare"`
	TolerancePct       float64       `yaml:"tolerance_pct"` // used when Compare == tolerance
}

// Table is the full authority matrix, keyed by entity type and field name.
// Like the tier table it is constructed configuration, not global state.
type Table struct {
	rules map[string]map[string]Rule
}

// NewTable builds a Table from entityType → field → Rule.
func NewTable(rules map[string]map[string]Rule) *Table {
	t := &Table{rules: make(map[string]map[string]Rule, len(rules))}
	for et, fields := range rules {
		m := make(map[string]Rule, len(fields))
		for f, r := range fields {
			m[strings.ToLower(f)] = r
		}
		t.rules[et] = m
	}
	return t
}

// Rule returns the rule for a field, if one exists.
func (t *Table) Rule(entityType, field string) (Rule, bool) {
	fields, ok := t.rules[entityType]
	if !ok {
		return Rule{}, false
	}
	r, ok := fields[strings.ToLower(field)]
	return r, ok
}

// CanUpdate reports whether the given tier may write the field, in the
// context of the existing canonical record's highest contributing tier.
//
// With no rule on file the default applies: Tier A and B may write, Tier C
// may not. Tier A is always allowed. Tier B is allowed when the rule permits
// it and either no Tier-A value exists or the rule does not mark Tier A
// authoritative. Tier C needs an explicit grant.
func (t *Table) CanUpdate(entityType, field string, tier, existingHighest trust.Tier) bool {
	rule, ok := t.Rule(entityType, field)
	if !ok {
		return tier != trust.TierC
	}

	switch tier {
	case trust.TierA:
		return true
	case trust.TierB:
		if !rule.AllowTierB {
			return false
		}
		if rule.TierAAuthoritative && existingHighest == trust.TierA {
			return false
		}
		return true
	default:
		return rule.AllowTierC
	}
}

// RequiredLabel returns the verification label text a value must carry, or
// "" if the field needs none.
func (t *Table) RequiredLabel(entityType, field string) string {
	rule, ok := t.Rule(entityType, field)
	if !ok || !rule.RequireLabel {
		return ""
	}
	if rule.Label != "" {
		return rule.Label
	}
	return "unverified"
}

// FilterAllowed projects an incoming field map down to the fields the tier
// may write given the existing canonical's highest tier. This is the gate
// in front of every canonical mutation.
func (t *Table) FilterAllowed(entityType string, tier, existingHighest trust.Tier, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for f, v := range fields {
		if t.CanUpdate(entityType, f, tier, existingHighest) {
			out[f] = v
		}
	}
	return out
}

// ComparePolicyFor returns the comparison policy for a field; fields with
// no rule compare exactly.
func (t *Table) ComparePolicyFor(entityType, field string) ComparePolicy {
	rule, ok := t.Rule(entityType, field)
	if !ok || rule.Compare == "" {
		return CompareExact
	}
	return rule.Compare
}

// ValuesMatch reports whether two values agree under the field's policy.
// latest_wins and always_unverified never treat a difference as a conflict.
func (t *Table) ValuesMatch(entityType, field string, a, b any) bool {
	rule, _ := t.Rule(entityType, field)

	switch t.ComparePolicyFor(entityType, field) {
	case CompareLatestWins, CompareAlwaysUnverified:
		return true
	case CompareTolerance:
		fa, aOK := toFloat(a)
		fb, bOK := toFloat(b)
		if aOK && bOK {
			return WithinTolerance(fa, fb, rule.TolerancePct)
		}
		// Coordinate pairs agree by ground distance, not field equality.
		if latA, lngA, ok := geo.CoordsFromField(a); ok {
			if latB, lngB, ok := geo.CoordsFromField(b); ok {
				return geo.WithinMeters(latA, lngA, latB, lngB, coordinateToleranceM)
			}
		}
		return exactMatch(a, b)
	default:
		return exactMatch(a, b)
	}
}

// WithinTolerance reports whether b is within pct percent of a.
func WithinTolerance(a, b, pct float64) bool {
	if a == b {
		return true
	}
	base := math.Max(math.Abs(a), math.Abs(b))
	if base == 0 {
		return true
	}
	return math.Abs(a-b)/base*100 <= pct
}

func exactMatch(a, b any) bool {
	return canonhash.MustHash(a) == canonhash.MustHash(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
