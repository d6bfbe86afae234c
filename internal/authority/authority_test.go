package authority

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propsight/market-cli/internal/trust"
)

func TestCanUpdate_NoRuleDefaults(t *testing.T) {
	table := NewTable(nil)

	assert.True(t, table.CanUpdate("project", "some_field", trust.TierA, trust.TierC))
	assert.True(t, table.CanUpdate("project", "some_field", trust.TierB, trust.TierA))
	assert.False(t, table.CanUpdate("project", "some_field", trust.TierC, trust.TierC))
}

func TestCanUpdate_TierAAlwaysAllowed(t *testing.T) {
	table := DefaultTable()
	assert.True(t, table.CanUpdate("project", "total_units", trust.TierA, trust.TierA))
	assert.True(t, table.CanUpdate("project", "tenure", trust.TierA, trust.TierA))
}

func TestCanUpdate_TierBBlockedByAuthoritativeTierA(t *testing.T) {
	table := DefaultTable()

	// No Tier-A value yet: Tier B may seed the field.
	assert.True(t, table.CanUpdate("project", "total_units", trust.TierB, trust.TierB))
	assert.True(t, table.CanUpdate("project", "total_units", trust.TierB, trust.TierC))

	// Tier A has contributed: Tier B may no longer touch it.
	assert.False(t, table.CanUpdate("project", "total_units", trust.TierB, trust.TierA))
}

func TestCanUpdate_TierBNotPermitted(t *testing.T) {
	table := DefaultTable()
	assert.False(t, table.CanUpdate("project", "tenure", trust.TierB, trust.TierB))
	assert.False(t, table.CanUpdate("project", "coordinates", trust.TierB, trust.TierC))
}

func TestCanUpdate_TierCNeedsExplicitGrant(t *testing.T) {
	table := DefaultTable()
	assert.True(t, table.CanUpdate("project", "market_sentiment", trust.TierC, trust.TierC))
	assert.False(t, table.CanUpdate("project", "total_units", trust.TierC, trust.TierC))
}

func TestRequiredLabel(t *testing.T) {
	table := DefaultTable()
	assert.Equal(t, "indicative", table.RequiredLabel("project", "launch_psf"))
	assert.Equal(t, "unverified", table.RequiredLabel("project", "market_sentiment"))
	assert.Equal(t, "", table.RequiredLabel("project", "district"))
	assert.Equal(t, "", table.RequiredLabel("project", "no_such_field"))
}

func TestFilterAllowed(t *testing.T) {
	table := DefaultTable()

	in := map[string]any{
		"total_units":      500,
		"tenure":           "99-year",
		"market_sentiment": "bullish",
		"developer":        "Alpha Dev",
	}

	// Tier B against a Tier-A canonical: total_units and tenure drop out.
	out := table.FilterAllowed("project", trust.TierB, trust.TierA, in)
	assert.NotContains(t, out, "total_units")
	assert.NotContains(t, out, "tenure")
	assert.Contains(t, out, "market_sentiment")
	assert.Contains(t, out, "developer")

	// Tier C keeps only its explicit grant.
	out = table.FilterAllowed("project", trust.TierC, trust.TierC, in)
	assert.Equal(t, map[string]any{"market_sentiment": "bullish"}, out)

	// Tier A keeps everything.
	out = table.FilterAllowed("project", trust.TierA, trust.TierA, in)
	assert.Len(t, out, 4)
}

func TestValuesMatch_Exact(t *testing.T) {
	table := DefaultTable()
	assert.True(t, table.ValuesMatch("project", "district", "D09", "D09"))
	assert.False(t, table.ValuesMatch("project", "district", "D09", "D10"))
}

func TestValuesMatch_Tolerance(t *testing.T) {
	table := DefaultTable()

	// launch_psf tolerates 5%.
	assert.True(t, table.ValuesMatch("project", "launch_psf", 2000.0, 2080.0))
	assert.False(t, table.ValuesMatch("project", "launch_psf", 2000.0, 2300.0))

	// Non-numeric values under a tolerance rule fall back to exact.
	assert.False(t, table.ValuesMatch("project", "launch_psf", "2000", "2080"))
}

func TestValuesMatch_Coordinates(t *testing.T) {
	table := DefaultTable()

	// Pins ~30m apart are the same location.
	a := map[string]any{"lat": 1.3048, "lng": 103.8318}
	b := map[string]any{"lat": 1.3050, "lng": 103.8319}
	assert.True(t, table.ValuesMatch("project", "coordinates", a, b))

	// A pin two districts away is not.
	c := map[string]any{"lat": 1.3521, "lng": 103.8198}
	assert.False(t, table.ValuesMatch("project", "coordinates", a, c))
}

func TestValuesMatch_LatestWinsNeverConflicts(t *testing.T) {
	table := DefaultTable()
	assert.True(t, table.ValuesMatch("project", "top_date", "2027-06", "2028-01"))
	assert.True(t, table.ValuesMatch("project", "market_sentiment", "bullish", "bearish"))
}

func TestWithinTolerance(t *testing.T) {
	assert.True(t, WithinTolerance(100, 104, 5))
	assert.False(t, WithinTolerance(100, 106, 5))
	assert.True(t, WithinTolerance(0, 0, 5))
	assert.True(t, WithinTolerance(-100, -104, 5))
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matrix.yaml")
	yaml := `
rules:
  project:
    total_units:
      min_tier: B
      tier_a_authoritative: true
      allow_tier_b: true
      compare: exact
    launch_psf:
      allow_tier_b: true
      compare: tolerance
      tolerance_pct: 5
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)

	assert.False(t, table.CanUpdate("project", "total_units", trust.TierB, trust.TierA))
	assert.Equal(t, CompareTolerance, table.ComparePolicyFor("project", "launch_psf"))
}
