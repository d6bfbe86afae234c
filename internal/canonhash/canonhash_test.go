package canonhash

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_Length(t *testing.T) {
	h, err := Hash(map[string]any{"district": "D09"})
	require.NoError(t, err)
	assert.Len(t, h, 64)
}

func TestHash_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"district": "D09", "total_units": 500, "tenure": "99-year"}
	b := map[string]any{"tenure": "99-year", "district": "D09", "total_units": 500}

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestHash_FloatNoiseBelowPrecision(t *testing.T) {
	a := map[string]any{"psf": 2150.12345678901}
	b := map[string]any{"psf": 2150.12345678904}

	assert.Equal(t, MustHash(a), MustHash(b))

	// Differences above the precision threshold must not collide.
	c := map[string]any{"psf": 2150.1235}
	assert.NotEqual(t, MustHash(a), MustHash(c))
}

func TestHash_WhitespaceCollapsed(t *testing.T) {
	a := map[string]any{"name": "The   Reserve\tResidences"}
	b := map[string]any{"name": "The Reserve Residences"}
	assert.Equal(t, MustHash(a), MustHash(b))
}

func TestHash_NullMeansAbsent(t *testing.T) {
	a := map[string]any{"district": "D09", "developer": nil}
	b := map[string]any{"district": "D09"}
	assert.Equal(t, MustHash(a), MustHash(b))
}

func TestHash_IntFloatEquivalence(t *testing.T) {
	// JSON round-trips turn ints into float64; both forms must hash the same.
	a := map[string]any{"total_units": 500}
	b := map[string]any{"total_units": float64(500)}
	assert.Equal(t, MustHash(a), MustHash(b))
}

func TestHash_ListOrderPreserved(t *testing.T) {
	a := map[string]any{"unit_mix": []any{"1BR", "2BR"}}
	b := map[string]any{"unit_mix": []any{"2BR", "1BR"}}
	assert.NotEqual(t, MustHash(a), MustHash(b))
}

func TestHash_TimesAsISO8601(t *testing.T) {
	sgt := time.FixedZone("SGT", 8*3600)
	a := map[string]any{"launch_date": time.Date(2026, 3, 14, 8, 0, 0, 0, sgt)}
	b := map[string]any{"launch_date": time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, MustHash(a), MustHash(b))
}

func TestHash_DifferentValuesDiffer(t *testing.T) {
	a := map[string]any{"district": "D09"}
	b := map[string]any{"district": "D10"}
	assert.NotEqual(t, MustHash(a), MustHash(b))
}

func TestCanonicalize_NestedAndNoMutation(t *testing.T) {
	in := map[string]any{
		"site": map[string]any{"area": nil, "gpr": 3.5},
		"bids": []any{map[string]any{"bidder": "  Alpha  Dev  ", "amount": nil}},
	}

	out := Canonicalize(in).(map[string]any)

	site := out["site"].(map[string]any)
	_, hasArea := site["area"]
	assert.False(t, hasArea)

	bids := out["bids"].([]any)
	bid := bids[0].(map[string]any)
	assert.Equal(t, "Alpha Dev", bid["bidder"])

	// Input untouched.
	assert.Contains(t, in["site"].(map[string]any), "area")
	assert.Equal(t, "  Alpha  Dev  ", in["bids"].([]any)[0].(map[string]any)["bidder"])
}
