package verify

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propsight/market-cli/internal/authority"
)

// memStore is an in-memory verification candidate store.
type memStore struct {
	mu         sync.Mutex
	candidates map[string]*Candidate
	nextID     int
}

func newMemStore() *memStore {
	return &memStore{candidates: make(map[string]*Candidate)}
}

func (m *memStore) CreateCandidate(_ context.Context, c *Candidate) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := "vc-" + strconv.Itoa(m.nextID)
	c.ID = id
	c.ReviewStatus = ReviewOpen
	cp := *c
	m.candidates[id] = &cp
	return id, nil
}

func (m *memStore) GetCandidate(_ context.Context, id string) (*Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.candidates[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListCandidates(context.Context, CandidateFilter) ([]Candidate, error) {
	return nil, nil
}

func (m *memStore) AutoConfirm(ctx context.Context, id string) error {
	return m.Review(ctx, id, ReviewAutoConfirmed, ResolveKeepCurrent)
}

func (m *memStore) Review(_ context.Context, id string, status ReviewStatus, resolution Resolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.candidates[id]
	if c.ReviewStatus != ReviewOpen {
		return assert.AnError
	}
	c.ReviewStatus = status
	c.Resolution = resolution
	return nil
}

// stubAdapter returns a canned result.
type stubAdapter struct {
	name   string
	domain string
	result Result
}

func (a *stubAdapter) Name() string   { return a.name }
func (a *stubAdapter) Domain() string { return a.domain }
func (a *stubAdapter) VerifyProject(context.Context, string) Result {
	return a.result
}
func (a *stubAdapter) SearchProject(context.Context, string) ([]string, error) {
	return nil, nil
}

func adapterReporting(domain string, units float64) *stubAdapter {
	return &stubAdapter{
		name:   domain,
		domain: domain,
		result: Found(map[string]any{"total_units": units}, 0.9, 0.85, "https://"+domain+"/p"),
	}
}

func verifyUnits(t *testing.T, store Store, current float64, adapters ...Adapter) Candidate {
	t.Helper()
	v := NewVerifier(store, authority.DefaultTable(), adapters...)
	cands, err := v.Verify(context.Background(), Request{
		EntityType:  "project",
		EntityKey:   "lentoria",
		ProjectName: "Lentoria",
		Fields:      []string{"total_units"},
		Current:     map[string]any{"total_units": current},
		Origin:      OriginDatabase,
	})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	return cands[0]
}

func TestVerify_TwoAgreeingSourcesIsBelowQuorum(t *testing.T) {
	// Two portals say 1040, one says 1050, stored value is 1040. The
	// majority agrees with the store but quorum is three.
	cand := verifyUnits(t, newMemStore(), 1040,
		adapterReporting("99.co", 1040),
		adapterReporting("propertyguru.com.sg", 1040),
		adapterReporting("edgeprop.sg", 1050),
	)

	assert.Equal(t, 2, cand.AgreeingSourceCount)
	assert.Equal(t, 3, cand.TotalSourceCount)
	assert.Equal(t, StatusUnverified, cand.VerificationStatus)
	assert.Equal(t, ReviewOpen, cand.ReviewStatus)
	assert.False(t, cand.CanAutoConfirm())
}

func TestVerify_QuorumConfirmsAndAutoCloses(t *testing.T) {
	store := newMemStore()
	cand := verifyUnits(t, store, 1040,
		adapterReporting("99.co", 1040),
		adapterReporting("propertyguru.com.sg", 1040),
		adapterReporting("edgeprop.sg", 1040),
	)

	assert.Equal(t, 3, cand.AgreeingSourceCount)
	assert.Equal(t, StatusConfirmed, cand.VerificationStatus)
	assert.Equal(t, ReviewAutoConfirmed, cand.ReviewStatus)
	assert.Equal(t, ResolveKeepCurrent, cand.Resolution)

	stored, _ := store.GetCandidate(context.Background(), cand.ID)
	assert.Equal(t, ReviewAutoConfirmed, stored.ReviewStatus)
}

func TestVerify_QuorumMismatchStaysOpen(t *testing.T) {
	// Three sources agree on 1050 but the store says 1040: a mismatch is
	// never auto-applied.
	cand := verifyUnits(t, newMemStore(), 1040,
		adapterReporting("99.co", 1050),
		adapterReporting("propertyguru.com.sg", 1050),
		adapterReporting("edgeprop.sg", 1050),
	)

	assert.Equal(t, StatusMismatch, cand.VerificationStatus)
	assert.Equal(t, ReviewOpen, cand.ReviewStatus)
	assert.False(t, cand.CanAutoConfirm())
	assert.Equal(t, 1050.0, cand.VerifiedValue)
}

func TestVerify_NoMajorityIsConflict(t *testing.T) {
	cand := verifyUnits(t, newMemStore(), 1040,
		adapterReporting("99.co", 1040),
		adapterReporting("propertyguru.com.sg", 1040),
		adapterReporting("edgeprop.sg", 1040),
		adapterReporting("srx.com.sg", 1050),
		adapterReporting("squarefoot.com.sg", 1050),
		adapterReporting("ohmyhome.com", 1050),
	)

	assert.Equal(t, 3, cand.AgreeingSourceCount)
	assert.Equal(t, 6, cand.TotalSourceCount)
	assert.Equal(t, StatusConflict, cand.VerificationStatus)
	assert.NotEmpty(t, cand.Mismatches)
}

func TestVerify_LowMatchScoreDiscarded(t *testing.T) {
	weak := &stubAdapter{
		name: "srx.com.sg", domain: "srx.com.sg",
		result: Found(map[string]any{"total_units": 999.0}, 0.9, 0.4, ""),
	}
	cand := verifyUnits(t, newMemStore(), 1040,
		adapterReporting("99.co", 1040), weak)

	assert.Equal(t, 1, cand.TotalSourceCount)
	assert.Equal(t, StatusUnverified, cand.VerificationStatus)
}

func TestVerify_AdapterErrorIsNotFatal(t *testing.T) {
	broken := &stubAdapter{name: "srx.com.sg", domain: "srx.com.sg", result: Failed("timeout")}
	cand := verifyUnits(t, newMemStore(), 1040,
		adapterReporting("99.co", 1040), broken)

	assert.Equal(t, 1, cand.TotalSourceCount)
}

func TestVerify_ToleranceGroupsNearbyNumerics(t *testing.T) {
	// launch_psf carries a 5% tolerance: 2000 and 2040 agree.
	v := NewVerifier(newMemStore(), authority.DefaultTable(),
		&stubAdapter{name: "a", domain: "99.co", result: Found(map[string]any{"launch_psf": 2000.0}, 0.9, 0.9, "")},
		&stubAdapter{name: "b", domain: "propertyguru.com.sg", result: Found(map[string]any{"launch_psf": 2040.0}, 0.9, 0.9, "")},
		&stubAdapter{name: "c", domain: "edgeprop.sg", result: Found(map[string]any{"launch_psf": 2010.0}, 0.9, 0.9, "")},
	)
	cands, err := v.Verify(context.Background(), Request{
		EntityType: "project", EntityKey: "lentoria", ProjectName: "Lentoria",
		Fields:  []string{"launch_psf"},
		Current: map[string]any{"launch_psf": 2005.0},
		Origin:  OriginDatabase,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, cands[0].AgreeingSourceCount)
	assert.Equal(t, StatusConfirmed, cands[0].VerificationStatus)
}

func TestCanAutoConfirm_QuorumInvariant(t *testing.T) {
	statuses := []Status{StatusPending, StatusConfirmed, StatusMismatch, StatusUnverified, StatusConflict}
	for agreeing := 0; agreeing <= 4; agreeing++ {
		for _, status := range statuses {
			c := Candidate{AgreeingSourceCount: agreeing, VerificationStatus: status}
			want := agreeing >= 3 && status == StatusConfirmed
			assert.Equal(t, want, c.CanAutoConfirm(),
				"agreeing=%d status=%s", agreeing, status)
		}
	}
}

func TestReviewTransitions(t *testing.T) {
	store := newMemStore()
	v := NewVerifier(store, authority.DefaultTable(), adapterReporting("99.co", 1040))
	ctx := context.Background()

	cands, err := v.Verify(ctx, Request{
		EntityType: "project", EntityKey: "lentoria", ProjectName: "Lentoria",
		Fields: []string{"total_units"}, Current: map[string]any{"total_units": 1040.0},
		Origin: OriginDatabase,
	})
	require.NoError(t, err)
	id := cands[0].ID

	require.NoError(t, v.Approve(ctx, id, ResolveUpdateToVerified))
	c, _ := store.GetCandidate(ctx, id)
	assert.Equal(t, ReviewApproved, c.ReviewStatus)
	assert.Equal(t, ResolveUpdateToVerified, c.Resolution)

	// Closed candidates refuse further decisions.
	require.Error(t, v.Reject(ctx, id, ""))

	require.Error(t, v.Approve(ctx, "other", ""))
}

func TestBandFor(t *testing.T) {
	assert.Equal(t, BandHigh, BandFor(0.97))
	assert.Equal(t, BandHigh, BandFor(0.95))
	assert.Equal(t, BandMedium, BandFor(0.85))
	assert.Equal(t, BandLow, BandFor(0.5))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "lentoria", NormalizeName("The Lentoria Condo"))
	assert.Equal(t, "lentor hills residences", NormalizeName("Lentor Hills Residences"))
	assert.Equal(t, "meyer blue", NormalizeName("Méyer Blue!"))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("The Lentoria", "Lentoria Condo"))
	assert.Greater(t, Similarity("Lentor Hills Residences", "Lentor Hill Residences"), 0.6)
	assert.Less(t, Similarity("Lentoria", "Marina One"), 0.3)
	assert.Zero(t, Similarity("", "Lentoria"))
}
