package authority

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/propsight/market-cli/internal/trust"
)

// DefaultTable returns the built-in authority matrix for the entity types
// the platform tracks. Fields not listed fall back to the package default
// (Tier A/B may write, Tier C may not, exact comparison).
func DefaultTable() *Table {
	return NewTable(map[string]map[string]Rule{
		"project": {
			// Unit counts come from the registry; portals may seed them but
			// never override a registry figure.
			"total_units": {
				MinTier:            trust.TierB,
				TierAAuthoritative: true,
				AllowTierB:         true,
				Compare:            CompareExact,
			},
			"district": {
				MinTier:            trust.TierB,
				TierAAuthoritative: true,
				AllowTierB:         true,
				Compare:            CompareExact,
			},
			"tenure": {
				MinTier:            trust.TierA,
				TierAAuthoritative: true,
				Compare:            CompareExact,
			},
			"coordinates": {
				MinTier:            trust.TierA,
				TierAAuthoritative: true,
				Compare:            CompareTolerance,
			},
			"top_date": {
				MinTier:            trust.TierB,
				TierAAuthoritative: true,
				AllowTierB:         true,
				RequireLabel:       true,
				Label:              "indicative",
				Compare:            CompareLatestWins,
			},
			"developer": {
				MinTier:    trust.TierB,
				AllowTierB: true,
				Compare:    CompareExact,
			},
			"launch_psf": {
				MinTier:      trust.TierB,
				AllowTierB:   true,
				RequireLabel: true,
				Label:        "indicative",
				Compare:      CompareTolerance,
				TolerancePct: 5,
			},
			"units_sold": {
				MinTier:      trust.TierB,
				AllowTierB:   true,
				Compare:      CompareTolerance,
				TolerancePct: 10,
			},
			// Sentiment is discovery-only content; any tier may write it but
			// it always carries the unverified label.
			"market_sentiment": {
				MinTier:      trust.TierC,
				AllowTierB:   true,
				AllowTierC:   true,
				RequireLabel: true,
				Label:        "unverified",
				Compare:      CompareAlwaysUnverified,
			},
		},
		"transaction": {
			"price_sgd": {
				MinTier:            trust.TierA,
				TierAAuthoritative: true,
				Compare:            CompareExact,
			},
			"psf": {
				MinTier:            trust.TierB,
				TierAAuthoritative: true,
				AllowTierB:         true,
				Compare:            CompareTolerance,
				TolerancePct:       5,
			},
			"floor_area_sqm": {
				MinTier:            trust.TierA,
				TierAAuthoritative: true,
				Compare:            CompareExact,
			},
		},
		"gls_tender": {
			"awarded_price_sgd": {
				MinTier:            trust.TierA,
				TierAAuthoritative: true,
				Compare:            CompareExact,
			},
			"num_bids": {
				MinTier:            trust.TierA,
				TierAAuthoritative: true,
				Compare:            CompareExact,
			},
			"site_area_sqm": {
				MinTier:            trust.TierB,
				TierAAuthoritative: true,
				AllowTierB:         true,
				Compare:            CompareTolerance,
				TolerancePct:       5,
			},
		},
	})
}

// tableFile is the YAML shape of an external authority matrix.
type tableFile struct {
	Rules map[string]map[string]Rule `yaml:"rules"`
}

// LoadTable reads an authority matrix from a YAML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "authority: read matrix %s", path)
	}
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "authority: parse matrix %s", path)
	}
	return NewTable(f.Rules), nil
}
