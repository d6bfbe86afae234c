// Package trust classifies source domains into trust tiers and exposes
// per-tier capability flags used to gate canonical writes.
package trust

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Tier is the trust classification of a data source domain.
type Tier string

const (
	// TierA covers authoritative sources (government registries).
	TierA Tier = "A"
	// TierB covers institutional sources (property portals, agencies).
	TierB Tier = "B"
	// TierC covers content and discovery sources (blogs, forums).
	TierC Tier = "C"
)

// ParseTier converts a string into a Tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return TierA, nil
	case "B":
		return TierB, nil
	case "C":
		return TierC, nil
	default:
		return "", eris.Errorf("trust: unknown tier %q (valid: A, B, C)", s)
	}
}

// rank maps a tier to its numeric rank. Lower is more trusted.
func (t Tier) rank() int {
	switch t {
	case TierA:
		return 1
	case TierB:
		return 2
	default:
		return 3
	}
}

// Outranks reports whether t is strictly more trusted than other.
func (t Tier) Outranks(other Tier) bool {
	return t.rank() < other.rank()
}

// AtLeast reports whether t is at least as trusted as other.
func (t Tier) AtLeast(other Tier) bool {
	return t.rank() <= other.rank()
}

// Best returns the more trusted of two tiers. Canonical entities track
// their highest contributing tier with this; it can only ever improve.
func Best(a, b Tier) Tier {
	if a.Outranks(b) {
		return a
	}
	return b
}

// Config holds the capability flags for one tier.
type Config struct {
	CanUpdateCanonical bool     `yaml:"can_update_canonical"`
	CanCreateCanonical bool     `yaml:"can_create_canonical"`
	RequiresValidation bool     `yaml:"requires_validation"`
	RestrictedFields   []string `yaml:"restricted_fields"` // "*" means all fields
}

// RestrictsField reports whether the tier is restricted from writing the
// given field directly.
func (c Config) RestrictsField(field string) bool {
	for _, f := range c.RestrictedFields {
		if f == "*" || f == field {
			return true
		}
	}
	return false
}

// Table maps source domains to tiers. It is explicit constructed state,
// passed into the engines at startup rather than read from a global.
type Table struct {
	domains map[string]Tier
	configs map[Tier]Config
}

// NewTable builds a Table from a domain→tier map and per-tier configs.
// Missing tier configs fall back to the built-in defaults.
func NewTable(domains map[string]Tier, configs map[Tier]Config) *Table {
	t := &Table{
		domains: make(map[string]Tier, len(domains)),
		configs: defaultConfigs(),
	}
	for d, tier := range domains {
		t.domains[normalizeDomain(d)] = tier
	}
	for tier, cfg := range configs {
		t.configs[tier] = cfg
	}
	return t
}

// TierOf classifies a domain. Lookup is case-insensitive and retries with
// a leading "www." stripped. Unknown domains are TierC: untrusted by default.
func (t *Table) TierOf(domain string) Tier {
	d := normalizeDomain(domain)
	if tier, ok := t.domains[d]; ok {
		return tier
	}
	if stripped, found := strings.CutPrefix(d, "www."); found {
		if tier, ok := t.domains[stripped]; ok {
			return tier
		}
	}
	return TierC
}

// Capabilities returns the capability flags for a tier.
func (t *Table) Capabilities(tier Tier) Config {
	return t.configs[tier]
}

func normalizeDomain(d string) string {
	return strings.ToLower(strings.TrimSpace(d))
}

func defaultConfigs() map[Tier]Config {
	return map[Tier]Config{
		TierA: {
			CanUpdateCanonical: true,
			CanCreateCanonical: true,
		},
		TierB: {
			CanUpdateCanonical: true,
			CanCreateCanonical: true,
			RequiresValidation: true,
			RestrictedFields:   []string{"coordinates", "tenure", "top_date"},
		},
		TierC: {
			RequiresValidation: true,
			RestrictedFields:   []string{"*"},
		},
	}
}

// DefaultTable returns the built-in domain classification for the
// Singapore market sources the scrapers cover.
func DefaultTable() *Table {
	return NewTable(map[string]Tier{
		// Government registries.
		"ura.gov.sg":  TierA,
		"hdb.gov.sg":  TierA,
		"sla.gov.sg":  TierA,
		"data.gov.sg": TierA,

		// Property portals and institutional sources.
		"propertyguru.com.sg": TierB,
		"99.co":               TierB,
		"edgeprop.sg":         TierB,
		"srx.com.sg":          TierB,
		"squarefoot.com.sg":   TierB,

		// Content and discovery sources.
		"stackedhomes.com":     TierC,
		"propertysoul.com":     TierC,
		"sgbudgetbabe.com":     TierC,
		"propertyinvestsg.com": TierC,
	}, nil)
}
