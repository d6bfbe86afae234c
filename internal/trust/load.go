package trust

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// tableFile is the YAML shape of an external tier table.
type tableFile struct {
	Domains map[string]string `yaml:"domains"`
	Tiers   map[string]Config `yaml:"tiers"`
}

// LoadTable reads a tier table from a YAML file. Operators use this to
// extend the built-in classification without a rebuild.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "trust: read tier table %s", path)
	}

	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "trust: parse tier table %s", path)
	}

	domains := make(map[string]Tier, len(f.Domains))
	for d, s := range f.Domains {
		tier, err := ParseTier(s)
		if err != nil {
			return nil, eris.Wrapf(err, "trust: domain %s", d)
		}
		domains[d] = tier
	}

	configs := make(map[Tier]Config, len(f.Tiers))
	for s, cfg := range f.Tiers {
		tier, err := ParseTier(s)
		if err != nil {
			return nil, err
		}
		configs[tier] = cfg
	}

	return NewTable(domains, configs), nil
}
