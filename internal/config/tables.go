package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/mbd888/walletrisk/internal/credit"
	"github.com/mbd888/walletrisk/internal/features"
	"github.com/mbd888/walletrisk/internal/staking"
)

// TablesEnvPrefix prefixes environment overrides of the scoring tables.
// A double underscore separates levels:
// WALLETRISK_TABLES_POLICY__BASE_SCORE=520 sets policy.base_score.
const TablesEnvPrefix = "WALLETRISK_TABLES_"

// Tables bundles every versioned table the engine scores with.
type Tables struct {
	Features features.Tables    `koanf:"features" json:"features"`
	Policy   credit.Policy      `koanf:"policy" json:"policy"`
	Boosts   staking.BoostTable `koanf:"boosts" json:"boosts"`
}

// DefaultTables returns the built-in tables.
func DefaultTables() Tables {
	return Tables{
		Features: features.DefaultTables(),
		Policy:   credit.DefaultPolicy(),
		Boosts:   staking.DefaultBoostTable(),
	}
}

// LoadTables layers, lowest precedence first: the built-in defaults, the
// YAML file at path (skipped when empty), then WALLETRISK_TABLES_ variables.
// Lists in an override replace the default list; maps are merged.
func LoadTables(path string) (Tables, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Tables{}, fmt.Errorf("load tables file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(TablesEnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, TablesEnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Tables{}, fmt.Errorf("load tables env: %w", err)
	}

	t := DefaultTables()
	// Decoding into a populated slice keeps its tail, so overridden lists
	// start empty.
	for key, list := range t.bucketLists() {
		if k.Exists(key) {
			*list = nil
		}
	}
	for key, list := range t.stringLists() {
		if k.Exists(key) {
			*list = nil
		}
	}
	if err := k.UnmarshalWithConf("", &t, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Tables{}, fmt.Errorf("decode tables: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Tables{}, err
	}
	return t, nil
}

func (t *Tables) bucketLists() map[string]*[]credit.Bucket {
	return map[string]*[]credit.Bucket{
		"policy.tx_buckets":            &t.Policy.TxBuckets,
		"policy.volume_buckets":        &t.Policy.VolumeBuckets,
		"policy.stablecoin_buckets":    &t.Policy.StablecoinBuckets,
		"policy.age_buckets":           &t.Policy.AgeBuckets,
		"policy.volatility_deductions": &t.Policy.VolatilityDeductions,
		"policy.oracle_penalties":      &t.Policy.OraclePenalties,
	}
}

func (t *Tables) stringLists() map[string]*[]string {
	return map[string]*[]string{
		"features.dex_methods":       &t.Features.DEXMethods,
		"features.liquidity_methods": &t.Features.LiquidityMethods,
		"features.yield_methods":     &t.Features.YieldMethods,
		"features.stablecoins":       &t.Features.Stablecoins,
	}
}

// Validate rejects tables the scorer could not apply consistently.
func (t *Tables) Validate() error {
	p := t.Policy
	if p.Version == "" || t.Features.Version == "" || t.Boosts.Version == "" {
		return fmt.Errorf("tables: every table needs a version")
	}
	if p.BaseScore < credit.MinScore || p.BaseScore > credit.MaxScore {
		return fmt.Errorf("tables: policy base score %d outside [%d,%d]", p.BaseScore, credit.MinScore, credit.MaxScore)
	}
	if p.MediumBandMin >= p.LowBandMin {
		return fmt.Errorf("tables: medium band minimum %d must be below low band minimum %d", p.MediumBandMin, p.LowBandMin)
	}
	for name, buckets := range t.bucketLists() {
		for _, b := range *buckets {
			if b.Points < 0 || b.Min < 0 {
				return fmt.Errorf("tables: %s has a negative bucket", name)
			}
		}
	}
	for tier, boost := range t.Boosts.Boosts {
		if boost < 0 {
			return fmt.Errorf("tables: boost for tier %d is negative", tier)
		}
	}
	if t.Boosts.Cap < 0 {
		return fmt.Errorf("tables: boost cap is negative")
	}
	return nil
}
