package credit

// Bucket awards Points once a value reaches Min. For deductions and
// penalties the value must strictly exceed Min.
type Bucket struct {
	Min    float64 `json:"min" koanf:"min"`
	Points int     `json:"points" koanf:"points"`
}

// Policy is a versioned set of scoring buckets.
type Policy struct {
	Version              string   `json:"version" koanf:"version"`
	BaseScore            int      `json:"baseScore" koanf:"base_score"`
	TxBuckets            []Bucket `json:"txBuckets" koanf:"tx_buckets"`
	VolumeBuckets        []Bucket `json:"volumeBuckets" koanf:"volume_buckets"`
	StablecoinBuckets    []Bucket `json:"stablecoinBuckets" koanf:"stablecoin_buckets"`
	AgeBuckets           []Bucket `json:"ageBuckets" koanf:"age_buckets"`
	VolatilityDeductions []Bucket `json:"volatilityDeductions" koanf:"volatility_deductions"`
	OraclePenalties      []Bucket `json:"oraclePenalties" koanf:"oracle_penalties"`

	LowBandMin    int `json:"lowBandMin" koanf:"low_band_min"`
	MediumBandMin int `json:"mediumBandMin" koanf:"medium_band_min"`

	// Staking tier at which the risk band improves by one step.
	BandImprovementTier int `json:"bandImprovementTier" koanf:"band_improvement_tier"`
}

// DefaultPolicy returns the built-in scoring policy.
func DefaultPolicy() Policy {
	return Policy{
		Version:   "2024.1",
		BaseScore: 500,
		TxBuckets: []Bucket{
			{Min: 10, Points: 50},
			{Min: 20, Points: 100},
			{Min: 50, Points: 150},
			{Min: 100, Points: 200},
		},
		VolumeBuckets: []Bucket{
			{Min: 100, Points: 50},
			{Min: 500, Points: 100},
			{Min: 1000, Points: 150},
		},
		StablecoinBuckets: []Bucket{
			{Min: 0.5, Points: 50},
			{Min: 0.7, Points: 100},
		},
		AgeBuckets: []Bucket{
			{Min: 30, Points: 50},
			{Min: 90, Points: 100},
		},
		VolatilityDeductions: []Bucket{
			{Min: 0.2, Points: 50},
			{Min: 0.3, Points: 100},
			{Min: 0.5, Points: 150},
		},
		OraclePenalties: []Bucket{
			{Min: 0.2, Points: 25},
			{Min: 0.3, Points: 50},
		},
		LowBandMin:          750,
		MediumBandMin:       500,
		BandImprovementTier: 2,
	}
}

// reached returns the points of the highest bucket whose Min is <= v.
func reached(buckets []Bucket, v float64) int {
	points := 0
	best := 0.0
	found := false
	for _, b := range buckets {
		if v >= b.Min && (!found || b.Min >= best) {
			points, best, found = b.Points, b.Min, true
		}
	}
	return points
}

// exceeded returns the points of the highest bucket whose Min is < v.
func exceeded(buckets []Bucket, v float64) int {
	points := 0
	best := 0.0
	found := false
	for _, b := range buckets {
		if v > b.Min && (!found || b.Min >= best) {
			points, best, found = b.Points, b.Min, true
		}
	}
	return points
}
