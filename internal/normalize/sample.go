package normalize

import (
	"math"
	"math/rand/v2"
)

// PresetCount returns how many preset lines are drawn for a primary set of
// primaryLen lines: round(primaryLen*ratio) capped at poolLen. Rounding is
// half-to-even.
func PresetCount(primaryLen, poolLen int, ratio float64) int {
	// NaN fails every comparison
	if !(ratio > 0) || poolLen <= 0 || primaryLen <= 0 {
		return 0
	}
	want := math.RoundToEven(float64(primaryLen) * ratio)
	if want >= float64(poolLen) {
		return poolLen
	}
	return int(want)
}

// SamplePreset appends PresetCount lines drawn without replacement from pool
// to a copy of primary. The draw happens once, in full, from rng so the result
// is reproducible for a given seed.
func SamplePreset(primary, pool []string, ratio float64, rng *rand.Rand) []string {
	k := PresetCount(len(primary), len(pool), ratio)

	out := make([]string, 0, len(primary)+k)
	out = append(out, primary...)
	if k == 0 {
		return out
	}

	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	for _, idx := range rng.Perm(len(pool))[:k] {
		out = append(out, pool[idx])
	}
	return out
}

// NewRand returns a seeded source; seed 0 yields a randomly seeded source
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
