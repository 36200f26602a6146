package features

import (
	"math"
	"sort"
)

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// variance is the population variance.
func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return ss / float64(len(xs))
}

func stdev(xs []float64) float64 {
	return math.Sqrt(variance(xs))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}

// inverseCV maps a distribution to 1/(1+stdev/mean), in (0,1].
// ok is false when the mean is not positive.
func inverseCV(xs []float64) (float64, bool) {
	m := mean(xs)
	if m <= 0 {
		return 0, false
	}
	return 1 / (1 + stdev(xs)/m), true
}

// entropy is the Shannon entropy (natural log) of a count distribution.
// counts must already be in a deterministic order.
func entropy(counts []float64) float64 {
	var total float64
	for _, c := range counts {
		total += c
	}
	if total <= 0 {
		return 0
	}
	var h float64
	for _, c := range counts {
		if c <= 0 {
			continue
		}
		p := c / total
		h -= p * math.Log(p)
	}
	return h
}

// gini computes the Gini coefficient of a non-negative distribution.
func gini(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	var total, weighted float64
	for i, v := range s {
		total += v
		weighted += float64(i+1) * v
	}
	if total <= 0 {
		return 0
	}
	fn := float64(n)
	return (2*weighted)/(fn*total) - (fn+1)/fn
}

func ratio(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return clamp01(float64(num) / float64(den))
}

func clamp01(f float64) float64 {
	return clamp(f, 0, 1)
}

func clamp(f, lo, hi float64) float64 {
	if math.IsNaN(f) {
		return lo
	}
	return math.Max(lo, math.Min(hi, f))
}
