package detect

import "math"

// mean returns the arithmetic mean of values, or 0 for an empty slice.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev returns the population standard deviation of values.
func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sumSq := 0.0
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// uniformity scores how machine-regular a series is: 1 − stddev/mean,
// clamped to [0,1]. Identical values score 1.0; a zero or undefined mean
// clamps to 0 rather than producing NaN.
func uniformity(values []float64) float64 {
	m := mean(values)
	if m <= 0 {
		return 0
	}
	u := 1 - stddev(values)/m
	if u < 0 || math.IsNaN(u) {
		return 0
	}
	if u > 1 {
		return 1
	}
	return u
}
