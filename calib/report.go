package calib

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ResidualStats summarizes a set of residuals
type ResidualStats struct {
	Count  int     `json:"count"`
	RMS    float64 `json:"rms"`    // equals the energy of the transform the residuals came from
	Mean   float64 `json:"mean"`   // mean of the penalized values
	StdDev float64 `json:"stdDev"` // sample standard deviation, 0 for fewer than two residuals
	Max    float64 `json:"max"`
	Behind int     `json:"behind"` // observations whose reference point is behind the observer
}

// Summarize computes summary statistics over the penalized residual values
func Summarize(residuals []Residual) ResidualStats {
	s := ResidualStats{Count: len(residuals)}
	if len(residuals) == 0 {
		return s
	}

	values := make([]float64, len(residuals))
	for i, r := range residuals {
		values[i] = r.Value
		if r.Behind {
			s.Behind++
		}
	}

	s.RMS = math.Sqrt(floats.Dot(values, values) / float64(len(values)))
	s.Mean = stat.Mean(values, nil)
	if len(values) > 1 {
		s.StdDev = stat.StdDev(values, nil)
	}
	s.Max = floats.Max(values)
	return s
}

// WorstResiduals returns the n residuals with the largest values, largest first
func WorstResiduals(residuals []Residual, n int) []Residual {
	if n <= 0 || len(residuals) == 0 {
		return nil
	}
	values := make([]float64, len(residuals))
	for i, r := range residuals {
		values[i] = -r.Value
	}
	idx := make([]int, len(values))
	floats.Argsort(values, idx)

	if n > len(idx) {
		n = len(idx)
	}
	out := make([]Residual, n)
	for i := 0; i < n; i++ {
		out[i] = residuals[idx[i]]
	}
	return out
}
