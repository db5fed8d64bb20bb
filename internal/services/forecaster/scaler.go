package forecaster

// minMaxScaler maps values into [0,1] using the range observed at fit
// time. A flat series scales to 0.5 so the inverse transform still
// reconstructs the original value.
type minMaxScaler struct {
	min    float64
	max    float64
	spread float64
}

func fitScaler(values []float64) *minMaxScaler {
	s := &minMaxScaler{}
	if len(values) == 0 {
		return s
	}
	s.min, s.max = values[0], values[0]
	for _, v := range values[1:] {
		if v < s.min {
			s.min = v
		}
		if v > s.max {
			s.max = v
		}
	}
	s.spread = s.max - s.min
	return s
}

func (s *minMaxScaler) transform(v float64) float64 {
	if s.spread == 0 {
		return 0.5
	}
	return (v - s.min) / s.spread
}

func (s *minMaxScaler) inverse(v float64) float64 {
	if s.spread == 0 {
		return s.min
	}
	return v*s.spread + s.min
}

func (s *minMaxScaler) transformAll(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = s.transform(v)
	}
	return out
}
