package forecaster

import (
	"math"
	"testing"
)

func TestScalerRoundTrip(t *testing.T) {
	values := []float64{120.5, 98.1, 143.9, 100, 255.25, 87.6}
	s := fitScaler(values)
	for _, v := range values {
		got := s.inverse(s.transform(v))
		if math.Abs(got-v) > 1e-6 {
			t.Fatalf("round trip of %v gave %v", v, got)
		}
	}
}

func TestScalerRangeIsUnit(t *testing.T) {
	s := fitScaler([]float64{10, 20, 30})
	if got := s.transform(10); got != 0 {
		t.Fatalf("min should scale to 0, got %v", got)
	}
	if got := s.transform(30); got != 1 {
		t.Fatalf("max should scale to 1, got %v", got)
	}
}

func TestScalerFlatSeries(t *testing.T) {
	s := fitScaler([]float64{42, 42, 42})
	if got := s.transform(42); got != 0.5 {
		t.Fatalf("flat series should scale to 0.5, got %v", got)
	}
	if got := s.inverse(0.5); got != 42 {
		t.Fatalf("inverse of flat series should restore 42, got %v", got)
	}
}
