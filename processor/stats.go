package processor

import "math"

// series accumulates running statistics over a sample stream without
// retaining the samples (Welford).
type series struct {
	n     int64
	mean  float64
	m2    float64
	min   float64
	max   float64
	first float64
	last  float64
}

func (s *series) Add(v float64) {
	s.n++
	if s.n == 1 {
		s.min, s.max, s.first = v, v, v
	} else {
		if v < s.min {
			s.min = v
		}
		if v > s.max {
			s.max = v
		}
	}
	s.last = v
	d := v - s.mean
	s.mean += d / float64(s.n)
	s.m2 += d * (v - s.mean)
}

func (s *series) Count() int64 { return s.n }
func (s *series) Mean() float64 { return s.mean }
func (s *series) Min() float64 { return s.min }
func (s *series) Max() float64 { return s.max }
func (s *series) First() float64 { return s.first }
func (s *series) Last() float64 { return s.last }
func (s *series) Range() float64 { return s.max - s.min }

// Std is the sample standard deviation, 0 with fewer than two samples.
func (s *series) Std() float64 {
	if s.n < 2 {
		return 0
	}
	return math.Sqrt(s.m2 / float64(s.n-1))
}

// ratio returns num/den, or 0 when den is 0.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// imbalance is (bid-ask)/(bid+ask), 0 when both are 0.
func imbalance(bid, ask float64) float64 {
	return ratio(bid-ask, bid+ask)
}
