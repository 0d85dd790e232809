// Package marks holds the ordered, duplicate-free set of time points a viewer
// has marked on the current media timeline.
package marks

import (
	"errors"
	"math"
	"sort"
)

var (
	ErrDuplicateTimestamp = errors.New("time point already exists")
	ErrEmptyStore         = errors.New("no time points")
)

// Store is not safe for concurrent use. The picker controller owns it and
// mutates it from a single goroutine.
type Store struct {
	times  []float64
	sorted bool
}

func NewStore() *Store {
	return &Store{sorted: true}
}

// Add appends t. An exact match of an existing element is rejected.
func (s *Store) Add(t float64) error {
	for _, v := range s.times {
		if v == t {
			return ErrDuplicateTimestamp
		}
	}
	if n := len(s.times); n > 0 && s.times[n-1] > t {
		s.sorted = false
	}
	s.times = append(s.times, t)
	return nil
}

// RemoveClosest removes the element closest to t and returns it.
func (s *Store) RemoveClosest(t float64) (float64, error) {
	if len(s.times) == 0 {
		return 0, ErrEmptyStore
	}
	s.sort()
	idx := closestIndex(s.times, t)
	removed := s.times[idx]
	s.times = append(s.times[:idx], s.times[idx+1:]...)
	return removed, nil
}

// Closest returns the element closest to t. On a tie the smaller value wins.
func (s *Store) Closest(t float64) (float64, bool) {
	if len(s.times) == 0 {
		return 0, false
	}
	s.sort()
	return s.times[closestIndex(s.times, t)], true
}

func (s *Store) Clear() {
	s.times = s.times[:0]
	s.sorted = true
}

func (s *Store) Len() int {
	return len(s.times)
}

// Times returns an ascending copy of the stored time points.
func (s *Store) Times() []float64 {
	s.sort()
	out := make([]float64, len(s.times))
	copy(out, s.times)
	return out
}

func (s *Store) sort() {
	if s.sorted {
		return
	}
	sort.Float64s(s.times)
	s.sorted = true
}

// closestIndex expects times in ascending order. The strict comparison keeps
// the earlier element when two candidates are equidistant.
func closestIndex(times []float64, t float64) int {
	best := -1
	bestDiff := math.Inf(1)
	for i, v := range times {
		d := math.Abs(v - t)
		if best < 0 || d < bestDiff {
			best = i
			bestDiff = d
		}
	}
	return best
}
