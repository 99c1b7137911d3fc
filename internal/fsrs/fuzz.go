package fsrs

import (
	"math"

	"github.com/conorfennell/retain/internal/cardkey"
)

type fuzzBand struct {
	start, end float64
	factor     float64
}

var fuzzBands = []fuzzBand{
	{2.5, 7.0, 0.15},
	{7.0, 20.0, 0.10},
	{20.0, math.Inf(1), 0.05},
}

// fuzzDelta returns the half-width, in days, of the fuzz window for an interval.
func fuzzDelta(interval, scale float64) float64 {
	delta := 1.0
	for _, b := range fuzzBands {
		delta += b.factor * math.Max(math.Min(interval, b.end)-b.start, 0)
	}
	return delta * scale
}

// fuzzRange returns the inclusive window [lo, hi] the fuzzed interval is drawn from.
func (s *Scheduler) fuzzRange(days int) (lo, hi int) {
	ivl := float64(days)
	delta := fuzzDelta(ivl, s.params.FuzzFactor)
	lo = max(s.params.MinimumInterval, int(math.Round(ivl-delta)))
	hi = min(int(math.Round(ivl+delta)), s.params.MaximumInterval)
	lo = min(lo, hi)
	return lo, hi
}

// applyFuzz spreads intervals of 3 days or more over a small window so cards
// reviewed together do not come due together. u must be in [0, 1); it is
// drawn from the card id and review count so the result is reproducible.
func (s *Scheduler) applyFuzz(days int, u float64) int {
	if !s.params.EnableFuzz || s.params.FuzzFactor == 0 || float64(days) < 2.5 {
		return days
	}
	lo, hi := s.fuzzRange(days)
	return min(lo+int(u*float64(hi-lo+1)), hi)
}

func fuzzSample(cardID string, reps int) float64 {
	return cardkey.Unit(cardID, reps)
}
