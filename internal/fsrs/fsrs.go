// Package fsrs implements the scheduling core: given a card's memory state,
// a grade and the review time, it computes the next memory state and the
// interval until the card is due again.
//
// The scheduler is pure. It never reads the clock, never uses global
// randomness and never mutates its input, so it is safe for concurrent use.
package fsrs

import (
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/retain/internal/domain"
)

const day = 24 * time.Hour

// Result is the outcome of scheduling a single review.
type Result struct {
	State domain.MemoryState `json:"state"`
	// Interval is the time from the review until the card is due again.
	Interval time.Duration `json:"interval"`
	// Retrievability is the estimated recall probability at review time,
	// before the update. It is 0 for a card's first review.
	Retrievability float64 `json:"retrievability"`
}

// Scheduler schedules reviews with the FSRS-6 memory model.
type Scheduler struct {
	params Params
	model  model
}

// NewScheduler validates the parameters and returns a scheduler using a
// private copy of them.
func NewScheduler(p *Params) (*Scheduler, error) {
	if p == nil {
		p = DefaultParams()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	params := *p
	params.LearningSteps = append([]time.Duration(nil), p.LearningSteps...)
	params.RelearningSteps = append([]time.Duration(nil), p.RelearningSteps...)
	return &Scheduler{params: params, model: newModel(p.Weights)}, nil
}

// Params returns a copy of the scheduler's parameters.
func (s *Scheduler) Params() Params {
	p := s.params
	p.LearningSteps = append([]time.Duration(nil), s.params.LearningSteps...)
	p.RelearningSteps = append([]time.Duration(nil), s.params.RelearningSteps...)
	return p
}

// Schedule applies a review with the given grade at now and returns the
// updated state. It fails without side effects on malformed input.
func (s *Scheduler) Schedule(state domain.MemoryState, grade domain.Grade, now time.Time) (Result, error) {
	if !grade.IsValid() {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidGrade, int(grade))
	}
	if err := checkState(state, now); err != nil {
		return Result{}, err
	}

	c := state.Clone()
	elapsed := 0
	if c.LastReview != nil {
		elapsed = int(now.Sub(*c.LastReview) / day)
	}
	c.ElapsedDays = elapsed
	c.Reps++

	var (
		interval time.Duration
		r        float64
	)
	switch c.State {
	case domain.New:
		c.Stability = s.model.initStability(grade)
		c.Difficulty = s.model.initDifficulty(grade, true)
		c.State = domain.Learning
		c.Step = 0
		interval = s.stepTransition(&c, grade, s.params.LearningSteps)

	case domain.Learning, domain.Relearning:
		r = s.model.retrievability(float64(elapsed), c.Stability)
		c.Difficulty = s.model.nextDifficulty(c.Difficulty, grade)
		c.Stability = s.stepStability(c, grade, elapsed, r)
		interval = s.stepTransition(&c, grade, s.stepsFor(c.State))

	case domain.Review:
		r = s.model.retrievability(float64(elapsed), c.Stability)
		c.Difficulty = s.model.nextDifficulty(c.Difficulty, grade)
		c.Stability = s.reviewStability(c, grade, elapsed, r)
		interval = s.reviewTransition(&c, grade)
	}

	c.ScheduledDays = int(interval / day)
	c.LastReview = &now
	c.Due = now.Add(interval)

	return Result{State: c, Interval: interval, Retrievability: r}, nil
}

// Preview returns the result of each possible grade applied to state at now.
func (s *Scheduler) Preview(state domain.MemoryState, now time.Time) (map[domain.Grade]Result, error) {
	out := make(map[domain.Grade]Result, len(domain.Grades))
	for _, g := range domain.Grades {
		res, err := s.Schedule(state, g, now)
		if err != nil {
			return nil, err
		}
		out[g] = res
	}
	return out, nil
}

// Retrievability returns the estimated probability that the card is
// recalled at now. It is 0 for a card that has never been reviewed.
func (s *Scheduler) Retrievability(state domain.MemoryState, now time.Time) float64 {
	if state.State == domain.New || state.LastReview == nil || state.Stability <= 0 {
		return 0
	}
	elapsed := now.Sub(*state.LastReview).Hours() / 24
	if elapsed < 0 {
		elapsed = 0
	}
	return s.model.retrievability(elapsed, state.Stability)
}

// ForgettingCurve returns the recall probability after elapsedDays for a
// memory of the given stability.
func (s *Scheduler) ForgettingCurve(stability, elapsedDays float64) float64 {
	return s.model.retrievability(elapsedDays, stability)
}

// InitialStability returns the stability prior for a first review with g.
func (s *Scheduler) InitialStability(g domain.Grade) float64 {
	return s.model.initStability(g)
}

// InitialDifficulty returns the difficulty prior for a first review with g.
func (s *Scheduler) InitialDifficulty(g domain.Grade) float64 {
	return s.model.initDifficulty(g, true)
}

// stepStability updates stability while the card is in learning or
// relearning. A failed step restarts the sequence but leaves stability
// alone, and a passed step never lowers it.
func (s *Scheduler) stepStability(c domain.MemoryState, grade domain.Grade, elapsed int, r float64) float64 {
	if grade == domain.Again {
		return c.Stability
	}
	var next float64
	if elapsed == 0 {
		next = s.model.shortTermStability(c.Stability, grade)
	} else {
		next = s.model.recallStability(c.Difficulty, c.Stability, r, grade)
	}
	return math.Max(next, c.Stability)
}

func (s *Scheduler) reviewStability(c domain.MemoryState, grade domain.Grade, elapsed int, r float64) float64 {
	if elapsed == 0 {
		return s.model.shortTermStability(c.Stability, grade)
	}
	if grade == domain.Again {
		return s.model.forgetStability(c.Difficulty, c.Stability, r)
	}
	return s.model.recallStability(c.Difficulty, c.Stability, r, grade)
}

func (s *Scheduler) stepsFor(state domain.State) []time.Duration {
	if state == domain.Relearning {
		return s.params.RelearningSteps
	}
	return s.params.LearningSteps
}

// stepTransition moves a learning or relearning card through its steps and
// returns the interval to the next presentation.
func (s *Scheduler) stepTransition(c *domain.MemoryState, grade domain.Grade, steps []time.Duration) time.Duration {
	if len(steps) == 0 || (c.Step >= len(steps) && grade != domain.Again) {
		return s.graduate(c)
	}

	switch grade {
	case domain.Again:
		c.Step = 0
		return steps[0]

	case domain.Hard:
		if c.Step == 0 && len(steps) == 1 {
			return steps[0] * 3 / 2
		}
		if c.Step == 0 {
			return (steps[0] + steps[1]) / 2
		}
		return steps[c.Step]

	case domain.Good:
		next := c.Step + 1
		if next >= len(steps) {
			return s.graduate(c)
		}
		c.Step = next
		return steps[next]

	default:
		return s.graduate(c)
	}
}

// reviewTransition handles a review of a card in long-term review.
func (s *Scheduler) reviewTransition(c *domain.MemoryState, grade domain.Grade) time.Duration {
	c.Step = 0
	if grade == domain.Again {
		c.Lapses++
		if len(s.params.RelearningSteps) > 0 {
			c.State = domain.Relearning
			return s.params.RelearningSteps[0]
		}
		return s.lapseInterval(*c)
	}
	return s.dayInterval(*c)
}

// lapseInterval is the day interval after a lapse when there are no
// relearning steps. It may fall below MinimumInterval, down to one day, so a
// lapse comes due sooner than a pass would.
func (s *Scheduler) lapseInterval(c domain.MemoryState) time.Duration {
	days := int(math.Round(s.rawInterval(c.Stability)))
	if days >= s.params.MinimumInterval {
		return s.dayInterval(c)
	}
	return time.Duration(max(days, 1)) * day
}

func (s *Scheduler) graduate(c *domain.MemoryState) time.Duration {
	c.State = domain.Review
	c.Step = 0
	return s.dayInterval(*c)
}

// dayInterval converts the card's stability into a whole-day interval at the
// target retention, fuzzed and clamped to [MinimumInterval, MaximumInterval].
func (s *Scheduler) dayInterval(c domain.MemoryState) time.Duration {
	days := s.clampDays(int(math.Round(s.rawInterval(c.Stability))))
	days = s.clampDays(s.applyFuzz(days, fuzzSample(c.CardID, c.Reps)))
	return time.Duration(days) * day
}

// rawInterval is the unfuzzed interval in days, capped at MaximumInterval
// before any integer conversion.
func (s *Scheduler) rawInterval(stability float64) float64 {
	return math.Min(s.model.interval(stability, s.params.DesiredRetention), float64(s.params.MaximumInterval))
}

func (s *Scheduler) clampDays(days int) int {
	return min(max(days, s.params.MinimumInterval), s.params.MaximumInterval)
}

func checkState(m domain.MemoryState, now time.Time) error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMemoryState, err)
	}
	if !m.State.IsValid() {
		return fmt.Errorf("%w: unknown state %d", ErrInvalidMemoryState, int(m.State))
	}
	if !isFinite(m.Stability) || !isFinite(m.Difficulty) {
		return fmt.Errorf("%w: stability %v, difficulty %v", ErrInvalidMemoryState, m.Stability, m.Difficulty)
	}
	if m.State != domain.New {
		if m.LastReview == nil {
			return fmt.Errorf("%w: %s card has no last review", ErrInvalidMemoryState, m.State)
		}
		if m.Stability <= 0 {
			return fmt.Errorf("%w: stability %f must be positive", ErrInvalidMemoryState, m.Stability)
		}
		if m.Difficulty < minDifficulty || m.Difficulty > maxDifficulty {
			return fmt.Errorf("%w: difficulty %f outside [%g, %g]", ErrInvalidMemoryState, m.Difficulty, minDifficulty, maxDifficulty)
		}
	}
	if m.LastReview != nil && now.Before(*m.LastReview) {
		return fmt.Errorf("%w: now %s, last review %s", ErrReviewBeforeLast,
			now.Format(time.RFC3339), m.LastReview.Format(time.RFC3339))
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
