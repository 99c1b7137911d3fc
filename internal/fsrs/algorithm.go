package fsrs

import (
	"math"

	"github.com/conorfennell/retain/internal/domain"
)

const (
	minStability  = 0.001
	minDifficulty = 1.0
	maxDifficulty = 10.0
)

// model holds the weights plus the forgetting-curve constants derived from them.
type model struct {
	w      [NumWeights]float64
	decay  float64 // -w[20]
	factor float64 // 0.9^(1/decay) - 1
}

func newModel(w [NumWeights]float64) model {
	decay := -w[20]
	return model{w: w, decay: decay, factor: math.Pow(0.9, 1/decay) - 1}
}

// retrievability computes R(t, S) = (1 + factor * t / S) ^ decay.
// R(0, S) is exactly 1 and R(S, S) is 0.9.
func (m *model) retrievability(elapsedDays, stability float64) float64 {
	return math.Pow(1+m.factor*elapsedDays/stability, m.decay)
}

// interval inverts the forgetting curve: the number of days after which
// retrievability falls to the target retention.
func (m *model) interval(stability, retention float64) float64 {
	return stability / m.factor * (math.Pow(retention, 1/m.decay) - 1)
}

func (m *model) initStability(g domain.Grade) float64 {
	return clampStability(m.w[g-1])
}

// initDifficulty returns D0(G) = w[4] - e^(w[5] * (G - 1)) + 1.
func (m *model) initDifficulty(g domain.Grade, clamp bool) float64 {
	d := m.w[4] - math.Exp(m.w[5]*float64(g-1)) + 1
	if clamp {
		return clampDifficulty(d)
	}
	return d
}

// nextDifficulty applies the grade delta with linear damping toward the
// upper bound, then reverts slightly toward D0(Easy).
func (m *model) nextDifficulty(d float64, g domain.Grade) float64 {
	delta := -m.w[6] * (float64(g) - 3)
	damped := d + (maxDifficulty-d)*delta/9
	reverted := m.w[7]*m.initDifficulty(domain.Easy, false) + (1-m.w[7])*damped
	return clampDifficulty(reverted)
}

// recallStability is the stability after a successful long-term review.
// S' = S * (1 + e^w8 * (11-D) * S^-w9 * (e^((1-R)*w10) - 1) * hardPenalty * easyBonus)
func (m *model) recallStability(d, s, r float64, g domain.Grade) float64 {
	hardPenalty, easyBonus := 1.0, 1.0
	switch g {
	case domain.Hard:
		hardPenalty = m.w[15]
	case domain.Easy:
		easyBonus = m.w[16]
	}
	growth := math.Exp(m.w[8]) *
		(11 - d) *
		math.Pow(s, -m.w[9]) *
		(math.Exp((1-r)*m.w[10]) - 1) *
		hardPenalty * easyBonus
	return clampStability(s * (1 + growth))
}

// forgetStability is the stability after a lapse. It never exceeds the
// prior stability.
func (m *model) forgetStability(d, s, r float64) float64 {
	long := m.w[11] *
		math.Pow(d, -m.w[12]) *
		(math.Pow(s+1, m.w[13]) - 1) *
		math.Exp((1-r)*m.w[14])
	short := s / math.Exp(m.w[17]*m.w[18])
	return clampStability(math.Min(long, short))
}

// shortTermStability is the stability after a review on the same day as the
// previous one. A recalled card never loses stability.
func (m *model) shortTermStability(s float64, g domain.Grade) float64 {
	inc := math.Exp(m.w[17]*(float64(g)-3+m.w[18])) * math.Pow(s, -m.w[19])
	if g.IsSuccess() {
		inc = math.Max(inc, 1)
	}
	return clampStability(s * inc)
}

func clampStability(s float64) float64 {
	return math.Max(s, minStability)
}

func clampDifficulty(d float64) float64 {
	return math.Min(math.Max(d, minDifficulty), maxDifficulty)
}
