package fsrs

import (
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// NumWeights is the length of the FSRS-6 calibration vector.
const NumWeights = 21

// DefaultWeights are the FSRS-6 default weights.
//
//	w[0..3]   initial stability per grade (Again..Easy)
//	w[4..5]   initial difficulty curve
//	w[6..7]   difficulty delta and mean reversion
//	w[8..10]  recall stability growth
//	w[11..14] forget stability
//	w[15..16] hard penalty, easy bonus
//	w[17..19] same-day stability
//	w[20]     forgetting curve decay
var DefaultWeights = [NumWeights]float64{
	0.212, 1.2931, 2.3065, 8.2956,
	6.4133, 0.8334, 3.0194, 0.001,
	1.8722, 0.1666, 0.796, 1.4835,
	0.0614, 0.2629, 1.6483, 0.6014,
	1.8729, 0.5425, 0.0912, 0.0658,
	0.1542,
}

// WeightLowerBounds is the minimum allowed value of each weight.
var WeightLowerBounds = [NumWeights]float64{
	0.001, 0.001, 0.001, 0.001,
	1.0, 0.001, 0.001, 0.001,
	0.0, 0.0, 0.001, 0.001,
	0.001, 0.001, 0.0, 0.0,
	1.0, 0.0, 0.0, 0.0,
	0.1,
}

// WeightUpperBounds is the maximum allowed value of each weight.
var WeightUpperBounds = [NumWeights]float64{
	100.0, 100.0, 100.0, 100.0,
	10.0, 4.0, 4.0, 0.75,
	4.5, 0.8, 3.5, 5.0,
	0.25, 0.9, 4.0, 1.0,
	6.0, 2.0, 2.0, 0.8,
	0.8,
}

// Params holds the tunable configuration of the scheduler.
type Params struct {
	Weights          [NumWeights]float64
	DesiredRetention float64         `validate:"gt=0,lt=1"`
	MinimumInterval  int             `validate:"gte=1"`                              // days
	MaximumInterval  int             `validate:"gtefield=MinimumInterval,lte=36500"` // days
	LearningSteps    []time.Duration `validate:"dive,gt=0"`
	RelearningSteps  []time.Duration `validate:"dive,gt=0"`
	EnableFuzz       bool
	FuzzFactor       float64 `validate:"gte=0,lte=2"` // scales the fuzz range; 0 disables it.
}

// DefaultParams provides a set of sensible default parameters to start with.
func DefaultParams() *Params {
	return &Params{
		Weights:          DefaultWeights,
		DesiredRetention: 0.9,
		MinimumInterval:  1,
		MaximumInterval:  36500,
		LearningSteps:    []time.Duration{10 * time.Minute, 24 * time.Hour},
		RelearningSteps:  []time.Duration{10 * time.Minute},
		EnableFuzz:       true,
		FuzzFactor:       1.0,
	}
}

// Validate checks every field, including each weight against its bounds.
func (p *Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	for i, w := range p.Weights {
		if math.IsNaN(w) || w < WeightLowerBounds[i] || w > WeightUpperBounds[i] {
			return fmt.Errorf("%w: w[%d] = %f, bounds [%f, %f]",
				ErrInvalidParameters, i, w, WeightLowerBounds[i], WeightUpperBounds[i])
		}
	}
	return nil
}
