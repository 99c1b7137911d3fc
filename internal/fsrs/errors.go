package fsrs

import (
	"errors"

	"github.com/conorfennell/retain/internal/domain"
)

// Errors returned by the scheduler. All of them indicate a bug in the
// caller; the scheduler never coerces bad input.
var (
	ErrInvalidGrade       = domain.ErrInvalidGrade
	ErrInvalidMemoryState = errors.New("fsrs: invalid memory state")
	ErrReviewBeforeLast   = errors.New("fsrs: review time precedes last review")
	ErrInvalidParameters  = errors.New("fsrs: parameters out of bounds")
)
