package domain

import "time"

// MemoryState holds the scheduling parameters of a single review card.
// It is created lazily on first access and only ever replaced wholesale by
// the scheduler; callers must treat it as a value.
type MemoryState struct {
	CardID        string     `json:"card_id" validate:"required"`
	State         State      `json:"state"`
	Step          int        `json:"step" validate:"gte=0"`
	Stability     float64    `json:"stability" validate:"gte=0"`
	Difficulty    float64    `json:"difficulty" validate:"gte=0,lte=10"`
	Reps          int        `json:"reps" validate:"gte=0"`
	Lapses        int        `json:"lapses" validate:"gte=0"`
	ScheduledDays int        `json:"scheduled_days" validate:"gte=0"`
	ElapsedDays   int        `json:"elapsed_days" validate:"gte=0"`
	LastReview    *time.Time `json:"last_review,omitempty"` // nil before first review.
	Due           time.Time  `json:"due"`
}

// NewMemoryState returns the default state of a card that has never been
// reviewed. It is due immediately.
func NewMemoryState(cardID string, now time.Time) MemoryState {
	return MemoryState{
		CardID: cardID,
		State:  New,
		Due:    now,
	}
}

// Clone returns a deep copy of the state.
func (m MemoryState) Clone() MemoryState {
	out := m
	if m.LastReview != nil {
		v := *m.LastReview
		out.LastReview = &v
	}
	return out
}

// IsDue reports whether the card should be presented at now.
func (m MemoryState) IsDue(now time.Time) bool {
	return !m.Due.After(now)
}

// ReviewContext tags where a review happened.
type ReviewContext string

const (
	ContextInline ReviewContext = "inline"
	ContextQuiz   ReviewContext = "quiz"
)

// ReviewEvent records a single completed review. Events are append-only.
type ReviewEvent struct {
	ID            string        `json:"id"`
	CardID        string        `json:"card_id"`
	LessonID      string        `json:"lesson_id"`
	Grade         Grade         `json:"grade"`
	ReviewedAt    time.Time     `json:"reviewed_at"`
	ScheduledDays int           `json:"scheduled_days"`
	ElapsedDays   int           `json:"elapsed_days"`
	State         State         `json:"state"` // state after the review was applied.
	Context       ReviewContext `json:"context,omitempty"`
}
