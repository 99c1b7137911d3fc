// Package review connects the scheduler to persistent storage: it loads a
// card's memory state, applies a review and records the result.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/conorfennell/retain/internal/cardkey"
	"github.com/conorfennell/retain/internal/domain"
	"github.com/conorfennell/retain/internal/fsrs"
	"github.com/conorfennell/retain/internal/storage"
)

var (
	// ErrInvalidRequest is returned when a review request fails validation.
	ErrInvalidRequest = errors.New("review: invalid request")
	// ErrConflict is returned when concurrent writers kept winning the race
	// for a card after every retry.
	ErrConflict = errors.New("review: concurrent update conflict")
)

const (
	defaultMaxAttempts = 3
	defaultDueLimit    = 50
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Store is the persistence the service needs. *storage.DB implements it.
type Store interface {
	FindState(ctx context.Context, cardID string) (*storage.Record, error)
	CommitReview(ctx context.Context, state domain.MemoryState, version int64, event domain.ReviewEvent) (int64, error)
	ListEvents(ctx context.Context, cardID string) ([]domain.ReviewEvent, error)
	DueStates(ctx context.Context, now time.Time, limit int) ([]domain.MemoryState, error)
}

// Request describes a single completed review.
type Request struct {
	CardID   string               `json:"card_id" validate:"required,max=256"`
	LessonID string               `json:"lesson_id" validate:"required,max=256"`
	Grade    domain.Grade         `json:"grade" validate:"min=1,max=4"`
	Context  domain.ReviewContext `json:"context,omitempty" validate:"omitempty,oneof=inline quiz"`
}

// Outcome is the persisted result of a review.
type Outcome struct {
	State          domain.MemoryState `json:"state"`
	Event          domain.ReviewEvent `json:"event"`
	Interval       time.Duration      `json:"interval"`
	Retrievability float64            `json:"retrievability"`
}

// Status is a card's memory state together with its current recall probability.
type Status struct {
	State          domain.MemoryState `json:"state"`
	Retrievability float64            `json:"retrievability"`
}

// Service records reviews. It is safe for concurrent use.
type Service struct {
	store       Store
	scheduler   *fsrs.Scheduler
	now         func() time.Time
	newID       func() string
	logger      *slog.Logger
	maxAttempts int
	locks       *cardLocks
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the source of review timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMaxAttempts sets how many times a review is attempted when storage
// reports a version conflict.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithIDGenerator sets how review event ids are generated.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService creates a Service.
func NewService(store Store, scheduler *fsrs.Scheduler, opts ...Option) *Service {
	s := &Service{
		store:       store,
		scheduler:   scheduler,
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      slog.Default(),
		maxAttempts: defaultMaxAttempts,
		locks:       newCardLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreateState returns the card's stored memory state, or a fresh New
// state if the card has never been reviewed. Nothing is written.
func (s *Service) GetOrCreateState(ctx context.Context, cardID string) (domain.MemoryState, error) {
	state, _, err := s.load(ctx, cardkey.Normalize(cardID))
	return state, err
}

// Status returns the card's memory state and its retrievability now.
func (s *Service) Status(ctx context.Context, cardID string) (Status, error) {
	state, err := s.GetOrCreateState(ctx, cardID)
	if err != nil {
		return Status{}, err
	}
	return Status{State: state, Retrievability: s.scheduler.Retrievability(state, s.now())}, nil
}

// RecordReview applies the review to the card's memory state and persists
// the new state together with a review event. Either both are stored or
// neither is. On a version conflict the latest state is re-read and the
// review is applied again.
func (s *Service) RecordReview(ctx context.Context, req Request) (Outcome, error) {
	if err := validate.Struct(req); err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.CardID = cardkey.Normalize(req.CardID)

	unlock := s.locks.lock(req.CardID)
	defer unlock()

	for attempt := 1; ; attempt++ {
		out, err := s.record(ctx, req)
		if err == nil {
			s.logger.Info("review recorded",
				"card_id", req.CardID,
				"lesson_id", req.LessonID,
				"grade", req.Grade.String(),
				"state", out.State.State.String(),
				"scheduled_days", out.State.ScheduledDays,
				"due", out.State.Due,
			)
			return out, nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return Outcome{}, err
		}
		if attempt >= s.maxAttempts {
			return Outcome{}, fmt.Errorf("%w: card %s after %d attempts: %v", ErrConflict, req.CardID, attempt, err)
		}
		s.logger.Warn("review conflict, retrying", "card_id", req.CardID, "attempt", attempt)
	}
}

func (s *Service) record(ctx context.Context, req Request) (Outcome, error) {
	state, version, err := s.load(ctx, req.CardID)
	if err != nil {
		return Outcome{}, err
	}

	now := s.now()
	res, err := s.scheduler.Schedule(state, req.Grade, now)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to schedule card %s: %w", req.CardID, err)
	}

	event := domain.ReviewEvent{
		ID:            s.newID(),
		CardID:        req.CardID,
		LessonID:      req.LessonID,
		Grade:         req.Grade,
		ReviewedAt:    now,
		ScheduledDays: res.State.ScheduledDays,
		ElapsedDays:   res.State.ElapsedDays,
		State:         res.State.State,
		Context:       req.Context,
	}
	if _, err := s.store.CommitReview(ctx, res.State, version, event); err != nil {
		return Outcome{}, fmt.Errorf("failed to persist review for card %s: %w", req.CardID, err)
	}

	return Outcome{
		State:          res.State,
		Event:          event,
		Interval:       res.Interval,
		Retrievability: res.Retrievability,
	}, nil
}

// Preview returns what each grade would do to the card if it were reviewed now.
func (s *Service) Preview(ctx context.Context, cardID string) (map[domain.Grade]fsrs.Result, error) {
	state, err := s.GetOrCreateState(ctx, cardID)
	if err != nil {
		return nil, err
	}
	preview, err := s.scheduler.Preview(state, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to preview card %s: %w", state.CardID, err)
	}
	return preview, nil
}

// History returns the card's review events, oldest first.
func (s *Service) History(ctx context.Context, cardID string) ([]domain.ReviewEvent, error) {
	events, err := s.store.ListEvents(ctx, cardkey.Normalize(cardID))
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return events, nil
}

// Due returns up to limit reviewed cards that are due now, most overdue
// first. Cards that were never reviewed have no stored state and are not
// listed.
func (s *Service) Due(ctx context.Context, limit int) ([]domain.MemoryState, error) {
	if limit <= 0 {
		limit = defaultDueLimit
	}
	states, err := s.store.DueStates(ctx, s.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load due cards: %w", err)
	}
	return states, nil
}

func (s *Service) load(ctx context.Context, cardID string) (domain.MemoryState, int64, error) {
	if cardID == "" {
		return domain.MemoryState{}, 0, fmt.Errorf("%w: empty card id", ErrInvalidRequest)
	}
	rec, err := s.store.FindState(ctx, cardID)
	if err != nil {
		return domain.MemoryState{}, 0, fmt.Errorf("failed to load card %s: %w", cardID, err)
	}
	if rec == nil {
		return domain.NewMemoryState(cardID, s.now()), 0, nil
	}
	return rec.State, rec.Version, nil
}
