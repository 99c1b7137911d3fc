package review

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/conorfennell/retain/internal/domain"
	"github.com/conorfennell/retain/internal/fsrs"
	"github.com/conorfennell/retain/internal/storage"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// memStore is an in-memory Store with failure injection.
type memStore struct {
	mu        sync.Mutex
	records   map[string]storage.Record
	events    []domain.ReviewEvent
	commitErr error
	conflicts int
	commits   int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]storage.Record)}
}

func (m *memStore) FindState(_ context.Context, cardID string) (*storage.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[cardID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memStore) CommitReview(_ context.Context, state domain.MemoryState, version int64, event domain.ReviewEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	if m.commitErr != nil {
		return 0, m.commitErr
	}
	if m.conflicts > 0 {
		m.conflicts--
		return 0, storage.ErrVersionConflict
	}
	if m.records[state.CardID].Version != version {
		return 0, storage.ErrVersionConflict
	}
	m.records[state.CardID] = storage.Record{State: state, Version: version + 1}
	m.events = append(m.events, event)
	return version + 1, nil
}

func (m *memStore) ListEvents(_ context.Context, cardID string) ([]domain.ReviewEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ReviewEvent
	for _, e := range m.events {
		if e.CardID == cardID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) DueStates(_ context.Context, now time.Time, limit int) ([]domain.MemoryState, error) {
	return nil, nil
}

func newScheduler(t *testing.T) *fsrs.Scheduler {
	t.Helper()
	s, err := fsrs.NewScheduler(fsrs.DefaultParams())
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return s
}

func newTestService(t *testing.T, store Store, clock *fakeClock, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{
		WithClock(clock.Now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return NewService(store, newScheduler(t), opts...)
}

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "retain.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func goodReview(cardID string) Request {
	return Request{CardID: cardID, LessonID: "lesson-1", Grade: domain.Good, Context: domain.ContextInline}
}

func TestGetOrCreateState(t *testing.T) {
	db := openTestDB(t)
	clock := &fakeClock{now: t0}
	svc := newTestService(t, db, clock)
	ctx := context.Background()

	state, err := svc.GetOrCreateState(ctx, "card-1")
	if err != nil {
		t.Fatalf("GetOrCreateState: %v", err)
	}
	if state.State != domain.New || state.CardID != "card-1" || !state.Due.Equal(t0) {
		t.Errorf("Expected a fresh New state due now, but got %+v", state)
	}

	rec, err := db.FindState(ctx, "card-1")
	if err != nil {
		t.Fatalf("FindState: %v", err)
	}
	if rec != nil {
		t.Errorf("Expected nothing to be persisted, but found %+v", rec)
	}
}

func TestRecordReview(t *testing.T) {
	db := openTestDB(t)
	clock := &fakeClock{now: t0}
	svc := newTestService(t, db, clock)
	ctx := context.Background()

	out, err := svc.RecordReview(ctx, goodReview("card-1"))
	if err != nil {
		t.Fatalf("RecordReview: %v", err)
	}
	if out.State.State != domain.Learning || out.State.Reps != 1 {
		t.Errorf("Expected Learning with 1 rep, but got %s with %d", out.State.State, out.State.Reps)
	}
	if out.Event.ID == "" || out.Event.State != out.State.State || out.Event.LessonID != "lesson-1" {
		t.Errorf("Unexpected event: %+v", out.Event)
	}

	stored, err := svc.GetOrCreateState(ctx, "card-1")
	if err != nil {
		t.Fatalf("GetOrCreateState: %v", err)
	}
	if !reflect.DeepEqual(stored, out.State) {
		t.Errorf("Expected stored state %+v, but got %+v", out.State, stored)
	}

	history, err := svc.History(ctx, "card-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || !reflect.DeepEqual(history[0], out.Event) {
		t.Errorf("Expected history to hold the event, but got %+v", history)
	}
}

func TestRecordReviewInvalidRequest(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, &fakeClock{now: t0})

	cases := map[string]Request{
		"missing card":    {LessonID: "lesson-1", Grade: domain.Good},
		"blank card":      {CardID: "  ", LessonID: "lesson-1", Grade: domain.Good},
		"missing lesson":  {CardID: "card-1", Grade: domain.Good},
		"grade too high":  {CardID: "card-1", LessonID: "lesson-1", Grade: 7},
		"missing grade":   {CardID: "card-1", LessonID: "lesson-1"},
		"unknown context": {CardID: "card-1", LessonID: "lesson-1", Grade: domain.Good, Context: "bogus"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.RecordReview(context.Background(), req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Expected ErrInvalidRequest, but got %v", err)
			}
		})
	}
	if store.commits != 0 {
		t.Errorf("Expected no commits, but got %d", store.commits)
	}
}

func TestRecordReviewPersistenceFailure(t *testing.T) {
	store := newMemStore()
	clock := &fakeClock{now: t0}
	svc := newTestService(t, store, clock)
	ctx := context.Background()

	first, err := svc.RecordReview(ctx, goodReview("card-1"))
	if err != nil {
		t.Fatalf("RecordReview: %v", err)
	}

	writeErr := errors.New("disk full")
	store.commitErr = writeErr
	clock.Set(first.State.Due)

	if _, err := svc.RecordReview(ctx, goodReview("card-1")); !errors.Is(err, writeErr) {
		t.Fatalf("Expected the write error to propagate, but got %v", err)
	}

	state, err := svc.GetOrCreateState(ctx, "card-1")
	if err != nil {
		t.Fatalf("GetOrCreateState: %v", err)
	}
	if !state.Due.Equal(first.State.Due) || state.Reps != 1 {
		t.Errorf("Expected state to be unchanged after a failed write, but got %+v", state)
	}
	if len(store.events) != 1 {
		t.Errorf("Expected a single event, but got %d", len(store.events))
	}
}

func TestRecordReviewSchedulingFailure(t *testing.T) {
	store := newMemStore()
	clock := &fakeClock{now: t0}
	svc := newTestService(t, store, clock)
	ctx := context.Background()

	if _, err := svc.RecordReview(ctx, goodReview("card-1")); err != nil {
		t.Fatalf("RecordReview: %v", err)
	}

	clock.Set(t0.Add(-time.Hour))
	_, err := svc.RecordReview(ctx, goodReview("card-1"))
	if !errors.Is(err, fsrs.ErrReviewBeforeLast) {
		t.Fatalf("Expected ErrReviewBeforeLast, but got %v", err)
	}
	if store.commits != 1 {
		t.Errorf("Expected no commit for the failed review, but got %d commits", store.commits)
	}
}

func TestRecordReviewConflictRetry(t *testing.T) {
	t.Run("succeeds within the attempt budget", func(t *testing.T) {
		store := newMemStore()
		store.conflicts = 2
		svc := newTestService(t, store, &fakeClock{now: t0}, WithMaxAttempts(3))

		if _, err := svc.RecordReview(context.Background(), goodReview("card-1")); err != nil {
			t.Fatalf("Expected retry to succeed, but got %v", err)
		}
		if store.commits != 3 {
			t.Errorf("Expected 3 commit attempts, but got %d", store.commits)
		}
	})

	t.Run("gives up after the attempt budget", func(t *testing.T) {
		store := newMemStore()
		store.conflicts = 10
		svc := newTestService(t, store, &fakeClock{now: t0}, WithMaxAttempts(3))

		_, err := svc.RecordReview(context.Background(), goodReview("card-1"))
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("Expected ErrConflict, but got %v", err)
		}
		if store.commits != 3 {
			t.Errorf("Expected 3 commit attempts, but got %d", store.commits)
		}
		if len(store.events) != 0 {
			t.Errorf("Expected no events, but got %d", len(store.events))
		}
	})
}

func TestRecordReviewConcurrent(t *testing.T) {
	db := openTestDB(t)
	clock := &fakeClock{now: t0}
	svc := newTestService(t, db, clock)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n*2)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.RecordReview(ctx, goodReview("card-shared"))
			errs <- err
		}()
		go func(i int) {
			defer wg.Done()
			_, err := svc.RecordReview(ctx, goodReview(fmt.Sprintf("card-%d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("RecordReview: %v", err)
		}
	}

	state, err := svc.GetOrCreateState(ctx, "card-shared")
	if err != nil {
		t.Fatalf("GetOrCreateState: %v", err)
	}
	if state.Reps != n {
		t.Errorf("Expected %d reps with no lost updates, but got %d", n, state.Reps)
	}
	history, err := svc.History(ctx, "card-shared")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != n {
		t.Errorf("Expected %d events, but got %d", n, len(history))
	}
}

func TestPersistedStateSchedulesIdentically(t *testing.T) {
	db := openTestDB(t)
	clock := &fakeClock{now: t0}
	svc := newTestService(t, db, clock)
	scheduler := newScheduler(t)
	ctx := context.Background()

	var last Outcome
	for _, g := range []domain.Grade{domain.Good, domain.Good, domain.Hard, domain.Again, domain.Good} {
		req := goodReview("card-1")
		req.Grade = g
		out, err := svc.RecordReview(ctx, req)
		if err != nil {
			t.Fatalf("RecordReview: %v", err)
		}
		last = out
		clock.Set(out.State.Due.Add(36 * time.Hour))
	}

	loaded, err := svc.GetOrCreateState(ctx, "card-1")
	if err != nil {
		t.Fatalf("GetOrCreateState: %v", err)
	}

	now := clock.Now()
	for _, g := range domain.Grades {
		want, err := scheduler.Schedule(last.State, g, now)
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
		got, err := scheduler.Schedule(loaded, g, now)
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s: expected %+v, but got %+v", g, want, got)
		}
	}
}

func TestStatusAndPreview(t *testing.T) {
	db := openTestDB(t)
	clock := &fakeClock{now: t0}
	svc := newTestService(t, db, clock)
	ctx := context.Background()

	status, err := svc.Status(ctx, "card-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Retrievability != 0 {
		t.Errorf("Expected 0 retrievability for a new card, but got %f", status.Retrievability)
	}

	if _, err := svc.RecordReview(ctx, goodReview("card-1")); err != nil {
		t.Fatalf("RecordReview: %v", err)
	}
	status, err = svc.Status(ctx, "card-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Retrievability != 1 {
		t.Errorf("Expected retrievability 1 right after a review, but got %f", status.Retrievability)
	}

	preview, err := svc.Preview(ctx, "card-1")
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(preview) != 4 {
		t.Errorf("Expected 4 outcomes, but got %d", len(preview))
	}
}

func TestDue(t *testing.T) {
	db := openTestDB(t)
	clock := &fakeClock{now: t0}
	svc := newTestService(t, db, clock)
	ctx := context.Background()

	for _, id := range []string{"card-1", "card-2"} {
		if _, err := svc.RecordReview(ctx, goodReview(id)); err != nil {
			t.Fatalf("RecordReview: %v", err)
		}
	}

	due, err := svc.Due(ctx, 0)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("Expected nothing due right after review, but got %d", len(due))
	}

	clock.Set(t0.Add(48 * time.Hour))
	due, err = svc.Due(ctx, 0)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 2 {
		t.Errorf("Expected 2 due cards, but got %d", len(due))
	}
}
