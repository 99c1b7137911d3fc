package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/retain/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// ErrVersionConflict is returned by CommitReview when the stored state was
// changed after the caller read it.
var ErrVersionConflict = errors.New("storage: memory state version conflict")

// Times are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Record is a persisted memory state together with its version.
type Record struct {
	State   domain.MemoryState
	Version int64
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection keeps read-modify-write
	// transactions from failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// FindState retrieves a card's memory state. It returns nil if the card has
// never been reviewed.
func (db *DB) FindState(ctx context.Context, cardID string) (*Record, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT card_id, state, step, stability, difficulty, reps, lapses,
		       scheduled_days, elapsed_days, last_review, due, version
		FROM memory_states WHERE card_id = ?
	`, cardID)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Card not reviewed yet
		}
		return nil, fmt.Errorf("failed to find memory state for card %s: %w", cardID, err)
	}
	return rec, nil
}

// CommitReview writes the new memory state and appends the review event in a
// single transaction. version must be the version the caller read (0 when
// the card had no stored state); if the row has moved on in the meantime
// nothing is written and ErrVersionConflict is returned. It returns the new
// version.
func (db *DB) CommitReview(ctx context.Context, state domain.MemoryState, version int64, event domain.ReviewEvent) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	next := version + 1
	var res sql.Result
	if version == 0 {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO memory_states (card_id, state, step, stability, difficulty, reps, lapses,
			                           scheduled_days, elapsed_days, last_review, due, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(card_id) DO NOTHING
		`,
			state.CardID,
			int(state.State),
			state.Step,
			state.Stability,
			state.Difficulty,
			state.Reps,
			state.Lapses,
			state.ScheduledDays,
			state.ElapsedDays,
			formatNullTime(state.LastReview),
			formatTime(state.Due),
			next,
		)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE memory_states
			SET state = ?, step = ?, stability = ?, difficulty = ?, reps = ?, lapses = ?,
			    scheduled_days = ?, elapsed_days = ?, last_review = ?, due = ?, version = ?
			WHERE card_id = ? AND version = ?
		`,
			int(state.State),
			state.Step,
			state.Stability,
			state.Difficulty,
			state.Reps,
			state.Lapses,
			state.ScheduledDays,
			state.ElapsedDays,
			formatNullTime(state.LastReview),
			formatTime(state.Due),
			next,
			state.CardID,
			version,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write memory state for card %s: %w", state.CardID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected for card %s: %w", state.CardID, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: card %s at version %d", ErrVersionConflict, state.CardID, version)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO review_events (id, card_id, lesson_id, grade, reviewed_at,
		                           scheduled_days, elapsed_days, state, context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		event.CardID,
		event.LessonID,
		int(event.Grade),
		formatTime(event.ReviewedAt),
		event.ScheduledDays,
		event.ElapsedDays,
		int(event.State),
		string(event.Context),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append review event for card %s: %w", event.CardID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit review for card %s: %w", state.CardID, err)
	}
	return next, nil
}

// ListEvents retrieves the review history of a card, oldest first.
func (db *DB) ListEvents(ctx context.Context, cardID string) ([]domain.ReviewEvent, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, card_id, lesson_id, grade, reviewed_at, scheduled_days, elapsed_days, state, context
		FROM review_events WHERE card_id = ?
		ORDER BY reviewed_at, rowid
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to get review events for card %s: %w", cardID, err)
	}
	defer rows.Close()

	var events []domain.ReviewEvent
	for rows.Next() {
		var (
			e          domain.ReviewEvent
			grade      int
			state      int
			reviewedAt string
			reviewCtx  string
		)
		if err := rows.Scan(
			&e.ID,
			&e.CardID,
			&e.LessonID,
			&grade,
			&reviewedAt,
			&e.ScheduledDays,
			&e.ElapsedDays,
			&state,
			&reviewCtx,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review event row for card %s: %w", cardID, err)
		}
		if e.ReviewedAt, err = time.Parse(timeLayout, reviewedAt); err != nil {
			return nil, fmt.Errorf("failed to parse review time %q: %w", reviewedAt, err)
		}
		e.Grade = domain.Grade(grade)
		e.State = domain.State(state)
		e.Context = domain.ReviewContext(reviewCtx)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate review events for card %s: %w", cardID, err)
	}
	return events, nil
}

// DueStates retrieves up to limit memory states due at or before now, most
// overdue first.
func (db *DB) DueStates(ctx context.Context, now time.Time, limit int) ([]domain.MemoryState, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT card_id, state, step, stability, difficulty, reps, lapses,
		       scheduled_days, elapsed_days, last_review, due, version
		FROM memory_states WHERE due <= ?
		ORDER BY due, card_id
		LIMIT ?
	`, formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due memory states: %w", err)
	}
	defer rows.Close()

	var states []domain.MemoryState
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory state row: %w", err)
		}
		states = append(states, rec.State)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due memory states: %w", err)
	}
	return states, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var (
		rec        Record
		m          = &rec.State
		state      int
		lastReview sql.NullString
		due        string
	)
	if err := s.Scan(
		&m.CardID,
		&state,
		&m.Step,
		&m.Stability,
		&m.Difficulty,
		&m.Reps,
		&m.Lapses,
		&m.ScheduledDays,
		&m.ElapsedDays,
		&lastReview,
		&due,
		&rec.Version,
	); err != nil {
		return nil, err
	}
	m.State = domain.State(state)

	var err error
	if m.Due, err = time.Parse(timeLayout, due); err != nil {
		return nil, fmt.Errorf("failed to parse due time %q: %w", due, err)
	}
	if lastReview.Valid {
		t, err := time.Parse(timeLayout, lastReview.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last review time %q: %w", lastReview.String, err)
		}
		m.LastReview = &t
	}
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
