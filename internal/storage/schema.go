package storage

const schema = `
-- One row per card that has been reviewed at least once. Cards without a
-- row are implicitly New.
CREATE TABLE IF NOT EXISTS memory_states (
    card_id TEXT PRIMARY KEY,
    state INTEGER NOT NULL DEFAULT 0, -- 0: New, 1: Learning, 2: Review, 3: Relearning
    step INTEGER NOT NULL DEFAULT 0,
    stability REAL NOT NULL,
    difficulty REAL NOT NULL,
    reps INTEGER NOT NULL DEFAULT 0,
    lapses INTEGER NOT NULL DEFAULT 0,
    scheduled_days INTEGER NOT NULL DEFAULT 0,
    elapsed_days INTEGER NOT NULL DEFAULT 0,
    last_review TEXT,
    due TEXT NOT NULL,
    version INTEGER NOT NULL -- bumped on every write, used for optimistic concurrency
);

CREATE INDEX IF NOT EXISTS idx_memory_states_due ON memory_states(due);

-- Append-only audit trail, one row per completed review.
CREATE TABLE IF NOT EXISTS review_events (
    id TEXT PRIMARY KEY,
    card_id TEXT NOT NULL,
    lesson_id TEXT NOT NULL,
    grade INTEGER NOT NULL,
    reviewed_at TEXT NOT NULL,
    scheduled_days INTEGER NOT NULL,
    elapsed_days INTEGER NOT NULL,
    state INTEGER NOT NULL,
    context TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_review_events_card ON review_events(card_id, reviewed_at);
`
