package storage

// Timestamps are stored as Unix milliseconds so that ordering and due-date
// comparisons are exact integer comparisons.
const schema = `
-- 'sources' tracks where cards come from: a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned INTEGER
);

-- 'cards' stores flashcard content keyed by its content-derived id.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    question TEXT NOT NULL,
    answer TEXT NOT NULL DEFAULT '',
    context TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

-- 'card_sources' records every source a card appears in. The same content
-- in two decks is one card with two owners.
CREATE TABLE IF NOT EXISTS card_sources (
    card_id TEXT NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
    source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    PRIMARY KEY (card_id, source_id)
);

CREATE INDEX IF NOT EXISTS idx_card_sources_source ON card_sources(source_id);

-- 'schedules' holds exactly one review schedule per card.
CREATE TABLE IF NOT EXISTS schedules (
    card_id TEXT PRIMARY KEY REFERENCES cards(id) ON DELETE CASCADE,
    ease_factor REAL NOT NULL,
    interval_days INTEGER NOT NULL,
    repetition_count INTEGER NOT NULL,
    next_review_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_schedules_next_review_at ON schedules(next_review_at);

-- 'review_logs' is the append-only history of reviews and the schedule each produced.
CREATE TABLE IF NOT EXISTS review_logs (
    id TEXT PRIMARY KEY,
    card_id TEXT NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
    quality INTEGER NOT NULL,
    reviewed_at INTEGER NOT NULL,
    ease_factor REAL NOT NULL,
    interval_days INTEGER NOT NULL,
    repetition_count INTEGER NOT NULL,
    next_review_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_review_logs_card ON review_logs(card_id, reviewed_at);
`
