package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Source types.
const (
	SourceLocal = "local"
	SourceGit   = "git"
)

// Source is a deck location, either a local directory or a git URL.
type Source struct {
	ID          int64      `json:"id"`
	Path        string     `json:"path"`
	Type        string     `json:"type"`
	LastScanned *time.Time `json:"last_scanned,omitempty"`
}

// InsertSource stores a new source and returns its ID.
func (db *DB) InsertSource(ctx context.Context, path, sourceType string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (path, type) VALUES (?, ?)
	`, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath returns the source registered for path.
func (db *DB) FindSourceByPath(ctx context.Context, path string) (Source, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, path, type, last_scanned FROM sources WHERE path = ?
	`, path)
	s, err := scanSource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Source{}, fmt.Errorf("source %s: %w", path, ErrNotFound)
		}
		return Source{}, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return s, nil
}

// GetAllSources returns every registered source ordered by ID.
func (db *DB) GetAllSources(ctx context.Context) ([]Source, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, path, type, last_scanned FROM sources ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// UpdateSourceLastScanned records when a source was last reconciled.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE sources SET last_scanned = ? WHERE id = ?
	`, toUnix(at), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

// DeleteSource removes a source and every card that no other source owns.
func (db *DB) DeleteSource(ctx context.Context, sourceID int64) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM cards
			WHERE id IN (SELECT card_id FROM card_sources WHERE source_id = ?)
			  AND NOT EXISTS (
			      SELECT 1 FROM card_sources o WHERE o.card_id = cards.id AND o.source_id != ?
			  )
		`, sourceID, sourceID); err != nil {
			return fmt.Errorf("failed to delete cards of source ID %d: %w", sourceID, err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, sourceID)
		if err != nil {
			return fmt.Errorf("failed to delete source ID %d: %w", sourceID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("source ID %d: %w", sourceID, ErrNotFound)
		}
		return nil
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (Source, error) {
	var (
		s           Source
		lastScanned sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.Path, &s.Type, &lastScanned); err != nil {
		return Source{}, err
	}
	if lastScanned.Valid {
		t := fromUnix(lastScanned.Int64)
		s.LastScanned = &t
	}
	return s, nil
}
