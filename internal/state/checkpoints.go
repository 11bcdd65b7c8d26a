package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Checkpoint returns the last successful sync of section. ok is false when
// the section has never been synced.
func (s *Store) Checkpoint(ctx context.Context, section string) (time.Time, bool, error) {
	row, err := s.queryRow(ctx, sq.Select("synced_at").From("checkpoints").Where(sq.Eq{"section": section}))
	if err != nil {
		return time.Time{}, false, err
	}
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("read checkpoint %q: %w", section, err)
	}
	synced, err := parseTime(raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse checkpoint %q: %w", section, err)
	}
	return synced, true, nil
}

// SetCheckpoint records t as the last successful sync of section.
func (s *Store) SetCheckpoint(ctx context.Context, section string, t time.Time) error {
	if strings.TrimSpace(section) == "" {
		return errors.New("checkpoint section required")
	}
	_, err := s.exec(ctx, sq.Insert("checkpoints").
		Columns("section", "synced_at").
		Values(section, formatTime(t)).
		Suffix("ON CONFLICT(section) DO UPDATE SET synced_at = excluded.synced_at"))
	if err != nil {
		return fmt.Errorf("write checkpoint %q: %w", section, err)
	}
	return nil
}

// Checkpoints returns every recorded checkpoint keyed by section.
func (s *Store) Checkpoints(ctx context.Context) (map[string]time.Time, error) {
	query, args, err := sq.Select("section", "synced_at").From("checkpoints").OrderBy("section").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	out := map[string]time.Time{}
	for rows.Next() {
		var section, raw string
		if err := rows.Scan(&section, &raw); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		synced, err := parseTime(raw)
		if err != nil {
			return nil, fmt.Errorf("parse checkpoint %q: %w", section, err)
		}
		out[section] = synced
	}
	return out, rows.Err()
}

// ResetCheckpoints forgets the given sections, or all sections when none are
// named, so the next sync lists them in full.
func (s *Store) ResetCheckpoints(ctx context.Context, sections ...string) error {
	stmt := sq.Delete("checkpoints")
	if len(sections) > 0 {
		stmt = stmt.Where(sq.Eq{"section": sections})
	}
	if _, err := s.exec(ctx, stmt); err != nil {
		return fmt.Errorf("reset checkpoints: %w", err)
	}
	return nil
}
