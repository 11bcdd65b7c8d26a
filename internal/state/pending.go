package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Pending is a rating key queued by a webhook.
type Pending struct {
	RatingKey  string    `json:"rating_key"`
	Event      string    `json:"event"`
	ReceivedAt time.Time `json:"received_at"`
	Hits       int       `json:"hits"`
}

// EnqueuePending queues key for the next pending sync. Queuing a key that is
// already pending keeps its position and records the latest event.
func (s *Store) EnqueuePending(ctx context.Context, key, event string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("pending rating key required")
	}
	_, err := s.exec(ctx, sq.Insert("pending").
		Columns("rating_key", "event", "received_at").
		Values(key, event, formatTime(time.Now())).
		Suffix("ON CONFLICT(rating_key) DO UPDATE SET event = excluded.event, hits = pending.hits + 1"))
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", key, err)
	}
	return nil
}

// PendingKeys returns up to limit queued keys, oldest first. A limit of 0
// or less returns every key.
func (s *Store) PendingKeys(ctx context.Context, limit int) ([]Pending, error) {
	stmt := sq.Select("rating_key", "event", "received_at", "hits").
		From("pending").
		OrderBy("received_at", "rating_key")
	if limit > 0 {
		stmt = stmt.Limit(uint64(limit))
	}
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var out []Pending
	for rows.Next() {
		var (
			item Pending
			raw  string
		)
		if err := rows.Scan(&item.RatingKey, &item.Event, &raw, &item.Hits); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		if item.ReceivedAt, err = parseTime(raw); err != nil {
			return nil, fmt.Errorf("parse pending %s: %w", item.RatingKey, err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// PendingCount returns the number of queued keys.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	row, err := s.queryRow(ctx, sq.Select("COUNT(1)").From("pending"))
	if err != nil {
		return 0, err
	}
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return count, nil
}

// AckPending removes synced entries from the queue. An entry is only
// removed while its hit count still matches the snapshot, so a key queued
// again during the sync stays pending for the next run.
func (s *Store) AckPending(ctx context.Context, synced ...Pending) error {
	if len(synced) == 0 {
		return nil
	}
	match := make(sq.Or, 0, len(synced))
	for _, p := range synced {
		match = append(match, sq.Eq{"rating_key": p.RatingKey, "hits": p.Hits})
	}
	if _, err := s.exec(ctx, sq.Delete("pending").Where(match)); err != nil {
		return fmt.Errorf("ack pending: %w", err)
	}
	return nil
}
