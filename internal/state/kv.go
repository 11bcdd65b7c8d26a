package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

const clientIdentifierKey = "client_identifier"

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	row, err := s.queryRow(ctx, sq.Select("value").From("kv").Where(sq.Eq{"key": key}))
	if err != nil {
		return "", false, err
	}
	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return value, true, nil
}

// Put stores value under key, replacing any previous value.
func (s *Store) Put(ctx context.Context, key, value string) error {
	_, err := s.exec(ctx, sq.Insert("kv").
		Columns("key", "value").
		Values(key, value).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value"))
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// ClientIdentifier returns the X-Plex-Client-Identifier of this
// installation, generating and persisting one on first use.
func (s *Store) ClientIdentifier(ctx context.Context) (string, error) {
	if id, ok, err := s.Get(ctx, clientIdentifierKey); err != nil || ok {
		return id, err
	}
	id := uuid.NewString()
	_, err := s.exec(ctx, sq.Insert("kv").
		Columns("key", "value").
		Values(clientIdentifierKey, id).
		Suffix("ON CONFLICT(key) DO NOTHING"))
	if err != nil {
		return "", fmt.Errorf("write client identifier: %w", err)
	}
	// A concurrent writer may have won the insert.
	stored, _, err := s.Get(ctx, clientIdentifierKey)
	return stored, err
}
