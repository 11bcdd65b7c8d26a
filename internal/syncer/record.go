package syncer

import (
	"context"
	"time"

	"anibridge-plex/internal/library"
	"anibridge-plex/internal/mapping"
)

// Record is the sync view of one library item.
type Record struct {
	Key         string                 `json:"key"`
	Title       string                 `json:"title"`
	Kind        mapping.Kind           `json:"kind"`
	Section     string                 `json:"section"`
	SectionKey  string                 `json:"section_key"`
	IDs         map[string]string      `json:"ids"`
	Rating      *int                   `json:"rating,omitempty"`
	ViewCount   int                    `json:"view_count"`
	OnWatching  bool                   `json:"on_watching"`
	OnWatchlist bool                   `json:"on_watchlist"`
	Ordering    mapping.Ordering       `json:"ordering,omitempty"`
	Candidates  []mapping.Candidate    `json:"candidates"`
	Match       *mapping.Match         `json:"match,omitempty"`
	History     []library.HistoryEntry `json:"history"`
	Review      string                 `json:"review,omitempty"`
	SyncedAt    time.Time              `json:"synced_at"`
}

// BuildRecord collects everything the host reads from item. index may be
// nil, in which case Match is left empty.
func BuildRecord(ctx context.Context, item *library.Media, index mapping.Index, now time.Time) Record {
	section := item.Section()
	record := Record{
		Key:         item.Key(),
		Title:       item.Title(),
		Kind:        item.Kind(),
		Section:     section.Title,
		SectionKey:  section.Key,
		IDs:         item.IDs(),
		Rating:      item.UserRating(),
		ViewCount:   item.ViewCount(),
		OnWatching:  item.OnWatching(ctx),
		OnWatchlist: item.OnWatchlist(ctx),
		Candidates:  item.MatchCandidates(ctx),
		History:     item.History(ctx),
		SyncedAt:    now,
	}
	if item.Kind() != mapping.KindMovie {
		record.Ordering = item.Ordering(ctx)
	}
	if review, ok := item.Review(ctx); ok {
		record.Review = review
	}
	if match, ok := mapping.Resolve(index, record.Candidates); ok {
		record.Match = &match
	}
	return record
}
