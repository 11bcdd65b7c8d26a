package library

import (
	"context"
	"fmt"
	"time"

	"anibridge-plex/internal/logging"
	"anibridge-plex/internal/mapping"
	"anibridge-plex/internal/services/plex"
)

// ListOptions filters ListItems.
type ListOptions struct {
	// MinLastModified keeps items viewed, rated, added, or updated at or after it.
	MinLastModified *time.Time
	// RequireWatched keeps items with any view or rating activity.
	RequireWatched bool
	// Keys restricts results to these rating keys when non-empty.
	Keys []string
}

// ListItems returns the movies or shows of section that match opts.
func (p *Provider) ListItems(ctx context.Context, section Section, opts ListOptions) ([]*Media, error) {
	sess, err := p.session()
	if err != nil {
		return nil, err
	}

	results, err := sess.user.Search(ctx, section.Key, plex.SearchOptions{
		Type:            section.Type,
		MinLastModified: opts.MinLastModified,
		RequireWatched:  opts.RequireWatched,
		Genres:          p.genres,
	})
	if err != nil {
		return nil, fmt.Errorf("search section %q: %w", section.Title, err)
	}

	var keyFilter map[string]struct{}
	if len(opts.Keys) > 0 {
		keyFilter = make(map[string]struct{}, len(opts.Keys))
		for _, key := range opts.Keys {
			keyFilter[key] = struct{}{}
		}
	}

	items := make([]*Media, 0, len(results))
	for _, raw := range results {
		if raw.Type != plex.TypeMovie && raw.Type != plex.TypeShow {
			continue
		}
		if keyFilter != nil {
			if _, ok := keyFilter[raw.RatingKey.String()]; !ok {
				continue
			}
		}
		items = append(items, p.wrap(section, raw))
	}

	p.logger.Debug("listed section items",
		logging.Section(section.Title),
		logging.Int("count", len(items)),
		logging.Bool("watched_only", opts.RequireWatched),
	)
	return items, nil
}

// Item fetches one item of section by rating key.
func (p *Provider) Item(ctx context.Context, section Section, ratingKey string) (*Media, error) {
	sess, err := p.session()
	if err != nil {
		return nil, err
	}
	raw, err := sess.user.Metadata(ctx, ratingKey)
	if err != nil {
		return nil, fmt.Errorf("fetch item %s: %w", ratingKey, err)
	}
	return p.wrap(section, *raw), nil
}

func (p *Provider) wrap(section Section, raw plex.Metadata) *Media {
	kind := mapping.Kind(raw.Type)
	switch raw.Type {
	case plex.TypeMovie, plex.TypeShow, plex.TypeSeason, plex.TypeEpisode:
	default:
		kind = section.Kind
	}
	return &Media{provider: p, section: section, item: raw, kind: kind}
}
