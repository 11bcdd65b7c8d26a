package library

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"anibridge-plex/internal/logging"
	"anibridge-plex/internal/mapping"
	"anibridge-plex/internal/services/plex"
)

// HistoryEntry is one view of an item or one of its episodes.
type HistoryEntry struct {
	LibraryKey string    `json:"library_key"`
	ViewedAt   time.Time `json:"viewed_at"`
}

// Media is a movie, show, season, or episode from a library section.
type Media struct {
	provider *Provider
	section  Section
	item     plex.Metadata
	kind     mapping.Kind

	mu     sync.Mutex
	show   *Media
	season *Media
}

// Key returns the Plex rating key.
func (m *Media) Key() string { return m.item.RatingKey.String() }

// Title returns the display title.
func (m *Media) Title() string { return m.item.Title }

// Kind returns movie, show, season, or episode.
func (m *Media) Kind() mapping.Kind { return m.kind }

// Section returns the section the item was listed from.
func (m *Media) Section() Section { return m.section }

// Raw exposes the decoded PMS metadata.
func (m *Media) Raw() plex.Metadata { return m.item }

// Index is the season or episode number, 0 for movies and shows.
func (m *Media) Index() int { return m.item.Index }

// SeasonIndex is the season number of an episode.
func (m *Media) SeasonIndex() int {
	if m.kind != mapping.KindEpisode {
		return 0
	}
	return m.item.ParentIndex
}

// ViewCount returns how many times the user has watched the item.
func (m *Media) ViewCount() int { return m.item.ViewCount }

// UserRating returns the user's rating on a 0-100 scale, nil when unrated.
func (m *Media) UserRating() *int {
	if m.item.UserRating == nil {
		return nil
	}
	rating := int(math.Round(*m.item.UserRating * 10))
	return &rating
}

// OnWatching reports whether the item is in the continue-watching hub.
func (m *Media) OnWatching(ctx context.Context) bool {
	ok, err := m.provider.continueWatching(ctx, m.section.Key, m.Key())
	return err == nil && ok
}

// OnWatchlist reports whether the item is on the user's watchlist. Only the
// account owner's watchlist is reachable, so it is false for other users.
func (m *Media) OnWatchlist(ctx context.Context) bool {
	ok, err := m.provider.watchlisted(ctx, m.item.GUID)
	return err == nil && ok
}

// IDs returns external identifiers keyed by namespace (imdb, tmdb_movie,
// tmdb_show, tvdb_movie, tvdb_show, plex).
func (m *Media) IDs() map[string]string {
	return externalIDs(m.kind, m.item)
}

// PosterURL returns an absolute, token-bearing URL of the poster, empty when
// the item has no artwork.
func (m *Media) PosterURL() string {
	if m.item.Thumb == "" {
		return ""
	}
	sess, err := m.provider.session()
	if err != nil {
		return ""
	}
	return sess.user.URL(m.item.Thumb)
}

// Review returns the owner's community review of the item.
func (m *Media) Review(ctx context.Context) (string, bool) {
	p := m.provider
	sess, err := p.session()
	if err != nil || !sess.isAdmin || p.reviews == nil {
		return "", false
	}
	if m.item.UserRating == nil && m.item.LastRatedAt == 0 {
		return "", false
	}
	if m.item.GUID == "" {
		return "", false
	}
	text, ok, err := p.reviews.Review(ctx, lastSegment(m.item.GUID))
	if err != nil {
		p.logger.Debug("plex review unavailable",
			logging.RatingKey(m.Key()),
			logging.Error(err),
		)
		return "", false
	}
	return text, ok
}

// History returns the item's views. Views derived from the lastViewedAt of
// the item (or its episodes) that the server history lacks come first.
func (m *Media) History(ctx context.Context) []HistoryEntry {
	p := m.provider
	sess, err := p.session()
	if err != nil {
		return nil
	}

	accountID := sess.userID
	if sess.isAdmin {
		accountID = 1
	}
	sectionID := m.item.LibrarySectionID.String()
	if sectionID == "" {
		sectionID = m.section.Key
	}

	var base []HistoryEntry
	records, err := sess.admin.History(ctx, plex.HistoryOptions{
		RatingKey: m.Key(),
		AccountID: accountID,
		SectionID: sectionID,
	})
	if err != nil {
		logging.WarnWithContext(p.logger, "watch history unavailable", "plex_history_failed",
			logging.RatingKey(m.Key()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "history limited to last viewed dates"),
		)
	}
	seen := make(map[string]struct{}, len(records))
	for _, record := range records {
		key := record.RatingKey.String()
		seen[key] = struct{}{}
		base = append(base, HistoryEntry{LibraryKey: key, ViewedAt: record.Viewed()})
	}

	children := []plex.Metadata{m.item}
	if m.kind == mapping.KindShow || m.kind == mapping.KindSeason {
		children, err = m.leaves(ctx)
		if err != nil {
			logging.WarnWithContext(p.logger, "episode list unavailable", "plex_children_failed",
				logging.RatingKey(m.Key()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "history limited to server records"),
			)
			children = nil
		}
	}
	if len(children) == 0 {
		return base
	}

	var derived []HistoryEntry
	for _, child := range children {
		viewed := child.LastViewed()
		if viewed.IsZero() {
			continue
		}
		key := child.RatingKey.String()
		if _, ok := seen[key]; ok {
			continue
		}
		derived = append(derived, HistoryEntry{LibraryKey: key, ViewedAt: viewed})
	}
	return append(derived, base...)
}

// leaves returns every episode of a show or season.
func (m *Media) leaves(ctx context.Context) ([]plex.Metadata, error) {
	sess, err := m.provider.session()
	if err != nil {
		return nil, err
	}
	if m.kind == mapping.KindSeason {
		return sess.user.Children(ctx, m.Key())
	}
	return sess.user.AllLeaves(ctx, m.Key())
}

// Ordering returns the episode ordering of the item's show: the show's own
// setting, else the section default.
func (m *Media) Ordering(ctx context.Context) mapping.Ordering {
	switch m.kind {
	case mapping.KindMovie:
		return mapping.OrderingNone
	case mapping.KindSeason, mapping.KindEpisode:
		show, err := m.Show(ctx)
		if err != nil {
			return mapping.OrderingNone
		}
		return show.Ordering(ctx)
	}
	if m.item.ShowOrdering != "" {
		return mapping.OrderingFromShowSetting(m.item.ShowOrdering)
	}
	sectionKey := m.item.LibrarySectionID.String()
	if sectionKey == "" {
		sectionKey = m.section.Key
	}
	return m.provider.sectionOrdering(ctx, sectionKey)
}

// MatchCandidates returns the identifiers to try against a mapping index.
// Seasons and episodes are matched through their show's identifiers.
func (m *Media) MatchCandidates(ctx context.Context) []mapping.Candidate {
	strict := m.provider.Strict()
	switch m.kind {
	case mapping.KindMovie:
		return mapping.Candidates(mapping.KindMovie, mapping.OrderingNone, m.IDs(), strict)
	case mapping.KindSeason, mapping.KindEpisode:
		show, err := m.Show(ctx)
		if err != nil {
			return nil
		}
		return mapping.Candidates(m.kind, show.Ordering(ctx), show.IDs(), strict)
	default:
		return mapping.Candidates(mapping.KindShow, m.Ordering(ctx), m.IDs(), strict)
	}
}

// Seasons lists the seasons of a show.
func (m *Media) Seasons(ctx context.Context) ([]*Media, error) {
	if m.kind != mapping.KindShow {
		return nil, fmt.Errorf("%s %s has no seasons", m.kind, m.Key())
	}
	sess, err := m.provider.session()
	if err != nil {
		return nil, err
	}
	raw, err := sess.user.Children(ctx, m.Key())
	if err != nil {
		return nil, fmt.Errorf("list seasons of %s: %w", m.Key(), err)
	}
	seasons := make([]*Media, 0, len(raw))
	for _, item := range raw {
		if item.Type != plex.TypeSeason {
			continue
		}
		season := m.provider.wrap(m.section, item)
		season.show = m
		seasons = append(seasons, season)
	}
	return seasons, nil
}

// Episodes lists the episodes of a show or season.
func (m *Media) Episodes(ctx context.Context) ([]*Media, error) {
	if m.kind != mapping.KindShow && m.kind != mapping.KindSeason {
		return nil, fmt.Errorf("%s %s has no episodes", m.kind, m.Key())
	}
	raw, err := m.leaves(ctx)
	if err != nil {
		return nil, fmt.Errorf("list episodes of %s: %w", m.Key(), err)
	}
	show := m
	if m.kind == mapping.KindSeason {
		m.mu.Lock()
		show = m.show
		m.mu.Unlock()
	}
	episodes := make([]*Media, 0, len(raw))
	for _, item := range raw {
		if item.Type != plex.TypeEpisode {
			continue
		}
		episode := m.provider.wrap(m.section, item)
		episode.show = show
		if m.kind == mapping.KindSeason {
			episode.season = m
		}
		episodes = append(episodes, episode)
	}
	return episodes, nil
}

// Show returns the parent show of a season or episode, or the item itself
// for a show.
func (m *Media) Show(ctx context.Context) (*Media, error) {
	switch m.kind {
	case mapping.KindShow:
		return m, nil
	case mapping.KindMovie:
		return nil, fmt.Errorf("movie %s has no show", m.Key())
	}

	m.mu.Lock()
	cached := m.show
	m.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	key := m.item.ParentRatingKey.String()
	if m.kind == mapping.KindEpisode {
		key = m.item.GrandparentRatingKey.String()
	}
	show, err := m.fetchRelative(ctx, key, plex.TypeShow)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.show = show
	m.mu.Unlock()
	return show, nil
}

// Season returns the parent season of an episode.
func (m *Media) Season(ctx context.Context) (*Media, error) {
	switch m.kind {
	case mapping.KindSeason:
		return m, nil
	case mapping.KindEpisode:
	default:
		return nil, fmt.Errorf("%s %s has no season", m.kind, m.Key())
	}

	m.mu.Lock()
	cached := m.season
	m.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	season, err := m.fetchRelative(ctx, m.item.ParentRatingKey.String(), plex.TypeSeason)
	if err != nil {
		return nil, err
	}
	if show, err := m.Show(ctx); err == nil {
		season.show = show
	}

	m.mu.Lock()
	m.season = season
	m.mu.Unlock()
	return season, nil
}

func (m *Media) fetchRelative(ctx context.Context, ratingKey, want string) (*Media, error) {
	if ratingKey == "" {
		return nil, fmt.Errorf("%s %s has no parent %s", m.kind, m.Key(), want)
	}
	sess, err := m.provider.session()
	if err != nil {
		return nil, err
	}
	raw, err := sess.user.Metadata(ctx, ratingKey)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", want, ratingKey, err)
	}
	if raw.Type != want {
		return nil, fmt.Errorf("item %s is a %s, not a %s", ratingKey, raw.Type, want)
	}
	return m.provider.wrap(m.section, *raw), nil
}
