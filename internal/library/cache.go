package library

import (
	"context"
	"time"

	"anibridge-plex/internal/logging"
	"anibridge-plex/internal/mapping"
	"anibridge-plex/internal/services/plex"
)

type keySet struct {
	keys    map[string]struct{}
	expires time.Time
}

func (s keySet) has(key string) bool {
	_, ok := s.keys[key]
	return ok
}

func newKeySet(keys []string, expires time.Time) keySet {
	set := keySet{keys: make(map[string]struct{}, len(keys)), expires: expires}
	for _, key := range keys {
		if key != "" {
			set.keys[key] = struct{}{}
		}
	}
	return set
}

// continueWatching reports whether ratingKey is in the section's
// continue-watching hub. A failed fetch caches an empty set.
func (p *Provider) continueWatching(ctx context.Context, sectionKey, ratingKey string) (bool, error) {
	sess, err := p.session()
	if err != nil {
		return false, err
	}
	now := p.now()

	p.cacheMu.Lock()
	entry, ok := p.continueCache[sectionKey]
	p.cacheMu.Unlock()
	if ok && now.Before(entry.expires) {
		return entry.has(ratingKey), nil
	}

	var keys []string
	items, err := sess.user.ContinueWatching(ctx, sectionKey)
	if err != nil {
		logging.WarnWithContext(p.logger, "continue watching unavailable", "plex_continue_watching_failed",
			logging.String(logging.FieldSection, sectionKey),
			logging.Error(err),
			logging.String(logging.FieldImpact, "items reported as not in progress"),
		)
	}
	for _, item := range items {
		keys = append(keys, item.RatingKey.String())
	}
	entry = newKeySet(keys, p.now().Add(cacheTTL))

	p.cacheMu.Lock()
	p.continueCache[sectionKey] = entry
	p.cacheMu.Unlock()
	return entry.has(ratingKey), nil
}

// watchlisted reports whether guid is on the admin's watchlist. Watchlist
// entries can live outside this server, so membership is keyed by GUID.
func (p *Provider) watchlisted(ctx context.Context, guid string) (bool, error) {
	sess, err := p.session()
	if err != nil {
		return false, err
	}
	if !sess.isAdmin {
		return false, nil
	}
	now := p.now()

	p.cacheMu.Lock()
	entry := p.watchlistCache
	p.cacheMu.Unlock()
	if entry == nil || !now.Before(entry.expires) {
		guids, err := p.accounts.Watchlist(ctx)
		if err != nil {
			logging.WarnWithContext(p.logger, "watchlist unavailable", "plex_watchlist_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "items reported as not watchlisted"),
			)
			guids = nil
		}
		fresh := newKeySet(guids, p.now().Add(cacheTTL))
		entry = &fresh

		p.cacheMu.Lock()
		p.watchlistCache = entry
		p.cacheMu.Unlock()
	}
	return guid != "" && entry.has(guid), nil
}

// sectionOrdering returns the section's showOrdering preference, cached per section.
func (p *Provider) sectionOrdering(ctx context.Context, sectionKey string) mapping.Ordering {
	p.cacheMu.Lock()
	cached, ok := p.orderingCache[sectionKey]
	p.cacheMu.Unlock()
	if ok {
		return cached
	}

	sess, err := p.session()
	if err != nil {
		return mapping.OrderingNone
	}
	prefs, err := sess.admin.SectionPreferences(ctx, sectionKey)
	if err != nil {
		logging.WarnWithContext(p.logger, "section ordering unavailable", "plex_section_prefs_failed",
			logging.String(logging.FieldSection, sectionKey),
			logging.Error(err),
			logging.String(logging.FieldImpact, "shows without their own ordering use none"),
		)
		return mapping.OrderingNone
	}
	ordering := mapping.OrderingNone
	if setting, ok := plex.FindSetting(prefs, "showOrdering"); ok {
		ordering = mapping.OrderingFromShowSetting(setting.String())
	}

	p.cacheMu.Lock()
	p.orderingCache[sectionKey] = ordering
	p.cacheMu.Unlock()
	return ordering
}
