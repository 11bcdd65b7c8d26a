package library_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"anibridge-plex/internal/library"
	"anibridge-plex/internal/services/plex"
	"anibridge-plex/internal/testsupport"
)

func movieSection(t *testing.T, provider *library.Provider) library.Section {
	t.Helper()
	section, ok := provider.Section("Movies")
	if !ok {
		t.Fatal("movie section missing")
	}
	return section
}

func TestListItemsFiltersKeysAndTypes(t *testing.T) {
	fake := newFake(t)
	fake.AddMovie("1", plex.Metadata{RatingKey: "10", Title: "Akira"})
	fake.AddMovie("1", plex.Metadata{RatingKey: "11", Title: "Paprika"})
	fake.Items["1"] = append(fake.Items["1"], plex.Metadata{RatingKey: "12", Type: "collection", Title: "Ghibli"})
	provider := initialized(t, fake)
	section := movieSection(t, provider)

	all, err := provider.ListItems(context.Background(), section, library.ListOptions{})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected two movies, got %d", len(all))
	}

	keyed, err := provider.ListItems(context.Background(), section, library.ListOptions{Keys: []string{"11"}})
	if err != nil {
		t.Fatalf("ListItems keys: %v", err)
	}
	if len(keyed) != 1 || keyed[0].Key() != "11" || keyed[0].Title() != "Paprika" {
		t.Fatalf("unexpected keyed items %+v", keyed)
	}
	if keyed[0].Section().Key != "1" {
		t.Fatalf("unexpected section %+v", keyed[0].Section())
	}
}

func TestListItemsSendsFilters(t *testing.T) {
	fake := newFake(t)
	provider := initialized(t, fake, testsupport.WithGenres("Anime", ""))
	section, _ := provider.Section("Anime")

	since := time.Unix(1700000000, 0)
	if _, err := provider.ListItems(context.Background(), section, library.ListOptions{
		MinLastModified: &since,
		RequireWatched:  true,
	}); err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	reqs := fake.Requests("/library/sections/2/all")
	if len(reqs) != 1 {
		t.Fatalf("expected one search, got %d", len(reqs))
	}
	query := reqs[0].Query
	for _, want := range []string{"type=2", "includeGuids=1", "genre=Anime", "episode.lastViewedAt%3E%3E=1700000000", "show.viewCount%3E%3E=0"} {
		if !strings.Contains(query, want) {
			t.Fatalf("query %q missing %q", query, want)
		}
	}
}

func TestListItemsWithoutFiltersSendsNoGroups(t *testing.T) {
	fake := newFake(t)
	provider := initialized(t, fake)

	if _, err := provider.ListItems(context.Background(), movieSection(t, provider), library.ListOptions{}); err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	query := fake.Requests("/library/sections/1/all")[0].Query
	if strings.Contains(query, "push=") || strings.Contains(query, "genre") {
		t.Fatalf("expected no filter groups, got %q", query)
	}
}

func TestListItemsPropagatesSearchErrors(t *testing.T) {
	fake := newFake(t)
	provider := initialized(t, fake)
	fake.Fail["/library/sections/1/all"] = 500

	if _, err := provider.ListItems(context.Background(), movieSection(t, provider), library.ListOptions{}); err == nil {
		t.Fatal("expected search error")
	}
}
