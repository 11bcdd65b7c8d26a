package plex

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SearchOptions narrows a section search. Zero values leave a dimension
// unconstrained.
type SearchOptions struct {
	// Type is the section type ("movie" or "show"); it selects the filter
	// fields and the libtype of the results.
	Type string
	// MinLastModified keeps items viewed, rated, added, or updated at or after
	// this instant. For show sections any show, season, or episode activity counts.
	MinLastModified *time.Time
	// RequireWatched keeps items with at least one view or rating.
	RequireWatched bool
	// Genres keeps items tagged with any of these genres.
	Genres []string
}

var (
	activityFields = []string{"lastViewedAt", "lastRatedAt", "addedAt", "updatedAt"}
	watchedFields  = []string{"viewCount", "lastViewedAt", "lastRatedAt"}
	showPrefixes   = []string{"show.", "season.", "episode."}
	moviePrefixes  = []string{""}
)

func searchType(sectionType string) int {
	switch sectionType {
	case TypeMovie:
		return 1
	case TypeShow:
		return 2
	default:
		return 0
	}
}

// encodeFilters renders the advanced filter groups. Every group is OR-ed
// internally and the groups are AND-ed together:
//
//	push=1&push=1&a>>=t&or=1&b>>=t&pop=1&and=1&genre=x&pop=1
func (o SearchOptions) encodeFilters() string {
	prefixes := moviePrefixes
	if o.Type == TypeShow {
		prefixes = showPrefixes
	}

	var groups []string
	if o.MinLastModified != nil {
		ts := strconv.FormatInt(o.MinLastModified.Unix(), 10)
		var terms []string
		for _, prefix := range prefixes {
			for _, field := range activityFields {
				terms = append(terms, filterTerm(prefix+field, ">>", ts))
			}
		}
		groups = append(groups, joinGroup("or", terms))
	}
	if o.RequireWatched {
		var terms []string
		for _, prefix := range prefixes {
			for _, field := range watchedFields {
				// viewCount compares against zero; the timestamps against the epoch.
				terms = append(terms, filterTerm(prefix+field, ">>", "0"))
			}
		}
		groups = append(groups, joinGroup("or", terms))
	}
	if genres := compactGenres(o.Genres); len(genres) > 0 {
		groups = append(groups, filterTerm("genre", "", strings.Join(genres, ",")))
	}
	if len(groups) == 0 {
		return ""
	}
	return joinGroup("and", groups)
}

func filterTerm(field, operator, value string) string {
	return url.QueryEscape(field+operator) + "=" + url.QueryEscape(value)
}

func joinGroup(op string, terms []string) string {
	return "push=1&" + strings.Join(terms, "&"+op+"=1&") + "&pop=1"
}

func compactGenres(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}
