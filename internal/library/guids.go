package library

import (
	"strings"

	"anibridge-plex/internal/mapping"
	"anibridge-plex/internal/services/plex"
)

// guidNamespaces maps GUID schemes of the current and legacy Plex agents.
var guidNamespaces = map[string]string{
	"imdb": "imdb",
	"tmdb": "tmdb",
	"tvdb": "tvdb",

	"com.plexapp.agents.imdb":       "imdb",
	"com.plexapp.agents.thetvdb":    "tvdb",
	"com.plexapp.agents.themoviedb": "tmdb",
	"com.plexapp.agents.tmdb":       "tmdb",
}

// externalIDs extracts namespaced identifiers from an item's GUIDs. The
// first value seen for a namespace wins.
func externalIDs(kind mapping.Kind, item plex.Metadata) map[string]string {
	ids := map[string]string{}
	for _, guid := range item.GUIDs {
		scheme, rest, ok := strings.Cut(guid.ID, "://")
		if !ok {
			continue
		}
		namespace, ok := guidNamespaces[scheme]
		if !ok {
			continue
		}
		switch namespace {
		case "tmdb":
			namespace = mapping.NamespaceTMDBShow
			if kind == mapping.KindMovie {
				namespace = mapping.NamespaceTMDBMovie
			}
		case "tvdb":
			namespace = mapping.NamespaceTVDBShow
			if kind == mapping.KindMovie {
				namespace = mapping.NamespaceTVDBMovie
			}
		}
		value, _, _ := strings.Cut(rest, "?")
		if _, exists := ids[namespace]; !exists {
			ids[namespace] = value
		}
	}
	if item.GUID != "" {
		if _, exists := ids[mapping.NamespacePlex]; !exists {
			ids[mapping.NamespacePlex] = lastSegment(item.GUID)
		}
	}
	return ids
}

func lastSegment(guid string) string {
	if i := strings.LastIndex(guid, "/"); i >= 0 {
		return guid[i+1:]
	}
	return guid
}
