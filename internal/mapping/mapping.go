package mapping

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Ordering is the episode numbering scheme of a show.
type Ordering string

const (
	OrderingTMDB Ordering = "tmdb"
	OrderingTVDB Ordering = "tvdb"
	OrderingNone Ordering = ""
)

// OrderingFromShowSetting maps Plex's showOrdering values onto a scheme.
func OrderingFromShowSetting(value string) Ordering {
	switch strings.TrimSpace(value) {
	case "tmdbAiring":
		return OrderingTMDB
	case "aired", "tvdbAiring":
		return OrderingTVDB
	default:
		return OrderingNone
	}
}

// Kind is the kind of library item being matched.
type Kind string

const (
	KindMovie   Kind = "movie"
	KindShow    Kind = "show"
	KindSeason  Kind = "season"
	KindEpisode Kind = "episode"
)

// Identifier namespaces produced from Plex GUIDs.
const (
	NamespaceIMDB      = "imdb"
	NamespaceTMDBMovie = "tmdb_movie"
	NamespaceTMDBShow  = "tmdb_show"
	NamespaceTVDBMovie = "tvdb_movie"
	NamespaceTVDBShow  = "tvdb_show"
	NamespacePlex      = "plex"
)

// Candidate is one identifier to try against a mapping index. Fallback marks
// identifiers from a numbering scheme other than the show's own.
type Candidate struct {
	Namespace string `json:"namespace"`
	ID        string `json:"id"`
	Fallback  bool   `json:"fallback,omitempty"`
}

// Candidates returns the identifiers to try, most specific first. Movies have
// no episode ordering so strict does not affect them.
func Candidates(kind Kind, ordering Ordering, ids map[string]string, strict bool) []Candidate {
	var out []Candidate
	add := func(namespace string, fallback bool) {
		if id := strings.TrimSpace(ids[namespace]); id != "" {
			out = append(out, Candidate{Namespace: namespace, ID: id, Fallback: fallback})
		}
	}

	if kind == KindMovie {
		add(NamespaceTMDBMovie, false)
		add(NamespaceIMDB, false)
		add(NamespaceTVDBMovie, false)
		return out
	}

	switch ordering {
	case OrderingTMDB:
		add(NamespaceTMDBShow, false)
		if !strict {
			add(NamespaceTVDBShow, true)
		}
	case OrderingTVDB:
		add(NamespaceTVDBShow, false)
		if !strict {
			add(NamespaceTMDBShow, true)
		}
	default:
		// Unknown ordering: neither scheme is authoritative.
		if !strict {
			add(NamespaceTVDBShow, true)
			add(NamespaceTMDBShow, true)
		}
	}
	add(NamespaceIMDB, false)
	return out
}

// Index looks up the targets mapped to an external identifier.
type Index interface {
	Lookup(namespace, id string) ([]string, bool)
}

// MapIndex is an in-memory Index keyed by namespace and id.
type MapIndex map[string][]string

// Add records targets for namespace/id.
func (m MapIndex) Add(namespace, id string, targets ...string) {
	key := namespace + ":" + id
	m[key] = append(m[key], targets...)
}

// Lookup implements Index.
func (m MapIndex) Lookup(namespace, id string) ([]string, bool) {
	targets, ok := m[namespace+":"+id]
	return targets, ok && len(targets) > 0
}

// Match is the first candidate an index knows.
type Match struct {
	Candidate Candidate `json:"candidate"`
	Targets   []string  `json:"targets"`
}

// Resolve returns the first candidate known to index. Candidates built with
// strict=true contain no fallbacks, so a strict resolution never crosses schemes.
func Resolve(index Index, candidates []Candidate) (Match, bool) {
	if index == nil {
		return Match{}, false
	}
	for _, candidate := range candidates {
		if targets, ok := index.Lookup(candidate.Namespace, candidate.ID); ok {
			return Match{Candidate: candidate, Targets: targets}, true
		}
	}
	return Match{}, false
}

// LoadIndex reads a JSON object of "namespace:id" keys to target lists, e.g.
//
//	{"tvdb_show:424536": ["anilist:154587"]}
func LoadIndex(r io.Reader) (MapIndex, error) {
	var raw map[string][]string
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode mapping index: %w", err)
	}
	index := MapIndex{}
	for key, targets := range raw {
		namespace, id, ok := strings.Cut(key, ":")
		if !ok || namespace == "" || id == "" {
			return nil, fmt.Errorf("mapping index key %q: want namespace:id", key)
		}
		index.Add(namespace, id, targets...)
	}
	return index, nil
}
