package plex

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Library section and item types as reported by PMS.
const (
	TypeMovie   = "movie"
	TypeShow    = "show"
	TypeSeason  = "season"
	TypeEpisode = "episode"
)

// FlexString decodes a JSON string or number into a string. PMS is not
// consistent about quoting ids across endpoints.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(string(data))
	return nil
}

func (f FlexString) String() string { return string(f) }

// Identity describes the server answering /identity.
type Identity struct {
	MachineIdentifier string
	Version           string
}

// Section is a library section (Directory entry of /library/sections).
type Section struct {
	Key   FlexString `json:"key"`
	Title string     `json:"title"`
	Type  string     `json:"type"`
	Agent string     `json:"agent"`
	UUID  string     `json:"uuid"`
}

// GUID is an external identifier attached to an item, e.g. "tmdb://1234".
type GUID struct {
	ID string `json:"id"`
}

// Tag is a named tag such as a genre.
type Tag struct {
	Tag string `json:"tag"`
}

// Metadata is a movie, show, season, or episode.
type Metadata struct {
	RatingKey            FlexString `json:"ratingKey"`
	Key                  string     `json:"key"`
	GUID                 string     `json:"guid"`
	Type                 string     `json:"type"`
	Title                string     `json:"title"`
	LibrarySectionID     FlexString `json:"librarySectionID"`
	LibrarySectionTitle  string     `json:"librarySectionTitle"`
	UserRating           *float64   `json:"userRating"`
	LastRatedAt          int64      `json:"lastRatedAt"`
	LastViewedAt         int64      `json:"lastViewedAt"`
	AddedAt              int64      `json:"addedAt"`
	UpdatedAt            int64      `json:"updatedAt"`
	ViewCount            int        `json:"viewCount"`
	Thumb                string     `json:"thumb"`
	Index                int        `json:"index"`
	ParentIndex          int        `json:"parentIndex"`
	ParentRatingKey      FlexString `json:"parentRatingKey"`
	GrandparentRatingKey FlexString `json:"grandparentRatingKey"`
	ShowOrdering         string     `json:"showOrdering"`
	GUIDs                []GUID     `json:"Guid"`
	Genres               []Tag      `json:"Genre"`
}

// LastViewed returns lastViewedAt as a time, zero when never viewed.
func (m Metadata) LastViewed() time.Time {
	return unixTime(m.LastViewedAt)
}

// LastRated returns lastRatedAt as a time, zero when never rated.
func (m Metadata) LastRated() time.Time {
	return unixTime(m.LastRatedAt)
}

// HistoryEntry is a single play recorded by the server.
type HistoryEntry struct {
	RatingKey        FlexString `json:"ratingKey"`
	Title            string     `json:"title"`
	Type             string     `json:"type"`
	ViewedAt         int64      `json:"viewedAt"`
	AccountID        int64      `json:"accountID"`
	LibrarySectionID FlexString `json:"librarySectionID"`
}

// Viewed returns viewedAt as a time.
func (h HistoryEntry) Viewed() time.Time {
	return unixTime(h.ViewedAt)
}

// Setting is a server or section preference.
type Setting struct {
	ID    string          `json:"id"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// String renders the value without JSON quoting.
func (s Setting) String() string {
	raw := bytes.TrimSpace(s.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			return text
		}
	}
	return string(raw)
}

// Float parses the value as a number.
func (s Setting) Float() (float64, bool) {
	value, err := strconv.ParseFloat(strings.TrimSpace(s.String()), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// FindSetting returns the setting with the given id.
func FindSetting(settings []Setting, id string) (Setting, bool) {
	for _, setting := range settings {
		if setting.ID == id {
			return setting, true
		}
	}
	return Setting{}, false
}

type mediaContainer struct {
	MediaContainer struct {
		Size              int        `json:"size"`
		TotalSize         int        `json:"totalSize"`
		MachineIdentifier string     `json:"machineIdentifier"`
		Version           string     `json:"version"`
		Directory         []Section  `json:"Directory"`
		Metadata          []Metadata `json:"Metadata"`
		Setting           []Setting  `json:"Setting"`
	} `json:"MediaContainer"`
}

type historyContainer struct {
	MediaContainer struct {
		Metadata []HistoryEntry `json:"Metadata"`
	} `json:"MediaContainer"`
}

func unixTime(seconds int64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}
