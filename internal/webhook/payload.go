// Package webhook decodes Plex Media Server webhook deliveries.
//
// Plex posts multipart/form-data with the JSON document in the "payload"
// field (and an optional thumbnail part); proxies and tests often send the
// JSON document as the body instead. FromRequest accepts both.
package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

var (
	// ErrInvalidPayload reports a request that does not carry a decodable payload.
	ErrInvalidPayload = errors.New("invalid plex webhook payload")
	// ErrMissingAccount reports a payload without an Account id.
	ErrMissingAccount = errors.New("no account id in plex webhook payload")
	// ErrMissingRatingKey reports a payload without any rating key.
	ErrMissingRatingKey = errors.New("no rating key in plex webhook payload")
)

const maxPayloadBytes = 10 << 20

// EventType is the "event" member of a webhook payload.
type EventType string

const (
	EventPlay              EventType = "media.play"
	EventPause             EventType = "media.pause"
	EventResume            EventType = "media.resume"
	EventStop              EventType = "media.stop"
	EventScrobble          EventType = "media.scrobble"
	EventRate              EventType = "media.rate"
	EventMediaAdded        EventType = "library.new"
	EventOnDeck            EventType = "library.on.deck"
	EventDatabaseBackup    EventType = "admin.database.backup"
	EventDatabaseCorrupted EventType = "admin.database.corrupted"
	EventNewDevice         EventType = "device.new"
	EventPlaybackStarted   EventType = "playback.started"
)

// Known reports whether the event is one Plex documents.
func (e EventType) Known() bool {
	switch e {
	case EventPlay, EventPause, EventResume, EventStop, EventScrobble, EventRate,
		EventMediaAdded, EventOnDeck, EventDatabaseBackup, EventDatabaseCorrupted,
		EventNewDevice, EventPlaybackStarted:
		return true
	default:
		return false
	}
}

// Account is the Plex account that triggered the event.
type Account struct {
	ID    int64  `json:"id"`
	Thumb string `json:"thumb,omitempty"`
	Title string `json:"title,omitempty"`
}

// Server identifies the server that sent the event.
type Server struct {
	Title string `json:"title,omitempty"`
	UUID  string `json:"uuid,omitempty"`
}

// Player identifies the client device, when the event has one.
type Player struct {
	Local         bool   `json:"local"`
	PublicAddress string `json:"publicAddress,omitempty"`
	Title         string `json:"title,omitempty"`
	UUID          string `json:"uuid,omitempty"`
}

// Metadata is the subset of the item description the provider needs.
type Metadata struct {
	LibrarySectionType   string `json:"librarySectionType,omitempty"`
	LibrarySectionTitle  string `json:"librarySectionTitle,omitempty"`
	LibrarySectionID     int64  `json:"librarySectionID,omitempty"`
	RatingKey            string `json:"ratingKey,omitempty"`
	ParentRatingKey      string `json:"parentRatingKey,omitempty"`
	GrandparentRatingKey string `json:"grandparentRatingKey,omitempty"`
	GUID                 string `json:"guid,omitempty"`
	Type                 string `json:"type,omitempty"`
	Title                string `json:"title,omitempty"`
}

// Payload is a decoded webhook delivery. Account, Server, Player, and
// Metadata are nil when the event does not carry them.
type Payload struct {
	Event    EventType `json:"event"`
	User     bool      `json:"user"`
	Owner    bool      `json:"owner"`
	Rating   *float64  `json:"rating,omitempty"`
	Account  *Account  `json:"Account,omitempty"`
	Server   *Server   `json:"Server,omitempty"`
	Player   *Player   `json:"Player,omitempty"`
	Metadata *Metadata `json:"Metadata,omitempty"`
}

// AccountID returns the triggering account id, 0 when absent.
func (p Payload) AccountID() int64 {
	if p.Account == nil {
		return 0
	}
	return p.Account.ID
}

// TopLevelRatingKey returns the show for episodes, the parent for seasons,
// and the item itself otherwise. It is empty when the event has no metadata.
func (p Payload) TopLevelRatingKey() string {
	if p.Metadata == nil {
		return ""
	}
	for _, key := range []string{p.Metadata.GrandparentRatingKey, p.Metadata.ParentRatingKey, p.Metadata.RatingKey} {
		if key != "" {
			return key
		}
	}
	return ""
}

// FromRequest decodes the payload of a webhook request.
func FromRequest(r *http.Request) (Payload, error) {
	if r == nil || r.Body == nil {
		return Payload{}, fmt.Errorf("%w: empty request", ErrInvalidPayload)
	}
	r.Body = http.MaxBytesReader(nil, r.Body, maxPayloadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.EqualFold(mediaType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxPayloadBytes); err != nil {
			return Payload{}, fmt.Errorf("%w: parse form: %v", ErrInvalidPayload, err)
		}
		raw := r.FormValue("payload")
		if strings.TrimSpace(raw) == "" {
			return Payload{}, fmt.Errorf("%w: missing payload field", ErrInvalidPayload)
		}
		return Decode([]byte(raw))
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: read body: %v", ErrInvalidPayload, err)
	}
	return Decode(body)
}

// Decode parses a JSON payload document.
func Decode(data []byte) (Payload, error) {
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return payload, nil
}
