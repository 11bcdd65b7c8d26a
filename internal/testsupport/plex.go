package testsupport

import (
	"encoding/json"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"anibridge-plex/internal/services/plex"
)

// FakeAccount is the plex.tv account that owns the admin token.
type FakeAccount struct {
	ID       int64
	Username string
	Email    string
	Title    string
}

// FakeUser is a shared or home user with its own server token.
type FakeUser struct {
	ID       int64
	Username string
	Email    string
	Title    string
	Token    string
}

// Request is one request observed by the fake server.
type Request struct {
	Method string
	Path   string
	Query  string
	Token  string
}

// FakePlex serves the Plex Media Server, plex.tv, discover, and community
// endpoints the provider uses from a single httptest server. Populate the
// exported fields before the first request; only the request log is guarded.
type FakePlex struct {
	MachineID string
	Version   string
	Account   FakeAccount
	Users     []FakeUser

	Sections         []plex.Section
	Items            map[string][]plex.Metadata
	Metadata         map[string]plex.Metadata
	Children         map[string][]plex.Metadata
	Leaves           map[string][]plex.Metadata
	ContinueWatching map[string][]string
	History          []plex.HistoryEntry
	ServerPrefs      []plex.Setting
	SectionPrefs     map[string][]plex.Setting
	Watchlist        []string
	Reviews          map[string]string

	// Fail maps a request path to a status code returned instead of data.
	Fail map[string]int

	server   *httptest.Server
	mu       sync.Mutex
	requests []Request
}

// NewFakePlex starts a fake server owned by account "admin" (id 1000) and
// closes it when the test ends.
func NewFakePlex(t testing.TB) *FakePlex {
	t.Helper()

	fake := &FakePlex{
		MachineID:        "machine-1",
		Version:          "1.40.0",
		Account:          FakeAccount{ID: 1000, Username: "admin", Email: "admin@example.com", Title: "Admin"},
		Items:            map[string][]plex.Metadata{},
		Metadata:         map[string]plex.Metadata{},
		Children:         map[string][]plex.Metadata{},
		Leaves:           map[string][]plex.Metadata{},
		ContinueWatching: map[string][]string{},
		SectionPrefs:     map[string][]plex.Setting{},
		Reviews:          map[string]string{},
		Fail:             map[string]int{},
	}
	fake.server = httptest.NewServer(http.HandlerFunc(fake.serve))
	t.Cleanup(fake.server.Close)
	return fake
}

// URL returns the base URL of the fake server.
func (f *FakePlex) URL() string { return f.server.URL }

// Requests returns the requests whose path starts with prefix.
func (f *FakePlex) Requests(prefix string) []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Request
	for _, req := range f.requests {
		if strings.HasPrefix(req.Path, prefix) {
			out = append(out, req)
		}
	}
	return out
}

// Hits counts the requests whose path starts with prefix.
func (f *FakePlex) Hits(prefix string) int {
	return len(f.Requests(prefix))
}

// AddMovie registers a movie in section and makes it fetchable by key.
func (f *FakePlex) AddMovie(section string, item plex.Metadata) {
	item.Type = plex.TypeMovie
	item.LibrarySectionID = plex.FlexString(section)
	f.Items[section] = append(f.Items[section], item)
	f.Metadata[item.RatingKey.String()] = item
}

// AddShow registers a show with its seasons and episodes.
func (f *FakePlex) AddShow(section string, show plex.Metadata, seasons []plex.Metadata, episodes map[string][]plex.Metadata) {
	show.Type = plex.TypeShow
	show.LibrarySectionID = plex.FlexString(section)
	f.Items[section] = append(f.Items[section], show)
	f.Metadata[show.RatingKey.String()] = show

	var leaves []plex.Metadata
	for _, season := range seasons {
		season.Type = plex.TypeSeason
		season.LibrarySectionID = plex.FlexString(section)
		season.ParentRatingKey = show.RatingKey
		f.Metadata[season.RatingKey.String()] = season
		f.Children[show.RatingKey.String()] = append(f.Children[show.RatingKey.String()], season)

		var seasonEpisodes []plex.Metadata
		for _, episode := range episodes[season.RatingKey.String()] {
			episode.Type = plex.TypeEpisode
			episode.LibrarySectionID = plex.FlexString(section)
			episode.ParentRatingKey = season.RatingKey
			episode.GrandparentRatingKey = show.RatingKey
			episode.ParentIndex = season.Index
			f.Metadata[episode.RatingKey.String()] = episode
			seasonEpisodes = append(seasonEpisodes, episode)
		}
		f.Children[season.RatingKey.String()] = seasonEpisodes
		f.Leaves[season.RatingKey.String()] = seasonEpisodes
		leaves = append(leaves, seasonEpisodes...)
	}
	f.Leaves[show.RatingKey.String()] = leaves
}

// StringSetting builds a preference with a string value.
func StringSetting(id, value string) plex.Setting {
	raw, _ := json.Marshal(value)
	return plex.Setting{ID: id, Type: "text", Value: raw}
}

// NumberSetting builds a preference with a numeric value.
func NumberSetting(id string, value float64) plex.Setting {
	return plex.Setting{ID: id, Type: "int", Value: json.RawMessage(strconv.FormatFloat(value, 'f', -1, 64))}
}

func (f *FakePlex) serve(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Plex-Token")
	if token == "" {
		token = r.URL.Query().Get("X-Plex-Token")
	}

	f.mu.Lock()
	f.requests = append(f.requests, Request{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Token: token})
	status, failing := f.Fail[r.URL.Path]
	f.mu.Unlock()

	if failing {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if !f.knownToken(token) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	path := r.URL.Path
	switch {
	case path == "/identity":
		f.writeContainer(w, map[string]any{"machineIdentifier": f.MachineID, "version": f.Version})
	case path == "/library/sections":
		f.writeContainer(w, map[string]any{"size": len(f.Sections), "Directory": f.Sections})
	case path == "/library/sections/watchlist/all":
		f.serveWatchlist(w, r)
	case strings.HasPrefix(path, "/library/sections/") && strings.HasSuffix(path, "/all"):
		key := strings.TrimSuffix(strings.TrimPrefix(path, "/library/sections/"), "/all")
		f.writeMetadata(w, f.Items[key])
	case strings.HasPrefix(path, "/library/sections/") && strings.HasSuffix(path, "/prefs"):
		key := strings.TrimSuffix(strings.TrimPrefix(path, "/library/sections/"), "/prefs")
		f.writeContainer(w, map[string]any{"Setting": f.SectionPrefs[key]})
	case strings.HasPrefix(path, "/library/metadata/"):
		f.serveMetadata(w, strings.TrimPrefix(path, "/library/metadata/"))
	case strings.HasPrefix(path, "/hubs/sections/") && strings.HasSuffix(path, "/continueWatching/items"):
		key := strings.TrimSuffix(strings.TrimPrefix(path, "/hubs/sections/"), "/continueWatching/items")
		var items []plex.Metadata
		for _, ratingKey := range f.ContinueWatching[key] {
			items = append(items, plex.Metadata{RatingKey: plex.FlexString(ratingKey)})
		}
		f.writeMetadata(w, items)
	case path == "/status/sessions/history/all":
		f.serveHistory(w, r)
	case path == "/:/prefs":
		f.writeContainer(w, map[string]any{"Setting": f.ServerPrefs})
	case path == "/api/v2/user":
		writeJSON(w, map[string]any{
			"id":       f.Account.ID,
			"uuid":     "account-uuid",
			"username": f.Account.Username,
			"email":    f.Account.Email,
			"title":    f.Account.Title,
		})
	case path == "/api/users":
		f.serveUsers(w)
	case strings.HasPrefix(path, "/api/servers/") && strings.HasSuffix(path, "/shared_servers"):
		f.serveSharedServers(w)
	case path == "/api" && r.Method == http.MethodPost:
		f.serveCommunity(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *FakePlex) knownToken(token string) bool {
	if token == "admin-token" {
		return true
	}
	for _, user := range f.Users {
		if user.Token != "" && user.Token == token {
			return true
		}
	}
	return false
}

func (f *FakePlex) serveMetadata(w http.ResponseWriter, rest string) {
	key, suffix, _ := strings.Cut(rest, "/")
	switch suffix {
	case "":
		item, ok := f.Metadata[key]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		f.writeMetadata(w, []plex.Metadata{item})
	case "children":
		f.writeMetadata(w, f.Children[key])
	case "allLeaves":
		f.writeMetadata(w, f.Leaves[key])
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (f *FakePlex) serveHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var out []plex.HistoryEntry
	for _, entry := range f.History {
		if key := query.Get("metadataItemID"); key != "" && entry.RatingKey.String() != key {
			if !f.isDescendant(entry.RatingKey.String(), key) {
				continue
			}
		}
		if account := query.Get("accountID"); account != "" && strconv.FormatInt(entry.AccountID, 10) != account {
			continue
		}
		out = append(out, entry)
	}
	f.writeContainer(w, map[string]any{"size": len(out), "Metadata": out})
}

func (f *FakePlex) isDescendant(child, ancestor string) bool {
	item, ok := f.Metadata[child]
	if !ok {
		return false
	}
	return item.ParentRatingKey.String() == ancestor || item.GrandparentRatingKey.String() == ancestor
}

func (f *FakePlex) serveWatchlist(w http.ResponseWriter, r *http.Request) {
	start, _ := strconv.Atoi(r.URL.Query().Get("X-Plex-Container-Start"))
	size, _ := strconv.Atoi(r.URL.Query().Get("X-Plex-Container-Size"))
	if size <= 0 {
		size = len(f.Watchlist)
	}
	end := min(start+size, len(f.Watchlist))
	var page []map[string]string
	if start < end {
		for _, guid := range f.Watchlist[start:end] {
			page = append(page, map[string]string{"guid": guid})
		}
	}
	f.writeContainer(w, map[string]any{"totalSize": len(f.Watchlist), "Metadata": page})
}

type xmlUser struct {
	ID       int64  `xml:"id,attr"`
	Title    string `xml:"title,attr"`
	Username string `xml:"username,attr"`
	Email    string `xml:"email,attr"`
}

func (f *FakePlex) serveUsers(w http.ResponseWriter) {
	var doc struct {
		XMLName xml.Name  `xml:"MediaContainer"`
		Users   []xmlUser `xml:"User"`
	}
	for _, user := range f.Users {
		doc.Users = append(doc.Users, xmlUser{ID: user.ID, Title: user.Title, Username: user.Username, Email: user.Email})
	}
	writeXML(w, doc)
}

func (f *FakePlex) serveSharedServers(w http.ResponseWriter) {
	type shared struct {
		UserID      int64  `xml:"userID,attr"`
		Username    string `xml:"username,attr"`
		AccessToken string `xml:"accessToken,attr"`
	}
	var doc struct {
		XMLName xml.Name `xml:"MediaContainer"`
		Shared  []shared `xml:"SharedServer"`
	}
	for _, user := range f.Users {
		doc.Shared = append(doc.Shared, shared{UserID: user.ID, Username: user.Username, AccessToken: user.Token})
	}
	writeXML(w, doc)
}

func (f *FakePlex) serveCommunity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Variables struct {
			Metadata struct {
				ID string `json:"id"`
			} `json:"metadata"`
		} `json:"variables"`
		OperationName string `json:"operationName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.OperationName != "GetMetadataReview" {
		writeJSON(w, map[string]any{"data": map[string]any{"activityFeed": map[string]any{"nodes": []any{}}}})
		return
	}
	message, ok := f.Reviews[req.Variables.Metadata.ID]
	if !ok {
		writeJSON(w, map[string]any{"data": map[string]any{"metadataReviewV2": nil}})
		return
	}
	writeJSON(w, map[string]any{"data": map[string]any{"metadataReviewV2": map[string]any{"message": message}}})
}

func (f *FakePlex) writeMetadata(w http.ResponseWriter, items []plex.Metadata) {
	f.writeContainer(w, map[string]any{"size": len(items), "Metadata": items})
}

func (f *FakePlex) writeContainer(w http.ResponseWriter, body map[string]any) {
	writeJSON(w, map[string]any{"MediaContainer": body})
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func writeXML(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(body)
}
