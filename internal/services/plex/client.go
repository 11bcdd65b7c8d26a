package plex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"time"

	"anibridge-plex/internal/services"
)

// ErrUnauthorized and ErrNotFound alias the shared service sentinels so callers
// of this package do not need to import services.
var (
	ErrUnauthorized = services.ErrUnauthorized
	ErrNotFound     = services.ErrNotFound
)

const (
	defaultProduct = "anibridge-plex"
	defaultVersion = "0.1.0"
	serviceName    = "plex"
)

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client talks to a single Plex Media Server.
type Client struct {
	baseURL  string
	token    string
	clientID string
	product  string
	version  string
	http     HTTPDoer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client and its selective transport.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithClientIdentifier sets X-Plex-Client-Identifier.
func WithClientIdentifier(id string) Option {
	return func(c *Client) {
		if id = strings.TrimSpace(id); id != "" {
			c.clientID = id
		}
	}
}

// WithProduct sets X-Plex-Product and X-Plex-Version.
func WithProduct(name, version string) Option {
	return func(c *Client) {
		if name = strings.TrimSpace(name); name != "" {
			c.product = name
		}
		if version = strings.TrimSpace(version); version != "" {
			c.version = version
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client. It has no effect
// when WithHTTPClient supplies the client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if hc, ok := c.http.(*http.Client); ok && timeout > 0 {
			hc.Timeout = timeout
		}
	}
}

// New creates a PMS client for baseURL authenticated with token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("plex base url required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("plex base url: %w", err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("plex token required")
	}
	client := &Client{
		baseURL:  baseURL,
		token:    token,
		clientID: defaultProduct,
		product:  defaultProduct,
		version:  defaultVersion,
		http:     &http.Client{Timeout: 30 * time.Second, Transport: NewTransport(baseURL)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// BaseURL returns the server address without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// WithToken returns a copy of the client that authenticates as another user.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = strings.TrimSpace(token)
	return &clone
}

// URL returns an absolute, token-bearing URL for a server path such as a thumb.
func (c *Client) URL(path string) string {
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return c.baseURL + path + sep + "X-Plex-Token=" + url.QueryEscape(c.token)
}

// Identity returns the server's machine identifier and version.
func (c *Client) Identity(ctx context.Context) (Identity, error) {
	var container mediaContainer
	if err := c.get(ctx, "/identity", "", &container); err != nil {
		return Identity{}, err
	}
	return Identity{
		MachineIdentifier: container.MediaContainer.MachineIdentifier,
		Version:           container.MediaContainer.Version,
	}, nil
}

// Sections lists every library section visible to the token.
func (c *Client) Sections(ctx context.Context) ([]Section, error) {
	var container mediaContainer
	if err := c.get(ctx, "/library/sections", "", &container); err != nil {
		return nil, err
	}
	return container.MediaContainer.Directory, nil
}

// Search lists the top-level items of a section matching opts.
func (c *Client) Search(ctx context.Context, sectionKey string, opts SearchOptions) ([]Metadata, error) {
	if strings.TrimSpace(sectionKey) == "" {
		return nil, errors.New("section key required")
	}
	query := url.Values{}
	query.Set("includeGuids", "1")
	if libtype := searchType(opts.Type); libtype != 0 {
		query.Set("type", strconv.Itoa(libtype))
	}
	rawQuery := query.Encode()
	if filters := opts.encodeFilters(); filters != "" {
		rawQuery += "&" + filters
	}
	return c.metadataList(ctx, "/library/sections/"+url.PathEscape(sectionKey)+"/all", rawQuery)
}

// Metadata fetches a single item with its external GUIDs.
func (c *Client) Metadata(ctx context.Context, ratingKey string) (*Metadata, error) {
	items, err := c.metadataList(ctx, "/library/metadata/"+url.PathEscape(ratingKey), "includeGuids=1")
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("plex metadata %s: %w", ratingKey, ErrNotFound)
	}
	return &items[0], nil
}

// Children lists the direct children of an item (seasons of a show, episodes of a season).
func (c *Client) Children(ctx context.Context, ratingKey string) ([]Metadata, error) {
	return c.metadataList(ctx, "/library/metadata/"+url.PathEscape(ratingKey)+"/children", "includeGuids=1")
}

// AllLeaves lists every episode beneath a show or season.
func (c *Client) AllLeaves(ctx context.Context, ratingKey string) ([]Metadata, error) {
	return c.metadataList(ctx, "/library/metadata/"+url.PathEscape(ratingKey)+"/allLeaves", "includeGuids=1")
}

// ContinueWatching lists the items in a section's continue-watching hub.
func (c *Client) ContinueWatching(ctx context.Context, sectionKey string) ([]Metadata, error) {
	return c.metadataList(ctx, "/hubs/sections/"+url.PathEscape(sectionKey)+"/continueWatching/items", "")
}

// HistoryOptions filters /status/sessions/history/all.
type HistoryOptions struct {
	RatingKey string
	AccountID int64
	SectionID string
}

// History lists recorded plays, newest first.
func (c *Client) History(ctx context.Context, opts HistoryOptions) ([]HistoryEntry, error) {
	query := url.Values{}
	query.Set("sort", "viewedAt:desc")
	if opts.RatingKey != "" {
		query.Set("metadataItemID", opts.RatingKey)
	}
	if opts.AccountID != 0 {
		query.Set("accountID", strconv.FormatInt(opts.AccountID, 10))
	}
	if opts.SectionID != "" {
		query.Set("librarySectionID", opts.SectionID)
	}
	var container historyContainer
	if err := c.get(ctx, "/status/sessions/history/all", query.Encode(), &container); err != nil {
		return nil, err
	}
	return container.MediaContainer.Metadata, nil
}

// ServerPreferences returns the server-wide settings (/:/prefs).
func (c *Client) ServerPreferences(ctx context.Context) ([]Setting, error) {
	var container mediaContainer
	if err := c.get(ctx, "/:/prefs", "", &container); err != nil {
		return nil, err
	}
	return container.MediaContainer.Setting, nil
}

// SectionPreferences returns the settings of one library section.
func (c *Client) SectionPreferences(ctx context.Context, sectionKey string) ([]Setting, error) {
	var container mediaContainer
	if err := c.get(ctx, "/library/sections/"+url.PathEscape(sectionKey)+"/prefs", "", &container); err != nil {
		return nil, err
	}
	return container.MediaContainer.Setting, nil
}

func (c *Client) metadataList(ctx context.Context, path, rawQuery string) ([]Metadata, error) {
	var container mediaContainer
	if err := c.get(ctx, path, rawQuery, &container); err != nil {
		return nil, err
	}
	return container.MediaContainer.Metadata, nil
}

func (c *Client) get(ctx context.Context, path, rawQuery string, out any) error {
	target := c.baseURL + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build plex request: %w", err)
	}
	c.applyHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("plex request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return services.CheckStatus(serviceName, http.MethodGet, path, resp.StatusCode, body)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode plex %s: %w", path, err)
	}
	return nil
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("X-Plex-Client-Identifier", c.clientID)
	req.Header.Set("X-Plex-Product", c.product)
	req.Header.Set("X-Plex-Version", c.version)
	req.Header.Set("X-Plex-Device-Name", c.product)
	req.Header.Set("X-Plex-Platform", runtime.GOOS)
}
