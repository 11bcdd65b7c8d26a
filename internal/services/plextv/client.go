// Package plextv is the plex.tv account client: the signed-in account, its
// shared and home users, the per-server access tokens used to act as one of
// those users, and the discover watchlist.
package plextv

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"anibridge-plex/internal/services"
)

const (
	DefaultBaseURL     = "https://plex.tv"
	DefaultDiscoverURL = "https://discover.provider.plex.tv"

	watchlistPageSize = 100
)

// Config configures a Client.
type Config struct {
	BaseURL          string
	DiscoverURL      string
	Token            string
	ClientIdentifier string
	Product          string
	Timeout          time.Duration
}

// Account is the plex.tv account that owns the admin token.
type Account struct {
	ID       int64  `json:"id"`
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Title    string `json:"title"`
}

// User is a friend or home user of the account.
type User struct {
	ID         int64  `xml:"id,attr"`
	Title      string `xml:"title,attr"`
	Username   string `xml:"username,attr"`
	Email      string `xml:"email,attr"`
	Home       bool   `xml:"home,attr"`
	Restricted bool   `xml:"restricted,attr"`
}

// Login returns the first non-empty identifier that plex.tv accepts for the user.
func (u User) Login() string {
	for _, candidate := range []string{u.Username, u.Email, u.Title} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return ""
}

// Client talks to plex.tv and the discover provider.
type Client struct {
	api      *resty.Client
	discover *resty.Client
}

// New builds a client authenticated with the admin token.
func New(cfg Config) (*Client, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("plex.tv token required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.DiscoverURL == "" {
		cfg.DiscoverURL = DefaultDiscoverURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Product == "" {
		cfg.Product = "anibridge-plex"
	}
	if cfg.ClientIdentifier == "" {
		cfg.ClientIdentifier = cfg.Product
	}

	headers := map[string]string{
		"X-Plex-Token":             token,
		"X-Plex-Client-Identifier": cfg.ClientIdentifier,
		"X-Plex-Product":           cfg.Product,
	}
	build := func(baseURL string) *resty.Client {
		return resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetHeaders(headers)
	}
	return &Client{api: build(cfg.BaseURL), discover: build(cfg.DiscoverURL)}, nil
}

// Account returns the account that owns the token.
func (c *Client) Account(ctx context.Context) (Account, error) {
	const path = "/api/v2/user"
	resp, err := c.api.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get(path)
	if err != nil {
		return Account{}, fmt.Errorf("plex.tv account request: %w", err)
	}
	if err := mapHTTPError(resp, path); err != nil {
		return Account{}, err
	}

	var account Account
	if err := json.Unmarshal(resp.Body(), &account); err != nil {
		return Account{}, fmt.Errorf("decode plex.tv account: %w", err)
	}
	return account, nil
}

// Users lists the friends and home users of the account.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	const path = "/api/users"
	resp, err := c.api.R().
		SetContext(ctx).
		SetHeader("Accept", "application/xml").
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("plex.tv users request: %w", err)
	}
	if err := mapHTTPError(resp, path); err != nil {
		return nil, err
	}

	var container struct {
		Users []User `xml:"User"`
	}
	if err := xml.Unmarshal(resp.Body(), &container); err != nil {
		return nil, fmt.Errorf("decode plex.tv users: %w", err)
	}
	return container.Users, nil
}

// SharedServerToken returns the access token userID holds on the server
// identified by machineID.
func (c *Client) SharedServerToken(ctx context.Context, machineID string, userID int64) (string, error) {
	machineID = strings.TrimSpace(machineID)
	if machineID == "" {
		return "", errors.New("server machine identifier required")
	}
	path := "/api/servers/" + url.PathEscape(machineID) + "/shared_servers"
	resp, err := c.api.R().
		SetContext(ctx).
		SetHeader("Accept", "application/xml").
		Get(path)
	if err != nil {
		return "", fmt.Errorf("plex.tv shared servers request: %w", err)
	}
	if err := mapHTTPError(resp, path); err != nil {
		return "", err
	}

	var container struct {
		SharedServers []struct {
			UserID      int64  `xml:"userID,attr"`
			Username    string `xml:"username,attr"`
			AccessToken string `xml:"accessToken,attr"`
		} `xml:"SharedServer"`
	}
	if err := xml.Unmarshal(resp.Body(), &container); err != nil {
		return "", fmt.Errorf("decode plex.tv shared servers: %w", err)
	}
	for _, shared := range container.SharedServers {
		if shared.UserID == userID && shared.AccessToken != "" {
			return shared.AccessToken, nil
		}
	}
	return "", fmt.Errorf("no shared server token for user %d on %s: %w", userID, machineID, services.ErrNotFound)
}

// Watchlist returns the GUIDs on the account's watchlist. The discover
// provider pages with X-Plex-Container-Start/Size.
func (c *Client) Watchlist(ctx context.Context) ([]string, error) {
	const path = "/library/sections/watchlist/all"
	var guids []string
	for start := 0; ; {
		resp, err := c.discover.R().
			SetContext(ctx).
			SetHeader("Accept", "application/json").
			SetQueryParams(map[string]string{
				"includeCollections":     "1",
				"includeExternalMedia":   "1",
				"X-Plex-Container-Start": strconv.Itoa(start),
				"X-Plex-Container-Size":  strconv.Itoa(watchlistPageSize),
			}).
			Get(path)
		if err != nil {
			return nil, fmt.Errorf("watchlist request: %w", err)
		}
		if err := mapHTTPError(resp, path); err != nil {
			return nil, err
		}

		var page struct {
			MediaContainer struct {
				TotalSize int `json:"totalSize"`
				Metadata  []struct {
					GUID string `json:"guid"`
				} `json:"Metadata"`
			} `json:"MediaContainer"`
		}
		if err := json.Unmarshal(resp.Body(), &page); err != nil {
			return nil, fmt.Errorf("decode watchlist: %w", err)
		}
		for _, item := range page.MediaContainer.Metadata {
			if item.GUID != "" {
				guids = append(guids, item.GUID)
			}
		}

		start += len(page.MediaContainer.Metadata)
		if len(page.MediaContainer.Metadata) == 0 || start >= page.MediaContainer.TotalSize {
			return guids, nil
		}
	}
}

func mapHTTPError(resp *resty.Response, path string) error {
	method := http.MethodGet
	if resp.Request != nil && resp.Request.Method != "" {
		method = resp.Request.Method
	}
	return services.CheckStatus("plex.tv", method, path, resp.StatusCode(), resp.Body())
}
