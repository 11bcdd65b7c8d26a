// Package community is a small GraphQL client for the Plex community API,
// which holds the reviews and watch activity of a plex.tv account.
package community

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"anibridge-plex/internal/services"
)

const (
	DefaultBaseURL = "https://community.plex.tv"

	maxRateLimitRetries = 5
	defaultRetryAfter   = time.Second
	activityPageSize    = 50
)

const reviewQuery = `query GetMetadataReview($metadata: MetadataInput!) {
  metadataReviewV2(metadata: $metadata) {
    ... on ActivityReview { message }
    ... on ActivityWatchReview { message }
  }
}`

const activityQuery = `query GetWatchActivity($first: PaginationInt!, $after: String, $metadataID: ID) {
  activityFeed(first: $first, after: $after, metadataID: $metadataID, types: [METADATA_WATCH_HISTORY]) {
    nodes {
      ... on ActivityWatchHistory { id date }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

// Sleeper waits between rate-limited attempts. It must return early with the
// context error when ctx is cancelled.
type Sleeper func(ctx context.Context, d time.Duration) error

// Client posts GraphQL operations to {base}/api.
type Client struct {
	http  *resty.Client
	sleep Sleeper
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another community endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			c.http.SetBaseURL(strings.TrimRight(baseURL, "/"))
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.http.SetTimeout(timeout)
		}
	}
}

// WithSleeper replaces the wait used between rate-limited attempts.
func WithSleeper(sleep Sleeper) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// New builds a client authenticated with a plex.tv token.
func New(token string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("community token required")
	}
	api := resty.New().
		SetBaseURL(DefaultBaseURL).
		SetTimeout(30 * time.Second).
		SetHeader("X-Plex-Token", token).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	client := &Client{http: api, sleep: sleepContext}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Do posts one operation and returns its data member. HTTP 429 responses are
// retried after Retry-After seconds, up to five times.
func (c *Client) Do(ctx context.Context, query string, variables map[string]any, operation string) (json.RawMessage, error) {
	body := request{Query: query, Variables: variables, OperationName: operation}
	for attempt := 0; ; attempt++ {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(body).
			Post("/api")
		if err != nil {
			return nil, fmt.Errorf("community %s request: %w", operation, err)
		}

		if resp.StatusCode() == http.StatusTooManyRequests && attempt < maxRateLimitRetries {
			if err := c.sleep(ctx, retryAfter(resp.Header().Get("Retry-After"))); err != nil {
				return nil, err
			}
			continue
		}
		if err := services.CheckStatus("community", http.MethodPost, "/api", resp.StatusCode(), resp.Body()); err != nil {
			return nil, err
		}

		var decoded response
		if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
			return nil, fmt.Errorf("decode community %s: %w", operation, err)
		}
		if len(decoded.Errors) > 0 {
			return nil, fmt.Errorf("community %s: %s", operation, decoded.Errors[0].Message)
		}
		return decoded.Data, nil
	}
}

// Review returns the account's review text for a Plex metadata id. ok is
// false when no review exists.
func (c *Client) Review(ctx context.Context, metadataID string) (string, bool, error) {
	data, err := c.Do(ctx, reviewQuery, map[string]any{
		"metadata": map[string]string{"id": metadataID},
	}, "GetMetadataReview")
	if err != nil {
		return "", false, err
	}

	var payload struct {
		Review *struct {
			Message *string `json:"message"`
		} `json:"metadataReviewV2"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", false, fmt.Errorf("decode review: %w", err)
	}
	if payload.Review == nil || payload.Review.Message == nil {
		return "", false, nil
	}
	return *payload.Review.Message, true, nil
}

// WatchActivity follows activityFeed until hasNextPage is false and returns
// every node.
func (c *Client) WatchActivity(ctx context.Context, metadataID string) ([]json.RawMessage, error) {
	var (
		nodes  []json.RawMessage
		cursor *string
	)
	for {
		variables := map[string]any{
			"first":      activityPageSize,
			"metadataID": metadataID,
		}
		if cursor != nil {
			variables["after"] = *cursor
		}
		data, err := c.Do(ctx, activityQuery, variables, "GetWatchActivity")
		if err != nil {
			return nil, err
		}

		var page struct {
			ActivityFeed struct {
				Nodes    []json.RawMessage `json:"nodes"`
				PageInfo struct {
					HasNextPage bool    `json:"hasNextPage"`
					EndCursor   *string `json:"endCursor"`
				} `json:"pageInfo"`
			} `json:"activityFeed"`
		}
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("decode activity feed: %w", err)
		}
		nodes = append(nodes, page.ActivityFeed.Nodes...)

		info := page.ActivityFeed.PageInfo
		if !info.HasNextPage || info.EndCursor == nil {
			return nodes, nil
		}
		cursor = info.EndCursor
	}
}

func retryAfter(header string) time.Duration {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(header), 64)
	if err != nil || seconds < 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds * float64(time.Second))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
