package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
)

// StatusError reports a non-2xx response from an upstream Plex service.
type StatusError struct {
	Service    string
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if body == "" {
		body = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s %s returned %d: %s", e.Service, e.Method, e.Path, e.StatusCode, body)
}

// Unwrap lets errors.Is match the sentinel for well-known status codes.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return nil
	}
}

// CheckStatus returns nil for 2xx/3xx codes and a *StatusError otherwise. The
// body is truncated to keep log lines bounded.
func CheckStatus(service, method, path string, statusCode int, body []byte) error {
	if statusCode < http.StatusBadRequest {
		return nil
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return &StatusError{Service: service, Method: method, Path: path, StatusCode: statusCode, Body: text}
}

const maxErrorBody = 512
