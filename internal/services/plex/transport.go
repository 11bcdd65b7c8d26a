package plex

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"strings"
)

// NewTransport returns the round tripper used for PMS requests. When baseURL
// is https, certificate verification is skipped for that host and only that
// host; servers behind self-signed certificates are the common case.
func NewTransport(baseURL string) http.RoundTripper {
	verified := http.DefaultTransport.(*http.Transport).Clone()
	parsed, err := url.Parse(baseURL)
	if err != nil || !strings.EqualFold(parsed.Scheme, "https") || parsed.Hostname() == "" {
		return verified
	}
	insecure := verified.Clone()
	insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // scoped to the configured server
	return &selectiveTransport{
		host:     strings.ToLower(parsed.Hostname()),
		verified: verified,
		insecure: insecure,
	}
}

type selectiveTransport struct {
	host     string
	verified http.RoundTripper
	insecure http.RoundTripper
}

func (t *selectiveTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL != nil && strings.EqualFold(req.URL.Scheme, "https") && strings.ToLower(req.URL.Hostname()) == t.host {
		return t.insecure.RoundTrip(req)
	}
	return t.verified.RoundTrip(req)
}
