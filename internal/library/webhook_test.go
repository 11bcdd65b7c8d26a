package library_test

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"anibridge-plex/internal/testsupport"
	"anibridge-plex/internal/webhook"
)

func jsonRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, payload string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("payload", payload); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhook", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestParseWebhookSyncsUserEvents(t *testing.T) {
	fake := newFake(t)
	provider := initialized(t, fake)

	tests := []struct {
		name     string
		payload  string
		wantSync bool
		wantKeys []string
	}{
		{
			name:     "scrobble of an episode syncs the show",
			payload:  `{"event":"media.scrobble","Account":{"id":1000},"Metadata":{"ratingKey":"112","parentRatingKey":"110","grandparentRatingKey":"100"}}`,
			wantSync: true,
			wantKeys: []string{"100"},
		},
		{
			name:     "owner reported as account 1",
			payload:  `{"event":"media.rate","Account":{"id":1},"Metadata":{"ratingKey":"10"}}`,
			wantSync: true,
			wantKeys: []string{"10"},
		},
		{
			name:    "play events are ignored",
			payload: `{"event":"media.play","Account":{"id":1000},"Metadata":{"ratingKey":"10"}}`,
		},
		{
			name:    "other accounts are ignored",
			payload: `{"event":"library.new","Account":{"id":77},"Metadata":{"ratingKey":"10"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sync, keys, err := provider.ParseWebhook(jsonRequest(tt.payload))
			if err != nil {
				t.Fatalf("ParseWebhook: %v", err)
			}
			if sync != tt.wantSync {
				t.Fatalf("sync = %v, want %v", sync, tt.wantSync)
			}
			if strings.Join(keys, ",") != strings.Join(tt.wantKeys, ",") {
				t.Fatalf("keys = %v, want %v", keys, tt.wantKeys)
			}
		})
	}
}

func TestParseWebhookMultipart(t *testing.T) {
	fake := newFake(t)
	provider := initialized(t, fake)

	req := multipartRequest(t, `{"event":"library.new","Account":{"id":1000},"Metadata":{"ratingKey":"10"}}`)
	sync, keys, err := provider.ParseWebhook(req)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if !sync || len(keys) != 1 || keys[0] != "10" {
		t.Fatalf("unexpected result %v %v", sync, keys)
	}
}

func TestParseWebhookSharedUserIgnoresAccountOne(t *testing.T) {
	fake := newFake(t)
	fake.Users = []testsupport.FakeUser{{ID: 42, Username: "friend", Token: "friend-token"}}
	provider := initialized(t, fake, testsupport.WithUser("friend"))

	sync, _, err := provider.ParseWebhook(jsonRequest(`{"event":"media.scrobble","Account":{"id":1},"Metadata":{"ratingKey":"10"}}`))
	if err != nil || sync {
		t.Fatalf("expected ignored event, got sync=%v err=%v", sync, err)
	}
	sync, _, err = provider.ParseWebhook(jsonRequest(`{"event":"media.scrobble","Account":{"id":42},"Metadata":{"ratingKey":"10"}}`))
	if err != nil || !sync {
		t.Fatalf("expected sync for shared user, got sync=%v err=%v", sync, err)
	}
}

func TestParseWebhookErrors(t *testing.T) {
	fake := newFake(t)
	provider := initialized(t, fake)

	tests := []struct {
		name string
		body string
		want error
	}{
		{name: "invalid json", body: `{"event":`, want: webhook.ErrInvalidPayload},
		{name: "missing account", body: `{"event":"media.rate","Metadata":{"ratingKey":"10"}}`, want: webhook.ErrMissingAccount},
		{name: "missing rating key", body: `{"event":"media.rate","Account":{"id":1000}}`, want: webhook.ErrMissingRatingKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := provider.ParseWebhook(jsonRequest(tt.body))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseWebhookBeforeInitializeIgnores(t *testing.T) {
	fake := newFake(t)
	provider := newProvider(t, fake, nil)

	sync, keys, err := provider.ParseWebhook(jsonRequest(`{"event":"media.rate","Account":{"id":1000},"Metadata":{"ratingKey":"10"}}`))
	if err != nil || sync || keys != nil {
		t.Fatalf("expected ignored, got %v %v %v", sync, keys, err)
	}
}
