package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anibridge-plex/internal/config"
	"anibridge-plex/internal/daemon"
	"anibridge-plex/internal/library"
	"anibridge-plex/internal/services/plex"
	"anibridge-plex/internal/state"
	"anibridge-plex/internal/syncer"
	"anibridge-plex/internal/testsupport"
	"anibridge-plex/internal/webhook"
)

type countingSyncer struct {
	runs    atomic.Int32
	pending atomic.Int32
}

func (s *countingSyncer) Run(context.Context) (syncer.Summary, error) {
	s.runs.Add(1)
	return syncer.Summary{}, nil
}

func (s *countingSyncer) RunPending(context.Context) (syncer.Summary, error) {
	s.pending.Add(1)
	return syncer.Summary{}, nil
}

type harness struct {
	cfg    *config.Config
	store  *state.Store
	syncer *countingSyncer
	daemon *daemon.Daemon
	server *httptest.Server
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	return newLoggedHarness(t, nil, opts...)
}

func newLoggedHarness(t *testing.T, logger *slog.Logger, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	fake := testsupport.NewFakePlex(t)
	fake.Sections = []plex.Section{{Key: "2", Title: "Anime", Type: plex.TypeShow}}

	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithFakePlex(fake)}, opts...)...)
	provider, err := library.New(cfg.Provider(), library.WithEndpoints(library.Endpoints{
		PlexTV:    cfg.Endpoints.PlexTV,
		Discover:  cfg.Endpoints.Discover,
		Community: cfg.Endpoints.Community,
	}))
	require.NoError(t, err)
	require.NoError(t, provider.Initialize(context.Background()))
	t.Cleanup(func() { provider.Close() })

	store := testsupport.MustOpenStore(t, cfg)
	sync := &countingSyncer{}
	d, err := daemon.New(cfg, provider, store, sync, logger)
	require.NoError(t, err)

	server := httptest.NewServer(d.Handler())
	t.Cleanup(server.Close)
	return &harness{cfg: cfg, store: store, syncer: sync, daemon: d, server: server}
}

func (h *harness) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(h.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

const scrobbleEpisode = `{
	"event": "media.scrobble",
	"Account": {"id": 1000, "title": "admin"},
	"Metadata": {"type": "episode", "ratingKey": "111", "parentRatingKey": "110", "grandparentRatingKey": "100"}
}`

func TestWebhookQueuesTopLevelKey(t *testing.T) {
	h := newHarness(t)

	resp := h.post(t, "/webhook", scrobbleEpisode)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body struct {
		Queued []string `json:"queued"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []string{"100"}, body.Queued)

	pending, err := h.store.PendingKeys(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "100", pending[0].RatingKey)
	assert.Equal(t, "media.scrobble", pending[0].Event)
}

func TestWebhookAcceptsOwnerAccountOne(t *testing.T) {
	h := newHarness(t)

	resp := h.post(t, "/webhook", `{"event":"media.rate","Account":{"id":1},"Metadata":{"ratingKey":"42"}}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestWebhookIgnoresOtherEventsAndAccounts(t *testing.T) {
	h := newHarness(t)

	resp := h.post(t, "/webhook", `{"event":"media.play","Account":{"id":1000},"Metadata":{"ratingKey":"42"}}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = h.post(t, "/webhook", `{"event":"media.scrobble","Account":{"id":555},"Metadata":{"ratingKey":"42"}}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	count, err := h.store.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestWebhookRejectsBadPayloads(t *testing.T) {
	h := newHarness(t)

	cases := map[string]string{
		"not json":        `{`,
		"missing account": `{"event":"media.scrobble","Metadata":{"ratingKey":"42"}}`,
		"missing key":     `{"event":"media.scrobble","Account":{"id":1000}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := h.post(t, "/webhook", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestWebhookSecret(t *testing.T) {
	h := newHarness(t, testsupport.WithWebhookSecret("s3cret"))

	resp := h.post(t, "/webhook", scrobbleEpisode)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.post(t, "/webhook?secret=wrong", scrobbleEpisode)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.post(t, "/webhook?secret=s3cret", scrobbleEpisode)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, h.server.URL+"/webhook", strings.NewReader(scrobbleEpisode))
	require.NoError(t, err)
	req.Header.Set("X-Webhook-Secret", "s3cret")
	headerResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer headerResp.Body.Close()
	assert.Equal(t, http.StatusAccepted, headerResp.StatusCode)
}

func TestHealthAndTraceID(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))

	req, err := http.NewRequest(http.MethodGet, h.server.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Trace-ID", "trace-123")
	traced, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer traced.Body.Close()
	assert.Equal(t, "trace-123", traced.Header.Get("X-Trace-ID"))
}

func TestSectionsAndPendingEndpoints(t *testing.T) {
	h := newHarness(t)
	h.post(t, "/webhook", scrobbleEpisode)

	resp, err := http.Get(h.server.URL + "/api/sections")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sections []library.Section
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sections))
	require.Len(t, sections, 1)
	assert.Equal(t, "Anime", sections[0].Title)

	pendingResp, err := http.Get(h.server.URL + "/api/pending?limit=5")
	require.NoError(t, err)
	defer pendingResp.Body.Close()
	require.Equal(t, http.StatusOK, pendingResp.StatusCode)
	var pending []state.Pending
	require.NoError(t, json.NewDecoder(pendingResp.Body).Decode(&pending))
	require.Len(t, pending, 1)

	bad, err := http.Get(h.server.URL + "/api/pending?limit=-1")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestStartRunsPollLoopAndHoldsLock(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, h.daemon.Start(ctx))
	defer h.daemon.Stop()

	assert.True(t, h.daemon.Status().Running)
	assert.NotEmpty(t, h.daemon.Addr())
	assert.Eventually(t, func() bool { return h.syncer.runs.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	other, err := daemon.New(h.cfg, nil, nil, nil, nil)
	require.Error(t, err)
	assert.Nil(t, other)

	second, err := daemon.New(h.cfg, &stubProvider{}, h.store, &countingSyncer{}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, second.Start(ctx), daemon.ErrAlreadyRunning)

	h.daemon.Stop()
	assert.False(t, h.daemon.Status().Running)
}

func TestWebhookTriggersPendingRun(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.daemon.Start(ctx))
	defer h.daemon.Stop()

	assert.Eventually(t, func() bool { return h.syncer.pending.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	before := h.syncer.pending.Load()

	resp, err := http.Post("http://"+h.daemon.Addr()+"/webhook", "application/json", strings.NewReader(scrobbleEpisode))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	assert.Eventually(t, func() bool { return h.syncer.pending.Load() > before }, 2*time.Second, 10*time.Millisecond)
}

func TestRequestLogRedactsWebhookSecret(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := newLoggedHarness(t, logger, testsupport.WithWebhookSecret("s3cr3t-value"))

	req := httptest.NewRequest(http.MethodPost, "/webhook?secret=s3cr3t-value&source=plex", strings.NewReader(scrobbleEpisode))
	rec := httptest.NewRecorder()
	h.daemon.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, logs.String(), "http request")
	assert.Contains(t, logs.String(), "/webhook?")
	assert.Contains(t, logs.String(), "secret=REDACTED")
	assert.NotContains(t, logs.String(), "s3cr3t-value")
}

type stubProvider struct{}

func (stubProvider) ShouldSync(webhook.Payload) (bool, []string, error) { return false, nil, nil }
func (stubProvider) Sections() ([]library.Section, error) { return nil, nil }
