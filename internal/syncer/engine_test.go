package syncer_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"anibridge-plex/internal/library"
	"anibridge-plex/internal/mapping"
	"anibridge-plex/internal/services/plex"
	"anibridge-plex/internal/state"
	"anibridge-plex/internal/syncer"
	"anibridge-plex/internal/testsupport"
)

type memorySink struct {
	mu      sync.Mutex
	records []syncer.Record
}

func (s *memorySink) Write(_ context.Context, record syncer.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *memorySink) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for _, r := range s.records {
		keys = append(keys, r.Key)
	}
	return keys
}

type fixture struct {
	fake     *testsupport.FakePlex
	provider *library.Provider
	store    *state.Store
	sink     *memorySink
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := testsupport.NewFakePlex(t)
	fake.Sections = []plex.Section{
		{Key: "1", Title: "Movies", Type: plex.TypeMovie},
		{Key: "2", Title: "Anime", Type: plex.TypeShow},
	}
	fake.AddMovie("1", plex.Metadata{RatingKey: "10", Title: "Akira", GUIDs: []plex.GUID{{ID: "tmdb://149"}}})
	fake.AddShow("2",
		plex.Metadata{RatingKey: "100", Title: "Frieren", ShowOrdering: "tvdbAiring", GUIDs: []plex.GUID{{ID: "tvdb://424536"}}},
		nil, nil)

	cfg := testsupport.NewConfig(t, testsupport.WithFakePlex(fake))
	provider, err := library.New(cfg.Provider(), library.WithEndpoints(library.Endpoints{
		PlexTV:    fake.URL(),
		Discover:  fake.URL(),
		Community: fake.URL(),
	}))
	if err != nil {
		t.Fatalf("library.New: %v", err)
	}
	if err := provider.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return &fixture{
		fake:     fake,
		provider: provider,
		store:    testsupport.MustOpenStore(t, cfg),
		sink:     &memorySink{},
		now:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) engine(t *testing.T, opts ...syncer.Option) *syncer.Engine {
	t.Helper()
	opts = append([]syncer.Option{
		syncer.WithConcurrency(2),
		syncer.WithClock(func() time.Time { return f.now }),
	}, opts...)
	engine, err := syncer.New(f.provider, f.store, f.sink, opts...)
	if err != nil {
		t.Fatalf("syncer.New: %v", err)
	}
	return engine
}

func TestRunWritesRecordsAndAdvancesCheckpoints(t *testing.T) {
	f := newFixture(t)
	engine := f.engine(t)
	ctx := context.Background()

	summary, err := engine.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Sections != 2 || summary.Records != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	for _, section := range []string{"1", "2"} {
		cp, ok, err := f.store.Checkpoint(ctx, section)
		if err != nil || !ok || !cp.Equal(f.now) {
			t.Fatalf("section %s checkpoint = %v ok=%v err=%v", section, cp, ok, err)
		}
	}
	for _, req := range f.fake.Requests("/library/sections/1/all") {
		if strings.Contains(req.Query, "push=") {
			t.Fatalf("first run must not filter, got %q", req.Query)
		}
	}

	if _, err := engine.Run(ctx); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	reqs := f.fake.Requests("/library/sections/1/all")
	last := reqs[len(reqs)-1].Query
	want := "lastViewedAt%3E%3E=" + "1717243200"
	if !strings.Contains(last, want) {
		t.Fatalf("second run should filter from checkpoint, query %q missing %q", last, want)
	}
}

func TestRunRecordsShowOrderingAndCandidates(t *testing.T) {
	f := newFixture(t)
	index := mapping.MapIndex{}
	index.Add(mapping.NamespaceTVDBShow, "424536", "anilist:154587")
	engine := f.engine(t, syncer.WithIndex(index))

	if _, err := engine.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var show *syncer.Record
	for i := range f.sink.records {
		if f.sink.records[i].Key == "100" {
			show = &f.sink.records[i]
		}
	}
	if show == nil {
		t.Fatal("show record missing")
	}
	if show.Ordering != mapping.OrderingTVDB || show.Section != "Anime" {
		t.Fatalf("unexpected show record %+v", show)
	}
	if show.Match == nil || show.Match.Targets[0] != "anilist:154587" {
		t.Fatalf("expected resolved match, got %+v", show.Match)
	}
}

func TestRunKeepsCheckpointOfFailedSection(t *testing.T) {
	f := newFixture(t)
	f.fake.Fail["/library/sections/2/all"] = 500
	engine := f.engine(t)
	ctx := context.Background()

	summary, err := engine.Run(ctx)
	if err == nil {
		t.Fatal("expected section error")
	}
	if summary.Failed != 1 || summary.Records != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if _, ok, _ := f.store.Checkpoint(ctx, "1"); !ok {
		t.Fatal("healthy section should advance")
	}
	if _, ok, _ := f.store.Checkpoint(ctx, "2"); ok {
		t.Fatal("failed section must not advance")
	}
}

func TestRunPendingDrainsQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, key := range []string{"100", "999"} {
		if err := f.store.EnqueuePending(ctx, key, "media.scrobble"); err != nil {
			t.Fatalf("EnqueuePending: %v", err)
		}
	}

	summary, err := f.engine(t).RunPending(ctx)
	if err != nil {
		t.Fatalf("RunPending: %v", err)
	}
	if summary.Acked != 2 || summary.Records != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if keys := f.sink.keys(); len(keys) != 1 || keys[0] != "100" {
		t.Fatalf("unexpected records %v", keys)
	}
	left, err := f.store.PendingKeys(ctx, 0)
	if err != nil || len(left) != 0 {
		t.Fatalf("expected empty queue, got %v err=%v", left, err)
	}
}

func TestRunPendingKeepsKeysOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.store.EnqueuePending(ctx, "10", "media.rate"); err != nil {
		t.Fatalf("EnqueuePending: %v", err)
	}
	f.fake.Fail["/library/sections/1/all"] = 500

	if _, err := f.engine(t).RunPending(ctx); err == nil {
		t.Fatal("expected error")
	}
	left, _ := f.store.PendingKeys(ctx, 0)
	if len(left) != 1 {
		t.Fatalf("key must stay queued, got %v", left)
	}
}

// requeueLibrary queues key again the first time a section is listed, as a
// webhook arriving mid-sync would.
type requeueLibrary struct {
	*library.Provider
	store *state.Store
	key   string
	once  sync.Once
}

func (l *requeueLibrary) ListItems(ctx context.Context, section library.Section, opts library.ListOptions) ([]*library.Media, error) {
	var err error
	l.once.Do(func() { err = l.store.EnqueuePending(ctx, l.key, "media.rate") })
	if err != nil {
		return nil, err
	}
	return l.Provider.ListItems(ctx, section, opts)
}

func TestRunPendingKeepsKeyQueuedDuringSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.store.EnqueuePending(ctx, "100", "media.scrobble"); err != nil {
		t.Fatalf("EnqueuePending: %v", err)
	}

	lib := &requeueLibrary{Provider: f.provider, store: f.store, key: "100"}
	engine, err := syncer.New(lib, f.store, f.sink, syncer.WithClock(func() time.Time { return f.now }))
	if err != nil {
		t.Fatalf("syncer.New: %v", err)
	}
	if _, err := engine.RunPending(ctx); err != nil {
		t.Fatalf("RunPending: %v", err)
	}

	left, err := f.store.PendingKeys(ctx, 0)
	if err != nil {
		t.Fatalf("PendingKeys: %v", err)
	}
	if len(left) != 1 || left[0].RatingKey != "100" || left[0].Event != "media.rate" {
		t.Fatalf("re-queued key must survive the ack, got %+v", left)
	}

	if _, err := engine.RunPending(ctx); err != nil {
		t.Fatalf("second RunPending: %v", err)
	}
	if left, _ := f.store.PendingKeys(ctx, 0); len(left) != 0 {
		t.Fatalf("expected queue drained on the next run, got %+v", left)
	}
}

func TestRunPendingNoopWhenEmpty(t *testing.T) {
	f := newFixture(t)
	before := f.fake.Hits("/library/sections/")

	summary, err := f.engine(t).RunPending(context.Background())
	if err != nil || summary != (syncer.Summary{}) {
		t.Fatalf("expected empty summary, got %+v err=%v", summary, err)
	}
	if f.fake.Hits("/library/sections/") != before {
		t.Fatal("empty queue must not search sections")
	}
}

func TestJSONLinesSink(t *testing.T) {
	var buf bytes.Buffer
	sink := syncer.NewJSONLinesSink(&buf)
	for _, key := range []string{"1", "2"} {
		if err := sink.Write(context.Background(), syncer.Record{Key: key, Kind: mapping.KindMovie}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %q", buf.String())
	}
	var decoded syncer.Record
	if err := json.Unmarshal([]byte(lines[1]), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Key != "2" || decoded.Kind != mapping.KindMovie {
		t.Fatalf("unexpected record %+v", decoded)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := syncer.New(nil, nil, nil); err == nil {
		t.Fatal("expected error")
	}
}
