package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"anibridge-plex/internal/config"
	"anibridge-plex/internal/services/plex"
	"anibridge-plex/internal/state"
	"anibridge-plex/internal/syncer"
	"anibridge-plex/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	fake       *testsupport.FakePlex
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	for _, key := range []string{"PLEX_URL", "PLEX_TOKEN", "PLEX_USER", "PLEX_SECTIONS", "PLEX_GENRES", "PLEX_STRICT"} {
		t.Setenv(key, "")
	}

	fake := testsupport.NewFakePlex(t)
	fake.Sections = []plex.Section{
		{Key: "1", Title: "Movies", Type: plex.TypeMovie},
		{Key: "3", Title: "Music", Type: "artist"},
	}
	fake.AddMovie("1", plex.Metadata{
		RatingKey: "10",
		Title:     "Akira",
		ViewCount: 2,
		GUIDs:     []plex.GUID{{ID: "tmdb://149"}, {ID: "imdb://tt0094625"}},
	})
	fake.AddMovie("1", plex.Metadata{RatingKey: "11", Title: "Paprika"})

	cfg := testsupport.NewConfig(t, testsupport.WithFakePlex(fake))
	configPath := filepath.Join(base, "anibridge-plex.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, fake: fake, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (env *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, err := env.run(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("expected target path in output, got %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample not written: %v", err)
	}

	if _, err := env.run(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config exists without --overwrite")
	}
	if _, err := env.run(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") || !strings.Contains(out, env.configPath) {
		t.Fatalf("unexpected output %q", out)
	}

	env.cfg.LibraryProviderConfig.Plex.Token = ""
	writeTestConfig(t, env.configPath, env.cfg)
	if _, err := env.run(t, "config", "validate"); err == nil {
		t.Fatal("expected validation failure without token")
	}
}

func TestCheckCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "check")
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	for _, want := range []string{"State directory", "Plex Media Server", "plex.tv account", "OK"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestUserCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "user", "--json")
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode user output: %v\n%s", err, out)
	}
	if got["key"] != "1000" || got["admin"] != true || got["server"] != "machine-1" {
		t.Fatalf("unexpected user output %v", got)
	}
}

func TestSectionsCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "sections")
	if err != nil {
		t.Fatalf("sections: %v", err)
	}
	if !strings.Contains(out, "Movies") {
		t.Fatalf("expected Movies section, got:\n%s", out)
	}
	if strings.Contains(out, "Music") {
		t.Fatalf("music section should be filtered:\n%s", out)
	}
}

func TestItemsCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "items", "Movies", "--json")
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	var items []itemSummary
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("decode items: %v\n%s", err, out)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].IDs["tmdb_movie"] != "149" || items[0].IDs["imdb"] != "tt0094625" {
		t.Fatalf("unexpected ids %v", items[0].IDs)
	}

	out, err = env.run(t, "items", "movies", "--key", "11")
	if err != nil {
		t.Fatalf("items --key: %v", err)
	}
	if !strings.Contains(out, "Paprika") || strings.Contains(out, "Akira") {
		t.Fatalf("unexpected keyed output:\n%s", out)
	}

	if _, err := env.run(t, "items", "Movies", "--since", "yesterday"); err == nil {
		t.Fatal("expected error for invalid --since")
	}
	if _, err := env.run(t, "items", "Music"); err == nil {
		t.Fatal("expected error for unsynced section")
	}
}

func TestShowCommandWithMappings(t *testing.T) {
	env := setupCLITestEnv(t)
	mappingsPath := filepath.Join(t.TempDir(), "mappings.json")
	if err := os.WriteFile(mappingsPath, []byte(`{"tmdb_movie:149": ["anilist:47"]}`), 0o600); err != nil {
		t.Fatalf("write mappings: %v", err)
	}

	out, err := env.run(t, "show", "Movies", "10", "--json", "--mappings", mappingsPath)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	var record syncer.Record
	if err := json.Unmarshal([]byte(out), &record); err != nil {
		t.Fatalf("decode record: %v\n%s", err, out)
	}
	if record.Key != "10" || record.Title != "Akira" {
		t.Fatalf("unexpected record %+v", record)
	}
	if record.Match == nil || len(record.Match.Targets) != 1 || record.Match.Targets[0] != "anilist:47" {
		t.Fatalf("expected mapping match, got %+v", record.Match)
	}

	table, err := env.run(t, "show", "Movies", "10")
	if err != nil {
		t.Fatalf("show table: %v", err)
	}
	if !strings.Contains(table, "Akira") || !strings.Contains(table, "tmdb_movie") {
		t.Fatalf("unexpected table output:\n%s", table)
	}
}

func TestSyncCommandWritesRecordsAndCheckpoints(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Sync.RequireWatched = false
	writeTestConfig(t, env.configPath, env.cfg)
	output := filepath.Join(t.TempDir(), "records.jsonl")

	if _, err := env.run(t, "sync", "--output", output); err != nil {
		t.Fatalf("sync: %v", err)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 records, got %d:\n%s", len(lines), data)
	}

	store, err := state.Open(env.cfg)
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	defer store.Close()
	if _, ok, err := store.Checkpoint(context.Background(), "1"); err != nil || !ok {
		t.Fatalf("expected checkpoint for section 1, ok=%v err=%v", ok, err)
	}
}

func TestSyncPendingOnlyDrainsQueue(t *testing.T) {
	env := setupCLITestEnv(t)

	store := testsupport.MustOpenStore(t, env.cfg)
	if err := store.EnqueuePending(context.Background(), "11", "media.rate"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	out, err := env.run(t, "sync", "--pending-only")
	if err != nil {
		t.Fatalf("sync --pending-only: %v", err)
	}
	if !strings.Contains(out, `"key":"11"`) {
		t.Fatalf("expected pending record for 11, got:\n%s", out)
	}
	count, err := store.PendingCount(context.Background())
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected queue drained, %d left", count)
	}
}

func TestLogsCommandPrintsTail(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir logs: %v", err)
	}
	if err := os.WriteFile(env.cfg.LogPath(), []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, err := env.run(t, "logs", "-n", "2")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "two\nthree\n" {
		t.Fatalf("unexpected output %q", out)
	}
}
