package state_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anibridge-plex/internal/state"
	"anibridge-plex/internal/testsupport"
)

func TestOpenCreatesDatabaseInStateDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	assert.Equal(t, filepath.Join(cfg.Paths.StateDir, "state.db"), store.Path())
	assert.FileExists(t, store.Path())
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	first, err := state.OpenPath(path)
	require.NoError(t, err)
	require.NoError(t, first.SetCheckpoint(context.Background(), "1", time.Unix(1700000000, 0)))
	require.NoError(t, first.Close())

	second, err := state.OpenPath(path)
	require.NoError(t, err)
	t.Cleanup(func() { second.Close() })

	_, ok, err := second.Checkpoint(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, ok, "checkpoint should survive reopen")
}

func TestCheckpoints(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	_, ok, err := store.Checkpoint(ctx, "1")
	require.NoError(t, err)
	assert.False(t, ok)

	first := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	require.NoError(t, store.SetCheckpoint(ctx, "1", first))
	require.NoError(t, store.SetCheckpoint(ctx, "1", second))
	require.NoError(t, store.SetCheckpoint(ctx, "2", first))

	got, ok, err := store.Checkpoint(ctx, "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(second), "got %v", got)

	all, err := store.Checkpoints(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, store.ResetCheckpoints(ctx, "1"))
	_, ok, err = store.Checkpoint(ctx, "1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.ResetCheckpoints(ctx))
	all, err = store.Checkpoints(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSetCheckpointRequiresSection(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	assert.Error(t, store.SetCheckpoint(context.Background(), " ", time.Now()))
}

func TestPendingQueue(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	require.NoError(t, store.EnqueuePending(ctx, "100", "media.scrobble"))
	require.NoError(t, store.EnqueuePending(ctx, "200", "library.new"))
	require.NoError(t, store.EnqueuePending(ctx, "100", "media.rate"))

	count, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "re-queuing a key must not duplicate it")

	pending, err := store.PendingKeys(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "100", pending[0].RatingKey)
	assert.Equal(t, "media.rate", pending[0].Event)
	assert.Equal(t, 2, pending[0].Hits)

	limited, err := store.PendingKeys(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, store.AckPending(ctx, pending[0]))
	require.NoError(t, store.AckPending(ctx))

	pending, err = store.PendingKeys(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "200", pending[0].RatingKey)
}

func TestAckPendingKeepsKeysQueuedAgain(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	require.NoError(t, store.EnqueuePending(ctx, "100", "media.scrobble"))
	require.NoError(t, store.EnqueuePending(ctx, "200", "library.new"))
	snapshot, err := store.PendingKeys(ctx, 0)
	require.NoError(t, err)
	require.Len(t, snapshot, 2)

	require.NoError(t, store.EnqueuePending(ctx, "100", "media.rate"))
	require.NoError(t, store.AckPending(ctx, snapshot...))

	pending, err := store.PendingKeys(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "100", pending[0].RatingKey)
	assert.Equal(t, "media.rate", pending[0].Event)
	assert.Equal(t, 2, pending[0].Hits)
}

func TestEnqueuePendingRejectsEmptyKey(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	assert.Error(t, store.EnqueuePending(context.Background(), "", "media.rate"))
}

func TestClientIdentifierIsStable(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first, err := store.ClientIdentifier(ctx)
	require.NoError(t, err)
	_, err = uuid.Parse(first)
	require.NoError(t, err)

	second, err := store.ClientIdentifier(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestKeyValue(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "k", "v1"))
	require.NoError(t, store.Put(ctx, "k", "v2"))
	value, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", value)
}
