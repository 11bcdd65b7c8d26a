package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"anibridge-plex/internal/library"
	"anibridge-plex/internal/logging"
	"anibridge-plex/internal/mapping"
	"anibridge-plex/internal/state"
)

// Library is the provider surface the engine drives.
type Library interface {
	Sections() ([]library.Section, error)
	ListItems(ctx context.Context, section library.Section, opts library.ListOptions) ([]*library.Media, error)
}

// Store persists checkpoints and the webhook queue.
type Store interface {
	Checkpoint(ctx context.Context, section string) (time.Time, bool, error)
	SetCheckpoint(ctx context.Context, section string, t time.Time) error
	PendingKeys(ctx context.Context, limit int) ([]state.Pending, error)
	AckPending(ctx context.Context, synced ...state.Pending) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithConcurrency bounds how many sections sync at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithRequireWatched limits listings to items with view or rating activity.
func WithRequireWatched(v bool) Option {
	return func(e *Engine) { e.requireWatched = v }
}

// WithPendingBatch caps how many queued keys one RunPending drains.
func WithPendingBatch(n int) Option {
	return func(e *Engine) { e.pendingBatch = n }
}

// WithIndex resolves each record's candidates against index.
func WithIndex(index mapping.Index) Option {
	return func(e *Engine) { e.index = index }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logging.NewComponentLogger(logger, "syncer") }
}

// Engine runs full and pending syncs.
type Engine struct {
	lib   Library
	store Store
	sink  Sink

	concurrency    int
	requireWatched bool
	pendingBatch   int
	index          mapping.Index
	now            func() time.Time
	logger         *slog.Logger

	// runMu serializes runs so checkpoints never move backwards.
	runMu sync.Mutex
}

// Summary reports the outcome of a run.
type Summary struct {
	Sections int `json:"sections"`
	Records  int `json:"records"`
	Acked    int `json:"acked,omitempty"`
	Failed   int `json:"failed,omitempty"`
}

// New builds an engine.
func New(lib Library, store Store, sink Sink, opts ...Option) (*Engine, error) {
	if lib == nil || store == nil || sink == nil {
		return nil, errors.New("syncer requires a library, store, and sink")
	}
	e := &Engine{
		lib:         lib,
		store:       store,
		sink:        sink,
		concurrency: 1,
		now:         time.Now,
		logger:      logging.NewComponentLogger(nil, "syncer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run syncs every section incrementally from its checkpoint. A failing
// section does not stop the others; the first error is returned after all
// sections finish.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	sections, err := e.lib.Sections()
	if err != nil {
		return Summary{}, err
	}
	start := e.now()

	var (
		mu      sync.Mutex
		summary = Summary{Sections: len(sections)}
	)
	var firstErr error
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, section := range sections {
		g.Go(func() error {
			n, err := e.syncSection(ctx, section, start)
			mu.Lock()
			defer mu.Unlock()
			summary.Records += n
			if err != nil {
				summary.Failed++
				if firstErr == nil {
					firstErr = err
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	e.logger.Info("sync finished",
		logging.Int("sections", summary.Sections),
		logging.Int("records", summary.Records),
		logging.Int("failed", summary.Failed),
		logging.Duration("elapsed", e.now().Sub(start)),
	)
	return summary, firstErr
}

func (e *Engine) syncSection(ctx context.Context, section library.Section, start time.Time) (int, error) {
	ctx = logging.WithSection(ctx, section.Title)
	logger := logging.WithContext(ctx, e.logger)

	opts := library.ListOptions{RequireWatched: e.requireWatched}
	checkpoint, ok, err := e.store.Checkpoint(ctx, section.Key)
	if err != nil {
		return 0, fmt.Errorf("section %q: %w", section.Title, err)
	}
	if ok {
		opts.MinLastModified = &checkpoint
	}

	items, err := e.lib.ListItems(ctx, section, opts)
	if err != nil {
		logging.ErrorWithContext(logger, "section sync failed", "sync_section_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check plex server reachability and token"),
		)
		return 0, fmt.Errorf("section %q: %w", section.Title, err)
	}

	written, err := e.emit(ctx, items)
	if err != nil {
		return written, fmt.Errorf("section %q: %w", section.Title, err)
	}
	if err := e.store.SetCheckpoint(ctx, section.Key, start); err != nil {
		return written, fmt.Errorf("section %q: %w", section.Title, err)
	}
	logger.Info("section synced",
		logging.Int("records", written),
		logging.Bool("incremental", ok),
	)
	return written, nil
}

func (e *Engine) emit(ctx context.Context, items []*library.Media) (int, error) {
	written := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		record := BuildRecord(ctx, item, e.index, e.now())
		if err := e.sink.Write(ctx, record); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// RunPending syncs the rating keys queued by webhooks and acknowledges them.
// Keys that no section lists any more are acknowledged as well so the queue
// cannot wedge on deleted items.
func (e *Engine) RunPending(ctx context.Context) (Summary, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	pending, err := e.store.PendingKeys(ctx, e.pendingBatch)
	if err != nil {
		return Summary{}, err
	}
	if len(pending) == 0 {
		return Summary{}, nil
	}
	keys := make([]string, 0, len(pending))
	for _, item := range pending {
		keys = append(keys, item.RatingKey)
	}

	sections, err := e.lib.Sections()
	if err != nil {
		return Summary{}, err
	}

	var (
		mu      sync.Mutex
		summary = Summary{Sections: len(sections)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, section := range sections {
		g.Go(func() error {
			items, err := e.lib.ListItems(gctx, section, library.ListOptions{Keys: keys})
			if err != nil {
				return fmt.Errorf("section %q: %w", section.Title, err)
			}
			n, err := e.emit(gctx, items)
			mu.Lock()
			summary.Records += n
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	if err := e.store.AckPending(ctx, pending...); err != nil {
		return summary, err
	}
	summary.Acked = len(keys)
	e.logger.Info("pending sync finished",
		logging.Int("keys", len(keys)),
		logging.Int("records", summary.Records),
	)
	return summary, nil
}
