package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"anibridge-plex/internal/config"
	"anibridge-plex/internal/library"
	"anibridge-plex/internal/logging"
	"anibridge-plex/internal/state"
	"anibridge-plex/internal/syncer"
	"anibridge-plex/internal/webhook"
)

// ErrAlreadyRunning is returned by Start when another instance holds the lock.
var ErrAlreadyRunning = errors.New("another anibridge-plex daemon is already running")

// Provider is the library surface the daemon serves.
type Provider interface {
	ShouldSync(payload webhook.Payload) (bool, []string, error)
	Sections() ([]library.Section, error)
}

// Queue is the webhook queue.
type Queue interface {
	EnqueuePending(ctx context.Context, key, event string) error
	PendingKeys(ctx context.Context, limit int) ([]state.Pending, error)
}

// Syncer runs syncs on the poll loop.
type Syncer interface {
	Run(ctx context.Context) (syncer.Summary, error)
	RunPending(ctx context.Context) (syncer.Summary, error)
}

// Daemon is the webhook receiver plus poll loop.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider Provider
	queue    Queue
	syncer   Syncer

	lockPath string
	lock     *flock.Flock
	interval time.Duration
	trigger  chan struct{}

	running  atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	server   *http.Server
	listener net.Listener
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool   `json:"running"`
	Address      string `json:"address,omitempty"`
	LockFilePath string `json:"lock_file"`
	StatePath    string `json:"state_db"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, provider Provider, queue Queue, runner Syncer, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || provider == nil || queue == nil || runner == nil {
		return nil, errors.New("daemon requires config, provider, queue, and syncer")
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		provider: provider,
		queue:    queue,
		syncer:   runner,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		interval: time.Duration(cfg.Sync.PollInterval) * time.Second,
		trigger:  make(chan struct{}, 1),
	}, nil
}

// Start acquires the lock, starts listening, and launches the poll loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	listener, err := net.Listen("tcp", strings.TrimSpace(d.cfg.Server.Bind))
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("listen on %s: %w", d.cfg.Server.Bind, err)
	}
	d.listener = listener
	d.server = &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		if err := d.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(d.logger, "webhook server error", "http_serve_failed", logging.Error(err))
		}
	}()
	go func() {
		defer d.wg.Done()
		d.pollLoop(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("anibridge-plex daemon started",
		logging.String("address", listener.Addr().String()),
		logging.String("lock", d.lockPath),
		logging.Duration("poll_interval", d.interval),
	)
	return nil
}

// Stop shuts the listener and poll loop down and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = d.server.Shutdown(shutdownCtx)
		cancel()
	}
	d.wg.Wait()
	d.server = nil
	d.listener = nil

	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "next start may report the daemon as running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("anibridge-plex daemon stopped")
}

// Run starts the daemon and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	d.Stop()
	return nil
}

// Addr returns the bound listener address, empty when stopped.
func (d *Daemon) Addr() string {
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

// Status reports the daemon's runtime state.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		Address:      d.Addr(),
		LockFilePath: d.lockPath,
		StatePath:    d.cfg.StatePath(),
	}
}

// Trigger asks the poll loop to drain the webhook queue soon.
func (d *Daemon) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}
