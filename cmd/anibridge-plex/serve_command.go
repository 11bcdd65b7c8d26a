package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"anibridge-plex/internal/daemon"
	"anibridge-plex/internal/logging"
	"anibridge-plex/internal/preflight"
	"anibridge-plex/internal/syncer"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		output   string
		mappings string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook receiver and poll loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runServe(signalCtx, cmd, ctx, output, mappings)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Record file (default <state_dir>/records.jsonl)")
	cmd.Flags().StringVar(&mappings, "mappings", "", "Mapping file used to resolve candidates")
	return cmd
}

func runServe(runCtx context.Context, cmd *cobra.Command, ctx *commandContext, output, mappings string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if results := preflight.RunAll(runCtx, cfg); preflight.Failed(results) {
		for _, r := range results {
			if !r.Passed {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", r.Name, r.Detail)
			}
		}
		return errors.New("preflight checks failed; run `anibridge-plex check` for details")
	}

	index, err := loadIndex(mappings)
	if err != nil {
		return err
	}
	s, err := ctx.openSession(runCtx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	if output == "" {
		output = filepath.Join(cfg.Paths.StateDir, "records.jsonl")
	}
	out, closeOut, err := openOutput(cmd, output)
	if err != nil {
		return err
	}
	defer closeOut()

	engine, err := newEngine(s, syncer.NewJSONLinesSink(out), index)
	if err != nil {
		return err
	}
	d, err := daemon.New(cfg, s.provider, s.store, engine, s.logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Run(runCtx); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			logging.ErrorWithContext(s.logger, "daemon already running", "daemon_lock_held",
				logging.String("lock", cfg.LockPath()),
			)
		}
		return err
	}
	return nil
}
