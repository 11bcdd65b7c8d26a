package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"anibridge-plex/internal/config"
	"anibridge-plex/internal/logging"
	"anibridge-plex/internal/mapping"
	"anibridge-plex/internal/syncer"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var (
		pendingOnly bool
		output      string
		mappings    string
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass and write records as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := loadIndex(mappings)
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, func(s *session) error {
				out, closeOut, err := openOutput(cmd, output)
				if err != nil {
					return err
				}
				defer closeOut()

				engine, err := newEngine(s, syncer.NewJSONLinesSink(out), index)
				if err != nil {
					return err
				}

				pending, err := engine.RunPending(cmd.Context())
				if err != nil {
					return err
				}
				summary := pending
				if !pendingOnly {
					full, err := engine.Run(cmd.Context())
					if err != nil {
						return err
					}
					summary.Sections = full.Sections
					summary.Records += full.Records
				}
				s.logger.Info("sync completed",
					logging.Int("sections", summary.Sections),
					logging.Int("records", summary.Records),
					logging.Int("acked", summary.Acked),
				)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&pendingOnly, "pending-only", false, "Only drain keys queued by webhooks")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write records to this file instead of stdout")
	cmd.Flags().StringVar(&mappings, "mappings", "", "Mapping file used to resolve candidates")
	return cmd
}

func newEngine(s *session, sink syncer.Sink, index mapping.Index) (*syncer.Engine, error) {
	opts := []syncer.Option{
		syncer.WithConcurrency(s.cfg.Sync.Concurrency),
		syncer.WithRequireWatched(s.cfg.Sync.RequireWatched),
		syncer.WithPendingBatch(s.cfg.Sync.PendingBatch),
		syncer.WithLogger(s.logger),
	}
	if index != nil {
		opts = append(opts, syncer.WithIndex(index))
	}
	return syncer.New(s.provider, s.store, sink, opts...)
}

// openOutput resolves the record destination. An empty path means stdout.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.OpenFile(expanded, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open output: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
