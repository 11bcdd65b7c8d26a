package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"anibridge-plex/internal/syncer"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOut  bool
		mappings string
	)
	cmd := &cobra.Command{
		Use:   "show <section> <ratingKey>",
		Short: "Show the sync record for one item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := loadIndex(mappings)
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, func(s *session) error {
				section, err := resolveSection(s, args[0])
				if err != nil {
					return err
				}
				item, err := s.provider.Item(cmd.Context(), section, args[1])
				if err != nil {
					return err
				}
				record := syncer.BuildRecord(cmd.Context(), item, index, time.Now())
				if jsonOut {
					return writeJSON(cmd, record)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderRecord(record))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	cmd.Flags().StringVar(&mappings, "mappings", "", "Mapping file used to resolve candidates")
	return cmd
}

func renderRecord(record syncer.Record) string {
	var b strings.Builder

	ordering := string(record.Ordering)
	if ordering == "" {
		ordering = "-"
	}
	match := "-"
	if record.Match != nil {
		match = fmt.Sprintf("%s:%s -> %s", record.Match.Candidate.Namespace, record.Match.Candidate.ID,
			strings.Join(record.Match.Targets, ", "))
	}
	rows := [][]string{
		{"Key", record.Key},
		{"Title", record.Title},
		{"Kind", string(record.Kind)},
		{"Section", record.Section},
		{"IDs", formatIDs(record.IDs)},
		{"Rating", formatRating(record.Rating)},
		{"Views", strconv.Itoa(record.ViewCount)},
		{"Watching", yesNo(record.OnWatching)},
		{"Watchlist", yesNo(record.OnWatchlist)},
		{"Ordering", ordering},
		{"Match", match},
	}
	if record.Review != "" {
		rows = append(rows, []string{"Review", record.Review})
	}
	b.WriteString(renderKeyValue(rows))
	b.WriteString("\n")

	if len(record.Candidates) > 0 {
		candidateRows := make([][]string, 0, len(record.Candidates))
		for _, c := range record.Candidates {
			candidateRows = append(candidateRows, []string{c.Namespace, c.ID, yesNo(c.Fallback)})
		}
		b.WriteString(renderTable([]string{"Namespace", "ID", "Fallback"}, candidateRows, nil))
		b.WriteString("\n")
	}

	if len(record.History) > 0 {
		historyRows := make([][]string, 0, len(record.History))
		for _, h := range record.History {
			historyRows = append(historyRows, []string{h.LibraryKey, h.ViewedAt.UTC().Format(time.RFC3339)})
		}
		b.WriteString(renderTable([]string{"Key", "Viewed"}, historyRows, []columnAlignment{alignRight}))
		b.WriteString("\n")
	}
	return b.String()
}
