package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"anibridge-plex/internal/library"
)

func newUserCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Show the resolved Plex user and server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *session) error {
				user := s.provider.User()
				admin, err := s.provider.IsAdmin()
				if err != nil {
					return err
				}
				server := s.provider.Server()
				if jsonOut {
					return writeJSON(cmd, map[string]any{
						"key":            user.Key,
						"title":          user.Title,
						"admin":          admin,
						"server":         server.MachineIdentifier,
						"server_version": server.Version,
						"on_deck_window": s.provider.OnDeckWindow().String(),
					})
				}
				rows := [][]string{
					{"User", user.Title},
					{"Key", user.Key},
					{"Admin", yesNo(admin)},
					{"Server", server.MachineIdentifier},
					{"Version", server.Version},
					{"On deck window", s.provider.OnDeckWindow().String()},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderKeyValue(rows))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newSectionsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "sections",
		Short: "List the movie and show sections that will be synced",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *session) error {
				sections, err := s.provider.Sections()
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, sections)
				}
				if len(sections) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sections match the configuration")
					return nil
				}
				rows := make([][]string, 0, len(sections))
				for _, section := range sections {
					rows = append(rows, []string{section.Key, section.Title, section.Type})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Key", "Title", "Type"}, rows, []columnAlignment{alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

type itemSummary struct {
	Key       string            `json:"key"`
	Title     string            `json:"title"`
	Kind      string            `json:"kind"`
	ViewCount int               `json:"view_count"`
	Rating    *int              `json:"rating,omitempty"`
	IDs       map[string]string `json:"ids"`
}

func newItemsCommand(ctx *commandContext) *cobra.Command {
	var (
		since   string
		watched bool
		keys    []string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "items <section>",
		Short: "List items in a section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := library.ListOptions{RequireWatched: watched, Keys: keys}
			if strings.TrimSpace(since) != "" {
				parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(since))
				if err != nil {
					return fmt.Errorf("invalid --since value %q: %w", since, err)
				}
				opts.MinLastModified = &parsed
			}

			return ctx.withSession(cmd, func(s *session) error {
				section, err := resolveSection(s, args[0])
				if err != nil {
					return err
				}
				items, err := s.provider.ListItems(cmd.Context(), section, opts)
				if err != nil {
					return err
				}

				summaries := make([]itemSummary, 0, len(items))
				for _, item := range items {
					summaries = append(summaries, itemSummary{
						Key:       item.Key(),
						Title:     item.Title(),
						Kind:      string(item.Kind()),
						ViewCount: item.ViewCount(),
						Rating:    item.UserRating(),
						IDs:       item.IDs(),
					})
				}
				if jsonOut {
					return writeJSON(cmd, summaries)
				}
				if len(summaries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No items matched")
					return nil
				}
				rows := make([][]string, 0, len(summaries))
				for _, item := range summaries {
					rows = append(rows, []string{
						item.Key,
						item.Title,
						item.Kind,
						strconv.Itoa(item.ViewCount),
						formatRating(item.Rating),
						formatIDs(item.IDs),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Key", "Title", "Kind", "Views", "Rating", "IDs"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "Only items with activity at or after this RFC3339 time")
	cmd.Flags().BoolVar(&watched, "watched", false, "Only items with view or rating activity")
	cmd.Flags().StringSliceVar(&keys, "key", nil, "Restrict to these rating keys (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func formatRating(rating *int) string {
	if rating == nil {
		return "-"
	}
	return strconv.Itoa(*rating)
}

func formatIDs(ids map[string]string) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(ids))
	for ns, id := range ids {
		parts = append(parts, ns+":"+id)
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
