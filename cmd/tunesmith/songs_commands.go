package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tunesmith/internal/records"
	"tunesmith/internal/submission"
)

func newSongsCommand(ctx *commandContext) *cobra.Command {
	songsCmd := &cobra.Command{
		Use:   "songs",
		Short: "Inspect and manage recorded songs",
	}

	songsCmd.AddCommand(newSongsListCommand(ctx))
	songsCmd.AddCommand(newSongsShowCommand(ctx))
	songsCmd.AddCommand(newSongsStatsCommand(ctx))
	songsCmd.AddCommand(newSongsRetryCommand(ctx))
	songsCmd.AddCommand(newSongsRedownloadCommand(ctx))
	songsCmd.AddCommand(newSongsRemoveCommand(ctx))

	return songsCmd
}

func parseStates(values []string) ([]submission.State, error) {
	states := make([]submission.State, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			state := submission.State(part)
			if !knownState(state) {
				return nil, fmt.Errorf("unknown song state %q", part)
			}
			states = append(states, state)
		}
	}
	return states, nil
}

func knownState(state submission.State) bool {
	switch state {
	case submission.StateDraft, submission.StateSubmitting, submission.StateAwaitingIdentifier,
		submission.StatePolling, submission.StateResolved, submission.StateDownloading,
		submission.StateVerifying, submission.StateCompleted, submission.StateFailed:
		return true
	}
	return false
}

func newSongsListCommand(ctx *commandContext) *cobra.Command {
	var stateFilter []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List songs",
		RunE: func(cmd *cobra.Command, args []string) error {
			states, err := parseStates(stateFilter)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *records.Store) error {
				songs, err := store.ListSongs(runContext(cmd), states...)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, songs)
				}
				if len(songs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No songs recorded")
					return nil
				}
				colorize := shouldColorize(cmd.OutOrStdout())
				rows := make([][]string, len(songs))
				for i, song := range songs {
					detail := song.FilePath
					if song.State == submission.StateFailed {
						detail = song.FailureCategory + ": " + song.FailureDetail
					}
					rows[i] = []string{
						strconv.FormatInt(song.ID, 10),
						song.Key,
						truncate(song.Title, 32),
						paint(string(song.State), statusKindColor(songStateKind(song.State)), colorize),
						strconv.Itoa(song.Version),
						formatTime(song.UpdatedAt),
						orDash(truncate(detail, 60)),
					}
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Key", "Title", "State", "Ver", "Updated", "File / Failure"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&stateFilter, "state", "s", nil, "Only show songs in these states")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print songs as JSON")
	return cmd
}

func newSongsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <id|key>",
		Short: "Show one song with its transition history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *records.Store) error {
				song, err := lookupSong(runContext(cmd), store, args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, song)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Song %d  %s\n", song.ID, song.Key)
				fmt.Fprintf(out, "  Title:        %s\n", song.Title)
				fmt.Fprintf(out, "  State:        %s\n", song.State)
				fmt.Fprintf(out, "  Prompt:       %s\n", orDash(song.Prompt))
				fmt.Fprintf(out, "  Lyrics:       %s\n", yesNo(strings.TrimSpace(song.Lyrics) != ""))
				fmt.Fprintf(out, "  Task ID:      %s\n", orDash(song.TaskID))
				fmt.Fprintf(out, "  Project ID:   %s\n", orDash(song.ProjectID))
				fmt.Fprintf(out, "  Conversions:  %s / %s\n", orDash(song.ConversionID1), orDash(song.ConversionID2))
				fmt.Fprintf(out, "  Style:        %s\n", orDash(song.Metadata.MusicStyle))
				fmt.Fprintf(out, "  File:         %s (%s)\n", orDash(song.FilePath), formatBytes(song.FileSize))
				fmt.Fprintf(out, "  Retries:      %d\n", song.Retries)
				if song.FailureCategory != "" {
					fmt.Fprintf(out, "  Failure:      %s: %s\n", song.FailureCategory, song.FailureDetail)
				}
				if len(song.Transitions) == 0 {
					return nil
				}
				rows := make([][]string, len(song.Transitions))
				for i, t := range song.Transitions {
					rows[i] = []string{formatTime(t.At), string(t.From), string(t.To), orDash(t.Category), orDash(truncate(t.Reason, 60))}
				}
				fmt.Fprintln(out)
				fmt.Fprint(out, renderTable([]string{"At", "From", "To", "Category", "Reason"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the song as JSON")
	return cmd
}

func newSongsStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count songs by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *records.Store) error {
				stats, err := store.SongStats(runContext(cmd))
				if err != nil {
					return err
				}
				if len(stats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No songs recorded")
					return nil
				}
				states := make([]string, 0, len(stats))
				for state := range stats {
					states = append(states, string(state))
				}
				sort.Strings(states)
				rows := make([][]string, len(states))
				for i, state := range states {
					rows[i] = []string{state, strconv.Itoa(stats[submission.State(state)])}
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newSongsRetryCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "retry <id|key>...",
		Short: "Run failed or draft songs again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *records.Store) error {
				items, err := loadItems(cmd, store, args, func(song *records.Song) error {
					if song.State == submission.StateCompleted {
						return fmt.Errorf("song %s is completed; use `songs redownload`", song.Key)
					}
					return nil
				})
				if err != nil {
					return err
				}
				return runSongs(cmd, ctx, store, items, opts)
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

func newSongsRedownloadCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "redownload <id|key>...",
		Short: "Fetch the audio of completed songs again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *records.Store) error {
				items, err := loadItems(cmd, store, args, func(song *records.Song) error {
					if song.State != submission.StateCompleted {
						return fmt.Errorf("song %s is %s, want completed", song.Key, song.State)
					}
					song.Redownload = true
					return nil
				})
				if err != nil {
					return err
				}
				return runSongs(cmd, ctx, store, items, opts)
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

func loadItems(cmd *cobra.Command, store *records.Store, refs []string, check func(*records.Song) error) ([]*submission.WorkItem, error) {
	items := make([]*submission.WorkItem, 0, len(refs))
	for _, ref := range refs {
		song, err := lookupSong(runContext(cmd), store, ref)
		if err != nil {
			return nil, err
		}
		if err := check(song); err != nil {
			return nil, err
		}
		items = append(items, &song.WorkItem)
	}
	return items, nil
}

func newSongsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id|key>",
		Short: "Delete a song record (the audio file is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *records.Store) error {
				song, err := lookupSong(runContext(cmd), store, args[0])
				if err != nil {
					return err
				}
				if !song.State.Terminal() && song.State != submission.StateDraft {
					return fmt.Errorf("song %s is %s; wait for the run to finish", song.Key, song.State)
				}
				if err := store.DeleteSong(runContext(cmd), song.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed song %d (%s)\n", song.ID, song.Key)
				return nil
			})
		},
	}
}
