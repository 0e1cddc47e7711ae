package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"tunesmith/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		raw    bool
		filter logs.Filter
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the tunesmith log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, "tunesmith.log")
			out := cmd.OutOrStdout()
			runCtx := cmd.Context()

			emit := func(batch []string) {
				for _, line := range batch {
					if raw {
						fmt.Fprintln(out, line)
						continue
					}
					entry, ok := logs.ParseEntry(line)
					if !ok || !filter.Match(entry) {
						continue
					}
					fmt.Fprintln(out, entry.Format())
				}
			}

			result, err := logs.Tail(runCtx, path, logs.TailOptions{Offset: -1, Limit: lines})
			if err != nil {
				return err
			}
			emit(result.Lines)
			for follow {
				result, err = logs.Tail(runCtx, path, logs.TailOptions{Offset: result.Offset, Follow: true, Wait: time.Minute})
				if err != nil {
					if runCtx.Err() != nil {
						return nil
					}
					return err
				}
				emit(result.Lines)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to read")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the JSON lines unfiltered")
	cmd.Flags().StringVar(&filter.ItemKey, "item", "", "Only lines for this song or release key")
	cmd.Flags().StringVar(&filter.Component, "component", "", "Only lines from this component")
	cmd.Flags().StringVar(&filter.MinLevel, "level", "", "Minimum level (debug, info, warn, error)")
	cmd.Flags().StringVar(&filter.Search, "grep", "", "Only lines whose message contains this text")
	return cmd
}
