package main

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"tunesmith/internal/browser"
	"tunesmith/internal/config"
	"tunesmith/internal/logging"
	"tunesmith/internal/selectors"
)

func newSelectorsCommand(ctx *commandContext) *cobra.Command {
	selectorsCmd := &cobra.Command{
		Use:   "selectors",
		Short: "Inspect the learned selector order",
	}
	selectorsCmd.AddCommand(newSelectorsListCommand(ctx))
	selectorsCmd.AddCommand(newSelectorsResetCommand(ctx))
	selectorsCmd.AddCommand(newSelectorsCheckCommand(ctx))
	return selectorsCmd
}

func newSelectorsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list [group...]",
		Short: "Show candidates per group, most recently successful first",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := runContext(cmd)
			reg, err := ctx.registry(runCtx, logging.NewNop())
			if err != nil {
				return err
			}
			groups := reg.Groups()
			if len(args) > 0 {
				for _, name := range args {
					if !slices.Contains(groups, name) {
						return fmt.Errorf("unknown selector group %q", name)
					}
				}
				groups = args
			}
			snapshot := reg.Snapshot()
			if jsonOut {
				selected := make(map[string][]string, len(groups))
				for _, name := range groups {
					selected[name] = snapshot[name]
				}
				return writeJSON(cmd, selected)
			}
			var rows [][]string
			for _, name := range groups {
				for rank, candidate := range snapshot[name] {
					label := ""
					if rank == 0 {
						label = name
					}
					rows = append(rows, []string{label, strconv.Itoa(rank + 1), candidate})
				}
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"Group", "#", "Candidate"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the registry as JSON")
	return cmd
}

func newSelectorsResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <group>...",
		Short: "Restore the built-in candidate order for groups",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := runContext(cmd)
			logger, err := ctx.baseLogger(cmd)
			if err != nil {
				return err
			}
			reg, err := ctx.registry(runCtx, logger)
			if err != nil {
				return err
			}
			groups := reg.Groups()
			for _, name := range args {
				if !slices.Contains(groups, name) {
					return fmt.Errorf("unknown selector group %q", name)
				}
			}
			for _, name := range args {
				reg.Reset(runCtx, name)
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %s\n", name)
			}
			return nil
		},
	}
}

// healthChecks lists the groups each site must still expose. Generator
// checks run on the public create and home pages; distributor checks need
// a profile that is already signed in.
func healthChecks(cfg *config.Config, site string) []browser.HealthCheck {
	var plan []browser.HealthCheck
	add := func(url string, groups ...string) {
		if url == "" {
			return
		}
		for _, group := range groups {
			plan = append(plan, browser.HealthCheck{Group: group, URL: url})
		}
	}
	switch site {
	case browser.SiteGenerator:
		add(cfg.Generator.CreateURL, selectors.PromptInput, selectors.LyricsToggle, selectors.GenerateButton)
		add(cfg.Generator.HomeURL, selectors.HomeNav, selectors.ProjectCard)
	case browser.SiteDistributor:
		add(cfg.Distributor.UploadURL,
			selectors.DKArtist, selectors.DKTitle, selectors.DKGenre, selectors.DKLanguage,
			selectors.DKAudioUpload, selectors.DKArtworkUpload, selectors.DKSubmit,
		)
	}
	return plan
}

func newSelectorsCheckCommand(ctx *commandContext) *cobra.Command {
	var (
		headful bool
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:       "check [generator|distributor]",
		Short:     "Check that every selector group still resolves on the live sites",
		Long:      "Open each site with its saved profile and look up every selector group without signing in.\nResults are not recorded, so learned orderings stay as they are.",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{browser.SiteGenerator, browser.SiteDistributor},
		RunE: func(cmd *cobra.Command, args []string) error {
			sites := []string{browser.SiteGenerator, browser.SiteDistributor}
			if len(args) == 1 {
				if !slices.Contains(sites, args[0]) {
					return fmt.Errorf("unknown site %q (want %s or %s)", args[0], browser.SiteGenerator, browser.SiteDistributor)
				}
				sites = args
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.baseLogger(cmd)
			if err != nil {
				return err
			}
			unlock, err := ctx.acquireRunLock()
			if err != nil {
				return err
			}
			defer unlock()

			runCtx := runContext(cmd)
			reg, err := ctx.registry(runCtx, logger)
			if err != nil {
				return err
			}
			headless := cfg.Browser.Headless && !headful
			var results []browser.HealthResult
			for _, site := range sites {
				session, err := openBrowser(runCtx, sessionOptions(cfg, site, site, headless, reg, logger))
				if err != nil {
					results = append(results, browser.HealthResult{Site: site, Group: "(browser)", Error: err.Error()})
					continue
				}
				results = append(results, browser.CheckHealth(runCtx, session, healthChecks(cfg, site))...)
				_ = session.Close()
			}

			failed := 0
			for _, r := range results {
				if !r.OK {
					failed++
				}
			}
			if jsonOut {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				printHealth(cmd, results)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d selector checks failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&headful, "headful", false, "Show the browser windows")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print results as JSON")
	return cmd
}

func printHealth(cmd *cobra.Command, results []browser.HealthResult) {
	colorize := shouldColorize(cmd.OutOrStdout())
	rows := make([][]string, len(results))
	for i, r := range results {
		status, kind, detail := "PASS", statusOK, r.Locator
		if !r.OK {
			status, kind, detail = "FAIL", statusError, r.Error
		}
		rows[i] = []string{r.Site, r.Group, paint(status, statusKindColor(kind), colorize), orDash(truncate(detail, 60))}
	}
	fmt.Fprint(cmd.OutOrStdout(), renderTable(
		[]string{"Site", "Group", "Result", "Locator / Error"},
		rows,
		nil,
	))
}
