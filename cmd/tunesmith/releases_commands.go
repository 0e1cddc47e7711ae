package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tunesmith/internal/browser"
	"tunesmith/internal/distribution"
	"tunesmith/internal/logging"
	"tunesmith/internal/notifications"
	"tunesmith/internal/records"
	"tunesmith/internal/retry"
	"tunesmith/internal/submission"
)

func newDistributeCommand(ctx *commandContext) *cobra.Command {
	var (
		title        string
		cover        string
		genre        string
		songwriter   string
		releaseDate  string
		instrumental bool
		prepareOnly  bool
		headful      bool
	)

	cmd := &cobra.Command{
		Use:   "distribute <song id|key>",
		Short: "Create a release from a completed song and upload it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.baseLogger(cmd)
			if err != nil {
				return err
			}
			runCtx := runContext(cmd)

			return ctx.withStore(func(store *records.Store) error {
				song, err := lookupSong(runCtx, store, args[0])
				if err != nil {
					return err
				}
				if song.State != submission.StateCompleted || song.FilePath == "" {
					return fmt.Errorf("song %s is %s; only completed songs can be released", song.Key, song.State)
				}

				r := distribution.NewRelease(song.Title, song.FilePath, cover)
				if t := strings.TrimSpace(title); t != "" {
					r.Title = t
				}
				r.SongKey = song.Key
				r.Songwriter = strings.TrimSpace(songwriter)
				r.Genre = genre
				if r.Genre == "" {
					r.Genre = song.Metadata.MusicStyle
				}
				r.Instrumental = instrumental || strings.TrimSpace(song.Lyrics) == ""
				if releaseDate != "" {
					day, err := time.Parse(time.DateOnly, releaseDate)
					if err != nil {
						return fmt.Errorf("invalid --release-date %q: want YYYY-MM-DD", releaseDate)
					}
					r.ReleaseDate = day
				}
				if err := store.NewRelease(runCtx, r); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Recorded release %d for %s\n", r.ID, song.Key)

				offline := distribution.New(nil, nil, distribution.SettingsFromConfig(cfg),
					distribution.WithRecorder(store),
					distribution.WithLogger(logger),
				)
				if err := offline.Prepare(runCtx, r); err != nil {
					if updateErr := store.UpdateRelease(runCtx, r); updateErr != nil {
						logger.Debug("could not save blocking problems", logging.Error(updateErr))
					}
					printBlocking(cmd.OutOrStdout(), r)
					return err
				}
				if prepareOnly {
					fmt.Fprintf(cmd.OutOrStdout(), "Release %d is ready; upload it with `releases upload %d`\n", r.ID, r.ID)
					return nil
				}
				return uploadReleases(cmd, ctx, store, []*distribution.Release{r}, headful)
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Release title (defaults to the song title)")
	cmd.Flags().StringVar(&cover, "cover", "", "Cover art image (PNG or JPEG)")
	cmd.Flags().StringVar(&genre, "genre", "", "Genre (defaults to the song's style, then distributor.default_genre)")
	cmd.Flags().StringVar(&songwriter, "songwriter", "", "Songwriter's legal name, first and last")
	cmd.Flags().StringVar(&releaseDate, "release-date", "", "Release date as YYYY-MM-DD")
	cmd.Flags().BoolVar(&instrumental, "instrumental", false, "Mark the track as instrumental")
	cmd.Flags().BoolVar(&prepareOnly, "prepare-only", false, "Validate and stop at ready without uploading")
	cmd.Flags().BoolVar(&headful, "headful", false, "Show the browser window")
	_ = cmd.MarkFlagRequired("cover")
	return cmd
}

func printBlocking(out io.Writer, r *distribution.Release) {
	if len(r.Blocking) == 0 {
		return
	}
	fmt.Fprintf(out, "Release %d is not ready:\n", r.ID)
	for _, problem := range r.Blocking {
		fmt.Fprintf(out, "  - %s\n", problem)
	}
}

// uploadReleases signs in once and uploads each Ready release.
func uploadReleases(cmd *cobra.Command, ctx *commandContext, store *records.Store, releases []*distribution.Release, headful bool) error {
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
	recoverStranded(runCtx, store, logger)
	reg, err := ctx.registry(runCtx, logger)
	if err != nil {
		return err
	}
	session, err := openBrowser(runCtx, sessionOptions(cfg, browser.SiteDistributor, browser.SiteDistributor, cfg.Browser.Headless && !headful, reg, logger))
	if err != nil {
		return err
	}
	defer session.Close()

	notifier := notifications.NewService(cfg)
	pipeline := distribution.New(session, retry.FromConfig(cfg.Retry, logger), distribution.SettingsFromConfig(cfg),
		distribution.WithRecorder(store),
		distribution.WithLogger(logger),
		distribution.WithChallengeHandler(challengeHandler(runCtx, cmd.ErrOrStderr(), notifier, logger)),
	)

	uploadErr := pipeline.UploadAll(runCtx, releases)
	for _, r := range releases {
		if r.Status == distribution.StatusSubmitted {
			if err := notifier.NotifyReleaseSubmitted(context.WithoutCancel(runCtx), r.Title); err != nil {
				logger.Debug("release notification failed", logging.Error(err))
			}
		}
	}
	printReleases(cmd, releases)
	return uploadErr
}

// challengeHandler announces a pending distributor login on the terminal and
// through notifications. It returns immediately; the pipeline does the
// waiting.
func challengeHandler(ctx context.Context, out io.Writer, notifier notifications.Service, logger *slog.Logger) func(*distribution.Challenge) {
	return func(c *distribution.Challenge) {
		fmt.Fprintf(out, "Sign in to %s at %s in the browser window (waiting until %s)\n",
			c.Site, c.LoginURL, c.Deadline().Local().Format(time.TimeOnly))
		go func() {
			if err := notifier.NotifyLoginRequired(context.WithoutCancel(ctx), c.Site, c.LoginURL, c.Deadline()); err != nil {
				logger.Debug("login notification failed", logging.Error(err))
			}
		}()
		go func() {
			select {
			case <-c.Done():
				if c.Resolved() {
					fmt.Fprintln(out, "Login detected")
				}
			case <-ctx.Done():
			}
		}()
	}
}

func newReleasesCommand(ctx *commandContext) *cobra.Command {
	releasesCmd := &cobra.Command{
		Use:   "releases",
		Short: "Inspect and manage releases",
	}

	releasesCmd.AddCommand(newReleasesListCommand(ctx))
	releasesCmd.AddCommand(newReleasesShowCommand(ctx))
	releasesCmd.AddCommand(newReleasesUploadCommand(ctx))
	releasesCmd.AddCommand(newReleasesLiveCommand(ctx))
	releasesCmd.AddCommand(newReleasesResetCommand(ctx))

	return releasesCmd
}

func printReleases(cmd *cobra.Command, releases []*distribution.Release) {
	colorize := shouldColorize(cmd.OutOrStdout())
	rows := make([][]string, len(releases))
	for i, r := range releases {
		detail := r.ErrorMessage
		if detail == "" && len(r.Blocking) > 0 {
			detail = strings.Join(r.Blocking, "; ")
		}
		rows[i] = []string{
			strconv.FormatInt(r.ID, 10),
			truncate(r.Title, 32),
			orDash(r.SongKey),
			paint(string(r.Status), statusKindColor(releaseStatusKind(r.Status)), colorize),
			orDash(r.Genre),
			formatTime(r.SubmittedAt),
			orDash(truncate(detail, 60)),
		}
	}
	fmt.Fprint(cmd.OutOrStdout(), renderTable(
		[]string{"ID", "Title", "Song", "Status", "Genre", "Submitted", "Detail"},
		rows,
		[]columnAlignment{alignRight},
	))
}

func newReleasesListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List releases",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []distribution.Status
			for _, raw := range statusFilter {
				for _, part := range strings.Split(raw, ",") {
					if strings.TrimSpace(part) == "" {
						continue
					}
					status, ok := distribution.ParseStatus(part)
					if !ok {
						return fmt.Errorf("unknown release status %q", part)
					}
					statuses = append(statuses, status)
				}
			}
			return ctx.withStore(func(store *records.Store) error {
				releases, err := store.ListReleases(runContext(cmd), statuses...)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, releases)
				}
				if len(releases) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No releases recorded")
					return nil
				}
				printReleases(cmd, releases)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFilter, "status", "s", nil, "Only show releases with these statuses")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print releases as JSON")
	return cmd
}

func newReleasesShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one release with its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRelease(cmd, ctx, args[0], func(store *records.Store, r *distribution.Release) error {
				if jsonOut {
					return writeJSON(cmd, r)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Release %d  %s\n", r.ID, r.Title)
				fmt.Fprintf(out, "  Status:       %s\n", r.Status)
				fmt.Fprintf(out, "  Song:         %s\n", orDash(r.SongKey))
				fmt.Fprintf(out, "  Artist:       %s\n", orDash(r.Artist))
				fmt.Fprintf(out, "  Songwriter:   %s\n", orDash(r.Songwriter))
				fmt.Fprintf(out, "  Genre:        %s\n", orDash(r.Genre))
				fmt.Fprintf(out, "  Language:     %s\n", orDash(r.Language))
				fmt.Fprintf(out, "  Instrumental: %s\n", yesNo(r.Instrumental))
				fmt.Fprintf(out, "  Audio:        %s\n", orDash(r.AudioPath))
				fmt.Fprintf(out, "  Cover art:    %s\n", orDash(r.CoverArtPath))
				if !r.ReleaseDate.IsZero() {
					fmt.Fprintf(out, "  Release date: %s\n", r.ReleaseDate.Format(time.DateOnly))
				}
				if r.ErrorMessage != "" {
					fmt.Fprintf(out, "  Error:        %s: %s\n", orDash(r.Category), r.ErrorMessage)
				}
				printBlocking(out, r)
				if len(r.Transitions) > 0 {
					rows := make([][]string, len(r.Transitions))
					for i, t := range r.Transitions {
						rows[i] = []string{formatTime(t.At), string(t.From), string(t.To), orDash(t.Category), orDash(truncate(t.Reason, 60))}
					}
					fmt.Fprintln(out)
					fmt.Fprint(out, renderTable([]string{"At", "From", "To", "Category", "Reason"}, rows, nil))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the release as JSON")
	return cmd
}

func newReleasesUploadCommand(ctx *commandContext) *cobra.Command {
	var headful bool

	cmd := &cobra.Command{
		Use:   "upload [id...]",
		Short: "Upload ready releases (all of them when no id is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *records.Store) error {
				runCtx := runContext(cmd)
				var releases []*distribution.Release
				if len(args) == 0 {
					var err error
					if releases, err = store.ListReleases(runCtx, distribution.StatusReady); err != nil {
						return err
					}
				}
				for _, arg := range args {
					id, err := parseReleaseID(arg)
					if err != nil {
						return err
					}
					r, err := store.GetRelease(runCtx, id)
					if err != nil {
						return releaseLookupError(id, err)
					}
					if r.Status != distribution.StatusReady {
						return fmt.Errorf("release %d is %s, want ready", r.ID, r.Status)
					}
					releases = append(releases, r)
				}
				if len(releases) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No releases ready to upload")
					return nil
				}
				return uploadReleases(cmd, ctx, store, releases, headful)
			})
		},
	}
	cmd.Flags().BoolVar(&headful, "headful", false, "Show the browser window")
	return cmd
}

func newReleasesLiveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "live <id>",
		Short: "Record that a submitted release is live",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOfflinePipeline(cmd, ctx, args[0], func(_ *records.Store, p *distribution.Pipeline, r *distribution.Release) error {
				if err := p.MarkLive(runContext(cmd), r); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Release %d is live\n", r.ID)
				return nil
			})
		},
	}
}

func newReleasesResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <id>",
		Short: "Return a failed release to draft and prepare it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOfflinePipeline(cmd, ctx, args[0], func(store *records.Store, p *distribution.Pipeline, r *distribution.Release) error {
				runCtx := runContext(cmd)
				if err := p.Reset(runCtx, r); err != nil {
					return err
				}
				if err := p.Prepare(runCtx, r); err != nil {
					if updateErr := store.UpdateRelease(runCtx, r); updateErr != nil {
						return errors.Join(err, updateErr)
					}
					printBlocking(cmd.OutOrStdout(), r)
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Release %d is %s\n", r.ID, r.Status)
				return nil
			})
		},
	}
}

func withRelease(cmd *cobra.Command, ctx *commandContext, raw string, fn func(*records.Store, *distribution.Release) error) error {
	id, err := parseReleaseID(raw)
	if err != nil {
		return err
	}
	return ctx.withStore(func(store *records.Store) error {
		r, err := store.GetRelease(runContext(cmd), id)
		if err != nil {
			return releaseLookupError(id, err)
		}
		return fn(store, r)
	})
}

// withOfflinePipeline runs fn with a pipeline that has no browser session,
// for status changes that never touch the distributor.
func withOfflinePipeline(cmd *cobra.Command, ctx *commandContext, raw string, fn func(*records.Store, *distribution.Pipeline, *distribution.Release) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.baseLogger(cmd)
	if err != nil {
		return err
	}
	return withRelease(cmd, ctx, raw, func(store *records.Store, r *distribution.Release) error {
		p := distribution.New(nil, nil, distribution.SettingsFromConfig(cfg),
			distribution.WithRecorder(store),
			distribution.WithLogger(logger),
		)
		return fn(store, p, r)
	})
}

func releaseLookupError(id int64, err error) error {
	if errors.Is(err, records.ErrNotFound) {
		return fmt.Errorf("release %d not found", id)
	}
	return err
}
