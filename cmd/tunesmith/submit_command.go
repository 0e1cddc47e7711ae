package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tunesmith/internal/browser"
	"tunesmith/internal/config"
	"tunesmith/internal/fetch"
	"tunesmith/internal/housekeeping"
	"tunesmith/internal/logging"
	"tunesmith/internal/notifications"
	"tunesmith/internal/records"
	"tunesmith/internal/retry"
	"tunesmith/internal/selectors"
	"tunesmith/internal/services"
	"tunesmith/internal/submission"
	"tunesmith/internal/workflow"
)

type runOptions struct {
	workers int
	headful bool
	jsonOut bool
}

func (o *runOptions) bind(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&o.workers, "workers", "w", 0, "Concurrent songs (defaults to workflow.workers)")
	cmd.Flags().BoolVar(&o.headful, "headful", false, "Show the browser windows")
	cmd.Flags().BoolVar(&o.jsonOut, "json", false, "Print results as JSON")
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		item       submission.WorkItem
		lyricsFile string
		pending    bool
		opts       runOptions
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Generate a song and download it",
		Long: `Submit a new song to the generator, wait for it to finish and download the
audio. With --task-id or --project-id the song is already known to the
generator and is only polled and downloaded.

With --pending every draft or failed song in the record store is run
instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if pending {
				return runStoredSongs(cmd, ctx, opts, submission.StateDraft, submission.StateFailed)
			}

			if lyricsFile != "" {
				data, err := os.ReadFile(lyricsFile)
				if err != nil {
					return fmt.Errorf("read lyrics: %w", err)
				}
				item.Lyrics = string(data)
			}
			item.Title = strings.TrimSpace(item.Title)
			if item.Title == "" {
				return errors.New("--title is required")
			}
			if strings.TrimSpace(item.Prompt) == "" && !item.Submitted() {
				return errors.New("--prompt is required unless --task-id or --project-id is given")
			}
			if item.DestRoot == "" {
				item.DestRoot = cfg.Paths.DownloadDir
			}

			return ctx.withStore(func(store *records.Store) error {
				song, err := store.NewSong(runContext(cmd), &item)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Recorded song %d (%s)\n", song.ID, song.Key)
				return runSongs(cmd, ctx, store, []*submission.WorkItem{&song.WorkItem}, opts)
			})
		},
	}

	cmd.Flags().StringVarP(&item.Title, "title", "t", "", "Song title")
	cmd.Flags().StringVarP(&item.Prompt, "prompt", "p", "", "Style prompt sent to the generator")
	cmd.Flags().StringVar(&item.Lyrics, "lyrics", "", "Lyrics text")
	cmd.Flags().StringVar(&lyricsFile, "lyrics-file", "", "Read lyrics from a file")
	cmd.Flags().StringVar(&item.TaskID, "task-id", "", "Known generator task id")
	cmd.Flags().StringVar(&item.ProjectID, "project-id", "", "Known generator project id")
	cmd.Flags().Int64Var(&item.ExpectedSize, "expected-size", 0, "Declared artifact size in bytes")
	cmd.Flags().StringVar(&item.DestRoot, "dest", "", "Download root (defaults to paths.download_dir)")
	cmd.Flags().IntVar(&item.Version, "version", 1, "Version number used in the file name")
	cmd.Flags().BoolVar(&pending, "pending", false, "Run every draft or failed song from the record store")
	cmd.MarkFlagsMutuallyExclusive("pending", "title")
	opts.bind(cmd)

	return cmd
}

// runStoredSongs loads songs in the given states and runs them.
func runStoredSongs(cmd *cobra.Command, ctx *commandContext, opts runOptions, states ...submission.State) error {
	return ctx.withStore(func(store *records.Store) error {
		songs, err := store.ListSongs(runContext(cmd), states...)
		if err != nil {
			return err
		}
		if len(songs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No songs to run")
			return nil
		}
		items := make([]*submission.WorkItem, len(songs))
		for i, song := range songs {
			items[i] = &song.WorkItem
		}
		return runSongs(cmd, ctx, store, items, opts)
	})
}

// runSongs drives items through the workflow pool, one browser session per
// worker, and prints a summary.
func runSongs(cmd *cobra.Command, ctx *commandContext, store *records.Store, items []*submission.WorkItem, opts runOptions) error {
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
	if cleaned := housekeeping.Clean(runCtx, housekeeping.Defaults(cfg), logger); len(cleaned.Removed) > 0 {
		logger.Info("removed stale files", logging.Int("count", len(cleaned.Removed)))
	}
	reg, err := ctx.registry(runCtx, logger)
	if err != nil {
		return err
	}

	workers := opts.workers
	if workers <= 0 {
		workers = cfg.Workflow.Workers
	}
	workers = min(max(workers, 1), len(items))
	headless := cfg.Browser.Headless && !opts.headful

	factory := songPipelineFactory(cfg, store, reg, logger, headless, workers)
	jobs := make([]workflow.Job, len(items))
	for i, item := range items {
		jobs[i] = workflow.SongJob(item, factory)
	}

	events := make(chan submission.Event)
	rendered := make(chan struct{})
	go renderProgress(cmd.ErrOrStderr(), events, rendered)

	pool := workflow.NewPool(workers,
		workflow.WithEvents(events),
		workflow.WithLogger(logger),
		workflow.WithNotifier(notifications.NewService(cfg)),
	)
	results := pool.Run(runCtx, jobs)
	close(events)
	<-rendered

	if err := printSongResults(cmd, items, results, opts.jsonOut); err != nil {
		return err
	}
	if _, failed := workflow.Summarize(results); failed > 0 {
		if runCtx.Err() != nil {
			return runCtx.Err()
		}
		return fmt.Errorf("%d of %d songs failed", failed, len(results))
	}
	return nil
}

// songPipelineFactory hands each job a pipeline on a free profile slot. The
// pool never runs more than workers jobs, so a slot is always free once a
// job starts.
func songPipelineFactory(cfg *config.Config, store *records.Store, reg *selectors.Registry, logger *slog.Logger, headless bool, workers int) workflow.PipelineFactory {
	slots := make(chan int, workers)
	for i := 0; i < workers; i++ {
		slots <- i
	}
	fetcher := fetch.New(config.Seconds(cfg.Timeouts.APIRequest), logger)
	settings := submission.SettingsFromConfig(cfg)

	return func(ctx context.Context, events chan<- submission.Event) (*submission.Pipeline, func(), error) {
		var slot int
		select {
		case slot = <-slots:
		case <-ctx.Done():
			return nil, nil, services.Wrap(services.ErrCancelled, "browser", "open", "stopped while waiting for a browser profile", ctx.Err())
		}
		session, err := openBrowser(ctx, sessionOptions(cfg, browser.SiteGenerator, generatorProfile(slot), headless, reg, logger))
		if err != nil {
			slots <- slot
			return nil, nil, err
		}
		pipeline := submission.New(session, fetcher, retry.FromConfig(cfg.Retry, logger), settings,
			submission.WithRecorder(store),
			submission.WithEvents(events),
			submission.WithLogger(logger),
		)
		release := func() {
			_ = session.Close()
			slots <- slot
		}
		return pipeline, release, nil
	}
}

type songResult struct {
	Key      string `json:"key"`
	Title    string `json:"title"`
	State    string `json:"state"`
	Path     string `json:"path,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Category string `json:"category,omitempty"`
	Error    string `json:"error,omitempty"`
	Elapsed  string `json:"elapsed"`
}

func printSongResults(cmd *cobra.Command, items []*submission.WorkItem, results []workflow.Result, jsonOut bool) error {
	out := make([]songResult, len(results))
	for i, r := range results {
		item := items[i]
		out[i] = songResult{
			Key:     r.Key,
			Title:   r.Title,
			State:   string(item.State),
			Path:    item.FilePath,
			Size:    item.FileSize,
			Elapsed: r.Elapsed.Round(time.Second).String(),
		}
		if r.Err != nil {
			out[i].Category = item.FailureCategory
			if out[i].Category == "" {
				out[i].Category = services.Category(r.Err)
			}
			out[i].Error = services.UserMessage(r.Err)
		}
	}
	if jsonOut {
		return writeJSON(cmd, out)
	}

	rows := make([][]string, len(out))
	for i, r := range out {
		detail := r.Path
		if r.Error != "" {
			detail = r.Category + ": " + r.Error
		}
		rows[i] = []string{r.Key, r.Title, r.State, formatBytes(r.Size), r.Elapsed, orDash(detail)}
	}
	fmt.Fprint(cmd.OutOrStdout(), renderTable(
		[]string{"Key", "Title", "State", "Size", "Elapsed", "Result"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
	return nil
}
