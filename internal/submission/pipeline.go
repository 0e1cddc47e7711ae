package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"tunesmith/internal/browser"
	"tunesmith/internal/capture"
	"tunesmith/internal/config"
	"tunesmith/internal/fetch"
	"tunesmith/internal/fileutil"
	"tunesmith/internal/logging"
	"tunesmith/internal/retry"
	"tunesmith/internal/services"
	"tunesmith/internal/tagging"
	"tunesmith/internal/textutil"
)

const pipelineName = "submission"

// Fetcher is the direct HTTP side of the pipeline. *fetch.Client
// satisfies it.
type Fetcher interface {
	HeadSizes(ctx context.Context, urls []string) map[string]int64
	Status(ctx context.Context, endpoint, taskID, authToken string) (any, error)
	Download(ctx context.Context, rawURL, dest string, check fetch.Check, progress fetch.Progress) (int64, error)
}

// Recorder persists every transition as it happens.
type Recorder interface {
	RecordTransition(ctx context.Context, item *WorkItem, t Transition) error
}

// TagFunc writes tags to a completed MP3.
type TagFunc func(path string, item *WorkItem) error

// Settings are the site endpoints and per-phase bounds.
type Settings struct {
	CreateURL      string
	HomeURL        string
	StatusEndpoint string
	StorageBaseURL string
	APIHosts       []string
	Artist         string
	ScreenshotDir  string

	IdentifierTimeout time.Duration
	CaptureInterval   time.Duration
	PollTimeout       time.Duration
	PollInterval      time.Duration
	DownloadTimeout   time.Duration
}

// SettingsFromConfig reads the generator and timeout sections.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		CreateURL:         cfg.Generator.CreateURL,
		HomeURL:           cfg.Generator.HomeURL,
		StatusEndpoint:    cfg.Generator.StatusEndpoint,
		StorageBaseURL:    cfg.Generator.StorageBaseURL,
		APIHosts:          append([]string(nil), cfg.Generator.APIHosts...),
		Artist:            cfg.Generator.Artist,
		ScreenshotDir:     filepath.Join(cfg.Paths.DataDir, "screenshots"),
		IdentifierTimeout: config.Seconds(cfg.Timeouts.IdentifierCapture),
		CaptureInterval:   500 * time.Millisecond,
		PollTimeout:       config.Seconds(cfg.Timeouts.GenerationPoll),
		PollInterval:      config.Seconds(cfg.Timeouts.PollInterval),
		DownloadTimeout:   config.Seconds(cfg.Timeouts.Download),
	}
}

// Pipeline drives one work item at a time through the generator. It owns
// its browser session; run separate pipelines for concurrent items.
type Pipeline struct {
	session  browser.Session
	fetcher  Fetcher
	retry    *retry.Policy
	settings Settings
	matcher  capture.Matcher

	recorder Recorder
	events   chan<- Event
	tag      TagFunc
	logger   *slog.Logger
	now      func() time.Time
	sleep    retry.Sleeper
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithRecorder persists transitions through r.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithEvents delivers progress on ch. Sends block, so the caller must keep
// draining ch until Run returns.
func WithEvents(ch chan<- Event) Option {
	return func(p *Pipeline) { p.events = ch }
}

// WithTagger replaces the ID3 tagger; nil disables tagging.
func WithTagger(fn TagFunc) Option {
	return func(p *Pipeline) { p.tag = fn }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logging.NewComponentLogger(logger, pipelineName) }
}

// WithClock overrides time.Now for dated destination folders.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithSleeper overrides the wait between status polls.
func WithSleeper(s retry.Sleeper) Option {
	return func(p *Pipeline) { p.sleep = s }
}

// New assembles a pipeline.
func New(session browser.Session, fetcher Fetcher, policy *retry.Policy, settings Settings, opts ...Option) *Pipeline {
	if settings.CaptureInterval <= 0 {
		settings.CaptureInterval = 500 * time.Millisecond
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = 10 * time.Second
	}
	p := &Pipeline{
		session:  session,
		fetcher:  fetcher,
		retry:    policy,
		settings: settings,
		matcher:  capture.NewMatcher(settings.APIHosts),
		logger:   logging.NewComponentLogger(nil, pipelineName),
		now:      time.Now,
		sleep:    sleepContext,
	}
	p.tag = ID3Tagger(settings.Artist)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID3Tagger tags artifacts with the title, artist, style and lyrics. The
// generator reports styles in lower case; the genre frame gets them title
// cased.
func ID3Tagger(artist string) TagFunc {
	return func(path string, item *WorkItem) error {
		return tagging.Write(path, tagging.Tags{
			Title:   item.Title,
			Artist:  artist,
			Genre:   textutil.TitleCase(item.Metadata.MusicStyle),
			Lyrics:  item.Lyrics,
			Comment: item.TaskID,
		})
	}
}

// Run takes item to Completed or Failed. A Completed item is left alone
// unless Redownload is set, in which case its artifact is removed first.
// The returned error is the cause of a Failed run.
func (p *Pipeline) Run(ctx context.Context, item *WorkItem) error {
	ctx = services.WithPipeline(services.WithItemKey(ctx, item.Key), pipelineName)
	if item.State == "" {
		item.State = StateDraft
	}
	logger := logging.WithContext(ctx, p.logger)

	switch item.State {
	case StateDraft:
	case StateCompleted:
		if !item.Redownload {
			logger.Info("song already completed", logging.String("path", item.FilePath))
			return nil
		}
		if err := p.discardArtifact(item); err != nil {
			return err
		}
		if err := p.transition(ctx, item, StateDraft, "redownload requested", ""); err != nil {
			return err
		}
	case StateFailed:
		if err := p.transition(ctx, item, StateDraft, "retry requested", ""); err != nil {
			return err
		}
	default:
		// A run was interrupted without reaching a terminal state.
		if err := p.transition(ctx, item, StateFailed, "interrupted run", "cancelled"); err != nil {
			return err
		}
		if err := p.transition(ctx, item, StateDraft, "resuming", ""); err != nil {
			return err
		}
	}
	item.Redownload = false
	item.FailureCategory, item.FailureDetail = "", ""

	if err := p.drive(ctx, item); err != nil {
		p.fail(ctx, item, err)
		return err
	}
	return nil
}

func (p *Pipeline) drive(ctx context.Context, item *WorkItem) error {
	if err := validate(item); err != nil {
		return err
	}
	identified := item.TaskID != ""
	if !item.Submitted() {
		var err error
		if identified, err = p.submitAndCapture(ctx, item); err != nil {
			return err
		}
	}
	if identified {
		if err := p.poll(ctx, item); err != nil {
			return err
		}
	} else if err := p.advance(ctx, item, StateResolved, "no identifier, using listing recovery"); err != nil {
		return err
	}
	return p.download(ctx, item)
}

func validate(item *WorkItem) error {
	var missing []string
	if strings.TrimSpace(item.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(item.Prompt) == "" && !item.Submitted() {
		missing = append(missing, "prompt")
	}
	if strings.TrimSpace(item.DestRoot) == "" {
		missing = append(missing, "destination")
	}
	if len(missing) > 0 {
		return services.Wrap(services.ErrValidation, string(StateDraft), "validate", "missing "+strings.Join(missing, ", "), nil)
	}
	return nil
}

func (p *Pipeline) discardArtifact(item *WorkItem) error {
	if item.FilePath != "" {
		if err := fileutil.RemoveIfExists(item.FilePath); err != nil {
			return fmt.Errorf("remove previous artifact: %w", err)
		}
	}
	item.FilePath = ""
	item.FileSize = 0
	// Signed URLs from the last run have expired.
	item.Metadata.AudioURL1 = ""
	item.Metadata.AudioURL2 = ""
	return nil
}

// advance moves to the next state unless the run has been cancelled.
func (p *Pipeline) advance(ctx context.Context, item *WorkItem, to State, reason string) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrCancelled, string(item.State), "advance", "cancelled before "+string(to), err)
	}
	return p.transition(ctx, item, to, reason, "")
}

func (p *Pipeline) transition(ctx context.Context, item *WorkItem, to State, reason, category string) error {
	from := item.State
	if !CanTransition(from, to) {
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	t := Transition{From: from, To: to, Reason: reason, At: p.now(), Category: category}
	item.Transitions = append(item.Transitions, t)
	item.State = to

	ctx = services.WithStage(ctx, string(to))
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("state transition",
		logging.String("from", string(from)),
		logging.String("to", string(to)),
		logging.String("reason", reason),
	)
	if p.recorder != nil {
		if err := p.recorder.RecordTransition(context.WithoutCancel(ctx), item, t); err != nil {
			logging.WarnWithContext(logger, "transition not persisted", "record_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "the record store may lag behind this run"),
			)
		}
	}
	p.emit(item, reason, statePercent[to])
	return nil
}

func (p *Pipeline) emit(item *WorkItem, message string, percent int) {
	if p.events == nil {
		return
	}
	if item.State == StateFailed && len(item.Transitions) > 1 {
		percent = statePercent[item.Transitions[len(item.Transitions)-1].From]
	}
	p.events <- Event{
		ItemKey: item.Key,
		State:   item.State,
		Step:    stateStep[item.State],
		Percent: percent,
		Message: message,
		Time:    p.now(),
	}
}

func (p *Pipeline) fail(ctx context.Context, item *WorkItem, cause error) {
	if item.State.Terminal() {
		return
	}
	category := services.Category(cause)
	if errors.Is(cause, services.ErrCancelled) || ctx.Err() != nil {
		category = "cancelled"
	}
	item.FailureCategory = category
	item.FailureDetail = cause.Error()

	logger := logging.WithContext(services.WithStage(ctx, string(item.State)), p.logger)
	logging.ErrorWithContext(logger, "song failed", "submission_failed",
		logging.String("category", category),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, services.UserMessage(cause)),
	)
	if category != "cancelled" {
		p.saveScreenshot(ctx, item)
	}
	if err := p.transition(ctx, item, StateFailed, services.UserMessage(cause), category); err != nil {
		logger.Error("could not record failure", logging.Error(err))
	}
}

func (p *Pipeline) saveScreenshot(ctx context.Context, item *WorkItem) {
	name := fmt.Sprintf("%s_%s_%s", p.now().Format("20060102-150405"), safeKey(item.Key), item.State)
	path, err := browser.SaveScreenshot(ctx, p.session, p.settings.ScreenshotDir, name)
	if err != nil {
		logging.WithContext(ctx, p.logger).Debug("failure screenshot not saved", logging.Error(err))
		return
	}
	if path != "" {
		logging.WithContext(ctx, p.logger).Info("failure screenshot saved", logging.String("path", path))
	}
}

func safeKey(key string) string {
	if key == "" {
		return "item"
	}
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '_'
		}
		return r
	}, key)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, services.ErrCancelled)
}
