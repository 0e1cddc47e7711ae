package distribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"tunesmith/internal/artwork"
	"tunesmith/internal/browser"
	"tunesmith/internal/config"
	"tunesmith/internal/logging"
	"tunesmith/internal/retry"
	"tunesmith/internal/services"
)

const (
	pipelineName = "distribution"

	defaultLoginPoll  = 3 * time.Second
	defaultUploadPoll = 3 * time.Second
)

// Recorder persists every status change.
type Recorder interface {
	RecordRelease(ctx context.Context, r *Release, t Transition) error
}

// Settings are the distributor endpoints, release defaults and waits.
type Settings struct {
	UploadURL     string
	SigninURL     string
	MyMusicURL    string
	Artist        string
	Language      string
	DefaultGenre  string
	ArtworkDir    string
	ScreenshotDir string

	LoginWait     time.Duration
	LoginPoll     time.Duration
	UploadTimeout time.Duration
	UploadPoll    time.Duration
	// Pause separates consecutive uploads in a batch.
	Pause time.Duration
}

// SettingsFromConfig reads the distributor and timeout sections.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		UploadURL:     cfg.Distributor.UploadURL,
		SigninURL:     cfg.Distributor.SigninURL,
		MyMusicURL:    cfg.Distributor.MyMusicURL,
		Artist:        cfg.Distributor.ArtistName,
		Language:      cfg.Distributor.Language,
		DefaultGenre:  cfg.Distributor.DefaultGenre,
		ArtworkDir:    filepath.Join(cfg.Paths.DataDir, "artwork"),
		ScreenshotDir: filepath.Join(cfg.Paths.DataDir, "screenshots"),
		LoginWait:     config.Seconds(cfg.Timeouts.LoginWait),
		LoginPoll:     defaultLoginPoll,
		UploadTimeout: config.Seconds(cfg.Timeouts.UploadComplete),
		UploadPoll:    defaultUploadPoll,
		Pause:         10 * time.Second,
	}
}

// Pipeline uploads releases through one distributor session.
type Pipeline struct {
	session  browser.Session
	retry    *retry.Policy
	settings Settings
	siteHost string

	recorder    Recorder
	onChallenge func(*Challenge)
	logger      *slog.Logger
	now         func() time.Time
	sleep       retry.Sleeper
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithRecorder persists transitions through r.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithChallengeHandler is called when a manual login is needed. It must
// not block; watch the challenge's Done channel instead.
func WithChallengeHandler(fn func(*Challenge)) Option {
	return func(p *Pipeline) { p.onChallenge = fn }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logging.NewComponentLogger(logger, pipelineName) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithSleeper overrides the wait between login and upload checks.
func WithSleeper(s retry.Sleeper) Option {
	return func(p *Pipeline) { p.sleep = s }
}

// New assembles a pipeline.
func New(session browser.Session, policy *retry.Policy, settings Settings, opts ...Option) *Pipeline {
	if settings.LoginPoll <= 0 {
		settings.LoginPoll = defaultLoginPoll
	}
	if settings.UploadPoll <= 0 {
		settings.UploadPoll = defaultUploadPoll
	}
	p := &Pipeline{
		session:  session,
		retry:    policy,
		settings: settings,
		siteHost: siteHost(settings.UploadURL),
		logger:   logging.NewComponentLogger(nil, pipelineName),
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prepare validates a Draft and moves it to Ready. Cover art is converted
// to a 3000x3000 JPEG on the way. A release with problems stays in Draft
// with Blocking set.
func (p *Pipeline) Prepare(ctx context.Context, r *Release) error {
	ctx = p.scope(ctx, r)
	if r.Status == "" {
		r.Status = StatusDraft
	}
	if r.Status != StatusDraft {
		return services.Wrap(services.ErrValidation, string(r.Status), "prepare", fmt.Sprintf("release is %s, want draft", r.Status), nil)
	}
	if strings.TrimSpace(r.Artist) == "" {
		r.Artist = p.settings.Artist
	}
	if strings.TrimSpace(r.Language) == "" {
		r.Language = p.settings.Language
	}
	r.Genre = MapGenre(r.Genre, p.settings.DefaultGenre)

	r.Blocking = Validate(r)
	if len(r.Blocking) > 0 {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "release not ready", "release_blocked",
			logging.Int("problems", len(r.Blocking)),
			logging.String("first_problem", r.Blocking[0]),
			logging.String(logging.FieldImpact, "the release stays in draft"),
		)
		return services.Wrap(services.ErrValidation, string(StatusDraft), "prepare", strings.Join(r.Blocking, "; "), nil)
	}
	prepared, err := artwork.Prepare(r.CoverArtPath, p.settings.ArtworkDir)
	if err != nil {
		r.Blocking = []string{err.Error()}
		return err
	}
	r.CoverArtPath = prepared
	return p.transition(ctx, r, StatusReady, "validated", "")
}

// Upload submits a Ready release. Failures end in Error, which is never
// retried automatically.
func (p *Pipeline) Upload(ctx context.Context, r *Release) error {
	ctx = p.scope(ctx, r)
	if r.Status != StatusReady {
		return services.Wrap(services.ErrValidation, string(r.Status), "upload", fmt.Sprintf("release is %s, want ready", r.Status), nil)
	}
	if err := p.transition(ctx, r, StatusUploading, "upload started", ""); err != nil {
		return err
	}
	if err := p.upload(ctx, r); err != nil {
		p.fail(ctx, r, err)
		return err
	}
	r.SubmittedAt = p.now()
	r.ErrorMessage, r.Category = "", ""
	return p.transition(ctx, r, StatusSubmitted, "upload accepted", "")
}

// UploadAll signs in once and uploads each release in order. A failed
// release does not stop the batch; cancellation does.
func (p *Pipeline) UploadAll(ctx context.Context, releases []*Release) error {
	if len(releases) == 0 {
		return nil
	}
	if err := p.EnsureLogin(ctx); err != nil {
		return err
	}
	var errs []error
	for i, r := range releases {
		if err := ctx.Err(); err != nil {
			return services.Wrap(services.ErrCancelled, "uploading", "batch", "stopped", err)
		}
		if err := p.Upload(ctx, r); err != nil {
			if ctx.Err() != nil {
				return err
			}
			errs = append(errs, fmt.Errorf("%s: %w", r.Title, err))
		}
		if i < len(releases)-1 && p.settings.Pause > 0 {
			if err := p.sleep(ctx, p.settings.Pause); err != nil {
				return services.Wrap(services.ErrCancelled, "uploading", "batch", "stopped", err)
			}
		}
	}
	return errors.Join(errs...)
}

// MarkLive records the distributor's out-of-band confirmation.
func (p *Pipeline) MarkLive(ctx context.Context, r *Release) error {
	if r.Status != StatusSubmitted {
		return services.Wrap(services.ErrValidation, string(r.Status), "mark live", fmt.Sprintf("release is %s, want submitted", r.Status), nil)
	}
	return p.transition(p.scope(ctx, r), r, StatusLive, "confirmed live", "")
}

// Reset returns a failed release to Draft so it can be edited and
// prepared again.
func (p *Pipeline) Reset(ctx context.Context, r *Release) error {
	if r.Status != StatusError {
		return services.Wrap(services.ErrValidation, string(r.Status), "reset", fmt.Sprintf("release is %s, want error", r.Status), nil)
	}
	if err := p.transition(p.scope(ctx, r), r, StatusDraft, "reset after error", ""); err != nil {
		return err
	}
	r.ErrorMessage, r.Category = "", ""
	return nil
}

func (p *Pipeline) scope(ctx context.Context, r *Release) context.Context {
	key := r.SongKey
	if key == "" {
		key = fmt.Sprintf("release-%d", r.ID)
	}
	return services.WithPipeline(services.WithItemKey(ctx, key), pipelineName)
}

func (p *Pipeline) transition(ctx context.Context, r *Release, to Status, reason, category string) error {
	from := r.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	t := Transition{From: from, To: to, Reason: reason, At: p.now(), Category: category}
	r.Transitions = append(r.Transitions, t)
	r.Status = to

	ctx = services.WithStage(ctx, string(to))
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("release transition",
		logging.String("from", string(from)),
		logging.String("to", string(to)),
		logging.String("reason", reason),
	)
	if p.recorder != nil {
		if err := p.recorder.RecordRelease(context.WithoutCancel(ctx), r, t); err != nil {
			logging.WarnWithContext(logger, "release transition not persisted", "record_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "the record store may lag behind this upload"),
			)
		}
	}
	return nil
}

func (p *Pipeline) fail(ctx context.Context, r *Release, cause error) {
	category := services.Category(cause)
	if ctx.Err() != nil {
		category = "cancelled"
	}
	r.Category = category
	r.ErrorMessage = cause.Error()

	logger := logging.WithContext(services.WithStage(ctx, string(r.Status)), p.logger)
	logging.ErrorWithContext(logger, "release upload failed", "upload_failed",
		logging.String("category", category),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, services.UserMessage(cause)),
	)
	if category != "cancelled" {
		name := fmt.Sprintf("%s_release-%d_%s", p.now().Format("20060102-150405"), r.ID, r.Status)
		if path, err := browser.SaveScreenshot(ctx, p.session, p.settings.ScreenshotDir, name); err == nil && path != "" {
			logger.Info("failure screenshot saved", logging.String("path", path))
		}
	}
	if err := p.transition(ctx, r, StatusError, services.UserMessage(cause), category); err != nil {
		logger.Error("could not record failure", logging.Error(err))
	}
}

// siteHost is the registrable host of the upload URL, used to tell a
// signed-in distributor page from an identity provider's.
func siteHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
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
