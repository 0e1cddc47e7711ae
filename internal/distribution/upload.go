package distribution

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tunesmith/internal/logging"
	"tunesmith/internal/retry"
	"tunesmith/internal/selectors"
	"tunesmith/internal/services"
)

const signinFragment = "/signin"

// EnsureLogin opens the distributor's music page and, when it redirects to
// sign-in, waits for a person to complete the login.
func (p *Pipeline) EnsureLogin(ctx context.Context) error {
	if err := p.navigate(ctx, p.settings.MyMusicURL); err != nil {
		return err
	}
	current, err := p.session.URL(ctx)
	if err != nil {
		return err
	}
	if !isSignin(current) {
		return nil
	}
	return p.awaitLogin(ctx, current)
}

// awaitLogin polls the page URL until it leaves sign-in for a distributor
// page or the login wait runs out.
func (p *Pipeline) awaitLogin(ctx context.Context, current string) error {
	logger := logging.WithContext(services.WithStage(ctx, "login"), p.logger)
	deadline := p.now().Add(p.settings.LoginWait)
	challenge := newChallenge(p.session.Site(), p.settings.SigninURL, deadline)

	if !isSignin(current) && p.settings.SigninURL != "" {
		if err := p.navigate(ctx, p.settings.SigninURL); err != nil {
			challenge.finish(err)
			return err
		}
	}
	logging.WarnWithContext(logger, "distributor login required", "login_required",
		logging.String("login_url", challenge.LoginURL),
		logging.Duration("wait", p.settings.LoginWait),
		logging.String(logging.FieldErrorHint, "sign in and complete the second factor in the browser window"),
		logging.String(logging.FieldImpact, "uploads wait until the login completes"),
	)
	if p.onChallenge != nil {
		p.onChallenge(challenge)
	}

	for {
		current, err := p.session.URL(ctx)
		if err == nil && p.signedIn(current) {
			challenge.finish(nil)
			logger.Info("distributor login detected", logging.String("url", current))
			return nil
		}
		if !p.now().Before(deadline) {
			err := services.Wrap(services.ErrSessionExpired, "login", "wait for login",
				fmt.Sprintf("login not completed within %s", p.settings.LoginWait), nil)
			challenge.finish(err)
			return err
		}
		if err := p.sleep(ctx, p.settings.LoginPoll); err != nil {
			err = services.Wrap(services.ErrCancelled, "login", "wait for login", "cancelled", err)
			challenge.finish(err)
			return err
		}
	}
}

func (p *Pipeline) upload(ctx context.Context, r *Release) error {
	if err := p.EnsureLogin(ctx); err != nil {
		return err
	}
	if err := p.openUploadForm(ctx); err != nil {
		return err
	}
	if err := p.fillForm(ctx, r); err != nil {
		return err
	}
	if err := p.session.Click(ctx, selectors.DKSubmit); err != nil {
		return err
	}
	return p.waitUploadComplete(ctx)
}

// openUploadForm loads the upload page. A redirect to sign-in means the
// session expired since EnsureLogin; the login is repeated once.
func (p *Pipeline) openUploadForm(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		if err := p.navigate(ctx, p.settings.UploadURL); err != nil {
			return err
		}
		current, err := p.session.URL(ctx)
		if err != nil {
			return err
		}
		if !isSignin(current) {
			return nil
		}
		if attempt > 1 {
			return services.Wrap(services.ErrSessionExpired, "uploading", "open upload form", "redirected to sign-in after login", nil)
		}
		if err := p.awaitLogin(ctx, current); err != nil {
			return err
		}
	}
}

func (p *Pipeline) fillForm(ctx context.Context, r *Release) error {
	first, last, ok := LegalName(r.Songwriter)
	if !ok {
		return services.Wrap(services.ErrValidation, "uploading", "fill form", "songwriter legal name needs a first and last name", nil)
	}
	steps := []struct {
		group    string
		optional string // impact when the field is missing; empty means required
		skip     bool
		do       func() error
	}{
		{selectors.DKArtist, "the artist may need selecting by hand", false, func() error {
			return p.session.Fill(ctx, selectors.DKArtist, r.Artist)
		}},
		{selectors.DKTitle, "", false, func() error {
			return p.session.Fill(ctx, selectors.DKTitle, r.Title)
		}},
		{selectors.DKGenre, "the genre may need selecting by hand", false, func() error {
			return p.selectOption(ctx, selectors.DKGenre, r.Genre)
		}},
		{selectors.DKLanguage, "the language keeps the form default", r.Language == "", func() error {
			return p.selectOption(ctx, selectors.DKLanguage, r.Language)
		}},
		{selectors.DKSongwriterFirst, "", false, func() error {
			return p.session.Fill(ctx, selectors.DKSongwriterFirst, first)
		}},
		{selectors.DKSongwriterLast, "", false, func() error {
			return p.session.Fill(ctx, selectors.DKSongwriterLast, last)
		}},
		{selectors.DKAudioUpload, "", false, func() error {
			return p.session.Upload(ctx, selectors.DKAudioUpload, []string{r.AudioPath})
		}},
		{selectors.DKArtworkUpload, "", false, func() error {
			return p.session.Upload(ctx, selectors.DKArtworkUpload, []string{r.CoverArtPath})
		}},
		{selectors.DKInstrumental, "the instrumental flag needs setting by hand", !r.Instrumental, func() error {
			return p.check(ctx, selectors.DKInstrumental)
		}},
		{selectors.DKAIDisclosure, "the AI disclosure may appear later in the upload flow", !r.AIDisclosure, func() error {
			return p.check(ctx, selectors.DKAIDisclosure)
		}},
	}

	logger := logging.WithContext(services.WithStage(ctx, string(StatusUploading)), p.logger)
	for _, step := range steps {
		if step.skip {
			continue
		}
		err := step.do()
		if err == nil {
			logger.Debug("form field set", logging.String("field", step.group))
			continue
		}
		if step.optional == "" || !errors.Is(err, services.ErrSelectorNotFound) {
			return fmt.Errorf("fill %s: %w", step.group, err)
		}
		logging.WarnWithContext(logger, "optional form field not found", "form_field_missing",
			logging.String("field", step.group),
			logging.Error(err),
			logging.String(logging.FieldImpact, step.optional),
		)
	}
	return nil
}

func (p *Pipeline) selectOption(ctx context.Context, group, value string) error {
	el, err := p.session.Find(ctx, group)
	if err != nil {
		return err
	}
	return el.Select(ctx, value)
}

func (p *Pipeline) check(ctx context.Context, group string) error {
	el, err := p.session.Find(ctx, group)
	if err != nil {
		return err
	}
	return el.Check(ctx)
}

// waitUploadComplete watches for the music page, a confirmation or an
// error banner. Both banners are absent on most polls, so they are peeked
// at rather than found: a miss must not demote their locators.
func (p *Pipeline) waitUploadComplete(ctx context.Context) error {
	deadline := p.now().Add(p.settings.UploadTimeout)
	for {
		if current, err := p.session.URL(ctx); err == nil && strings.Contains(strings.ToLower(current), "/mymusic") {
			return nil
		}
		if _, err := p.session.Peek(ctx, selectors.DKUploadComplete); err == nil {
			return nil
		} else if ctx.Err() != nil {
			return services.Wrap(services.ErrCancelled, "uploading", "wait for upload", "cancelled", err)
		}
		if el, err := p.session.Peek(ctx, selectors.DKUploadError); err == nil {
			text, _ := el.Text(ctx)
			return services.Wrap(services.ErrRemoteFailure, "uploading", "wait for upload", "distributor reported: "+strings.TrimSpace(text), nil)
		}
		if !p.now().Before(deadline) {
			return services.Wrap(services.ErrTimeout, "uploading", "wait for upload",
				fmt.Sprintf("no confirmation within %s", p.settings.UploadTimeout), nil)
		}
		if err := p.sleep(ctx, p.settings.UploadPoll); err != nil {
			return services.Wrap(services.ErrCancelled, "uploading", "wait for upload", "cancelled", err)
		}
	}
}

func (p *Pipeline) navigate(ctx context.Context, target string) error {
	return p.retry.Execute(ctx, "open "+target, func(ctx context.Context, _ retry.Attempt) error {
		return p.session.Navigate(ctx, target)
	})
}

func (p *Pipeline) signedIn(current string) bool {
	lower := strings.ToLower(current)
	if lower == "" || isSignin(lower) {
		return false
	}
	return p.siteHost == "" || strings.Contains(lower, p.siteHost)
}

func isSignin(current string) bool {
	return strings.Contains(strings.ToLower(current), signinFragment)
}
