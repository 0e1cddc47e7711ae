package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"tunesmith/internal/logging"
	"tunesmith/internal/recovery"
	"tunesmith/internal/selectors"
	"tunesmith/internal/services"
)

const (
	defaultPageLoad       = 15 * time.Second
	defaultElementVisible = 5 * time.Second
	interceptBuffer       = 32
)

// Options configure a rod-backed session.
type Options struct {
	Site           string
	ProfileDir     string
	Bin            string
	Headless       bool
	Registry       *selectors.Registry
	Logger         *slog.Logger
	PageLoad       time.Duration
	ElementVisible time.Duration
}

// RodSession is a Session backed by a Chromium instance driven over CDP.
type RodSession struct {
	opts    Options
	logger  *slog.Logger
	profile *Profile

	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	authMu sync.Mutex
	auth   string
}

var _ Session = (*RodSession)(nil)

// Open locks the site's profile, clears its caches and launches the browser.
func Open(ctx context.Context, opts Options) (*RodSession, error) {
	if opts.Registry == nil {
		return nil, services.Wrap(services.ErrConfiguration, "browser", "open", "selector registry required", nil)
	}
	if opts.PageLoad <= 0 {
		opts.PageLoad = defaultPageLoad
	}
	if opts.ElementVisible <= 0 {
		opts.ElementVisible = defaultElementVisible
	}
	logger := logging.NewComponentLogger(opts.Logger, "browser").With(logging.String("site", opts.Site))

	profile, err := LockProfile(opts.ProfileDir)
	if err != nil {
		return nil, err
	}
	if err := profile.ClearCaches(); err != nil {
		logger.Debug("profile cache cleanup incomplete", logging.Error(err))
	}
	s := &RodSession{opts: opts, logger: logger, profile: profile}
	if err := s.start(ctx); err != nil {
		_ = profile.Release()
		return nil, err
	}
	logger.Info("browser session opened",
		logging.String("profile", opts.ProfileDir),
		logging.Bool("headless", opts.Headless),
	)
	return s, nil
}

func (s *RodSession) start(ctx context.Context) error {
	l := launcher.New().
		Headless(s.opts.Headless).
		UserDataDir(s.profile.Dir).
		Set("disable-blink-features", "AutomationControlled")
	if s.opts.Bin != "" {
		l = l.Bin(s.opts.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "browser", "launch", "could not start browser", err)
	}
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return services.Wrap(services.ErrNetwork, "browser", "connect", "devtools connection failed", err)
	}
	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		l.Kill()
		return services.Wrap(services.ErrNetwork, "browser", "new page", "could not open tab", err)
	}
	if err := ctx.Err(); err != nil {
		_ = b.Close()
		l.Kill()
		return services.Wrap(services.ErrCancelled, "browser", "start", "context done", err)
	}
	s.launcher, s.browser, s.page = l, b, page
	return nil
}

func (s *RodSession) Site() string { return s.opts.Site }

func (s *RodSession) Navigate(ctx context.Context, url string) error {
	tctx, cancel := context.WithTimeout(ctx, s.opts.PageLoad)
	defer cancel()
	p := s.page.Context(tctx)
	if err := p.Navigate(url); err != nil {
		return classify(ctx, "navigate", err)
	}
	if err := p.WaitLoad(); err != nil {
		return classify(ctx, "wait load", err)
	}
	return nil
}

func (s *RodSession) URL(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", classify(ctx, "page info", err)
	}
	return info.URL, nil
}

func (s *RodSession) Find(ctx context.Context, group string) (Element, error) {
	el, _, err := FindWith(ctx, s.opts.Registry, group, s.visibleElement, s.logger)
	return el, err
}

func (s *RodSession) Peek(ctx context.Context, group string) (Element, error) {
	el, _, err := PeekWith(ctx, s.opts.Registry, group, s.visibleElement)
	return el, err
}

func (s *RodSession) Locate(ctx context.Context, group string) (string, error) {
	return LocateWith(ctx, s.opts.Registry, group, s.visibleElement)
}

func (s *RodSession) visibleElement(ctx context.Context, loc Locator) (Element, error) {
	tctx, cancel := context.WithTimeout(ctx, s.opts.ElementVisible)
	defer cancel()
	p := s.page.Context(tctx)
	var (
		el  *rod.Element
		err error
	)
	if loc.HasText {
		el, err = p.ElementR(loc.CSS, loc.TextRE)
	} else {
		el, err = p.Element(loc.CSS)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotVisible, loc.Raw)
	}
	if err := el.WaitVisible(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotVisible, loc.Raw)
	}
	return &rodElement{el: el.Context(ctx)}, nil
}

func (s *RodSession) Click(ctx context.Context, group string) error {
	el, err := s.Find(ctx, group)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

func (s *RodSession) Fill(ctx context.Context, group, text string) error {
	el, err := s.Find(ctx, group)
	if err != nil {
		return err
	}
	return el.Fill(ctx, text)
}

func (s *RodSession) Upload(ctx context.Context, group string, paths []string) error {
	el, err := s.Find(ctx, group)
	if err != nil {
		return err
	}
	return el.SetFiles(ctx, paths)
}

func (s *RodSession) Listing(ctx context.Context, cardGroup string) ([]recovery.Card, error) {
	reg := s.opts.Registry
	candidates := reg.Resolve(cardGroup)
	for _, candidate := range candidates {
		loc := ParseLocator(candidate)
		els, err := s.page.Context(ctx).Elements(loc.CSS)
		if err != nil {
			if ctx.Err() != nil {
				return nil, classify(ctx, "listing", err)
			}
			continue
		}
		var textRE *regexp.Regexp
		if loc.HasText {
			if textRE, err = regexp.Compile(loc.TextRE); err != nil {
				continue
			}
		}
		cards := make([]recovery.Card, 0, len(els))
		for _, el := range els {
			text, _ := el.Text()
			if textRE != nil && !textRE.MatchString(text) {
				continue
			}
			cards = append(cards, recovery.Card{
				Index:     len(cards),
				ProjectID: attribute(el, "data-project-id"),
				Title:     firstLine(text),
				Text:      text,
				AudioURL:  attribute(el, "data-audio-url"),
			})
		}
		if len(cards) > 0 {
			reg.RecordSuccess(ctx, cardGroup, candidate)
			return cards, nil
		}
	}
	for _, candidate := range candidates {
		reg.RecordFailure(ctx, cardGroup, candidate)
	}
	return nil, services.Wrap(services.ErrSelectorNotFound, "listing", cardGroup, "no cards found", nil)
}

func (s *RodSession) Intercept(ctx context.Context, match Predicate) (<-chan Response, func()) {
	out := make(chan Response, interceptBuffer)
	ictx, cancel := context.WithCancel(ctx)
	page := s.page
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		s.logger.Debug("network domain enable failed", logging.Error(err))
	}

	type pending struct {
		url, method, auth, mime string
		status                  int
	}
	inflight := make(map[proto.NetworkRequestID]*pending)

	wait := page.Context(ictx).EachEvent(
		func(ev *proto.NetworkRequestWillBeSent) {
			if ev.Request == nil || !match(ev.Request.URL) {
				return
			}
			p := &pending{url: ev.Request.URL, method: ev.Request.Method}
			for name, value := range ev.Request.Headers {
				if strings.EqualFold(name, "authorization") {
					p.auth = value.Str()
				}
			}
			if p.auth != "" {
				s.setAuth(p.auth)
			}
			inflight[ev.RequestID] = p
		},
		func(ev *proto.NetworkResponseReceived) {
			p, ok := inflight[ev.RequestID]
			if !ok || ev.Response == nil {
				return
			}
			p.status = ev.Response.Status
			p.mime = ev.Response.MIMEType
		},
		func(ev *proto.NetworkLoadingFinished) {
			p, ok := inflight[ev.RequestID]
			if !ok {
				return
			}
			delete(inflight, ev.RequestID)
			resp := Response{URL: p.url, Method: p.method, Status: p.status, MIMEType: p.mime, Authorization: p.auth}
			body, err := proto.NetworkGetResponseBody{RequestID: ev.RequestID}.Call(page)
			if err != nil {
				s.logger.Debug("response body unavailable", logging.String("url", p.url), logging.Error(err))
			} else if body.Base64Encoded {
				resp.Body, _ = base64.StdEncoding.DecodeString(body.Body)
			} else {
				resp.Body = []byte(body.Body)
			}
			select {
			case out <- resp:
			case <-ictx.Done():
			}
		},
	)
	go func() {
		wait()
		close(out)
	}()
	return out, cancel
}

func (s *RodSession) setAuth(value string) {
	s.authMu.Lock()
	s.auth = value
	s.authMu.Unlock()
}

func (s *RodSession) AuthToken() string {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	return s.auth
}

func (s *RodSession) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := s.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return nil, classify(ctx, "screenshot", err)
	}
	return data, nil
}

func (s *RodSession) Recover(ctx context.Context) error {
	s.logger.Warn("restarting browser session",
		logging.String(logging.FieldEventType, "browser_recover"),
		logging.String(logging.FieldImpact, "in-page state is lost"),
	)
	s.shutdown()
	if err := s.profile.ClearCaches(); err != nil {
		s.logger.Debug("profile cache cleanup incomplete", logging.Error(err))
	}
	return s.start(ctx)
}

func (s *RodSession) shutdown() {
	if s.browser != nil {
		_ = s.browser.Close()
		s.browser, s.page = nil, nil
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher = nil
	}
}

func (s *RodSession) Close() error {
	s.shutdown()
	return s.profile.Release()
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Click(ctx context.Context) error {
	if err := e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return classify(ctx, "click", err)
	}
	return nil
}

func (e *rodElement) Fill(ctx context.Context, text string) error {
	el := e.el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return classify(ctx, "select text", err)
	}
	if err := el.Input(text); err != nil {
		return classify(ctx, "input", err)
	}
	return nil
}

func (e *rodElement) SetFiles(ctx context.Context, paths []string) error {
	if err := e.el.Context(ctx).SetFiles(paths); err != nil {
		return classify(ctx, "set files", err)
	}
	return nil
}

func (e *rodElement) Select(ctx context.Context, value string) error {
	if err := e.el.Context(ctx).Select([]string{value}, true, rod.SelectorTypeText); err != nil {
		return classify(ctx, "select option", err)
	}
	return nil
}

func (e *rodElement) Check(ctx context.Context) error {
	el := e.el.Context(ctx)
	checked, err := el.Property("checked")
	if err == nil && checked.Bool() {
		return nil
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return classify(ctx, "check", err)
	}
	return nil
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	text, err := e.el.Context(ctx).Text()
	if err != nil {
		return "", classify(ctx, "text", err)
	}
	return text, nil
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, error) {
	value, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", classify(ctx, "attribute", err)
	}
	if value == nil {
		return "", nil
	}
	return *value, nil
}

func classify(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return services.Wrap(services.ErrCancelled, "browser", op, "cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "browser", op, "timed out", err)
	}
	return services.Wrap(services.ErrNetwork, "browser", op, "devtools call failed", err)
}

func attribute(el *rod.Element, name string) string {
	value, err := el.Attribute(name)
	if err != nil || value == nil {
		return ""
	}
	return *value
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
