// Package browsertest provides an in-memory browser.Session for pipeline
// tests.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tunesmith/internal/browser"
	"tunesmith/internal/recovery"
	"tunesmith/internal/services"
)

// Element records what was done to it.
type Element struct {
	mu      sync.Mutex
	Group   string
	Clicks  int
	Value   string
	Files   []string
	Checked bool
	Content string
	Attrs   map[string]string
	// OnClick runs after each click is recorded.
	OnClick func(ctx context.Context)
	// ClickErr is returned by Click when set.
	ClickErr error
}

func (e *Element) Click(ctx context.Context) error {
	e.mu.Lock()
	if e.ClickErr != nil {
		err := e.ClickErr
		e.mu.Unlock()
		return err
	}
	e.Clicks++
	hook := e.OnClick
	e.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	return nil
}

func (e *Element) Fill(_ context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Value = text
	return nil
}

func (e *Element) SetFiles(_ context.Context, paths []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Files = append([]string(nil), paths...)
	return nil
}

func (e *Element) Select(_ context.Context, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Value = value
	return nil
}

func (e *Element) Check(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Checked = true
	return nil
}

func (e *Element) Text(context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Content, nil
}

func (e *Element) Attribute(_ context.Context, name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Attrs[name], nil
}

// ClickCount returns the number of recorded clicks.
func (e *Element) ClickCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Clicks
}

// Filled returns the last value written by Fill or Select.
func (e *Element) Filled() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Value
}

// Uploaded returns the files attached by SetFiles.
func (e *Element) Uploaded() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.Files...)
}

// IsChecked reports whether Check was called.
func (e *Element) IsChecked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Checked
}

type subscription struct {
	match browser.Predicate
	ch    chan browser.Response
	once  sync.Once
}

// Session is a scripted browser.Session. Groups without an element fail
// lookups with services.ErrSelectorNotFound.
type Session struct {
	SiteName string
	// Cards is returned by Listing for any card group.
	Cards []recovery.Card
	// ListingErr is returned by Listing when set.
	ListingErr error
	// NavigateErr is returned by Navigate when set.
	NavigateErr error
	// OnNavigate runs after each navigation is recorded.
	OnNavigate func(ctx context.Context, url string)

	mu       sync.Mutex
	elements map[string]*Element
	current  string
	auth     string
	visited  []string
	subs     []*subscription
	queued   []browser.Response
	recovers int
	peeks    int
	closed   bool
}

var _ browser.Session = (*Session)(nil)

// New returns an empty fake for site.
func New(site string) *Session {
	return &Session{SiteName: site, elements: make(map[string]*Element)}
}

// Element returns the element for group, creating it on first use.
func (s *Session) Element(group string) *Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.elements[group]
	if !ok {
		el = &Element{Group: group, Attrs: map[string]string{}}
		s.elements[group] = el
	}
	return el
}

// Remove makes lookups for group fail.
func (s *Session) Remove(group string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.elements, group)
}

// SetURL changes what URL reports without recording a navigation.
func (s *Session) SetURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = url
}

// SetAuthToken sets the value AuthToken reports.
func (s *Session) SetAuthToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = token
}

// Visited lists every navigated URL in order.
func (s *Session) Visited() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visited...)
}

// Recovers counts Recover calls.
func (s *Session) Recovers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recovers
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Emit delivers resp to every open interception whose predicate matches it.
// With none open, it is held for the next Intercept call.
func (s *Session) Emit(resp browser.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if resp.Authorization != "" {
		s.auth = resp.Authorization
	}
	if len(s.subs) == 0 {
		s.queued = append(s.queued, resp)
		return
	}
	for _, sub := range s.subs {
		if sub.match(resp.URL) {
			select {
			case sub.ch <- resp:
			default:
			}
		}
	}
}

func (s *Session) Site() string { return s.SiteName }

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrCancelled, "browser", "navigate", "context done", err)
	}
	if s.NavigateErr != nil {
		return s.NavigateErr
	}
	s.mu.Lock()
	s.visited = append(s.visited, url)
	s.current = url
	hook := s.OnNavigate
	s.mu.Unlock()
	if hook != nil {
		hook(ctx, url)
	}
	return nil
}

func (s *Session) URL(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

func (s *Session) Find(ctx context.Context, group string) (browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrCancelled, "find", group, "context done", err)
	}
	s.mu.Lock()
	el, ok := s.elements[group]
	s.mu.Unlock()
	if !ok {
		return nil, services.Wrap(services.ErrSelectorNotFound, "find", group, "no element scripted", nil)
	}
	return el, nil
}

// Peek behaves like Find and counts the lookup.
func (s *Session) Peek(ctx context.Context, group string) (browser.Element, error) {
	s.mu.Lock()
	s.peeks++
	s.mu.Unlock()
	return s.Find(ctx, group)
}

// Locate reports a scripted group's name as its locator.
func (s *Session) Locate(ctx context.Context, group string) (string, error) {
	if _, err := s.Find(ctx, group); err != nil {
		return "", err
	}
	return "fake:" + group, nil
}

// Peeks counts Peek calls.
func (s *Session) Peeks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peeks
}

func (s *Session) Click(ctx context.Context, group string) error {
	el, err := s.Find(ctx, group)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

func (s *Session) Fill(ctx context.Context, group, text string) error {
	el, err := s.Find(ctx, group)
	if err != nil {
		return err
	}
	return el.Fill(ctx, text)
}

func (s *Session) Upload(ctx context.Context, group string, paths []string) error {
	el, err := s.Find(ctx, group)
	if err != nil {
		return err
	}
	return el.SetFiles(ctx, paths)
}

func (s *Session) Listing(ctx context.Context, cardGroup string) ([]recovery.Card, error) {
	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrCancelled, "listing", cardGroup, "context done", err)
	}
	if s.ListingErr != nil {
		return nil, s.ListingErr
	}
	cards := make([]recovery.Card, len(s.Cards))
	copy(cards, s.Cards)
	for i := range cards {
		cards[i].Index = i
	}
	return cards, nil
}

func (s *Session) Intercept(ctx context.Context, match browser.Predicate) (<-chan browser.Response, func()) {
	sub := &subscription{match: match, ch: make(chan browser.Response, 64)}
	ictx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	pending := s.queued
	s.queued = nil
	for _, resp := range pending {
		if match(resp.URL) {
			sub.ch <- resp
		}
	}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	go func() {
		<-ictx.Done()
		s.mu.Lock()
		for i, existing := range s.subs {
			if existing == sub {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		sub.once.Do(func() { close(sub.ch) })
	}()
	return sub.ch, cancel
}

func (s *Session) AuthToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

func (s *Session) Screenshot(context.Context) ([]byte, error) {
	return []byte("png"), nil
}

func (s *Session) Recover(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recovers++
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// String summarises the scripted groups, for test failure messages.
func (s *Session) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := make([]string, 0, len(s.elements))
	for g := range s.elements {
		groups = append(groups, g)
	}
	return fmt.Sprintf("fake %s session [%s]", s.SiteName, strings.Join(groups, ","))
}
