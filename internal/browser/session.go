package browser

import (
	"context"

	"tunesmith/internal/recovery"
)

// Site names used for profile directories and logging.
const (
	SiteGenerator   = "generator"
	SiteDistributor = "distributor"
)

// Element is a located, visible page element.
type Element interface {
	Click(ctx context.Context) error
	// Fill replaces the element's current value with text.
	Fill(ctx context.Context, text string) error
	SetFiles(ctx context.Context, paths []string) error
	// Select chooses the option whose visible text matches value.
	Select(ctx context.Context, value string) error
	// Check ensures a checkbox or radio input is checked.
	Check(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
}

// Response is an intercepted network response with its body.
type Response struct {
	URL           string
	Method        string
	Status        int
	MIMEType      string
	Body          []byte
	Authorization string
}

// Predicate selects which responses Intercept delivers.
type Predicate func(url string) bool

// Session drives one browser profile for one site. A Session is owned by a
// single pipeline and is not safe for concurrent use.
type Session interface {
	Site() string
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)

	// Find returns the first visible element among the registry's
	// candidates for group, promoting the winner. When none match, every
	// tried candidate is demoted and the error wraps
	// services.ErrSelectorNotFound.
	Find(ctx context.Context, group string) (Element, error)
	// Peek is Find for elements that are usually absent: a hit is
	// promoted, a miss leaves the registry untouched.
	Peek(ctx context.Context, group string) (Element, error)
	// Locate reports which candidate of group is visible now without
	// recording anything.
	Locate(ctx context.Context, group string) (string, error)
	Click(ctx context.Context, group string) error
	Fill(ctx context.Context, group, text string) error
	Upload(ctx context.Context, group string, paths []string) error

	// Listing reads every card matched by the group's best locator, in
	// page order.
	Listing(ctx context.Context, cardGroup string) ([]recovery.Card, error)

	// Intercept streams matching responses until stop is called or ctx
	// ends. The channel is closed afterwards.
	Intercept(ctx context.Context, match Predicate) (responses <-chan Response, stop func())
	// AuthToken returns the most recent Authorization header sent to an
	// intercepted URL.
	AuthToken() string

	Screenshot(ctx context.Context) ([]byte, error)
	// Recover tears the browser down and starts it again on the same profile.
	Recover(ctx context.Context) error
	Close() error
}
