package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tunesmith/internal/logging"
	"tunesmith/internal/selectors"
	"tunesmith/internal/services"
)

// ErrNotVisible is returned by a LocatorFunc when the locator matched nothing
// visible within its wait.
var ErrNotVisible = errors.New("element not visible")

// LocatorFunc looks up one locator and returns the element when it is visible.
type LocatorFunc func(ctx context.Context, locator Locator) (Element, error)

// Locator is a parsed candidate string.
type Locator struct {
	Raw     string
	CSS     string
	TextRE  string
	HasText bool
}

// ParseLocator splits "css::regex" into its parts. A plain string is a CSS
// selector.
func ParseLocator(raw string) Locator {
	css, re, ok := strings.Cut(raw, selectors.TextSeparator)
	if !ok {
		return Locator{Raw: raw, CSS: strings.TrimSpace(raw)}
	}
	return Locator{Raw: raw, CSS: strings.TrimSpace(css), TextRE: re, HasText: true}
}

// FindWith walks the registry ordering for group, returning the first
// element try accepts along with the locator that found it. The winner is
// promoted; when nothing matches every tried candidate is demoted.
func FindWith(ctx context.Context, reg *selectors.Registry, group string, try LocatorFunc, logger *slog.Logger) (Element, string, error) {
	el, candidate, tried, err := lookup(ctx, reg, group, try)
	if err != nil && !errors.Is(err, services.ErrSelectorNotFound) {
		return nil, "", err
	}
	if el != nil {
		reg.RecordSuccess(ctx, group, candidate)
		if len(tried) > 0 {
			logging.WithContext(ctx, logger).Info("selector fallback used",
				logging.String("group", group),
				logging.String("locator", candidate),
				logging.Int("misses", len(tried)),
			)
		}
		return el, candidate, nil
	}
	for _, miss := range tried {
		reg.RecordFailure(ctx, group, miss)
	}
	if len(tried) > 0 {
		logging.WarnWithContext(logging.WithContext(ctx, logger), "no selector candidate matched", "selector_not_found",
			logging.String("group", group),
			logging.Int("candidates", len(tried)),
			logging.String(logging.FieldErrorHint, "the site layout may have changed; add a locator to the registry"),
			logging.String(logging.FieldImpact, "the current step fails"),
		)
	}
	return nil, "", err
}

// PeekWith is FindWith for elements that are expected to be absent most of
// the time, such as a banner being polled for. A hit is promoted; a miss
// changes nothing.
func PeekWith(ctx context.Context, reg *selectors.Registry, group string, try LocatorFunc) (Element, string, error) {
	el, candidate, _, err := lookup(ctx, reg, group, try)
	if err != nil {
		return nil, "", err
	}
	reg.RecordSuccess(ctx, group, candidate)
	return el, candidate, nil
}

// LocateWith reports the first candidate of group that try accepts and
// leaves the registry untouched.
func LocateWith(ctx context.Context, reg *selectors.Registry, group string, try LocatorFunc) (string, error) {
	_, candidate, _, err := lookup(ctx, reg, group, try)
	return candidate, err
}

// lookup tries candidates in registry order. On a miss it returns the tried
// candidates and an error wrapping services.ErrSelectorNotFound.
func lookup(ctx context.Context, reg *selectors.Registry, group string, try LocatorFunc) (Element, string, []string, error) {
	candidates := reg.Resolve(group)
	if len(candidates) == 0 {
		return nil, "", nil, services.Wrap(services.ErrSelectorNotFound, "find", group, "no candidates registered", nil)
	}
	tried := make([]string, 0, len(candidates))
	var lastErr error
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, "", nil, services.Wrap(services.ErrCancelled, "find", group, "context done", err)
		}
		el, err := try(ctx, ParseLocator(candidate))
		if err == nil && el != nil {
			return el, candidate, tried, nil
		}
		if ctx.Err() != nil {
			return nil, "", nil, services.Wrap(services.ErrCancelled, "find", group, "context done", ctx.Err())
		}
		tried = append(tried, candidate)
		lastErr = err
	}
	detail := fmt.Sprintf("%d candidates tried", len(tried))
	return nil, "", tried, services.Wrap(services.ErrSelectorNotFound, "find", group, detail, lastErr)
}
