package browser

import (
	"context"
	"errors"

	"tunesmith/internal/services"
)

// HealthCheck names a selector group that should be visible on a page.
type HealthCheck struct {
	Group string
	URL   string
}

// HealthResult is the outcome of one HealthCheck.
type HealthResult struct {
	Site    string `json:"site"`
	Group   string `json:"group"`
	URL     string `json:"url"`
	Locator string `json:"locator,omitempty"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// CheckHealth visits each check's page and locates its group. Nothing is
// recorded in the registry, so a check run never disturbs learned
// orderings. Consecutive checks on the same URL share one navigation.
func CheckHealth(ctx context.Context, s Session, checks []HealthCheck) []HealthResult {
	results := make([]HealthResult, 0, len(checks))
	var (
		current string
		navErr  error
	)
	for _, check := range checks {
		result := HealthResult{Site: s.Site(), Group: check.Group, URL: check.URL}
		if err := ctx.Err(); err != nil {
			result.Error = "cancelled"
			results = append(results, result)
			continue
		}
		if check.URL != current {
			current = check.URL
			navErr = s.Navigate(ctx, check.URL)
		}
		if navErr != nil {
			result.Error = "page did not load: " + navErr.Error()
			results = append(results, result)
			continue
		}
		locator, err := s.Locate(ctx, check.Group)
		switch {
		case err == nil:
			result.OK = true
			result.Locator = locator
		case errors.Is(err, services.ErrSelectorNotFound):
			result.Error = "no candidate visible"
		default:
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}
