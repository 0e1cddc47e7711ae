package preflight

import (
	"context"

	"tunesmith/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Options selects optional checks.
type Options struct {
	// Network checks reachability of the generator and distributor sites.
	Network bool
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Download directory", cfg.Paths.DownloadDir),
		CheckDirectoryAccess("Profiles directory", cfg.Paths.ProfilesDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckBrowserBinary(cfg.Browser.Bin),
		CheckSelectorStore(ctx, cfg.Paths.SelectorRegistry),
	}

	if opts.Network {
		results = append(results,
			CheckSite(ctx, "Generator site", cfg.Generator.BaseURL),
			CheckSite(ctx, "Distributor site", cfg.Distributor.MyMusicURL),
		)
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
