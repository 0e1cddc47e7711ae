package submission

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"tunesmith/internal/capture"
	"tunesmith/internal/fetch"
	"tunesmith/internal/logging"
	"tunesmith/internal/recovery"
	"tunesmith/internal/retry"
	"tunesmith/internal/selectors"
	"tunesmith/internal/services"
	"tunesmith/internal/tagging"
	"tunesmith/internal/verify"
)

// Download strategy names, in the order they are tried.
const (
	StrategyAPI         = "api"
	StrategyListing     = "listing"
	StrategyConstructed = "constructed"
)

type strategy struct {
	name string
	urls func(ctx context.Context, item *WorkItem) ([]string, error)
}

func (p *Pipeline) strategies() []strategy {
	return []strategy{
		{StrategyAPI, p.apiURLs},
		{StrategyListing, p.listingURLs},
		{StrategyConstructed, p.constructedURLs},
	}
}

// download tries each strategy's URLs until one yields a file the verifier
// accepts.
func (p *Pipeline) download(ctx context.Context, item *WorkItem) error {
	if err := p.advance(ctx, item, StateDownloading, "resolving download"); err != nil {
		return err
	}
	logger := logging.WithContext(services.WithStage(ctx, string(StateDownloading)), p.logger)
	tried := make(map[string]struct{})
	var lastErr error
	for _, s := range p.strategies() {
		urls, err := s.urls(ctx, item)
		if err != nil {
			if cancelled(ctx, err) {
				return err
			}
			logger.Info("download strategy produced no URL",
				logging.String("strategy", s.name),
				logging.Error(err),
			)
			lastErr = err
			continue
		}
		sizes := p.fetcher.HeadSizes(ctx, fresh(urls, tried))
		for _, u := range urls {
			if u == "" {
				continue
			}
			if _, seen := tried[u]; seen {
				continue
			}
			tried[u] = struct{}{}

			err := p.fetchOne(ctx, item, s.name, u, sizes[u])
			if err == nil {
				return p.complete(ctx, item, s.name)
			}
			if cancelled(ctx, err) {
				return err
			}
			lastErr = err
			logging.WarnWithContext(logger, "download attempt failed", "download_failed",
				logging.String("strategy", s.name),
				logging.String("category", services.Category(err)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "trying the next download source"),
			)
			if item.State == StateVerifying {
				if err := p.advance(ctx, item, StateDownloading, "rejected "+s.name+" download"); err != nil {
					return err
				}
			}
		}
	}
	detail := fmt.Sprintf("no verifiable file from %d sources", len(tried))
	return services.Wrap(services.ErrDownloadRejected, string(StateDownloading), "download", detail, lastErr)
}

// fresh returns the URLs not yet attempted.
func fresh(urls []string, tried map[string]struct{}) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, seen := tried[u]; !seen && u != "" {
			out = append(out, u)
		}
	}
	return out
}

// fetchOne downloads rawURL to the item's destination. The verifier runs
// on the temporary file, so a rejected or interrupted download never
// reaches the final path. headSize is the size a HEAD request reported,
// or zero when none did.
func (p *Pipeline) fetchOne(ctx context.Context, item *WorkItem, strategyName, rawURL string, headSize int64) error {
	ext := capture.AudioExtension(rawURL)
	dest := DestinationPath(item.DestRoot, item.Title, item.version(), ext, p.now())
	expected := item.ExpectedSize
	if expected <= 0 && headSize > 0 {
		expected = headSize
	}
	hint := strings.TrimPrefix(ext, ".")

	dctx := ctx
	if p.settings.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, p.settings.DownloadTimeout)
		defer cancel()
	}

	var result verify.Result
	check := func(tmp string) error {
		if err := p.advance(ctx, item, StateVerifying, strategyName+" download complete"); err != nil {
			return err
		}
		res, err := verify.Verify(tmp, hint, expected)
		if err != nil {
			return err
		}
		result = res
		return nil
	}
	_, err := retry.Do(dctx, p.retry, "download "+strategyName, func(ctx context.Context, a retry.Attempt) (int64, error) {
		if a.Number > 1 {
			item.Retries++
		}
		return p.fetcher.Download(ctx, rawURL, dest, check, p.progress(item))
	})
	if err != nil {
		if ctx.Err() == nil && errors.Is(dctx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, string(StateDownloading), "download", fmt.Sprintf("exceeded %s", p.settings.DownloadTimeout), err)
		}
		return err
	}

	item.FilePath = dest
	item.FileSize = result.Size
	if item.Metadata.FileFormat == "" {
		item.Metadata.FileFormat = result.Format
	}
	if !result.MatchesHint() {
		logging.WithContext(ctx, p.logger).Info("artifact format differs from its extension",
			logging.String("format", result.Format),
			logging.String("extension", ext),
		)
	}
	return nil
}

// progress emits download events at every tenth of the transfer.
func (p *Pipeline) progress(item *WorkItem) fetch.Progress {
	sampler := logging.NewProgressSampler(10)
	return func(written, total int64) {
		if total <= 0 {
			return
		}
		done := float64(min(written, total)) * 100 / float64(total)
		if !sampler.ShouldLog("download", done) {
			return
		}
		percent := statePercent[StateDownloading] + int(done/10)*2
		p.emit(item, fmt.Sprintf("downloaded %d of %d bytes", written, total), percent)
	}
}

func (p *Pipeline) complete(ctx context.Context, item *WorkItem, strategyName string) error {
	if p.tag != nil && tagging.Applies(item.FilePath) {
		if err := p.tag(item.FilePath, item); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, p.logger), "could not tag artifact", "tagging_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "the file is kept without tags"),
			)
		} else if info, err := os.Stat(item.FilePath); err == nil {
			item.FileSize = info.Size()
		}
	}
	// The artifact is already committed; record it even if a stop arrives now.
	return p.transition(ctx, item, StateCompleted, fmt.Sprintf("saved via %s (%d bytes)", strategyName, item.FileSize), "")
}

func (p *Pipeline) apiURLs(ctx context.Context, item *WorkItem) ([]string, error) {
	if u := item.Metadata.AudioURL(item.version()); u != "" {
		return []string{u}, nil
	}
	if item.TaskID == "" {
		return nil, nil
	}
	body, err := p.fetcher.Status(ctx, p.settings.StatusEndpoint, item.TaskID, p.session.AuthToken())
	if err != nil {
		return nil, err
	}
	item.absorbMetadata(capture.ExtractMetadata(body, p.settings.StorageBaseURL), true)
	return []string{item.Metadata.AudioURL(item.version())}, nil
}

// listingURLs finds the song on the generator's home listing.
func (p *Pipeline) listingURLs(ctx context.Context, item *WorkItem) ([]string, error) {
	logger := logging.WithContext(ctx, p.logger)
	if err := p.session.Click(ctx, selectors.HomeNav); err != nil {
		if cancelled(ctx, err) {
			return nil, err
		}
		if err := p.session.Navigate(ctx, p.settings.HomeURL); err != nil {
			return nil, err
		}
	}
	cards, err := p.session.Listing(ctx, selectors.ProjectCard)
	if err != nil {
		return nil, err
	}
	match, err := recovery.FindMatch(cards, item.Criteria())
	if err != nil {
		return nil, err
	}
	logger.Info("song located on listing",
		logging.String("strategy", match.Strategy),
		logging.Int("card", match.Card.Index),
		logging.Int("score", match.Score),
		logging.String("project_id", match.Card.ProjectID),
	)
	if item.ProjectID == "" {
		item.ProjectID = match.Card.ProjectID
	}

	var urls []string
	if match.Card.AudioURL != "" {
		urls = append(urls, match.Card.AudioURL)
	}
	if id := match.Card.ProjectID; id != "" {
		body, err := p.fetcher.Status(ctx, p.settings.StatusEndpoint, id, p.session.AuthToken())
		if err != nil {
			if cancelled(ctx, err) {
				return nil, err
			}
			logger.Debug("project status lookup failed", logging.Error(err))
		} else {
			meta := capture.ExtractMetadata(body, p.settings.StorageBaseURL)
			item.absorbMetadata(meta, true)
			if u := meta.AudioURL(item.version()); u != "" {
				urls = append(urls, u)
			}
		}
	}
	return urls, nil
}

// constructedURLs derives storage URLs from known identifiers without any
// page interaction.
func (p *Pipeline) constructedURLs(_ context.Context, item *WorkItem) ([]string, error) {
	var urls []string
	for _, id := range []string{item.ConversionID(), item.TaskID} {
		if u := capture.ConstructedURL(p.settings.StorageBaseURL, id); u != "" {
			urls = append(urls, u)
		}
	}
	return urls, nil
}
