package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tunesmith/internal/browser"
	"tunesmith/internal/capture"
	"tunesmith/internal/logging"
	"tunesmith/internal/retry"
	"tunesmith/internal/selectors"
	"tunesmith/internal/services"
)

// submitAndCapture fills the create form, clicks generate and listens for
// the task identifier. It reports whether one was captured.
func (p *Pipeline) submitAndCapture(ctx context.Context, item *WorkItem) (bool, error) {
	if err := p.advance(ctx, item, StateSubmitting, "filling generator form"); err != nil {
		return false, err
	}
	var (
		responses <-chan browser.Response
		stop      func()
	)
	err := p.retry.Execute(ctx, "submit song", func(ctx context.Context, a retry.Attempt) error {
		if a.Number > 1 {
			item.Retries++
			if errors.Is(a.LastErr, services.ErrNetwork) {
				if err := p.session.Recover(ctx); err != nil {
					return err
				}
			}
		}
		var err error
		responses, stop, err = p.submitOnce(ctx, item)
		return err
	})
	if err != nil {
		return false, err
	}
	defer stop()

	if err := p.advance(ctx, item, StateAwaitingIdentifier, "generate clicked"); err != nil {
		return false, err
	}
	return p.awaitIdentifier(ctx, item, responses)
}

func (p *Pipeline) submitOnce(ctx context.Context, item *WorkItem) (<-chan browser.Response, func(), error) {
	if err := p.session.Navigate(ctx, p.settings.CreateURL); err != nil {
		return nil, nil, err
	}
	if err := p.session.Fill(ctx, selectors.PromptInput, item.Prompt); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(item.Lyrics) != "" {
		if err := p.session.Click(ctx, selectors.LyricsToggle); err != nil {
			if !errors.Is(err, services.ErrSelectorNotFound) {
				return nil, nil, err
			}
			// The panel is open already on some layouts.
			logging.WithContext(ctx, p.logger).Debug("lyrics toggle not found", logging.Error(err))
		}
		if err := p.session.Fill(ctx, selectors.LyricsInput, item.Lyrics); err != nil {
			return nil, nil, err
		}
	}
	responses, stop := p.session.Intercept(ctx, p.matcher.IsAPI)
	if err := p.session.Click(ctx, selectors.GenerateButton); err != nil {
		stop()
		return nil, nil, err
	}
	return responses, stop, nil
}

// awaitIdentifier reads intercepted responses, checking every capture
// interval whether a task id has turned up.
func (p *Pipeline) awaitIdentifier(ctx context.Context, item *WorkItem, responses <-chan browser.Response) (bool, error) {
	logger := logging.WithContext(services.WithStage(ctx, string(StateAwaitingIdentifier)), p.logger)
	deadline := time.NewTimer(p.settings.IdentifierTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(p.settings.CaptureInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, services.Wrap(services.ErrCancelled, string(StateAwaitingIdentifier), "capture identifier", "cancelled", ctx.Err())
		case resp, ok := <-responses:
			if !ok {
				responses = nil
				continue
			}
			p.absorbResponse(item, resp)
		case <-tick.C:
			if item.TaskID != "" {
				logger.Info("task identifier captured",
					logging.String("task_id", item.TaskID),
					logging.String("conversion_id_1", item.ConversionID1),
					logging.String("conversion_id_2", item.ConversionID2),
				)
				return true, nil
			}
		case <-deadline.C:
			if item.TaskID != "" {
				return true, nil
			}
			logging.WarnWithContext(logger, "no task identifier captured", "identifier_timeout",
				logging.Duration("timeout", p.settings.IdentifierTimeout),
				logging.String(logging.FieldErrorHint, "the generator API may have moved; check generator.api_hosts"),
				logging.String(logging.FieldImpact, "the song is located on the listing page instead"),
			)
			return false, nil
		}
	}
}

func (p *Pipeline) absorbResponse(item *WorkItem, resp browser.Response) {
	if len(resp.Body) == 0 {
		return
	}
	tree, err := capture.Decode(resp.Body)
	if err != nil {
		return
	}
	id, ok := capture.ExtractIdentifier(tree)
	if !ok {
		return
	}
	item.absorb(id)
	item.absorbMetadata(capture.ExtractMetadata(tree, p.settings.StorageBaseURL), false)
}

// poll queries the status endpoint until the generation finishes. An
// unreachable endpoint is not fatal: the download strategies still have the
// identifiers to work with.
func (p *Pipeline) poll(ctx context.Context, item *WorkItem) error {
	if err := p.advance(ctx, item, StatePolling, "task "+item.TaskID); err != nil {
		return err
	}
	logger := logging.WithContext(services.WithStage(ctx, string(StatePolling)), p.logger)
	started := p.now()
	for {
		body, err := retry.Do(ctx, p.retry, "query status", func(ctx context.Context, _ retry.Attempt) (any, error) {
			return p.fetcher.Status(ctx, p.settings.StatusEndpoint, item.TaskID, p.session.AuthToken())
		})
		if err != nil {
			if cancelled(ctx, err) {
				return err
			}
			logging.WarnWithContext(logger, "status endpoint unavailable", "status_unavailable",
				logging.Error(err),
				logging.String(logging.FieldImpact, "downloading without fresh metadata"),
			)
			break
		}
		item.absorbMetadata(capture.ExtractMetadata(body, p.settings.StorageBaseURL), true)

		status := capture.Status(body)
		switch status {
		case capture.StatusCompleted:
			return p.advance(ctx, item, StateResolved, "generation completed")
		case capture.StatusError, capture.StatusFailed:
			msg := capture.ErrorMessage(body)
			if msg == "" {
				msg = "generation " + strings.ToLower(status)
			}
			return services.Wrap(services.ErrRemoteFailure, string(StatePolling), "generation", msg, nil)
		}
		if elapsed := p.now().Sub(started); elapsed >= p.settings.PollTimeout {
			return services.Wrap(services.ErrTimeout, string(StatePolling), "generation",
				fmt.Sprintf("not complete after %s (last status %q)", p.settings.PollTimeout, status), nil)
		}
		p.emit(item, fmt.Sprintf("waiting for generation (%s)", strings.ToLower(orDefault(status, "pending"))), statePercent[StatePolling])
		if err := p.sleep(ctx, p.settings.PollInterval); err != nil {
			return services.Wrap(services.ErrCancelled, string(StatePolling), "wait", "cancelled", err)
		}
	}
	return p.advance(ctx, item, StateResolved, "status unavailable")
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
