package workflow

import (
	"context"
	"errors"

	"tunesmith/internal/notifications"
	"tunesmith/internal/services"
	"tunesmith/internal/submission"
)

// PipelineFactory builds the pipeline for one job. Each job gets its own
// browser session; release closes it.
type PipelineFactory func(ctx context.Context, events chan<- submission.Event) (pipeline *submission.Pipeline, release func(), err error)

// SongJob runs item through a pipeline from factory.
func SongJob(item *submission.WorkItem, factory PipelineFactory) Job {
	return Job{
		Key:   item.Key,
		Title: item.Title,
		Run: func(ctx context.Context, events chan<- submission.Event) error {
			pipeline, release, err := factory(ctx, events)
			if err != nil {
				return err
			}
			if release != nil {
				defer release()
			}
			return pipeline.Run(ctx, item)
		},
		Done: func(ctx context.Context, notifier notifications.Service, err error) error {
			if errors.Is(err, services.ErrCancelled) || errors.Is(err, ErrJobCancelled) {
				return nil
			}
			if err != nil {
				category, detail := item.FailureCategory, item.FailureDetail
				if category == "" {
					// The pipeline never started, e.g. the browser failed to launch.
					category, detail = services.Category(err), err.Error()
				}
				return notifier.NotifySongFailed(ctx, item.Title, category, detail)
			}
			if item.State != submission.StateCompleted {
				return nil
			}
			return notifier.NotifySongCompleted(ctx, item.Title, item.FilePath)
		},
	}
}
