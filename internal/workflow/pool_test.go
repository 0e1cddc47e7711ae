package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"tunesmith/internal/browser/browsertest"
	"tunesmith/internal/retry"
	"tunesmith/internal/services"
	"tunesmith/internal/submission"
	"tunesmith/internal/workflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
	batches   [][2]int
}

func (s *stubNotifier) NotifySongCompleted(_ context.Context, title, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, title+"|"+path)
	return nil
}

func (s *stubNotifier) NotifySongFailed(_ context.Context, title, category, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, title+"|"+category)
	return nil
}

func (s *stubNotifier) NotifyReleaseSubmitted(context.Context, string) error { return nil }

func (s *stubNotifier) NotifyLoginRequired(context.Context, string, string, time.Time) error {
	return nil
}

func (s *stubNotifier) NotifyBatchCompleted(_ context.Context, succeeded, failed int, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, [2]int{succeeded, failed})
	return nil
}

func (s *stubNotifier) TestNotification(context.Context) error { return nil }

func emitting(key string, steps int, err error) workflow.Job {
	return workflow.Job{
		Key:   key,
		Title: "Song " + key,
		Run: func(ctx context.Context, events chan<- submission.Event) error {
			for i := 0; i < steps; i++ {
				events <- submission.Event{ItemKey: key, Step: i, Percent: i * 100 / steps}
			}
			return err
		},
	}
}

// collect drains ch until it is closed.
func collect(ch <-chan submission.Event) <-chan []submission.Event {
	out := make(chan []submission.Event, 1)
	go func() {
		var events []submission.Event
		for ev := range ch {
			events = append(events, ev)
		}
		out <- events
	}()
	return out
}

func TestPoolBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	jobs := make([]workflow.Job, 6)
	for i := range jobs {
		jobs[i] = workflow.Job{
			Key: fmt.Sprintf("job-%d", i),
			Run: func(ctx context.Context, _ chan<- submission.Event) error {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return nil
			},
		}
	}

	results := workflow.NewPool(2).Run(context.Background(), jobs)

	require.Len(t, results, 6)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestPoolKeepsGoingPastFailures(t *testing.T) {
	boom := services.Wrap(services.ErrTimeout, "polling", "poll", "generation did not finish", nil)
	jobs := []workflow.Job{
		emitting("a", 1, nil),
		emitting("b", 1, boom),
		emitting("c", 1, nil),
	}
	notifier := &stubNotifier{}

	results := workflow.NewPool(1, workflow.WithNotifier(notifier)).Run(context.Background(), jobs)

	require.Len(t, results, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{results[0].Key, results[1].Key, results[2].Key})
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, services.ErrTimeout)
	assert.NoError(t, results[2].Err)

	succeeded, failed := workflow.Summarize(results)
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, [][2]int{{2, 1}}, notifier.batches)
}

func TestPoolFansInEventsInPerJobOrder(t *testing.T) {
	sink := make(chan submission.Event)
	done := collect(sink)

	pool := workflow.NewPool(3, workflow.WithEvents(sink))
	results := pool.Run(context.Background(), []workflow.Job{
		emitting("a", 5, nil),
		emitting("b", 5, nil),
		emitting("c", 5, nil),
	})
	close(sink)
	events := <-done

	for _, r := range results {
		require.NoError(t, r.Err)
	}
	require.Len(t, events, 15)
	last := map[string]int{}
	for _, ev := range events {
		prev, seen := last[ev.ItemKey]
		if seen {
			assert.Greater(t, ev.Step, prev, "events for %s out of order", ev.ItemKey)
		}
		last[ev.ItemKey] = ev.Step
	}

	snapshot := pool.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "a", snapshot[0].ItemKey)
	assert.Equal(t, 4, snapshot[0].Step)
}

func TestPoolCancelsOneJob(t *testing.T) {
	pool := workflow.NewPool(2)
	blocked := workflow.Job{
		Key: "stuck",
		Run: func(ctx context.Context, _ chan<- submission.Event) error {
			<-ctx.Done()
			return services.Wrap(services.ErrCancelled, "polling", "poll", "stopped", context.Cause(ctx))
		},
	}
	release := make(chan struct{})
	other := workflow.Job{
		Key: "fine",
		Run: func(ctx context.Context, _ chan<- submission.Event) error {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}

	resultsCh := make(chan []workflow.Result, 1)
	go func() { resultsCh <- pool.Run(context.Background(), []workflow.Job{blocked, other}) }()

	require.Eventually(t, func() bool { return len(pool.Active()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"fine", "stuck"}, pool.Active())
	assert.True(t, pool.Cancel("stuck"))
	assert.False(t, pool.Cancel("missing"))
	close(release)

	results := <-resultsCh
	assert.ErrorIs(t, results[0].Err, workflow.ErrJobCancelled)
	assert.Equal(t, "cancelled", services.Category(results[0].Err))
	assert.NoError(t, results[1].Err)
	assert.Empty(t, pool.Active())
}

func TestPoolRejectsDuplicateKeys(t *testing.T) {
	var calls atomic.Int32
	job := workflow.Job{
		Key: "same",
		Run: func(context.Context, chan<- submission.Event) error {
			calls.Add(1)
			return nil
		},
	}

	results := workflow.NewPool(2).Run(context.Background(), []workflow.Job{job, job})

	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, workflow.ErrDuplicateJob)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPoolSkipsJobsAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int32
	job := func(key string) workflow.Job {
		return workflow.Job{Key: key, Run: func(context.Context, chan<- submission.Event) error {
			calls.Add(1)
			return nil
		}}
	}

	results := workflow.NewPool(1).Run(ctx, []workflow.Job{job("a"), job("b")})

	for _, r := range results {
		assert.ErrorIs(t, r.Err, services.ErrCancelled)
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
	assert.Zero(t, calls.Load())
}

func newPipelineFactory(t *testing.T) workflow.PipelineFactory {
	t.Helper()
	return func(_ context.Context, events chan<- submission.Event) (*submission.Pipeline, func(), error) {
		session := browsertest.New("musicgpt")
		p := submission.New(session, nil, retry.New(1, 0), submission.Settings{},
			submission.WithEvents(events),
		)
		return p, func() { _ = session.Close() }, nil
	}
}

func TestSongJobReportsValidationFailure(t *testing.T) {
	item := &submission.WorkItem{Key: "song-1", Title: "Night Drive"}
	notifier := &stubNotifier{}
	sink := make(chan submission.Event)
	done := collect(sink)

	pool := workflow.NewPool(1, workflow.WithEvents(sink), workflow.WithNotifier(notifier))
	results := pool.Run(context.Background(), []workflow.Job{workflow.SongJob(item, newPipelineFactory(t))})
	close(sink)
	events := <-done

	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, services.ErrValidation)
	assert.Equal(t, submission.StateFailed, item.State)
	require.NotEmpty(t, events)
	assert.Equal(t, submission.StateFailed, events[len(events)-1].State)
	assert.Equal(t, []string{"Night Drive|validation"}, notifier.failed)
	assert.Empty(t, notifier.batches, "single job batches do not notify")
}

func TestSongJobReportsCompletedItem(t *testing.T) {
	item := &submission.WorkItem{
		Key:      "song-2",
		Title:    "Sunrise",
		Prompt:   "warm piano",
		DestRoot: t.TempDir(),
		State:    submission.StateCompleted,
		FilePath: "/music/sunrise_v1.mp3",
	}
	notifier := &stubNotifier{}

	results := workflow.NewPool(1, workflow.WithNotifier(notifier)).
		Run(context.Background(), []workflow.Job{workflow.SongJob(item, newPipelineFactory(t))})

	require.NoError(t, results[0].Err)
	assert.Equal(t, []string{"Sunrise|/music/sunrise_v1.mp3"}, notifier.completed)
}

func TestSongJobReportsFactoryFailure(t *testing.T) {
	item := &submission.WorkItem{Key: "song-3", Title: "Lost"}
	notifier := &stubNotifier{}
	launch := services.Wrap(services.ErrConfiguration, "browser", "launch", "browser binary not found", nil)
	factory := func(context.Context, chan<- submission.Event) (*submission.Pipeline, func(), error) {
		return nil, nil, launch
	}

	results := workflow.NewPool(1, workflow.WithNotifier(notifier)).
		Run(context.Background(), []workflow.Job{workflow.SongJob(item, factory)})

	assert.True(t, errors.Is(results[0].Err, services.ErrConfiguration))
	assert.Equal(t, []string{"Lost|configuration"}, notifier.failed)
}

func TestSongJobStaysQuietWhenCancelled(t *testing.T) {
	item := &submission.WorkItem{Key: "song-4", Title: "Halfway"}
	notifier := &stubNotifier{}
	factory := func(ctx context.Context, _ chan<- submission.Event) (*submission.Pipeline, func(), error) {
		return nil, nil, services.Wrap(services.ErrCancelled, "browser", "open", "stopped while waiting for a browser profile", context.Canceled)
	}

	results := workflow.NewPool(1, workflow.WithNotifier(notifier)).
		Run(context.Background(), []workflow.Job{workflow.SongJob(item, factory)})

	assert.ErrorIs(t, results[0].Err, services.ErrCancelled)
	assert.Empty(t, notifier.failed)
	assert.Empty(t, notifier.completed)
}
