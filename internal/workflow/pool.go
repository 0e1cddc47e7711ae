package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tunesmith/internal/logging"
	"tunesmith/internal/notifications"
	"tunesmith/internal/services"
	"tunesmith/internal/submission"
)

const eventBuffer = 16

var (
	// ErrJobCancelled is the cancellation cause set by Pool.Cancel.
	ErrJobCancelled = errors.New("job cancelled")
	// ErrDuplicateJob rejects a job whose key is already queued or running.
	ErrDuplicateJob = errors.New("job already running")
)

// Job is one pipeline run. Run sends progress on events and must return
// once ctx is done. Events is closed by the pool after Run returns.
type Job struct {
	Key   string
	Title string
	Run   func(ctx context.Context, events chan<- submission.Event) error
	// Done is called with Run's error after the job finishes.
	Done func(ctx context.Context, notifier notifications.Service, err error) error
}

// Result is the outcome of one job.
type Result struct {
	Key     string
	Title   string
	Err     error
	Elapsed time.Duration
}

// Pool runs jobs with bounded concurrency and fans their progress into one
// sink.
type Pool struct {
	workers  int
	sink     chan<- submission.Event
	logger   *slog.Logger
	notifier notifications.Service
	now      func() time.Time

	mu     sync.Mutex
	active map[string]context.CancelCauseFunc
	latest map[string]submission.Event
}

// Option customises a Pool.
type Option func(*Pool)

// WithEvents forwards every job's events to ch. The caller must keep
// draining ch until Run returns.
func WithEvents(ch chan<- submission.Event) Option {
	return func(p *Pool) { p.sink = ch }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) { p.logger = logging.NewComponentLogger(logger, "workflow") }
}

// WithNotifier sends job and batch notifications through n.
func WithNotifier(n notifications.Service) Option {
	return func(p *Pool) { p.notifier = n }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// NewPool returns a pool running at most workers jobs at once.
func NewPool(workers int, opts ...Option) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		workers: workers,
		logger:  logging.NewComponentLogger(nil, "workflow"),
		now:     time.Now,
		active:  make(map[string]context.CancelCauseFunc),
		latest:  make(map[string]submission.Event),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes jobs and returns one Result per job in input order. A
// failing job never stops the others; cancelling ctx stops them all.
func (p *Pool) Run(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	start := p.now()

	var g errgroup.Group
	g.SetLimit(p.workers)
	seen := make(map[string]bool, len(jobs))
	for i, job := range jobs {
		results[i] = Result{Key: job.Key, Title: job.Title}
		if seen[job.Key] {
			results[i].Err = fmt.Errorf("%s: %w", job.Key, ErrDuplicateJob)
			continue
		}
		seen[job.Key] = true
		g.Go(func() error {
			results[i] = p.runJob(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	if len(jobs) > 1 {
		p.notifyBatch(ctx, results, p.now().Sub(start))
	}
	return results
}

// Cancel stops the running job with key. It reports whether one was found.
func (p *Pool) Cancel(key string) bool {
	p.mu.Lock()
	cancel, ok := p.active[key]
	p.mu.Unlock()
	if ok {
		cancel(ErrJobCancelled)
	}
	return ok
}

// Active lists the keys of running jobs.
func (p *Pool) Active() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.active))
	for key := range p.active {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns the latest event seen for every job, ordered by key.
func (p *Pool) Snapshot() []submission.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]submission.Event, 0, len(p.latest))
	for _, ev := range p.latest {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemKey < out[j].ItemKey })
	return out
}

func (p *Pool) runJob(ctx context.Context, job Job) Result {
	result := Result{Key: job.Key, Title: job.Title}
	start := p.now()
	logger := logging.WithContext(services.WithItemKey(ctx, job.Key), p.logger)

	if err := ctx.Err(); err != nil {
		result.Err = services.Wrap(services.ErrCancelled, "workflow", "start job", "batch stopped before the job started", err)
		return result
	}
	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if !p.register(job.Key, cancel) {
		result.Err = fmt.Errorf("%s: %w", job.Key, ErrDuplicateJob)
		return result
	}
	defer p.unregister(job.Key)

	events := make(chan submission.Event, eventBuffer)
	forwarded := make(chan struct{})
	go p.forward(events, forwarded)

	logger.Debug("job started", logging.String("title", job.Title))
	err := job.Run(jobCtx, events)
	close(events)
	<-forwarded

	if err != nil && errors.Is(context.Cause(jobCtx), ErrJobCancelled) && !errors.Is(err, ErrJobCancelled) {
		err = fmt.Errorf("%w: %w", ErrJobCancelled, err)
	}
	result.Err = err
	result.Elapsed = p.now().Sub(start)

	if err != nil {
		logging.WarnWithContext(logger, "job failed", "job_failed",
			logging.String("title", job.Title),
			logging.String("category", services.Category(err)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.UserMessage(err)),
		)
	} else {
		logger.Info("job finished",
			logging.String("title", job.Title),
			logging.Duration("elapsed", result.Elapsed),
		)
	}

	if job.Done != nil && p.notifier != nil {
		if doneErr := job.Done(context.WithoutCancel(ctx), p.notifier, err); doneErr != nil {
			logger.Debug("job notification failed", logging.Error(doneErr))
		}
	}
	return result
}

func (p *Pool) forward(events <-chan submission.Event, done chan<- struct{}) {
	defer close(done)
	for ev := range events {
		p.mu.Lock()
		p.latest[ev.ItemKey] = ev
		p.mu.Unlock()
		if p.sink != nil {
			p.sink <- ev
		}
	}
}

func (p *Pool) register(key string, cancel context.CancelCauseFunc) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.active[key]; exists {
		return false
	}
	p.active[key] = cancel
	return true
}

func (p *Pool) unregister(key string) {
	p.mu.Lock()
	delete(p.active, key)
	p.mu.Unlock()
}

func (p *Pool) notifyBatch(ctx context.Context, results []Result, elapsed time.Duration) {
	if p.notifier == nil {
		return
	}
	succeeded, failed := Summarize(results)
	if err := p.notifier.NotifyBatchCompleted(context.WithoutCancel(ctx), succeeded, failed, elapsed); err != nil {
		p.logger.Debug("batch notification failed", logging.Error(err))
	}
}

// Summarize counts successful and failed results.
func Summarize(results []Result) (succeeded, failed int) {
	for _, r := range results {
		if r.Err != nil {
			failed++
		} else {
			succeeded++
		}
	}
	return succeeded, failed
}
