// Package worker runs the alert checks on a schedule
package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ngmaloney/dive-relay/internal/alerts"
	"github.com/ngmaloney/dive-relay/internal/geo"
	"github.com/ngmaloney/dive-relay/internal/logging"
)

// DefaultRetryDelay is the first retry delay after a failed or location-less run
const DefaultRetryDelay = 30 * time.Second

// ErrUnknownJob is returned by RunOnce for a name that was never added
var ErrUnknownJob = errors.New("worker: unknown job")

// Outcome of a single run
type Outcome string

const (
	Success Outcome = "success"
	Skip    Outcome = "skip"
	Retry   Outcome = "retry"
)

// Locator provides the last known device position
type Locator interface {
	Last() (geo.Point, bool)
}

// CheckFunc runs one check at p
type CheckFunc func(ctx context.Context, p geo.Point) (alerts.Result, error)

// Job is a named periodic check
type Job struct {
	Name string
	// Interval between regular runs; zero disables scheduling but RunOnce still works
	Interval time.Duration
	Check    CheckFunc
	// RetryWithoutLocation reruns after the retry delay when no fix is known, instead of skipping
	RetryWithoutLocation bool
	// Fallback is used as the location when no fix is known
	Fallback *geo.Point
}

// CheckerJob wraps an alert manager. Typhoon checks retry when no fix is known.
func CheckerJob(c alerts.Checker, interval time.Duration) Job {
	return Job{
		Name:                 c.Kind(),
		Interval:             interval,
		Check:                c.Check,
		RetryWithoutLocation: c.Kind() == alerts.KindTyphoon,
	}
}

// AccidentJob runs the accident check with explicit options.
// A region override makes the job independent of the device location.
func AccidentJob(m *alerts.AccidentManager, interval time.Duration, opts alerts.AccidentOptions) Job {
	job := Job{
		Name:     alerts.KindAccident,
		Interval: interval,
		Check: func(ctx context.Context, p geo.Point) (alerts.Result, error) {
			return m.CheckWith(ctx, p, opts)
		},
	}
	if opts.Region != "" {
		fallback := geo.DefaultPoint
		job.Fallback = &fallback
	}
	return job
}

// Report describes one run
type Report struct {
	Job      string        `json:"job"`
	Outcome  Outcome       `json:"outcome"`
	Result   alerts.Result `json:"result"`
	Error    string        `json:"error,omitempty"`
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration"`
}

// Scheduler runs jobs on their own interval
type Scheduler struct {
	locator    Locator
	logger     *zap.Logger
	retryDelay time.Duration

	mu     sync.Mutex
	jobs   map[string]Job
	order  []string
	last   map[string]Report
	notify func(Report)
}

// New creates a scheduler. A non-positive retryDelay uses DefaultRetryDelay.
func New(locator Locator, retryDelay time.Duration, logger *zap.Logger) *Scheduler {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Scheduler{
		locator:    locator,
		logger:     logging.OrNop(logger).Named("worker"),
		retryDelay: retryDelay,
		jobs:       make(map[string]Job),
		last:       make(map[string]Report),
	}
}

// Add registers a job, replacing one with the same name
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Check == nil {
		return fmt.Errorf("worker: job %q needs a name and a check", job.Name)
	}
	if job.Interval < 0 {
		return fmt.Errorf("worker: job %q has negative interval", job.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; !ok {
		s.order = append(s.order, job.Name)
	}
	s.jobs[job.Name] = job
	return nil
}

// OnReport registers a callback invoked after every run
func (s *Scheduler) OnReport(fn func(Report)) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// Jobs returns the job names in insertion order
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Reports returns the last report of every job that ran, sorted by name
func (s *Scheduler) Reports() []Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Report, 0, len(s.last))
	for _, r := range s.last {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}

// RunOnce runs the named job immediately
func (s *Scheduler) RunOnce(ctx context.Context, name string) (Report, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return Report{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	rep := s.run(ctx, job)
	if rep.Error != "" {
		return rep, errors.New(rep.Error)
	}
	return rep, nil
}

// Run starts every job with a positive interval and blocks until ctx is done.
// Each job runs once right away.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	var jobs []Job
	for _, name := range s.order {
		if job := s.jobs[name]; job.Interval > 0 {
			jobs = append(jobs, job)
		}
	}
	s.mu.Unlock()

	s.logger.Info("scheduler started", zap.Int("jobs", len(jobs)))
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		g.Go(func() error {
			s.loop(ctx, job)
			return nil
		})
	}
	err := g.Wait()
	s.logger.Info("scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		rep := s.run(ctx, job)
		next := job.Interval
		if rep.Outcome == Retry {
			failures++
			next = Backoff(s.retryDelay, job.Interval, failures)
			s.logger.Info("retry scheduled", zap.String("job", job.Name), zap.Duration("in", next), zap.Int("attempt", failures))
		} else {
			failures = 0
		}
		timer.Reset(next)
	}
}

func (s *Scheduler) run(ctx context.Context, job Job) Report {
	start := time.Now()
	rep := Report{Job: job.Name, At: start}

	p, ok := s.location()
	switch {
	case ok:
	case job.Fallback != nil:
		p = *job.Fallback
	case job.RetryWithoutLocation:
		s.logger.Warn("no location, retrying", zap.String("job", job.Name))
		rep.Outcome = Retry
		rep.Result = alerts.Result{Kind: job.Name, Reason: "no location"}
		return s.record(rep)
	default:
		s.logger.Debug("no location, skipping", zap.String("job", job.Name))
		rep.Outcome = Skip
		rep.Result = alerts.Result{Kind: job.Name, Reason: "no location"}
		return s.record(rep)
	}

	res, err := job.Check(ctx, p)
	rep.Result = res
	rep.Duration = time.Since(start)
	switch {
	case err != nil:
		rep.Outcome = Retry
		rep.Error = err.Error()
		s.logger.Error("job failed", zap.String("job", job.Name), zap.Error(err))
	case res.Sent || res.DryRun:
		rep.Outcome = Success
		s.logger.Info("job sent alert", zap.String("job", job.Name), zap.Int("delivered", res.Delivered), zap.Bool("dry_run", res.DryRun))
	default:
		rep.Outcome = Success
		s.logger.Debug("job done", zap.String("job", job.Name), zap.String("reason", res.Reason))
	}
	return s.record(rep)
}

func (s *Scheduler) location() (geo.Point, bool) {
	if s.locator == nil {
		return geo.Point{}, false
	}
	return s.locator.Last()
}

func (s *Scheduler) record(rep Report) Report {
	s.mu.Lock()
	s.last[rep.Job] = rep
	notify := s.notify
	s.mu.Unlock()
	if notify != nil {
		notify(rep)
	}
	return rep
}

// Backoff doubles base for every consecutive failure, capped at limit.
// A non-positive limit leaves the delay uncapped.
func Backoff(base, limit time.Duration, failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if limit > 0 && d >= limit {
			return limit
		}
	}
	if limit > 0 && d > limit {
		return limit
	}
	return d
}
