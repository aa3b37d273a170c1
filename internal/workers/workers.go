// Package workers runs the periodic maintenance of meetings: purge recovery,
// abandoned meeting cleanup, organizer presence, scrutator round expiry,
// report expiry and the timed poll close sweep.
package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"votesecret/lib/sl"
)

type Core interface {
	RecoverPurges(ctx context.Context) (int, error)
	CleanupAbandoned(ctx context.Context) (int, error)
	SweepOrganizerPresence(ctx context.Context) (int, error)
	ExpireReportRequests(ctx context.Context) (int, error)
	DeleteExpiredReports(ctx context.Context) (int64, error)
	ClosePollsDue(ctx context.Context) (int, error)
}

// Job is one periodic task; Run returns the number of items it handled.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int64, error)
}

type Workers struct {
	jobs    []Job
	timeout time.Duration
	log     *slog.Logger
	wg      sync.WaitGroup
}

func New(core Core, sweep, pollSweep time.Duration, log *slog.Logger) *Workers {
	count := func(f func(context.Context) (int, error)) func(context.Context) (int64, error) {
		return func(ctx context.Context) (int64, error) {
			n, err := f(ctx)
			return int64(n), err
		}
	}
	return &Workers{
		jobs: []Job{
			{Name: "recover_purges", Interval: sweep, Run: count(core.RecoverPurges)},
			{Name: "cleanup_abandoned", Interval: sweep, Run: count(core.CleanupAbandoned)},
			{Name: "organizer_presence", Interval: sweep, Run: count(core.SweepOrganizerPresence)},
			{Name: "expire_report_requests", Interval: sweep, Run: count(core.ExpireReportRequests)},
			{Name: "delete_expired_reports", Interval: sweep, Run: core.DeleteExpiredReports},
			{Name: "close_due_polls", Interval: pollSweep, Run: count(core.ClosePollsDue)},
		},
		timeout: 30 * time.Second,
		log:     log.With(sl.Module("workers")),
	}
}

// Start runs every job once, recovery first so interrupted purges finish
// before anything else touches the data, then on its own ticker until ctx is done.
func (w *Workers) Start(ctx context.Context) {
	for _, job := range w.jobs {
		w.run(ctx, job)
	}
	for _, job := range w.jobs {
		if job.Interval <= 0 {
			w.log.Warn("job disabled", slog.String("job", job.Name))
			continue
		}
		w.wg.Add(1)
		go func(job Job) {
			defer w.wg.Done()
			ticker := time.NewTicker(job.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					w.run(ctx, job)
				}
			}
		}(job)
	}
	w.log.With(slog.Int("jobs", len(w.jobs))).Info("workers started")
}

// Wait blocks until all job loops returned after ctx was cancelled.
func (w *Workers) Wait() {
	w.wg.Wait()
}

func (w *Workers) run(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	log := w.log.With(slog.String("job", job.Name))
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panic", slog.Any("panic", r))
		}
	}()
	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	n, err := job.Run(runCtx)
	if err != nil {
		log.Error("job failed", sl.Err(err))
		return
	}
	if n > 0 {
		log.With(
			slog.Int64("count", n),
			slog.Duration("took", time.Since(start)),
		).Info("job done")
	}
}
