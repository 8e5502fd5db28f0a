package dvm

import (
	"context"
	"sync"
	"time"

	"divine-dvm/internal/common/database"
	"divine-dvm/internal/common/logger"
	"divine-dvm/internal/common/metrics"
	"divine-dvm/internal/common/nostr"
)

const releaseTimeout = 2 * time.Second

// JobHandler processes one job request event. Errors are logged by the
// worker; reporting to the requester is the handler's job.
type JobHandler interface {
	Handle(ctx context.Context, ev nostr.Event) error
}

// Source delivers events matching filter until ctx ends.
type Source interface {
	Subscribe(ctx context.Context, filter nostr.Filter, handle func(url string, ev nostr.Event)) error
}

type WorkerOptions struct {
	TaskType      string
	Filter        nostr.Filter
	MaxJobsActive int
	Guard         database.JobGuard
	Logger        logger.Logger
}

// Worker dispatches each request heard on the source to its own goroutine,
// with at most MaxJobsActive handlers running at once.
type Worker struct {
	source   Source
	handler  JobHandler
	guard    database.JobGuard
	filter   nostr.Filter
	taskType string
	log      logger.Logger

	sem chan struct{}
	wg  sync.WaitGroup
}

func NewWorker(source Source, handler JobHandler, opts WorkerOptions) *Worker {
	if opts.MaxJobsActive <= 0 {
		opts.MaxJobsActive = 1
	}
	if opts.Guard == nil {
		opts.Guard = database.NewMemoryGuard(10 * time.Minute)
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	return &Worker{
		source:   source,
		handler:  handler,
		guard:    opts.Guard,
		filter:   opts.Filter,
		taskType: opts.TaskType,
		log:      opts.Logger.WithFields(map[string]interface{}{"taskType": opts.TaskType}),
		sem:      make(chan struct{}, opts.MaxJobsActive),
	}
}

// Run listens until ctx is canceled. In-flight jobs keep running; use Wait
// to drain them.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started", map[string]interface{}{"maxJobsActive": cap(w.sem)})
	err := w.source.Subscribe(ctx, w.filter, func(url string, ev nostr.Event) {
		w.dispatch(ctx, url, ev)
	})
	w.log.Info("worker stopped listening", nil)
	return err
}

func (w *Worker) dispatch(ctx context.Context, url string, ev nostr.Event) {
	claimed, err := w.guard.Claim(ctx, ev.ID)
	if err != nil {
		// a broken guard must not drop work
		w.log.Warn("duplicate guard unavailable, processing anyway", map[string]interface{}{
			"jobId": ev.ID,
			"error": err,
		})
		claimed = true
	}
	if !claimed {
		metrics.DuplicateRequests.WithLabelValues(w.taskType).Inc()
		w.log.Debug("duplicate request ignored", map[string]interface{}{"jobId": ev.ID, "relay": url})
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		select {
		case w.sem <- struct{}{}:
		case <-ctx.Done():
			w.log.Warn("job dropped before start, shutting down", map[string]interface{}{"jobId": ev.ID})
			w.release(ctx, ev.ID)
			return
		}
		defer func() { <-w.sem }()

		if err := w.handler.Handle(ctx, ev); err != nil {
			w.log.Error("Handler returned error", map[string]interface{}{
				"jobId": ev.ID,
				"relay": url,
				"error": err,
			})
		}
	}()
}

// release lets another replica, or this one after restart, take a job
// that was claimed but never started.
func (w *Worker) release(ctx context.Context, id string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := w.guard.Release(rctx, id); err != nil {
		w.log.Warn("failed to release job claim", map[string]interface{}{
			"jobId": id,
			"error": err,
		})
	}
}

// Wait blocks until in-flight jobs finish or grace elapses. It reports
// whether every job finished.
func (w *Worker) Wait(grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(grace):
		w.log.Warn("grace period elapsed with jobs in flight", map[string]interface{}{"grace": grace.String()})
		return false
	}
}
