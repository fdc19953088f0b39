package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/graystore/internal/timedqueue"
)

// event is a commit report from a handle.
type event struct {
	path  string
	pages int
}

// Scheduler coalesces commit reports into debounced checkpoints.
//
// Thread Safety:
//   - Observe and Sweep may be called from any goroutine, including from
//     inside a handle's commit path.
//   - Observe hands reports to the intake goroutine. Sweep adds paths to
//     the debounce queue directly on the caller's goroutine; the queue
//     carries its own lock.
type Scheduler struct {
	lookup Lookup
	opts   Options
	queue  *timedqueue.TimedQueue[string]
	events chan event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lifeMu    sync.Mutex // orders wg.Add in start against cancel in Close
	startOnce sync.Once
	closeOnce sync.Once
	started   atomic.Bool

	mu        sync.RWMutex
	logger    Logger
	notifiers []Notifier

	observed  atomic.Int64
	queued    atomic.Int64
	dropped   atomic.Int64
	skipped   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New creates a Scheduler that checkpoints databases found through lookup.
// No goroutines run until the first Observe or Sweep.
func New(lookup Lookup, opts Options) *Scheduler {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		lookup: lookup,
		opts:   opts,
		queue:  timedqueue.New[string](opts.Delay),
		events: make(chan event, opts.EventBuffer),
		ctx:    ctx,
		cancel: cancel,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// AddNotifier registers n to receive every checkpoint Result.
func (s *Scheduler) AddNotifier(n Notifier) {
	if n == nil {
		return
	}
	s.mu.Lock()
	s.notifiers = append(s.notifiers, n)
	s.mu.Unlock()
}

// Options returns the effective options.
func (s *Scheduler) Options() Options {
	return s.opts
}

// Observe reports that a commit left pages frames in the WAL of path.
// Commits above the page threshold schedule a checkpoint. Observe never
// blocks.
func (s *Scheduler) Observe(path string, pages int) {
	s.start()
	s.observed.Add(1)

	if pages <= s.opts.PageThreshold || s.ctx.Err() != nil {
		return
	}

	select {
	case s.events <- event{path: path, pages: pages}:
	default:
		s.dropped.Add(1)
		s.getLogger().Warn("checkpoint event dropped, buffer full",
			"path", path,
			"pages", pages,
		)
	}
}

// Sweep queues paths for checkpointing regardless of their WAL size.
func (s *Scheduler) Sweep(paths ...string) {
	s.start()
	if s.ctx.Err() != nil {
		return
	}
	for _, p := range paths {
		s.queue.ReQueue(p)
		s.queued.Add(1)
	}
}

// Started reports whether the worker goroutines are running.
func (s *Scheduler) Started() bool {
	return s.started.Load()
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Observed:  s.observed.Load(),
		Queued:    s.queued.Load(),
		Dropped:   s.dropped.Load(),
		Skipped:   s.skipped.Load(),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Pending:   s.queue.Len(),
	}
}

// Close stops the worker goroutines and waits for an in-flight checkpoint
// to finish. Pending paths are discarded. Close is safe to call more than
// once.
func (s *Scheduler) Close() error {
	s.closeOnce.Do(func() {
		s.lifeMu.Lock()
		s.cancel()
		s.lifeMu.Unlock()
		s.wg.Wait()
	})
	return nil
}

// start launches the intake and worker goroutines exactly once.
func (s *Scheduler) start() {
	s.startOnce.Do(func() {
		s.lifeMu.Lock()
		defer s.lifeMu.Unlock()
		if s.ctx.Err() != nil {
			return
		}
		s.started.Store(true)
		s.wg.Add(2)
		go s.intake()
		go s.work()
		s.getLogger().Debug("checkpoint scheduler started",
			"delay", s.opts.Delay,
			"page_threshold", s.opts.PageThreshold,
		)
	})
}

// intake moves commit events into the debounce queue.
func (s *Scheduler) intake() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			s.queue.ReQueue(ev.path)
			s.queued.Add(1)
		}
	}
}

// work checkpoints each path once its debounce delay expires.
func (s *Scheduler) work() {
	defer s.wg.Done()
	// WaitUntilExpired only returns on cancellation.
	_ = s.queue.WaitUntilExpired(s.ctx, s.checkpoint) //nolint:errcheck // ctx.Err on shutdown
}

// checkpoint runs one checkpoint for path if a database is open there.
func (s *Scheduler) checkpoint(path string) {
	log := s.getLogger()

	target, ok := s.lookup.Lookup(path)
	if !ok || target == nil {
		s.skipped.Add(1)
		log.Debug("checkpoint skipped, database not open", "path", path)
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.Timeout)
	defer cancel()

	started := time.Now()
	err := runCheckpoint(ctx, target)
	result := Result{
		Path:     path,
		Started:  started,
		Duration: time.Since(started),
		Err:      err,
	}

	if err != nil {
		s.failed.Add(1)
		log.Warn("checkpoint failed", "path", path, "error", err)
	} else {
		s.completed.Add(1)
		log.Debug("checkpoint completed",
			"path", path,
			"duration_ms", result.Duration.Milliseconds(),
		)
	}

	s.notify(result)
}

// runCheckpoint calls target.Checkpoint, converting a panic into an error so
// one misbehaving database cannot stop the worker.
func runCheckpoint(ctx context.Context, target Target) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("checkpoint panic: %v", r)
		}
	}()
	return target.Checkpoint(ctx)
}

func (s *Scheduler) notify(r Result) {
	s.mu.RLock()
	notifiers := append([]Notifier(nil), s.notifiers...)
	s.mu.RUnlock()

	for _, n := range notifiers {
		n.CheckpointDone(r)
	}
}

func (s *Scheduler) getLogger() Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}
