// Package scheduler emits ScheduleTick windows at a fixed interval. Each tick covers
// (Previous, Now] and the windows of consecutive ticks are contiguous, so every cron
// fire instant falls in exactly one tick. With a Lease only the replica holding it
// emits ticks, and a new holder resumes from the window its predecessor last emitted.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iotlinker/automation/pkg/events"
	"github.com/iotlinker/automation/pkg/models"
)

const DefaultInterval = time.Minute

// TickFunc receives every tick. Errors are logged; the next window still starts where
// the failed one ended.
type TickFunc func(ctx context.Context, tick models.ScheduleTick) error

// Publisher is the subset of the event bus the scheduler needs.
type Publisher interface {
	Publish(ctx context.Context, key string, event events.Event) error
}

// PublishTicks returns a TickFunc that publishes schedule.ticked events.
func PublishTicks(publisher Publisher) TickFunc {
	return func(ctx context.Context, tick models.ScheduleTick) error {
		return publisher.Publish(ctx, "scheduler", events.NewScheduleTicked(tick))
	}
}

// Lease elects the single tick publisher among engine replicas.
type Lease interface {
	// Acquire takes or renews the lease. last is the end of the most recent window
	// emitted by any holder, zero when none was recorded.
	Acquire(ctx context.Context) (held bool, last time.Time, err error)
	// Advance records the end of a window that was emitted.
	Advance(ctx context.Context, now time.Time) error
	Release(ctx context.Context) error
}

type Scheduler struct {
	interval time.Duration
	onTick   TickFunc
	logger   *slog.Logger
	now      func() time.Time
	lease    Lease

	ticker   *time.Ticker
	done     chan struct{}
	stopped  chan struct{}
	previous time.Time
	started  bool
	mu       sync.Mutex
}

type Option func(*Scheduler)

func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithLease makes ticking conditional on holding lease.
func WithLease(lease Lease) Option {
	return func(s *Scheduler) {
		s.lease = lease
	}
}

func New(onTick TickFunc, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		interval: DefaultInterval,
		onTick:   onTick,
		logger:   logger.With("module", "scheduler"),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start begins ticking. The first window starts at the moment Start is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.previous = s.now().UTC()
	s.ticker = time.NewTicker(s.interval)
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})
	s.started = true

	go s.loop(ctx)

	s.logger.Info("Scheduler started", "interval", s.interval)

	return nil
}

// Stop halts ticking and waits for an in-flight tick to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()

	if !s.started {
		s.mu.Unlock()

		return nil
	}

	s.ticker.Stop()
	close(s.done)
	s.started = false
	stopped := s.stopped
	s.mu.Unlock()

	<-stopped

	if s.lease != nil {
		if err := s.lease.Release(ctx); err != nil {
			s.logger.Warn("Failed to release scheduler lease", "error", err)
		}
	}

	s.logger.Info("Scheduler stopped")

	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.stopped)

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-s.ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick emits the window since the previous tick immediately. Without a previous tick
// the window is one interval long. A replica that does not hold the lease only moves
// its own window forward.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now().UTC()

	var last time.Time

	if s.lease != nil {
		held, cursor, err := s.lease.Acquire(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to acquire scheduler lease", "error", err)

			return
		}

		if !held {
			s.mu.Lock()
			s.previous = now
			s.mu.Unlock()

			return
		}

		last = cursor
	}

	s.mu.Lock()
	if s.previous.IsZero() {
		s.previous = now.Add(-s.interval)
	}

	if !last.IsZero() && last.Before(now) {
		s.previous = last.UTC()
	}

	tick := models.ScheduleTick{Previous: s.previous, Now: now}
	s.previous = now
	s.mu.Unlock()

	if !tick.Now.After(tick.Previous) {
		return
	}

	if err := s.onTick(ctx, tick); err != nil {
		s.logger.ErrorContext(ctx, "Failed to handle schedule tick",
			"previous", tick.Previous, "now", tick.Now, "error", err)
	}

	if s.lease != nil {
		if err := s.lease.Advance(ctx, now); err != nil {
			s.logger.WarnContext(ctx, "Failed to record schedule cursor", "now", now, "error", err)
		}
	}
}
