// Package gc paces incremental collection of released script environments.
//
// The host drives a Scheduler from its frame loop. Each Tick past the
// configured interval runs one incremental step on the Collector; ForceFull
// drops cached callables first and then drains everything.
package gc

import (
	"time"

	"go.uber.org/zap"
)

// Collector performs collection work.
type Collector interface {
	Step()
	FullGC()
}

// Invalidator drops cached references so a full collection can reclaim them.
type Invalidator interface {
	InvalidateAll() int
}

// Scheduler runs Collector.Step at most once per interval.
type Scheduler struct {
	collector   Collector
	invalidator Invalidator
	interval    time.Duration
	last        time.Duration
	log         *zap.Logger

	steps int
	fulls int
}

// NewScheduler creates a scheduler. inv may be nil.
func NewScheduler(c Collector, inv Invalidator, interval time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		collector:   c,
		invalidator: inv,
		interval:    interval,
		log:         log,
	}
}

// Interval returns the pacing interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Tick runs one step if more than interval has passed since the last one.
// now is a monotonic clock reading, typically time since startup.
func (s *Scheduler) Tick(now time.Duration) bool {
	if now-s.last <= s.interval {
		return false
	}
	s.last = now
	s.collector.Step()
	s.steps++
	return true
}

// ForceFull invalidates cached callables, then performs a full collection.
func (s *Scheduler) ForceFull() {
	dropped := 0
	if s.invalidator != nil {
		dropped = s.invalidator.InvalidateAll()
	}
	s.collector.FullGC()
	s.fulls++
	s.log.Debug("full collection", zap.Int("functions_dropped", dropped))
}

// Steps returns how many incremental steps ran.
func (s *Scheduler) Steps() int { return s.steps }

// FullCollections returns how many full collections ran.
func (s *Scheduler) FullCollections() int { return s.fulls }
