// Package scheduler runs keyed one-shot actions at a future time.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Action is the work performed when a job comes due.
type Action func(ctx context.Context) error

type job struct {
	key   string
	at    time.Time
	run   Action
	index int
}

type jobHeap []*job

func (h jobHeap) Len() int           { return len(h) }
func (h jobHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *jobHeap) Push(x any) {
	j := x.(*job)
	j.index = len(*h)
	*h = append(*h, j)
}
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*h = old[:n-1]
	return j
}

// Scheduler holds pending jobs in a min-heap ordered by due time. Scheduling a
// key that is already pending replaces the earlier job.
type Scheduler struct {
	mu     sync.Mutex
	jobs   jobHeap
	byKey  map[string]*job
	wake   chan struct{}
	now    func() time.Time
	logger *zap.Logger
}

// New creates a Scheduler. now defaults to time.Now.
func New(logger *zap.Logger, now func() time.Time) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		byKey:  make(map[string]*job),
		wake:   make(chan struct{}, 1),
		now:    now,
		logger: logger,
	}
}

// Schedule registers run under key to fire at at.
func (s *Scheduler) Schedule(key string, at time.Time, run Action) {
	s.mu.Lock()
	if j, ok := s.byKey[key]; ok {
		j.at = at
		j.run = run
		heap.Fix(&s.jobs, j.index)
	} else {
		j := &job{key: key, at: at, run: run}
		heap.Push(&s.jobs, j)
		s.byKey[key] = j
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Cancel drops a pending job.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.byKey[key]
	if !ok {
		return false
	}
	heap.Remove(&s.jobs, j.index)
	delete(s.byKey, key)
	return true
}

// Pending is the number of scheduled jobs.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// RunDue runs every job due at or before now, in due order, and returns how many ran.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) int {
	ran := 0
	for {
		s.mu.Lock()
		if len(s.jobs) == 0 || s.jobs[0].at.After(now) {
			s.mu.Unlock()
			return ran
		}
		j := heap.Pop(&s.jobs).(*job)
		delete(s.byKey, j.key)
		s.mu.Unlock()

		if err := j.run(ctx); err != nil {
			s.logger.Error("scheduled job failed", zap.String("key", j.key), zap.Error(err))
		}
		ran++
	}
}

// Run fires jobs as they come due until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.RunDue(ctx, s.now())

		wait := time.Hour
		s.mu.Lock()
		if len(s.jobs) > 0 {
			wait = s.jobs[0].at.Sub(s.now())
		}
		s.mu.Unlock()
		if wait < 0 {
			wait = 0
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}
