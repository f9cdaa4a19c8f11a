package scheduler

import (
	"sync"
	"time"

	"connectifyr/internal/metrics"

	"go.uber.org/zap"
)

type task struct {
	name  string
	timer Timer
}

// Scheduler runs one-shot delayed tasks. Every pending task can be cancelled
// individually or all at once; once Close is called nothing new is scheduled.
type Scheduler struct {
	clock  Clock
	logger *zap.Logger

	mu     sync.Mutex
	nextID uint64
	tasks  map[uint64]*task
	closed bool
}

func New(clock Clock, logger *zap.Logger) *Scheduler {
	if clock == nil {
		clock = RealClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		clock:  clock,
		logger: logger.Named("scheduler"),
		tasks:  make(map[uint64]*task),
	}
}

func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// After runs fn once d has elapsed. The returned func cancels the task if it
// has not fired yet.
func (s *Scheduler) After(name string, d time.Duration, fn func()) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.logger.Debug("scheduler closed, dropping task", zap.String("task", name))
		return func() {}
	}

	s.nextID++
	id := s.nextID
	t := &task{name: name}
	s.tasks[id] = t
	metrics.PendingTasks.Inc()

	t.timer = s.clock.AfterFunc(d, func() {
		if !s.take(id) {
			return
		}
		s.logger.Debug("task fired", zap.String("task", name))
		fn()
	})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.cancel(id)
	}
}

// take removes the task and reports whether it was still pending.
func (s *Scheduler) take(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return false
	}
	delete(s.tasks, id)
	metrics.PendingTasks.Dec()
	return true
}

func (s *Scheduler) cancel(id uint64) {
	t, ok := s.tasks[id]
	if !ok {
		return
	}
	delete(s.tasks, id)
	metrics.PendingTasks.Dec()
	if t.timer != nil {
		t.timer.Stop()
	}
	s.logger.Debug("task cancelled", zap.String("task", t.name))
}

// Pending returns the names of tasks that have neither fired nor been cancelled.
func (s *Scheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for _, t := range s.tasks {
		names = append(names, t.name)
	}
	return names
}

func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.tasks {
		s.cancel(id)
	}
}

// Close cancels every pending task and rejects new ones.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.CancelAll()
}
