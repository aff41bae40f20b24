package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/skillcoder/quota-watcher-controller/internal/infra/metrics"
)

const joinPollInterval = 50 * time.Millisecond

// Factory is one invocation of a supervised routine. A nil error or a
// context-cancellation error ends the task cleanly; any other error triggers
// a restart with backoff.
type Factory func(ctx context.Context) error

// TaskView is a read-only snapshot of a running task.
type TaskView struct {
	Name         string    `json:"name"`
	StartedAt    time.Time `json:"startedAt"`
	RestartCount int       `json:"restartCount"`
}

type taskContext struct {
	name      string
	startedAt time.Time
	restarts  int
	cancel    context.CancelFunc
	done      chan struct{}
}

// Handle allows awaiting a task's completion after cancellation.
type Handle struct {
	name string
	done <-chan struct{}
}

// Supervisor runs named long-lived routines with crash isolation and
// automatic restart under exponentially saturating backoff.
type Supervisor struct {
	logger     *slog.Logger
	maxBackoff time.Duration
	// sleep is injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	tasks map[string]*taskContext
}

// New creates a new supervisor. maxBackoff caps the restart delay.
func New(logger *slog.Logger, maxBackoff time.Duration) *Supervisor {
	return &Supervisor{
		logger:     logger,
		maxBackoff: maxBackoff,
		sleep:      sleepContext,
		tasks:      make(map[string]*taskContext),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Start launches a named task. A task with the same name already running is
// not an error for the caller: the request is logged and ignored.
func (s *Supervisor) Start(ctx context.Context, name string, factory Factory) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		s.logger.WarnContext(ctx, "task already running, ignoring start", "task", name)

		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	tc := &taskContext{
		name:      name,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.tasks[name] = tc

	s.logger.InfoContext(ctx, "task started", "task", name)

	go s.run(taskCtx, tc, factory)
}

func (s *Supervisor) run(ctx context.Context, tc *taskContext, factory Factory) {
	defer close(tc.done)
	defer s.remove(tc.name)

	for {
		err := s.invoke(ctx, factory)
		if err == nil {
			s.logger.InfoContext(ctx, "task completed", "task", tc.name)

			return
		}

		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			s.logger.InfoContext(ctx, "task cancelled", "task", tc.name)

			return
		}

		restarts := s.bumpRestarts(tc)
		delay := s.backoff(restarts)
		metrics.RecordTaskRestart(tc.name)

		s.logger.ErrorContext(ctx, "task failed, restarting",
			"task", tc.name,
			"restarts", restarts,
			"backoff", delay,
			"reason", err,
		)

		if s.sleep(ctx, delay) != nil {
			return
		}
	}
}

func (s *Supervisor) invoke(ctx context.Context, factory Factory) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	return factory(ctx)
}

// backoff returns min(2^(restarts-1), maxBackoff) seconds for the given
// restart ordinal.
func (s *Supervisor) backoff(restarts int) time.Duration {
	if restarts < 1 {
		restarts = 1
	}

	shift := uint(restarts - 1)
	// Past 2^30 seconds the cap applies regardless, avoid the overflow.
	if shift > 30 {
		return s.maxBackoff
	}

	delay := time.Duration(1<<shift) * time.Second
	if delay > s.maxBackoff {
		return s.maxBackoff
	}

	return delay
}

func (s *Supervisor) bumpRestarts(tc *taskContext) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	tc.restarts++

	return tc.restarts
}

func (s *Supervisor) remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tasks, name)
}

// Cancel requests cooperative cancellation of the named task and returns a
// handle to await it, or nil when no such task is running. Bookkeeping is
// removed by the task's own completion path, not here.
func (s *Supervisor) Cancel(name string) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	tc, ok := s.tasks[name]
	if !ok {
		return nil
	}

	tc.cancel()

	return &Handle{name: name, done: tc.done}
}

// Join blocks until the task behind the handle is no longer tracked as
// running, polling the registry. maxWait <= 0 waits indefinitely; otherwise
// ErrJoinTimeout is returned when the limit elapses first.
func (s *Supervisor) Join(handle *Handle, maxWait time.Duration) error {
	if handle == nil {
		return nil
	}

	var deadline <-chan time.Time
	if maxWait > 0 {
		timer := time.NewTimer(maxWait)
		defer timer.Stop()

		deadline = timer.C
	}

	ticker := time.NewTicker(joinPollInterval)
	defer ticker.Stop()

	for {
		if !s.tracked(handle.name) {
			return nil
		}

		select {
		case <-deadline:
			return fmt.Errorf("%w: %s", ErrJoinTimeout, handle.name)
		case <-ticker.C:
		}
	}
}

func (s *Supervisor) tracked(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.tasks[name]

	return ok
}

// View returns the snapshot of one running task.
func (s *Supervisor) View(name string) (TaskView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tc, ok := s.tasks[name]
	if !ok {
		return TaskView{}, false
	}

	return TaskView{Name: tc.name, StartedAt: tc.startedAt, RestartCount: tc.restarts}, true
}

// Views returns snapshots of all running tasks, sorted by name.
func (s *Supervisor) Views() []TaskView {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := make([]TaskView, 0, len(s.tasks))
	for _, tc := range s.tasks {
		views = append(views, TaskView{Name: tc.name, StartedAt: tc.startedAt, RestartCount: tc.restarts})
	}

	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })

	return views
}

// Name returns the name of the supervisor component.
func (s *Supervisor) Name() string {
	return "task-supervisor"
}

// Shutdown cancels every running task and waits for them within the context
// deadline. Tasks that do not respond in time are logged as stuck; the
// shutdown path does not hang on them.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()

	handles := make([]*Handle, 0, len(s.tasks))

	for _, tc := range s.tasks {
		tc.cancel()
		handles = append(handles, &Handle{name: tc.name, done: tc.done})
	}
	s.mu.Unlock()

	var stuck []string

	for _, h := range handles {
		select {
		case <-h.done:
		case <-ctx.Done():
			stuck = append(stuck, h.name)
		}
	}

	if len(stuck) > 0 {
		s.logger.ErrorContext(ctx, "tasks did not stop in time", "tasks", stuck)

		return fmt.Errorf("%d task(s) stuck during shutdown", len(stuck))
	}

	return nil
}
