package pinger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const pingTimeout = 5 * time.Second

// Pinger is implemented by components that can report their health.
type Pinger interface {
	Name() string
	Ping(ctx context.Context) error
}

// Statistics is the recorded health history of one component.
type Statistics struct {
	LastPing  time.Time `json:"lastPing"`
	LastError string    `json:"lastError,omitempty"`
	Successes uint64    `json:"successes"`
	Failures  uint64    `json:"failures"`
}

// Runner periodically pings every registered component and records the
// outcome for health reporting.
type Runner struct {
	logger   *slog.Logger
	interval time.Duration

	mu         sync.RWMutex
	pingers    map[string]Pinger
	stats      map[string]*Statistics
	inShutdown atomic.Bool
	done       chan struct{}
}

// New creates a new pinger runner.
func New(logger *slog.Logger, interval time.Duration) *Runner {
	return &Runner{
		logger:   logger,
		interval: interval,
		pingers:  make(map[string]Pinger),
		stats:    make(map[string]*Statistics),
		done:     make(chan struct{}),
	}
}

// Register adds a component to the ping rotation. Registering the same name
// twice replaces the earlier entry.
func (r *Runner) Register(p Pinger) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pingers[p.Name()] = p
	r.stats[p.Name()] = &Statistics{}
}

// Start runs the ping loop until the context is cancelled or Shutdown is
// called.
func (r *Runner) Start(ctx context.Context) {
	go r.run(ctx)
}

func (r *Runner) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			r.pingAll(ctx)
		}
	}
}

func (r *Runner) pingAll(ctx context.Context) {
	r.mu.RLock()

	pingers := make([]Pinger, 0, len(r.pingers))
	for _, p := range r.pingers {
		pingers = append(pingers, p)
	}
	r.mu.RUnlock()

	for _, p := range pingers {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := p.Ping(pingCtx)

		cancel()
		r.record(p.Name(), err)

		if err != nil {
			r.logger.WarnContext(ctx, "component ping failed", "component", p.Name(), "reason", err)
		}
	}
}

func (r *Runner) record(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats, ok := r.stats[name]
	if !ok {
		return
	}

	stats.LastPing = time.Now()

	if err != nil {
		stats.LastError = err.Error()
		stats.Failures++

		return
	}

	stats.LastError = ""
	stats.Successes++
}

// GetAllStats returns a copy of the recorded statistics per component.
func (r *Runner) GetAllStats() map[string]Statistics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Statistics, len(r.stats))
	for name, stats := range r.stats {
		out[name] = *stats
	}

	return out
}

// Healthy reports whether no component's most recent ping failed.
func (r *Runner) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, stats := range r.stats {
		if stats.LastError != "" {
			return false
		}
	}

	return true
}

// Name returns the name of the pinger component.
func (r *Runner) Name() string {
	return "pinger"
}

// Shutdown stops the ping loop.
func (r *Runner) Shutdown(_ context.Context) error {
	if !r.inShutdown.CompareAndSwap(false, true) {
		return nil
	}

	close(r.done)

	return nil
}
