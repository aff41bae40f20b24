package appstate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/skillcoder/quota-watcher-controller/internal/infra/pinger"
)

// State is the application lifecycle state.
type State string

const (
	StateStarting    State = "starting"
	StateRunning     State = "running"
	StateTerminating State = "terminating"
	StateStopped     State = "stopped"
)

// AppState tracks the application lifecycle and aggregates component health
// for the HTTP probes.
type AppState struct {
	logger    *slog.Logger
	startTime time.Time
	signals   <-chan os.Signal
	pingers   *pinger.Runner

	mu    sync.RWMutex
	state State
}

// New creates the application state in Starting.
func New(
	logger *slog.Logger,
	startTime time.Time,
	signals <-chan os.Signal,
	pingers *pinger.Runner,
) *AppState {
	return &AppState{
		logger:    logger,
		startTime: startTime,
		signals:   signals,
		pingers:   pingers,
		state:     StateStarting,
	}
}

// Quit returns the termination signal channel.
func (a *AppState) Quit() <-chan os.Signal {
	return a.signals
}

// SetRunning transitions Starting -> Running.
func (a *AppState) SetRunning(ctx context.Context) error {
	return a.transition(ctx, StateStarting, StateRunning)
}

// SetTerminating transitions Running -> Terminating.
func (a *AppState) SetTerminating(ctx context.Context) error {
	return a.transition(ctx, StateRunning, StateTerminating)
}

func (a *AppState) transition(ctx context.Context, from, to State) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != from {
		return fmt.Errorf("%w: %s -> %s (current %s)", errInvalidTransition, from, to, a.state)
	}

	a.state = to
	a.logger.InfoContext(ctx, "application state changed", "state", string(to))

	return nil
}

// GetState returns the current lifecycle state.
func (a *AppState) GetState() State {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.state
}

// GetStartTime returns the process start time.
func (a *AppState) GetStartTime() time.Time {
	return a.startTime
}

// GetUptime returns the elapsed time since process start.
func (a *AppState) GetUptime() time.Duration {
	return time.Since(a.startTime)
}

// GetAllStats returns the per-component health statistics.
func (a *AppState) GetAllStats() map[string]pinger.Statistics {
	return a.pingers.GetAllStats()
}

// IsReady reports whether the application accepts traffic.
func (a *AppState) IsReady() bool {
	return a.GetState() == StateRunning
}

// IsHealthy reports whether the application is alive and no component's
// latest ping failed. Terminating still counts as healthy so rollouts do
// not flap the liveness probe.
func (a *AppState) IsHealthy() bool {
	state := a.GetState()
	if state == StateStopped {
		return false
	}

	return a.pingers.Healthy()
}

// Name returns the name of the appstate component.
func (a *AppState) Name() string {
	return "appstate"
}

// Shutdown marks the application stopped.
func (a *AppState) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state = StateStopped
	a.logger.InfoContext(ctx, "application state changed", "state", string(StateStopped))

	return nil
}
