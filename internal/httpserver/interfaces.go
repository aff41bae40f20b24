package httpserver

import (
	"time"

	"github.com/skillcoder/quota-watcher-controller/internal/infra/appstate"
	"github.com/skillcoder/quota-watcher-controller/internal/infra/pinger"
	"github.com/skillcoder/quota-watcher-controller/internal/infra/supervisor"
)

// appstater is the application state surface the probe handlers need.
type appstater interface {
	IsHealthy() bool
	IsReady() bool
	GetState() appstate.State
	GetUptime() time.Duration
	GetStartTime() time.Time
	GetAllStats() map[string]pinger.Statistics
}

// taskViewer exposes supervised task snapshots for introspection.
type taskViewer interface {
	Views() []supervisor.TaskView
}
