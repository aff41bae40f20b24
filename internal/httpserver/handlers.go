package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/skillcoder/quota-watcher-controller/internal/infra/pinger"
	"github.com/skillcoder/quota-watcher-controller/internal/infra/supervisor"
)

type statusResponse struct {
	State      string                       `json:"state"`
	Uptime     string                       `json:"uptime"`
	StartTime  time.Time                    `json:"startTime"`
	UptimeSec  float64                      `json:"uptimeSeconds"`
	Components map[string]pinger.Statistics `json:"components"`
}

type tasksResponse struct {
	Tasks []supervisor.TaskView `json:"tasks"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if !s.appState.IsHealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if !s.appState.IsReady() {
		w.WriteHeader(http.StatusServiceUnavailable)

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uptime := s.appState.GetUptime()

	response := statusResponse{
		State:      string(s.appState.GetState()),
		Uptime:     uptime.String(),
		StartTime:  s.appState.GetStartTime(),
		UptimeSec:  uptime.Seconds(),
		Components: s.appState.GetAllStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.ErrorContext(ctx, "failed to encode status response", "reason", err)
	}
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	response := tasksResponse{Tasks: s.tasks.Views()}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.ErrorContext(ctx, "failed to encode tasks response", "reason", err)
	}
}
