// Package mpc exposes the optimization cycle results over HTTP.
package mpc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	coremp "github.com/powerboxtech/mpc-service/core/mpc"
	"github.com/powerboxtech/mpc-service/core/model"
)

// OutcomeSource is the read side of the cycle controller.
type OutcomeSource interface {
	Latest() (model.DispatchOutcome, bool)
	Stats() coremp.Stats
}

// CycleRunner triggers a full cycle, including input gathering.
type CycleRunner interface {
	RunCycleNow(ctx context.Context) model.DispatchOutcome
}

// dispatchView is the trimmed response of the dispatch endpoint: only the
// actionable command, not the trajectory.
type dispatchView struct {
	CycleID        string    `json:"cycle_id"`
	Timestamp      time.Time `json:"timestamp"`
	BatteryPowerKW float64   `json:"battery_power_kw"`
	Status         string    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// NewDispatchHandler serves GET /api/mpc/dispatch: the committed battery
// command of the most recent cycle. Before the first cycle a zero command
// is returned so site controllers always have something actionable.
func NewDispatchHandler(src OutcomeSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		out, ok := src.Latest()
		if !ok {
			writeJSON(w, http.StatusOK, dispatchView{
				Timestamp: time.Now().UTC(),
				Status:    "no_cycle_run",
			})
			return
		}
		writeJSON(w, http.StatusOK, dispatchView{
			CycleID:        out.CycleID,
			Timestamp:      out.Timestamp,
			BatteryPowerKW: out.BatteryPowerKW,
			Status:         string(out.Status),
			Reason:         out.Reason,
		})
	})
}

// NewScheduleHandler serves GET /api/mpc/schedule: the full outcome with
// trajectory and cost breakdown. 404 until the first cycle completes.
func NewScheduleHandler(src OutcomeSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		out, ok := src.Latest()
		if !ok {
			http.Error(w, "no optimization schedule available", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})
}

type statusView struct {
	Service       string       `json:"service"`
	Status        string       `json:"status"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	Horizon       int          `json:"horizon_steps"`
	Stats         coremp.Stats `json:"stats"`
}

// NewStatusHandler serves GET /api/mpc/status.
func NewStatusHandler(src OutcomeSource, steps int, started time.Time) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, statusView{
			Service:       "mpc-service",
			Status:        "healthy",
			UptimeSeconds: time.Since(started).Seconds(),
			Horizon:       steps,
			Stats:         src.Stats(),
		})
	})
}

// NewTriggerHandler serves POST /api/mpc/trigger: runs one cycle now and
// returns its outcome. The controller serializes against the periodic loop,
// so a trigger during an in-flight cycle waits for it to finish.
func NewTriggerHandler(runner CycleRunner) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		out := runner.RunCycleNow(r.Context())
		writeJSON(w, http.StatusOK, out)
	})
}

// NewHealthHandler serves GET /health.
func NewHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
}

// NewMux assembles the API routes.
func NewMux(src OutcomeSource, runner CycleRunner, steps int, started time.Time) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/mpc/dispatch", NewDispatchHandler(src))
	mux.Handle("/api/mpc/schedule", NewScheduleHandler(src))
	mux.Handle("/api/mpc/status", NewStatusHandler(src, steps, started))
	mux.Handle("/api/mpc/trigger", NewTriggerHandler(runner))
	mux.Handle("/health", NewHealthHandler())
	return mux
}
