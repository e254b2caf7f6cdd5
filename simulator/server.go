package simulator

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/powerboxtech/mpc-service/core/logger"
	"github.com/powerboxtech/mpc-service/infra/bms"
)

// Server exposes the battery over the same HTTP surface as the real BMS:
// GET /api/battery/soc and POST /api/battery/dispatch.
type Server struct {
	battery *Battery
	step    time.Duration
	log     logger.Logger
}

// NewServer creates a simulator server. Each accepted dispatch command is
// integrated over step, approximating a controller that holds the command
// until the next cycle.
func NewServer(battery *Battery, step time.Duration, log logger.Logger) *Server {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Server{battery: battery, step: step, log: log}
}

// Mux returns the HTTP routes of the simulator.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/battery/soc", s.handleSoC)
	mux.HandleFunc("/api/battery/dispatch", s.handleDispatch)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (s *Server) handleSoC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"soc":    s.battery.SoC(),
		"source": "simulator",
	})
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var cmd bms.DispatchCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "bad command payload", http.StatusBadRequest)
		return
	}
	applied := s.battery.ApplyPower(cmd.PowerKW, s.step)
	s.log.Infof("simulator applied %.2f kW (requested %.2f), soc now %.3f",
		applied, cmd.PowerKW, s.battery.SoC())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"applied_kw": applied,
		"soc":        s.battery.SoC(),
	})
}
