package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/powerboxtech/mpc-service/core/metrics"
)

// PromSink records optimization cycles in Prometheus metrics.
type PromSink struct {
	cycles  *prometheus.CounterVec
	solve   *prometheus.HistogramVec
	soc     prometheus.Gauge
	command prometheus.Gauge
	peak    prometheus.Gauge
	cost    prometheus.Gauge
}

// NewPromSink registers cycle metrics on the default Prometheus registerer.
// The metrics server is started separately.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mpc_cycles_total",
			Help: "Total number of optimization cycles by outcome status",
		}, []string{"status", "solver_status"}),
		solve: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mpc_solve_duration_seconds",
			Help:    "Wall-clock duration of the solver call",
			Buckets: prometheus.DefBuckets,
		}, []string{"solver_status"}),
		soc: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mpc_battery_soc",
			Help: "State of charge used by the most recent cycle",
		}),
		command: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mpc_battery_command_kw",
			Help: "Committed battery power of the most recent cycle",
		}),
		peak: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mpc_peak_demand_kw",
			Help: "Planned peak grid demand of the most recent cycle",
		}),
		cost: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mpc_horizon_cost",
			Help: "Objective value of the most recent optimal horizon",
		}),
	}

	collectors := []prometheus.Collector{s.cycles, s.solve, s.soc, s.command, s.peak, s.cost}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch i {
				case 0:
					s.cycles = are.ExistingCollector.(*prometheus.CounterVec)
				case 1:
					s.solve = are.ExistingCollector.(*prometheus.HistogramVec)
				case 2:
					s.soc = are.ExistingCollector.(prometheus.Gauge)
				case 3:
					s.command = are.ExistingCollector.(prometheus.Gauge)
				case 4:
					s.peak = are.ExistingCollector.(prometheus.Gauge)
				case 5:
					s.cost = are.ExistingCollector.(prometheus.Gauge)
				}
				continue
			}
			return nil, err
		}
	}
	return s, nil
}

// RecordCycle updates the counters and gauges for one cycle.
func (s *PromSink) RecordCycle(rec coremetrics.CycleRecord) error {
	s.cycles.WithLabelValues(rec.Status, rec.SolverStatus).Inc()
	s.solve.WithLabelValues(rec.SolverStatus).Observe(rec.SolveTime.Seconds())
	s.soc.Set(rec.SoC)
	s.command.Set(rec.BatteryPowerKW)
	s.peak.Set(rec.PeakDemandKW)
	if rec.Status == "optimal" {
		s.cost.Set(rec.TotalCost)
	}
	return nil
}
