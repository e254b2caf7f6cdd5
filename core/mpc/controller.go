package mpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/powerboxtech/mpc-service/core/logger"
	"github.com/powerboxtech/mpc-service/core/metrics"
	"github.com/powerboxtech/mpc-service/core/model"
	"github.com/powerboxtech/mpc-service/core/tariff"
	"github.com/powerboxtech/mpc-service/internal/eventbus"
)

// Solver abstracts the numerical engine behind the status taxonomy so the
// controller can be tested with a mock adapter.
type Solver interface {
	Solve(ctx context.Context, p *Problem) model.SolveResult
}

// Stats is a point-in-time snapshot of controller bookkeeping.
type Stats struct {
	Cycles      int        `json:"cycles"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	LastSoC     float64    `json:"last_soc"`
	LastCommand float64    `json:"last_command_kw"`
}

// Controller drives one optimization cycle end to end: formulate, solve,
// validate, decide. It owns the single latest-outcome slot shared with
// external readers and serializes cycles so only one formulate/solve pass is
// ever in flight.
type Controller struct {
	formulator Formulator
	solver     Solver
	validator  Validator
	sched      *tariff.Schedule
	log        logger.Logger
	sink       metrics.Sink
	bus        *eventbus.Bus[model.DispatchOutcome]

	runMu sync.Mutex // serializes RunCycle

	mu     sync.RWMutex // guards latest and stats
	latest *model.DispatchOutcome
	stats  Stats
}

// NewController wires a controller from validated configuration. The sink
// and bus may be nil.
func NewController(params model.BatteryParams, sched *tariff.Schedule, steps int, solver Solver, log logger.Logger, sink metrics.Sink, bus *eventbus.Bus[model.DispatchOutcome]) *Controller {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Controller{
		formulator: Formulator{Params: params, Tariff: sched, Steps: steps},
		solver:     solver,
		validator:  Validator{Params: params},
		sched:      sched,
		log:        log,
		sink:       sink,
		bus:        bus,
	}
}

// RunCycle executes one full cycle and returns the published outcome. A
// concurrent caller blocks until the in-flight cycle finishes. Failures of
// any kind become error or infeasible outcomes; nothing propagates and the
// control loop keeps its cadence.
func (c *Controller) RunCycle(ctx context.Context, in model.HorizonInputs) (out model.DispatchOutcome) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("cycle panic recovered: %v", r)
			out = c.errorOutcome(in, fmt.Sprintf("internal failure: %v", r))
			c.commit(in, out)
		}
	}()

	c.log.Infof("starting optimization cycle: soc=%.3f steps=%d", in.SoC, in.Steps())

	problem, err := c.formulator.Build(in)
	if err != nil {
		c.log.Errorf("formulation rejected: %v", err)
		out = c.errorOutcome(in, err.Error())
		c.commit(in, out)
		return out
	}

	res := c.solver.Solve(ctx, problem)
	c.log.Infof("solve finished: status=%s elapsed=%s", res.Status, res.SolveTime)

	var verdict ValidationOutcome
	if res.Status.Usable() {
		verdict = c.validator.Validate(res, problem.Steps)
		if !verdict.Valid {
			c.log.Warnf("optimal solution rejected by validation: %s", verdict.Reason)
		}
	}

	dec := Decide(res, verdict)
	out = model.DispatchOutcome{
		CycleID:        uuid.NewString(),
		Timestamp:      time.Now().UTC(),
		BatteryPowerKW: dec.PowerKW,
		Status:         dec.Status,
		Reason:         dec.Reason,
		SolverStatus:   res.Status.String(),
		SolveSeconds:   res.SolveTime.Seconds(),
	}
	if dec.Status == model.OutcomeOptimal {
		out.Trajectory = res.Trajectory
		cost := res.Cost
		out.Cost = &cost
		out.BaselineCost = BaselineCost(c.sched, in).TotalCost
		c.log.Infof("cycle optimal: command=%.2f kW cost=%.2f baseline=%.2f peak=%.2f kW",
			out.BatteryPowerKW, cost.TotalCost, out.BaselineCost, res.Trajectory.PeakDemandKW)
	} else {
		out.Trajectory = FallbackTrajectory(in)
		c.log.Warnf("cycle %s: publishing fallback command 0 kW (%s)", dec.Status, dec.Reason)
	}

	c.commit(in, out)
	return out
}

func (c *Controller) errorOutcome(in model.HorizonInputs, reason string) model.DispatchOutcome {
	out := model.DispatchOutcome{
		CycleID:      uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Status:       model.OutcomeError,
		Reason:       reason,
		SolverStatus: model.SolveError.String(),
	}
	if in.Steps() == len(in.SolarKW) {
		out.Trajectory = FallbackTrajectory(in)
	}
	return out
}

// commit atomically replaces the latest outcome, updates bookkeeping,
// records metrics and notifies subscribers.
func (c *Controller) commit(in model.HorizonInputs, out model.DispatchOutcome) {
	now := out.Timestamp
	c.mu.Lock()
	c.latest = &out
	c.stats.Cycles++
	c.stats.LastRun = &now
	c.stats.LastSoC = in.SoC
	c.stats.LastCommand = out.BatteryPowerKW
	c.mu.Unlock()

	if err := c.sink.RecordCycle(metrics.CycleRecord{
		CycleID:        out.CycleID,
		Timestamp:      out.Timestamp,
		Status:         string(out.Status),
		SolverStatus:   out.SolverStatus,
		SolveTime:      time.Duration(out.SolveSeconds * float64(time.Second)),
		SoC:            in.SoC,
		BatteryPowerKW: out.BatteryPowerKW,
		PeakDemandKW:   peakOf(out.Trajectory),
		TotalCost:      totalOf(out.Cost),
	}); err != nil {
		c.log.Warnf("metrics sink: %v", err)
	}
	if c.bus != nil {
		c.bus.Publish(out)
	}
}

func peakOf(tr *model.Trajectory) float64 {
	if tr == nil {
		return 0
	}
	return tr.PeakDemandKW
}

func totalOf(cost *model.CostBreakdown) float64 {
	if cost == nil {
		return 0
	}
	return cost.TotalCost
}

// Latest returns the most recent outcome, if any. Safe to call while a
// cycle is in flight: readers observe either the previous outcome or the
// new one, never a partial write.
func (c *Controller) Latest() (model.DispatchOutcome, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return model.DispatchOutcome{}, false
	}
	return *c.latest, true
}

// Stats returns cycle bookkeeping for the status endpoint.
func (c *Controller) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Params exposes the immutable battery parameters for startup validation
// and the status surface.
func (c *Controller) Params() model.BatteryParams { return c.formulator.Params }

// Steps returns the configured horizon step count.
func (c *Controller) Steps() int { return c.formulator.Steps }
