package model

import "time"

// SolveStatus classifies the result reported by the numerical engine.
type SolveStatus int

const (
	SolveOptimal SolveStatus = iota
	SolveSuboptimal
	SolveInfeasible
	SolveUnbounded
	SolveError
)

// String returns a human-readable representation of the solve status.
func (s SolveStatus) String() string {
	switch s {
	case SolveOptimal:
		return "optimal"
	case SolveSuboptimal:
		return "suboptimal"
	case SolveInfeasible:
		return "infeasible"
	case SolveUnbounded:
		return "unbounded"
	case SolveError:
		return "error"
	default:
		return "unknown"
	}
}

// Usable reports whether the status carries a solution worth publishing.
func (s SolveStatus) Usable() bool {
	return s == SolveOptimal || s == SolveSuboptimal
}

// Trajectory holds the optimal schedules over the prediction horizon.
// Battery power is signed: positive charges, negative discharges. The SoC
// series has one more point than the power series (initial plus terminal).
type Trajectory struct {
	BatteryKW    []float64 `json:"battery_kw"`
	ChargeKW     []float64 `json:"charge_kw"`
	DischargeKW  []float64 `json:"discharge_kw"`
	GridKW       []float64 `json:"grid_kw"`
	SoC          []float64 `json:"soc"`
	PeakDemandKW float64   `json:"peak_demand_kw"`
}

// CostBreakdown decomposes the objective value of a solved horizon.
type CostBreakdown struct {
	EnergyCost float64 `json:"energy_cost"`
	DemandCost float64 `json:"demand_cost"`
	TotalCost  float64 `json:"total_cost"`
}

// SolveResult is the raw outcome of one solver invocation.
type SolveResult struct {
	Status     SolveStatus
	SolveTime  time.Duration
	Trajectory *Trajectory // nil unless a solution exists
	Cost       CostBreakdown
}

// OutcomeStatus labels a published dispatch decision.
type OutcomeStatus string

const (
	OutcomeOptimal    OutcomeStatus = "optimal"
	OutcomeFallback   OutcomeStatus = "fallback"
	OutcomeInfeasible OutcomeStatus = "infeasible"
	OutcomeError      OutcomeStatus = "error"
)

// DispatchOutcome is the published artifact of one optimization cycle. The
// committed command is BatteryPowerKW for the immediate next step; the full
// trajectory is attached for inspection. Outcomes are immutable: the next
// cycle supersedes rather than mutates.
type DispatchOutcome struct {
	CycleID        string         `json:"cycle_id"`
	Timestamp      time.Time      `json:"timestamp"`
	BatteryPowerKW float64        `json:"battery_power_kw"`
	Status         OutcomeStatus  `json:"status"`
	Reason         string         `json:"reason,omitempty"`
	SolverStatus   string         `json:"solver_status"`
	SolveSeconds   float64        `json:"solve_seconds"`
	Trajectory     *Trajectory    `json:"trajectory,omitempty"`
	Cost           *CostBreakdown `json:"cost,omitempty"`
	BaselineCost   float64        `json:"baseline_cost,omitempty"`
}
