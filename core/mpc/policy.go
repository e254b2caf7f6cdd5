package mpc

import "github.com/powerboxtech/mpc-service/core/model"

// Decision is the dispatch verdict for one cycle.
type Decision struct {
	Status  model.OutcomeStatus
	PowerKW float64
	Reason  string
}

// Decide maps solver status and validation verdict to the published command.
// Pure function, no state across cycles. Anything not provably optimal and
// physically consistent publishes the safe fallback of zero power.
func Decide(res model.SolveResult, v ValidationOutcome) Decision {
	switch res.Status {
	case model.SolveInfeasible, model.SolveUnbounded:
		return Decision{Status: model.OutcomeInfeasible, Reason: "solver reported " + res.Status.String()}
	case model.SolveError:
		return Decision{Status: model.OutcomeError, Reason: "solver error"}
	}
	if !v.Valid {
		return Decision{Status: model.OutcomeInfeasible, Reason: "validation failed: " + v.Reason}
	}
	return Decision{Status: model.OutcomeOptimal, PowerKW: res.Trajectory.BatteryKW[0]}
}
