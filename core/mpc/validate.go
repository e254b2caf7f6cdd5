package mpc

import (
	"fmt"
	"math"

	"github.com/powerboxtech/mpc-service/core/model"
)

// ValidationOutcome is the verdict of the feasibility re-check.
type ValidationOutcome struct {
	Valid  bool
	Reason string
}

func invalid(format string, args ...any) ValidationOutcome {
	return ValidationOutcome{Reason: fmt.Sprintf(format, args...)}
}

// Validator re-checks solver output for physical consistency independently
// of the engine's own status flag. A solution reported optimal can still
// carry numerical artifacts; those must not reach the battery.
type Validator struct {
	Params model.BatteryParams
	// Tol is the tolerance on bound violations. Zero means 1e-6.
	Tol float64
}

// Validate inspects the trajectory of a solve result. It only applies to
// results that claim to carry a solution; a nil trajectory is invalid.
func (v Validator) Validate(res model.SolveResult, steps int) ValidationOutcome {
	tol := v.Tol
	if tol == 0 {
		tol = 1e-6
	}
	tr := res.Trajectory
	if tr == nil {
		return invalid("no trajectory in solve result")
	}
	if len(tr.BatteryKW) != steps || len(tr.GridKW) != steps || len(tr.SoC) != steps+1 {
		return invalid("trajectory shape mismatch: batt=%d grid=%d soc=%d want %d steps",
			len(tr.BatteryKW), len(tr.GridKW), len(tr.SoC), steps)
	}

	series := [][]float64{tr.BatteryKW, tr.ChargeKW, tr.DischargeKW, tr.GridKW, tr.SoC, {tr.PeakDemandKW}}
	for _, vals := range series {
		for _, val := range vals {
			if math.IsNaN(val) || math.IsInf(val, 0) {
				return invalid("non-finite value in trajectory")
			}
		}
	}

	for t, soc := range tr.SoC {
		if soc < v.Params.SoCMin-tol || soc > v.Params.SoCMax+tol {
			return invalid("soc %v at step %d outside [%v, %v]", soc, t, v.Params.SoCMin, v.Params.SoCMax)
		}
	}
	for t, p := range tr.BatteryKW {
		if math.Abs(p) > v.Params.MaxPowerKW+tol {
			return invalid("battery power %v at step %d exceeds limit %v", p, t, v.Params.MaxPowerKW)
		}
	}
	for t, g := range tr.GridKW {
		if g < -tol {
			return invalid("negative grid power %v at step %d", g, t)
		}
		if g > tr.PeakDemandKW+tol {
			return invalid("grid power %v at step %d exceeds peak demand %v", g, t, tr.PeakDemandKW)
		}
	}
	return ValidationOutcome{Valid: true}
}
