package mpc

import (
	"math"
	"time"

	"github.com/powerboxtech/mpc-service/core/model"
	"github.com/powerboxtech/mpc-service/core/tariff"
)

// FallbackTrajectory builds the no-battery schedule attached to non-optimal
// outcomes: the battery idles, the grid covers net demand and the state of
// charge stays flat.
func FallbackTrajectory(in model.HorizonInputs) *model.Trajectory {
	n := in.Steps()
	tr := &model.Trajectory{
		BatteryKW:   make([]float64, n),
		ChargeKW:    make([]float64, n),
		DischargeKW: make([]float64, n),
		GridKW:      make([]float64, n),
		SoC:         make([]float64, n+1),
	}
	for t := 0; t < n; t++ {
		tr.GridKW[t] = math.Max(in.LoadKW[t]-in.SolarKW[t], 0)
		tr.PeakDemandKW = math.Max(tr.PeakDemandKW, tr.GridKW[t])
	}
	for t := 0; t <= n; t++ {
		tr.SoC[t] = in.SoC
	}
	return tr
}

// BaselineCost prices the no-battery schedule under the tariff: the cost the
// site would pay if it always imported net demand from the grid. Used to
// report the value of each optimized horizon.
func BaselineCost(sched *tariff.Schedule, in model.HorizonInputs) model.CostBreakdown {
	n := in.Steps()
	dt := in.StepHours()
	var energy, peak float64
	for t := 0; t < n; t++ {
		grid := math.Max(in.LoadKW[t]-in.SolarKW[t], 0)
		price, _ := sched.RateAt(in.Start.Add(time.Duration(t) * in.Step))
		energy += price * grid * dt
		peak = math.Max(peak, grid)
	}
	demand := sched.HorizonDemandRate(in.Start, in.Step, n) * peak
	return model.CostBreakdown{EnergyCost: energy, DemandCost: demand, TotalCost: energy + demand}
}
