package mpc

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/powerboxtech/mpc-service/core/model"
	"github.com/powerboxtech/mpc-service/core/tariff"
)

// ErrMalformedInput indicates a cycle snapshot that disagrees with the
// configured horizon shape or carries out-of-range values. It is local to
// one cycle and never fatal.
var ErrMalformedInput = errors.New("malformed horizon inputs")

// Problem is one formulated optimization instance in LP general form:
//
//	minimize cᵀx  subject to  G·x <= h,  A·x = b
//
// It is rebuilt from scratch every cycle and discarded afterwards.
type Problem struct {
	Steps     int
	StepHours float64

	C []float64
	G *mat.Dense
	H []float64
	A *mat.Dense
	B []float64

	Prices     []float64 // energy price per step
	DemandRate float64   // rate applied to the peak demand scalar
	Inputs     model.HorizonInputs
	Params     model.BatteryParams
}

// Variable layout: battery power, charge part, discharge part and grid power
// per step, the SoC series with its terminal point, then the peak scalar.
func (p *Problem) iBatt(t int) int { return t }
func (p *Problem) iChg(t int) int  { return p.Steps + t }
func (p *Problem) iDis(t int) int  { return 2*p.Steps + t }
func (p *Problem) iGrid(t int) int { return 3*p.Steps + t }
func (p *Problem) iSoC(t int) int  { return 4*p.Steps + t }
func (p *Problem) iPeak() int      { return 5*p.Steps + 1 }

// NumVars returns the size of the decision vector.
func (p *Problem) NumVars() int { return 5*p.Steps + 2 }

// Formulator builds optimization problems for a fixed horizon shape.
// Stateless and deterministic given its inputs.
type Formulator struct {
	Params model.BatteryParams
	Tariff *tariff.Schedule
	Steps  int
}

// Build formulates the convex problem for one snapshot. It fails with an
// ErrMalformedInput-wrapped error when the forecast shapes disagree with the
// configured horizon or the state of charge is out of range.
func (f Formulator) Build(in model.HorizonInputs) (*Problem, error) {
	if len(in.LoadKW) != f.Steps {
		return nil, fmt.Errorf("%w: load forecast has %d steps, want %d", ErrMalformedInput, len(in.LoadKW), f.Steps)
	}
	if len(in.SolarKW) != f.Steps {
		return nil, fmt.Errorf("%w: solar forecast has %d steps, want %d", ErrMalformedInput, len(in.SolarKW), f.Steps)
	}
	if in.SoC < 0 || in.SoC > 1 {
		return nil, fmt.Errorf("%w: soc %v outside [0,1]", ErrMalformedInput, in.SoC)
	}
	if in.Step <= 0 {
		return nil, fmt.Errorf("%w: non-positive step duration %v", ErrMalformedInput, in.Step)
	}

	n := f.Steps
	dt := in.StepHours()
	p := &Problem{
		Steps:      n,
		StepHours:  dt,
		Prices:     f.Tariff.EnergyPrices(in.Start, in.Step, n),
		DemandRate: f.Tariff.HorizonDemandRate(in.Start, in.Step, n),
		Inputs:     in,
		Params:     f.Params,
	}

	nv := p.NumVars()

	// Objective: energy cost on grid power plus the demand charge on the
	// shared peak scalar.
	p.C = make([]float64, nv)
	for t := 0; t < n; t++ {
		p.C[p.iGrid(t)] = p.Prices[t] * dt
	}
	p.C[p.iPeak()] = p.DemandRate

	// Equalities: charge/discharge decomposition, power balance, initial
	// state and the SoC recurrence with asymmetric efficiency.
	nEq := 3*n + 1
	p.A = mat.NewDense(nEq, nv, nil)
	p.B = make([]float64, nEq)
	row := 0
	for t := 0; t < n; t++ { // P_batt - P_chg + P_dis = 0
		p.A.Set(row, p.iBatt(t), 1)
		p.A.Set(row, p.iChg(t), -1)
		p.A.Set(row, p.iDis(t), 1)
		row++
	}
	for t := 0; t < n; t++ { // P_grid + P_batt = load - solar
		p.A.Set(row, p.iGrid(t), 1)
		p.A.Set(row, p.iBatt(t), 1)
		p.B[row] = in.LoadKW[t] - in.SolarKW[t]
		row++
	}
	p.A.Set(row, p.iSoC(0), 1) // SoC[0] = soc_current
	p.B[row] = in.SoC
	row++
	chg := f.Params.ChargeEfficiency * dt / f.Params.CapacityKWh
	dis := dt / (f.Params.DischargeEfficiency * f.Params.CapacityKWh)
	for t := 0; t < n; t++ { // SoC[t+1] - SoC[t] - chg*P_chg + dis*P_dis = 0
		p.A.Set(row, p.iSoC(t+1), 1)
		p.A.Set(row, p.iSoC(t), -1)
		p.A.Set(row, p.iChg(t), -chg)
		p.A.Set(row, p.iDis(t), dis)
		row++
	}

	// Inequalities: box constraints on the split battery powers, grid import
	// only, peak coupling, SoC bounds and a non-negative peak.
	nIneq := 8*n + 3
	p.G = mat.NewDense(nIneq, nv, nil)
	p.H = make([]float64, nIneq)
	row = 0
	for t := 0; t < n; t++ {
		p.G.Set(row, p.iChg(t), 1) // P_chg <= Pmax
		p.H[row] = f.Params.MaxPowerKW
		row++
		p.G.Set(row, p.iChg(t), -1) // P_chg >= 0
		row++
		p.G.Set(row, p.iDis(t), 1) // P_dis <= Pmax
		p.H[row] = f.Params.MaxPowerKW
		row++
		p.G.Set(row, p.iDis(t), -1) // P_dis >= 0
		row++
		p.G.Set(row, p.iGrid(t), -1) // no export
		row++
		p.G.Set(row, p.iGrid(t), 1) // P_grid <= peak_demand
		p.G.Set(row, p.iPeak(), -1)
		row++
	}
	for t := 0; t <= n; t++ {
		p.G.Set(row, p.iSoC(t), 1) // SoC <= max
		p.H[row] = f.Params.SoCMax
		row++
		p.G.Set(row, p.iSoC(t), -1) // SoC >= min
		p.H[row] = -f.Params.SoCMin
		row++
	}
	p.G.Set(row, p.iPeak(), -1) // peak_demand >= 0

	return p, nil
}

// Costs evaluates the objective decomposition for a trajectory under the
// problem's tariff vectors.
func (p *Problem) Costs(tr *model.Trajectory) model.CostBreakdown {
	var energy float64
	for t := 0; t < p.Steps && t < len(tr.GridKW); t++ {
		energy += p.Prices[t] * tr.GridKW[t] * p.StepHours
	}
	demand := p.DemandRate * tr.PeakDemandKW
	return model.CostBreakdown{EnergyCost: energy, DemandCost: demand, TotalCost: energy + demand}
}
