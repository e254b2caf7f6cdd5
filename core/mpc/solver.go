package mpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/powerboxtech/mpc-service/core/model"
)

// simplexSolve points to the function used to solve the LP. It can be
// overridden in tests to simulate solver failures.
var simplexSolve = func(c []float64, g mat.Matrix, h []float64, a mat.Matrix, b []float64, tol float64) ([]float64, error) {
	cStd, aStd, bStd := lp.Convert(c, g, h, a, b)
	_, sol, err := lp.Simplex(cStd, aStd, bStd, tol, nil)
	return sol, err
}

// SolverAdapter submits formulated problems to the simplex engine and maps
// its vocabulary onto the SolveStatus taxonomy. It is the only component
// touching the numerical library; nothing it returns escapes as a panic or
// an unclassified error.
type SolverAdapter struct {
	// Tol is the simplex convergence tolerance. Zero means 1e-7.
	Tol float64
	// Timeout aborts a pathologically slow solve. Zero means no guard.
	Timeout time.Duration
}

type solveOutput struct {
	sol []float64
	err error
}

// Solve runs the engine on the problem and extracts the trajectory when a
// solution exists. The engine runs without randomness, so identical problems
// produce identical results.
func (s SolverAdapter) Solve(ctx context.Context, p *Problem) model.SolveResult {
	tol := s.Tol
	if tol == 0 {
		tol = 1e-7
	}
	start := time.Now()

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	ch := make(chan solveOutput, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- solveOutput{err: fmt.Errorf("solver panic: %v", r)}
			}
		}()
		sol, err := simplexSolve(p.C, p.G, p.H, p.A, p.B, tol)
		ch <- solveOutput{sol: sol, err: err}
	}()

	var out solveOutput
	select {
	case out = <-ch:
	case <-ctx.Done():
		// The simplex has no cancellation point; the goroutine is left to
		// finish and its result is dropped.
		return model.SolveResult{Status: model.SolveError, SolveTime: time.Since(start)}
	}
	elapsed := time.Since(start)

	if out.err != nil {
		return model.SolveResult{Status: mapSolveErr(out.err), SolveTime: elapsed}
	}

	tr := s.extract(p, out.sol)
	res := model.SolveResult{
		Status:     model.SolveOptimal,
		SolveTime:  elapsed,
		Trajectory: tr,
		Cost:       p.Costs(tr),
	}
	return res
}

func mapSolveErr(err error) model.SolveStatus {
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return model.SolveInfeasible
	case errors.Is(err, lp.ErrUnbounded):
		return model.SolveUnbounded
	default:
		return model.SolveError
	}
}

// extract maps the standard-form solution back onto the problem's variable
// layout. lp.Convert splits each free variable v into a nonnegative pair
// (v+, v-) with v = v+ - v-, appended in that order before the slacks.
func (s SolverAdapter) extract(p *Problem, sol []float64) *model.Trajectory {
	nv := p.NumVars()
	x := make([]float64, nv)
	for i := range x {
		val := sol[i]
		if nv+i < len(sol) {
			val -= sol[nv+i]
		}
		x[i] = val
	}

	n := p.Steps
	tr := &model.Trajectory{
		BatteryKW:   make([]float64, n),
		ChargeKW:    make([]float64, n),
		DischargeKW: make([]float64, n),
		GridKW:      make([]float64, n),
		SoC:         make([]float64, n+1),
	}
	for t := 0; t < n; t++ {
		tr.BatteryKW[t] = x[p.iBatt(t)]
		tr.ChargeKW[t] = x[p.iChg(t)]
		tr.DischargeKW[t] = x[p.iDis(t)]
		tr.GridKW[t] = x[p.iGrid(t)]
	}
	for t := 0; t <= n; t++ {
		tr.SoC[t] = x[p.iSoC(t)]
	}
	tr.PeakDemandKW = x[p.iPeak()]
	// The simplex can leave the peak slightly under the realized maximum.
	for _, g := range tr.GridKW {
		tr.PeakDemandKW = math.Max(tr.PeakDemandKW, g)
	}
	return tr
}
