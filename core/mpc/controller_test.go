package mpc

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/powerboxtech/mpc-service/core/metrics"
	"github.com/powerboxtech/mpc-service/core/model"
	"github.com/powerboxtech/mpc-service/internal/eventbus"
)

type stubSolver struct {
	res    model.SolveResult
	panics bool
}

func (s stubSolver) Solve(ctx context.Context, p *Problem) model.SolveResult {
	if s.panics {
		panic("solver blew up")
	}
	return s.res
}

type captureSink struct {
	mu      sync.Mutex
	records []metrics.CycleRecord
}

func (s *captureSink) RecordCycle(r metrics.CycleRecord) error {
	s.mu.Lock()
	s.records = append(s.records, r)
	s.mu.Unlock()
	return nil
}

func (s *captureSink) last(t *testing.T) metrics.CycleRecord {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		t.Fatal("no cycle records")
	}
	return s.records[len(s.records)-1]
}

func newTestController(t *testing.T, n int, solver Solver) *Controller {
	t.Helper()
	return NewController(testParams(), testSchedule(t), n, solver, nil, nil, nil)
}

func TestRunCycleOptimal(t *testing.T) {
	n := 8
	c := newTestController(t, n, SolverAdapter{})
	in := flatInputs(n, 0.5, 100, 0)

	out := c.RunCycle(context.Background(), in)
	if out.Status != model.OutcomeOptimal {
		t.Fatalf("status = %v (%s), want optimal", out.Status, out.Reason)
	}
	if out.CycleID == "" {
		t.Fatal("outcome must carry a cycle id")
	}
	if out.Trajectory == nil || len(out.Trajectory.BatteryKW) != n {
		t.Fatal("optimal outcome must carry the full trajectory")
	}
	if out.BatteryPowerKW != out.Trajectory.BatteryKW[0] {
		t.Fatalf("command %v disagrees with first trajectory step %v", out.BatteryPowerKW, out.Trajectory.BatteryKW[0])
	}
	if out.Cost == nil || out.BaselineCost <= 0 {
		t.Fatal("optimal outcome must carry cost and baseline")
	}

	got, ok := c.Latest()
	if !ok || got.CycleID != out.CycleID {
		t.Fatal("latest slot must expose the committed outcome")
	}
	st := c.Stats()
	if st.Cycles != 1 || st.LastSoC != 0.5 || st.LastRun == nil {
		t.Fatalf("stats = %+v", st)
	}
}

func TestRunCycleMalformedInputsNeverCrash(t *testing.T) {
	n := 8
	c := newTestController(t, n, SolverAdapter{})
	in := flatInputs(n, 0.5, 100, 0)
	in.LoadKW = in.LoadKW[:n-1] // one forecast point short

	out := c.RunCycle(context.Background(), in)
	if out.Status != model.OutcomeError {
		t.Fatalf("status = %v, want error", out.Status)
	}
	if out.BatteryPowerKW != 0 {
		t.Fatalf("degraded cycle must command 0 kW, got %v", out.BatteryPowerKW)
	}
	if out.Reason == "" {
		t.Fatal("error outcome must carry a reason")
	}
	if st := c.Stats(); st.Cycles != 1 {
		t.Fatalf("failed cycles still count: %+v", st)
	}
}

func TestRunCycleInfeasibleState(t *testing.T) {
	n := 4
	c := newTestController(t, n, SolverAdapter{})
	in := flatInputs(n, 0.05, 100, 0) // below the SoC floor

	out := c.RunCycle(context.Background(), in)
	if out.Status != model.OutcomeInfeasible {
		t.Fatalf("status = %v, want infeasible", out.Status)
	}
	if out.BatteryPowerKW != 0 {
		t.Fatalf("infeasible cycle must command 0 kW, got %v", out.BatteryPowerKW)
	}
	if out.Trajectory == nil {
		t.Fatal("degraded outcome must carry the fallback trajectory")
	}
	for i, soc := range out.Trajectory.SoC {
		if soc != 0.05 {
			t.Fatalf("fallback soc[%d] = %v, want flat 0.05", i, soc)
		}
	}
	if out.Cost != nil {
		t.Fatal("degraded outcome must not claim an optimized cost")
	}
}

func TestRunCycleSolverPanicBecomesErrorOutcome(t *testing.T) {
	n := 4
	c := newTestController(t, n, stubSolver{panics: true})
	out := c.RunCycle(context.Background(), flatInputs(n, 0.5, 100, 0))
	if out.Status != model.OutcomeError {
		t.Fatalf("status = %v, want error", out.Status)
	}
	if _, ok := c.Latest(); !ok {
		t.Fatal("panicking cycle must still commit an outcome")
	}
}

func TestRunCycleInvalidSolutionRejected(t *testing.T) {
	n := 4
	bad := validTrajectory(n)
	bad.SoC[2] = 1.5 // solver claims optimal but violates the ceiling
	c := newTestController(t, n, stubSolver{res: model.SolveResult{Status: model.SolveOptimal, Trajectory: bad}})

	out := c.RunCycle(context.Background(), flatInputs(n, 0.5, 100, 0))
	if out.Status != model.OutcomeInfeasible {
		t.Fatalf("status = %v, want infeasible", out.Status)
	}
	if out.BatteryPowerKW != 0 {
		t.Fatalf("rejected solution must command 0 kW, got %v", out.BatteryPowerKW)
	}
}

func TestRunCycleIdempotent(t *testing.T) {
	n := 8
	c := newTestController(t, n, SolverAdapter{})
	in := flatInputs(n, 0.5, 100, 0)

	first := c.RunCycle(context.Background(), in)
	second := c.RunCycle(context.Background(), in)
	if first.Status != model.OutcomeOptimal || second.Status != model.OutcomeOptimal {
		t.Fatalf("statuses = %v, %v", first.Status, second.Status)
	}
	if first.BatteryPowerKW != second.BatteryPowerKW {
		t.Fatalf("identical inputs produced %v then %v kW", first.BatteryPowerKW, second.BatteryPowerKW)
	}
	if first.Cost.TotalCost != second.Cost.TotalCost {
		t.Fatalf("identical inputs produced costs %v then %v", first.Cost.TotalCost, second.Cost.TotalCost)
	}
	if first.CycleID == second.CycleID {
		t.Fatal("every cycle gets its own id")
	}
}

func TestRunCycleSinkAndBus(t *testing.T) {
	n := 4
	sink := &captureSink{}
	bus := eventbus.New[model.DispatchOutcome]()
	sub := bus.Subscribe()
	c := NewController(testParams(), testSchedule(t), n, SolverAdapter{}, nil, sink, bus)

	out := c.RunCycle(context.Background(), flatInputs(n, 0.5, 100, 0))

	rec := sink.last(t)
	if rec.CycleID != out.CycleID || rec.Status != string(out.Status) {
		t.Fatalf("sink record %+v disagrees with outcome", rec)
	}
	select {
	case ev := <-sub:
		if ev.CycleID != out.CycleID {
			t.Fatalf("bus delivered cycle %s, want %s", ev.CycleID, out.CycleID)
		}
	case <-time.After(time.Second):
		t.Fatal("no event on the bus")
	}
}

func TestLatestSafeUnderConcurrentReads(t *testing.T) {
	n := 4
	c := newTestController(t, n, SolverAdapter{})
	in := flatInputs(n, 0.5, 100, 0)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if out, ok := c.Latest(); ok {
					if out.CycleID == "" || out.Trajectory == nil {
						t.Error("reader observed a partial outcome")
						return
					}
				}
				c.Stats()
			}
		}()
	}
	for i := 0; i < 5; i++ {
		c.RunCycle(context.Background(), in)
	}
	close(stop)
	wg.Wait()
}

// TestFullHorizonArbitrage runs the production-sized problem: a two-day
// horizon at 15-minute resolution over a three-band tariff with flat load.
// The optimized plan must honor every physical bound and beat the
// no-battery baseline by shifting energy from the night band into the peak.
func TestFullHorizonArbitrage(t *testing.T) {
	if testing.Short() {
		t.Skip("full-horizon solve is slow")
	}
	n := 192
	c := newTestController(t, n, SolverAdapter{Timeout: 10 * time.Minute})
	in := flatInputs(n, 0.5, 100, 0)

	out := c.RunCycle(context.Background(), in)
	if out.Status != model.OutcomeOptimal {
		t.Fatalf("status = %v (%s), want optimal", out.Status, out.Reason)
	}
	tr := out.Trajectory
	params := testParams()
	for i, soc := range tr.SoC {
		if soc < params.SoCMin-1e-6 || soc > params.SoCMax+1e-6 {
			t.Fatalf("soc[%d] = %v outside bounds", i, soc)
		}
	}
	for i, g := range tr.GridKW {
		if g < -1e-6 {
			t.Fatalf("grid[%d] = %v, export is not allowed", i, g)
		}
	}
	if math.Abs(out.BatteryPowerKW) > params.MaxPowerKW+1e-6 {
		t.Fatalf("command %v exceeds power limit", out.BatteryPowerKW)
	}
	if out.Cost.TotalCost >= out.BaselineCost {
		t.Fatalf("optimized cost %v did not beat baseline %v", out.Cost.TotalCost, out.BaselineCost)
	}
}
