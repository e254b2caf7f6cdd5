package model

import (
	"testing"
	"time"
)

func TestBatteryParamsValidate(t *testing.T) {
	good := BatteryParams{
		CapacityKWh:         500,
		MaxPowerKW:          250,
		ChargeEfficiency:    0.9486,
		DischargeEfficiency: 0.9486,
		SoCMin:              0.1,
		SoCMax:              0.9,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*BatteryParams)
	}{
		{"zero capacity", func(p *BatteryParams) { p.CapacityKWh = 0 }},
		{"negative power", func(p *BatteryParams) { p.MaxPowerKW = -10 }},
		{"efficiency above one", func(p *BatteryParams) { p.ChargeEfficiency = 1.1 }},
		{"zero discharge efficiency", func(p *BatteryParams) { p.DischargeEfficiency = 0 }},
		{"inverted soc bounds", func(p *BatteryParams) { p.SoCMin = 0.9; p.SoCMax = 0.1 }},
		{"soc max above one", func(p *BatteryParams) { p.SoCMax = 1.2 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := good
			tc.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Fatal("invalid params accepted")
			}
		})
	}
}

func TestHorizonInputs(t *testing.T) {
	start := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	in := HorizonInputs{
		LoadKW:  make([]float64, 4),
		SolarKW: make([]float64, 4),
		Start:   start,
		Step:    15 * time.Minute,
	}
	if in.Steps() != 4 {
		t.Fatalf("steps = %d", in.Steps())
	}
	if in.StepHours() != 0.25 {
		t.Fatalf("step hours = %v", in.StepHours())
	}
	if got := in.StepTime(3); !got.Equal(start.Add(45 * time.Minute)) {
		t.Fatalf("step time = %v", got)
	}
}

func TestSolveStatusUsable(t *testing.T) {
	if !SolveOptimal.Usable() || !SolveSuboptimal.Usable() {
		t.Fatal("optimal and suboptimal carry usable solutions")
	}
	if SolveInfeasible.Usable() || SolveUnbounded.Usable() || SolveError.Usable() {
		t.Fatal("degraded statuses must not be usable")
	}
}
