package model

import (
	"fmt"
	"time"
)

// BatteryParams describes the physical battery connected at the point of
// interconnection. Loaded once at startup and shared read-only by every
// optimization cycle.
type BatteryParams struct {
	CapacityKWh         float64 `json:"capacity_kwh"`
	MaxPowerKW          float64 `json:"max_power_kw"`
	ChargeEfficiency    float64 `json:"charge_efficiency"`
	DischargeEfficiency float64 `json:"discharge_efficiency"`
	SoCMin              float64 `json:"soc_min"`
	SoCMax              float64 `json:"soc_max"`
}

// Validate checks that the battery configuration is physically sound.
// An error here is a deployment error and should halt startup.
func (p BatteryParams) Validate() error {
	if p.CapacityKWh <= 0 {
		return fmt.Errorf("battery capacity must be positive, got %v", p.CapacityKWh)
	}
	if p.MaxPowerKW <= 0 {
		return fmt.Errorf("battery max power must be positive, got %v", p.MaxPowerKW)
	}
	if p.ChargeEfficiency <= 0 || p.ChargeEfficiency > 1 {
		return fmt.Errorf("charge efficiency must be in (0,1], got %v", p.ChargeEfficiency)
	}
	if p.DischargeEfficiency <= 0 || p.DischargeEfficiency > 1 {
		return fmt.Errorf("discharge efficiency must be in (0,1], got %v", p.DischargeEfficiency)
	}
	if p.SoCMin < 0 || p.SoCMax > 1 || p.SoCMin >= p.SoCMax {
		return fmt.Errorf("soc bounds must satisfy 0 <= min < max <= 1, got [%v, %v]", p.SoCMin, p.SoCMax)
	}
	return nil
}

// HorizonInputs is the snapshot consumed by one optimization cycle: the
// current state of charge plus load and solar forecasts aligned to equal
// time steps starting at Start.
type HorizonInputs struct {
	SoC     float64   // current state of charge between 0 and 1
	LoadKW  []float64 // load forecast, one value per step
	SolarKW []float64 // solar generation forecast, one value per step
	Start   time.Time // timestamp of the first step
	Step    time.Duration
}

// Steps returns the number of forecast steps carried by the snapshot.
func (h HorizonInputs) Steps() int { return len(h.LoadKW) }

// StepHours returns the step duration expressed in hours.
func (h HorizonInputs) StepHours() float64 { return h.Step.Hours() }

// StepTime returns the timestamp of step t.
func (h HorizonInputs) StepTime(t int) time.Time {
	return h.Start.Add(time.Duration(t) * h.Step)
}
