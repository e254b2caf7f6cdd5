// Package simulator provides an in-process BMS stand-in so the service can
// run end to end without hardware.
package simulator

import (
	"math"
	"sync"
	"time"

	"github.com/powerboxtech/mpc-service/core/model"
)

// Battery models the grid battery with asymmetric charge and discharge
// efficiency. Positive power charges, matching the dispatch convention.
type Battery struct {
	params model.BatteryParams

	mu  sync.Mutex
	soc float64
}

// NewBattery creates a battery at the given initial state of charge,
// clamped into the configured bounds.
func NewBattery(params model.BatteryParams, initialSoC float64) *Battery {
	soc := math.Min(math.Max(initialSoC, params.SoCMin), params.SoCMax)
	return &Battery{params: params, soc: soc}
}

// SoC returns the current state of charge.
func (b *Battery) SoC() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.soc
}

// ApplyPower advances the state of charge for the requested power held over
// dt, enforcing power and SoC limits. It returns the power actually applied.
func (b *Battery) ApplyPower(powerKW float64, dt time.Duration) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	hours := dt.Hours()
	if hours <= 0 {
		return 0
	}

	actual := math.Min(math.Abs(powerKW), b.params.MaxPowerKW)
	if powerKW >= 0 { // charge
		headroom := (b.params.SoCMax - b.soc) * b.params.CapacityKWh / b.params.ChargeEfficiency
		if actual*hours > headroom {
			actual = headroom / hours
		}
		b.soc += b.params.ChargeEfficiency * actual * hours / b.params.CapacityKWh
		return actual
	}
	// discharge draws down more stored energy than it delivers
	stored := (b.soc - b.params.SoCMin) * b.params.CapacityKWh * b.params.DischargeEfficiency
	if actual*hours > stored {
		actual = stored / hours
	}
	b.soc -= actual * hours / (b.params.DischargeEfficiency * b.params.CapacityKWh)
	return -actual
}
