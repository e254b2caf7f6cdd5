// Package metrics defines the sink abstraction used to record optimization
// cycle outcomes. Implementations live in infra/metrics.
package metrics

import "time"

// CycleRecord summarizes one completed optimization cycle.
type CycleRecord struct {
	CycleID        string
	Timestamp      time.Time
	Status         string
	SolverStatus   string
	SolveTime      time.Duration
	SoC            float64
	BatteryPowerKW float64
	PeakDemandKW   float64
	TotalCost      float64
}

// Sink receives cycle records. Implementations must be safe for use from
// the cycle loop; recording failures are logged, never fatal.
type Sink interface {
	RecordCycle(CycleRecord) error
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) RecordCycle(CycleRecord) error { return nil }
