package tariff

import (
	"fmt"
	"time"
)

// Band is one time-of-use band of the daily tariff. Bands are half-open on
// the hour: a timestamp exactly on StartHour belongs to this band. A band
// with EndHour <= StartHour wraps past midnight.
type Band struct {
	Name        string  `json:"name"`
	StartHour   int     `json:"start_hour"`
	EndHour     int     `json:"end_hour"`
	EnergyPrice float64 `json:"energy_price"` // currency per kWh
	DemandRate  float64 `json:"demand_rate"`  // currency per kW
}

func (b Band) contains(hour int) bool {
	if b.StartHour < b.EndHour {
		return hour >= b.StartHour && hour < b.EndHour
	}
	return hour >= b.StartHour || hour < b.EndHour
}

// Schedule maps any timestamp to the tariff band in force at that time.
// The bands must partition the 24-hour day without gaps or overlaps, which
// NewSchedule enforces, so lookups are total.
type Schedule struct {
	bands  []Band
	byHour [24]int // band index in force at each hour of day
}

// NewSchedule validates the band set and builds the hourly lookup table.
func NewSchedule(bands []Band) (*Schedule, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("tariff schedule requires at least one band")
	}
	s := &Schedule{bands: append([]Band(nil), bands...)}
	for _, b := range s.bands {
		if b.StartHour < 0 || b.StartHour > 23 || b.EndHour < 0 || b.EndHour > 24 {
			return nil, fmt.Errorf("band %q: hours out of range [%d, %d)", b.Name, b.StartHour, b.EndHour)
		}
		if b.EnergyPrice < 0 || b.DemandRate < 0 {
			return nil, fmt.Errorf("band %q: negative rate", b.Name)
		}
	}
	var covered [24]bool
	for i, b := range s.bands {
		for h := 0; h < 24; h++ {
			if !b.contains(h) {
				continue
			}
			if covered[h] {
				return nil, fmt.Errorf("band %q overlaps another band at hour %d", b.Name, h)
			}
			covered[h] = true
			s.byHour[h] = i
		}
	}
	for h, ok := range covered {
		if !ok {
			return nil, fmt.Errorf("no tariff band covers hour %d", h)
		}
	}
	return s, nil
}

// BandAt returns the band in force at t.
func (s *Schedule) BandAt(t time.Time) Band {
	return s.bands[s.byHour[t.Hour()]]
}

// RateAt returns the energy price and demand rate in force at t.
func (s *Schedule) RateAt(t time.Time) (energyPrice, demandRate float64) {
	b := s.BandAt(t)
	return b.EnergyPrice, b.DemandRate
}

// Bands returns a copy of the configured bands.
func (s *Schedule) Bands() []Band {
	return append([]Band(nil), s.bands...)
}

// EnergyPrices returns the per-step energy price vector for n steps starting
// at start.
func (s *Schedule) EnergyPrices(start time.Time, step time.Duration, n int) []float64 {
	prices := make([]float64, n)
	for t := 0; t < n; t++ {
		prices[t], _ = s.RateAt(start.Add(time.Duration(t) * step))
	}
	return prices
}

// HorizonDemandRate returns the demand rate applied to the horizon's peak
// demand scalar: the maximum rate across the bands the horizon touches. A
// single scalar peak cannot be billed per band, so the conservative upper
// bound is used.
func (s *Schedule) HorizonDemandRate(start time.Time, step time.Duration, n int) float64 {
	var max float64
	for t := 0; t < n; t++ {
		_, rate := s.RateAt(start.Add(time.Duration(t) * step))
		if rate > max {
			max = rate
		}
	}
	return max
}
