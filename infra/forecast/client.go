// Package forecast fetches load and solar forecasts from the Reporter
// service and resamples them onto the optimization step grid.
package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/powerboxtech/mpc-service/core/logger"
)

// Config defines the Reporter connection parameters. FallbackLoadKW is a
// pointer so an explicit 0 survives defaulting.
type Config struct {
	BaseURL        string   `json:"base_url"`
	AuthToken      string   `json:"auth_token"`
	SiteID         string   `json:"site_id"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	FallbackLoadKW *float64 `json:"fallback_load_kw"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 15
	}
	if c.SiteID == "" {
		c.SiteID = "poi_1"
	}
	if c.FallbackLoadKW == nil {
		load := 200.0
		c.FallbackLoadKW = &load
	}
}

// Client talks to the Reporter forecast API.
type Client struct {
	cfg  Config
	http *http.Client
	log  logger.Logger
}

// NewClient creates a Reporter client.
func NewClient(cfg Config, log logger.Logger) *Client {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		log:  log,
	}
}

type loadPoint struct {
	DS          time.Time `json:"ds"`
	HourlyPower float64   `json:"hourly_power"`
}

type solarPoint struct {
	Index         time.Time `json:"index"`
	PowerExpected float64   `json:"power_expected"`
}

type point struct {
	ts    time.Time
	value float64
}

// LoadForecast fetches the hourly load forecast and linearly resamples it to
// n steps of the given duration starting at start.
func (c *Client) LoadForecast(ctx context.Context, start time.Time, step time.Duration, n int) ([]float64, error) {
	var raw []loadPoint
	url := fmt.Sprintf("%s/api/forecasts/load/%s", c.cfg.BaseURL, c.cfg.SiteID)
	if err := c.getJSON(ctx, url, &raw); err != nil {
		return nil, err
	}
	pts := make([]point, len(raw))
	for i, p := range raw {
		pts[i] = point{ts: p.DS, value: p.HourlyPower}
	}
	return resample(pts, start, step, n)
}

// SolarForecast fetches the solar forecast, already delivered on a fine
// grid, and resamples it onto the step grid.
func (c *Client) SolarForecast(ctx context.Context, start time.Time, step time.Duration, n int) ([]float64, error) {
	var raw []solarPoint
	url := fmt.Sprintf("%s/api/forecasts/solar/%s", c.cfg.BaseURL, c.cfg.SiteID)
	if err := c.getJSON(ctx, url, &raw); err != nil {
		return nil, err
	}
	pts := make([]point, len(raw))
	for i, p := range raw {
		pts[i] = point{ts: p.Index, value: p.PowerExpected}
	}
	return resample(pts, start, step, n)
}

// Fallback returns the degraded-mode profile used when the Reporter is
// unreachable: constant load and zero solar.
func (c *Client) Fallback(n int) (load, solar []float64) {
	c.log.Warnf("using fallback forecast: %v kW load, zero solar", *c.cfg.FallbackLoadKW)
	load = make([]float64, n)
	solar = make([]float64, n)
	for i := range load {
		load[i] = *c.cfg.FallbackLoadKW
	}
	return load, solar
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reporter request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reporter returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// resample evaluates the piecewise-linear interpolant of pts at every step
// timestamp. It fails when the delivered series does not cover the horizon.
func resample(pts []point, start time.Time, step time.Duration, n int) ([]float64, error) {
	if len(pts) == 0 {
		return nil, fmt.Errorf("empty forecast series")
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].ts.Before(pts[j].ts) })
	end := start.Add(time.Duration(n-1) * step)
	if start.Before(pts[0].ts) || end.After(pts[len(pts)-1].ts) {
		return nil, fmt.Errorf("forecast series covers [%v, %v], horizon needs [%v, %v]",
			pts[0].ts, pts[len(pts)-1].ts, start, end)
	}

	out := make([]float64, n)
	if len(pts) == 1 {
		for i := range out {
			out[i] = pts[0].value
		}
		return out, nil
	}
	j := 0
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * step)
		for j < len(pts)-2 && !ts.Before(pts[j+1].ts) {
			j++
		}
		a, b := pts[j], pts[j+1]
		span := b.ts.Sub(a.ts)
		if span <= 0 {
			out[i] = a.value
			continue
		}
		frac := float64(ts.Sub(a.ts)) / float64(span)
		if frac < 0 {
			frac = 0
		}
		if frac > 1 {
			frac = 1
		}
		out[i] = a.value + frac*(b.value-a.value)
	}
	return out, nil
}
