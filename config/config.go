// Package config loads and validates the service configuration. Invalid
// immutable configuration (battery parameters, tariff schedule, horizon
// shape) fails startup: it is a deployment error, not a runtime condition.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/powerboxtech/mpc-service/core/model"
	"github.com/powerboxtech/mpc-service/core/tariff"
	"github.com/powerboxtech/mpc-service/infra/bms"
	"github.com/powerboxtech/mpc-service/infra/forecast"
	"github.com/powerboxtech/mpc-service/infra/metrics"
	"github.com/powerboxtech/mpc-service/infra/mqtt"
)

// HorizonConfig fixes the shape of every optimization cycle.
type HorizonConfig struct {
	Hours           int `json:"hours"`
	StepMinutes     int `json:"step_minutes"`
	IntervalMinutes int `json:"interval_minutes"`
	SolveTimeoutSec int `json:"solve_timeout_seconds"`
}

// SetDefaults applies the reference deployment shape: 48h horizon at 15
// minute steps, one cycle every 15 minutes.
func (c *HorizonConfig) SetDefaults() {
	if c.Hours == 0 {
		c.Hours = 48
	}
	if c.StepMinutes == 0 {
		c.StepMinutes = 15
	}
	if c.IntervalMinutes == 0 {
		c.IntervalMinutes = 15
	}
	if c.SolveTimeoutSec == 0 {
		c.SolveTimeoutSec = 120
	}
}

// Validate checks the horizon shape.
func (c HorizonConfig) Validate() error {
	if c.Hours <= 0 || c.StepMinutes <= 0 || c.IntervalMinutes <= 0 {
		return fmt.Errorf("horizon hours, step and interval must be positive")
	}
	if (c.Hours*60)%c.StepMinutes != 0 {
		return fmt.Errorf("horizon of %dh is not divisible by %dmin steps", c.Hours, c.StepMinutes)
	}
	return nil
}

// Steps returns the number of optimization steps in the horizon.
func (c HorizonConfig) Steps() int { return c.Hours * 60 / c.StepMinutes }

// Step returns the step duration.
func (c HorizonConfig) Step() time.Duration {
	return time.Duration(c.StepMinutes) * time.Minute
}

// Interval returns the cycle cadence.
func (c HorizonConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// SolveTimeout returns the slow-solve guard duration.
func (c HorizonConfig) SolveTimeout() time.Duration {
	return time.Duration(c.SolveTimeoutSec) * time.Second
}

// APIConfig defines the HTTP API listener.
type APIConfig struct {
	Addr string `json:"addr"`
}

// MetricsConfig selects the metrics sinks.
type MetricsConfig struct {
	PrometheusEnabled bool                 `json:"prometheus_enabled"`
	PrometheusAddr    string               `json:"prometheus_addr"`
	Influx            metrics.InfluxConfig `json:"influx"`
}

// Config is the full service configuration.
type Config struct {
	Battery  model.BatteryParams `json:"battery"`
	Tariff   []tariff.Band       `json:"tariff"`
	Horizon  HorizonConfig       `json:"horizon"`
	Forecast forecast.Config     `json:"forecast"`
	BMS      bms.Config          `json:"bms"`
	MQTT     mqtt.Config         `json:"mqtt"`
	Metrics  MetricsConfig       `json:"metrics"`
	API      APIConfig           `json:"api"`
}

// Load reads the configuration file, applies MPC_-prefixed environment
// overrides and validates the immutable sections.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides. The callback emits dot-delimited keys,
	// so the provider must unflatten on "." or the values land as flat keys
	// the unmarshal never sees.
	if err := k.Load(env.Provider("MPC_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "mpc_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Horizon.SetDefaults()
	cfg.Forecast.SetDefaults()
	cfg.BMS.SetDefaults()
	cfg.MQTT.SetDefaults()
	if cfg.API.Addr == "" {
		cfg.API.Addr = ":8080"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the immutable sections.
func (c *Config) Validate() error {
	if err := c.Battery.Validate(); err != nil {
		return fmt.Errorf("battery: %w", err)
	}
	if _, err := tariff.NewSchedule(c.Tariff); err != nil {
		return fmt.Errorf("tariff: %w", err)
	}
	if err := c.Horizon.Validate(); err != nil {
		return fmt.Errorf("horizon: %w", err)
	}
	return nil
}

// Schedule builds the validated tariff schedule.
func (c *Config) Schedule() (*tariff.Schedule, error) {
	return tariff.NewSchedule(c.Tariff)
}
