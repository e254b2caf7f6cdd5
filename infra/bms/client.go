// Package bms talks to the battery management service (or its simulator)
// for state-of-charge reads and dispatch commands.
package bms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/powerboxtech/mpc-service/core/logger"
)

// Config defines the BMS connection parameters. DefaultSoC is a pointer so
// an explicit 0 survives defaulting.
type Config struct {
	BaseURL        string   `json:"base_url"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	DefaultSoC     *float64 `json:"default_soc"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
	if c.DefaultSoC == nil {
		soc := 0.5
		c.DefaultSoC = &soc
	}
}

// Client reads battery state and sends dispatch commands over HTTP.
// State reads fail soft: on any provider error the last known state of
// charge, or the configured default, is returned.
type Client struct {
	cfg  Config
	http *http.Client
	log  logger.Logger

	mu        sync.Mutex
	lastKnown float64
	hasLast   bool
}

// NewClient creates a BMS client.
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

type socResponse struct {
	SoC    float64 `json:"soc"`
	Source string  `json:"source"`
}

// DispatchCommand is the wire shape of a battery power command.
type DispatchCommand struct {
	PowerKW   float64   `json:"power_kw"`
	Timestamp time.Time `json:"timestamp"`
}

// CurrentSoC fetches the current state of charge. Whatever it returns is
// treated as authoritative for the cycle, so provider failures degrade to
// the last known or default value rather than erroring.
func (c *Client) CurrentSoC(ctx context.Context) float64 {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/battery/soc", nil)
	if err != nil {
		return c.fallbackSoC(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return c.fallbackSoC(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return c.fallbackSoC(fmt.Errorf("bms returned status %d", resp.StatusCode))
	}
	var body socResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return c.fallbackSoC(err)
	}
	if body.SoC < 0 || body.SoC > 1 {
		return c.fallbackSoC(fmt.Errorf("soc %v outside [0,1]", body.SoC))
	}

	c.mu.Lock()
	c.lastKnown = body.SoC
	c.hasLast = true
	c.mu.Unlock()
	c.log.Debugf("bms soc %.3f from %s", body.SoC, body.Source)
	return body.SoC
}

func (c *Client) fallbackSoC(cause error) float64 {
	c.mu.Lock()
	soc, ok := c.lastKnown, c.hasLast
	c.mu.Unlock()
	if !ok {
		soc = *c.cfg.DefaultSoC
	}
	c.log.Warnf("bms soc unavailable (%v), using %.3f", cause, soc)
	return soc
}

// SendDispatch posts the committed battery power command.
func (c *Client) SendDispatch(ctx context.Context, powerKW float64) error {
	payload, err := json.Marshal(DispatchCommand{PowerKW: powerKW, Timestamp: time.Now().UTC()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/battery/dispatch", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bms dispatch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bms dispatch returned status %d", resp.StatusCode)
	}
	return nil
}
