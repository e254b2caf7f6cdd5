package metrics

import (
	"context"
	"net/http"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/powerboxtech/mpc-service/core/logger"
	coremetrics "github.com/powerboxtech/mpc-service/core/metrics"
)

// InfluxConfig defines the InfluxDB sink parameters.
type InfluxConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Token   string `json:"token"`
	Org     string `json:"org"`
	Bucket  string `json:"bucket"`
}

// InfluxSink writes cycle records to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig, log logger.Logger) *InfluxSink {
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      log,
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink when the health check fails, so a missing database never blocks
// the control loop.
func NewInfluxSinkWithFallback(cfg InfluxConfig, log logger.Logger) coremetrics.Sink {
	sink := NewInfluxSink(cfg, log)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			log.Errorf("influx health check error: %v", err)
		} else {
			log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordCycle writes the cycle record as a single measurement point.
func (s *InfluxSink) RecordCycle(rec coremetrics.CycleRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("mpc_cycle").
		AddTag("status", rec.Status).
		AddTag("solver_status", rec.SolverStatus).
		AddTag("cycle_id", rec.CycleID).
		AddField("solve_seconds", rec.SolveTime.Seconds()).
		AddField("soc", rec.SoC).
		AddField("battery_command_kw", rec.BatteryPowerKW).
		AddField("peak_demand_kw", rec.PeakDemandKW).
		AddField("total_cost", rec.TotalCost).
		SetTime(rec.Timestamp)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }
