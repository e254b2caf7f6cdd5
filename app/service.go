// Package app wires the optimization cycle to its collaborators: state and
// forecast providers, the HTTP API, metrics sinks and the periodic loop.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apimpc "github.com/powerboxtech/mpc-service/api/mpc"
	"github.com/powerboxtech/mpc-service/config"
	coremetrics "github.com/powerboxtech/mpc-service/core/metrics"
	"github.com/powerboxtech/mpc-service/core/model"
	"github.com/powerboxtech/mpc-service/core/mpc"
	"github.com/powerboxtech/mpc-service/infra/bms"
	"github.com/powerboxtech/mpc-service/infra/forecast"
	"github.com/powerboxtech/mpc-service/infra/logger"
	"github.com/powerboxtech/mpc-service/infra/metrics"
	"github.com/powerboxtech/mpc-service/infra/mqtt"
	"github.com/powerboxtech/mpc-service/internal/eventbus"
)

// Service owns the cycle controller and its collaborators.
type Service struct {
	cfg       *config.Config
	ctrl      *mpc.Controller
	forecasts *forecast.Client
	battery   *bms.Client
	publisher mqtt.Publisher
	bus       *eventbus.Bus[model.DispatchOutcome]
	log       logger.Logger
	started   time.Time
}

// New creates a Service from validated configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	sched, err := cfg.Schedule()
	if err != nil {
		return nil, fmt.Errorf("tariff schedule: %w", err)
	}

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.Influx.Enabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.Metrics.Influx, logger.New("influx-sink")))
	}
	var sink coremetrics.Sink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = coremetrics.NewMultiSink(sinks...)
	}

	bus := eventbus.New[model.DispatchOutcome]()
	solver := mpc.SolverAdapter{Timeout: cfg.Horizon.SolveTimeout()}
	ctrl := mpc.NewController(cfg.Battery, sched, cfg.Horizon.Steps(), solver,
		logger.New("cycle-controller"), sink, bus)

	svc := &Service{
		cfg:       cfg,
		ctrl:      ctrl,
		forecasts: forecast.NewClient(cfg.Forecast, logger.New("forecast-client")),
		battery:   bms.NewClient(cfg.BMS, logger.New("bms-client")),
		bus:       bus,
		log:       logg,
		started:   time.Now(),
	}
	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewPahoPublisher(cfg.MQTT, logger.New("mqtt-publisher"))
		if err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		svc.publisher = pub
	}
	return svc, nil
}

// Controller exposes the cycle controller, mainly for tests.
func (s *Service) Controller() *mpc.Controller { return s.ctrl }

// Outcomes returns the event stream of published outcomes.
func (s *Service) Outcomes() <-chan model.DispatchOutcome { return s.bus.Subscribe() }

// RunCycleNow gathers a fresh snapshot from the providers, runs one cycle
// and forwards the committed command. Provider failures degrade to fallback
// inputs; they never abort the cycle.
func (s *Service) RunCycleNow(ctx context.Context) model.DispatchOutcome {
	n := s.cfg.Horizon.Steps()
	step := s.cfg.Horizon.Step()
	start := time.Now().UTC().Truncate(time.Minute)

	soc := s.battery.CurrentSoC(ctx)

	load, err := s.forecasts.LoadForecast(ctx, start, step, n)
	var solar []float64
	if err == nil {
		solar, err = s.forecasts.SolarForecast(ctx, start, step, n)
	}
	if err != nil {
		s.log.Warnf("forecast provider failed: %v", err)
		load, solar = s.forecasts.Fallback(n)
	}

	out := s.ctrl.RunCycle(ctx, model.HorizonInputs{
		SoC:     soc,
		LoadKW:  load,
		SolarKW: solar,
		Start:   start,
		Step:    step,
	})

	if err := s.battery.SendDispatch(ctx, out.BatteryPowerKW); err != nil {
		s.log.Warnf("dispatch command not delivered: %v", err)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishOutcome(out); err != nil {
			s.log.Warnf("mqtt publish failed: %v", err)
		}
	}
	return out
}

// Run starts the API server, the metrics server and the periodic cycle
// loop, then blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	mux := apimpc.NewMux(s.ctrl, s, s.cfg.Horizon.Steps(), s.started)
	srv := &http.Server{Addr: s.cfg.API.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api server shutdown: %v", err)
		}
	}()
	go func() {
		s.log.Infof("api listening on %s", s.cfg.API.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("api server: %v", err)
		}
	}()
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	s.log.Infof("starting cycle loop: %d steps of %s every %s",
		s.cfg.Horizon.Steps(), s.cfg.Horizon.Step(), s.cfg.Horizon.Interval())
	s.RunCycleNow(ctx)

	ticker := time.NewTicker(s.cfg.Horizon.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.RunCycleNow(ctx)
		}
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.publisher != nil {
		s.publisher.Close()
	}
	s.bus.Close()
	return nil
}
