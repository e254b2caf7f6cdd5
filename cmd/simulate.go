package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/powerboxtech/mpc-service/config"
	"github.com/powerboxtech/mpc-service/infra/logger"
	"github.com/powerboxtech/mpc-service/simulator"
)

var (
	simAddr string
	simSoC  float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the BMS simulator HTTP server",
	RunE:  runSimulator,
}

func init() {
	simulateCmd.Flags().StringVar(&simAddr, "addr", ":9000", "listen address")
	simulateCmd.Flags().Float64Var(&simSoC, "soc", 0.5, "initial state of charge")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulator(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logg := logger.New("simulator")
	battery := simulator.NewBattery(cfg.Battery, simSoC)
	srv := &http.Server{
		Addr:    simAddr,
		Handler: simulator.NewServer(battery, cfg.Horizon.Step(), logg).Mux(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logg.Infof("BMS simulator listening on %s (soc=%.2f)", simAddr, simSoC)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
