package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// runReport generates one report from the command line and prints the
// composed image path.
func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	spec, err := specFromFlags(cmd.Flags())
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	go func() {
		<-quit
		log.Warn().Msg("Interrupt received, canceling report generation")
		cancel()
	}()

	log.Info().
		Str("ticker", spec.Ticker).
		Str("interval", string(spec.Interval)).
		Int("candles", spec.NumCandles).
		Msg("Generating report")

	result, err := rt.orch.GenerateReport(ctx, spec)
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", result.Message)
	fmt.Printf("Report: %s\n", result.Path)
	fmt.Printf("Elapsed: %s\n", result.Elapsed.Round(time.Millisecond))
	return nil
}
