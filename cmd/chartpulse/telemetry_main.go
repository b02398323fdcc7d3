package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// telemetryClient bounds calls against the operator surface.
var telemetryClient = &http.Client{Timeout: 10 * time.Second}

// operatorAddr resolves the target server address from --addr or the config.
func operatorAddr(cmd *cobra.Command) (string, error) {
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		return addr, nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", cfg.Operator.Host, cfg.Operator.Port), nil
}

// runTelemetryReport fetches the text rollup from a running server.
func runTelemetryReport(cmd *cobra.Command, args []string) error {
	addr, err := operatorAddr(cmd)
	if err != nil {
		return err
	}

	resp, err := telemetryClient.Get(fmt.Sprintf("http://%s/telemetry/report", addr))
	if err != nil {
		return fmt.Errorf("is a chartpulse server running on %s? %w", addr, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s: %s", resp.Status, string(body))
	}

	fmt.Print(string(body))
	return nil
}

// runTelemetryReset zeroes the accumulators on a running server.
func runTelemetryReset(cmd *cobra.Command, args []string) error {
	addr, err := operatorAddr(cmd)
	if err != nil {
		return err
	}

	resp, err := telemetryClient.Post(fmt.Sprintf("http://%s/telemetry/reset", addr), "application/json", nil)
	if err != nil {
		return fmt.Errorf("is a chartpulse server running on %s? %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %s: %s", resp.Status, string(body))
	}

	fmt.Println("Telemetry reset")
	return nil
}
