// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/soothill/esp32ctl/app"
	"github.com/soothill/esp32ctl/config"
	"github.com/soothill/esp32ctl/pkg/logger"
)

const healthCheckTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	metricsPort := flag.String("metrics-port", "9090", "Port for metrics and health check endpoints")
	healthCheck := flag.Bool("health-check", false, "Perform health check against a running instance and exit")
	validateConfig := flag.Bool("validate-config", false, "Validate configuration file and exit")
	flag.Parse()

	if *healthCheck {
		os.Exit(performHealthCheck(*metricsPort))
	}

	if *validateConfig {
		os.Exit(performConfigValidation(*configPath))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Initialize(cfg.Logging.Level)
	logger.Info().Str("config", *configPath).Msg("Starting ESP32 controller daemon")

	application, err := app.New(cfg, *metricsPort, *configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}

	setupDebugSignalHandlers(application)
	application.Run()
}

// performHealthCheck queries the health endpoint of a running instance.
// Returns 0 when healthy, 1 otherwise.
func performHealthCheck(metricsPort string) int {
	client := &http.Client{Timeout: healthCheckTimeout}
	resp, err := client.Get("http://localhost:" + metricsPort + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Println("OK")
	return 0
}

// performConfigValidation checks the config against the schema and the
// semantic validation rules. Returns 0 when valid, 1 otherwise.
func performConfigValidation(configPath string) int {
	if err := config.ValidateWithSchema(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Schema validation failed: %v\n", err)
		return 1
	}

	if _, err := config.Load(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation failed: %v\n", err)
		return 1
	}

	fmt.Println("Configuration is valid")
	return 0
}
