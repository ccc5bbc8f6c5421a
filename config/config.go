// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package config provides configuration management for the ESP32
// controller client.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Device        DeviceConfig        `yaml:"device"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// DeviceConfig holds device addressing and discovery settings
type DeviceConfig struct {
	// Host pins the device address and skips discovery when set
	Host         string        `yaml:"host" validate:"omitempty,hostname|ip"`
	TCPPort      int           `yaml:"tcp_port" validate:"min=0,max=65535"`
	UDPPort      int           `yaml:"udp_port" validate:"min=0,max=65535"`
	Hostname     string        `yaml:"hostname"`
	ServiceType  string        `yaml:"service_type"`
	ScanWindow   time.Duration `yaml:"scan_window"`
	CacheEnabled *bool         `yaml:"cache_enabled"`
	CacheFile    string        `yaml:"cache_file"`
}

// CacheOn reports whether the address cache is enabled (the default).
func (d DeviceConfig) CacheOn() bool {
	return d.CacheEnabled == nil || *d.CacheEnabled
}

// MonitoringConfig holds status polling settings
type MonitoringConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// InfluxDBConfig holds InfluxDB connection settings
type InfluxDBConfig struct {
	URL          string `yaml:"url" validate:"omitempty,url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
	SpoolDir     string `yaml:"spool_dir"`
	SpoolMaxSize int64  `yaml:"spool_max_size" validate:"min=0"`
}

// NotificationsConfig holds alerting settings
type NotificationsConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url" validate:"omitempty,url"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error fatal panic"`
}

var validate = validator.New()

// Load reads configuration from a YAML file and applies environment
// variable overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.setDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to
// the configuration
func (c *Config) applyEnvironmentOverrides() {
	if host := os.Getenv("ESP32_HOST"); host != "" {
		c.Device.Host = host
	}
	if port := os.Getenv("ESP32_TCP_PORT"); port != "" {
		if n, parseErr := strconv.Atoi(port); parseErr == nil {
			c.Device.TCPPort = n
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse ESP32_TCP_PORT '%s': %v\n", port, parseErr)
		}
	}
	if port := os.Getenv("ESP32_UDP_PORT"); port != "" {
		if n, parseErr := strconv.Atoi(port); parseErr == nil {
			c.Device.UDPPort = n
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse ESP32_UDP_PORT '%s': %v\n", port, parseErr)
		}
	}
	if url := os.Getenv("INFLUXDB_URL"); url != "" {
		c.InfluxDB.URL = url
	}
	if token := os.Getenv("INFLUXDB_TOKEN"); token != "" {
		c.InfluxDB.Token = token
	}
	if org := os.Getenv("INFLUXDB_ORG"); org != "" {
		c.InfluxDB.Organization = org
	}
	if bucket := os.Getenv("INFLUXDB_BUCKET"); bucket != "" {
		c.InfluxDB.Bucket = bucket
	}
	if webhook := os.Getenv("SLACK_WEBHOOK_URL"); webhook != "" {
		c.Notifications.SlackWebhookURL = webhook
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if interval := os.Getenv("ESP32_POLL_INTERVAL"); interval != "" {
		duration, parseErr := time.ParseDuration(interval)
		if parseErr == nil {
			c.Monitoring.PollInterval = duration
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse ESP32_POLL_INTERVAL '%s': %v\n", interval, parseErr)
		}
	}
}

// setDefaults sets default values for configuration fields if not
// provided
func (c *Config) setDefaults() {
	if c.Device.TCPPort == 0 {
		c.Device.TCPPort = 8888
	}
	if c.Device.UDPPort == 0 {
		c.Device.UDPPort = 8889
	}
	if c.Device.Hostname == "" {
		c.Device.Hostname = "esp32-controller.local"
	}
	if c.Device.ServiceType == "" {
		c.Device.ServiceType = "_esp32ctl._udp"
	}
	if c.Device.ScanWindow == 0 {
		c.Device.ScanWindow = 3 * time.Second
	}
	if c.Monitoring.PollInterval == 0 {
		c.Monitoring.PollInterval = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid field: %w", err)
	}

	if validateErr := c.validateDevice(); validateErr != nil {
		return validateErr
	}
	if validateErr := c.validateMonitoring(); validateErr != nil {
		return validateErr
	}
	if c.Monitoring.Enabled {
		if validateErr := c.validateInfluxDB(); validateErr != nil {
			return validateErr
		}
	}

	return nil
}

// validateDevice validates the device configuration
func (c *Config) validateDevice() error {
	if c.Device.TCPPort == c.Device.UDPPort {
		return fmt.Errorf("device.tcp_port and device.udp_port must differ")
	}
	if c.Device.ScanWindow < 500*time.Millisecond {
		return fmt.Errorf("device.scan_window must be at least 500ms")
	}
	if c.Device.ScanWindow > time.Minute {
		return fmt.Errorf("device.scan_window must not exceed 1 minute")
	}
	return nil
}

// validateMonitoring validates the monitoring configuration
func (c *Config) validateMonitoring() error {
	if c.Monitoring.PollInterval < time.Second {
		return fmt.Errorf("monitoring.poll_interval must be at least 1 second")
	}
	if c.Monitoring.PollInterval > time.Hour {
		return fmt.Errorf("monitoring.poll_interval must not exceed 1 hour")
	}
	return nil
}

// validateInfluxDB validates the InfluxDB configuration, required when
// monitoring is enabled
func (c *Config) validateInfluxDB() error {
	if c.InfluxDB.URL == "" {
		return fmt.Errorf("influxdb.url is required when monitoring is enabled")
	}

	parsedURL, parseErr := url.Parse(c.InfluxDB.URL)
	if parseErr != nil {
		return fmt.Errorf("influxdb.url is not a valid URL: %w", parseErr)
	}
	if securityErr := validateURLSecurity(parsedURL); securityErr != nil {
		return securityErr
	}

	if c.InfluxDB.Token == "" {
		return fmt.Errorf("influxdb.token is required when monitoring is enabled")
	}
	if len(c.InfluxDB.Token) < 8 {
		return fmt.Errorf("influxdb.token must be at least 8 characters long")
	}
	if c.InfluxDB.Organization == "" {
		return fmt.Errorf("influxdb.organization is required when monitoring is enabled")
	}
	if c.InfluxDB.Bucket == "" {
		return fmt.Errorf("influxdb.bucket is required when monitoring is enabled")
	}

	return nil
}

// validateURLSecurity checks if the URL uses HTTPS for non-local
// connections
func validateURLSecurity(parsedURL *url.URL) error {
	if parsedURL.Scheme != "http" {
		return nil
	}

	hostname := strings.ToLower(parsedURL.Hostname())
	isLocal := hostname == "localhost" ||
		hostname == "127.0.0.1" ||
		hostname == "::1" ||
		strings.HasPrefix(hostname, "192.168.") ||
		strings.HasPrefix(hostname, "10.") ||
		strings.HasPrefix(hostname, "172.")

	if !isLocal {
		return fmt.Errorf("influxdb.url must use HTTPS for non-local connections (got %s). Using HTTP transmits credentials in plaintext and is a security risk", parsedURL.Scheme)
	}

	return nil
}
