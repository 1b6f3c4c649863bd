// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sosodev/duration"
)

// Sensor source kinds accepted by SENSOR_SOURCE.
const (
	SourceMock    = "mock"
	SourceMPU9250 = "mpu9250"
	SourceSerial  = "serial"
)

// Config holds all application configuration values.
type Config struct {
	// Classifier endpoint
	IngestURL            string
	WindowDuration       time.Duration
	RequestTimeoutMargin time.Duration
	MaxInFlight          int // 0 = unbounded

	// Sampling
	SampleRateHz float64
	SensorSource string // "mock", "mpu9250" or "serial"
	AutoStart    bool

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string // empty = kernel-driven chip select
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange        byte
	AccelCalibrationFile string

	// Serial accelerometer
	SerialPort     string
	SerialBaudRate int

	// MQTT
	MQTTBroker           string
	MQTTClientIDRecorder string
	MQTTClientIDConsole  string

	// Topics
	TopicStatus  string
	TopicCommand string

	// Web Server
	WebServerPort int
	WebRoot       string
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal() and Get().
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config populated with the values used when a key is absent.
func Default() *Config {
	return &Config{
		WindowDuration:       5 * time.Second,
		RequestTimeoutMargin: time.Second,
		SampleRateHz:         20,
		SensorSource:         SourceMock,
		IMUSPIDevice:         "/dev/spidev0.0",
		SerialBaudRate:       115200,
		MQTTClientIDRecorder: "rush-recorder",
		MQTTClientIDConsole:  "rush-console-subscriber",
		TopicStatus:          "rush/status",
		TopicCommand:         "rush/command",
		WebServerPort:        8080,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines from r on top of Default().
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Classifier endpoint
	case "INGEST_URL":
		c.IngestURL = value
	case "WINDOW_DURATION":
		d, err := parseDuration(key, value)
		if err != nil {
			return err
		}
		c.WindowDuration = d
	case "REQUEST_TIMEOUT_MARGIN":
		d, err := parseDuration(key, value)
		if err != nil {
			return err
		}
		c.RequestTimeoutMargin = d
	case "MAX_IN_FLIGHT":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MAX_IN_FLIGHT %q: %w", value, err)
		}
		if n < 0 {
			return fmt.Errorf("MAX_IN_FLIGHT must be >= 0, got %d", n)
		}
		c.MaxInFlight = n

	// Sampling
	case "SAMPLE_RATE_HZ":
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid SAMPLE_RATE_HZ %q: %w", value, err)
		}
		if rate <= 0 || rate > 1000 {
			return fmt.Errorf("SAMPLE_RATE_HZ must be in (0, 1000], got %g", rate)
		}
		c.SampleRateHz = rate
	case "SENSOR_SOURCE":
		switch value {
		case SourceMock, SourceMPU9250, SourceSerial:
			c.SensorSource = value
		default:
			return fmt.Errorf("SENSOR_SOURCE must be one of mock, mpu9250, serial, got %q", value)
		}
	case "AUTO_START":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid AUTO_START %q: %w", value, err)
		}
		c.AutoStart = b

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_ACCEL_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)
	case "ACCEL_CALIBRATION_FILE":
		c.AccelCalibrationFile = value

	// Serial accelerometer
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD_RATE %q: %w", value, err)
		}
		c.SerialBaudRate = rate

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_RECORDER":
		c.MQTTClientIDRecorder = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value

	// Topics
	case "TOPIC_STATUS":
		c.TopicStatus = value
	case "TOPIC_COMMAND":
		c.TopicCommand = value

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port
	case "WEB_ROOT":
		c.WebRoot = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// parseDuration accepts ISO 8601 durations ("PT5S").
func parseDuration(key, value string) (time.Duration, error) {
	d, err := duration.Parse(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	td := d.ToTimeDuration()
	if td <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, value)
	}
	return td, nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.IngestURL == "" {
		return fmt.Errorf("INGEST_URL is required")
	}
	if u, err := url.Parse(c.IngestURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("INGEST_URL must be an absolute URL, got %q", c.IngestURL)
	}
	if c.SensorSource == SourceSerial && c.SerialPort == "" {
		return fmt.Errorf("SERIAL_PORT is required when SENSOR_SOURCE=serial")
	}
	if c.SensorSource == SourceMPU9250 && c.IMUSPIDevice == "" {
		return fmt.Errorf("IMU_SPI_DEVICE is required when SENSOR_SOURCE=mpu9250")
	}
	if c.MQTTBroker != "" && c.TopicStatus == "" {
		return fmt.Errorf("TOPIC_STATUS is required when MQTT_BROKER is set")
	}
	return nil
}

// RequestTimeout is the per-window transmission timeout: one window plus the margin,
// so a slow classifier is not cut off while a hung connection still ends.
func (c *Config) RequestTimeout() time.Duration {
	return c.WindowDuration + c.RequestTimeoutMargin
}

// ExpectedSamplesPerWindow is used as a capacity hint for window buffers.
func (c *Config) ExpectedSamplesPerWindow() int {
	return int(c.SampleRateHz*c.WindowDuration.Seconds()) + 1
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
