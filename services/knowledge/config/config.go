// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the conceptgraph configuration.
//
// Values are resolved in three layers: Default(), then an optional YAML
// file, then environment variables. The result is validated before use.
//
// Environment variables:
//
//   - CONCEPTGRAPH_STORAGE: storage.path
//   - CONCEPTGRAPH_BACKEND: storage.backend (file or badger)
//   - CONCEPTGRAPH_LOG_LEVEL: logging.level
//   - OTEL_TRACES_EXPORTER: telemetry.trace_exporter
//   - OTEL_METRICS_EXPORTER: telemetry.metric_exporter
//   - OTEL_EXPORTER_OTLP_ENDPOINT: telemetry.otlp_endpoint
//   - OTEL_SERVICE_NAME: telemetry.service_name
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MaxFileSize is the largest config file Load accepts (1MB).
const MaxFileSize = 1024 * 1024

var (
	// ErrInvalidConfig indicates a value failed validation.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrConfigTooLarge indicates the config file exceeds MaxFileSize.
	ErrConfigTooLarge = errors.New("config file too large")
)

// Config is the complete conceptgraph configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Query     QueryConfig     `yaml:"query"`
	Linker    LinkerConfig    `yaml:"linker"`
	Watch     WatchConfig     `yaml:"watch"`
}

// StorageConfig selects where snapshots live.
type StorageConfig struct {
	// Path is the snapshot directory.
	Path string `yaml:"path" validate:"required"`

	// Backend is "file" or "badger".
	Backend string `yaml:"backend" validate:"oneof=file badger"`

	// Keep is the number of snapshots retained by cleanup.
	Keep int `yaml:"keep" validate:"gte=0"`
}

// LoggingConfig controls pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`

	// Dir enables a daily JSON log file when set.
	Dir string `yaml:"dir"`
}

// TelemetryConfig controls OpenTelemetry exporters.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" validate:"required"`
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`

	// PrometheusPort is where watch mode serves /metrics. 0 disables it.
	PrometheusPort int `yaml:"prometheus_port" validate:"gte=0,lte=65535"`
}

// QueryConfig holds defaults for path queries.
type QueryConfig struct {
	MaxConcepts int `yaml:"max_concepts" validate:"gte=1"`
	PathCutoff  int `yaml:"path_cutoff" validate:"gte=1"`
	MaxPaths    int `yaml:"max_paths" validate:"gte=1"`
}

// LinkerConfig holds interdisciplinary linker settings.
type LinkerConfig struct {
	CacheSize   int     `yaml:"cache_size" validate:"gte=1"`
	MinStrength float64 `yaml:"min_strength" validate:"gte=0,lte=1"`
}

// WatchConfig controls --watch.
type WatchConfig struct {
	// Debounce collapses bursts of file events into one refresh.
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`

	// MinInterval is the minimum time between two refreshes.
	MinInterval time.Duration `yaml:"min_interval" validate:"gte=0"`
}

// DefaultStoragePath is the snapshot directory used when none is configured.
func DefaultStoragePath() string {
	return filepath.Join(os.TempDir(), "conceptgraph")
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Path:    DefaultStoragePath(),
			Backend: "file",
			Keep:    5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "conceptgraph",
			TraceExporter:  "none",
			MetricExporter: "none",
			OTLPEndpoint:   "localhost:4317",
			OTLPInsecure:   true,
			PrometheusPort: 9090,
		},
		Query: QueryConfig{
			MaxConcepts: 20,
			PathCutoff:  10,
			MaxPaths:    10,
		},
		Linker: LinkerConfig{
			CacheSize:   1000,
			MinStrength: 0.3,
		},
		Watch: WatchConfig{
			Debounce:    500 * time.Millisecond,
			MinInterval: 5 * time.Second,
		},
	}
}

// Load resolves the configuration.
//
// Description:
//
//	Starts from Default, overlays the YAML file at path if path is not
//	empty, applies environment overrides and validates the result. Unknown
//	YAML keys are rejected.
//
// Inputs:
//
//	path - YAML file, or "" for defaults and environment only.
//
// Outputs:
//
//	Config - The resolved configuration.
//	error - Read, parse or validation failure; validation errors wrap
//	        ErrInvalidConfig.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse overlays YAML data onto Default without consulting the
// environment.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field constraint.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) mergeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if len(data) > MaxFileSize {
		return fmt.Errorf("%w: %s", ErrConfigTooLarge, path)
	}
	if err := c.decode(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// applyEnv overlays environment variables. OTEL "console" is accepted as
// an alias for stdout.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	exporter := func(v string) string {
		v = strings.ToLower(v)
		if v == "console" {
			return "stdout"
		}
		return v
	}

	if v, ok := get("CONCEPTGRAPH_STORAGE"); ok {
		c.Storage.Path = v
	}
	if v, ok := get("CONCEPTGRAPH_BACKEND"); ok {
		c.Storage.Backend = strings.ToLower(v)
	}
	if v, ok := get("CONCEPTGRAPH_LOG_LEVEL"); ok {
		c.Logging.Level = strings.ToLower(v)
	}
	if v, ok := get("OTEL_TRACES_EXPORTER"); ok {
		c.Telemetry.TraceExporter = exporter(v)
	}
	if v, ok := get("OTEL_METRICS_EXPORTER"); ok {
		c.Telemetry.MetricExporter = exporter(v)
	}
	if v, ok := get("OTEL_EXPORTER_OTLP_ENDPOINT"); ok {
		c.Telemetry.OTLPEndpoint = v
	}
	if v, ok := get("OTEL_SERVICE_NAME"); ok {
		c.Telemetry.ServiceName = v
	}
}
