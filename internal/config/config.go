// Copyright 2026 The Cascade Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads runtime configuration for pipeline runs: safety
// limits, initial variables, and trace sink settings. File values
// override defaults, environment variables override the file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/cascadehq/cascade/pkg/errors"
	"github.com/cascadehq/cascade/pkg/pipeline/guard"
)

// Environment variables recognized by FromEnv.
const (
	EnvMaxDepth       = "CASCADE_MAX_DEPTH"
	EnvMaxTotalSteps  = "CASCADE_MAX_TOTAL_STEPS"
	EnvMemoryLimitMB  = "CASCADE_MEMORY_LIMIT_MB"
	EnvTimeoutSeconds = "CASCADE_TIMEOUT_SECONDS"
	EnvTraceStore     = "CASCADE_TRACE_STORE"
)

// TraceConfig configures the optional trace sinks.
type TraceConfig struct {
	// ConsoleExport mirrors completed spans to stdout through the
	// OpenTelemetry console exporter.
	ConsoleExport bool `yaml:"console_export"`

	// StorePath enables the SQLite trace sink when non-empty.
	StorePath string `yaml:"store_path"`
}

// Config is the full runtime configuration.
type Config struct {
	// Limits bound every pipeline run started with this configuration.
	Limits guard.SafetyLimits `yaml:"limits"`

	// Variables seed the global scope before definition variables and
	// run inputs are merged.
	Variables map[string]interface{} `yaml:"variables"`

	// Trace configures span sinks.
	Trace TraceConfig `yaml:"trace"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Limits: guard.DefaultLimits(),
	}
}

// Load reads a YAML configuration file over the defaults and applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &errors.ValidationError{
				Field:      "config",
				Message:    fmt.Sprintf("invalid YAML in %s: %s", path, err.Error()),
				Suggestion: "check the configuration file syntax",
			}
		}
	}

	cfg.FromEnv()
	return cfg, nil
}

// FromEnv applies environment variable overrides in place. Unset or
// malformed values leave the current setting untouched.
func (c *Config) FromEnv() {
	if v, ok := envInt(EnvMaxDepth); ok {
		c.Limits.MaxDepth = v
	}
	if v, ok := envInt(EnvMaxTotalSteps); ok {
		c.Limits.MaxTotalSteps = v
	}
	if v, ok := envInt(EnvMemoryLimitMB); ok {
		c.Limits.MemoryLimitBytes = int64(v) * 1024 * 1024
	}
	if raw := os.Getenv(EnvTimeoutSeconds); raw != "" {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			c.Limits.TimeoutSeconds = f
		}
	}
	if raw := os.Getenv(EnvTraceStore); raw != "" {
		c.Trace.StorePath = raw
	}
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
