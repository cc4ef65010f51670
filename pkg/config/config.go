// Package config provides the configuration system for Stratus.
// EngineConfig holds the engine-wide settings that every execution tree
// uses (connector sizing, worker defaults, seeds, observability), and
// PipelineSpec describes an operator tree in YAML.
//
// The configuration is organized into logical sections:
//   - Execution: connector sizes, default worker counts, rows per buffer
//   - Observability: log level, metrics endpoint, tracing
//
// Example usage:
//
//	cfg := config.DefaultEngineConfig()
//	cfg.Execution.ConnectorSize = 32
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
)

// EngineConfig is the engine-wide configuration shared by all trees.
type EngineConfig struct {
	// Execution settings control buffering and parallelism
	Execution ExecutionConfig `yaml:"execution" json:"execution" mapstructure:"execution"`

	// Observability settings for logging, metrics and tracing
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`
}

// ExecutionConfig contains the settings operators fall back to when a
// pipeline node does not override them.
type ExecutionConfig struct {
	// ConnectorSize is the capacity of each operator's output connector
	ConnectorSize int `yaml:"connector_size" json:"connector_size" mapstructure:"connector_size"`
	// ParallelWorkers is the worker count of parallel operators
	ParallelWorkers int `yaml:"parallel_workers" json:"parallel_workers" mapstructure:"parallel_workers"`
	// RowsPerBuffer is the number of rows sources pack into one buffer
	RowsPerBuffer int `yaml:"rows_per_buffer" json:"rows_per_buffer" mapstructure:"rows_per_buffer"`
	// Seed seeds shuffles and random samplers; 0 picks a seed from the clock
	Seed int64 `yaml:"seed" json:"seed" mapstructure:"seed"`
}

// ObservabilityConfig contains monitoring and logging settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	// LogEncoding selects json or console output
	LogEncoding string `yaml:"log_encoding" json:"log_encoding" mapstructure:"log_encoding"`
	// MetricsAddr is the listen address of the Prometheus endpoint; empty disables it
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr" mapstructure:"metrics_addr"`
	// EnableTracing exports preparation spans to stdout
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing" mapstructure:"enable_tracing"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate" mapstructure:"tracing_sample_rate"`
}

// DefaultEngineConfig returns an EngineConfig with production defaults.
// The parallel worker count follows the number of logical CPUs.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Execution: ExecutionConfig{
			ConnectorSize:   16,
			ParallelWorkers: defaultWorkers(),
			RowsPerBuffer:   64,
			Seed:            0,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogEncoding:       "json",
			MetricsAddr:       "",
			EnableTracing:     false,
			TracingSampleRate: 1.0,
		},
	}
}

// defaultWorkers returns the logical CPU count, capped to keep small hosts
// from oversubscribing.
func defaultWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}
	if n > 8 {
		n = 8
	}
	return n
}

// Validate validates the configuration for correctness.
func (c *EngineConfig) Validate() error {
	if c.Execution.ConnectorSize <= 0 {
		return fmt.Errorf("connector_size must be positive")
	}
	if c.Execution.ParallelWorkers <= 0 {
		return fmt.Errorf("parallel_workers must be positive")
	}
	if c.Execution.RowsPerBuffer <= 0 {
		return fmt.Errorf("rows_per_buffer must be positive")
	}
	if r := c.Observability.TracingSampleRate; r < 0 || r > 1 {
		return fmt.Errorf("tracing_sample_rate must be within [0, 1]")
	}
	switch c.Observability.LogEncoding {
	case "", "json", "console":
	default:
		return fmt.Errorf("log_encoding must be json or console")
	}
	return nil
}
