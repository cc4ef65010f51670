// Package config provides configuration loading
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment variables that override engine settings,
// e.g. STRATUS_EXECUTION_CONNECTOR_SIZE=64.
const EnvPrefix = "STRATUS"

// LoadEngine loads the engine configuration. An empty path yields the
// defaults; environment variables override values from the file either way.
func LoadEngine(filePath string) (*EngineConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultEngineConfig()
	v.SetDefault("execution.connector_size", def.Execution.ConnectorSize)
	v.SetDefault("execution.parallel_workers", def.Execution.ParallelWorkers)
	v.SetDefault("execution.rows_per_buffer", def.Execution.RowsPerBuffer)
	v.SetDefault("execution.seed", def.Execution.Seed)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.log_encoding", def.Observability.LogEncoding)
	v.SetDefault("observability.metrics_addr", def.Observability.MetricsAddr)
	v.SetDefault("observability.enable_tracing", def.Observability.EnableTracing)
	v.SetDefault("observability.tracing_sample_rate", def.Observability.TracingSampleRate)

	if filePath != "" {
		v.SetConfigFile(filePath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read engine config: %w", err)
		}
	}

	var cfg EngineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode engine config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	return &cfg, nil
}

// LoadPipeline loads a pipeline description from a YAML file
func LoadPipeline(filePath string) (*PipelineSpec, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}
	return ParsePipeline(data)
}

// ParsePipeline parses a pipeline description, substituting ${VAR} and
// ${VAR:-default} references from the environment first.
func ParsePipeline(data []byte) (*PipelineSpec, error) {
	content := substituteEnvVars(string(data))

	var spec PipelineSpec
	if err := yaml.Unmarshal([]byte(content), &spec); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Save writes a pipeline description to a YAML file
func Save(filePath string, spec *PipelineSpec) error {
	data, err := yaml.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write pipeline file: %w", err)
	}

	return nil
}

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-fallback} with
// environment variable values
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		expr := content[start+2 : end]
		name, fallback, hasFallback := strings.Cut(expr, ":-")
		value, ok := os.LookupEnv(name)
		if (!ok || value == "") && hasFallback {
			value = fallback
		}
		b.WriteString(content[:start])
		b.WriteString(value)
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
