// Package config loads the configuration options spec §6 enumerates:
// model selection, recursion/iteration caps, LLM transport timing and
// retry policy, context/output sizing, and capability-surface toggles.
// Sources layer in precedence order: built-in defaults, a YAML file,
// then environment variables, matching the teacher's config-loading
// shape (gopkg.in/yaml.v3, an RLM_-prefixed env override per field).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every spec §6 "Configuration (enumerated options)" value.
type Config struct {
	Model          string `yaml:"model"`
	RecursiveModel string `yaml:"recursive_model"`

	MaxDepth      int `yaml:"max_depth"`
	MaxIterations int `yaml:"max_iterations"`

	LLMTimeoutS    float64 `yaml:"llm_timeout_s"`
	LLMMaxTokens   int     `yaml:"llm_max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	Retries        int     `yaml:"retries"`
	RetryBackoffS  float64 `yaml:"retry_backoff_s"`

	MaxContextChars    int  `yaml:"max_context_chars"`
	MaxOutputChars     int  `yaml:"max_output_chars"`
	ZlibMaxOutputBytes int  `yaml:"zlib_max_output_bytes"`
	StrictCode         bool `yaml:"strict_code"`
	InjectB64Zlib      bool `yaml:"inject_b64zlib"`

	// ProviderBaseURL/ProviderAPIKey configure the reference
	// transport.HTTPClient; not part of spec §6's enumerated options
	// (transport vendor wiring is an external collaborator's concern
	// per spec §1) but needed to actually run one.
	ProviderBaseURL string `yaml:"provider_base_url"`
	ProviderAPIKey  string `yaml:"provider_api_key"`

	// CheckpointDSN, when non-empty, enables durable checkpointing via
	// checkpoint.Open. Empty disables it.
	CheckpointDSN string `yaml:"checkpoint_dsn"`

	// TranscriptPath is where the JSONL transcript is written.
	TranscriptPath string `yaml:"transcript_path"`
}

// Default returns the built-in defaults: max_depth 2 (a root task may
// recurse exactly one level unless raised), max_iterations 10, an
// 8,000-char REPL output cap, a 1 MiB zlib output cap, strict-code
// prompting on, and b64/zlib exposed.
func Default() Config {
	return Config{
		Model:          "anthropic/claude-sonnet-4.5",
		RecursiveModel: "anthropic/claude-haiku-4.5",

		MaxDepth:      2,
		MaxIterations: 10,

		LLMTimeoutS:   30,
		LLMMaxTokens:  4096,
		Temperature:   0.2,
		Retries:       3,
		RetryBackoffS: 0.5,

		MaxContextChars:    200_000,
		MaxOutputChars:     8_000,
		ZlibMaxOutputBytes: 1 << 20,
		StrictCode:         true,
		InjectB64Zlib:      true,

		TranscriptPath: "transcript.jsonl",
	}
}

// Load builds a Config from defaults, optionally overlaid by a YAML
// file at path (skipped if path is empty or the file does not exist),
// then by any RLM_-prefixed environment variables that are set.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config file %q: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides lets any option be set without a config file,
// useful for CI and the `rlm run` one-shot CLI form.
func applyEnvOverrides(cfg *Config) {
	str := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	intVal := func(env string, dst *int) {
		if v := os.Getenv(env); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	floatVal := func(env string, dst *float64) {
		if v := os.Getenv(env); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	boolVal := func(env string, dst *bool) {
		if v := os.Getenv(env); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("RLM_MODEL", &cfg.Model)
	str("RLM_RECURSIVE_MODEL", &cfg.RecursiveModel)
	intVal("RLM_MAX_DEPTH", &cfg.MaxDepth)
	intVal("RLM_MAX_ITERATIONS", &cfg.MaxIterations)
	floatVal("RLM_LLM_TIMEOUT_S", &cfg.LLMTimeoutS)
	intVal("RLM_LLM_MAX_TOKENS", &cfg.LLMMaxTokens)
	floatVal("RLM_TEMPERATURE", &cfg.Temperature)
	intVal("RLM_RETRIES", &cfg.Retries)
	floatVal("RLM_RETRY_BACKOFF_S", &cfg.RetryBackoffS)
	intVal("RLM_MAX_CONTEXT_CHARS", &cfg.MaxContextChars)
	intVal("RLM_MAX_OUTPUT_CHARS", &cfg.MaxOutputChars)
	intVal("RLM_ZLIB_MAX_OUTPUT_BYTES", &cfg.ZlibMaxOutputBytes)
	boolVal("RLM_STRICT_CODE", &cfg.StrictCode)
	boolVal("RLM_INJECT_B64ZLIB", &cfg.InjectB64Zlib)
	str("RLM_PROVIDER_BASE_URL", &cfg.ProviderBaseURL)
	str("RLM_PROVIDER_API_KEY", &cfg.ProviderAPIKey)
	str("RLM_CHECKPOINT_DSN", &cfg.CheckpointDSN)
	str("RLM_TRANSCRIPT_PATH", &cfg.TranscriptPath)
}

// Validate enforces the invariants spec §6 states explicitly
// (max_depth ≥ 1, max_iterations ≥ 1).
func (c Config) Validate() error {
	if c.MaxDepth < 1 {
		return fmt.Errorf("max_depth must be >= 1, got %d", c.MaxDepth)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be >= 1, got %d", c.MaxIterations)
	}
	if c.Model == "" {
		return fmt.Errorf("model must be set")
	}
	return nil
}

// LLMTimeout returns LLMTimeoutS as a time.Duration.
func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutS * float64(time.Second))
}

// RetryBackoff returns RetryBackoffS as a time.Duration.
func (c Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffS * float64(time.Second))
}
