// Package config resolves the process configuration once, from defaults,
// an optional YAML file and environment overrides, in that order. The
// resulting Config is passed around by value and never mutated after
// Load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okhara/stagecraft/checkpoint"
)

// Config is the full resolved configuration.
type Config struct {
	Ollama     OllamaConfig           `yaml:"ollama"`
	Models     ModelsConfig           `yaml:"models"`
	Limits     LimitsConfig           `yaml:"limits"`
	Search     SearchConfig           `yaml:"search"`
	Checkpoint checkpoint.StoreConfig `yaml:"checkpoint"`
	Log        LogConfig              `yaml:"log"`
	Telemetry  TelemetryConfig        `yaml:"telemetry"`

	// Workspace receives generated scripts and final artifacts.
	Workspace string `yaml:"workspace"`
}

// OllamaConfig locates the completion server.
type OllamaConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ModelsConfig assigns a model to each stage role.
type ModelsConfig struct {
	Coder      string `yaml:"coder"`
	Tester     string `yaml:"tester"`
	Verifier   string `yaml:"verifier"` // vision-capable
	Theorist   string `yaml:"theorist"`
	Formalizer string `yaml:"formalizer"`
	Arbiter    string `yaml:"arbiter"`
	Planner    string `yaml:"planner"`
	Researcher string `yaml:"researcher"`
	Writer     string `yaml:"writer"`
	Skeptic    string `yaml:"skeptic"`
	Refiner    string `yaml:"refiner"`
	Editor     string `yaml:"editor"`
}

// LimitsConfig holds the loop bounds and sizing caps.
type LimitsConfig struct {
	CodingRepairs   int           `yaml:"coding_repairs"`
	MathRepairs     int           `yaml:"math_repairs"`
	QuorumRounds    int           `yaml:"quorum_rounds"`
	SectionLoops    int           `yaml:"section_loops"`
	SearchResults   int           `yaml:"search_results"`
	FetchMaxChars   int           `yaml:"fetch_max_chars"`
	SandboxTimeout  time.Duration `yaml:"sandbox_timeout"`
	SearchPerMinute int           `yaml:"search_per_minute"`
}

// SearchConfig carries provider credentials. Providers without
// credentials are still constructed and simply fail over in the chain.
type SearchConfig struct {
	BraveAPIKey    string `yaml:"brave_api_key"`
	GoogleAPIKey   string `yaml:"google_api_key"`
	GoogleEngineID string `yaml:"google_engine_id"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// TelemetryConfig controls the otel exporter.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Timeout: 5 * time.Minute,
		},
		Models: ModelsConfig{
			Coder:      "qwen3-coder:30b",
			Tester:     "qwen3-coder:30b",
			Verifier:   "qwen2.5vl:7b",
			Theorist:   "qwen3:14b",
			Formalizer: "qwen3-coder:30b",
			Arbiter:    "qwen3:14b",
			Planner:    "qwen3:14b",
			Researcher: "qwen3:14b",
			Writer:     "qwen3:14b",
			Skeptic:    "qwen3:14b",
			Refiner:    "qwen3:14b",
			Editor:     "qwen3:14b",
		},
		Limits: LimitsConfig{
			CodingRepairs:   10,
			MathRepairs:     6,
			QuorumRounds:    2,
			SectionLoops:    2,
			SearchResults:   5,
			FetchMaxChars:   10000,
			SandboxTimeout:  2 * time.Minute,
			SearchPerMinute: 30,
		},
		Checkpoint: checkpoint.DefaultStoreConfig(),
		Log: LogConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Endpoint: "localhost:4317",
		},
		Workspace: "workspace",
	}
}

// Load resolves the configuration: defaults, then the YAML file at path
// (skipped when path is ""), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("STAGECRAFT_OLLAMA_URL"); v != "" {
		cfg.Ollama.BaseURL = v
	}
	if v := os.Getenv("BRAVE_API_KEY"); v != "" {
		cfg.Search.BraveAPIKey = v
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		cfg.Search.GoogleAPIKey = v
	}
	if v := os.Getenv("GOOGLE_CSE_ID"); v != "" {
		cfg.Search.GoogleEngineID = v
	}
	if v := os.Getenv("STAGECRAFT_CHECKPOINT_TYPE"); v != "" {
		cfg.Checkpoint.Type = checkpoint.StoreType(v)
	}
	if v := os.Getenv("STAGECRAFT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("STAGECRAFT_WORKSPACE"); v != "" {
		cfg.Workspace = v
	}
	if v := os.Getenv("STAGECRAFT_TELEMETRY"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Telemetry.Enabled = enabled
		}
	}
}
