package rowfill

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// PlaceholderAPIKey is what the generated default config ships with; the
// CLI refuses to run until it is replaced.
const PlaceholderAPIKey = "sk-your-api-key-here"

// Config drives a whole run. Values come from three layers: built-in
// defaults, the JSON config file, and ROWFILL_* environment variables, in
// that order of precedence (environment wins).
type Config struct {
	APIURL  string `json:"api_url" env:"ROWFILL_API_URL"`
	APIKey  string `json:"api_key" env:"ROWFILL_API_KEY"`
	APIType string `json:"api_type" env:"ROWFILL_API_TYPE"` // openai | anthropic | google
	Model   string `json:"model_name" env:"ROWFILL_MODEL"`

	Temperature       float64 `json:"temperature"`
	MaxTokens         int     `json:"max_tokens"`
	TimeoutSeconds    int     `json:"timeout"`
	MaxRetries        int     `json:"max_retries"`
	RetryDelaySeconds float64 `json:"retry_delay"`

	InputFile      string `json:"input_file" env:"ROWFILL_INPUT_FILE"`
	PromptFile     string `json:"prompt_file" env:"ROWFILL_PROMPT_FILE"`
	PromptColumn   string `json:"prompt_column"`
	PromptTemplate string `json:"prompt_template"`

	ImageColumn   string `json:"image_column"`
	ImageBasePath string `json:"image_base_path"`
	ImageDetail   string `json:"image_detail"`

	Workers         int `json:"workers" env:"ROWFILL_WORKERS"`
	TaskDelayMillis int `json:"task_delay_ms"`
	SnapshotEvery   int `json:"snapshot_every"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() *Config {
	return &Config{
		APIURL:            "https://api.moonshot.cn/v1",
		APIKey:            PlaceholderAPIKey,
		APIType:           "openai",
		Model:             "kimi-k2-0905-preview",
		Temperature:       0.6,
		MaxTokens:         2000,
		TimeoutSeconds:    30,
		MaxRetries:        3,
		RetryDelaySeconds: 1,
		InputFile:         "sample_data.csv",
		PromptFile:        "system_prompt.md",
		PromptColumn:      "user_prompt",
		ImageDetail:       "auto",
		Workers:           3,
		TaskDelayMillis:   100,
		SnapshotEvery:     10,
	}
}

// LoadConfig reads the config file at path, layering it over the defaults
// and the environment over both. When no file exists a default one is
// written and created=true is returned so the caller can tell the user to
// fill in their API key before anything is billed.
func LoadConfig(path string) (cfg *Config, created bool, err error) {
	cfg = DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		out, merr := json.MarshalIndent(cfg, "", "  ")
		if merr != nil {
			return nil, false, merr
		}
		if werr := os.WriteFile(path, append(out, '\n'), 0644); werr != nil {
			return nil, false, fmt.Errorf("write default config: %w", werr)
		}
		created = true
	case err != nil:
		return nil, false, fmt.Errorf("read config %s: %w", path, err)
	default:
		if uerr := json.Unmarshal(data, cfg); uerr != nil {
			return nil, false, fmt.Errorf("parse config %s: %w", path, uerr)
		}
	}

	if perr := env.Parse(cfg); perr != nil {
		return nil, false, fmt.Errorf("parse environment: %w", perr)
	}

	cfg.applyBounds()
	return cfg, created, nil
}

// applyBounds clamps nonsensical values back to usable ones.
func (c *Config) applyBounds() {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = 1
	}
	if c.SnapshotEvery < 1 {
		c.SnapshotEvery = 10
	}
	if c.TaskDelayMillis < 0 {
		c.TaskDelayMillis = 0
	}
}

// Timeout is the per-call deadline.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryDelay is the base pause between retry attempts; the actual pause
// grows linearly with the attempt number.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds * float64(time.Second))
}

// TaskDelay is the fixed pre-call pacing applied to every task.
func (c *Config) TaskDelay() time.Duration {
	return time.Duration(c.TaskDelayMillis) * time.Millisecond
}
