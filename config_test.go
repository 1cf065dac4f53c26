package rowfill

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")

	cfg, created, err := LoadConfig(p)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, PlaceholderAPIKey, cfg.APIKey)
	assert.Equal(t, "kimi-k2-0905-preview", cfg.Model)
	assert.Equal(t, 3, cfg.Workers)

	// The written file round-trips to the same defaults.
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	var onDisk Config
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, PlaceholderAPIKey, onDisk.APIKey)

	_, created, err = LoadConfig(p)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(`{
		"api_key": "sk-real",
		"model_name": "gpt-4o",
		"temperature": 0.1,
		"workers": 8,
		"task_delay_ms": 250
	}`), 0644))

	cfg, created, err := LoadConfig(p)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "sk-real", cfg.APIKey)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.InDelta(t, 0.1, cfg.Temperature, 1e-9)
	assert.Equal(t, 8, cfg.Workers)
	// Fields the file omits keep their defaults.
	assert.Equal(t, 2000, cfg.MaxTokens)
	assert.Equal(t, "https://api.moonshot.cn/v1", cfg.APIURL)
}

func TestLoadConfigEnvWins(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"api_key":"from-file","model_name":"file-model"}`), 0644))

	t.Setenv("ROWFILL_API_KEY", "from-env")
	t.Setenv("ROWFILL_MODEL", "env-model")
	t.Setenv("ROWFILL_WORKERS", "5")

	cfg, _, err := LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, "env-model", cfg.Model)
	assert.Equal(t, 5, cfg.Workers)
}

func TestLoadConfigMalformed(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte("{not json"), 0644))

	_, _, err := LoadConfig(p)
	assert.Error(t, err)
}

func TestConfigBounds(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(`{
		"workers": 0,
		"max_retries": -1,
		"snapshot_every": 0,
		"task_delay_ms": -50
	}`), 0644))

	cfg, _, err := LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, 10, cfg.SnapshotEvery)
	assert.Equal(t, 0, cfg.TaskDelayMillis)
}

func TestConfigDurations(t *testing.T) {
	cfg := &Config{TimeoutSeconds: 30, RetryDelaySeconds: 1.5, TaskDelayMillis: 100}
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.Equal(t, 1500*time.Millisecond, cfg.RetryDelay())
	assert.Equal(t, 100*time.Millisecond, cfg.TaskDelay())
}
