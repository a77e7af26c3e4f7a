package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rand/fathom/internal/router"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fathom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	assert.Equal(t, router.TierBalanced, cfg.Tier())
	assert.True(t, cfg.Recursion.Enabled)
	assert.Equal(t, 2, cfg.Recursion.MaxDepth)
	assert.Equal(t, int64(-1), cfg.Budget.Tokens)
	assert.Equal(t, 256, cfg.Memory.CacheCapacity)
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := writeConfig(t, `
model:
  tier: powerful
  effort: high
budget:
  tokens: 50000
recursion:
  max_depth: 3
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, router.TierPowerful, cfg.Tier())
	assert.Equal(t, "high", cfg.Model.Effort)
	assert.Equal(t, int64(50000), cfg.Budget.Tokens)
	assert.Equal(t, 3, cfg.Recursion.MaxDepth)
	// Untouched sections keep defaults.
	assert.Equal(t, 60*time.Second, cfg.Model.CallTimeout)
	assert.Equal(t, 4, cfg.Recursion.MaxParallel)
}

func TestLoadRejectsEffortTemperatureConflict(t *testing.T) {
	path := writeConfig(t, `
model:
  effort: low
  temperature: 0.7
`)

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestLoadRejectsUnknownEffort(t *testing.T) {
	path := writeConfig(t, "model:\n  effort: maximal\n")

	_, err := Load(path)

	require.Error(t, err)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "model: [broken\n")

	_, err := Load(path)

	require.Error(t, err)
}

func TestValidateRanges(t *testing.T) {
	cfg := Default()
	temp := 3.5
	cfg.Model.Temperature = &temp
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Recursion.MaxParallel = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())

	assert.NoError(t, Default().Validate())
}
