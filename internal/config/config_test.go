package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "0.0.0.0:8730", cfg.Listen)
	assert.Equal(t, "/var/lib/branchd", cfg.DataDir)
	assert.Equal(t, "json", cfg.LogFormat)

	assert.True(t, cfg.AutoMerge.Enabled)
	assert.True(t, cfg.AutoMerge.RequireValidation)
	assert.True(t, cfg.AutoMerge.RequireNoConflicts)

	assert.True(t, cfg.Shadow.AutoSwitch)
	assert.Equal(t, []string{"RECORD_COUNT_VALIDATION", "SIZE_VALIDATION"}, cfg.Shadow.ValidationChecks)
	assert.Equal(t, 30, cfg.Shadow.SwitchTimeoutSeconds)

	assert.Equal(t, 0.8, cfg.Risk.AutoMergeConfidenceThreshold)
	assert.Equal(t, 0, cfg.Risk.MaxCriticalConflictsForAuto)
	assert.Equal(t, 5, cfg.Risk.MaxHighConflictsForAuto)
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/branchd/config.toml")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "branchd-config-test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	path := tmpDir + "/config.toml"
	content := `
listen = "127.0.0.1:9000"
log_level = "debug"

[automerge]
enabled = false

[shadow]
switch_timeout_seconds = 10

[nats]
url = "nats://localhost:4222"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.AutoMerge.Enabled)
	assert.Equal(t, 10, cfg.Shadow.SwitchTimeoutSeconds)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)

	// Untouched sections keep their defaults.
	assert.Equal(t, "/var/lib/branchd", cfg.DataDir)
	assert.Equal(t, "indexing.events.>", cfg.NATS.Subject)
}

func TestLoad_InvalidTOML(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "branchd-config-test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	path := tmpDir + "/config.toml"
	require.NoError(t, os.WriteFile(path, []byte("listen = [broken"), 0644))

	_, err = Load(path)
	assert.Error(t, err)
}

func TestSaveAndLoad_Roundtrip(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "branchd-config-test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	cfg := Default()
	cfg.Listen = "127.0.0.1:8111"
	cfg.AuthToken = "secret"
	cfg.Risk.CriticalServices = []string{"checkout"}

	path := tmpDir + "/config.toml"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestDBPaths(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/data"

	assert.Equal(t, "/data/branchd.db", cfg.BranchDBPath())
	assert.Equal(t, "/data/audit.db", cfg.AuditDBPath())
}
