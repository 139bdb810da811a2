// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8085, cfg.Port)
	assert.Equal(t, 30, cfg.SynthPerMinute)
	assert.Equal(t, 5, cfg.MaxSynthDepth)
	assert.Equal(t, 60*time.Second, cfg.NodeTimeout)
	assert.False(t, cfg.ModelEnabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RELAY_PORT", "9090")
	t.Setenv("RELAY_SYNTH_API_KEY", "sk-test")
	t.Setenv("RELAY_NODE_TIMEOUT", "250ms")
	t.Setenv("RELAY_MAX_SYNTH_DEPTH", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.NodeTimeout)
	assert.Equal(t, 2, cfg.MaxSynthDepth)
	assert.True(t, cfg.ModelEnabled())
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 7001\nsynth_model: local-llama\n"), 0o600))
	t.Setenv("RELAY_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Port)
	assert.Equal(t, "local-llama", cfg.SynthModel)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	t.Setenv("RELAY_PORT", "70000")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("RELAY_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	require.Error(t, err)
}

func TestMalformedEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("RELAY_PORT", "not-a-number")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8085, cfg.Port)
}
