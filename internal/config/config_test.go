// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsWithEnvCamera(t *testing.T) {
	t.Setenv("REOVOD_CAMERA_URL", "http://192.168.1.10")
	t.Setenv("REOVOD_CAMERA_PASSWORD", "secret")

	cfg, err := NewLoader("", "v1-test").Load()
	require.NoError(t, err)

	assert.Equal(t, ":8787", cfg.Listen)
	assert.Equal(t, 5*time.Minute, cfg.RefreshInterval)
	require.Len(t, cfg.Cameras, 1)
	assert.Equal(t, "camera", cfg.Cameras[0].Name)
	assert.Equal(t, "admin", cfg.Cameras[0].Username)
	assert.Equal(t, "main", cfg.Cameras[0].Stream)
	assert.Equal(t, 15*time.Second, cfg.Cameras[0].Timeout)
}

func TestLoadFileConfig(t *testing.T) {
	path := writeConfig(t, `
dataDir: /tmp/reovod-test
logLevel: debug
api:
  listen: ":9090"
  rateLimitRpm: 120
cache:
  snapshotTtl: 10s
refresh:
  interval: 1m
  backfillMonths: 6
cameras:
  - name: front
    baseUrl: http://10.0.0.5/
    username: admin
    password: pw
    channels: [0, 1]
    timeout: 5s
    stream: sub
`)

	cfg, err := NewLoader(path, "v1-test").Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/reovod-test", cfg.DataDir)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, 120, cfg.APIRateRPM)
	assert.Equal(t, 10*time.Second, cfg.SnapshotTTL)
	assert.Equal(t, time.Minute, cfg.RefreshInterval)
	assert.Equal(t, 6, cfg.BackfillMonths)
	require.Len(t, cfg.Cameras, 1)
	cam := cfg.Cameras[0]
	assert.Equal(t, "front", cam.Name)
	assert.Equal(t, "http://10.0.0.5", cam.BaseURL, "trailing slash is stripped")
	assert.Equal(t, []int{0, 1}, cam.Channels)
	assert.Equal(t, 5*time.Second, cam.Timeout)
	assert.Equal(t, "sub", cam.Stream)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
api:
  listen: ":9090"
cameras:
  - name: front
    baseUrl: http://10.0.0.5
    username: admin
`)
	t.Setenv("REOVOD_LISTEN", ":7070")
	t.Setenv("REOVOD_REFRESH_INTERVAL", "30s")

	cfg, err := NewLoader(path, "v1-test").Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
camerass:
  - name: typo
`)
	_, err := NewLoader(path, "v1-test").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := AppConfig{
		DataDir:         "",
		RefreshInterval: time.Minute,
		BackfillMonths:  1,
		Cameras: []Camera{
			{Name: "", BaseURL: "ftp://x", Username: "", Stream: "main"},
			{Name: "a", BaseURL: "http://x", Username: "u", Stream: "weird"},
		},
	}
	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "name is required")
	assert.Contains(t, msg, "baseUrl must be http(s)")
	assert.Contains(t, msg, "username is required")
	assert.Contains(t, msg, "stream must be main, sub or ext")
	assert.Contains(t, msg, "dataDir is required")
}

func TestMissingFileIsNotAnError(t *testing.T) {
	t.Setenv("REOVOD_CAMERA_URL", "http://192.168.1.10")
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope.yaml"), "v1-test").Load()
	require.NoError(t, err)
}

func TestStringMasksCredentials(t *testing.T) {
	cfg := AppConfig{
		Listen:  ":8787",
		DataDir: "/data",
		Cameras: []Camera{{Name: "front", BaseURL: "http://admin:pw@10.0.0.5"}},
	}
	assert.NotContains(t, cfg.String(), "pw@")
}
