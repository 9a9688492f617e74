// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ManuGH/vitalsd/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReloadKeepsOldConfigOnError(t *testing.T) {
	dir := t.TempDir()
	yml := writeFile(t, dir, "c.yaml", "verbosity: 1\n")
	loader := NewLoader(yml, "").WithDotEnv("")
	cfg, err := loader.Load()
	require.NoError(t, err)
	h := NewConfigHolder(cfg, loader)

	require.NoError(t, os.WriteFile(yml, []byte("recordings:\n  fps: 0\n"), 0o600))
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, 30, h.Get().Recordings.FPS)
}

func TestReloadNotifiesListeners(t *testing.T) {
	defer log.SetLevel("info")
	dir := t.TempDir()
	yml := writeFile(t, dir, "c.yaml", "verbosity: 1\n")
	loader := NewLoader(yml, "").WithDotEnv("")
	cfg, err := loader.Load()
	require.NoError(t, err)
	h := NewConfigHolder(cfg, loader)

	var gotOld, gotNew AppConfig
	h.OnReload(func(old, updated AppConfig) { gotOld, gotNew = old, updated })

	require.NoError(t, os.WriteFile(yml, []byte("verbosity: 2\ningest:\n  port: 9100\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))
	assert.Equal(t, 1, gotOld.Verbosity)
	assert.Equal(t, 2, gotNew.Verbosity)
	assert.Equal(t, 9100, h.Get().Ingest.Port)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	defer log.SetLevel("info")
	dir := t.TempDir()
	yml := writeFile(t, dir, "c.yaml", "logLevel: info\n")
	loader := NewLoader(yml, "").WithDotEnv("")
	cfg, err := loader.Load()
	require.NoError(t, err)
	h := NewConfigHolder(cfg, loader)

	reloaded := make(chan AppConfig, 4)
	h.OnReload(func(_, updated AppConfig) { reloaded <- updated })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))
	defer h.Stop()

	require.NoError(t, os.WriteFile(yml, []byte("logLevel: debug\n"), 0o600))
	select {
	case got := <-reloaded:
		assert.Equal(t, "debug", got.LogLevel)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded after write")
	}
	assert.Equal(t, "debug", h.Get().LogLevel)
}

func TestWatcherDisabledWithoutFile(t *testing.T) {
	h := NewConfigHolder(Defaults(), NewLoader("", "").WithDotEnv(""))
	require.NoError(t, h.StartWatcher(context.Background()))
	h.Stop()
}
