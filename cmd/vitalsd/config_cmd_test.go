// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vitalsd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConfigValidate(t *testing.T) {
	path := writeConfig(t, "ingest:\n  port: 9101\nrecordings:\n  fps: 15\n")

	var out, errOut bytes.Buffer
	code := configCLI([]string{"validate", "-f", path}, &out, &errOut)
	assert.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "is valid")
}

func TestConfigValidateRejectsUnknownField(t *testing.T) {
	path := writeConfig(t, "ingest:\n  portt: 9101\n")

	var out, errOut bytes.Buffer
	code := configCLI([]string{"validate", "--file", path}, &out, &errOut)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "Configuration error")
}

func TestConfigDumpRedactsSecrets(t *testing.T) {
	path := writeConfig(t, "engine:\n  apiKey: super-secret\nbroadcast:\n  redis:\n    addr: localhost:6379\n    password: hunter2\n")

	var out, errOut bytes.Buffer
	code := configCLI([]string{"dump", "-f", path, "--format", "json"}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.NotContains(t, out.String(), "super-secret")
	assert.NotContains(t, out.String(), "hunter2")
	assert.Contains(t, out.String(), redacted)
}

func TestConfigUnknownSubcommand(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 2, configCLI([]string{"frobnicate"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "Usage:")
}

func TestConfigDumpUnsupportedFormat(t *testing.T) {
	var out, errOut bytes.Buffer
	code := configCLI([]string{"dump", "--format", "toml"}, &out, &errOut)
	assert.Equal(t, 2, code)
}
