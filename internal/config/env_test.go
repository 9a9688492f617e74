// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseHelpers(t *testing.T) {
	t.Setenv("VT_STR", "value")
	t.Setenv("VT_EMPTY", "")
	t.Setenv("VT_INT", "42")
	t.Setenv("VT_BAD_INT", "4x2")
	t.Setenv("VT_DUR", "3s")
	t.Setenv("VT_BOOL", "YES")
	t.Setenv("VT_BAD_BOOL", "maybe")
	t.Setenv("VT_FLOAT", "0.5")

	assert.Equal(t, "value", ParseString("VT_STR", "d"))
	assert.Equal(t, "d", ParseString("VT_EMPTY", "d"))
	assert.Equal(t, "d", ParseString("VT_UNSET", "d"))
	assert.Equal(t, 42, ParseInt("VT_INT", 1))
	assert.Equal(t, 1, ParseInt("VT_BAD_INT", 1))
	assert.Equal(t, 3*time.Second, ParseDuration("VT_DUR", time.Second))
	assert.True(t, ParseBool("VT_BOOL", false))
	assert.True(t, ParseBool("VT_BAD_BOOL", true))
	assert.InDelta(t, 0.5, ParseFloat("VT_FLOAT", 0), 1e-9)
}

func TestIsSensitive(t *testing.T) {
	assert.True(t, isSensitive(EnvAPIKey))
	assert.True(t, isSensitive(EnvRedisPassword))
	assert.False(t, isSensitive(EnvIngestPort))
}

func TestRedact(t *testing.T) {
	got := redact(`-		APIKey: "old",` + "\n" + `+		APIKey: "new",`)
	assert.NotContains(t, got, "old")
	assert.NotContains(t, got, "new")
}
