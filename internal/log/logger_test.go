// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestConfigureWritesServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "vitalsd-test", Version: "v9"})
	t.Cleanup(func() { Configure(Config{}) })

	logger := WithComponent("recorder")
	logger.Info().Str(FieldSessionID, "abc").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	for key, want := range map[string]string{
		"service":      "vitalsd-test",
		"version":      "v9",
		FieldComponent: "recorder",
		FieldSessionID: "abc",
		"message":      "hello",
	} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %q", key, entry[key], want)
		}
	}
}

func TestLevelForVerbosity(t *testing.T) {
	cases := map[int]string{-1: "warn", 0: "warn", 1: "info", 2: "debug", 5: "debug"}
	for v, want := range cases {
		if got := LevelForVerbosity(v); got != want {
			t.Errorf("LevelForVerbosity(%d) = %q, want %q", v, got, want)
		}
	}
}

func TestSetLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	if !SetLevel("error") {
		t.Fatal("SetLevel(error) rejected")
	}
	if zerolog.GlobalLevel() != zerolog.ErrorLevel {
		t.Fatalf("global level = %v, want error", zerolog.GlobalLevel())
	}
	if SetLevel("loud") {
		t.Fatal("SetLevel accepted an unknown level")
	}
	if SetLevel("") {
		t.Fatal("SetLevel accepted an empty level")
	}
	if zerolog.GlobalLevel() != zerolog.ErrorLevel {
		t.Fatal("rejected level changed the global level")
	}
	if !SetLevel("debug") {
		t.Fatal("SetLevel(debug) rejected")
	}
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Errorf("global level = %v, want debug", zerolog.GlobalLevel())
	}
}
