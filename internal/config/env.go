// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/vitalsd/internal/log"
	"github.com/rs/zerolog"
)

// lookupFunc resolves one variable; ok is false when it is not set.
type lookupFunc func(key string) (value string, ok bool)

// envSource is one layer of variables: the process environment or a .env file.
type envSource struct {
	name   string
	lookup lookupFunc
}

var osEnv = envSource{name: "environment", lookup: os.LookupEnv}

func mapSource(name string, m map[string]string) envSource {
	return envSource{name: name, lookup: func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}}
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "key") || strings.Contains(k, "password") || strings.Contains(k, "token")
}

// read returns the raw value when it is set and non-empty.
func (s envSource) read(logger zerolog.Logger, key string) (string, bool) {
	v, ok := s.lookup(key)
	if !ok {
		return "", false
	}
	if v == "" {
		logger.Debug().Str("key", key).Str("source", s.name).Msg("variable is empty, ignoring")
		return "", false
	}
	return v, true
}

func (s envSource) used(logger zerolog.Logger, key string, value any) {
	ev := logger.Debug().Str("key", key).Str("source", s.name)
	if isSensitive(key) {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Interface("value", value)
	}
	ev.Msg("using configured value")
}

func (s envSource) invalid(logger zerolog.Logger, key, raw, kind string) {
	ev := logger.Warn().Str("key", key).Str("source", s.name)
	if !isSensitive(key) {
		ev = ev.Str("value", raw)
	}
	ev.Msgf("invalid %s, keeping previous value", kind)
}

func (s envSource) str(logger zerolog.Logger, key, def string) string {
	v, ok := s.read(logger, key)
	if !ok {
		return def
	}
	s.used(logger, key, v)
	return v
}

func (s envSource) integer(logger zerolog.Logger, key string, def int) int {
	v, ok := s.read(logger, key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		s.invalid(logger, key, v, "integer")
		return def
	}
	s.used(logger, key, i)
	return i
}

func (s envSource) duration(logger zerolog.Logger, key string, def time.Duration) time.Duration {
	v, ok := s.read(logger, key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		s.invalid(logger, key, v, "duration")
		return def
	}
	s.used(logger, key, d.String())
	return d
}

func (s envSource) boolean(logger zerolog.Logger, key string, def bool) bool {
	v, ok := s.read(logger, key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		s.used(logger, key, true)
		return true
	case "false", "0", "no", "off":
		s.used(logger, key, false)
		return false
	default:
		s.invalid(logger, key, v, "boolean")
		return def
	}
}

func (s envSource) float(logger zerolog.Logger, key string, def float64) float64 {
	v, ok := s.read(logger, key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		s.invalid(logger, key, v, "float")
		return def
	}
	s.used(logger, key, f)
	return f
}

// ParseString reads a string from the environment or returns defaultValue.
func ParseString(key, defaultValue string) string {
	return osEnv.str(log.WithComponent("config"), key, defaultValue)
}

// ParseInt reads an integer from the environment. Unparseable values fall
// back to defaultValue with a warning.
func ParseInt(key string, defaultValue int) int {
	return osEnv.integer(log.WithComponent("config"), key, defaultValue)
}

// ParseDuration reads a Go duration ("5s") from the environment.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return osEnv.duration(log.WithComponent("config"), key, defaultValue)
}

// ParseBool reads a boolean from the environment. It accepts true/false,
// 1/0, yes/no and on/off, case-insensitively.
func ParseBool(key string, defaultValue bool) bool {
	return osEnv.boolean(log.WithComponent("config"), key, defaultValue)
}

// ParseFloat reads a float64 from the environment.
func ParseFloat(key string, defaultValue float64) float64 {
	return osEnv.float(log.WithComponent("config"), key, defaultValue)
}
