// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/ManuGH/vitalsd/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"
)

const reloadDebounce = 500 * time.Millisecond

var secretPattern = regexp.MustCompile(`(APIKey|Password):\s*"[^"]*"`)

// ReloadFunc is called after a successful reload with the old and new config.
type ReloadFunc func(old, updated AppConfig)

// ConfigHolder holds the configuration and reloads it when the YAML file
// changes. Only the log level and verbosity apply live; other changes are
// reported as requiring a restart.
type ConfigHolder struct {
	mu      sync.RWMutex
	current AppConfig
	loader  *Loader
	logger  zerolog.Logger

	listenersMu sync.RWMutex
	listeners   []ReloadFunc

	timerMu sync.Mutex
	timer   *time.Timer

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewConfigHolder creates a holder with an initial configuration.
func NewConfigHolder(initial AppConfig, loader *Loader) *ConfigHolder {
	return &ConfigHolder{
		current: initial,
		loader:  loader,
		logger:  log.WithComponent("config"),
	}
}

// Get returns the current configuration.
func (h *ConfigHolder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// OnReload registers a callback for successful reloads.
func (h *ConfigHolder) OnReload(fn ReloadFunc) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Reload loads and validates the configuration again. On failure the old
// configuration is kept.
func (h *ConfigHolder) Reload(_ context.Context) error {
	h.logger.Info().Str("event", "config.reload_start").Msg("reloading configuration")

	updated, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).Str("event", "config.reload_failed").Msg("new configuration rejected, keeping current")
		return fmt.Errorf("load config: %w", err)
	}

	h.mu.Lock()
	old := h.current
	h.current = updated
	h.mu.Unlock()

	if lvl := updated.EffectiveLogLevel(); lvl != old.EffectiveLogLevel() {
		if log.SetLevel(lvl) {
			h.logger.Info().Str("event", "config.log_level_changed").Str("old", old.EffectiveLogLevel()).Str("new", lvl).Msg("log level applied")
		}
	}
	h.logRestartRequired(old, updated)

	h.listenersMu.RLock()
	listeners := append([]ReloadFunc(nil), h.listeners...)
	h.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(old, updated)
	}

	h.logger.Info().Str("event", "config.reload_success").Msg("configuration reloaded")
	return nil
}

// logRestartRequired reports changes that only take effect after a restart.
func (h *ConfigHolder) logRestartRequired(old, updated AppConfig) {
	live := cmpopts.IgnoreFields(AppConfig{}, "LogLevel", "Verbosity")
	if cmp.Equal(old, updated, live) {
		return
	}
	h.logger.Warn().
		Str("event", "config.restart_required").
		Str("diff", redact(cmp.Diff(old, updated, live))).
		Msg("configuration changed; restart to apply")
}

// redact hides secrets in a diff.
func redact(diff string) string {
	if diff == "" {
		return diff
	}
	return secretPattern.ReplaceAllString(diff, "$1: \"***\"")
}

// StartWatcher watches the YAML file's directory and reloads after writes to
// the file settle. Without a config file it is a no-op.
func (h *ConfigHolder) StartWatcher(ctx context.Context) error {
	path := h.loader.ConfigPath()
	if path == "" {
		h.logger.Info().Str("event", "config.watcher_disabled").Msg("config file watcher disabled (no config file)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Editors replace files via rename, so the directory is watched.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	h.watcher = watcher
	h.done = make(chan struct{})

	h.logger.Info().Str("event", "config.watcher_started").Str(log.FieldPath, path).Msg("watching config file for changes")
	go h.watchLoop(ctx, filepath.Clean(path))
	return nil
}

func (h *ConfigHolder) watchLoop(ctx context.Context, path string) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.stopTimer()
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				h.stopTimer()
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			h.logger.Debug().Str("event", "config.file_changed").Str("op", event.Op.String()).Msg("config file changed")
			h.schedule(ctx)
		case err, ok := <-h.watcher.Errors:
			if !ok {
				h.stopTimer()
				return
			}
			h.logger.Error().Err(err).Str("event", "config.watcher_error").Msg("config watcher error")
		}
	}
}

func (h *ConfigHolder) schedule(ctx context.Context) {
	h.timerMu.Lock()
	defer h.timerMu.Unlock()
	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = time.AfterFunc(reloadDebounce, func() {
		if err := h.Reload(ctx); err != nil {
			h.logger.Error().Err(err).Str("event", "config.auto_reload_failed").Msg("automatic config reload failed")
		}
	})
}

func (h *ConfigHolder) stopTimer() {
	h.timerMu.Lock()
	defer h.timerMu.Unlock()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

// Stop closes the watcher and waits for its goroutine.
func (h *ConfigHolder) Stop() {
	if h.watcher == nil {
		return
	}
	_ = h.watcher.Close()
	<-h.done
	h.stopTimer()
}
