// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func touch(t *testing.T, dir, name string, age time.Duration, now time.Time) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("data"), 0o600))
	mt := now.Add(-age)
	require.NoError(t, os.Chtimes(p, mt, mt))
	return p
}

func TestSweepRemovesOnlyOldRecordings(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	old := touch(t, dir, "s1_seg0000_1.avi", 48*time.Hour, now)
	oldManifest := touch(t, dir, "s1_manifest.json", 48*time.Hour, now)
	fresh := touch(t, dir, "s2_seg0000_2.avi", time.Minute, now)
	foreign := touch(t, dir, "notes.txt", 48*time.Hour, now)
	active := touch(t, dir, "live_seg0000_3.avi", 48*time.Hour, now)

	s, err := New(Options{
		Dir:           dir,
		MaxAge:        24 * time.Hour,
		ActiveSession: func() string { return "live" },
		Now:           func() time.Time { return now },
	})
	require.NoError(t, err)

	res, err := s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	assert.Equal(t, int64(8), res.Bytes)
	assert.Equal(t, 2, res.Kept)

	assert.NoFileExists(t, old)
	assert.NoFileExists(t, oldManifest)
	assert.FileExists(t, fresh)
	assert.FileExists(t, foreign)
	assert.FileExists(t, active)
}

func TestSweepKeepsFilesInUse(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	queued := touch(t, dir, "prev_seg0003_1.avi", 48*time.Hour, now)
	done := touch(t, dir, "prev_seg0002_1.avi", 48*time.Hour, now)

	var asked []string
	s, err := New(Options{
		Dir:    dir,
		MaxAge: time.Hour,
		InUse: func(path string) bool {
			asked = append(asked, path)
			return path == queued
		},
		Now: func() time.Time { return now },
	})
	require.NoError(t, err)

	res, err := s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 1, res.Kept)
	assert.FileExists(t, queued)
	assert.NoFileExists(t, done)
	assert.ElementsMatch(t, []string{queued, done}, asked)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{Dir: t.TempDir()})
	require.ErrorIs(t, err, ErrDisabled)

	_, err = New(Options{Dir: t.TempDir(), MaxAge: time.Hour, Schedule: "every tuesday"})
	require.Error(t, err)
}

func TestSweepMissingDir(t *testing.T) {
	s, err := New(Options{Dir: filepath.Join(t.TempDir(), "gone"), MaxAge: time.Hour})
	require.NoError(t, err)
	_, err = s.Sweep()
	require.Error(t, err)
}

func TestScheduledSweep(t *testing.T) {
	dir := t.TempDir()
	p := touch(t, dir, "a_seg0000_1.avi", 2*time.Hour, time.Now())

	s, err := New(Options{Dir: dir, MaxAge: time.Hour, Schedule: "@every 1s"})
	require.NoError(t, err)
	s.Start()
	require.Eventually(t, func() bool {
		_, err := os.Stat(p)
		return os.IsNotExist(err)
	}, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
