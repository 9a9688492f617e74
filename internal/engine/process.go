// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/vitalsd/internal/log"
	"github.com/ManuGH/vitalsd/internal/procgroup"
)

// APIKeyEnv is the environment variable through which the credential is
// handed to the engine process. It is never placed on the command line.
const APIKeyEnv = "SMARTSPECTRA_API_KEY"

const (
	defaultKillGrace = 5 * time.Second
	maxOutputLine    = 4 << 20
	stderrRingSize   = 128
)

var (
	// ErrInputMissing is returned by Initialize when the input file is absent or empty.
	ErrInputMissing = errors.New("engine: input file missing or empty")
	// ErrEngineFailed wraps a non-zero engine exit.
	ErrEngineFailed = errors.New("engine: process failed")
)

// ProcessFactory runs one engine executable per job. The executable reads the
// input video and writes one JSON result per line on stdout.
type ProcessFactory struct {
	BinPath   string
	KillGrace time.Duration
}

// NewProcessFactory returns a factory for the given executable. An empty path
// yields a factory whose Available reports false.
func NewProcessFactory(binPath string, killGrace time.Duration) *ProcessFactory {
	if killGrace <= 0 {
		killGrace = defaultKillGrace
	}
	return &ProcessFactory{BinPath: binPath, KillGrace: killGrace}
}

// Available reports whether the engine executable can be resolved.
func (f *ProcessFactory) Available() bool {
	if f == nil || f.BinPath == "" {
		return false
	}
	_, err := exec.LookPath(f.BinPath)
	return err == nil
}

// New constructs a single-use engine for s.
func (f *ProcessFactory) New(s Settings) (Engine, error) {
	if f == nil || f.BinPath == "" {
		return nil, ErrUnavailable
	}
	return &processEngine{
		bin:      f.BinPath,
		grace:    f.KillGrace,
		settings: s,
		ring:     NewLineRing(stderrRingSize),
	}, nil
}

type processEngine struct {
	bin      string
	resolved string
	grace    time.Duration
	settings Settings
	ring     *LineRing

	mu      sync.Mutex
	cmd     *exec.Cmd
	waitCh  chan error
	started bool
}

func (e *processEngine) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := exec.LookPath(e.bin)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	e.resolved = path

	info, err := os.Stat(e.settings.InputPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInputMissing, err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrInputMissing, e.settings.InputPath)
	}
	if e.settings.Width <= 0 || e.settings.Height <= 0 {
		return fmt.Errorf("engine: invalid target geometry %dx%d", e.settings.Width, e.settings.Height)
	}
	return nil
}

func (e *processEngine) args() []string {
	return []string{
		"--input", e.settings.InputPath,
		"--width", strconv.Itoa(e.settings.Width),
		"--height", strconv.Itoa(e.settings.Height),
		"--headless=" + strconv.FormatBool(e.settings.Headless),
		"--verbosity", strconv.Itoa(e.settings.Verbosity),
	}
}

func (e *processEngine) Run(ctx context.Context, out chan<- Result) error {
	logger := log.WithContext(ctx, log.WithComponent("engine"))

	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("engine: already run")
	}
	e.started = true
	if e.resolved == "" {
		e.mu.Unlock()
		return fmt.Errorf("%w: not initialized", ErrUnavailable)
	}

	cmd := exec.Command(e.resolved, e.args()...) // #nosec G204
	cmd.Env = append(os.Environ(), APIKeyEnv+"="+e.settings.APIKey)
	procgroup.Set(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		e.mu.Unlock()
		return err
	}

	logger.Debug().Str("event", "engine.start").Str("command", cmd.String()).Msg("starting engine process")
	if err := cmd.Start(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine start failed: %w", err)
	}
	waitCh := make(chan error, 1)
	e.cmd = cmd
	e.waitCh = waitCh
	e.mu.Unlock()

	// All pipe readers must finish before Wait.
	var ioWg sync.WaitGroup
	ioWg.Add(2)
	go func() {
		defer ioWg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			_, _ = e.ring.Write(scanner.Bytes())
		}
	}()
	go func() {
		defer ioWg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), maxOutputLine)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			res, err := DecodeResult(line)
			if err != nil {
				logger.Warn().Err(err).Str("event", "engine.output_invalid").Msg("skipping malformed engine output line")
				continue
			}
			out <- res
		}
		if err := scanner.Err(); err != nil {
			logger.Warn().Err(err).Str("event", "engine.output_read_failed").Msg("engine stdout read failed")
		}
	}()
	go func() {
		ioWg.Wait()
		waitCh <- cmd.Wait()
	}()

	select {
	case waitErr := <-waitCh:
		e.markDone()
		return e.exitError(waitErr)
	case <-ctx.Done():
		logger.Warn().Str("event", "engine.cancelled").Msg("terminating engine process group")
		_ = procgroup.Terminate(cmd, waitCh, e.grace)
		e.markDone()
		return ctx.Err()
	}
}

func (e *processEngine) markDone() {
	e.mu.Lock()
	e.waitCh = nil
	e.mu.Unlock()
}

func (e *processEngine) exitError(waitErr error) error {
	if waitErr == nil {
		return ErrInputExhausted
	}
	code := -1
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		code = exitErr.ExitCode()
	}
	tail := e.ring.LastN(3)
	if len(tail) > 0 {
		return fmt.Errorf("%w: exit code %d: %s", ErrEngineFailed, code, strings.Join(tail, " | "))
	}
	return fmt.Errorf("%w: exit code %d", ErrEngineFailed, code)
}

// Close terminates the process group if Run was abandoned mid-flight.
func (e *processEngine) Close() error {
	e.mu.Lock()
	cmd, waitCh := e.cmd, e.waitCh
	e.mu.Unlock()
	if cmd == nil || waitCh == nil {
		return nil
	}
	err := procgroup.Terminate(cmd, waitCh, e.grace)
	e.markDone()
	return err
}
