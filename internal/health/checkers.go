// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/shirou/gopsutil/v4/disk"
)

// DirChecker verifies that a directory exists and is writable.
type DirChecker struct {
	name string
	path string
}

// NewDirChecker creates a writable-directory checker.
func NewDirChecker(name, path string) *DirChecker {
	return &DirChecker{name: name, path: path}
}

func (c *DirChecker) Name() string { return c.name }

func (c *DirChecker) Check(ctx context.Context) CheckResult {
	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{Status: StatusUnhealthy, Error: "directory not found", Message: c.path}
		}
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: "expected directory, got file", Message: c.path}
	}

	f, err := os.CreateTemp(c.path, ".health-*")
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: "directory not writable", Message: err.Error()}
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	return CheckResult{Status: StatusHealthy, Message: "writable"}
}

// DiskSpaceChecker reports the free space of the filesystem holding a path.
// Below MinFree bytes it is unhealthy; above WarnUsedPercent it is degraded.
type DiskSpaceChecker struct {
	path            string
	MinFree         uint64
	WarnUsedPercent float64

	usage func(ctx context.Context, path string) (*disk.UsageStat, error)
}

// NewDiskSpaceChecker creates a checker for path with default thresholds of
// 512 MiB free and 90% used.
func NewDiskSpaceChecker(path string) *DiskSpaceChecker {
	return &DiskSpaceChecker{
		path:            path,
		MinFree:         512 << 20,
		WarnUsedPercent: 90,
		usage:           disk.UsageWithContext,
	}
}

func (c *DiskSpaceChecker) Name() string { return "disk_space" }

func (c *DiskSpaceChecker) Check(ctx context.Context) CheckResult {
	u, err := c.usage(ctx, c.path)
	if err != nil {
		return CheckResult{Status: StatusDegraded, Error: err.Error(), Message: "disk usage unavailable"}
	}
	msg := fmt.Sprintf("%d MiB free (%.1f%% used)", u.Free>>20, u.UsedPercent)
	switch {
	case u.Free < c.MinFree:
		return CheckResult{Status: StatusUnhealthy, Error: "insufficient free space", Message: msg}
	case u.UsedPercent >= c.WarnUsedPercent:
		return CheckResult{Status: StatusDegraded, Message: msg}
	default:
		return CheckResult{Status: StatusHealthy, Message: msg}
	}
}

// ListenerChecker reports whether a server is bound.
type ListenerChecker struct {
	name string
	addr func() net.Addr
}

// NewListenerChecker creates a checker; addr returns nil until the server listens.
func NewListenerChecker(name string, addr func() net.Addr) *ListenerChecker {
	return &ListenerChecker{name: name, addr: addr}
}

func (c *ListenerChecker) Name() string { return c.name }

func (c *ListenerChecker) Check(ctx context.Context) CheckResult {
	a := c.addr()
	if a == nil {
		return CheckResult{Status: StatusUnhealthy, Error: "not listening"}
	}
	return CheckResult{Status: StatusHealthy, Message: a.String()}
}

// FuncChecker adapts a function to Checker.
type FuncChecker struct {
	name string
	fn   func(ctx context.Context) CheckResult
}

// NewFuncChecker creates a checker backed by fn.
func NewFuncChecker(name string, fn func(ctx context.Context) CheckResult) *FuncChecker {
	return &FuncChecker{name: name, fn: fn}
}

func (c *FuncChecker) Name() string { return c.name }

func (c *FuncChecker) Check(ctx context.Context) CheckResult { return c.fn(ctx) }

// EngineChecker is degraded when the analysis engine cannot run. Segments are
// still recorded in that state.
func EngineChecker(available func() bool) *FuncChecker {
	return NewFuncChecker("analysis_engine", func(context.Context) CheckResult {
		if available() {
			return CheckResult{Status: StatusHealthy, Message: "available"}
		}
		return CheckResult{Status: StatusDegraded, Message: "engine unavailable, segments are recorded but not analysed"}
	})
}

// QueueChecker is degraded while the analysis backlog exceeds warnDepth.
func QueueChecker(depth func() int, warnDepth int) *FuncChecker {
	return NewFuncChecker("analysis_queue", func(context.Context) CheckResult {
		d := depth()
		msg := fmt.Sprintf("%d queued", d)
		if warnDepth > 0 && d >= warnDepth {
			return CheckResult{Status: StatusDegraded, Message: msg}
		}
		return CheckResult{Status: StatusHealthy, Message: msg}
	})
}
