// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	segmentExt     = ".avi"
	manifestSuffix = "_manifest.json"
	maxIDLength    = 96
)

// GenerateSessionID returns the default id for a session started at now.
func GenerateSessionID(now time.Time) string {
	return fmt.Sprintf("session_%d", now.UnixMilli())
}

// SanitizeID maps a caller-supplied session id onto [A-Za-z0-9._-] so it can
// be embedded in file names without escaping the recordings directory.
func SanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= maxIDLength {
			break
		}
	}
	out := b.String()
	if strings.Trim(out, ".") == "" {
		return "session"
	}
	return out
}

// segmentPath builds <dir>/<sanitized>_seg<NNNN>_<unix-nanos>.avi.
func segmentPath(dir, sessionID string, index int, now time.Time) string {
	name := fmt.Sprintf("%s_seg%04d_%d%s", SanitizeID(sessionID), index, now.UnixNano(), segmentExt)
	return filepath.Join(dir, name)
}

func manifestPath(dir, sessionID string) string {
	return filepath.Join(dir, SanitizeID(sessionID)+manifestSuffix)
}

// IsRecordingFile reports whether name is a file this package writes.
func IsRecordingFile(name string) bool {
	return strings.HasSuffix(name, segmentExt) || strings.HasSuffix(name, manifestSuffix)
}
