/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic into a report file and an eager flush of
// whatever layout state is still in memory.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "dashpoint/internal/log"
	"dashpoint/internal/telemetry"
	"dashpoint/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Flusher is anything holding unsaved state that can be pushed out
// synchronously, typically a *layout.Store.
type Flusher interface {
	Flush()
}

// Handler describes where reports go and what to flush on a panic.
type Handler struct {
	// Dir receives crash-*.log files; empty means os.TempDir().
	Dir      string
	Flushers []Flusher
	// Telemetry uploads the report when opted in; nil means the default client.
	Telemetry *telemetry.Client
}

// Recover captures a panic, logs it with its stack, writes a report file,
// flushes every registered Flusher and exits with status 2.
//
// Usage: defer h.Recover()
func (h *Handler) Recover() {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	for _, f := range h.Flushers {
		flushSafely(l, f)
	}

	reportPath, err := h.writeReport(r, stack)
	if err != nil {
		l.Error("crash report write failed", slog.Any("err", err), slog.String("path", reportPath))
	}
	if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
		l.Error("failed to write crash message to stderr", slog.Any("err", err))
	}
	if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
		l.Error("failed to write version info to stderr", slog.Any("err", err))
	}
	exitFn(2)
}

// flushSafely runs f.Flush, swallowing a second panic so the report still
// gets written.
func flushSafely(l *slog.Logger, f Flusher) {
	defer func() {
		if r := recover(); r != nil {
			l.Error("flush during crash panicked", slog.Any("panic", r))
		}
	}()
	f.Flush()
}

func (h *Handler) writeReport(panicVal any, stack []byte) (string, error) {
	dir := h.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return dir, err
	}
	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", now.Format("20060102-150405")))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Dashpoint Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", now.Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(&buf, "Flushed: %d\n", len(h.Flushers))
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}

	tc := h.Telemetry
	if tc == nil {
		tc = telemetry.Default()
	}
	tc.UploadCrash(buf.Bytes())
	return path, nil
}
