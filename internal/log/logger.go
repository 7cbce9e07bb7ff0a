/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package log sets up slog for dashpoint: a compact console format for
// people, JSON for machines, an optional rotating file, and handlers that
// tag records with the collection or replay session found in the context
// and mask credentials before anything is written.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"dashpoint/internal/version"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger initialization. FromEnv reads DP_LOG_LEVEL,
// DP_LOG_FORMAT (console|json), DP_LOG_SOURCE and DP_LOG_FILE.
type Options struct {
	Level     string
	Format    string
	AddSource bool
	// File enables a rotating JSON log next to the console output.
	File string
}

// Rotation limits for Options.File.
const (
	fileMaxSizeMB  = 10
	fileMaxBackups = 3
	fileMaxAgeDays = 28
)

// Masked replaces the value of any attribute whose key names a credential.
const Masked = "********"

var sensitiveKeys = map[string]bool{
	"token":         true,
	"authorization": true,
	"auth_secret":   true,
	"admin_key":     true,
	"password":      true,
}

var (
	mu  sync.RWMutex
	def *slog.Logger
)

// L returns the process logger, building it from the environment on first use.
func L() *slog.Logger {
	mu.RLock()
	l := def
	mu.RUnlock()
	if l != nil {
		return l
	}
	mu.Lock()
	defer mu.Unlock()
	if def == nil {
		def = New(FromEnv(), os.Stderr)
		slog.SetDefault(def)
	}
	return def
}

// Init replaces the process logger and slog's default. It is safe to call
// again when the config file changes.
func Init(opts Options) {
	l := New(opts, os.Stderr)
	mu.Lock()
	def = l
	mu.Unlock()
	slog.SetDefault(l)
}

// New builds a logger that writes to w (and to opts.File when set) without
// touching the process logger.
func New(opts Options, w io.Writer) *slog.Logger {
	lvl := parseLevel(opts.Level)
	hopts := &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource, ReplaceAttr: mask}

	var out []slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		out = append(out, slog.NewJSONHandler(w, hopts))
	} else {
		out = append(out, &consoleHandler{w: w, mu: &sync.Mutex{}, level: lvl, source: opts.AddSource})
	}
	if f := strings.TrimSpace(opts.File); f != "" {
		rot := &lj.Logger{Filename: f, MaxSize: fileMaxSizeMB, MaxBackups: fileMaxBackups, MaxAge: fileMaxAgeDays, Compress: true}
		out = append(out, slog.NewJSONHandler(rot, hopts))
	}

	var h slog.Handler = out[0]
	if len(out) > 1 {
		h = fanout(out)
	}
	return slog.New(tagger{h}).With(
		slog.String("app", "dashpoint"),
		slog.String("ver", version.Version),
		slog.Int("pid", os.Getpid()),
	)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

// FromEnv builds Options from DP_LOG_* variables.
func FromEnv() Options {
	return Options{
		Level:     getenv("DP_LOG_LEVEL", "info"),
		Format:    getenv("DP_LOG_FORMAT", "console"),
		AddSource: strings.EqualFold(getenv("DP_LOG_SOURCE", "false"), "true"),
		File:      os.Getenv("DP_LOG_FILE"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// WithComponent returns the process logger tagged with a component name.
func WithComponent(name string) *slog.Logger { return L().With(slog.String("component", name)) }

// WithOperation tags l with an operation name.
func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String("op", op)) }

type ctxKey int

const (
	collectionKey ctxKey = iota
	sessionKey
)

// ContextWithCollection tags ctx so records logged with it carry the collection id.
func ContextWithCollection(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, collectionKey, id)
}

// CollectionFromContext returns the id set by ContextWithCollection.
func CollectionFromContext(ctx context.Context) (string, bool) { return fromContext(ctx, collectionKey) }

// ContextWithSession tags ctx with an editing or replay session id.
func ContextWithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey, id)
}

// SessionFromContext returns the id set by ContextWithSession.
func SessionFromContext(ctx context.Context) (string, bool) { return fromContext(ctx, sessionKey) }

func fromContext(ctx context.Context, k ctxKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(k).(string)
	return v, ok && v != ""
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// mask hides credential values. It is used as ReplaceAttr and by the
// console handler.
func mask(_ []string, a slog.Attr) slog.Attr {
	if sensitiveKeys[strings.ToLower(a.Key)] && a.Value.Kind() != slog.KindGroup {
		return slog.String(a.Key, Masked)
	}
	return a
}

// tagger copies context tags onto the record.
type tagger struct{ next slog.Handler }

func (t tagger) Enabled(ctx context.Context, l slog.Level) bool { return t.next.Enabled(ctx, l) }

func (t tagger) Handle(ctx context.Context, r slog.Record) error {
	col, hasCol := CollectionFromContext(ctx)
	sess, hasSess := SessionFromContext(ctx)
	if hasCol || hasSess {
		r = r.Clone()
		if hasCol {
			r.AddAttrs(slog.String("collection", col))
		}
		if hasSess {
			r.AddAttrs(slog.String("session", sess))
		}
	}
	return t.next.Handle(ctx, r)
}

func (t tagger) WithAttrs(as []slog.Attr) slog.Handler { return tagger{t.next.WithAttrs(as)} }
func (t tagger) WithGroup(name string) slog.Handler    { return tagger{t.next.WithGroup(name)} }

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) WithAttrs(as []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(as)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// consoleHandler prints one line per record:
//
//	15:04:05.000 INF [component] message key=value ...
//
// app, ver and pid are left to the JSON outputs.
type consoleHandler struct {
	w      io.Writer
	mu     *sync.Mutex
	level  slog.Level
	source bool
	prefix string // open groups, dot-terminated
	comp   string
	attrs  []byte
}

var consoleSkip = map[string]bool{"app": true, "ver": true, "pid": true}

func (h *consoleHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.level }

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}
	buf := make([]byte, 0, 256)
	buf = t.AppendFormat(buf, "15:04:05.000")
	buf = append(buf, ' ')
	buf = append(buf, levelTag(r.Level)...)
	if h.comp != "" {
		buf = append(buf, " ["...)
		buf = append(buf, h.comp...)
		buf = append(buf, ']')
	}
	buf = append(buf, ' ')
	buf = append(buf, r.Message...)
	buf = append(buf, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		buf = appendAttr(buf, h.prefix, a)
		return true
	})
	if h.source && r.PC != 0 {
		fr, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if fr.File != "" {
			buf = append(buf, " src="...)
			buf = append(buf, filepath.Base(fr.File)...)
			buf = append(buf, ':')
			buf = strconv.AppendInt(buf, int64(fr.Line), 10)
		}
	}
	buf = append(buf, '\n')
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *consoleHandler) WithAttrs(as []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append([]byte(nil), h.attrs...)
	for _, a := range as {
		if h.prefix == "" {
			if consoleSkip[a.Key] {
				continue
			}
			if a.Key == "component" {
				c.comp = a.Value.String()
				continue
			}
		}
		c.attrs = appendAttr(c.attrs, h.prefix, a)
	}
	return &c
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

func appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, g := range a.Value.Group() {
			buf = appendAttr(buf, p, g)
		}
		return buf
	}
	a = mask(nil, a)
	buf = append(buf, ' ')
	buf = append(buf, prefix...)
	buf = append(buf, a.Key...)
	buf = append(buf, '=')
	return appendValue(buf, a.Value)
}

func appendValue(buf []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			return strconv.AppendQuote(buf, s)
		}
		return append(buf, s...)
	case slog.KindInt64:
		return strconv.AppendInt(buf, v.Int64(), 10)
	case slog.KindUint64:
		return strconv.AppendUint(buf, v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.AppendFloat(buf, v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.AppendBool(buf, v.Bool())
	case slog.KindDuration:
		return append(buf, v.Duration().String()...)
	case slog.KindTime:
		return v.Time().AppendFormat(buf, time.RFC3339)
	default:
		if err, ok := v.Any().(error); ok {
			return strconv.AppendQuote(buf, err.Error())
		}
		return strconv.AppendQuote(buf, v.String())
	}
}

func levelTag(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DBG"
	case l < slog.LevelWarn:
		return "INF"
	case l < slog.LevelError:
		return "WRN"
	default:
		return "ERR"
	}
}
