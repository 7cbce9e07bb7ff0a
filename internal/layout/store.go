/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package layout owns the card rectangles of one open collection: loading
// them from the server or the local cache, placing new cards, pruning removed
// ones, and persisting changes through a debounced writer.
package layout

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"dashpoint/internal/codec"
	"dashpoint/internal/domain"
	"dashpoint/internal/geometry"
	applog "dashpoint/internal/log"
	"dashpoint/internal/undo"
)

// DefaultDelay is the debounce window of the writer.
const DefaultDelay = 600 * time.Millisecond

// DefaultWriteTimeout bounds a single remote write.
const DefaultWriteTimeout = 15 * time.Second

// ErrNoCollection is returned by New without a collection id.
var ErrNoCollection = errors.New("layout: collection id required")

// Cache is the local persistent key/value cache.
type Cache interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// Remote is the authoritative layout store, usually the collection API.
type Remote interface {
	UpdateCollectionLayouts(ctx context.Context, collectionID string, payload []byte) error
}

// Observer receives notable store events. Implementations must not block.
type Observer interface {
	LayoutLoaded(collectionID string, source Source, items int)
	RemoteWriteFailed(collectionID string, err error)
}

// Source tells where a loaded layout came from.
type Source string

const (
	SourceServer      Source = "server"
	SourceCache       Source = "cache"
	SourceLegacyCache Source = "legacy-cache"
	SourceEmpty       Source = "empty"
)

// State is the lifecycle of a store.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Options configures a Store. Only CollectionID is required.
type Options struct {
	CollectionID string
	Cache        Cache
	Remote       Remote
	// Canvas reports the visible canvas size; nil means the defaults.
	Canvas       func() geometry.Size
	Clock        Clock
	Delay        time.Duration
	WriteTimeout time.Duration
	Gap          float64
	Logger       *slog.Logger
	Observer     Observer
	// History enables undo/redo of SetRect commits.
	History      *undo.Manager
}

// Store holds the layout map of one collection. It is safe for concurrent
// use; timer callbacks and remote writes run on their own goroutines.
type Store struct {
	opts Options
	log  *slog.Logger
	w    *writer

	mu      sync.Mutex
	state   State
	layouts codec.LayoutMap
}

// New creates a store in StateUninitialized.
func New(opts Options) (*Store, error) {
	if opts.CollectionID == "" {
		return nil, ErrNoCollection
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Gap <= 0 {
		opts.Gap = geometry.DefaultGap
	}
	l := opts.Logger
	if l == nil {
		l = applog.WithComponent("layout")
	}
	l = l.With(slog.String("collection", opts.CollectionID))
	s := &Store{opts: opts, log: l, layouts: codec.LayoutMap{}}
	s.w = &writer{
		collectionID: opts.CollectionID,
		cache:        opts.Cache,
		remote:       opts.Remote,
		clock:        opts.Clock,
		delay:        opts.Delay,
		timeout:      opts.WriteTimeout,
		log:          l,
		observer:     opts.Observer,
	}
	return s, nil
}

// CollectionID returns the collection this store belongs to.
func (s *Store) CollectionID() string { return s.opts.CollectionID }

func (s *Store) canvas() geometry.Size {
	if s.opts.Canvas == nil {
		return geometry.Size{W: geometry.DefaultCanvasWidth, H: geometry.DefaultCanvasHeight}
	}
	return s.opts.Canvas()
}

// Load initializes the map from the first source that decodes: the server
// payload, the current cache key, then the legacy cache key. A non-empty
// layout taken from the cache is pushed to the remote once in the background;
// failure of that push is only logged. Load schedules a normal write so any
// legacy shape is re-encoded on the next persistence.
func (s *Store) Load(ctx context.Context, serverLayouts []byte) Source {
	l := applog.WithOperation(s.log, "load")
	s.mu.Lock()
	s.state = StateLoading
	s.mu.Unlock()

	canvas := s.canvas()
	bp := geometry.ClassifyBreakpoint(canvas.W)

	m, source := s.pickSource(l, serverLayouts, bp)
	for k, r := range m {
		m[k] = geometry.SanitizeRect(r, s.opts.Gap)
	}

	if source != SourceServer && source != SourceEmpty && len(m) > 0 {
		s.pushMigration(ctx, l, m, canvas)
	}

	s.mu.Lock()
	s.layouts = m
	s.state = StateReady
	s.mutatedLocked()
	s.mu.Unlock()

	l.DebugContext(ctx, "layout loaded", slog.String("source", string(source)), slog.Int("items", len(m)))
	if s.opts.Observer != nil {
		s.opts.Observer.LayoutLoaded(s.opts.CollectionID, source, len(m))
	}
	return source
}

func (s *Store) pickSource(l *slog.Logger, server []byte, bp geometry.Breakpoint) (codec.LayoutMap, Source) {
	if m, shape, ok := codec.Decode(server, bp); ok {
		l.Debug("decoded server layout", slog.String("shape", shape.String()))
		return m, SourceServer
	}
	if s.opts.Cache != nil {
		for _, c := range []struct {
			key    string
			source Source
		}{
			{CacheKey(s.opts.CollectionID), SourceCache},
			{LegacyCacheKey(s.opts.CollectionID), SourceLegacyCache},
		} {
			raw, found, err := s.opts.Cache.Get(c.key)
			if err != nil {
				l.Debug("local layout cache read failed", slog.String("key", c.key), slog.Any("err", err))
				continue
			}
			if !found {
				continue
			}
			if m, shape, ok := codec.Decode([]byte(raw), bp); ok {
				l.Debug("decoded cached layout", slog.String("key", c.key), slog.String("shape", shape.String()))
				return m, c.source
			}
		}
	}
	return codec.LayoutMap{}, SourceEmpty
}

func (s *Store) pushMigration(ctx context.Context, l *slog.Logger, m codec.LayoutMap, canvas geometry.Size) {
	raw, err := codec.Marshal(codec.Encode(m, canvas, s.opts.Clock.Now()))
	if err != nil {
		l.Warn("encode migration payload failed", slog.Any("err", err))
		return
	}
	if s.opts.Remote == nil {
		return
	}
	n := len(m)
	s.w.wg.Add(1)
	go func() {
		defer s.w.wg.Done()
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.WriteTimeout)
		defer cancel()
		if err := s.opts.Remote.UpdateCollectionLayouts(wctx, s.opts.CollectionID, raw); err != nil {
			l.WarnContext(ctx, "layout migration push failed", slog.Any("err", err))
			return
		}
		l.InfoContext(ctx, "migrated cached layout to server", slog.Int("items", n))
	}()
}

// Reconcile aligns the map with the current item list: entries of removed
// items are pruned, existing entries are re-sanitized in place, and new items
// get a default grid cell chosen by their position in items.
func (s *Store) Reconcile(items []domain.Item) {
	grid := NewGrid(s.canvas(), s.opts.Gap)

	s.mu.Lock()
	defer s.mu.Unlock()

	present := make(map[string]struct{}, len(items))
	for _, it := range items {
		if k := ItemKey(it); k != "" {
			present[k] = struct{}{}
		}
	}

	changed := false
	for k := range s.layouts {
		if _, ok := present[k]; !ok {
			delete(s.layouts, k)
			if s.opts.History != nil {
				s.opts.History.Forget(s.opts.CollectionID, k)
			}
			changed = true
		}
	}
	for i, it := range items {
		k := ItemKey(it)
		if k == "" {
			continue
		}
		cur, ok := s.layouts[k]
		var next geometry.Rect
		if ok {
			next = geometry.SanitizeRect(cur, s.opts.Gap)
		} else {
			next = grid.Place(i)
		}
		if !ok || next != cur {
			s.layouts[k] = next
			changed = true
		}
	}
	if changed {
		s.mutatedLocked()
	}
}

// SetRect commits a manipulated rectangle for key. Negative coordinates are
// floored at the origin. Unknown keys are ignored and reported as false.
func (s *Store) SetRect(key string, r geometry.Rect) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.layouts[key]
	if !ok {
		return false
	}
	next := geometry.SanitizeRect(r, s.opts.Gap)
	next.X, next.Y = math.Max(0, next.X), math.Max(0, next.Y)
	if next == prev {
		return true
	}
	s.layouts[key] = next
	if s.opts.History != nil {
		s.opts.History.Push(undo.Change{
			Collection: s.opts.CollectionID,
			Key:        key,
			Before:     prev,
			After:      next,
			TS:         s.opts.Clock.Now(),
		})
	}
	s.mutatedLocked()
	return true
}

// Undo reverts the latest committed change. It reports whether anything changed.
func (s *Store) Undo() bool {
	if s.opts.History == nil {
		return false
	}
	c, ok := s.opts.History.Undo(s.opts.CollectionID)
	if !ok {
		return false
	}
	return s.restore(c.Key, c.Before)
}

// Redo re-applies the latest undone change.
func (s *Store) Redo() bool {
	if s.opts.History == nil {
		return false
	}
	c, ok := s.opts.History.Redo(s.opts.CollectionID)
	if !ok {
		return false
	}
	return s.restore(c.Key, c.After)
}

func (s *Store) restore(key string, r geometry.Rect) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.layouts[key]; !ok {
		return false
	}
	s.layouts[key] = r
	s.mutatedLocked()
	return true
}

// Reset drops every rectangle and re-places items on the default grid.
func (s *Store) Reset(items []domain.Item) {
	s.mu.Lock()
	s.layouts = codec.LayoutMap{}
	if s.opts.History != nil {
		s.opts.History.Clear(s.opts.CollectionID)
	}
	s.mutatedLocked()
	s.mu.Unlock()
	s.Reconcile(items)
}

// mutatedLocked encodes the current map and hands it to the writer. Nothing
// is persisted before the store is Ready.
func (s *Store) mutatedLocked() {
	if s.state != StateReady {
		return
	}
	raw, err := codec.Marshal(codec.Encode(s.layouts, s.canvas(), s.opts.Clock.Now()))
	if err != nil {
		s.log.Warn("encode layout payload failed", slog.Any("err", err))
		return
	}
	s.w.mutated(raw)
}

// Rect returns the rectangle of key.
func (s *Store) Rect(key string) (geometry.Rect, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.layouts[key]
	return r, ok
}

// Snapshot returns a copy of the current map.
func (s *Store) Snapshot() codec.LayoutMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layouts.Clone()
}

// Keys returns the item keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.layouts))
	for k := range s.layouts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Bounds returns the bounding box of all cards; ok is false when there are none.
func (s *Store) Bounds() (geometry.Bounds, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return geometry.ComputeBounds(s.layouts)
}

// Len returns the number of placed cards.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.layouts)
}

// State returns the lifecycle state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// WriterState returns the state of the persistence path.
func (s *Store) WriterState() WriterState { return s.w.state() }

// Flush writes the latest payload to the cache immediately and fires a remote
// write without waiting for the debounce timer or a write in flight. Use it
// when the view is backgrounded.
func (s *Store) Flush() {
	s.w.flushNow()
}

// Settle blocks until no remote write is running or ctx is done.
func (s *Store) Settle(ctx context.Context) error {
	return s.w.wait(ctx)
}

// Close flushes eagerly, waits for outstanding writes until ctx is done and
// returns the store to StateUninitialized.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	ready := s.state == StateReady
	s.mu.Unlock()
	if ready {
		s.w.flushNow()
	}
	s.w.stop()
	s.mu.Lock()
	s.state = StateUninitialized
	s.mu.Unlock()
	return s.w.wait(ctx)
}
