/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dashpoint/internal/config"
	"dashpoint/internal/domain"
	"dashpoint/internal/export"
	"dashpoint/internal/geometry"
	"dashpoint/internal/layout"
	applog "dashpoint/internal/log"
	"dashpoint/internal/undo"
)

// Backend is the part of the collection API a session needs.
type Backend interface {
	layout.Remote
	GetCollectionWithItems(ctx context.Context, id string) (*domain.CollectionWithItems, error)
}

// RunOptions configures the desktop UI.
type RunOptions struct {
	CollectionID string
	Config       config.AppConfig
	Token        string
}

// OpenOptions configures Open. Backend is required.
type OpenOptions struct {
	Backend  Backend
	Cache    layout.Cache
	Canvas   config.CanvasConfig
	Size     geometry.Size
	History  *undo.Manager
	Observer layout.Observer
	Logger   *slog.Logger
}

// Session is one opened collection: its items, the layout store and the
// board that edits it.
type Session struct {
	Collection domain.CollectionWithItems
	Source     layout.Source
	Store      *layout.Store
	Board      *Board
}

// Open fetches collection id, loads its layout (server payload, then local
// cache), reconciles it with the item list and centres the camera.
func Open(ctx context.Context, id string, opts OpenOptions) (*Session, error) {
	if opts.Backend == nil {
		return nil, errors.New("open collection: backend is required")
	}
	l := opts.Logger
	if l == nil {
		l = applog.WithComponent("ui")
	}
	l = applog.WithOperation(l, "open").With(slog.String("collection", id))

	c, err := opts.Backend.GetCollectionWithItems(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch collection %s: %w", id, err)
	}

	var b *Board
	size := opts.Size
	if !(size.W > 0 && size.H > 0) {
		size = geometry.Size{W: geometry.DefaultCanvasWidth, H: geometry.DefaultCanvasHeight}
	}
	store, err := layout.New(layout.Options{
		CollectionID: id,
		Cache:        opts.Cache,
		Remote:       opts.Backend,
		Canvas: func() geometry.Size {
			if b != nil {
				return b.Canvas()
			}
			return size
		},
		Delay:        opts.Canvas.PersistDelay(),
		WriteTimeout: opts.Canvas.WriteTimeout(),
		Gap:          opts.Canvas.Gap,
		Logger:       l,
		Observer:     opts.Observer,
		History:      opts.History,
	})
	if err != nil {
		return nil, err
	}

	var snap *geometry.SnapOptions
	if opts.Canvas.SnapThreshold > 0 {
		snap = &geometry.SnapOptions{Threshold: opts.Canvas.SnapThreshold, SnapToEdges: true, SnapToCenters: true}
	}
	b = NewBoard(store, BoardOptions{Snap: snap, FitMargin: 24, Logger: l})
	b.SetCanvas(size)

	src := store.Load(ctx, c.Layouts)
	store.Reconcile(c.Items)
	b.Recenter()
	l.Info("collection opened", slog.String("source", string(src)), slog.Int("items", len(c.Items)))

	return &Session{Collection: *c, Source: src, Store: store, Board: b}, nil
}

// Labels maps layout keys to item titles.
func (s *Session) Labels() map[string]string {
	return export.Labels(s.Collection.Items, layout.ItemKey)
}

// ResetLayout places every item on the default grid again.
func (s *Session) ResetLayout() { s.Store.Reset(s.Collection.Items) }

// Close flushes pending layout writes and waits for them.
func (s *Session) Close(ctx context.Context) error { return s.Store.Close(ctx) }
