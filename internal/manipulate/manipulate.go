/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package manipulate implements drag and resize sessions for a single card.
//
// Pointer positions are in screen space; the session converts deltas to world
// space with the viewport scale captured when it began. The final rectangle
// returned by End is committed by the caller, usually with layout.Store.SetRect.
package manipulate

import (
	"errors"
	"math"
	"strings"

	"dashpoint/internal/geometry"
)

// ErrInvalidDirection is returned for an unknown resize handle.
var ErrInvalidDirection = errors.New("invalid resize direction")

// Direction names a resize handle.
type Direction string

const (
	N  Direction = "n"
	S  Direction = "s"
	E  Direction = "e"
	W  Direction = "w"
	NE Direction = "ne"
	NW Direction = "nw"
	SE Direction = "se"
	SW Direction = "sw"
)

// Directions lists every resize handle.
var Directions = []Direction{N, S, E, W, NE, NW, SE, SW}

// ParseDirection accepts a handle name in any case.
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range Directions {
		if v == d {
			return d, nil
		}
	}
	return "", ErrInvalidDirection
}

// Cursor is the CSS-style cursor name for the handle.
func (d Direction) Cursor() string { return string(d) + "-resize" }

func (d Direction) has(c byte) bool { return strings.IndexByte(string(d), c) >= 0 }

// Options configure a session.
type Options struct {
	// Scale is the viewport scale; non-positive means 1.
	Scale float64
	// Container, when set, is the visible canvas size in screen pixels; the
	// card is kept inside it.
	Container *geometry.Size
	// Snap enables smart-guide snapping of dragged cards against Anchors.
	Snap    *geometry.SnapOptions
	Anchors []geometry.Anchor
}

type kind int

const (
	dragging kind = iota
	resizing
)

// Session is one drag or resize gesture. It is not safe for concurrent use.
type Session struct {
	kind      kind
	dir       Direction
	pointerID int
	start     geometry.Pt
	startRect geometry.Rect
	scale     float64
	container *geometry.Size // world units
	snap      *geometry.SnapOptions
	anchors   []geometry.Anchor

	live   geometry.Rect
	guides []geometry.GuideLine
	ended  bool
}

func newSession(k kind, pointerID int, at geometry.Pt, r geometry.Rect, opts Options) *Session {
	scale := opts.Scale
	if !(scale > 0) || math.IsInf(scale, 0) {
		scale = 1
	}
	s := &Session{
		kind:      k,
		pointerID: pointerID,
		start:     at,
		startRect: r,
		scale:     scale,
		snap:      opts.Snap,
		anchors:   opts.Anchors,
		live:      r,
	}
	if opts.Container != nil {
		s.container = &geometry.Size{W: opts.Container.W / scale, H: opts.Container.H / scale}
	}
	return s
}

// BeginDrag starts moving r with the pointer at screen point at.
func BeginDrag(pointerID int, at geometry.Pt, r geometry.Rect, opts Options) *Session {
	return newSession(dragging, pointerID, at, r, opts)
}

// BeginResize starts resizing r from handle dir.
func BeginResize(pointerID int, at geometry.Pt, r geometry.Rect, dir Direction, opts Options) (*Session, error) {
	if _, err := ParseDirection(string(dir)); err != nil {
		return nil, err
	}
	s := newSession(resizing, pointerID, at, r, opts)
	s.dir = dir
	return s, nil
}

// Resizing reports whether the session resizes rather than moves the card.
func (s *Session) Resizing() bool { return s.kind == resizing }

// PointerID is the pointer that owns the session.
func (s *Session) PointerID() int { return s.pointerID }

// Live is the current rectangle, for rendering during the gesture.
func (s *Session) Live() geometry.Rect { return s.live }

// Guides are the smart guides produced by the last move.
func (s *Session) Guides() []geometry.GuideLine { return s.guides }

// Cursor is the cursor hint while the session runs.
func (s *Session) Cursor() string {
	if s.kind == resizing {
		return s.dir.Cursor()
	}
	return "move"
}

// Move updates the live rectangle for a pointer at screen point p. Events
// from other pointers and events after End are ignored; ok reports whether
// the event was used.
func (s *Session) Move(pointerID int, p geometry.Pt) (r geometry.Rect, ok bool) {
	if s.ended || pointerID != s.pointerID || !p.Finite() {
		return s.live, false
	}
	d := p.Sub(s.start).Scale(1 / s.scale)
	s.guides = nil
	if s.kind == dragging {
		next := s.startRect
		next.X += d.X
		next.Y += d.Y
		if s.snap != nil && len(s.anchors) > 0 {
			next, s.guides = geometry.ComputeSmartGuides(next, s.anchors, *s.snap)
		}
		s.live = s.clamp(next)
	} else {
		s.live = s.clamp(s.resized(d))
	}
	return s.live, true
}

// End finishes the session and returns the rectangle to commit.
func (s *Session) End(pointerID int) (geometry.Rect, bool) {
	if s.ended || pointerID != s.pointerID {
		return s.live, false
	}
	s.ended = true
	s.guides = nil
	return s.clamp(s.live), true
}

// resized applies the handle's edges. When a north or west edge hits the
// minimum size the opposite edge stays put.
func (s *Session) resized(d geometry.Pt) geometry.Rect {
	r0 := s.startRect
	next := r0
	if s.dir.has('e') {
		next.Width = r0.Width + d.X
	}
	if s.dir.has('w') {
		next.Width = math.Max(geometry.MinWidth, r0.Width-d.X)
		next.X = r0.X + r0.Width - next.Width
	}
	if s.dir.has('s') {
		next.Height = r0.Height + d.Y
	}
	if s.dir.has('n') {
		next.Height = math.Max(geometry.MinHeight, r0.Height-d.Y)
		next.Y = r0.Y + r0.Height - next.Height
	}
	return next
}

// clamp enforces the minimum size and keeps the card at non-negative world
// coordinates. A west or north edge stopped at the origin shrinks the card
// instead of moving the opposite edge. With a container the card also stays
// inside it.
func (s *Session) clamp(r geometry.Rect) geometry.Rect {
	r.Width = math.Max(geometry.MinWidth, r.Width)
	r.Height = math.Max(geometry.MinHeight, r.Height)
	if r.X < 0 {
		if s.kind == resizing && s.dir.has('w') {
			r.Width = math.Max(geometry.MinWidth, r.Width+r.X)
		}
		r.X = 0
	}
	if r.Y < 0 {
		if s.kind == resizing && s.dir.has('n') {
			r.Height = math.Max(geometry.MinHeight, r.Height+r.Y)
		}
		r.Y = 0
	}
	if s.container == nil {
		return r
	}
	c := *s.container
	r.Width = math.Min(r.Width, math.Max(geometry.MinWidth, c.W))
	r.Height = math.Min(r.Height, math.Max(geometry.MinHeight, c.H))
	r.X = math.Min(math.Max(0, r.X), math.Max(0, c.W-r.Width))
	r.Y = math.Min(math.Max(0, r.Y), math.Max(0, c.H-r.Height))
	return r
}
