/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"log/slog"
	"strings"

	"dashpoint/internal/geometry"
	"dashpoint/internal/gesture"
	"dashpoint/internal/layout"
	applog "dashpoint/internal/log"
	"dashpoint/internal/manipulate"
	"dashpoint/internal/viewport"
)

// DefaultHandleSize is the width in screen pixels of the resize zone along
// each card edge.
const DefaultHandleSize = 8.0

// BoardOptions configures a Board.
type BoardOptions struct {
	// Snap enables smart guides while dragging; nil disables snapping.
	Snap *geometry.SnapOptions
	// HandleSize is the resize zone in screen pixels; zero means DefaultHandleSize.
	HandleSize float64
	// FitMargin is the margin used by FitToContent, in screen pixels.
	FitMargin float64
	Logger    *slog.Logger
}

// CardView is a card projected to screen space.
type CardView struct {
	Key    string
	Screen geometry.Rect
	World  geometry.Rect
	Active bool
}

// Board ties a collection's layout store to the camera, the gesture router
// and card manipulation. It holds no widgets, so hosts and replays share it.
// It is not safe for concurrent use; feed it from one event loop.
type Board struct {
	store  *layout.Store
	vp     *viewport.Controller
	router *gesture.Router
	opts   BoardOptions
	log    *slog.Logger

	canvas    geometry.Size
	session   *manipulate.Session
	activeKey string
}

// NewBoard returns a board over store with an identity camera.
func NewBoard(store *layout.Store, opts BoardOptions) *Board {
	if opts.HandleSize <= 0 {
		opts.HandleSize = DefaultHandleSize
	}
	l := opts.Logger
	if l == nil {
		l = applog.WithComponent("board")
	}
	vp := viewport.New()
	return &Board{
		store:  store,
		vp:     vp,
		router: gesture.NewRouter(vp),
		opts:   opts,
		log:    l.With(slog.String("collection", store.CollectionID())),
		canvas: geometry.Size{W: geometry.DefaultCanvasWidth, H: geometry.DefaultCanvasHeight},
	}
}

// Store returns the underlying layout store.
func (b *Board) Store() *layout.Store { return b.store }

// Viewport returns the camera state.
func (b *Board) Viewport() viewport.State { return b.vp.State() }

// Camera exposes the controller for hosts that drive it directly.
func (b *Board) Camera() *viewport.Controller { return b.vp }

// Canvas is the last size passed to SetCanvas.
func (b *Board) Canvas() geometry.Size { return b.canvas }

// SetCanvas records the visible surface size in screen pixels. Non-positive
// dimensions are ignored.
func (b *Board) SetCanvas(sz geometry.Size) {
	if sz.W > 0 && sz.H > 0 {
		b.canvas = sz
	}
}

// Recenter centres the content on the canvas.
func (b *Board) Recenter() { b.vp.Recenter(b.store, b.canvas) }

// FitToContent zooms so the content fills the canvas.
func (b *Board) FitToContent() { b.vp.FitToContent(b.store, b.canvas, b.opts.FitMargin) }

// Manipulating reports whether a drag or resize is running.
func (b *Board) Manipulating() bool { return b.session != nil }

// ActiveKey is the card being manipulated, if any.
func (b *Board) ActiveKey() string { return b.activeKey }

// Guides are the smart guides of the running drag, in world units.
func (b *Board) Guides() []geometry.GuideLine {
	if b.session == nil {
		return nil
	}
	return b.session.Guides()
}

// Cursor is the cursor hint for the surface.
func (b *Board) Cursor() string {
	if b.session != nil {
		return b.session.Cursor()
	}
	return b.router.Cursor()
}

// HoverCursor is the cursor to show for a pointer hovering at screen point p.
func (b *Board) HoverCursor(p geometry.Pt) string {
	if c := b.Cursor(); c != gesture.CursorDefault {
		return c
	}
	key, dir := b.HitTest(p)
	switch {
	case key == "":
		return gesture.CursorDefault
	case dir != "":
		return dir.Cursor()
	default:
		return "move"
	}
}

// HitTest returns the topmost card under screen point p and, when p lies in
// the card's edge zone, the resize handle it touches.
func (b *Board) HitTest(p geometry.Pt) (string, manipulate.Direction) {
	keys := b.store.Keys()
	for i := len(keys) - 1; i >= 0; i-- {
		r, ok := b.store.Rect(keys[i])
		if !ok || !r.Finite() {
			continue
		}
		sr := b.vp.WorldRectToScreen(r)
		if !sr.Contains(p) {
			continue
		}
		return keys[i], b.handleAt(sr, p)
	}
	return "", ""
}

func (b *Board) handleAt(sr geometry.Rect, p geometry.Pt) manipulate.Direction {
	h := b.opts.HandleSize
	// Tiny cards on screen keep a drag zone in the middle.
	if sr.Width < 3*h || sr.Height < 3*h {
		h = min(sr.Width, sr.Height) / 4
	}
	var sb strings.Builder
	switch {
	case p.Y-sr.Y < h:
		sb.WriteByte('n')
	case sr.Y+sr.Height-p.Y < h:
		sb.WriteByte('s')
	}
	switch {
	case p.X-sr.X < h:
		sb.WriteByte('w')
	case sr.X+sr.Width-p.X < h:
		sb.WriteByte('e')
	}
	return manipulate.Direction(sb.String())
}

// Cards lists every card in screen space in stacking order. The card under
// manipulation reports its live rectangle.
func (b *Board) Cards() []CardView {
	keys := b.store.Keys()
	out := make([]CardView, 0, len(keys))
	for _, k := range keys {
		r, ok := b.store.Rect(k)
		if !ok || !r.Finite() {
			continue
		}
		active := b.session != nil && k == b.activeKey
		if active {
			r = b.session.Live()
		}
		out = append(out, CardView{Key: k, World: r, Screen: b.vp.WorldRectToScreen(r), Active: active})
	}
	return out
}

// Handle processes one input event. Pointer-downs on a card start a drag or
// resize; everything else goes to the gesture router.
func (b *Board) Handle(e gesture.Event) gesture.Result {
	if b.session != nil {
		if res, ok := b.handleSession(e); ok {
			return res
		}
	}

	switch e.Kind {
	case gesture.KeyDown:
		if res, ok := b.handleKey(e); ok {
			return res
		}
	case gesture.PointerDown:
		if e.Target != gesture.TargetEditable {
			if key, dir := b.HitTest(e.Pos); key != "" {
				e.Target = gesture.TargetItem
				if b.canManipulate(e) {
					return b.begin(e, key, dir)
				}
			}
		}
	}
	return b.router.Handle(e)
}

func (b *Board) canManipulate(e gesture.Event) bool {
	if e.PointerType == gesture.Touch {
		return false
	}
	if e.PointerType == gesture.Mouse && e.Button != gesture.ButtonPrimary {
		return false
	}
	st := b.router.State()
	return !st.Space && !st.Panning && !st.Pinching
}

func (b *Board) begin(e gesture.Event, key string, dir manipulate.Direction) gesture.Result {
	r, _ := b.store.Rect(key)
	opts := manipulate.Options{Scale: b.vp.Scale()}
	if dir == "" {
		opts.Snap = b.opts.Snap
		if opts.Snap != nil {
			opts.Anchors = b.anchors(key)
		}
		b.session = manipulate.BeginDrag(e.PointerID, e.Pos, r, opts)
	} else {
		s, err := manipulate.BeginResize(e.PointerID, e.Pos, r, dir, opts)
		if err != nil {
			b.log.Debug("resize rejected", slog.String("key", key), slog.Any("err", err))
			return gesture.Result{Cursor: b.Cursor()}
		}
		b.session = s
	}
	b.activeKey = key
	return gesture.Result{Handled: true, Cursor: b.session.Cursor()}
}

func (b *Board) anchors(moving string) []geometry.Anchor {
	snap := b.store.Snapshot()
	out := make([]geometry.Anchor, 0, len(snap))
	for k, r := range snap {
		if k == moving || !r.Finite() {
			continue
		}
		out = append(out, geometry.Anchor{Rect: r, Weight: 1})
	}
	return out
}

// handleSession routes events of the manipulating pointer. Other events fall
// through to the normal path.
func (b *Board) handleSession(e gesture.Event) (gesture.Result, bool) {
	if e.PointerID != b.session.PointerID() {
		return gesture.Result{}, false
	}
	switch e.Kind {
	case gesture.PointerMove:
		b.session.Move(e.PointerID, e.Pos)
		return gesture.Result{Handled: true, Cursor: b.session.Cursor()}, true
	case gesture.PointerUp:
		if r, ok := b.session.End(e.PointerID); ok {
			key := b.activeKey
			if !b.store.SetRect(key, r) {
				b.log.Debug("dropped commit for unknown card", slog.String("key", key))
			}
		}
		b.endSession()
		return gesture.Result{Handled: true, Cursor: b.Cursor()}, true
	case gesture.PointerCancel:
		b.endSession()
		return gesture.Result{Handled: true, Cursor: b.Cursor()}, true
	}
	return gesture.Result{}, false
}

func (b *Board) endSession() {
	b.session = nil
	b.activeKey = ""
}

// handleKey runs the board shortcuts: undo, redo and camera reset.
func (b *Board) handleKey(e gesture.Event) (gesture.Result, bool) {
	if !(e.Ctrl || e.Meta) || e.Target == gesture.TargetEditable {
		return gesture.Result{}, false
	}
	switch e.Key {
	case "z":
		b.store.Undo()
	case "Z", "y", "Y":
		b.store.Redo()
	case "0":
		b.vp.Reset()
		b.Recenter()
	default:
		return gesture.Result{}, false
	}
	return gesture.Result{Handled: true, Cursor: b.Cursor()}, true
}

// Detach ends every running gesture without committing.
func (b *Board) Detach() {
	b.endSession()
	b.router.Detach()
}
