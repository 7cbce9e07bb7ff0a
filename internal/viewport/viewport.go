/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package viewport implements the pan/zoom camera of the collection canvas.
//
// screen = world*Scale + Offset. All operations are pure arithmetic on the
// controller state; nothing here performs I/O, so handlers may call it on
// every input frame. A Controller is not safe for concurrent use.
package viewport

import (
	"math"

	"dashpoint/internal/geometry"
)

// WheelZoomRate converts wheel delta to an exponential zoom factor.
const WheelZoomRate = 0.002

// State is the camera transform.
type State struct {
	Scale  float64
	Offset geometry.Pt
}

// Identity is the initial camera.
var Identity = State{Scale: 1}

// BoundsSource provides the world bounding box of the content, e.g. a layout store.
type BoundsSource interface {
	Bounds() (geometry.Bounds, bool)
}

type panSession struct {
	start       geometry.Pt
	startOffset geometry.Pt
}

type pinchSession struct {
	startDist  float64
	startScale float64
	world      geometry.Pt // world point under the midpoint at start
}

// Controller owns the camera state and the running pan or pinch gesture.
type Controller struct {
	st    State
	pan   *panSession
	pinch *pinchSession
}

// New returns a controller at the identity transform.
func New() *Controller { return &Controller{st: Identity} }

// State returns the current transform.
func (c *Controller) State() State { return c.st }

// Scale and Offset are shorthands for State().Scale and State().Offset.
func (c *Controller) Scale() float64 { return c.st.Scale }

func (c *Controller) Offset() geometry.Pt { return c.st.Offset }

// Set replaces the transform; the scale is clamped.
func (c *Controller) Set(s State) {
	c.st = State{Scale: geometry.ClampScale(s.Scale), Offset: s.Offset}
}

// Reset returns to the identity transform and drops any gesture.
func (c *Controller) Reset() {
	c.st = Identity
	c.pan = nil
	c.pinch = nil
}

func (c *Controller) safeScale() float64 {
	if c.st.Scale > 0 && !math.IsInf(c.st.Scale, 0) {
		return c.st.Scale
	}
	return 1
}

// ScreenToWorld maps a canvas-relative screen point to world space.
func (c *Controller) ScreenToWorld(p geometry.Pt) geometry.Pt {
	return p.Sub(c.st.Offset).Scale(1 / c.safeScale())
}

// WorldToScreen maps a world point to canvas-relative screen space.
func (c *Controller) WorldToScreen(p geometry.Pt) geometry.Pt {
	return p.Scale(c.st.Scale).Add(c.st.Offset)
}

// WorldRectToScreen maps a card rectangle to screen space.
func (c *Controller) WorldRectToScreen(r geometry.Rect) geometry.Rect {
	p := c.WorldToScreen(r.Min())
	return geometry.R(p.X, p.Y, r.Width*c.st.Scale, r.Height*c.st.Scale)
}

// ZoomAt multiplies the scale by f keeping the world point under the screen
// point p fixed. Non-finite or non-positive factors are ignored.
func (c *Controller) ZoomAt(p geometry.Pt, f float64) {
	if !(f > 0) || math.IsInf(f, 0) || !p.Finite() {
		return
	}
	w := c.ScreenToWorld(p)
	next := geometry.ClampScale(c.safeScale() * f)
	c.st = State{Scale: next, Offset: p.Sub(w.Scale(next))}
}

// WheelZoom zooms around p by exp(-deltaY*WheelZoomRate).
func (c *Controller) WheelZoom(p geometry.Pt, deltaY float64) {
	if math.IsNaN(deltaY) {
		return
	}
	c.ZoomAt(p, math.Exp(-deltaY*WheelZoomRate))
}

// PanStart begins a pan at screen point p.
func (c *Controller) PanStart(p geometry.Pt) {
	c.pan = &panSession{start: p, startOffset: c.st.Offset}
}

// PanMove sets the offset to the start offset plus the total pointer delta.
func (c *Controller) PanMove(p geometry.Pt) {
	if c.pan == nil || !p.Finite() {
		return
	}
	c.st.Offset = c.pan.startOffset.Add(p.Sub(c.pan.start))
}

// PanEnd finishes the pan.
func (c *Controller) PanEnd() { c.pan = nil }

// Panning reports whether a pan is active.
func (c *Controller) Panning() bool { return c.pan != nil }

// PinchStart snapshots the distance, scale and the world point under the
// midpoint of the two touches. Any pan is cancelled.
func (c *Controller) PinchStart(p1, p2 geometry.Pt) {
	c.pan = nil
	dist := p1.Dist(p2)
	if !(dist > 0) {
		dist = 1
	}
	scale := c.safeScale()
	mid := p1.Mid(p2)
	c.pinch = &pinchSession{
		startDist:  dist,
		startScale: scale,
		world:      mid.Sub(c.st.Offset).Scale(1 / scale),
	}
}

// PinchMove rescales from the start snapshot and keeps the start world point
// under the current midpoint.
func (c *Controller) PinchMove(p1, p2 geometry.Pt) {
	if c.pinch == nil || !p1.Finite() || !p2.Finite() {
		return
	}
	dist := p1.Dist(p2)
	if !(dist > 0) {
		dist = 1
	}
	next := geometry.ClampScale(c.pinch.startScale * dist / c.pinch.startDist)
	mid := p1.Mid(p2)
	c.st = State{Scale: next, Offset: mid.Sub(c.pinch.world.Scale(next))}
}

// PinchEnd finishes the pinch.
func (c *Controller) PinchEnd() { c.pinch = nil }

// Pinching reports whether a pinch is active.
func (c *Controller) Pinching() bool { return c.pinch != nil }

// Recenter moves the centre of the content bounds to the centre of the
// canvas at the current scale. Without content the offset returns to the origin.
func (c *Controller) Recenter(src BoundsSource, canvas geometry.Size) {
	var (
		b  geometry.Bounds
		ok bool
	)
	if src != nil {
		b, ok = src.Bounds()
	}
	if !ok {
		c.st.Offset = geometry.Pt{}
		return
	}
	s := c.safeScale()
	center := b.Center()
	c.st.Offset = geometry.Pt{X: canvas.W/2 - center.X*s, Y: canvas.H/2 - center.Y*s}
}

// FitToContent picks the largest scale at which the bounds plus margin fit the
// canvas, then recenters.
func (c *Controller) FitToContent(src BoundsSource, canvas geometry.Size, margin float64) {
	if src == nil {
		c.Recenter(nil, canvas)
		return
	}
	b, ok := src.Bounds()
	if ok && b.Width() > 0 && b.Height() > 0 {
		sx := (canvas.W - 2*margin) / b.Width()
		sy := (canvas.H - 2*margin) / b.Height()
		c.st.Scale = geometry.ClampScale(math.Min(sx, sy))
	}
	c.Recenter(src, canvas)
}

// OnPanStart and the following methods adapt the controller to the gesture
// router's sink interfaces.
func (c *Controller) OnPanStart(p geometry.Pt) { c.PanStart(p) }
func (c *Controller) OnPanMove(p geometry.Pt) { c.PanMove(p) }
func (c *Controller) OnPanEnd() { c.PanEnd() }
func (c *Controller) OnPinchStart(p1, p2 geometry.Pt) { c.PinchStart(p1, p2) }
func (c *Controller) OnPinchMove(p1, p2 geometry.Pt) { c.PinchMove(p1, p2) }
func (c *Controller) OnPinchEnd() { c.PinchEnd() }
func (c *Controller) OnWheelZoom(p geometry.Pt, dy float64) { c.WheelZoom(p, dy) }
