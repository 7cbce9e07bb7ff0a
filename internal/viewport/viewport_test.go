/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package viewport

import (
	"math"
	"testing"

	"dashpoint/internal/geometry"
	"dashpoint/internal/gesture"

	"gonum.org/v1/gonum/floats/scalar"
	"pgregory.net/rapid"
)

var (
	_ gesture.Sink      = (*Controller)(nil)
	_ gesture.WheelSink = (*Controller)(nil)
)

const tol = 1e-9

func near(a, b float64) bool { return scalar.EqualWithinAbsOrRel(a, b, tol, tol) }

func nearPt(a, b geometry.Pt) bool { return near(a.X, b.X) && near(a.Y, b.Y) }

type fixedBounds struct {
	b  geometry.Bounds
	ok bool
}

func (f fixedBounds) Bounds() (geometry.Bounds, bool) { return f.b, f.ok }

func TestNew_Identity(t *testing.T) {
	c := New()
	if c.State() != Identity || c.Scale() != 1 || c.Offset() != (geometry.Pt{}) {
		t.Fatalf("unexpected initial state: %+v", c.State())
	}
}

func TestZoomAt_KeepsAnchorFixed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := New()
		c.Set(State{
			Scale:  rapid.Float64Range(geometry.MinScale, geometry.MaxScale).Draw(t, "scale"),
			Offset: geometry.Pt{X: rapid.Float64Range(-2000, 2000).Draw(t, "ox"), Y: rapid.Float64Range(-2000, 2000).Draw(t, "oy")},
		})
		p := geometry.Pt{X: rapid.Float64Range(0, 1600).Draw(t, "px"), Y: rapid.Float64Range(0, 1000).Draw(t, "py")}
		f := rapid.Float64Range(0.05, 20).Draw(t, "factor")

		before := c.ScreenToWorld(p)
		c.ZoomAt(p, f)
		after := c.ScreenToWorld(p)
		if !nearPt(before, after) {
			t.Fatalf("anchor moved: %+v -> %+v (state %+v)", before, after, c.State())
		}
		if s := c.Scale(); s < geometry.MinScale || s > geometry.MaxScale {
			t.Fatalf("scale out of range: %v", s)
		}
	})
}

func TestZoomAt_IgnoresBadFactors(t *testing.T) {
	c := New()
	for _, f := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		c.ZoomAt(geometry.Pt{X: 10, Y: 10}, f)
	}
	if c.State() != Identity {
		t.Fatalf("state changed: %+v", c.State())
	}
}

func TestWheelZoom(t *testing.T) {
	c := New()
	c.WheelZoom(geometry.Pt{X: 100, Y: 100}, -100)
	want := math.Exp(0.2)
	if !near(c.Scale(), want) {
		t.Fatalf("scale = %v, want %v", c.Scale(), want)
	}
	// world point (100,100) stays under the cursor
	if w := c.ScreenToWorld(geometry.Pt{X: 100, Y: 100}); !nearPt(w, geometry.Pt{X: 100, Y: 100}) {
		t.Fatalf("anchor moved to %+v", w)
	}
	for i := 0; i < 100; i++ {
		c.WheelZoom(geometry.Pt{}, -500)
	}
	if c.Scale() != geometry.MaxScale {
		t.Fatalf("scale not clamped at max: %v", c.Scale())
	}
	for i := 0; i < 100; i++ {
		c.WheelZoom(geometry.Pt{}, 500)
	}
	if c.Scale() != geometry.MinScale {
		t.Fatalf("scale not clamped at min: %v", c.Scale())
	}
}

func TestPan(t *testing.T) {
	c := New()
	c.Set(State{Scale: 1, Offset: geometry.Pt{X: 5, Y: 5}})
	c.PanMove(geometry.Pt{X: 999, Y: 999}) // no session
	if c.Offset() != (geometry.Pt{X: 5, Y: 5}) {
		t.Fatalf("move without start changed offset: %+v", c.Offset())
	}
	c.PanStart(geometry.Pt{X: 10, Y: 10})
	c.PanMove(geometry.Pt{X: 20, Y: 20})
	c.PanMove(geometry.Pt{X: 30, Y: 40})
	if c.Offset() != (geometry.Pt{X: 25, Y: 35}) {
		t.Fatalf("offset = %+v, want {25 35}", c.Offset())
	}
	if !c.Panning() {
		t.Fatalf("expected panning")
	}
	c.PanEnd()
	c.PanMove(geometry.Pt{X: 0, Y: 0})
	if c.Panning() || c.Offset() != (geometry.Pt{X: 25, Y: 35}) {
		t.Fatalf("pan continued after end: %+v", c.Offset())
	}
}

func TestPinch(t *testing.T) {
	c := New()
	c.PanStart(geometry.Pt{})
	c.PinchStart(geometry.Pt{X: 100, Y: 100}, geometry.Pt{X: 200, Y: 100})
	if c.Panning() {
		t.Fatalf("pinch start must cancel pan")
	}
	c.PinchMove(geometry.Pt{X: 50, Y: 100}, geometry.Pt{X: 250, Y: 100})
	st := c.State()
	if !near(st.Scale, 2) || !nearPt(st.Offset, geometry.Pt{X: -150, Y: -100}) {
		t.Fatalf("unexpected state after pinch: %+v", st)
	}
	// the midpoint keeps the world point captured at start
	if w := c.ScreenToWorld(geometry.Pt{X: 150, Y: 100}); !nearPt(w, geometry.Pt{X: 150, Y: 100}) {
		t.Fatalf("anchor moved to %+v", w)
	}
	c.PinchEnd()
	c.PinchMove(geometry.Pt{}, geometry.Pt{X: 1})
	if c.Pinching() || !near(c.Scale(), 2) {
		t.Fatalf("pinch continued after end")
	}
}

func TestPinch_CoincidentStart(t *testing.T) {
	c := New()
	p := geometry.Pt{X: 40, Y: 40}
	c.PinchStart(p, p)
	c.PinchMove(geometry.Pt{X: 40, Y: 40}, geometry.Pt{X: 41, Y: 40})
	if !near(c.Scale(), 1) {
		t.Fatalf("scale = %v, want 1 with start distance treated as 1", c.Scale())
	}
	c.PinchMove(geometry.Pt{X: 0, Y: 0}, geometry.Pt{X: 1000, Y: 0})
	if c.Scale() != geometry.MaxScale {
		t.Fatalf("scale not clamped: %v", c.Scale())
	}
}

func TestRecenter(t *testing.T) {
	canvas := geometry.Size{W: 1200, H: 700}
	b := fixedBounds{b: geometry.Bounds{MinX: 10, MinY: 10, MaxX: 110, MaxY: 60}, ok: true}

	c := New()
	c.Recenter(b, canvas)
	if c.Offset() != (geometry.Pt{X: 540, Y: 315}) {
		t.Fatalf("offset = %+v, want {540 315}", c.Offset())
	}

	c.Set(State{Scale: 2})
	c.Recenter(b, canvas)
	if c.Offset() != (geometry.Pt{X: 480, Y: 280}) {
		t.Fatalf("offset at scale 2 = %+v, want {480 280}", c.Offset())
	}
	center := c.WorldToScreen(geometry.Pt{X: 60, Y: 35})
	if center != (geometry.Pt{X: 600, Y: 350}) {
		t.Fatalf("content centre on screen = %+v", center)
	}

	c.Recenter(fixedBounds{}, canvas)
	if c.Offset() != (geometry.Pt{}) || c.Scale() != 2 {
		t.Fatalf("empty recenter: %+v", c.State())
	}
	c.Set(State{Scale: 1, Offset: geometry.Pt{X: 3, Y: 3}})
	c.Recenter(nil, canvas)
	if c.Offset() != (geometry.Pt{}) {
		t.Fatalf("nil source recenter: %+v", c.State())
	}
}

func TestFitToContent(t *testing.T) {
	c := New()
	b := fixedBounds{b: geometry.Bounds{MinX: 0, MinY: 0, MaxX: 2400, MaxY: 700}, ok: true}
	c.FitToContent(b, geometry.Size{W: 1200, H: 700}, 0)
	if !near(c.Scale(), 0.5) {
		t.Fatalf("scale = %v, want 0.5", c.Scale())
	}
	if w := c.ScreenToWorld(geometry.Pt{X: 600, Y: 350}); !nearPt(w, geometry.Pt{X: 1200, Y: 350}) {
		t.Fatalf("centre maps to %+v", w)
	}
}

func TestScreenWorldRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := New()
		c.Set(State{
			Scale:  rapid.Float64Range(geometry.MinScale, geometry.MaxScale).Draw(t, "scale"),
			Offset: geometry.Pt{X: rapid.Float64Range(-1e4, 1e4).Draw(t, "ox"), Y: rapid.Float64Range(-1e4, 1e4).Draw(t, "oy")},
		})
		p := geometry.Pt{X: rapid.Float64Range(-1e4, 1e4).Draw(t, "x"), Y: rapid.Float64Range(-1e4, 1e4).Draw(t, "y")}
		back := c.WorldToScreen(c.ScreenToWorld(p))
		if !scalar.EqualWithinAbsOrRel(back.X, p.X, 1e-6, 1e-9) || !scalar.EqualWithinAbsOrRel(back.Y, p.Y, 1e-6, 1e-9) {
			t.Fatalf("round trip %+v -> %+v", p, back)
		}
	})
}

func TestWorldRectToScreen(t *testing.T) {
	c := New()
	c.Set(State{Scale: 0.5, Offset: geometry.Pt{X: 10, Y: 20}})
	got := c.WorldRectToScreen(geometry.R(100, 100, 320, 240))
	if got != geometry.R(60, 70, 160, 120) {
		t.Fatalf("got %+v", got)
	}
}

func TestReset(t *testing.T) {
	c := New()
	c.Set(State{Scale: 2, Offset: geometry.Pt{X: 1, Y: 1}})
	c.PanStart(geometry.Pt{})
	c.Reset()
	if c.State() != Identity || c.Panning() || c.Pinching() {
		t.Fatalf("reset incomplete: %+v", c.State())
	}
}
