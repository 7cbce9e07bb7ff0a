/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package geometry holds the world-space primitives of the collection canvas:
// card rectangles, bounds, scale clamping and canvas width classes.
// Everything here is pure and safe to call from input handlers every frame.
package geometry

import "math"

// Card and canvas constants shared by placement, sanitization and the viewport.
const (
	MinWidth  = 280.0
	MinHeight = 200.0

	DefaultGap          = 16.0
	DefaultCanvasWidth  = 1200.0
	DefaultCanvasHeight = 700.0

	MinScale = 0.25
	MaxScale = 3.0
)

// Pt is a 2D point (world or screen space depending on context).
type Pt struct{ X, Y float64 }

func (p Pt) Add(o Pt) Pt { return Pt{p.X + o.X, p.Y + o.Y} }
func (p Pt) Sub(o Pt) Pt { return Pt{p.X - o.X, p.Y - o.Y} }
func (p Pt) Scale(s float64) Pt { return Pt{p.X * s, p.Y * s} }
func (p Pt) Mid(o Pt) Pt { return Pt{(p.X + o.X) / 2, (p.Y + o.Y) / 2} }
func (p Pt) Dist(o Pt) float64 { return math.Hypot(o.X-p.X, o.Y-p.Y) }
func (p Pt) Finite() bool { return finite(p.X) && finite(p.Y) }
func (p Pt) Equal(o Pt, eps float64) bool {
	return math.Abs(p.X-o.X) <= eps && math.Abs(p.Y-o.Y) <= eps
}

// Size is a width/height pair, typically the visible canvas in screen pixels.
type Size struct{ W, H float64 }

// Rect is an axis-aligned card rectangle in world units.
// A NaN field means "missing" and is repaired by SanitizeRect.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func R(x, y, w, h float64) Rect { return Rect{X: x, Y: y, Width: w, Height: h} }

// Missing returns a rectangle with every field unset.
func Missing() Rect { return Rect{X: math.NaN(), Y: math.NaN(), Width: math.NaN(), Height: math.NaN()} }

func (r Rect) Min() Pt { return Pt{r.X, r.Y} }
func (r Rect) Max() Pt { return Pt{r.X + r.Width, r.Y + r.Height} }
func (r Rect) Center() Pt { return Pt{r.X + r.Width/2, r.Y + r.Height/2} }

func (r Rect) Contains(p Pt) bool {
	return p.X >= r.X && p.Y >= r.Y && p.X <= r.X+r.Width && p.Y <= r.Y+r.Height
}

// Overlaps reports whether the interiors of r and o intersect; touching edges do not count.
func (r Rect) Overlaps(o Rect) bool {
	return r.X < o.X+o.Width && o.X < r.X+r.Width && r.Y < o.Y+o.Height && o.Y < r.Y+r.Height
}

// Union returns the minimal rect containing both.
func (r Rect) Union(o Rect) Rect {
	minX := math.Min(r.X, o.X)
	minY := math.Min(r.Y, o.Y)
	maxX := math.Max(r.X+r.Width, o.X+o.Width)
	maxY := math.Max(r.Y+r.Height, o.Y+o.Height)
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Finite reports whether all four fields are finite numbers.
func (r Rect) Finite() bool {
	return finite(r.X) && finite(r.Y) && finite(r.Width) && finite(r.Height)
}

// SanitizeRect repairs a possibly malformed rectangle. Missing or non-finite
// coordinates fall back to gap, missing sizes to the card minimum, and sizes
// are floored at the minimum. The result always satisfies the card invariants
// and SanitizeRect(SanitizeRect(r)) == SanitizeRect(r).
func SanitizeRect(r Rect, gap float64) Rect {
	return Rect{
		X:      orDefault(r.X, gap),
		Y:      orDefault(r.Y, gap),
		Width:  math.Max(orDefault(r.Width, MinWidth), MinWidth),
		Height: math.Max(orDefault(r.Height, MinHeight), MinHeight),
	}
}

// Bounds is the world-space bounding box of a set of cards.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

func (b Bounds) Center() Pt { return Pt{(b.MinX + b.MaxX) / 2, (b.MinY + b.MaxY) / 2} }
func (b Bounds) Width() float64 { return b.MaxX - b.MinX }
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }

// ComputeBounds folds all rectangles into a bounding box. Entries with a
// non-finite field are skipped. ok is false when nothing valid remains.
func ComputeBounds(rects map[string]Rect) (b Bounds, ok bool) {
	if len(rects) == 0 {
		return Bounds{}, false
	}
	b = Bounds{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, r := range rects {
		if !r.Finite() {
			continue
		}
		b.MinX = math.Min(b.MinX, r.X)
		b.MinY = math.Min(b.MinY, r.Y)
		b.MaxX = math.Max(b.MaxX, r.X+r.Width)
		b.MaxY = math.Max(b.MaxY, r.Y+r.Height)
	}
	if !finite(b.MinX) || !finite(b.MinY) || !finite(b.MaxX) || !finite(b.MaxY) {
		return Bounds{}, false
	}
	return b, true
}

// ClampScale limits a zoom factor to [MinScale, MaxScale]. NaN maps to MinScale.
func ClampScale(v float64) float64 {
	if math.IsNaN(v) {
		return MinScale
	}
	return math.Min(MaxScale, math.Max(MinScale, v))
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func orDefault(v, def float64) float64 {
	if finite(v) {
		return v
	}
	return def
}

// FloatRound rounds v to n decimal places deterministically.
func FloatRound(v float64, places int) float64 {
	if places < 0 {
		return v
	}
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
