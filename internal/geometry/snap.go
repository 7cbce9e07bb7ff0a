/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package geometry

// Snapping of a dragged card against its neighbours. UI-agnostic and
// deterministic so it can be unit tested without a canvas.

import "math"

// SnapOptions controls which alignments are considered.
type SnapOptions struct {
	// Threshold is the maximum world distance at which snapping occurs.
	// Zero means 6.
	Threshold     float64
	SnapToEdges   bool
	SnapToCenters bool
}

// Anchor is a static card the moving card may align with.
// Higher Weight wins ties; use 1 when unsure.
type Anchor struct {
	Rect   Rect
	Weight float64
}

// Orientation of a guide line.
type Orientation string

const (
	Vertical   Orientation = "vertical"
	Horizontal Orientation = "horizontal"
)

// GuideLine describes a visual guide produced by a snap.
// Position is x for vertical guides and y for horizontal ones.
type GuideLine struct {
	Orientation Orientation
	Kind        string // "edge" or "center"
	Position    float64
	From, To    Pt
}

type axisCandidate struct {
	delta float64
	dist  float64
	guide GuideLine
	found bool
}

func (c *axisCandidate) consider(delta, threshold, weight float64, g GuideLine) {
	dist := math.Abs(delta)
	if dist > threshold {
		return
	}
	if !c.found || dist/math.Max(1, weight) < c.dist {
		c.delta, c.dist, c.guide, c.found = delta, dist, g, true
	}
}

// ComputeSmartGuides snaps moving against anchors independently on X and Y
// and returns the adjusted rectangle with the guides to draw.
func ComputeSmartGuides(moving Rect, anchors []Anchor, opts SnapOptions) (Rect, []GuideLine) {
	if opts.Threshold <= 0 {
		opts.Threshold = 6
	}
	var bx, by axisCandidate

	mL, mR, mCX := moving.X, moving.X+moving.Width, moving.X+moving.Width/2
	mT, mB, mCY := moving.Y, moving.Y+moving.Height, moving.Y+moving.Height/2

	for _, a := range anchors {
		aL, aR, aCX := a.Rect.X, a.Rect.X+a.Rect.Width, a.Rect.X+a.Rect.Width/2
		aT, aB, aCY := a.Rect.Y, a.Rect.Y+a.Rect.Height, a.Rect.Y+a.Rect.Height/2
		w := a.Weight

		if opts.SnapToEdges {
			bx.consider(mL-aL, opts.Threshold, w, vguide(aL, moving, a.Rect, "edge"))
			bx.consider(mR-aR, opts.Threshold, w, vguide(aR, moving, a.Rect, "edge"))
			bx.consider(mL-aR, opts.Threshold, w, vguide(aR, moving, a.Rect, "edge"))
			bx.consider(mR-aL, opts.Threshold, w, vguide(aL, moving, a.Rect, "edge"))

			by.consider(mT-aT, opts.Threshold, w, hguide(aT, moving, a.Rect, "edge"))
			by.consider(mB-aB, opts.Threshold, w, hguide(aB, moving, a.Rect, "edge"))
			by.consider(mT-aB, opts.Threshold, w, hguide(aB, moving, a.Rect, "edge"))
			by.consider(mB-aT, opts.Threshold, w, hguide(aT, moving, a.Rect, "edge"))
		}
		if opts.SnapToCenters {
			bx.consider(mCX-aCX, opts.Threshold, w, vguide(aCX, moving, a.Rect, "center"))
			by.consider(mCY-aCY, opts.Threshold, w, hguide(aCY, moving, a.Rect, "center"))
		}
	}

	snapped := moving
	var guides []GuideLine
	if bx.found {
		snapped.X = FloatRound(moving.X-bx.delta, 3)
		guides = append(guides, bx.guide)
	}
	if by.found {
		snapped.Y = FloatRound(moving.Y-by.delta, 3)
		guides = append(guides, by.guide)
	}
	return snapped, guides
}

func vguide(x float64, a, b Rect, kind string) GuideLine {
	x = FloatRound(x, 3)
	return GuideLine{
		Orientation: Vertical,
		Kind:        kind,
		Position:    x,
		From:        Pt{x, math.Min(a.Y, b.Y)},
		To:          Pt{x, math.Max(a.Y+a.Height, b.Y+b.Height)},
	}
}

func hguide(y float64, a, b Rect, kind string) GuideLine {
	y = FloatRound(y, 3)
	return GuideLine{
		Orientation: Horizontal,
		Kind:        kind,
		Position:    y,
		From:        Pt{math.Min(a.X, b.X), y},
		To:          Pt{math.Max(a.X+a.Width, b.X+b.Width), y},
	}
}
