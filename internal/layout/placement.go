/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package layout

import (
	"math"

	"dashpoint/internal/geometry"
)

const (
	maxDefaultCardWidth = 320.0
	narrowCanvasWidth   = 480.0
	narrowCardHeight    = 220.0
	defaultCardHeight   = 240.0
)

// Grid describes the default placement grid for a canvas.
type Grid struct {
	Canvas     geometry.Size
	Gap        float64
	CardWidth  float64
	CardHeight float64
	Cols       int
}

// NewGrid derives card size and column count from the visible canvas.
// Non-positive or non-finite canvas dimensions fall back to the defaults.
func NewGrid(canvas geometry.Size, gap float64) Grid {
	if !(canvas.W > 0) || math.IsInf(canvas.W, 0) {
		canvas.W = geometry.DefaultCanvasWidth
	}
	if !(canvas.H > 0) || math.IsInf(canvas.H, 0) {
		canvas.H = geometry.DefaultCanvasHeight
	}
	cw := math.Min(maxDefaultCardWidth, math.Max(geometry.MinWidth, canvas.W-2*gap))
	ch := defaultCardHeight
	if canvas.W < narrowCanvasWidth {
		ch = narrowCardHeight
	}
	cols := int(math.Floor((canvas.W - gap) / (cw + gap)))
	if cols < 1 {
		cols = 1
	}
	return Grid{Canvas: canvas, Gap: gap, CardWidth: cw, CardHeight: ch, Cols: cols}
}

// Place returns the default rectangle of the n-th item. A cell that would
// overflow the canvas horizontally moves to the left edge; one that overflows
// vertically snaps to the top-left corner, so overflowing items may stack.
func (g Grid) Place(n int) geometry.Rect {
	col := n % g.Cols
	row := n / g.Cols
	x := float64(col)*(g.CardWidth+g.Gap) + g.Gap
	y := float64(row)*(g.CardHeight+g.Gap) + g.Gap
	if x+g.CardWidth > g.Canvas.W-g.Gap {
		x = g.Gap
	}
	if y+g.CardHeight > g.Canvas.H-g.Gap {
		x, y = g.Gap, g.Gap
	}
	return geometry.SanitizeRect(geometry.R(x, y, g.CardWidth, g.CardHeight), g.Gap)
}
