/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package geometry

// Breakpoint is a coarse canvas width class. It only matters when reading the
// deprecated per-breakpoint layout payload; nothing is ever written per class.
type Breakpoint string

const (
	BreakpointXS Breakpoint = "xs"
	BreakpointSM Breakpoint = "sm"
	BreakpointMD Breakpoint = "md"
	BreakpointLG Breakpoint = "lg"
)

// FallbackOrder lists breakpoints from largest to smallest. Larger layouts are
// the better default when the exact canvas size is unknown.
var FallbackOrder = []Breakpoint{BreakpointLG, BreakpointMD, BreakpointSM, BreakpointXS}

// ClassifyBreakpoint maps a canvas pixel width to its class.
// Non-finite widths are treated as DefaultCanvasWidth.
func ClassifyBreakpoint(width float64) Breakpoint {
	if !finite(width) {
		width = DefaultCanvasWidth
	}
	switch {
	case width < 480:
		return BreakpointXS
	case width < 768:
		return BreakpointSM
	case width < 1024:
		return BreakpointMD
	default:
		return BreakpointLG
	}
}

// Valid reports whether b is one of the four known classes.
func (b Breakpoint) Valid() bool {
	switch b {
	case BreakpointXS, BreakpointSM, BreakpointMD, BreakpointLG:
		return true
	}
	return false
}
