/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package manipulate

import (
	"errors"
	"testing"

	"dashpoint/internal/geometry"

	"pgregory.net/rapid"
)

func pt(x, y float64) geometry.Pt { return geometry.Pt{X: x, Y: y} }

func TestDrag_DividesByScale(t *testing.T) {
	s := BeginDrag(1, pt(100, 100), geometry.R(50, 50, 320, 240), Options{Scale: 2})
	r, ok := s.Move(1, pt(140, 80))
	if !ok || r != geometry.R(70, 40, 320, 240) {
		t.Fatalf("move = %+v %v", r, ok)
	}
	if _, ok := s.Move(2, pt(0, 0)); ok {
		t.Fatalf("other pointer must be ignored")
	}
	if s.Cursor() != "move" || s.Resizing() {
		t.Fatalf("unexpected session kind")
	}
	final, ok := s.End(1)
	if !ok || final != geometry.R(70, 40, 320, 240) {
		t.Fatalf("end = %+v %v", final, ok)
	}
	if _, ok := s.Move(1, pt(500, 500)); ok {
		t.Fatalf("move after end must be ignored")
	}
	if _, ok := s.End(1); ok {
		t.Fatalf("second end must be ignored")
	}
}

func TestDrag_NonPositiveScale(t *testing.T) {
	s := BeginDrag(1, pt(0, 0), geometry.R(0, 0, 300, 300), Options{Scale: -3})
	if r, _ := s.Move(1, pt(10, 10)); r.X != 10 || r.Y != 10 {
		t.Fatalf("scale should default to 1: %+v", r)
	}
}

func TestResize_Directions(t *testing.T) {
	start := geometry.R(100, 100, 400, 300)
	cases := []struct {
		dir  Direction
		move geometry.Pt
		want geometry.Rect
	}{
		{E, pt(50, 50), geometry.R(100, 100, 450, 300)},
		{S, pt(50, 50), geometry.R(100, 100, 400, 350)},
		{W, pt(50, 50), geometry.R(150, 100, 350, 300)},
		{N, pt(50, 50), geometry.R(100, 150, 400, 250)},
		{SE, pt(50, 50), geometry.R(100, 100, 450, 350)},
		{NW, pt(-50, -50), geometry.R(50, 50, 450, 350)},
		{NE, pt(20, -20), geometry.R(100, 80, 420, 320)},
		{SW, pt(-20, 20), geometry.R(80, 100, 420, 320)},
	}
	for _, tc := range cases {
		t.Run(string(tc.dir), func(t *testing.T) {
			s, err := BeginResize(7, pt(0, 0), start, tc.dir, Options{})
			if err != nil {
				t.Fatalf("begin: %v", err)
			}
			if got, _ := s.Move(7, tc.move); got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
			if s.Cursor() != string(tc.dir)+"-resize" {
				t.Fatalf("cursor = %q", s.Cursor())
			}
		})
	}
}

func TestResize_MinimumKeepsOppositeEdge(t *testing.T) {
	s, _ := BeginResize(1, pt(0, 0), geometry.R(100, 100, 400, 300), NW, Options{})
	got, _ := s.Move(1, pt(1000, 1000))
	want := geometry.R(100+400-geometry.MinWidth, 100+300-geometry.MinHeight, geometry.MinWidth, geometry.MinHeight)
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	s, _ = BeginResize(1, pt(0, 0), geometry.R(0, 0, 400, 300), SE, Options{})
	if got, _ := s.Move(1, pt(-1000, -1000)); got != geometry.R(0, 0, geometry.MinWidth, geometry.MinHeight) {
		t.Fatalf("got %+v", got)
	}
}

func TestBeginResize_InvalidDirection(t *testing.T) {
	if _, err := BeginResize(1, pt(0, 0), geometry.R(0, 0, 300, 300), "up", Options{}); !errors.Is(err, ErrInvalidDirection) {
		t.Fatalf("err = %v", err)
	}
	if d, err := ParseDirection(" SE "); err != nil || d != SE {
		t.Fatalf("parse = %q %v", d, err)
	}
}

func TestContainer_Constraint(t *testing.T) {
	container := geometry.Size{W: 1000, H: 800} // 500x400 world at scale 2
	s := BeginDrag(1, pt(0, 0), geometry.R(0, 0, 300, 200), Options{Scale: 2, Container: &container})
	got, _ := s.Move(1, pt(2000, -2000))
	if got != geometry.R(200, 0, 300, 200) {
		t.Fatalf("got %+v", got)
	}

	r, _ := BeginResize(1, pt(0, 0), geometry.R(0, 0, 300, 200), SE, Options{Scale: 2, Container: &container})
	got, _ = r.Move(1, pt(5000, 5000))
	if got != geometry.R(0, 0, 500, 400) {
		t.Fatalf("resize got %+v", got)
	}
}

func TestContainer_Invariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		scale := rapid.Float64Range(geometry.MinScale, geometry.MaxScale).Draw(t, "scale")
		c := geometry.Size{
			W: rapid.Float64Range(geometry.MinWidth*geometry.MaxScale, 4000).Draw(t, "cw"),
			H: rapid.Float64Range(geometry.MinHeight*geometry.MaxScale, 4000).Draw(t, "ch"),
		}
		dir := rapid.SampledFrom(Directions).Draw(t, "dir")
		s, err := BeginResize(1, pt(0, 0), geometry.R(10, 10, 300, 220), dir, Options{Scale: scale, Container: &c})
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		p := pt(rapid.Float64Range(-5000, 5000).Draw(t, "px"), rapid.Float64Range(-5000, 5000).Draw(t, "py"))
		s.Move(1, p)
		r, _ := s.End(1)
		if r.Width < geometry.MinWidth || r.Height < geometry.MinHeight {
			t.Fatalf("below minimum: %+v", r)
		}
		if r.X < 0 || r.Y < 0 || r.X+r.Width > c.W/scale+1e-9 || r.Y+r.Height > c.H/scale+1e-9 {
			t.Fatalf("outside container %v/%v: %+v", c, scale, r)
		}
	})
}

func TestDrag_StopsAtOrigin(t *testing.T) {
	s := BeginDrag(1, pt(200, 150), geometry.R(100, 50, 300, 200), Options{})
	got, _ := s.Move(1, pt(-300, -300))
	if got != geometry.R(0, 0, 300, 200) {
		t.Fatalf("got %+v", got)
	}
	s, _ = BeginResize(1, pt(0, 0), geometry.R(100, 50, 300, 200), NW, Options{})
	got, _ = s.Move(1, pt(-500, -500))
	if got != geometry.R(0, 0, 400, 250) {
		t.Fatalf("resize past origin kept %+v, want the east and south edges fixed", got)
	}
}

func TestNoContainer_NonNegative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		scale := rapid.Float64Range(geometry.MinScale, geometry.MaxScale).Draw(t, "scale")
		start := geometry.R(
			rapid.Float64Range(0, 2000).Draw(t, "x"),
			rapid.Float64Range(0, 2000).Draw(t, "y"),
			rapid.Float64Range(geometry.MinWidth, 800).Draw(t, "w"),
			rapid.Float64Range(geometry.MinHeight, 800).Draw(t, "h"),
		)
		var s *Session
		if rapid.Bool().Draw(t, "drag") {
			s = BeginDrag(1, pt(0, 0), start, Options{Scale: scale})
		} else {
			var err error
			s, err = BeginResize(1, pt(0, 0), start, rapid.SampledFrom(Directions).Draw(t, "dir"), Options{Scale: scale})
			if err != nil {
				t.Fatalf("begin: %v", err)
			}
		}
		s.Move(1, pt(rapid.Float64Range(-20000, 20000).Draw(t, "px"), rapid.Float64Range(-20000, 20000).Draw(t, "py")))
		r, _ := s.End(1)
		if r.X < 0 || r.Y < 0 || r.Width < geometry.MinWidth || r.Height < geometry.MinHeight {
			t.Fatalf("invalid rect %+v", r)
		}
	})
}

func TestDrag_Snaps(t *testing.T) {
	anchors := []geometry.Anchor{{Rect: geometry.R(0, 0, 300, 200), Weight: 1}}
	snap := &geometry.SnapOptions{SnapToEdges: true}
	s := BeginDrag(1, pt(0, 0), geometry.R(400, 500, 300, 200), Options{Snap: snap, Anchors: anchors})
	got, _ := s.Move(1, pt(-96, 0)) // left edge at 304, 4 from the anchor's right edge
	if got.X != 300 {
		t.Fatalf("expected snap to x=300, got %+v", got)
	}
	if len(s.Guides()) != 1 || s.Guides()[0].Orientation != geometry.Vertical {
		t.Fatalf("guides = %+v", s.Guides())
	}
	s.End(1)
	if s.Guides() != nil {
		t.Fatalf("guides should clear on end")
	}
}
