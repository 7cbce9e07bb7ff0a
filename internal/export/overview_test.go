/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"errors"
	"math"
	"testing"

	"dashpoint/internal/codec"
	"dashpoint/internal/domain"
	"dashpoint/internal/geometry"
)

func sampleLayout() codec.LayoutMap {
	return codec.LayoutMap{
		"youtube:v1": {X: 100, Y: 50, Width: 320, Height: 240},
		"file:f1":    {X: 460, Y: 50, Width: 280, Height: 200},
		"planner:p1": {X: 100, Y: 330, Width: 640, Height: 220},
	}
}

func TestBuildOverviewTranslatesToMargin(t *testing.T) {
	ov, err := BuildOverview("Board", sampleLayout(), map[string]string{"youtube:v1": "Keynote"}, 20)
	if err != nil {
		t.Fatalf("BuildOverview: %v", err)
	}
	if ov.Width != 640+40 || ov.Height != 500+40 {
		t.Fatalf("page = %vx%v", ov.Width, ov.Height)
	}
	if len(ov.Cards) != 3 {
		t.Fatalf("cards = %d", len(ov.Cards))
	}
	first := ov.Cards[0]
	if first.Key != "youtube:v1" || first.Rect.X != 20 || first.Rect.Y != 20 || first.Label != "Keynote" || first.Type != "youtube" {
		t.Fatalf("first card = %+v", first)
	}
	if ov.Cards[1].Key != "file:f1" || ov.Cards[1].Label != "file:f1" {
		t.Fatalf("second card = %+v", ov.Cards[1])
	}
	if ov.Cards[2].Key != "planner:p1" {
		t.Fatalf("order = %v", []string{ov.Cards[0].Key, ov.Cards[1].Key, ov.Cards[2].Key})
	}
}

func TestBuildOverviewSkipsNonFinite(t *testing.T) {
	m := sampleLayout()
	m["bad"] = geometry.Rect{X: math.NaN(), Y: 0, Width: 300, Height: 200}
	ov, err := BuildOverview("", m, nil, DefaultMargin)
	if err != nil {
		t.Fatalf("BuildOverview: %v", err)
	}
	if len(ov.Cards) != 3 {
		t.Fatalf("non-finite card kept: %d cards", len(ov.Cards))
	}
	if _, err := BuildOverview("", codec.LayoutMap{}, nil, 0); !errors.Is(err, ErrEmptyLayout) {
		t.Fatalf("empty layout: %v", err)
	}
}

func TestLabelsUseItemTitles(t *testing.T) {
	items := []domain.Item{
		{ItemType: domain.ItemTypeYouTube, ItemID: "v1", ItemData: []byte(`{"title":"Talk"}`)},
		{ItemType: domain.ItemTypeFile, ItemID: "f1"},
	}
	got := Labels(items, func(it domain.Item) string { return it.ItemType + ":" + it.ItemID })
	if got["youtube:v1"] != "Talk" || got["file:f1"] != "file f1" {
		t.Fatalf("labels = %v", got)
	}
}

func TestFitText(t *testing.T) {
	width := func(s string) float64 { return float64(len(s)) }
	if got := fitText("hello", 10, width); got != "hello" {
		t.Fatalf("short text changed: %q", got)
	}
	if got := fitText("hello world", 8, width); got != "hello..." {
		t.Fatalf("truncated = %q", got)
	}
	if got := fitText("hello", 0, width); got != "" {
		t.Fatalf("zero width = %q", got)
	}
}
