/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders a collection's canvas layout as a static overview
// (PDF, PNG or SVG).
package export

import (
	"errors"
	"image/color"
	"sort"
	"strings"

	"dashpoint/internal/codec"
	"dashpoint/internal/domain"
	"dashpoint/internal/geometry"
)

// ErrEmptyLayout is returned when no card has a finite rectangle.
var ErrEmptyLayout = errors.New("layout has no cards to export")

// DefaultMargin is the blank border around the cards, in world units.
const DefaultMargin = 40.0

// Card is one rectangle of the overview, already translated into page space.
type Card struct {
	Key   string
	Type  string
	Label string
	Rect  geometry.Rect
}

// Overview is a page-space snapshot of a layout. The page origin is the
// top-left corner; cards are shifted so the content bounds start at Margin.
type Overview struct {
	Title  string
	Width  float64
	Height float64
	Margin float64
	Cards  []Card
}

// BuildOverview translates layouts into page space. labels maps item keys
// to display titles; missing entries fall back to the key. Cards are sorted
// top-to-bottom, then left-to-right, then by key.
func BuildOverview(title string, layouts codec.LayoutMap, labels map[string]string, margin float64) (Overview, error) {
	if margin < 0 {
		margin = 0
	}
	b, ok := geometry.ComputeBounds(layouts)
	if !ok {
		return Overview{}, ErrEmptyLayout
	}
	ov := Overview{
		Title:  title,
		Width:  b.Width() + 2*margin,
		Height: b.Height() + 2*margin,
		Margin: margin,
	}
	for k, r := range layouts {
		if !r.Finite() {
			continue
		}
		label := strings.TrimSpace(labels[k])
		if label == "" {
			label = k
		}
		ov.Cards = append(ov.Cards, Card{
			Key:   k,
			Type:  keyType(k),
			Label: label,
			Rect: geometry.Rect{
				X:      r.X - b.MinX + margin,
				Y:      r.Y - b.MinY + margin,
				Width:  r.Width,
				Height: r.Height,
			},
		})
	}
	sort.Slice(ov.Cards, func(i, j int) bool {
		a, c := ov.Cards[i].Rect, ov.Cards[j].Rect
		if a.Y != c.Y {
			return a.Y < c.Y
		}
		if a.X != c.X {
			return a.X < c.X
		}
		return ov.Cards[i].Key < ov.Cards[j].Key
	})
	return ov, nil
}

// Labels collects display titles for items keyed the way the layout store
// keys them.
func Labels(items []domain.Item, key func(domain.Item) string) map[string]string {
	out := make(map[string]string, len(items))
	for _, it := range items {
		if k := key(it); k != "" {
			out[k] = it.Title()
		}
	}
	return out
}

func keyType(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return ""
}

// Palette colors cards by item type.
type Palette struct {
	Stroke     color.RGBA
	Guide      color.RGBA
	Background color.RGBA
	Text       color.RGBA
	Fill       map[string]color.RGBA
	Default    color.RGBA
}

// DefaultPalette is a light palette with one tint per item type.
func DefaultPalette() Palette {
	return Palette{
		Stroke:     color.RGBA{R: 55, G: 65, B: 81, A: 255},
		Guide:      color.RGBA{R: 255, G: 0, B: 0, A: 255},
		Background: color.RGBA{R: 255, G: 255, B: 255, A: 255},
		Text:       color.RGBA{R: 17, G: 24, B: 39, A: 255},
		Fill: map[string]color.RGBA{
			domain.ItemTypeYouTube: {R: 254, G: 226, B: 226, A: 255},
			domain.ItemTypeFile:    {R: 219, G: 234, B: 254, A: 255},
			domain.ItemTypePlanner: {R: 220, G: 252, B: 231, A: 255},
			domain.ItemTypeContent: {R: 254, G: 249, B: 195, A: 255},
		},
		Default: color.RGBA{R: 243, G: 244, B: 246, A: 255},
	}
}

func (p Palette) fill(itemType string) color.RGBA {
	if c, ok := p.Fill[itemType]; ok {
		return c
	}
	return p.Default
}

func (p Palette) orDefault() Palette {
	if p.Fill == nil && p.Stroke == (color.RGBA{}) {
		return DefaultPalette()
	}
	return p
}
