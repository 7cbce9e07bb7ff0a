/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package codec converts persisted layout payloads to and from the in-memory
// layout map.
//
// Three historical shapes are readable:
//
//	flat         {"version":2,"items":{...},"meta":{...}}
//	breakpoints  {"version":2,"breakpoints":{"lg":{"items":{...}},...}}
//	legacy map   {"<key>":{"x":..,"y":..,"width":..,"height":..}}
//
// Only the flat shape is ever written.
package codec

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"dashpoint/internal/geometry"
)

// Version is the payload version written by Encode.
const Version = 2

// LayoutMap maps an item key to its card rectangle in world units.
type LayoutMap map[string]geometry.Rect

// Clone returns an independent copy of m. A nil map clones to an empty one.
func (m LayoutMap) Clone() LayoutMap {
	out := make(LayoutMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Equal reports whether both maps hold the same keys and rectangles.
func (m LayoutMap) Equal(o LayoutMap) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		w, ok := o[k]
		if !ok || v != w {
			return false
		}
	}
	return true
}

// Shape names the historical payload layout a decode matched.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeFlat
	ShapeBreakpoints
	ShapeLegacyMap
)

func (s Shape) String() string {
	switch s {
	case ShapeFlat:
		return "flat"
	case ShapeBreakpoints:
		return "breakpoints"
	case ShapeLegacyMap:
		return "legacy"
	default:
		return "unknown"
	}
}

// Meta records the canvas the layout was saved on.
type Meta struct {
	CanvasWidth  float64 `json:"canvasWidth"`
	CanvasHeight float64 `json:"canvasHeight"`
	SavedAt      int64   `json:"savedAt"`
}

// Payload is the current persisted envelope.
type Payload struct {
	Version int       `json:"version"`
	Items   LayoutMap `json:"items"`
	Meta    Meta      `json:"meta"`
}

// Encode builds the flat payload for m. Rectangles are sanitized so the
// result is always serializable.
func Encode(m LayoutMap, canvas geometry.Size, now time.Time) Payload {
	items := make(LayoutMap, len(m))
	for k, r := range m {
		if !r.Finite() {
			r = geometry.SanitizeRect(r, geometry.DefaultGap)
		}
		items[k] = r
	}
	return Payload{
		Version: Version,
		Items:   items,
		Meta: Meta{
			CanvasWidth:  finiteOrZero(canvas.W),
			CanvasHeight: finiteOrZero(canvas.H),
			SavedAt:      now.UnixMilli(),
		},
	}
}

// Marshal serializes p. Item keys are emitted in sorted order.
func Marshal(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// Decode normalizes raw into a layout map. ok is false when raw is empty,
// not a JSON object, or matches none of the known shapes; callers then fall
// through to their next source. Rect fields accept numbers and numeric
// strings; anything else is left missing (NaN) for sanitization downstream.
func Decode(raw []byte, preferred geometry.Breakpoint) (LayoutMap, Shape, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, ShapeUnknown, false
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, ShapeUnknown, false
	}

	if isVersion2(top["version"]) {
		if items, ok := decodeItems(top["items"]); ok {
			return items, ShapeFlat, true
		}
		if bps, ok := asObject(top["breakpoints"]); ok {
			if m, ok := pickBreakpoint(bps, preferred); ok {
				return m, ShapeBreakpoints, true
			}
			return nil, ShapeUnknown, false
		}
	}

	if m, ok := decodeLegacy(top); ok {
		return m, ShapeLegacyMap, true
	}
	return nil, ShapeUnknown, false
}

func pickBreakpoint(bps map[string]json.RawMessage, preferred geometry.Breakpoint) (LayoutMap, bool) {
	order := geometry.FallbackOrder
	if preferred.Valid() {
		order = append([]geometry.Breakpoint{preferred}, order...)
	}
	for _, bp := range order {
		entry, ok := asObject(bps[string(bp)])
		if !ok {
			continue
		}
		if m, ok := decodeItems(entry["items"]); ok {
			return m, true
		}
	}
	return nil, false
}

// decodeLegacy accepts a bare map whose values all look like rectangles.
// An empty object qualifies.
func decodeLegacy(top map[string]json.RawMessage) (LayoutMap, bool) {
	out := make(LayoutMap, len(top))
	for k, v := range top {
		fields, ok := asObject(v)
		if !ok {
			return nil, false
		}
		_, hasX := fields["x"]
		_, hasW := fields["width"]
		if !hasX && !hasW {
			return nil, false
		}
		out[k] = rectFromFields(fields)
	}
	return out, true
}

func decodeItems(raw json.RawMessage) (LayoutMap, bool) {
	obj, ok := asObject(raw)
	if !ok {
		return nil, false
	}
	out := make(LayoutMap, len(obj))
	for k, v := range obj {
		fields, _ := asObject(v)
		out[k] = rectFromFields(fields)
	}
	return out, true
}

func rectFromFields(f map[string]json.RawMessage) geometry.Rect {
	return geometry.Rect{
		X:      number(f["x"]),
		Y:      number(f["y"]),
		Width:  number(f["width"]),
		Height: number(f["height"]),
	}
}

// number parses a JSON number or numeric string. Everything else is NaN.
func number(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return math.NaN()
	}
	var s string
	switch raw[0] {
	case '"':
		if json.Unmarshal(raw, &s) != nil {
			return math.NaN()
		}
		s = strings.TrimSpace(s)
	case 'n', 't', 'f', '{', '[':
		return math.NaN()
	default:
		s = string(raw)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

func asObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	return m, true
}

func isVersion2(raw json.RawMessage) bool {
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	return v == Version
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
