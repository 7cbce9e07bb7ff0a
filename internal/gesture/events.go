/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package gesture turns raw pointer, wheel and key events from the canvas
// surface into pan, pinch and zoom intents.
//
// Classification is pure; Router keeps the little state the rules need
// (space key, active touches, the panning pointer) and forwards intents to a
// Sink such as the viewport controller. Positions are canvas-relative.
package gesture

import (
	"fmt"
	"strings"

	"dashpoint/internal/geometry"
)

// Kind is the event type.
type Kind int

const (
	PointerDown Kind = iota
	PointerMove
	PointerUp
	PointerCancel
	Wheel
	KeyDown
	KeyUp
)

var kindNames = []string{"pointerdown", "pointermove", "pointerup", "pointercancel", "wheel", "keydown", "keyup"}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	s := strings.ToLower(string(b))
	for i, n := range kindNames {
		if n == s {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", string(b))
}

// PointerType distinguishes input devices.
type PointerType int

const (
	Mouse PointerType = iota
	Touch
	Pen
)

var pointerNames = []string{"mouse", "touch", "pen"}

func (p PointerType) String() string {
	if int(p) >= 0 && int(p) < len(pointerNames) {
		return pointerNames[p]
	}
	return fmt.Sprintf("pointer(%d)", int(p))
}

func (p PointerType) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *PointerType) UnmarshalText(b []byte) error {
	s := strings.ToLower(string(b))
	for i, n := range pointerNames {
		if n == s {
			*p = PointerType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown pointer type %q", string(b))
}

// Button numbers follow the DOM convention.
type Button int

const (
	ButtonPrimary   Button = 0
	ButtonMiddle    Button = 1
	ButtonSecondary Button = 2
)

// Target says what the pointer or key event landed on.
type Target int

const (
	// TargetBackground is the canvas surface itself.
	TargetBackground Target = iota
	// TargetWorld is the transformed layer that holds the cards.
	TargetWorld
	// TargetItem is a card or anything inside it.
	TargetItem
	// TargetEditable is a text input, select or content-editable element.
	TargetEditable
)

var targetNames = []string{"background", "world", "item", "editable"}

func (t Target) String() string {
	if int(t) >= 0 && int(t) < len(targetNames) {
		return targetNames[t]
	}
	return fmt.Sprintf("target(%d)", int(t))
}

func (t Target) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Target) UnmarshalText(b []byte) error {
	s := strings.ToLower(string(b))
	for i, n := range targetNames {
		if n == s {
			*t = Target(i)
			return nil
		}
	}
	return fmt.Errorf("unknown target %q", string(b))
}

// Event is one input event. Fields irrelevant to Kind are ignored.
type Event struct {
	Kind        Kind        `json:"kind"`
	PointerID   int         `json:"pointerId,omitempty"`
	PointerType PointerType `json:"pointerType,omitempty"`
	Button      Button      `json:"button,omitempty"`
	Pos         geometry.Pt `json:"pos"`
	Target      Target      `json:"target,omitempty"`
	DeltaY      float64     `json:"deltaY,omitempty"`
	Key         string      `json:"key,omitempty"`
	Code        string      `json:"code,omitempty"`
	Ctrl        bool        `json:"ctrl,omitempty"`
	Meta        bool        `json:"meta,omitempty"`
}

func (e Event) modifier() bool { return e.Ctrl || e.Meta }

func (e Event) isSpace() bool { return e.Code == "Space" || e.Key == " " }

// IsZoomOrBrowserShortcut reports whether the key event is a browser zoom or
// page shortcut (find, print, save, reload, ...) that must not reach the host.
func IsZoomOrBrowserShortcut(e Event) bool {
	if !e.modifier() {
		return false
	}
	switch e.Key {
	case "+", "=", "-", "_", "0":
		return true
	}
	switch e.Code {
	case "NumpadAdd", "NumpadSubtract":
		return true
	}
	switch strings.ToLower(e.Key) {
	case "f", "p", "s", "r", "g", "h":
		return true
	}
	return false
}
