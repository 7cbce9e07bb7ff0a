/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package gesture

import (
	"fmt"

	"dashpoint/internal/geometry"
)

// Intent is what an event means for the viewport.
type Intent int

const (
	IntentNone Intent = iota
	IntentPanStart
	IntentPanMove
	IntentPanEnd
	IntentPinchStart
	IntentPinchMove
	IntentPinchEnd
	IntentWheelZoom
	IntentSpaceDown
	IntentSpaceUp
	IntentSuppressShortcut
)

var intentNames = []string{
	"none", "pan-start", "pan-move", "pan-end", "pinch-start", "pinch-move",
	"pinch-end", "wheel-zoom", "space-down", "space-up", "suppress-shortcut",
}

func (i Intent) String() string {
	if int(i) >= 0 && int(i) < len(intentNames) {
		return intentNames[i]
	}
	return fmt.Sprintf("intent(%d)", int(i))
}

// Cursor hints for the host surface.
const (
	CursorDefault  = ""
	CursorGrab     = "grab"
	CursorGrabbing = "grabbing"
)

// TouchPoint is an active touch pointer.
type TouchPoint struct {
	ID  int
	Pos geometry.Pt
}

// State is the router state Classify reads. Touches keep insertion order; the
// first two drive a pinch.
type State struct {
	Space      bool
	Panning    bool
	PanPointer int
	Pinching   bool
	Touches    []TouchPoint
}

func (s State) touchIndex(id int) int {
	for i, t := range s.Touches {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Classify maps an event to an intent given the current state. It does not
// modify state.
func Classify(s State, e Event) Intent {
	switch e.Kind {
	case PointerDown:
		if e.PointerType == Touch {
			if s.touchIndex(e.PointerID) < 0 && len(s.Touches)+1 == 2 {
				return IntentPinchStart
			}
			return IntentNone
		}
		if e.PointerType == Mouse && e.Button != ButtonPrimary && e.Button != ButtonMiddle {
			return IntentNone
		}
		if e.Target == TargetEditable {
			return IntentNone
		}
		background := e.Target == TargetBackground || e.Target == TargetWorld
		switch {
		case e.Button == ButtonMiddle,
			s.Space && e.Button == ButtonPrimary,
			background && e.Button == ButtonPrimary:
			return IntentPanStart
		}
		return IntentNone

	case PointerMove:
		if e.PointerType == Touch && s.touchIndex(e.PointerID) >= 0 && s.Pinching && len(s.Touches) >= 2 {
			return IntentPinchMove
		}
		if s.Panning && e.PointerID == s.PanPointer {
			return IntentPanMove
		}
		return IntentNone

	case PointerUp, PointerCancel:
		if e.PointerType == Touch && s.Pinching {
			remaining := len(s.Touches)
			if s.touchIndex(e.PointerID) >= 0 {
				remaining--
			}
			if remaining < 2 {
				return IntentPinchEnd
			}
		}
		if s.Panning && e.PointerID == s.PanPointer {
			return IntentPanEnd
		}
		return IntentNone

	case Wheel:
		if e.modifier() {
			return IntentWheelZoom
		}
		return IntentNone

	case KeyDown:
		if e.isSpace() {
			if e.Target == TargetEditable {
				return IntentNone
			}
			return IntentSpaceDown
		}
		if IsZoomOrBrowserShortcut(e) {
			return IntentSuppressShortcut
		}
		return IntentNone

	case KeyUp:
		if e.isSpace() && s.Space {
			return IntentSpaceUp
		}
		return IntentNone
	}
	return IntentNone
}

// Sink receives pan and pinch intents.
type Sink interface {
	OnPanStart(p geometry.Pt)
	OnPanMove(p geometry.Pt)
	OnPanEnd()
	OnPinchStart(p1, p2 geometry.Pt)
	OnPinchMove(p1, p2 geometry.Pt)
	OnPinchEnd()
}

// WheelSink is implemented by sinks that handle modifier+wheel zoom.
type WheelSink interface {
	OnWheelZoom(p geometry.Pt, deltaY float64)
}

// Result tells the host what happened. Handled means the host should
// swallow the native event. Cursor is the hint to apply to the surface.
type Result struct {
	Intent  Intent
	Handled bool
	Cursor  string
}

// Router applies events to its state and forwards intents to the sink.
// It is not safe for concurrent use; feed it from the UI event loop.
type Router struct {
	sink  Sink
	state State
}

// NewRouter returns a router that forwards to sink; sink may be nil.
func NewRouter(sink Sink) *Router { return &Router{sink: sink} }

// State returns a copy of the router state.
func (r *Router) State() State {
	s := r.state
	s.Touches = append([]TouchPoint(nil), r.state.Touches...)
	return s
}

// Cursor is the current cursor hint.
func (r *Router) Cursor() string {
	switch {
	case r.state.Panning:
		return CursorGrabbing
	case r.state.Space:
		return CursorGrab
	default:
		return CursorDefault
	}
}

// Handle processes one event.
func (r *Router) Handle(e Event) Result {
	intent := Classify(r.state, e)
	r.track(e)

	handled := false
	switch intent {
	case IntentPanStart:
		r.state.Panning = true
		r.state.PanPointer = e.PointerID
		handled = true
		if r.sink != nil {
			r.sink.OnPanStart(e.Pos)
		}
	case IntentPanMove:
		handled = true
		if r.sink != nil {
			r.sink.OnPanMove(e.Pos)
		}
	case IntentPanEnd:
		r.state.Panning = false
		if r.sink != nil {
			r.sink.OnPanEnd()
		}
	case IntentPinchStart:
		r.state.Panning = false
		r.state.Pinching = true
		handled = true
		if r.sink != nil {
			r.sink.OnPinchStart(r.state.Touches[0].Pos, r.state.Touches[1].Pos)
		}
	case IntentPinchMove:
		handled = true
		if r.sink != nil {
			r.sink.OnPinchMove(r.state.Touches[0].Pos, r.state.Touches[1].Pos)
		}
	case IntentPinchEnd:
		r.state.Pinching = false
		if r.sink != nil {
			r.sink.OnPinchEnd()
		}
	case IntentWheelZoom:
		handled = true
		if ws, ok := r.sink.(WheelSink); ok {
			ws.OnWheelZoom(e.Pos, e.DeltaY)
		}
	case IntentSpaceDown:
		r.state.Space = true
		handled = true
	case IntentSpaceUp:
		r.state.Space = false
	case IntentSuppressShortcut:
		handled = true
	}
	return Result{Intent: intent, Handled: handled, Cursor: r.Cursor()}
}

// track keeps the active touch list current.
func (r *Router) track(e Event) {
	if e.PointerType != Touch {
		return
	}
	i := r.state.touchIndex(e.PointerID)
	switch e.Kind {
	case PointerDown:
		if i >= 0 {
			r.state.Touches[i].Pos = e.Pos
			return
		}
		r.state.Touches = append(r.state.Touches, TouchPoint{ID: e.PointerID, Pos: e.Pos})
	case PointerMove:
		if i >= 0 {
			r.state.Touches[i].Pos = e.Pos
		}
	case PointerUp, PointerCancel:
		if i >= 0 {
			r.state.Touches = append(r.state.Touches[:i], r.state.Touches[i+1:]...)
		}
	}
}

// Detach drops all state, ending any running pan or pinch on the sink.
func (r *Router) Detach() {
	if r.sink != nil {
		if r.state.Panning {
			r.sink.OnPanEnd()
		}
		if r.state.Pinching {
			r.sink.OnPinchEnd()
		}
	}
	r.state = State{}
}
