/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package undo

import (
	"testing"
	"time"

	"dashpoint/internal/geometry"
)

func move(coll, key string, fromX, toX float64, ts time.Time) Change {
	return Change{
		Collection: coll,
		Key:        key,
		Before:     geometry.R(fromX, 16, 300, 240),
		After:      geometry.R(toX, 16, 300, 240),
		TS:         ts,
	}
}

func TestUndoRedoBasic(t *testing.T) {
	m := NewManager(Config{MaxPerCollection: 10, MinInterval: 10 * time.Millisecond})
	t0 := time.Now()
	m.Push(move("c1", "file:1", 0, 10, t0))
	m.Push(move("c1", "file:2", 0, 20, t0.Add(20*time.Millisecond)))
	if total, colls := m.Stats(); colls != 1 || total != 2 {
		t.Fatalf("expected 1 collection and 2 changes, got colls=%d total=%d", colls, total)
	}
	c, ok := m.Undo("c1")
	if !ok || c.Key != "file:2" || c.Before.X != 0 {
		t.Fatalf("undo expected file:2, got ok=%v change=%+v", ok, c)
	}
	if !m.CanRedo("c1") {
		t.Fatalf("expected redo to be available")
	}
	c, ok = m.Redo("c1")
	if !ok || c.Key != "file:2" || c.After.X != 20 {
		t.Fatalf("redo expected file:2, got ok=%v change=%+v", ok, c)
	}
	if _, ok := m.Redo("c1"); ok {
		t.Fatalf("redo stack should be empty")
	}
}

func TestCoalesceSameCard(t *testing.T) {
	m := NewManager(Config{MinInterval: 50 * time.Millisecond})
	t0 := time.Now()
	m.Push(move("c", "k", 0, 5, t0))
	m.Push(move("c", "k", 5, 9, t0.Add(10*time.Millisecond)))
	if total, _ := m.Stats(); total != 1 {
		t.Fatalf("expected coalesced to 1 change, got %d", total)
	}
	c, _ := m.Undo("c")
	if c.Before.X != 0 || c.After.X != 9 {
		t.Fatalf("expected merged change 0->9, got %+v", c)
	}

	// a different card is never merged
	m.Push(move("c", "a", 0, 1, t0))
	m.Push(move("c", "b", 0, 1, t0.Add(time.Millisecond)))
	if total, _ := m.Stats(); total != 2 {
		t.Fatalf("expected 2 changes, got %d", total)
	}

	// moving back to the start cancels the entry
	m.Clear("c")
	m.Push(move("c", "k", 0, 5, t0))
	m.Push(move("c", "k", 5, 0, t0.Add(time.Millisecond)))
	if m.CanUndo("c") {
		t.Fatalf("round trip move should leave nothing to undo")
	}
}

func TestNoOpChangeIgnored(t *testing.T) {
	m := NewManager(Config{})
	m.Push(move("c", "k", 3, 3, time.Now()))
	if m.CanUndo("c") {
		t.Fatalf("no-op change should be ignored")
	}
}

func TestPushClearsRedo(t *testing.T) {
	m := NewManager(Config{MinInterval: time.Millisecond})
	t0 := time.Now()
	m.Push(move("c", "k", 0, 1, t0))
	m.Undo("c")
	m.Push(move("c", "j", 0, 1, t0.Add(time.Second)))
	if m.CanRedo("c") {
		t.Fatalf("new change must clear redo")
	}
}

func TestCaps(t *testing.T) {
	m := NewManager(Config{MaxPerCollection: 2, MinInterval: time.Millisecond})
	t0 := time.Now()
	for i := 0; i < 10; i++ {
		m.Push(move("c", "k", float64(i), float64(i+1), t0.Add(time.Duration(i)*time.Second)))
	}
	if total, _ := m.Stats(); total != 2 {
		t.Fatalf("expected MaxPerCollection cap to limit to 2, got %d", total)
	}
	c, _ := m.Undo("c")
	if c.After.X != 10 {
		t.Fatalf("expected newest change kept, got %+v", c)
	}
}

func TestGlobalPruneAcrossCollections(t *testing.T) {
	m := NewManager(Config{MaxTotal: 2, MinInterval: time.Millisecond})
	t0 := time.Now()
	m.Push(move("old", "k", 0, 1, t0))
	m.Push(move("new", "k", 0, 1, t0.Add(time.Second)))
	m.Push(move("new", "j", 0, 1, t0.Add(2*time.Second)))

	if _, ok := m.Undo("old"); ok {
		t.Fatalf("expected oldest collection change to have been pruned")
	}
	if _, ok := m.Undo("new"); !ok {
		t.Fatalf("expected newer collection to keep its changes")
	}
}

func TestForgetRemovedCard(t *testing.T) {
	m := NewManager(Config{MinInterval: time.Millisecond})
	t0 := time.Now()
	m.Push(move("c", "gone", 0, 1, t0))
	m.Push(move("c", "kept", 0, 1, t0.Add(time.Second)))
	m.Push(move("c", "gone", 1, 2, t0.Add(2*time.Second)))
	m.Undo("c")
	m.Forget("c", "gone")
	if total, _ := m.Stats(); total != 1 {
		t.Fatalf("expected one change left, got %d", total)
	}
	if m.CanRedo("c") {
		t.Fatalf("redo of a forgotten card should be dropped")
	}
	c, ok := m.Undo("c")
	if !ok || c.Key != "kept" {
		t.Fatalf("expected kept change, got %+v", c)
	}
}
