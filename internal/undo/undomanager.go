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
	"sync"
	"time"

	"dashpoint/internal/geometry"
)

// Change records one committed card move or resize.
// TS is when the change was committed.
type Change struct {
	Collection string
	Key        string
	Before     geometry.Rect
	After      geometry.Rect
	TS         time.Time
}

// Config controls depth caps and coalescing behavior.
type Config struct {
	// MaxTotal is a soft cap across all collections; the oldest changes are pruned when exceeded.
	MaxTotal int
	// MaxPerCollection limits the undo depth of a single collection (0 means unlimited).
	MaxPerCollection int
	// MinInterval coalesces changes to the same card committed within the interval,
	// keeping the first Before and the latest After.
	MinInterval time.Duration
}

// Manager provides an in-memory undo/redo stack per collection.
// It is safe for concurrent use.
type Manager struct {
	cfg  Config
	mu   sync.Mutex
	undo map[string][]Change
	redo map[string][]Change
	size int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxTotal <= 0 {
		cfg.MaxTotal = 4096
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 250 * time.Millisecond
	}
	return &Manager{cfg: cfg, undo: make(map[string][]Change), redo: make(map[string][]Change)}
}

// Push records a change. Changes with Before == After are ignored. A change to
// the same card within MinInterval of the previous one is merged into it.
// Any push clears the collection's redo stack.
func (m *Manager) Push(c Change) {
	if c.Before == c.After {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redo[c.Collection] = nil
	stack := m.undo[c.Collection]
	if n := len(stack); n > 0 {
		last := stack[n-1]
		if last.Key == c.Key && c.TS.Sub(last.TS) < m.cfg.MinInterval {
			last.After = c.After
			last.TS = c.TS
			if last.Before == last.After {
				m.undo[c.Collection] = stack[:n-1]
				m.size--
				return
			}
			stack[n-1] = last
			return
		}
	}
	m.undo[c.Collection] = append(stack, c)
	m.size++
	m.enforceCapsLocked(c.Collection)
}

// Undo pops the latest change of a collection and moves it to the redo stack.
// The caller restores c.Before.
func (m *Manager) Undo(collection string) (Change, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[collection]
	if len(stack) == 0 {
		return Change{}, false
	}
	c := stack[len(stack)-1]
	m.undo[collection] = stack[:len(stack)-1]
	m.size--
	m.redo[collection] = append(m.redo[collection], c)
	return c, true
}

// Redo re-applies the most recently undone change. The caller restores c.After.
func (m *Manager) Redo(collection string) (Change, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.redo[collection]
	if len(r) == 0 {
		return Change{}, false
	}
	c := r[len(r)-1]
	m.redo[collection] = r[:len(r)-1]
	m.undo[collection] = append(m.undo[collection], c)
	m.size++
	m.enforceCapsLocked(collection)
	return c, true
}

// Forget drops every change that touches key, e.g. after the card was removed.
func (m *Manager) Forget(collection, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.undo[collection][:0]
	for _, c := range m.undo[collection] {
		if c.Key == key {
			m.size--
			continue
		}
		kept = append(kept, c)
	}
	m.undo[collection] = kept
	redo := m.redo[collection][:0]
	for _, c := range m.redo[collection] {
		if c.Key != key {
			redo = append(redo, c)
		}
	}
	m.redo[collection] = redo
}

// Clear drops both stacks of a collection.
func (m *Manager) Clear(collection string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.size -= len(m.undo[collection])
	delete(m.undo, collection)
	delete(m.redo, collection)
	if m.size < 0 {
		m.size = 0
	}
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (total int, collections int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.undo {
		if len(v) > 0 {
			collections++
		}
	}
	return m.size, collections
}

// CanUndo and CanRedo report whether the stacks are non-empty.
func (m *Manager) CanUndo(collection string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo[collection]) > 0
}

func (m *Manager) CanRedo(collection string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo[collection]) > 0
}

func (m *Manager) enforceCapsLocked(collection string) {
	if m.cfg.MaxPerCollection > 0 {
		stack := m.undo[collection]
		if extra := len(stack) - m.cfg.MaxPerCollection; extra > 0 {
			m.size -= extra
			m.undo[collection] = append([]Change(nil), stack[extra:]...)
		}
	}
	// global cap: prune the oldest change across all collections
	for m.size > m.cfg.MaxTotal {
		oldest := ""
		var oldestTS time.Time
		found := false
		for id, stack := range m.undo {
			if len(stack) == 0 {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldest, oldestTS, found = id, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		m.undo[oldest] = m.undo[oldest][1:]
		m.size--
		if len(m.undo[oldest]) == 0 {
			delete(m.undo, oldest)
		}
	}
}
