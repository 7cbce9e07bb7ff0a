/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"dashpoint/internal/domain"

	"github.com/google/uuid"
)

// MemRepo is an in-memory Repo with the same ownership and conflict rules
// as PGRepo. It backs "serve --memory" and tests; nothing survives a restart.
type MemRepo struct {
	mu    sync.Mutex
	last  time.Time
	owner map[string]string
	cols  map[string]*domain.CollectionWithItems
	order []string
}

var _ Repo = (*MemRepo)(nil)

// NewMemRepo returns an empty repository.
func NewMemRepo() *MemRepo {
	return &MemRepo{owner: map[string]string{}, cols: map[string]*domain.CollectionWithItems{}}
}

func (m *MemRepo) Ping(context.Context) error { return nil }

// now is strictly increasing so updates are ordered even within one clock tick.
func (m *MemRepo) now() time.Time {
	t := time.Now().UTC().Truncate(time.Millisecond)
	if !t.After(m.last) {
		t = m.last.Add(time.Millisecond)
	}
	m.last = t
	return t
}

func (m *MemRepo) get(owner, id string) (*domain.CollectionWithItems, error) {
	c, ok := m.cols[id]
	if !ok || m.owner[id] != owner {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *MemRepo) nameTaken(owner, name, except string) bool {
	for id, c := range m.cols {
		if id != except && m.owner[id] == owner && c.Name == name {
			return true
		}
	}
	return false
}

func clone(c *domain.CollectionWithItems) *domain.CollectionWithItems {
	out := *c
	out.Tags = slices.Clone(c.Tags)
	out.Items = slices.Clone(c.Items)
	return &out
}

func (m *MemRepo) ListCollections(_ context.Context, owner string, q ListQuery) ([]domain.Collection, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := strings.ToLower(strings.TrimSpace(q.Search))
	var all []domain.Collection
	for i := len(m.order) - 1; i >= 0; i-- {
		id := m.order[i]
		c, ok := m.cols[id]
		if !ok || m.owner[id] != owner {
			continue
		}
		if s != "" && !strings.Contains(strings.ToLower(c.Name), s) &&
			!strings.Contains(strings.ToLower(c.Description), s) &&
			!slices.ContainsFunc(c.Tags, func(t string) bool { return strings.Contains(strings.ToLower(t), s) }) {
			continue
		}
		all = append(all, c.Collection)
	}
	from := min((q.Page-1)*q.Limit, len(all))
	to := min(from+q.Limit, len(all))
	return append([]domain.Collection{}, all[from:to]...), len(all), nil
}

func (m *MemRepo) GetCollection(_ context.Context, owner, id string) (*domain.CollectionWithItems, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.get(owner, id)
	if err != nil {
		return nil, err
	}
	return clone(c), nil
}

func (m *MemRepo) CreateCollection(_ context.Context, owner string, c domain.Collection) (*domain.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nameTaken(owner, c.Name, "") {
		return nil, ErrConflict
	}
	c.ID = uuid.NewString()
	c.CreatedAt = m.now()
	c.UpdatedAt = c.CreatedAt
	m.cols[c.ID] = &domain.CollectionWithItems{Collection: c, Items: []domain.Item{}}
	m.owner[c.ID] = owner
	m.order = append(m.order, c.ID)
	return &c, nil
}

func (m *MemRepo) UpdateCollection(_ context.Context, owner, id string, u CollectionUpdate) (*domain.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.get(owner, id)
	if err != nil {
		return nil, err
	}
	if u.Name != nil {
		if m.nameTaken(owner, *u.Name, id) {
			return nil, ErrConflict
		}
		c.Name = *u.Name
	}
	if u.Description != nil {
		c.Description = *u.Description
	}
	if u.Color != nil {
		c.Color = *u.Color
	}
	if u.Icon != nil {
		c.Icon = *u.Icon
	}
	if u.Tags != nil {
		c.Tags = slices.Clone(*u.Tags)
	}
	if u.IsPrivate != nil {
		c.IsPrivate = *u.IsPrivate
	}
	if u.LayoutsSet {
		if s := strings.TrimSpace(string(u.Layouts)); s == "" || s == "null" {
			c.Layouts = nil
		} else {
			c.Layouts = slices.Clone(u.Layouts)
		}
	}
	c.UpdatedAt = m.now()
	out := c.Collection
	return &out, nil
}

func (m *MemRepo) DeleteCollection(_ context.Context, owner, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.get(owner, id); err != nil {
		return err
	}
	delete(m.cols, id)
	delete(m.owner, id)
	return nil
}

func (m *MemRepo) AddItem(_ context.Context, owner, id string, it domain.Item) (*domain.CollectionWithItems, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.get(owner, id)
	if err != nil {
		return nil, err
	}
	dup := slices.ContainsFunc(c.Items, func(x domain.Item) bool {
		return x.ItemType == it.ItemType && x.ItemID == it.ItemID
	})
	if !dup {
		it.AddedAt = m.now()
		c.Items = append(c.Items, it)
		c.UpdatedAt = it.AddedAt
	}
	return clone(c), nil
}

func (m *MemRepo) RemoveItem(_ context.Context, owner, id, itemType, itemID string) (*domain.CollectionWithItems, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.get(owner, id)
	if err != nil {
		return nil, err
	}
	c.Items = slices.DeleteFunc(c.Items, func(x domain.Item) bool {
		return x.ItemType == itemType && x.ItemID == itemID
	})
	return clone(c), nil
}
