/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the data model shared by the collection API client, the
// reference server and the layout store.

import (
	"encoding/json"
	"strings"
	"time"
)

// Item types a collection may reference.
const (
	ItemTypeYouTube = "youtube"
	ItemTypeFile    = "file"
	ItemTypePlanner = "planner"
	ItemTypeContent = "content"
)

// ValidItemType reports whether t is one of the known item types.
func ValidItemType(t string) bool {
	switch t {
	case ItemTypeYouTube, ItemTypeFile, ItemTypePlanner, ItemTypeContent:
		return true
	}
	return false
}

// Collection groups heterogeneous items on one canvas.
// Layouts carries the persisted layout payload verbatim; it is owned by the client.
type Collection struct {
	ID          string          `json:"_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Color       string          `json:"color,omitempty"`
	Icon        string          `json:"icon,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	IsPrivate   bool            `json:"isPrivate"`
	Layouts     json.RawMessage `json:"layouts,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// HasLayouts reports whether a non-null layout payload is attached.
func (c Collection) HasLayouts() bool {
	s := strings.TrimSpace(string(c.Layouts))
	return s != "" && s != "null"
}

// Item is one entry of a collection. ID is a raw identifier used when the
// type/id pair is not available.
type Item struct {
	ID       string          `json:"_id,omitempty"`
	ItemType string          `json:"itemType"`
	ItemID   string          `json:"itemId"`
	AddedAt  time.Time       `json:"addedAt"`
	ItemData json.RawMessage `json:"itemData,omitempty"`
}

// Title returns a display title from ItemData ("title", then "name",
// then "originalName"), falling back to the item key parts.
func (it Item) Title() string {
	if len(it.ItemData) > 0 {
		var d struct {
			Title        string `json:"title"`
			Name         string `json:"name"`
			OriginalName string `json:"originalName"`
		}
		if json.Unmarshal(it.ItemData, &d) == nil {
			for _, s := range []string{d.Title, d.Name, d.OriginalName} {
				if strings.TrimSpace(s) != "" {
					return s
				}
			}
		}
	}
	if it.ItemType != "" && it.ItemID != "" {
		return it.ItemType + " " + it.ItemID
	}
	return it.ID
}

// CollectionWithItems is the payload of the collection items endpoint.
type CollectionWithItems struct {
	Collection
	Items []Item `json:"items"`
}
