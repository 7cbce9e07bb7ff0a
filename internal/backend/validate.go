/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"dashpoint/internal/codec"
	"dashpoint/internal/domain"

	json "github.com/goccy/go-json"
)

var colorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

const (
	maxName        = 100
	maxDescription = 500
	maxIcon        = 50
	maxTag         = 30
)

// fieldError is a request validation failure reported as HTTP 400.
type fieldError struct {
	Field string
	Msg   string
}

func (e *fieldError) Error() string { return e.Field + ": " + e.Msg }

func invalid(field, msg string) error { return &fieldError{Field: field, Msg: msg} }

// collectionBody is the raw create/update body; fields are kept raw so absent
// and null can be told apart.
type collectionBody map[string]json.RawMessage

func (b collectionBody) has(k string) bool {
	_, ok := b[k]
	return ok
}

func (b collectionBody) str(field string, max int, required bool) (*string, error) {
	raw, ok := b[field]
	if !ok {
		if required {
			return nil, invalid(field, "is required")
		}
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, invalid(field, "must be a string")
	}
	s = strings.TrimSpace(s)
	if required && s == "" {
		return nil, invalid(field, fmt.Sprintf("must be between 1 and %d characters", max))
	}
	if utf8.RuneCountInString(s) > max {
		return nil, invalid(field, fmt.Sprintf("cannot exceed %d characters", max))
	}
	return &s, nil
}

// parseCollectionBody validates a create (create=true) or update body.
func parseCollectionBody(raw []byte, create bool) (CollectionUpdate, error) {
	var u CollectionUpdate
	var b collectionBody
	if err := json.Unmarshal(raw, &b); err != nil || b == nil {
		return u, invalid("body", "must be a JSON object")
	}
	var err error
	if u.Name, err = b.str("name", maxName, create); err != nil {
		return u, err
	}
	if u.Name != nil && *u.Name == "" {
		return u, invalid("name", fmt.Sprintf("must be between 1 and %d characters", maxName))
	}
	if u.Description, err = b.str("description", maxDescription, false); err != nil {
		return u, err
	}
	if u.Color, err = b.str("color", 7, false); err != nil {
		return u, err
	}
	if u.Color != nil && !colorRe.MatchString(*u.Color) {
		return u, invalid("color", "must be a valid hex color")
	}
	if u.Icon, err = b.str("icon", maxIcon, false); err != nil {
		return u, err
	}
	if raw, ok := b["tags"]; ok {
		var tags []string
		if err := json.Unmarshal(raw, &tags); err != nil {
			return u, invalid("tags", "must be an array")
		}
		for i, t := range tags {
			tags[i] = strings.TrimSpace(t)
			if utf8.RuneCountInString(tags[i]) > maxTag {
				return u, invalid("tags", fmt.Sprintf("each tag cannot exceed %d characters", maxTag))
			}
		}
		u.Tags = &tags
	}
	if raw, ok := b["isPrivate"]; ok {
		var p bool
		if err := json.Unmarshal(raw, &p); err != nil {
			return u, invalid("isPrivate", "must be a boolean")
		}
		u.IsPrivate = &p
	}
	if b.has("layouts") {
		if err := validateLayouts(b["layouts"]); err != nil {
			return u, err
		}
		u.Layouts = append([]byte(nil), b["layouts"]...)
		u.LayoutsSet = true
	}
	return u, nil
}

// validateLayouts accepts null or any JSON object. Objects that claim the
// current flat envelope (version 2 with items) must match the payload schema;
// other objects are stored as-is so older clients keep working.
func validateLayouts(raw json.RawMessage) error {
	t := bytes.TrimSpace(raw)
	if bytes.Equal(t, []byte("null")) {
		return nil
	}
	if len(t) == 0 || t[0] != '{' {
		return invalid("layouts", "must be an object")
	}
	var probe struct {
		Version json.RawMessage `json:"version"`
		Items   json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(t, &probe); err != nil {
		return invalid("layouts", "must be an object")
	}
	if string(bytes.TrimSpace(probe.Version)) == "2" && probe.Items != nil {
		if err := codec.Validate(t); err != nil {
			return invalid("layouts", err.Error())
		}
	}
	return nil
}

type itemBody struct {
	ItemType string          `json:"itemType"`
	ItemID   string          `json:"itemId"`
	ItemData json.RawMessage `json:"itemData"`
}

// parseItemBody validates an add-item body. Only item types that can be
// attached through the API are accepted.
func parseItemBody(raw []byte) (domain.Item, error) {
	var b itemBody
	if err := json.Unmarshal(raw, &b); err != nil {
		return domain.Item{}, invalid("body", "must be a JSON object")
	}
	switch b.ItemType {
	case domain.ItemTypeYouTube, domain.ItemTypeFile, domain.ItemTypePlanner:
	default:
		return domain.Item{}, invalid("itemType", "invalid item type")
	}
	id := strings.TrimSpace(b.ItemID)
	if id == "" {
		return domain.Item{}, invalid("itemId", "item ID is required")
	}
	it := domain.Item{ItemType: b.ItemType, ItemID: id}
	if d := bytes.TrimSpace(b.ItemData); len(d) > 0 && !bytes.Equal(d, []byte("null")) {
		it.ItemData = append([]byte(nil), d...)
	}
	return it, nil
}
