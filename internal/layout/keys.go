/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package layout

import "dashpoint/internal/domain"

const (
	cachePrefix       = "dashpoint:collection-layouts-v2:"
	legacyCachePrefix = "dashpoint:collection-layout:"
)

// ItemKey derives the stable layout key of an item: "type:id" when both are
// set, else the raw ID, else the bare item id. Items without any of these
// yield "" and are never placed.
func ItemKey(it domain.Item) string {
	switch {
	case it.ItemType != "" && it.ItemID != "":
		return it.ItemType + ":" + it.ItemID
	case it.ID != "":
		return it.ID
	default:
		return it.ItemID
	}
}

// CacheKey is the local cache key holding the current payload of a collection.
func CacheKey(collectionID string) string { return cachePrefix + collectionID }

// LegacyCacheKey is the read-only key of the unversioned layout map.
func LegacyCacheKey(collectionID string) string { return legacyCachePrefix + collectionID }
