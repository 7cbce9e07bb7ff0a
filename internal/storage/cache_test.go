/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"dashpoint/internal/layout"

	_ "modernc.org/sqlite"
)

var _ layout.Cache = (*Cache)(nil)

func openTemp(t *testing.T) *Cache {
	t.Helper()
	c, err := OpenCache(filepath.Join(t.TempDir(), CacheFileName))
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_GetSetDelete(t *testing.T) {
	c := openTemp(t)
	if _, ok, err := c.Get("missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := c.Set("a", `{"version":2}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Set("a", `{"version":2,"items":{}}`); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, ok, err := c.Get("a")
	if err != nil || !ok || v != `{"version":2,"items":{}}` {
		t.Fatalf("get: %q %v %v", v, ok, err)
	}
	if err := c.Delete("a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := c.Delete("a"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	if _, ok, _ := c.Get("a"); ok {
		t.Fatalf("key survived delete")
	}
}

func TestCache_KeysByPrefix(t *testing.T) {
	c := openTemp(t)
	for _, k := range []string{
		layout.CacheKey("b"), layout.CacheKey("a"), layout.LegacyCacheKey("a"), "other",
	} {
		if err := c.Set(k, "{}"); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	got, err := c.Keys(layout.CacheKey(""))
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	want := []string{layout.CacheKey("a"), layout.CacheKey("b")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	all, _ := c.Keys("")
	if len(all) != 4 {
		t.Fatalf("all keys = %v", all)
	}
}

func TestCache_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), CacheFileName)
	c, err := OpenCache(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := c.Set("k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	_ = c.Close()

	c2, err := OpenCache(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()
	if v, ok, _ := c2.Get("k"); !ok || v != "v" {
		t.Fatalf("value lost: %q %v", v, ok)
	}
}

func TestCache_Closed(t *testing.T) {
	c := openTemp(t)
	_ = c.Close()
	if err := c.Close(); err != nil {
		t.Fatalf("double close: %v", err)
	}
	if _, _, err := c.Get("k"); !errors.Is(err, ErrClosed) {
		t.Fatalf("get after close: %v", err)
	}
	if err := c.Set("k", "v"); !errors.Is(err, ErrClosed) {
		t.Fatalf("set after close: %v", err)
	}
	if _, err := c.Keys(""); !errors.Is(err, ErrClosed) {
		t.Fatalf("keys after close: %v", err)
	}
}

func TestCache_Concurrent(t *testing.T) {
	c := openTemp(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				k := fmt.Sprintf("k%d", i)
				if err := c.Set(k, fmt.Sprint(j)); err != nil {
					t.Errorf("set: %v", err)
					return
				}
				if _, _, err := c.Get(k); err != nil {
					t.Errorf("get: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	keys, _ := c.Keys("k")
	if len(keys) != 8 {
		t.Fatalf("keys = %v", keys)
	}
}

func TestOpenCache_RebuildsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, CacheFileName)
	if err := os.WriteFile(path, []byte("THIS IS NOT SQLITE"), 0o644); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}
	c, err := OpenCache(path)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	defer c.Close()
	if err := c.Set("k", "v"); err != nil {
		t.Fatalf("set on rebuilt cache: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "backups"))
	if len(entries) == 0 {
		t.Fatalf("expected backup of the corrupt file")
	}
}

func TestOpenCache_RequiresPath(t *testing.T) {
	if _, err := OpenCache("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

// TestMigrations_UpgradeV1ToV2 opens a schema 1 cache (no updated_at column)
// and expects the column, the index and schema 2 afterwards, with data kept.
func TestMigrations_UpgradeV1ToV2(t *testing.T) {
	path := filepath.Join(t.TempDir(), CacheFileName)
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(2000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT NOT NULL);`,
		`CREATE TABLE version (id INTEGER PRIMARY KEY CHECK(id=1), schema INTEGER NOT NULL, app TEXT, created_at TEXT NOT NULL, updated_at TEXT NOT NULL);`,
		`INSERT INTO version(id, schema, app, created_at, updated_at) VALUES(1, 1, 'test', '2020-01-01T00:00:00Z', '2020-01-01T00:00:00Z');`,
		`CREATE TABLE kv (key TEXT PRIMARY KEY, value TEXT NOT NULL);`,
		`INSERT INTO kv(key, value) VALUES('old', 'payload');`,
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			t.Fatalf("seed v1 schema: %v (q=%s)", err, q)
		}
	}
	_ = db.Close()

	c, err := OpenCache(path)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	defer c.Close()

	var schema int
	if err := c.db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&schema); err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if schema != schemaVersion {
		t.Fatalf("schema = %d, want %d", schema, schemaVersion)
	}
	var cnt int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_kv_updated'`).Scan(&cnt); err != nil || cnt != 1 {
		t.Fatalf("index missing: cnt=%d err=%v", cnt, err)
	}
	if v, ok, err := c.Get("old"); err != nil || !ok || v != "payload" {
		t.Fatalf("migrated value: %q %v %v", v, ok, err)
	}
	if err := c.Set("new", "x"); err != nil {
		t.Fatalf("set after migration: %v", err)
	}
}
