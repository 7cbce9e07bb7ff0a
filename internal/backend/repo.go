/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"dashpoint/internal/domain"
	applog "dashpoint/internal/log"

	"github.com/google/uuid"
	json "github.com/goccy/go-json"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrNotFound means the collection does not exist or belongs to someone else.
	ErrNotFound = errors.New("collection not found")
	// ErrConflict means the owner already has a collection with that name.
	ErrConflict = errors.New("collection with this name already exists")
)

// CollectionUpdate carries the fields of a partial update. Nil pointers are
// left untouched. Layouts is applied when LayoutsSet is true; a JSON null
// clears the stored layout.
type CollectionUpdate struct {
	Name        *string
	Description *string
	Color       *string
	Icon        *string
	Tags        *[]string
	IsPrivate   *bool
	Layouts     []byte
	LayoutsSet  bool
}

// ListQuery pages and filters the owner's collections.
type ListQuery struct {
	Search string
	Page   int // 1-based
	Limit  int
}

// Repo is the persistence the HTTP server needs. Every call is scoped to owner.
type Repo interface {
	Ping(ctx context.Context) error
	ListCollections(ctx context.Context, owner string, q ListQuery) ([]domain.Collection, int, error)
	GetCollection(ctx context.Context, owner, id string) (*domain.CollectionWithItems, error)
	CreateCollection(ctx context.Context, owner string, c domain.Collection) (*domain.Collection, error)
	UpdateCollection(ctx context.Context, owner, id string, u CollectionUpdate) (*domain.Collection, error)
	DeleteCollection(ctx context.Context, owner, id string) error
	AddItem(ctx context.Context, owner, id string, it domain.Item) (*domain.CollectionWithItems, error)
	RemoveItem(ctx context.Context, owner, id, itemType, itemID string) (*domain.CollectionWithItems, error)
}

// PGRepo stores collections in Postgres through the pgx database/sql driver.
type PGRepo struct {
	db *sql.DB
}

// OpenPG opens dsn, pings it and applies the embedded migrations.
func OpenPG(ctx context.Context, dsn string) (*PGRepo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applyMigrations(pctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PGRepo{db: db}, nil
}

// Close closes the pool.
func (r *PGRepo) Close() error { return r.db.Close() }

// applyMigrations applies embedded SQL migrations in filename order and
// records each in schema_migrations.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	l := applog.WithOperation(applog.WithComponent("backend"), "migrate")
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int64]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, fname := range files {
		version, err := parseVersion(fname)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(b)) == "" {
			continue
		}
		l.Info("applying migration", slog.String("file", fname))
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin %s: %w", fname, err)
		}
		if _, err := tx.ExecContext(ctx, string(b)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", fname, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES($1, $2)`, version, fname); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", fname, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", fname, err)
		}
	}
	return nil
}

func parseVersion(name string) (int64, error) {
	base := path.Base(name)
	parts := strings.SplitN(base, "_", 2)
	if len(parts) < 2 {
		return 0, errors.New("invalid migration filename: " + name)
	}
	v, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}

func (r *PGRepo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

const collectionCols = `id, name, description, color, icon, tags, is_private, layouts, created_at, updated_at`

type scanner interface{ Scan(dest ...any) error }

func scanCollection(s scanner) (domain.Collection, error) {
	var (
		c       domain.Collection
		tags    []byte
		layouts []byte
	)
	if err := s.Scan(&c.ID, &c.Name, &c.Description, &c.Color, &c.Icon, &tags, &c.IsPrivate, &layouts, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return c, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &c.Tags); err != nil {
			return c, fmt.Errorf("decode tags: %w", err)
		}
	}
	if len(layouts) > 0 {
		c.Layouts = layouts
	}
	return c, nil
}

func validID(id string) bool { return uuid.Validate(id) == nil }

func (r *PGRepo) ListCollections(ctx context.Context, owner string, q ListQuery) ([]domain.Collection, int, error) {
	where := `owner = $1`
	args := []any{owner}
	if s := strings.TrimSpace(q.Search); s != "" {
		where += ` AND (name ILIKE $2 OR description ILIKE $2 OR EXISTS (SELECT 1 FROM jsonb_array_elements_text(tags) t WHERE t ILIKE $2))`
		args = append(args, "%"+s+"%")
	}
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM collections WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count collections: %w", err)
	}
	limit, offset := q.Limit, (q.Page-1)*q.Limit
	query := fmt.Sprintf(`SELECT %s FROM collections WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, collectionCols, where, limit, offset)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()
	list := []domain.Collection{}
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan collection: %w", err)
		}
		list = append(list, c)
	}
	return list, total, rows.Err()
}

func (r *PGRepo) GetCollection(ctx context.Context, owner, id string) (*domain.CollectionWithItems, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	c, err := scanCollection(r.db.QueryRowContext(ctx, `SELECT `+collectionCols+` FROM collections WHERE id=$1 AND owner=$2`, id, owner))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, `SELECT item_type, item_id, added_at, item_data FROM collection_items WHERE collection_id=$1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	out := &domain.CollectionWithItems{Collection: c, Items: []domain.Item{}}
	for rows.Next() {
		var (
			it   domain.Item
			data []byte
		)
		if err := rows.Scan(&it.ItemType, &it.ItemID, &it.AddedAt, &data); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if len(data) > 0 {
			it.ItemData = data
		}
		out.Items = append(out.Items, it)
	}
	return out, rows.Err()
}

// isUniqueViolation matches SQLSTATE 23505 without importing pgconn.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}

func (r *PGRepo) CreateCollection(ctx context.Context, owner string, c domain.Collection) (*domain.Collection, error) {
	tags, err := json.Marshal(nonNilTags(c.Tags))
	if err != nil {
		return nil, err
	}
	var layouts any
	if c.HasLayouts() {
		layouts = string(c.Layouts)
	}
	row := r.db.QueryRowContext(ctx, `INSERT INTO collections(id, owner, name, description, color, icon, tags, is_private, layouts)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING `+collectionCols,
		uuid.NewString(), owner, c.Name, c.Description, c.Color, c.Icon, string(tags), c.IsPrivate, layouts)
	created, err := scanCollection(row)
	if isUniqueViolation(err) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &created, nil
}

func (r *PGRepo) UpdateCollection(ctx context.Context, owner, id string, u CollectionUpdate) (*domain.Collection, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	sets := []string{"updated_at = now()"}
	args := []any{id, owner}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.Color != nil {
		add("color", *u.Color)
	}
	if u.Icon != nil {
		add("icon", *u.Icon)
	}
	if u.Tags != nil {
		b, err := json.Marshal(nonNilTags(*u.Tags))
		if err != nil {
			return nil, err
		}
		add("tags", string(b))
	}
	if u.IsPrivate != nil {
		add("is_private", *u.IsPrivate)
	}
	if u.LayoutsSet {
		var v any
		if s := strings.TrimSpace(string(u.Layouts)); s != "" && s != "null" {
			v = s
		}
		add("layouts", v)
	}
	q := fmt.Sprintf(`UPDATE collections SET %s WHERE id=$1 AND owner=$2 RETURNING %s`, strings.Join(sets, ", "), collectionCols)
	c, err := scanCollection(r.db.QueryRowContext(ctx, q, args...))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case isUniqueViolation(err):
		return nil, ErrConflict
	case err != nil:
		return nil, fmt.Errorf("update collection: %w", err)
	}
	return &c, nil
}

func (r *PGRepo) DeleteCollection(ctx context.Context, owner, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM collections WHERE id=$1 AND owner=$2`, id, owner)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) owns(ctx context.Context, owner, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM collections WHERE id=$1 AND owner=$2`, id, owner).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// AddItem adds the item unless the same type/id pair is already present.
func (r *PGRepo) AddItem(ctx context.Context, owner, id string, it domain.Item) (*domain.CollectionWithItems, error) {
	if err := r.owns(ctx, owner, id); err != nil {
		return nil, err
	}
	var data any
	if len(it.ItemData) > 0 {
		data = string(it.ItemData)
	}
	if _, err := r.db.ExecContext(ctx, `INSERT INTO collection_items(collection_id, item_type, item_id, item_data)
		VALUES($1, $2, $3, $4) ON CONFLICT DO NOTHING`, id, it.ItemType, it.ItemID, data); err != nil {
		return nil, fmt.Errorf("add item: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE collections SET updated_at=now() WHERE id=$1`, id); err != nil {
		return nil, fmt.Errorf("touch collection: %w", err)
	}
	return r.GetCollection(ctx, owner, id)
}

func (r *PGRepo) RemoveItem(ctx context.Context, owner, id, itemType, itemID string) (*domain.CollectionWithItems, error) {
	if err := r.owns(ctx, owner, id); err != nil {
		return nil, err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM collection_items WHERE collection_id=$1 AND item_type=$2 AND item_id=$3`, id, itemType, itemID); err != nil {
		return nil, fmt.Errorf("remove item: %w", err)
	}
	return r.GetCollection(ctx, owner, id)
}

func nonNilTags(t []string) []string {
	if t == nil {
		return []string{}
	}
	return t
}
