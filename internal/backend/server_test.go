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
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dashpoint/internal/codec"
	"dashpoint/internal/domain"
	"dashpoint/internal/geometry"
	"dashpoint/internal/layout"

	json "github.com/goccy/go-json"
)

var _ layout.Remote = (*Client)(nil)

const testAdminKey = "test-admin"

func newTestServer(t *testing.T) (*httptest.Server, *MemRepo) {
	t.Helper()
	repo := NewMemRepo()
	ts := httptest.NewServer(NewServerWithOptions(repo, ServerOptions{Secret: "test-secret", AdminKey: testAdminKey}).Handler())
	t.Cleanup(ts.Close)
	return ts, repo
}

func authedClient(t *testing.T, ts *httptest.Server, subject string) *Client {
	t.Helper()
	c := NewClientWithOptions(ts.URL+"/", "", ClientOptions{AdminKey: testAdminKey})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.RequestToken(ctx, subject, time.Hour); err != nil {
		t.Fatalf("token: %v", err)
	}
	return c
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestTokenRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tok, err := signToken("s", "alice", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if sub, err := verifyToken("s", tok, now); err != nil || sub != "alice" {
		t.Fatalf("verify: %q %v", sub, err)
	}
	if _, err := verifyToken("other", tok, now); err == nil {
		t.Fatalf("expected bad signature")
	}
	if _, err := verifyToken("s", tok, now.Add(2*time.Minute)); err == nil {
		t.Fatalf("expected expiry")
	}
	if _, err := verifyToken("s", "garbage", now); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestAPI_RequiresToken(t *testing.T) {
	ts, _ := newTestServer(t)
	c := NewClient(ts.URL, "")
	_, err := c.ListCollections(testCtx(t), ListQuery{})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	c.Token = "forged.token"
	if _, err := c.ListCollections(testCtx(t), ListQuery{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("forged token: %v", err)
	}
}

func TestAPI_TokenMintingRequiresAdminKey(t *testing.T) {
	ts, _ := newTestServer(t)
	ctx := testCtx(t)
	alice := authedClient(t, ts, "alice")
	col, err := alice.CreateCollection(ctx, NewCollection{Name: "Private"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for name, key := range map[string]string{"no key": "", "wrong key": "guess"} {
		c := NewClientWithOptions(ts.URL, "", ClientOptions{AdminKey: key})
		if _, err := c.RequestToken(ctx, "alice", time.Hour); !errors.Is(err, ErrForbidden) {
			t.Fatalf("%s: minted a token: %v", name, err)
		}
		if _, err := c.GetCollection(ctx, col.ID); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: read alice's collection: %v", name, err)
		}
	}
}

func TestAPI_TokenRouteClosedWithoutAdminKey(t *testing.T) {
	ts := httptest.NewServer(NewServer(NewMemRepo(), "prod-secret").Handler())
	t.Cleanup(ts.Close)
	c := NewClientWithOptions(ts.URL, "", ClientOptions{AdminKey: "anything"})
	if _, err := c.RequestToken(testCtx(t), "alice", time.Hour); err == nil {
		t.Fatalf("token route must not be served without dev mode or an admin key")
	}
}

func TestAPI_DevModeMintsWithoutKey(t *testing.T) {
	ts := httptest.NewServer(NewServer(NewMemRepo(), "").Handler())
	t.Cleanup(ts.Close)
	c := NewClient(ts.URL, "")
	if _, err := c.RequestToken(testCtx(t), "dev", time.Hour); err != nil {
		t.Fatalf("dev mode: %v", err)
	}
	if _, err := c.ListCollections(testCtx(t), ListQuery{}); err != nil {
		t.Fatalf("list with dev token: %v", err)
	}
}

func TestAPI_TokenRejectsMalformedBody(t *testing.T) {
	ts, _ := newTestServer(t)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/auth/token", strings.NewReader(`{"subject":`))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set(AdminKeyHeader, testAdminKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || env.Success || !strings.Contains(env.Message, "body") {
		t.Fatalf("envelope = %+v, %v", env, err)
	}
}

func TestAPI_Probes(t *testing.T) {
	ts, _ := newTestServer(t)
	for path, want := range map[string]string{"/healthz": "ok", "/readyz": "ready", "/version": "dashpoint "} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		b, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !strings.HasPrefix(string(b), want) {
			t.Fatalf("%s: %d %q", path, resp.StatusCode, b)
		}
	}
}

func TestAPI_CollectionLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)
	c := authedClient(t, ts, "alice")
	ctx := testCtx(t)

	col, err := c.CreateCollection(ctx, NewCollection{Name: "  Research  ", Tags: []string{"go"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if col.Name != "Research" || col.Color != "#3B82F6" || col.Icon != "Folder" || !col.IsPrivate {
		t.Fatalf("defaults not applied: %+v", col)
	}
	if _, err := c.CreateCollection(ctx, NewCollection{Name: "Research"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate name: %v", err)
	}

	if _, err := c.AddItem(ctx, col.ID, domain.ItemTypeYouTube, "v1", map[string]string{"title": "Talk"}); err != nil {
		t.Fatalf("add youtube: %v", err)
	}
	got, err := c.AddItem(ctx, col.ID, domain.ItemTypeFile, "f1", nil)
	if err != nil {
		t.Fatalf("add file: %v", err)
	}
	if len(got.Items) != 2 || got.Items[0].Title() != "Talk" {
		t.Fatalf("items = %+v", got.Items)
	}
	if _, err := c.AddItem(ctx, col.ID, "bogus", "x", nil); err == nil {
		t.Fatalf("expected invalid item type")
	}
	got, err = c.AddItem(ctx, col.ID, domain.ItemTypeFile, "f1", nil)
	if err != nil || len(got.Items) != 2 {
		t.Fatalf("duplicate add should be a no-op: %v %d", err, len(got.Items))
	}

	got, err = c.RemoveItem(ctx, col.ID, domain.ItemTypeFile, "f1")
	if err != nil || len(got.Items) != 1 {
		t.Fatalf("remove: %v %+v", err, got)
	}

	page, err := c.ListCollections(ctx, ListQuery{Search: "GO"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Pagination.Total != 1 || len(page.Collections) != 1 {
		t.Fatalf("search by tag: %+v", page)
	}

	if err := c.DeleteCollection(ctx, col.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.GetCollection(ctx, col.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
}

func TestAPI_CollectionsAreScopedToSubject(t *testing.T) {
	ts, _ := newTestServer(t)
	alice := authedClient(t, ts, "alice")
	bob := authedClient(t, ts, "bob")
	ctx := testCtx(t)
	col, err := alice.CreateCollection(ctx, NewCollection{Name: "Mine"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := bob.GetCollection(ctx, col.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("bob read alice's collection: %v", err)
	}
	if err := bob.UpdateCollectionLayouts(ctx, col.ID, []byte(`null`)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("bob wrote alice's layouts: %v", err)
	}
	if _, err := bob.CreateCollection(ctx, NewCollection{Name: "Mine"}); err != nil {
		t.Fatalf("names are per owner: %v", err)
	}
}

func TestAPI_Pagination(t *testing.T) {
	ts, _ := newTestServer(t)
	c := authedClient(t, ts, "alice")
	ctx := testCtx(t)
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		if _, err := c.CreateCollection(ctx, NewCollection{Name: n}); err != nil {
			t.Fatalf("create %s: %v", n, err)
		}
	}
	page, err := c.ListCollections(ctx, ListQuery{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Pagination.Current != 2 || page.Pagination.Pages != 3 || page.Pagination.Total != 5 {
		t.Fatalf("pagination = %+v", page.Pagination)
	}
	// newest first: e d | c b | a
	if len(page.Collections) != 2 || page.Collections[0].Name != "c" || page.Collections[1].Name != "b" {
		t.Fatalf("page 2 = %+v", page.Collections)
	}
}

func TestAPI_LayoutsValidation(t *testing.T) {
	ts, _ := newTestServer(t)
	c := authedClient(t, ts, "alice")
	ctx := testCtx(t)
	col, err := c.CreateCollection(ctx, NewCollection{Name: "Board"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cases := []struct {
		name    string
		payload string
		ok      bool
	}{
		{"flat", `{"version":2,"items":{"file:a":{"x":0,"y":0,"width":320,"height":240}},"meta":{"savedAt":1}}`, true},
		{"legacy_map", `{"file:a":{"x":0,"y":0,"width":10,"height":10}}`, true},
		{"null", `null`, true},
		{"small_card", `{"version":2,"items":{"file:a":{"x":0,"y":0,"width":10,"height":240}}}`, false},
		{"string_field", `{"version":2,"items":{"file:a":{"x":"0","y":0,"width":320,"height":240}}}`, false},
		{"array", `[1,2]`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := c.UpdateCollectionLayouts(ctx, col.ID, []byte(tc.payload))
			var apiErr *APIError
			switch {
			case tc.ok && err != nil:
				t.Fatalf("unexpected error: %v", err)
			case !tc.ok && (!errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest):
				t.Fatalf("expected 400, got %v", err)
			}
		})
	}
}

func TestAPI_RejectsBadBodies(t *testing.T) {
	ts, _ := newTestServer(t)
	c := authedClient(t, ts, "alice")
	cases := map[string]string{
		"not_object":   `[]`,
		"missing_name": `{"description":"x"}`,
		"blank_name":   `{"name":"   "}`,
		"bad_color":    `{"name":"x","color":"blue"}`,
		"long_tag":     `{"name":"x","tags":["` + strings.Repeat("t", 31) + `"]}`,
		"bad_private":  `{"name":"x","isPrivate":"yes"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/collections", bytes.NewReader([]byte(body)))
			req.Header.Set("Authorization", "Bearer "+c.Token)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("do: %v", err)
			}
			defer resp.Body.Close()
			var env struct {
				Success bool   `json:"success"`
				Message string `json:"message"`
			}
			_ = json.NewDecoder(resp.Body).Decode(&env)
			if resp.StatusCode != http.StatusBadRequest || env.Success || env.Message == "" {
				t.Fatalf("status=%d env=%+v", resp.StatusCode, env)
			}
		})
	}
}

// TestLayoutStoreAgainstServer drives a layout store with the HTTP client as
// its remote and reads the persisted payload back.
func TestLayoutStoreAgainstServer(t *testing.T) {
	ts, _ := newTestServer(t)
	c := authedClient(t, ts, "alice")
	ctx := testCtx(t)
	col, err := c.CreateCollection(ctx, NewCollection{Name: "Canvas"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	full, err := c.AddItem(ctx, col.ID, domain.ItemTypePlanner, "p1", nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	st, err := layout.New(layout.Options{CollectionID: col.ID, Remote: c, Delay: time.Hour})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if src := st.Load(ctx, full.Layouts); src != layout.SourceEmpty {
		t.Fatalf("source = %s", src)
	}
	st.Reconcile(full.Items)
	want := geometry.Rect{X: 40, Y: 60, Width: 400, Height: 300}
	if !st.SetRect("planner:p1", want) {
		t.Fatalf("SetRect rejected a known key")
	}
	st.Flush()
	if err := st.Settle(ctx); err != nil {
		t.Fatalf("settle: %v", err)
	}

	back, err := c.GetCollectionWithItems(ctx, col.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := codec.Validate(back.Layouts); err != nil {
		t.Fatalf("stored payload invalid: %v", err)
	}
	m, shape, ok := codec.Decode(back.Layouts, geometry.BreakpointLG)
	if !ok || shape != codec.ShapeFlat || m["planner:p1"] != want {
		t.Fatalf("decoded %v %s %v", m, shape, ok)
	}
	_ = st.Close(ctx)
}

func TestClient_TLSInsecureReachesSelfSignedServer(t *testing.T) {
	ts := httptest.NewTLSServer(NewServerWithOptions(NewMemRepo(), ServerOptions{Secret: "test-secret", Dev: true}).Handler())
	t.Cleanup(ts.Close)

	strict := NewClientWithOptions(ts.URL, "", ClientOptions{Timeout: 2 * time.Second})
	if _, err := strict.RequestToken(testCtx(t), "dev", time.Minute); err == nil {
		t.Fatalf("expected certificate error without TLSInsecure")
	}
	loose := NewClientWithOptions(ts.URL, "", ClientOptions{Timeout: 2 * time.Second, TLSInsecure: true})
	if _, err := loose.RequestToken(testCtx(t), "dev", time.Minute); err != nil {
		t.Fatalf("insecure client: %v", err)
	}
}
