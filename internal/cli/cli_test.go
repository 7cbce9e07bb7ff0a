/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cli

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dashpoint/internal/backend"
	"dashpoint/internal/codec"
	"dashpoint/internal/geometry"
	"dashpoint/internal/gesture"

	json "github.com/goccy/go-json"
	"github.com/zalando/go-keyring"
)

const adminKey = "test-admin"

// env isolates config, keychain and cache, and starts an in-memory API that
// mints tokens only for callers holding the admin key.
func env(t *testing.T) string {
	t.Helper()
	keyring.MockInit()
	dir := t.TempDir()
	t.Setenv("DP_CONFIG", filepath.Join(dir, "config.yaml"))
	t.Setenv("DP_CACHE_PATH", filepath.Join(dir, "cache.db"))
	t.Setenv("DP_LOG_LEVEL", "error")
	t.Setenv(EnvToken, "")
	t.Setenv("DP_ADMIN_KEY", adminKey)
	srv := backend.NewServerWithOptions(backend.NewMemRepo(), backend.ServerOptions{Secret: "test-secret", AdminKey: adminKey})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err != nil {
		t.Logf("stderr: %s", errOut.String())
	}
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out
}

// seed signs in and creates a collection with two file cards.
func seed(t *testing.T, url string) string {
	t.Helper()
	mustRun(t, "login", "--backend", url, "--subject", "alice")
	id := strings.TrimSpace(mustRun(t, "collections", "create", "Board", "--backend", url))
	if id == "" {
		t.Fatalf("create printed no id")
	}
	mustRun(t, "collections", "add-item", id, "file", "a", "--data", `{"title":"Alpha"}`, "--backend", url)
	mustRun(t, "collections", "add-item", id, "file", "b", "--backend", url)
	return id
}

func TestVersion(t *testing.T) {
	env(t)
	out := mustRun(t, "version", "--json")
	var v map[string]string
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode: %v (%s)", err, out)
	}
	if v["name"] != "dashpoint" || v["version"] == "" {
		t.Fatalf("version = %v", v)
	}
}

func TestCollections_Lifecycle(t *testing.T) {
	url := env(t)
	id := seed(t, url)

	out := mustRun(t, "collections", "list", "--backend", url)
	if !strings.Contains(out, id) || !strings.Contains(out, "1 total") {
		t.Fatalf("list:\n%s", out)
	}

	out = mustRun(t, "c", "remove-item", id, "file", "b", "--backend", url)
	if !strings.Contains(out, "file:a  Alpha") || !strings.Contains(out, "1 items") {
		t.Fatalf("remove-item:\n%s", out)
	}

	if _, err := run(t, "collections", "add-item", id, "video", "x", "--backend", url); err == nil {
		t.Fatalf("expected unknown type error")
	}
	if _, err := run(t, "collections", "add-item", id, "file", "x", "--data", "{nope", "--backend", url); err == nil {
		t.Fatalf("expected invalid JSON error")
	}

	mustRun(t, "collections", "delete", id, "--backend", url)
	out = mustRun(t, "collections", "list", "--backend", url)
	if strings.Contains(out, id) {
		t.Fatalf("deleted collection still listed:\n%s", out)
	}
}

func TestCollections_UnauthorizedHintsLogin(t *testing.T) {
	url := env(t)
	cmd := NewRootCmd()
	var errOut bytes.Buffer
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"collections", "list", "--backend", url})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error without token")
	}
	if !strings.Contains(errOut.String(), "dashpoint login") {
		t.Fatalf("stderr = %q", errOut.String())
	}
}

func TestLayout_ShowResetExport(t *testing.T) {
	url := env(t)
	id := seed(t, url)

	var v layoutView
	out := mustRun(t, "layout", "show", id, "--json", "--backend", url)
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Source != "empty" || len(v.Items) != 2 {
		t.Fatalf("show before reset: %+v", v)
	}

	// show never writes, so the server still has no layout.
	out = mustRun(t, "collections", "list", "--backend", url)
	if strings.Contains(out, "layout") {
		t.Fatalf("read-only show persisted a layout:\n%s", out)
	}

	out = mustRun(t, "layout", "reset", id, "--backend", url)
	if !strings.Contains(out, "Reset 2 cards") {
		t.Fatalf("reset: %s", out)
	}
	if _, err := os.Stat(os.Getenv("DP_CACHE_PATH")); err != nil {
		t.Fatalf("cache not created: %v", err)
	}

	out = mustRun(t, "layout", "show", id, "--backend", url)
	if !strings.Contains(out, "layout from server") || !strings.Contains(out, "Alpha") {
		t.Fatalf("show after reset:\n%s", out)
	}

	dir := t.TempDir()
	svg := filepath.Join(dir, "board.svg")
	mustRun(t, "layout", "export", id, "--out", svg, "--backend", url)
	data, err := os.ReadFile(svg)
	if err != nil || !bytes.Contains(data, []byte("<svg")) {
		t.Fatalf("svg export: %v", err)
	}

	out = mustRun(t, "layout", "export", id, "--preset", "web", "--out-dir", dir, "--json", "--backend", url)
	var files struct{ Files []string }
	if err := json.Unmarshal([]byte(out), &files); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(files.Files) != 2 {
		t.Fatalf("web preset wrote %v", files.Files)
	}
	for _, f := range files.Files {
		if _, err := os.Stat(f); err != nil {
			t.Fatalf("missing %s", f)
		}
	}

	if _, err := run(t, "layout", "export", id, "--out", filepath.Join(dir, "x.gif"), "--backend", url); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestParseSize(t *testing.T) {
	got, err := parseSize(" 800X600 ")
	if err != nil || got != (geometry.Size{W: 800, H: 600}) {
		t.Fatalf("parseSize = %+v, %v", got, err)
	}
	for _, bad := range []string{"", "800", "0x600", "ax600", "-1x5"} {
		if _, err := parseSize(bad); err == nil {
			t.Fatalf("parseSize(%q) succeeded", bad)
		}
	}
}

func TestReadEvents(t *testing.T) {
	in := strings.NewReader(`
# a drag
{"kind":"pointerdown","pointerId":1,"pos":{"x":1,"y":2}}

{"kind":"wheel","deltaY":-120,"ctrl":true}
`)
	evs, err := ReadEvents(in)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(evs) != 2 || evs[0].Kind != gesture.PointerDown || evs[0].Pos != (geometry.Pt{X: 1, Y: 2}) {
		t.Fatalf("events = %+v", evs)
	}
	if evs[1].Kind != gesture.Wheel || evs[1].DeltaY != -120 || !evs[1].Ctrl {
		t.Fatalf("wheel = %+v", evs[1])
	}

	if _, err := ReadEvents(strings.NewReader(`{"kind":"hover"}`)); err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("expected line error, got %v", err)
	}
}

// The single card is recentred to screen (450,250); dragging it by (50,50)
// and panning the background by (10,10) must both show up in the result.
func TestReplay_DragAndPan(t *testing.T) {
	env(t)
	dir := t.TempDir()
	layoutFile := filepath.Join(dir, "layout.json")
	if err := os.WriteFile(layoutFile, []byte(`{"version":2,"items":{"file:a":{"x":100,"y":100,"width":300,"height":200}}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	events := filepath.Join(dir, "events.jsonl")
	lines := strings.Join([]string{
		`{"kind":"pointerdown","pointerId":1,"pos":{"x":500,"y":300}}`,
		`{"kind":"pointermove","pointerId":1,"pos":{"x":550,"y":350}}`,
		`{"kind":"pointerup","pointerId":1,"pos":{"x":550,"y":350}}`,
		`{"kind":"pointerdown","pointerId":1,"pos":{"x":20,"y":20}}`,
		`{"kind":"pointermove","pointerId":1,"pos":{"x":30,"y":30}}`,
		`{"kind":"pointerup","pointerId":1,"pos":{"x":30,"y":30}}`,
	}, "\n")
	if err := os.WriteFile(events, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}

	out := mustRun(t, "replay", events, "--layout", layoutFile, "--json")
	var res replayResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v (%s)", err, out)
	}
	if res.Events != 6 || res.Session == "" {
		t.Fatalf("result = %+v", res)
	}
	if res.Intents["pan-start"] != 1 || res.Intents["pan-end"] != 1 {
		t.Fatalf("intents = %v", res.Intents)
	}
	if res.Viewport.Offset != (geometry.Pt{X: 360, Y: 160}) {
		t.Fatalf("offset = %+v", res.Viewport.Offset)
	}
	m, _, ok := codec.Decode(res.Layout, geometry.ClassifyBreakpoint(1200))
	if !ok || m["file:a"] != geometry.R(150, 150, 300, 200) {
		t.Fatalf("layout = %s", res.Layout)
	}
}

func TestReplay_RequiresOneSource(t *testing.T) {
	env(t)
	if _, err := run(t, "replay", "-"); err == nil {
		t.Fatalf("expected error without --layout or --collection")
	}
}

func TestConfig_ShowRedactsSecret(t *testing.T) {
	env(t)
	t.Setenv("DP_AUTH_SECRET", "hunter2")
	out := mustRun(t, "config", "show")
	if strings.Contains(out, "hunter2") || strings.Contains(out, adminKey) || !strings.Contains(out, redacted) {
		t.Fatalf("secret not redacted:\n%s", out)
	}
	if !strings.Contains(out, "server.auth_secret (DP_AUTH_SECRET)") {
		t.Fatalf("override not listed:\n%s", out)
	}

	out = mustRun(t, "config", "path")
	if strings.TrimSpace(out) != os.Getenv("DP_CONFIG") {
		t.Fatalf("path = %q", out)
	}
}

func TestLogin_RequiresAdminKey(t *testing.T) {
	url := env(t)
	t.Setenv("DP_ADMIN_KEY", "")
	cmd := NewRootCmd()
	var errOut bytes.Buffer
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"login", "--backend", url, "--subject", "alice"})
	if err := cmd.Execute(); !errors.Is(err, backend.ErrForbidden) {
		t.Fatalf("login without admin key: %v", err)
	}
	if !strings.Contains(errOut.String(), "--admin-key") {
		t.Fatalf("stderr = %q", errOut.String())
	}
	if _, err := run(t, "collections", "list", "--backend", url); err == nil {
		t.Fatalf("a failed login must not leave a usable token")
	}

	mustRun(t, "login", "--backend", url, "--subject", "alice", "--admin-key", adminKey)
	mustRun(t, "collections", "list", "--backend", url)
}

func TestLogout_ClearsToken(t *testing.T) {
	url := env(t)
	mustRun(t, "login", "--backend", url)
	mustRun(t, "logout")
	if _, err := run(t, "collections", "list", "--backend", url); err == nil {
		t.Fatalf("expected unauthorized after logout")
	}
}
