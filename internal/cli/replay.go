/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"dashpoint/internal/codec"
	"dashpoint/internal/geometry"
	"dashpoint/internal/gesture"
	"dashpoint/internal/layout"
	applog "dashpoint/internal/log"
	"dashpoint/internal/ui"
	"dashpoint/internal/undo"
	"dashpoint/internal/viewport"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// ReadEvents parses JSON Lines of gesture events. Blank lines and lines
// starting with # are skipped.
func ReadEvents(r io.Reader) ([]gesture.Event, error) {
	var out []gesture.Event
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 || b[0] == '#' {
			continue
		}
		var e gesture.Event
		if err := json.Unmarshal(b, &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

type replayResult struct {
	Session  string          `json:"session"`
	Events   int             `json:"events"`
	Intents  map[string]int  `json:"intents"`
	Viewport viewport.State  `json:"viewport"`
	Layout   json.RawMessage `json:"layout"`
}

func newReplayCmd(app *App) *cobra.Command {
	var (
		layoutPath string
		collection string
		canvas     string
	)
	cmd := &cobra.Command{
		Use:   "replay <events.jsonl>",
		Short: "Feed recorded input events through the canvas engine",
		Long: `Replay reads one gesture event per line ("-" for stdin) and applies it
to a board loaded from --layout or, read-only, from --collection. It prints
the final camera, a count of recognised intents and the resulting layout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (layoutPath == "") == (collection == "") {
				return writeErr(cmd, fmt.Errorf("exactly one of --layout or --collection is required"))
			}
			events, err := readEventsFile(cmd, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}

			sid := uuid.NewString()
			ctx := applog.ContextWithSession(cmd.Context(), sid)
			l := applog.WithOperation(app.log, "replay")

			var board *ui.Board
			if collection != "" {
				s, done, err := app.openSession(ctx, collection, canvas, false)
				if err != nil {
					return writeErr(cmd, err)
				}
				defer done()
				board = s.Board
			} else {
				board, err = boardFromFile(ctx, layoutPath, canvas, "replay-"+sid, app, l)
				if err != nil {
					return writeErr(cmd, err)
				}
				defer func() { _ = board.Store().Close(context.WithoutCancel(ctx)) }()
			}

			res := replayResult{Session: sid, Events: len(events), Intents: map[string]int{}}
			for _, e := range events {
				r := board.Handle(e)
				if r.Intent != gesture.IntentNone {
					res.Intents[r.Intent.String()]++
				}
			}
			board.Detach()
			res.Viewport = board.Viewport()
			st := board.Store()
			res.Layout, err = codec.Marshal(codec.Encode(st.Snapshot(), board.Canvas(), time.Now()))
			if err != nil {
				return writeErr(cmd, err)
			}
			l.InfoContext(ctx, "replay finished", slog.Int("events", len(events)), slog.Int("items", st.Len()))

			return writeOut(cmd, app, res, func() string {
				var b strings.Builder
				fmt.Fprintf(&b, "events   %d\n", res.Events)
				fmt.Fprintf(&b, "viewport scale=%.3f offset=(%.1f, %.1f)\n", res.Viewport.Scale, res.Viewport.Offset.X, res.Viewport.Offset.Y)
				names := make([]string, 0, len(res.Intents))
				for n := range res.Intents {
					names = append(names, n)
				}
				sort.Strings(names)
				for _, n := range names {
					fmt.Fprintf(&b, "intent   %-18s %d\n", n, res.Intents[n])
				}
				snap := st.Snapshot()
				for _, k := range st.Keys() {
					r := snap[k]
					fmt.Fprintf(&b, "card     %-24s %7.0f %7.0f %6.0fx%.0f\n", k, r.X, r.Y, r.Width, r.Height)
				}
				return b.String()
			})
		},
	}
	cmd.Flags().StringVar(&layoutPath, "layout", "", "Layout file in any supported payload shape")
	cmd.Flags().StringVar(&collection, "collection", "", "Load the layout from this collection instead (never written)")
	cmd.Flags().StringVar(&canvas, "canvas", "1200x700", "Canvas size WIDTHxHEIGHT")
	return cmd
}

func readEventsFile(cmd *cobra.Command, path string) ([]gesture.Event, error) {
	if path == "-" {
		return ReadEvents(cmd.InOrStdin())
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadEvents(f)
}

// boardFromFile builds a board over a store that keeps the layout in memory
// only. The file must decode to a non-empty layout.
func boardFromFile(ctx context.Context, path, canvas, id string, app *App, l *slog.Logger) (*ui.Board, error) {
	size, err := parseSize(canvas)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var b *ui.Board
	store, err := layout.New(layout.Options{
		CollectionID: id,
		Canvas:       func() geometry.Size { return b.Canvas() },
		Gap:          app.cfg.Canvas.Gap,
		Logger:       l,
		History:      undo.NewManager(undo.Config{}),
	})
	if err != nil {
		return nil, err
	}
	var snap *geometry.SnapOptions
	if t := app.cfg.Canvas.SnapThreshold; t > 0 {
		snap = &geometry.SnapOptions{Threshold: t, SnapToEdges: true, SnapToCenters: true}
	}
	b = ui.NewBoard(store, ui.BoardOptions{Snap: snap, FitMargin: 24, Logger: l})
	b.SetCanvas(size)
	if src := store.Load(ctx, raw); src != layout.SourceServer || store.Len() == 0 {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("%s: no layout items found", path)
	}
	b.Recenter()
	return b, nil
}
