/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dashpoint/internal/codec"
	"dashpoint/internal/export"
	"dashpoint/internal/geometry"
	"dashpoint/internal/storage"
	"dashpoint/internal/ui"

	"github.com/spf13/cobra"
)

const closeTimeout = 10 * time.Second

// readOnly drops layout writes so inspecting a collection never persists
// the re-encoded payload.
type readOnly struct{ ui.Backend }

func (readOnly) UpdateCollectionLayouts(context.Context, string, []byte) error { return nil }

func parseSize(s string) (geometry.Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return geometry.Size{}, fmt.Errorf("canvas size %q: want WIDTHxHEIGHT", s)
	}
	fw, err1 := strconv.ParseFloat(w, 64)
	fh, err2 := strconv.ParseFloat(h, 64)
	if err := errors.Join(err1, err2); err != nil || fw <= 0 || fh <= 0 {
		return geometry.Size{}, fmt.Errorf("canvas size %q: want positive WIDTHxHEIGHT", s)
	}
	return geometry.Size{W: fw, H: fh}, nil
}

func (a *App) openCache() (*storage.Cache, error) {
	path := a.cfg.Cache.Path
	if path == "" {
		p, err := storage.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return storage.OpenCache(path)
}

// openSession loads a collection into a layout store. Read-only sessions
// neither write to the API nor touch the local cache.
func (a *App) openSession(ctx context.Context, id, canvas string, writable bool) (*ui.Session, func(), error) {
	size, err := parseSize(canvas)
	if err != nil {
		return nil, nil, err
	}
	opts := ui.OpenOptions{Canvas: a.cfg.Canvas, Size: size, Logger: a.log}
	cleanup := func() {}
	if writable {
		cache, err := a.openCache()
		if err != nil {
			return nil, nil, fmt.Errorf("open layout cache: %w", err)
		}
		opts.Backend, opts.Cache = a.client(), cache
		cleanup = func() { _ = cache.Close() }
	} else {
		opts.Backend = readOnly{a.client()}
	}
	s, err := ui.Open(ctx, id, opts)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return s, func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := s.Close(cctx); err != nil {
			a.log.Warn("layout flush did not finish", "err", err)
		}
		cleanup()
	}, nil
}

func newLayoutCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Inspect, reset or export a collection's canvas layout",
	}
	cmd.PersistentFlags().String("canvas", "1200x700", "Canvas size used to pick a breakpoint and place new cards")
	cmd.AddCommand(newLayoutShowCmd(app))
	cmd.AddCommand(newLayoutResetCmd(app))
	cmd.AddCommand(newLayoutExportCmd(app))
	return cmd
}

type layoutView struct {
	Collection string           `json:"collection"`
	Name       string           `json:"name"`
	Source     string           `json:"source"`
	Items      codec.LayoutMap  `json:"items"`
	Bounds     *geometry.Bounds `json:"bounds,omitempty"`
}

func newLayoutShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <collection-id>",
		Short: "Print the effective card rectangles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			canvas, _ := cmd.Flags().GetString("canvas")
			s, done, err := app.openSession(cmd.Context(), args[0], canvas, false)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()

			v := layoutView{Collection: args[0], Name: s.Collection.Name, Source: string(s.Source), Items: s.Store.Snapshot()}
			if b, ok := s.Store.Bounds(); ok {
				v.Bounds = &b
			}
			labels := s.Labels()
			return writeOut(cmd, app, v, func() string {
				var b strings.Builder
				fmt.Fprintf(&b, "%s (layout from %s)\n", v.Name, v.Source)
				for _, k := range s.Store.Keys() {
					r := v.Items[k]
					fmt.Fprintf(&b, "%-24s %7.0f %7.0f %6.0fx%-6.0f %s\n", k, r.X, r.Y, r.Width, r.Height, labels[k])
				}
				return b.String()
			})
		},
	}
}

func newLayoutResetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <collection-id>",
		Short: "Place every card on the default grid and save",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			canvas, _ := cmd.Flags().GetString("canvas")
			s, done, err := app.openSession(cmd.Context(), args[0], canvas, true)
			if err != nil {
				return writeErr(cmd, err)
			}
			s.ResetLayout()
			n := s.Store.Len()
			done()
			return writeOut(cmd, app, map[string]any{"collection": args[0], "items": n}, func() string {
				return fmt.Sprintf("Reset %d cards\n", n)
			})
		},
	}
}

func newLayoutExportCmd(app *App) *cobra.Command {
	var (
		out     string
		outDir  string
		preset  string
		formats []string
		guides  bool
		scale   float64
		margin  float64
	)
	cmd := &cobra.Command{
		Use:   "export <collection-id>",
		Short: "Render the layout as PDF, PNG or SVG",
		Long: `Render the layout overview. With --out the format follows the file
extension; otherwise --preset (web: png+svg, print: pdf) writes into --out-dir.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			canvas, _ := cmd.Flags().GetString("canvas")
			s, done, err := app.openSession(cmd.Context(), args[0], canvas, false)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()

			ov, err := export.BuildOverview(s.Collection.Name, s.Store.Snapshot(), s.Labels(), margin)
			if err != nil {
				return writeErr(cmd, err)
			}
			var written []string
			if out != "" {
				f, err := export.FormatFromPath(out)
				if err != nil {
					return writeErr(cmd, err)
				}
				switch f {
				case "pdf":
					err = export.PDF(ov, out, export.PDFOptions{IncludeGuides: guides})
				case "png":
					err = export.PNG(ov, out, export.PNGOptions{IncludeGuides: guides, Scale: scale})
				case "svg":
					err = export.WriteSVG(ov, out, export.SVGOptions{IncludeGuides: guides})
				}
				if err != nil {
					return writeErr(cmd, err)
				}
				written = []string{out}
			} else {
				opt := export.BatchOptions{
					Preset:   export.PresetName(preset),
					Formats:  formats,
					Scale:    scale,
					OutDir:   outDir,
					BaseName: s.Collection.ID,
				}
				if cmd.Flags().Changed("guides") {
					opt.IncludeGuides = &guides
				}
				written, err = export.BatchExport(ov, opt)
				if err != nil {
					return writeErr(cmd, err)
				}
			}
			return writeOut(cmd, app, map[string]any{"files": written}, func() string {
				return strings.Join(written, "\n") + "\n"
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Output file (.pdf, .png or .svg)")
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "Output directory for preset exports")
	cmd.Flags().StringVar(&preset, "preset", string(export.PresetPrint), "Preset when --out is not given (web|print)")
	cmd.Flags().StringSliceVar(&formats, "format", nil, "Formats for preset exports (pdf,png,svg)")
	cmd.Flags().BoolVar(&guides, "guides", false, "Draw the content margin guide")
	cmd.Flags().Float64Var(&scale, "scale", 1, "PNG pixels per canvas unit")
	cmd.Flags().Float64Var(&margin, "margin", export.DefaultMargin, "Blank border around the cards")
	return cmd
}
