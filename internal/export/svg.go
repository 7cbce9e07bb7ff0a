/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
)

// SVGOptions controls SVG export behavior.
type SVGOptions struct {
	IncludeGuides bool
	Palette       Palette
	FontSize      float64
}

// SVG renders ov as a standalone SVG document. The viewBox is in world units.
func SVG(ov Overview, opt SVGOptions) ([]byte, error) {
	pal := opt.Palette.orDefault()
	fsz := opt.FontSize
	if fsz <= 0 {
		fsz = 12
	}

	var buf bytes.Buffer
	var werr error
	wf := func(format string, args ...any) {
		if werr != nil {
			return
		}
		_, werr = fmt.Fprintf(&buf, format, args...)
	}

	wf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	wf("<svg xmlns=\"http://www.w3.org/2000/svg\" version=\"1.1\" width=\"%g\" height=\"%g\" viewBox=\"0 0 %g %g\">\n", ov.Width, ov.Height, ov.Width, ov.Height)
	if ov.Title != "" {
		wf("  <title>%s</title>\n", escText(ov.Title))
	}
	wf("  <rect x=\"0\" y=\"0\" width=\"%g\" height=\"%g\" fill=\"%s\"/>\n", ov.Width, ov.Height, svgColor(pal.Background))

	if opt.IncludeGuides {
		wf("  <rect x=\"%g\" y=\"%g\" width=\"%g\" height=\"%g\" fill=\"none\" stroke=\"%s\" stroke-width=\"0.5\"/>\n",
			ov.Margin, ov.Margin, ov.Width-2*ov.Margin, ov.Height-2*ov.Margin, svgColor(pal.Guide))
	}

	stroke := svgColor(pal.Stroke)
	text := svgColor(pal.Text)
	for _, c := range ov.Cards {
		r := c.Rect
		wf("  <g data-key=\"%s\">\n", escAttr(c.Key))
		wf("    <rect x=\"%g\" y=\"%g\" width=\"%g\" height=\"%g\" rx=\"8\" fill=\"%s\" stroke=\"%s\" stroke-width=\"1\"/>\n",
			r.X, r.Y, r.Width, r.Height, svgColor(pal.fill(c.Type)), stroke)
		wf("    <text x=\"%g\" y=\"%g\" font-family=\"Helvetica, Arial, sans-serif\" font-size=\"%g\" fill=\"%s\">%s</text>\n",
			r.X+8, r.Y+8+fsz, fsz, text, escText(c.Label))
		wf("  </g>\n")
	}
	wf("</svg>\n")
	if werr != nil {
		return nil, fmt.Errorf("build svg: %w", werr)
	}
	return buf.Bytes(), nil
}

// WriteSVG writes the SVG rendering of ov to outPath.
func WriteSVG(ov Overview, outPath string, opt SVGOptions) error {
	b, err := SVG(ov, opt)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := os.WriteFile(outPath, b, 0o644); err != nil {
		return fmt.Errorf("write svg: %w", err)
	}
	return nil
}

func svgColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\"", "&quot;", "'", "&apos;")
)

func escText(s string) string { return textEscaper.Replace(s) }

func escAttr(s string) string { return attrEscaper.Replace(s) }
