/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/jung-kurt/gofpdf"
)

// PDFOptions controls PDF export behavior.
// One world unit maps to one point; the page is sized to the overview.
// Built-in Helvetica keeps text vector without embedding.
type PDFOptions struct {
	IncludeGuides bool
	Palette       Palette
	FontSize      float64
}

// PDF writes ov as a single-page PDF at outPath.
func PDF(ov Overview, outPath string, opt PDFOptions) error {
	pal := opt.Palette.orDefault()
	fsz := opt.FontSize
	if fsz <= 0 {
		fsz = 12
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: ov.Width, Ht: ov.Height},
	})
	pdf.SetTitle(ov.Title, true)
	pdf.SetAuthor("Dashpoint", false)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if opt.IncludeGuides {
		setDrawColor(pdf, pal.Guide)
		pdf.SetLineWidth(0.2)
		pdf.Rect(ov.Margin, ov.Margin, ov.Width-2*ov.Margin, ov.Height-2*ov.Margin, "D")
	}

	pdf.SetFont("Helvetica", "", fsz)
	pdf.SetLineWidth(1)
	for _, c := range ov.Cards {
		r := c.Rect
		setFillColor(pdf, pal.fill(c.Type))
		setDrawColor(pdf, pal.Stroke)
		pdf.Rect(r.X, r.Y, r.Width, r.Height, "FD")

		pad := 8.0
		label := fitText(tr(c.Label), r.Width-2*pad, pdf.GetStringWidth)
		pdf.SetTextColor(int(pal.Text.R), int(pal.Text.G), int(pal.Text.B))
		pdf.Text(r.X+pad, r.Y+pad+fsz, label)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// fitText shortens s with a trailing ellipsis until width(s) <= max.
func fitText(s string, max float64, width func(string) float64) string {
	if max <= 0 {
		return ""
	}
	if width(s) <= max {
		return s
	}
	r := []rune(s)
	for len(r) > 0 {
		r = r[:len(r)-1]
		if t := string(r) + "..."; width(t) <= max {
			return t
		}
	}
	return ""
}

func setDrawColor(pdf *gofpdf.Fpdf, c color.RGBA) {
	pdf.SetDrawColor(int(c.R), int(c.G), int(c.B))
}

func setFillColor(pdf *gofpdf.Fpdf, c color.RGBA) {
	pdf.SetFillColor(int(c.R), int(c.G), int(c.B))
}
