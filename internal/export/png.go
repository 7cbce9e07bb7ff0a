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
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// MaxPNGSide caps either image dimension; larger layouts are scaled down.
const MaxPNGSide = 8192

// PNGOptions controls PNG export behavior.
// - Scale: pixels per world unit, 1 when zero
// - IncludeGuides: draw the content bounds as a hairline
type PNGOptions struct {
	IncludeGuides bool
	Scale         float64
	Palette       Palette
}

// Raster renders ov into an RGBA image.
func Raster(ov Overview, opt PNGOptions) *image.RGBA {
	pal := opt.Palette.orDefault()
	scale := opt.Scale
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		scale = 1
	}
	if side := math.Max(ov.Width, ov.Height) * scale; side > MaxPNGSide {
		scale *= MaxPNGSide / side
	}
	px := func(v float64) int { return int(math.Round(v * scale)) }
	pixW, pixH := max(px(ov.Width), 1), max(px(ov.Height), 1)

	img := image.NewRGBA(image.Rect(0, 0, pixW, pixH))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: pal.Background}, image.Point{}, draw.Src)

	if opt.IncludeGuides {
		m := px(ov.Margin)
		strokeRect(img, m, m, pixW-m-1, pixH-m-1, pal.Guide)
	}

	face := basicfont.Face7x13
	for _, c := range ov.Cards {
		x, y := px(c.Rect.X), px(c.Rect.Y)
		x1, y1 := x+px(c.Rect.Width)-1, y+px(c.Rect.Height)-1
		fillRect(img, x, y, x1, y1, pal.fill(c.Type))
		strokeRect(img, x, y, x1, y1, pal.Stroke)

		pad := 6
		avail := float64(x1 - x - 2*pad)
		label := fitText(c.Label, avail, func(s string) float64 {
			return float64(font.MeasureString(face, s).Round())
		})
		if label == "" || y1-y < face.Height+2*pad {
			continue
		}
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(pal.Text),
			Face: face,
			Dot:  fixed.P(x+pad, y+pad+face.Ascent),
		}
		d.DrawString(label)
	}
	return img
}

// PNG writes ov as a PNG image at outPath.
func PNG(ov Overview, outPath string, opt PNGOptions) error {
	img := Raster(ov, opt)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close png: %w", err)
	}
	return nil
}

// strokeRect draws a 1px axis-aligned rectangle border inclusive of endpoints.
func strokeRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y0, col)
		img.SetRGBA(x, y1, col)
	}
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x0, y, col)
		img.SetRGBA(x1, y, col)
	}
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	draw.Draw(img, image.Rect(x0, y0, x1+1, y1+1), &image.Uniform{C: col}, image.Point{}, draw.Src)
}
