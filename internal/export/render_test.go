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
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleOverview(t *testing.T) Overview {
	t.Helper()
	ov, err := BuildOverview("Board <1>", sampleLayout(), map[string]string{"file:f1": "Specs & Notes"}, DefaultMargin)
	if err != nil {
		t.Fatalf("BuildOverview: %v", err)
	}
	return ov
}

func TestPDF_CreatesFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "board.pdf")
	if err := PDF(sampleOverview(t), out, PDFOptions{IncludeGuides: true}); err != nil {
		t.Fatalf("export: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(b, []byte("%PDF-")) {
		t.Fatalf("not a pdf: %q", b[:min(len(b), 8)])
	}
}

func TestPNG_SizeAndPixels(t *testing.T) {
	ov := sampleOverview(t)
	out := filepath.Join(t.TempDir(), "board.png")
	if err := PNG(ov, out, PNGOptions{Scale: 0.5}); err != nil {
		t.Fatalf("export png: %v", err)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 360 || b.Dy() != 290 {
		t.Fatalf("png size = %dx%d, want 360x290", b.Dx(), b.Dy())
	}
	// The first card's top-left corner carries the stroke color.
	pal := DefaultPalette()
	r, g, bl, _ := img.At(20, 20).RGBA()
	if uint8(r>>8) != pal.Stroke.R || uint8(g>>8) != pal.Stroke.G || uint8(bl>>8) != pal.Stroke.B {
		t.Fatalf("card corner not stroked")
	}
}

func TestRaster_CapsHugeLayouts(t *testing.T) {
	ov := Overview{Width: 100000, Height: 10, Cards: nil}
	img := Raster(ov, PNGOptions{Scale: 1})
	if img.Bounds().Dx() != MaxPNGSide {
		t.Fatalf("width = %d, want %d", img.Bounds().Dx(), MaxPNGSide)
	}
}

func TestSVG_EscapesLabels(t *testing.T) {
	b, err := SVG(sampleOverview(t), SVGOptions{IncludeGuides: true})
	if err != nil {
		t.Fatalf("svg: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "Specs &amp; Notes") || !strings.Contains(s, "<title>Board &lt;1&gt;</title>") {
		t.Fatalf("labels not escaped: %s", s)
	}
	if strings.Count(s, "data-key=") != 3 {
		t.Fatalf("expected 3 cards: %s", s)
	}
}

func TestBatchExport_Presets(t *testing.T) {
	ov := sampleOverview(t)
	dir := t.TempDir()
	web, err := BatchExport(ov, BatchOptions{Preset: PresetWeb, OutDir: dir})
	if err != nil {
		t.Fatalf("web preset: %v", err)
	}
	printed, err := BatchExport(ov, BatchOptions{Preset: PresetPrint, OutDir: dir, BaseName: "board"})
	if err != nil {
		t.Fatalf("print preset: %v", err)
	}
	want := []string{filepath.Join(dir, "layout.png"), filepath.Join(dir, "layout.svg"), filepath.Join(dir, "board.pdf")}
	got := append(web, printed...)
	if len(got) != len(want) {
		t.Fatalf("written = %v", got)
	}
	for i, p := range want {
		if got[i] != p {
			t.Fatalf("written[%d] = %s, want %s", i, got[i], p)
		}
		if st, err := os.Stat(p); err != nil || st.Size() == 0 {
			t.Fatalf("missing or empty %s: %v", p, err)
		}
	}
	if _, err := BatchExport(ov, BatchOptions{Formats: []string{"cbz"}, OutDir: dir}); err == nil {
		t.Fatalf("expected unknown format error")
	}
}

func TestFormatFromPath(t *testing.T) {
	for in, want := range map[string]string{"a.PDF": "pdf", "b.png": "png", "c.svg": "svg"} {
		if got, err := FormatFromPath(in); err != nil || got != want {
			t.Fatalf("%s: %q %v", in, got, err)
		}
	}
	if _, err := FormatFromPath("d.jpg"); err == nil {
		t.Fatalf("expected error for .jpg")
	}
}
