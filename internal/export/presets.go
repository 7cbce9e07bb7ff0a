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
	"path/filepath"
	"strings"
)

// PresetName represents a named export preset.
type PresetName string

const (
	PresetWeb   PresetName = "web"
	PresetPrint PresetName = "print"
)

// BatchOptions controls exporting one overview in several formats.
//
// Files are named <BaseName>.<format> inside OutDir.
type BatchOptions struct {
	Preset        PresetName
	Formats       []string // allowed: pdf, png, svg; empty means preset defaults
	IncludeGuides *bool    // when set, overrides preset's default for guides
	Scale         float64  // PNG pixels per world unit
	OutDir        string
	BaseName      string // defaults to "layout"
}

// BatchExport writes ov in every requested format and returns the paths written.
func BatchExport(ov Overview, opt BatchOptions) ([]string, error) {
	formats := opt.Formats
	if len(formats) == 0 {
		formats = presetDefaultFormats(opt.Preset)
	}
	guides := presetIncludeGuides(opt.Preset)
	if opt.IncludeGuides != nil {
		guides = *opt.IncludeGuides
	}
	base := strings.TrimSpace(opt.BaseName)
	if base == "" {
		base = "layout"
	}

	var written []string
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		out := filepath.Join(opt.OutDir, base+"."+f)
		var err error
		switch f {
		case "pdf":
			err = PDF(ov, out, PDFOptions{IncludeGuides: guides})
		case "png":
			err = PNG(ov, out, PNGOptions{IncludeGuides: guides, Scale: opt.Scale})
		case "svg":
			err = WriteSVG(ov, out, SVGOptions{IncludeGuides: guides})
		default:
			return written, fmt.Errorf("unknown format: %s", f)
		}
		if err != nil {
			return written, fmt.Errorf("%s: %w", f, err)
		}
		written = append(written, out)
	}
	return written, nil
}

// FormatFromPath picks the export format from a file extension.
func FormatFromPath(path string) (string, error) {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case "pdf", "png", "svg":
		return ext, nil
	default:
		return "", fmt.Errorf("unsupported export extension %q (want .pdf, .png or .svg)", filepath.Ext(path))
	}
}

func presetDefaultFormats(p PresetName) []string {
	switch p {
	case PresetWeb:
		return []string{"png", "svg"}
	case PresetPrint:
		return []string{"pdf"}
	default:
		return []string{"pdf"}
	}
}

func presetIncludeGuides(p PresetName) bool {
	return p != PresetWeb
}
