/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package version exposes build metadata. Values are overridden at link time:
//
//	go build -ldflags "-X dashpoint/internal/version.Version=1.2.3 -X dashpoint/internal/version.Commit=abc"
package version

import "runtime/debug"

var (
	Version = "0.1.0-dev"
	Commit  = ""
	Date    = ""
)

// String returns "version (commit, date)" with empty parts omitted.
func String() string {
	c := Commit
	if c == "" {
		c = vcsRevision()
	}
	s := Version
	switch {
	case c != "" && Date != "":
		s += " (" + c + ", " + Date + ")"
	case c != "":
		s += " (" + c + ")"
	case Date != "":
		s += " (" + Date + ")"
	}
	return s
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, kv := range info.Settings {
		if kv.Key == "vcs.revision" && len(kv.Value) >= 7 {
			return kv.Value[:7]
		}
	}
	return ""
}
