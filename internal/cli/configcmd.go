/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cli

import (
	"fmt"
	"sort"
	"strings"

	"dashpoint/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "********"

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged config (file, defaults and environment) as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.cfg
			if cfg.Server.AuthSecret != "" {
				cfg.Server.AuthSecret = redacted
			}
			if cfg.Server.AdminKey != "" {
				cfg.Server.AdminKey = redacted
			}
			if app.JSON {
				return writeOut(cmd, app, cfg, nil)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return writeErr(cmd, err)
			}
			out := cmd.OutOrStdout()
			if _, err := out.Write(data); err != nil {
				return err
			}
			if ov := overriddenKeys(); len(ov) > 0 {
				fmt.Fprintf(out, "# overridden by environment: %s\n", strings.Join(ov, ", "))
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := config.ConfigPath()
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]string{"path": p}, func() string { return p + "\n" })
		},
	})
	return cmd
}

func overriddenKeys() []string {
	var keys []string
	for _, k := range []string{
		"backend.base_url", "backend.timeout_ms", "backend.tls_insecure",
		"general.telemetry_opt_in", "server.addr", "server.database_url",
		"server.auth_secret", "server.admin_key", "server.dev", "canvas.persist_delay_ms", "cache.path",
		"logging.level", "logging.format", "logging.source", "logging.file",
	} {
		if env, ok := config.EnvOverrideFor(k); ok {
			keys = append(keys, k+" ("+env+")")
		}
	}
	sort.Strings(keys)
	return keys
}
