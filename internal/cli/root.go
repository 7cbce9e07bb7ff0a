/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package cli wires the dashpoint commands: the reference API server, the
// collection and layout tools, event replay and the desktop UI.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"dashpoint/internal/backend"
	"dashpoint/internal/config"
	applog "dashpoint/internal/log"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// EnvToken overrides the keychain token.
const EnvToken = "DP_TOKEN"

// App holds the global flags and the resolved configuration.
type App struct {
	ConfigPath string
	BackendURL string
	Token      string
	JSON       bool

	cfg   config.AppConfig
	token string
	log   *slog.Logger
}

// NewRootCmd builds the dashpoint command tree.
func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "dashpoint",
		Short:        "Collection canvas: layout tools, API server and desktop UI",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Run the reference API in memory
  dashpoint serve --memory

  # Sign in and list collections
  dashpoint login --subject alice
  dashpoint collections list

  # Inspect and export a collection's layout
  dashpoint layout show <collection-id>
  dashpoint layout export <collection-id> --out board.pdf

  # Feed recorded input through the canvas engine
  dashpoint replay events.jsonl --layout layout.json
`),
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return app.load()
	}

	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", "", "Config file (default: per-user config dir; env "+config.EnvConfigPath+")")
	cmd.PersistentFlags().StringVar(&app.BackendURL, "backend", "", "Collection API base URL (overrides config)")
	cmd.PersistentFlags().StringVar(&app.Token, "token", "", "Bearer token (overrides keychain; env "+EnvToken+")")
	cmd.PersistentFlags().BoolVar(&app.JSON, "json", false, "Print JSON instead of text")

	cmd.AddCommand(newVersionCmd(app))
	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newLogoutCmd(app))
	cmd.AddCommand(newCollectionsCmd(app))
	cmd.AddCommand(newLayoutCmd(app))
	cmd.AddCommand(newReplayCmd(app))
	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newUICmd(app))
	return cmd
}

func (a *App) load() error {
	if a.ConfigPath != "" {
		if err := os.Setenv(config.EnvConfigPath, a.ConfigPath); err != nil {
			return err
		}
	}
	cfg, tok, err := config.Load()
	applog.Init(cfg.Logging.LogOptions())
	a.log = applog.WithComponent("cli")
	if err != nil {
		a.log.Warn("config not fully loaded; using defaults", slog.Any("err", err))
	}
	if a.BackendURL != "" {
		cfg.Backend.BaseURL = a.BackendURL
	}
	switch {
	case a.Token != "":
		tok = a.Token
	case os.Getenv(EnvToken) != "":
		tok = os.Getenv(EnvToken)
	}
	a.cfg, a.token = cfg, tok
	return nil
}

func (a *App) client() *backend.Client {
	return backend.NewClientWithOptions(a.cfg.Backend.BaseURL, a.token, backend.ClientOptions{
		Timeout:     a.cfg.Backend.Timeout(),
		TLSInsecure: a.cfg.Backend.TLSInsecure,
	})
}

// writeOut prints v as indented JSON with --json, otherwise calls text.
func writeOut(cmd *cobra.Command, app *App, v any, text func() string) error {
	if app.JSON || text == nil {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return err
	}
	_, err := fmt.Fprint(cmd.OutOrStdout(), text())
	return err
}

func writeErr(cmd *cobra.Command, err error) error {
	if errors.Is(err, backend.ErrUnauthorized) {
		err = fmt.Errorf("%w (run: dashpoint login)", err)
	} else if errors.Is(err, backend.ErrForbidden) {
		err = fmt.Errorf("%w (set --admin-key or DP_ADMIN_KEY)", err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err.Error())
	return err
}
