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
	"time"

	"dashpoint/internal/config"

	"github.com/spf13/cobra"
)

func newLoginCmd(app *App) *cobra.Command {
	var (
		subject  string
		ttl      time.Duration
		adminKey string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Request a bearer token and store it in the OS keychain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := app.client()
			c.AdminKey = app.cfg.Server.AdminKey
			if adminKey != "" {
				c.AdminKey = adminKey
			}
			tok, err := c.RequestToken(cmd.Context(), subject, ttl)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := config.Save(app.cfg, tok); err != nil {
				return writeErr(cmd, fmt.Errorf("save token: %w", err))
			}
			app.token = tok
			out := map[string]string{"subject": subject, "backend": app.cfg.Backend.BaseURL}
			return writeOut(cmd, app, out, func() string {
				return fmt.Sprintf("Signed in to %s as %s\n", app.cfg.Backend.BaseURL, subject)
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "dev", "Account the token is issued for")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime (max 24h)")
	cmd.Flags().StringVar(&adminKey, "admin-key", "", "Admin key for servers not in dev mode (default from config or DP_ADMIN_KEY)")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.ClearToken(); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]bool{"ok": true}, func() string { return "Signed out\n" })
		},
	}
}
