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
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"dashpoint/internal/backend"
	"dashpoint/internal/config"
	applog "dashpoint/internal/log"
	"dashpoint/internal/version"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newVersionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := map[string]string{"name": "dashpoint", "version": version.String()}
			return writeOut(cmd, app, v, func() string { return "dashpoint " + version.String() + "\n" })
		},
	}
}

func newServeCmd(app *App) *cobra.Command {
	var (
		addr   string
		dsn    string
		memory bool
		dev    bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference collection API",
		Long: `Serve the collection API over HTTP. Collections live in PostgreSQL
(--database-url, DP_DATABASE_URL or DATABASE_URL) unless --memory is given.
The config file is watched; logging settings apply without a restart.

Tokens are minted only in dev mode (--dev, or no auth secret) or for callers
that send the admin key (server.admin_key, DP_ADMIN_KEY).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sc := app.cfg.Server
			if addr != "" {
				sc.Addr = addr
			}
			if dsn != "" {
				sc.DatabaseURL = dsn
			}
			if sc.DatabaseURL == "" {
				sc.DatabaseURL = os.Getenv("DATABASE_URL")
			}

			repo, closeRepo, err := openRepo(ctx, sc.DatabaseURL, memory)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer closeRepo()

			if cmd.Flags().Changed("dev") {
				sc.Dev = dev
			}
			srv := backend.NewServerWithOptions(repo, backend.ServerOptions{
				Secret:   sc.AuthSecret,
				AdminKey: sc.AdminKey,
				Dev:      sc.Dev,
			})
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.ListenAndServe(gctx, sc.Addr) })
			if path, err := config.ConfigPath(); err == nil {
				g.Go(func() error { return watchConfig(gctx, path) })
			}
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return writeErr(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	cmd.Flags().StringVar(&dsn, "database-url", "", "PostgreSQL DSN")
	cmd.Flags().BoolVar(&memory, "memory", false, "Keep collections in memory (development only)")
	cmd.Flags().BoolVar(&dev, "dev", false, "Let any caller mint tokens (development only)")
	return cmd
}

func openRepo(ctx context.Context, dsn string, memory bool) (backend.Repo, func(), error) {
	l := applog.WithComponent("cli")
	if memory {
		l.Warn("serving from memory; collections are lost on exit")
		return backend.NewMemRepo(), func() {}, nil
	}
	if dsn == "" {
		return nil, nil, fmt.Errorf("no database configured: pass --database-url or --memory")
	}
	repo, err := backend.OpenPG(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return repo, func() { _ = repo.Close() }, nil
}

// watchConfig re-applies logging settings whenever the config file changes.
// A watcher that cannot start is logged and does not stop the server.
func watchConfig(ctx context.Context, path string) error {
	err := config.Watch(ctx, path, 0, func(cfg config.AppConfig, err error) {
		if err == nil {
			applog.Init(cfg.Logging.LogOptions())
		}
	})
	if err != nil {
		applog.WithComponent("cli").Warn("config watch disabled", slog.String("path", path), slog.Any("err", err))
	}
	return nil
}
