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
	"strings"

	"dashpoint/internal/backend"
	"dashpoint/internal/domain"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func newCollectionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collections",
		Aliases: []string{"c"},
		Short:   "Manage collections on the API",
	}
	cmd.AddCommand(newCollectionsListCmd(app))
	cmd.AddCommand(newCollectionsCreateCmd(app))
	cmd.AddCommand(newCollectionsDeleteCmd(app))
	cmd.AddCommand(newCollectionsAddItemCmd(app))
	cmd.AddCommand(newCollectionsRemoveItemCmd(app))
	return cmd
}

func newCollectionsListCmd(app *App) *cobra.Command {
	var q backend.ListQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your collections, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := app.client().ListCollections(cmd.Context(), q)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, page, func() string {
				var b strings.Builder
				for _, c := range page.Collections {
					layout := "-"
					if c.HasLayouts() {
						layout = "layout"
					}
					fmt.Fprintf(&b, "%s  %-28s %s\n", c.ID, c.Name, layout)
				}
				fmt.Fprintf(&b, "page %d/%d, %d total\n", page.Pagination.Current, page.Pagination.Pages, page.Pagination.Total)
				return b.String()
			})
		},
	}
	cmd.Flags().StringVar(&q.Search, "search", "", "Match name, description or tags")
	cmd.Flags().IntVar(&q.Page, "page", 1, "Page number (1-based)")
	cmd.Flags().IntVar(&q.Limit, "limit", 20, "Page size (max 100)")
	return cmd
}

func newCollectionsCreateCmd(app *App) *cobra.Command {
	var (
		in     backend.NewCollection
		public bool
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Name = args[0]
			if cmd.Flags().Changed("public") {
				private := !public
				in.IsPrivate = &private
			}
			c, err := app.client().CreateCollection(cmd.Context(), in)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, c, func() string { return c.ID + "\n" })
		},
	}
	cmd.Flags().StringVar(&in.Description, "description", "", "Description")
	cmd.Flags().StringVar(&in.Color, "color", "", "Hex color, e.g. #3B82F6")
	cmd.Flags().StringVar(&in.Icon, "icon", "", "Icon name")
	cmd.Flags().StringSliceVar(&in.Tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().BoolVar(&public, "public", false, "Make the collection public")
	return cmd
}

func newCollectionsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection-id>",
		Short: "Delete a collection and its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.client().DeleteCollection(cmd.Context(), args[0]); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]string{"deleted": args[0]}, func() string { return "Deleted " + args[0] + "\n" })
		},
	}
}

func itemsText(c *domain.CollectionWithItems) func() string {
	return func() string {
		var b strings.Builder
		for _, it := range c.Items {
			fmt.Fprintf(&b, "%s:%s  %s\n", it.ItemType, it.ItemID, it.Title())
		}
		fmt.Fprintf(&b, "%d items\n", len(c.Items))
		return b.String()
	}
}

func newCollectionsAddItemCmd(app *App) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "add-item <collection-id> <item-type> <item-id>",
		Short: "Attach an item (youtube, file, planner or content)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !domain.ValidItemType(args[1]) {
				return writeErr(cmd, fmt.Errorf("unknown item type %q", args[1]))
			}
			var itemData any
			if strings.TrimSpace(data) != "" {
				if !json.Valid([]byte(data)) {
					return writeErr(cmd, fmt.Errorf("--data is not valid JSON"))
				}
				itemData = json.RawMessage(data)
			}
			c, err := app.client().AddItem(cmd.Context(), args[0], args[1], args[2], itemData)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, c, itemsText(c))
		},
	}
	cmd.Flags().StringVar(&data, "data", "", `Item data as JSON, e.g. '{"title":"Intro"}'`)
	return cmd
}

func newCollectionsRemoveItemCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-item <collection-id> <item-type> <item-id>",
		Short: "Detach an item",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.client().RemoveItem(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, c, itemsText(c))
		},
	}
}
