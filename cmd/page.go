package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ines/tagmark/internal/models"
	"github.com/ines/tagmark/internal/output"
)

var pageCmd = &cobra.Command{
	Use:     "page",
	Short:   "Manage tagged pages",
	GroupID: "data",
}

var pageAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Add or update a page, optionally tagging it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		favicon, _ := cmd.Flags().GetString("favicon")
		tagNames, _ := cmd.Flags().GetStringArray("tag")

		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer app.Close(ctx)

		p, err := app.Store.CreateOrUpdatePage(args[0], title, favicon, description)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		for _, name := range tagNames {
			t, err := app.Store.CreateTagAndAddToPage(name, p.ID)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			if err := app.Engine.MarkTagChange(ctx, models.OpCreate, t.ID, &t); err != nil {
				output.Error("%v", err)
				return err
			}
		}
		if cur, ok := app.Store.PageAny(p.ID); ok {
			p = cur
		}
		if err := app.Engine.MarkPageChange(ctx, models.OpCreate, p.ID, &p); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Saved %s", p.URL)
		app.autoSync(ctx)
		return nil
	},
}

var pageTagCmd = &cobra.Command{
	Use:   "tag <url> <tag-name>",
	Short: "Attach a tag to a page, creating the tag if needed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer app.Close(ctx)

		p, ok := app.Store.PageByURL(args[0])
		if !ok {
			output.Error("page not found: %s", args[0])
			return fmt.Errorf("page not found")
		}
		t, err := app.Store.CreateTagAndAddToPage(args[1], p.ID)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if err := app.Engine.MarkTagChange(ctx, models.OpCreate, t.ID, &t); err != nil {
			output.Error("%v", err)
			return err
		}
		if cur, ok := app.Store.PageAny(p.ID); ok {
			if err := app.Engine.MarkPageChange(ctx, models.OpUpdate, cur.ID, &cur); err != nil {
				output.Error("%v", err)
				return err
			}
		}
		output.Success("Tagged %s with %s", p.URL, t.Name)
		app.autoSync(ctx)
		return nil
	},
}

var pageUntagCmd = &cobra.Command{
	Use:   "untag <url> <tag-name>",
	Short: "Detach a tag from a page",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer app.Close(ctx)

		p, ok := app.Store.PageByURL(args[0])
		if !ok {
			output.Error("page not found: %s", args[0])
			return fmt.Errorf("page not found")
		}
		t, err := resolveTag(app.Store, args[1])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if err := app.Store.RemoveTagFromPage(p.ID, t.ID); err != nil {
			output.Error("%v", err)
			return err
		}
		cur, _ := app.Store.PageAny(p.ID)
		op := models.OpUpdate
		if cur.Deleted {
			op = models.OpDelete
		}
		var payload *models.Page
		if op == models.OpUpdate {
			payload = &cur
		}
		if err := app.Engine.MarkPageChange(ctx, op, p.ID, payload); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Untagged %s", p.URL)
		app.autoSync(ctx)
		return nil
	},
}

var pageTitleCmd = &cobra.Command{
	Use:   "title <url> <title>",
	Short: "Set a page's title",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer app.Close(ctx)

		p, ok := app.Store.PageByURL(args[0])
		if !ok {
			output.Error("page not found: %s", args[0])
			return fmt.Errorf("page not found")
		}
		if err := app.Store.UpdatePageTitle(p.ID, args[1]); err != nil {
			output.Error("%v", err)
			return err
		}
		if cur, ok := app.Store.PageByID(p.ID); ok {
			if err := app.Engine.MarkPageChange(ctx, models.OpUpdate, cur.ID, &cur); err != nil {
				output.Error("%v", err)
				return err
			}
		}
		output.Success("Updated title for %s", p.URL)
		app.autoSync(ctx)
		return nil
	},
}

var pageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pages, optionally filtered by tag",
	RunE: func(cmd *cobra.Command, args []string) error {
		tagName, _ := cmd.Flags().GetString("tag")

		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer app.Close(ctx)

		var pages []models.Page
		if tagName != "" {
			t, err := resolveTag(app.Store, tagName)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			pages = app.Store.PagesWithTag(t.ID)
		} else {
			pages = app.Store.Pages()
		}
		if len(pages) == 0 {
			fmt.Println("No pages.")
			return nil
		}
		for _, p := range pages {
			title := p.Title
			if title == "" {
				title = p.URL
			}
			names := make([]string, 0, len(p.Tags))
			for _, id := range app.Store.LiveTagIDs(p) {
				if t, ok := app.Store.TagByID(id); ok {
					names = append(names, t.Name)
				}
			}
			fmt.Printf("%s\n  %s %s\n", output.Title(title), p.URL, output.Subtle(fmt.Sprintf("%v", names)))
		}
		return nil
	},
}

func init() {
	pageAddCmd.Flags().String("title", "", "page title")
	pageAddCmd.Flags().String("description", "", "page description")
	pageAddCmd.Flags().String("favicon", "", "favicon URL")
	pageAddCmd.Flags().StringArrayP("tag", "t", nil, "tag to attach (repeatable)")
	pageListCmd.Flags().String("tag", "", "only pages with this tag")
	pageCmd.AddCommand(pageAddCmd, pageTagCmd, pageUntagCmd, pageTitleCmd, pageListCmd)
	rootCmd.AddCommand(pageCmd)
}
