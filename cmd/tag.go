package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ines/tagmark/internal/models"
	"github.com/ines/tagmark/internal/output"
	"github.com/ines/tagmark/internal/store"
)

var tagCmd = &cobra.Command{
	Use:     "tag",
	Short:   "Manage tags",
	GroupID: "data",
}

var tagCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		color, _ := cmd.Flags().GetString("color")

		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer app.Close(ctx)

		t, err := app.Store.CreateTag(args[0], description, color)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if err := app.Engine.MarkTagChange(ctx, models.OpCreate, t.ID, &t); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Created tag %s (%s)", t.Name, t.ID)
		app.autoSync(ctx)
		return nil
	},
}

var tagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer app.Close(ctx)

		tags := app.Store.Tags()
		if len(tags) == 0 {
			fmt.Println("No tags.")
			return nil
		}
		for _, t := range tags {
			line := fmt.Sprintf("%s  %s", t.Name, output.Subtle(t.ID))
			if len(t.Bindings) > 0 {
				line += output.Subtle(fmt.Sprintf("  (%d bound)", len(t.Bindings)))
			}
			fmt.Println(line)
		}
		return nil
	},
}

var tagRenameCmd = &cobra.Command{
	Use:   "rename <name> <new-name>",
	Short: "Rename a tag",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer app.Close(ctx)

		t, err := resolveTag(app.Store, args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		renamed, err := app.Store.UpdateTagName(t.ID, args[1])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if err := app.Engine.MarkTagChange(ctx, models.OpUpdate, renamed.ID, &renamed); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Renamed %s to %s", t.Name, renamed.Name)
		app.autoSync(ctx)
		return nil
	},
}

var tagBindCmd = &cobra.Command{
	Use:   "bind <name> <name>",
	Short: "Bind two tags symmetrically",
	Args:  cobra.ExactArgs(2),
	RunE:  runBind(true),
}

var tagUnbindCmd = &cobra.Command{
	Use:   "unbind <name> <name>",
	Short: "Remove the binding between two tags",
	Args:  cobra.ExactArgs(2),
	RunE:  runBind(false),
}

func runBind(bind bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer app.Close(ctx)

		a, err := resolveTag(app.Store, args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		b, err := resolveTag(app.Store, args[1])
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if bind {
			err = app.Store.BindTags(a.ID, b.ID)
		} else {
			err = app.Store.UnbindTags(a.ID, b.ID)
		}
		if err != nil {
			output.Error("%v", err)
			return err
		}

		for _, id := range []string{a.ID, b.ID} {
			if t, ok := app.Store.TagByID(id); ok {
				if err := app.Engine.MarkTagChange(ctx, models.OpUpdate, id, &t); err != nil {
					output.Error("%v", err)
					return err
				}
			}
		}
		if bind {
			output.Success("Bound %s <-> %s", a.Name, b.Name)
		} else {
			output.Success("Unbound %s <-> %s", a.Name, b.Name)
		}
		app.autoSync(ctx)
		return nil
	}
}

var tagDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a tag and detach it everywhere",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer app.Close(ctx)

		t, err := resolveTag(app.Store, args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}

		// The cascade touches every page carrying the tag; capture them
		// first so their updates get pushed too.
		affected := app.Store.PagesWithTag(t.ID)

		if err := app.Store.DeleteTag(t.ID); err != nil {
			output.Error("%v", err)
			return err
		}
		if err := app.Engine.MarkTagChange(ctx, models.OpDelete, t.ID, nil); err != nil {
			output.Error("%v", err)
			return err
		}
		for _, p := range affected {
			if cur, ok := app.Store.PageAny(p.ID); ok {
				if err := app.Engine.MarkPageChange(ctx, models.OpUpdate, cur.ID, &cur); err != nil {
					output.Error("%v", err)
					return err
				}
			}
		}
		output.Success("Deleted tag %s", t.Name)
		app.autoSync(ctx)
		return nil
	},
}

// resolveTag accepts a tag name (case-insensitive) or id.
func resolveTag(st *store.Store, ref string) (models.Tag, error) {
	if t, ok := st.TagByName(ref); ok {
		return t, nil
	}
	if t, ok := st.TagByID(ref); ok {
		return t, nil
	}
	return models.Tag{}, fmt.Errorf("tag not found: %s", ref)
}

func init() {
	tagCreateCmd.Flags().String("description", "", "tag description")
	tagCreateCmd.Flags().String("color", "", "display color")
	tagCmd.AddCommand(tagCreateCmd, tagListCmd, tagRenameCmd, tagBindCmd, tagUnbindCmd, tagDeleteCmd)
	rootCmd.AddCommand(tagCmd)
}
