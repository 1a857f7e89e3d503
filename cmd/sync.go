package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ines/tagmark/internal/output"
	tagsync "github.com/ines/tagmark/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Synchronize with the cloud store now",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer app.Close(ctx)

		app.Clock.Calibrate(ctx)
		if err := app.Engine.SyncAll(ctx); err != nil {
			switch {
			case errors.Is(err, tagsync.ErrNotAuthenticated):
				output.Error("not logged in, run 'tagmark login' first")
			case errors.Is(err, tagsync.ErrBusy):
				output.Error("another sync is holding the lock; try again shortly")
			default:
				output.Error("sync failed: %v", err)
			}
			return err
		}

		st := app.Engine.State()
		output.Success("Synced. %d tags, %d pages, %d pending",
			len(app.Store.Tags()), len(app.Store.Pages()), st.PendingChangesCount)
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer app.Close(ctx)

		st := app.Engine.State()
		fmt.Println(output.Title("Sync status"))
		if app.Engine.UserID() == "" {
			fmt.Println("  identity:  " + output.Subtle("not logged in"))
		} else {
			fmt.Printf("  identity:  %s\n", app.Engine.UserID())
		}
		if st.LastSyncAt > 0 {
			fmt.Printf("  last sync: %s\n", time.UnixMilli(st.LastSyncAt).Local().Format(time.RFC822))
		} else {
			fmt.Println("  last sync: " + output.Subtle("never"))
		}
		fmt.Printf("  pending:   %d\n", st.PendingChangesCount)
		if st.Error != "" {
			fmt.Printf("  error:     %s\n", st.Error)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show collection and sync summary",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer app.Close(ctx)

		st := app.Engine.State()
		fmt.Printf("%d tags, %d pages, %d pending changes\n",
			len(app.Store.Tags()), len(app.Store.Pages()), st.PendingChangesCount)
		if st.Error != "" {
			output.Warning("last sync error: %s", st.Error)
		}
		return nil
	},
}

func init() {
	syncCmd.AddCommand(syncStatusCmd)
	rootCmd.AddCommand(syncCmd, statusCmd)
}
