package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ines/tagmark/internal/config"
	"github.com/ines/tagmark/internal/output"
	"github.com/ines/tagmark/internal/realtime"
	tagsync "github.com/ines/tagmark/internal/sync"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the remote change feed and sync continuously",
	Long: `Watch connects to the remote change feed and applies changes as they
arrive, with a periodic full reconciliation as a safety net. Runs until
interrupted.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := openApp(ctx)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer app.Close(context.Background())

		if app.Engine.UserID() == "" {
			output.Error("not logged in, run 'tagmark login' first")
			return tagsync.ErrNotAuthenticated
		}

		app.Clock.Calibrate(ctx)
		if err := app.Engine.SyncAll(ctx); err != nil {
			output.Warning("initial sync failed: %v", err)
		}

		auth, err := config.LoadAuth()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		feed := realtime.NewWSFeed(config.GetServerURL(), auth.APIKey)
		app.Engine.SetFeed(feed)

		feedDone := make(chan struct{})
		go func() {
			defer close(feedDone)
			if err := feed.Run(ctx, app.Engine.UserID(), app.Engine.HandleRemoteChange); err != nil {
				slog.Warn("change feed stopped", "err", err)
			}
		}()

		interval := config.GetSyncInterval()
		output.Info("Watching for changes (reconcile every %s, Ctrl-C to stop)", interval)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				feed.Close()
				<-feedDone
				output.Info("Stopped")
				return nil
			case <-ticker.C:
				if err := app.Engine.SyncAll(ctx); err != nil {
					slog.Warn("periodic sync failed", "err", err)
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
