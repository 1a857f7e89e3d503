package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ines/tagmark/internal/config"
	"github.com/ines/tagmark/internal/output"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	Short:   "Store credentials for the cloud store",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		apiKey, _ := cmd.Flags().GetString("api-key")
		userID, _ := cmd.Flags().GetString("user")
		email, _ := cmd.Flags().GetString("email")
		if apiKey == "" || userID == "" {
			output.Error("both --api-key and --user are required")
			return fmt.Errorf("missing credentials")
		}

		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer app.Close(ctx)

		// Switching between two identities wipes all local state so the
		// previous user's data cannot leak into this session.
		if err := app.Engine.SetIdentity(ctx, userID); err != nil {
			output.Error("switch identity: %v", err)
			return err
		}

		deviceID, err := config.GetDeviceID()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if err := config.SaveAuth(&config.AuthCredentials{
			APIKey:   apiKey,
			UserID:   userID,
			Email:    email,
			DeviceID: deviceID,
		}); err != nil {
			output.Error("save credentials: %v", err)
			return err
		}
		output.Success("Logged in as %s", userID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	Short:   "Remove stored credentials",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ClearAuth(); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Logged out")
		return nil
	},
}

func init() {
	loginCmd.Flags().String("api-key", "", "API key for the cloud store")
	loginCmd.Flags().String("user", "", "user id the data is scoped to")
	loginCmd.Flags().String("email", "", "account email (informational)")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}
