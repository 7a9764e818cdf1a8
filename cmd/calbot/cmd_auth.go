package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/user/calbot/internal/auth"
	"github.com/user/calbot/internal/token"
	"github.com/user/calbot/internal/types"
)

func init() {
	rootCmd.AddCommand(authCmd)
}

// The consent URL points at a loopback listener, so the grant has to happen
// on the machine running the bot. This command lets the operator authorize
// a Telegram user ahead of time instead of during a chat.
var authCmd = &cobra.Command{
	Use:   "auth <telegram-user-id>",
	Short: "Authorize calendar access for a Telegram user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		oauth, err := oauthConfig(cfg)
		if err != nil {
			return err
		}

		flow := auth.New(oauth)
		tok, err := flow.Authorize(cmd.Context())
		if err != nil {
			return fmt.Errorf("authorize: %w", err)
		}

		tokens := token.NewStore(filepath.Join(cfg.DataDir, "tokens"))
		user := types.UserID(args[0])
		if err := tokens.Save(cmd.Context(), user, tok); err != nil {
			return fmt.Errorf("save token: %w", err)
		}

		fmt.Printf("Authorized user %s\n", user)
		return nil
	},
}
