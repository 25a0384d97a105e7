package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cachet/internal/store"
)

// login <username>: authenticate and cache a fresh token in the profile.
func loginCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Authenticate and cache a fresh token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireServer(); err != nil {
				return err
			}
			token, acct, err := api.Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			if err := profiles.Save(store.Profile{
				ServerURL:   serverURL,
				UserID:      acct.ID,
				Username:    acct.Username,
				DisplayName: acct.DisplayName,
				Algorithm:   acct.Algorithm,
				Token:       token,
			}); err != nil {
				return err
			}
			fmt.Printf("Logged in as %s (%s)\n", acct.Username, acct.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
