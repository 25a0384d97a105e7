package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cachet/internal/crypto"
	"cachet/internal/store"
	"cachet/internal/vault"
)

// register <username>: create an account with freshly generated, locked keys.
func registerCmd() *cobra.Command {
	var (
		password    string
		displayName string
		algorithm   string
	)
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account, generating and locking a key pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireServer(); err != nil {
				return err
			}
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			username := args[0]
			if displayName == "" {
				displayName = username
			}

			priv, pub, err := crypto.GenerateKeyPair(algorithm)
			if err != nil {
				return err
			}
			defer crypto.Wipe(priv)

			pemBytes := crypto.EncodePrivateKeyPEM(priv)
			defer crypto.Wipe(pemBytes)

			salt, err := vault.NewSalt()
			if err != nil {
				return err
			}
			blob, err := vault.Lock(pemBytes, passphrase, salt)
			if err != nil {
				return err
			}

			token, id, err := api.Register(cmd.Context(), username, displayName, password, pub, algorithm, blob)
			if err != nil {
				return err
			}

			if err := profiles.Save(store.Profile{
				ServerURL:   serverURL,
				UserID:      id.ID,
				Username:    username,
				DisplayName: displayName,
				Algorithm:   algorithm,
				Token:       token,
			}); err != nil {
				return err
			}

			fmt.Printf("Account created.\nID: %s\nFingerprint: %s\n", id.ID, crypto.Fingerprint(pub))
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name (default: username)")
	cmd.Flags().StringVar(&algorithm, "algorithm", crypto.DefaultAlgorithm, "envelope algorithm for your keys")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
