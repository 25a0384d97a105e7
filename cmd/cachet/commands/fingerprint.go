package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cachet/internal/crypto"
	"cachet/internal/domain"
)

// fingerprint [peer]: print a public key fingerprint for out-of-band
// verification. Without an argument it prints your own.
func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint [peer]",
		Short: "Print a user's public key fingerprint",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireServer(); err != nil {
				return err
			}
			p, err := currentProfile()
			if err != nil {
				return err
			}

			id := domain.Identity{ID: p.UserID, DisplayName: p.Username}
			if len(args) == 1 {
				id, err = resolvePeer(cmd.Context(), p.Token, args[0])
				if err != nil {
					return err
				}
			}
			rec, err := api.PublicKey(cmd.Context(), p.Token, id.ID)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s (%s)\n", id.DisplayName, crypto.Fingerprint(rec.PublicKey), rec.Algorithm)
			return nil
		},
	}
}
