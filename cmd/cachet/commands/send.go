package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cachet/internal/client"
	"cachet/internal/crypto"
	"cachet/internal/domain"
)

// send <peer> <message>: seal a message under the peer's registered key and
// relay it. The plaintext never reaches the server.
func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <peer> <message>",
		Short: "Encrypt and send a message to a peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireServer(); err != nil {
				return err
			}
			p, err := currentProfile()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			peer, err := resolvePeer(ctx, p.Token, args[0])
			if err != nil {
				return err
			}
			rec, err := api.PublicKey(ctx, p.Token, peer.ID)
			if err != nil {
				return err
			}
			sealed, err := crypto.Seal(rec.Algorithm, rec.PublicKey, []byte(args[1]))
			if err != nil {
				return err
			}

			sock, err := client.DialSocket(ctx, serverURL, p.Token)
			if err != nil {
				return err
			}
			defer sock.Close()

			outcome, err := sock.Send(ctx, domain.SendRequest{
				To:         peer.ID,
				Ciphertext: sealed.Ciphertext,
				Algorithm:  sealed.Algorithm,
				Metadata:   domain.EnvelopeMetadata{IV: sealed.IV, WrappedKey: sealed.WrappedKey},
			})
			if err != nil {
				return err
			}
			fmt.Println(outcome)
			return nil
		},
	}
}
