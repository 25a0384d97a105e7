package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cachet/internal/crypto"
)

// history <peer>: fetch stored envelopes with a peer and decrypt the ones
// addressed to us. Envelopes we sent are sealed under the peer's key and
// stay opaque; that is the point of the scheme.
func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <peer>",
		Short: "Fetch and decrypt stored messages with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireServer(); err != nil {
				return err
			}
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
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
			envs, err := api.History(ctx, p.Token, peer.ID, limit)
			if err != nil {
				return err
			}
			if len(envs) == 0 {
				fmt.Println("no messages")
				return nil
			}

			handle, err := unlockOwnKey(ctx, p.Token)
			if err != nil {
				return err
			}
			defer handle.Destroy()

			for _, env := range envs {
				when := env.Timestamp.Local().Format("2006-01-02 15:04")
				if env.From == p.UserID {
					fmt.Printf("%s  -> %s  <sealed for %s>\n", when, peer.DisplayName, peer.DisplayName)
					continue
				}
				plaintext, err := crypto.Open(handle.Bytes(), crypto.Sealed{
					Algorithm:  env.Algorithm,
					Ciphertext: env.Ciphertext,
					IV:         env.Metadata.IV,
					WrappedKey: env.Metadata.WrappedKey,
				})
				if err != nil {
					fmt.Printf("%s  <- %s  <undecryptable envelope>\n", when, env.From)
					continue
				}
				fmt.Printf("%s  <- %s  %s\n", when, env.From, plaintext)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max messages to fetch (0 = server default)")
	return cmd
}
