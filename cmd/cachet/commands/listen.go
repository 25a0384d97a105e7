package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cachet/internal/client"
	"cachet/internal/crypto"
	"cachet/internal/domain"
	"cachet/internal/vault"
)

// listen: connect to the relay and print messages as they arrive. The
// private key is fetched locked, unlocked with the passphrase, and wiped on
// exit.
func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Connect and print incoming messages as they arrive",
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
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			handle, err := unlockOwnKey(ctx, p.Token)
			if err != nil {
				return err
			}
			defer handle.Destroy()

			sock, err := client.DialSocket(ctx, serverURL, p.Token)
			if err != nil {
				return err
			}
			defer sock.Close()

			fmt.Printf("listening as %s\n", p.Username)
			for {
				select {
				case ev, ok := <-sock.Events():
					if !ok {
						return nil
					}
					printEvent(handle, ev)
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
}

// unlockOwnKey runs the two-phase unlock: fetch the locked blob from the
// relay, then open it locally with the passphrase.
func unlockOwnKey(ctx context.Context, token string) (*vault.PrivateKeyHandle, error) {
	pending, err := vault.RequestUnlock(ctx, func(ctx context.Context) (domain.KeyBlob, error) {
		blob, _, err := api.PrivateKeyBlob(ctx, token)
		return blob, err
	})
	if err != nil {
		return nil, err
	}
	return pending.Complete(passphrase)
}

func printEvent(handle *vault.PrivateKeyHandle, ev domain.DeliverEvent) {
	plaintext, err := crypto.Open(handle.Bytes(), crypto.Sealed{
		Algorithm:  ev.Algorithm,
		Ciphertext: ev.Ciphertext,
		IV:         ev.Metadata.IV,
		WrappedKey: ev.Metadata.WrappedKey,
	})
	if err != nil {
		fmt.Printf("[%s] <undecryptable envelope>\n", ev.From)
		return
	}
	fmt.Printf("[%s] %s\n", ev.From, plaintext)
}
