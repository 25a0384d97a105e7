package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"cachet/internal/client"
	"cachet/internal/domain"
	"cachet/internal/store"
)

var (
	home       string
	serverURL  string
	passphrase string

	api      *client.HTTP
	profiles *store.ProfileStore
)

func Execute() error {
	root := &cobra.Command{
		Use:          "cachet",
		Short:        "End-to-end encrypted chat CLI",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".cachet")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}
			profiles = store.NewProfileStore(home)

			if serverURL == "" {
				if p, ok, _ := profiles.Load(); ok {
					serverURL = p.ServerURL
				}
			}
			if serverURL != "" {
				api = client.NewHTTP(strings.TrimRight(serverURL, "/"))
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.cachet)")
	root.PersistentFlags().StringVar(&serverURL, "server", "", "relay base URL (e.g. http://127.0.0.1:8080)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase that locks your private key")

	root.AddCommand(registerCmd(), loginCmd(), searchCmd(), fingerprintCmd(), sendCmd(), listenCmd(), historyCmd())
	return root.Execute()
}

func requireServer() error {
	if api == nil {
		return fmt.Errorf("no server configured. use --server")
	}
	return nil
}

// currentProfile loads the cached login. Commands that need a token call
// this instead of re-authenticating.
func currentProfile() (store.Profile, error) {
	p, ok, err := profiles.Load()
	if err != nil {
		return store.Profile{}, err
	}
	if !ok || p.Token == "" {
		return store.Profile{}, fmt.Errorf("not logged in. run cachet login first")
	}
	return p, nil
}

// resolvePeer turns a username into a user ID. An argument that already
// matches a known ID is used as-is.
func resolvePeer(ctx context.Context, token, arg string) (domain.Identity, error) {
	if _, err := api.PublicKey(ctx, token, domain.UserID(arg)); err == nil {
		return domain.Identity{ID: domain.UserID(arg), DisplayName: arg}, nil
	}
	ids, err := api.Search(ctx, token, arg)
	if err != nil {
		return domain.Identity{}, err
	}
	for _, id := range ids {
		if id.DisplayName == arg {
			return id, nil
		}
	}
	return domain.Identity{}, fmt.Errorf("no user %q: %w", arg, domain.ErrUnknownUser)
}
