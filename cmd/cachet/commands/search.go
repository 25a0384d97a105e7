package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find users by username",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireServer(); err != nil {
				return err
			}
			p, err := currentProfile()
			if err != nil {
				return err
			}
			ids, err := api.Search(cmd.Context(), p.Token, args[0])
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("no matches")
				return nil
			}
			for _, id := range ids {
				fmt.Printf("%s\t%s\n", id.DisplayName, id.ID)
			}
			return nil
		},
	}
}
