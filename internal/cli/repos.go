package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "List indexed repositories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.close()

		repos, err := a.store.ListRepositories(context.Background())
		if err != nil {
			return err
		}
		if len(repos) == 0 {
			fmt.Println("no repositories indexed")
			return nil
		}
		for _, r := range repos {
			fmt.Printf("%s/%s@%s  %d files  %d chunks  (%s)\n",
				r.Owner, r.Repo, r.Branch, r.Files, r.Chunks, r.ModelTag)
		}
		return nil
	},
}
