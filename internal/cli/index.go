package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/seekr-dev/codeseek/pkg/types"
)

var indexBranch string

var indexCmd = &cobra.Command{
	Use:   "index <owner> <repo>",
	Short: "Index a repository",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.close()

		key := types.RepoKey{Owner: args[0], Repo: args[1], Branch: indexBranch}
		job, err := a.indexer.IndexRepository(context.Background(), key)
		if err != nil {
			return err
		}

		logger.Info().
			Str("key", key.String()).
			Int("files", job.IndexedFiles).
			Int("chunks", job.IndexedChunks).
			Int("skipped_chunks", job.SkippedChunks).
			Dur("duration", job.Duration()).
			Msg("indexing completed")
		return nil
	},
}

func init() {
	indexCmd.Flags().StringVarP(&indexBranch, "branch", "b", "main", "branch label to index under")
}
