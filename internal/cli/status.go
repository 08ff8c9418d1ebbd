package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/seekr-dev/codeseek/internal/store"
	"github.com/seekr-dev/codeseek/pkg/types"
)

var statusBranch string

var statusCmd = &cobra.Command{
	Use:   "status <owner> <repo>",
	Short: "Show the indexing status of a repository",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.close()

		key := types.RepoKey{Owner: args[0], Repo: args[1], Branch: statusBranch}
		job, err := a.indexer.Status(context.Background(), key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				fmt.Printf("%s has never been indexed\n", key)
				return nil
			}
			return err
		}

		fmt.Printf("Repository: %s\n", job.Key())
		fmt.Printf("Status:     %s\n", job.Status)
		fmt.Printf("Progress:   %.1f%%\n", job.Progress())
		fmt.Printf("Files:      %d indexed, %d skipped, %d total\n",
			job.IndexedFiles, job.SkippedFiles, job.TotalFiles)
		fmt.Printf("Chunks:     %d indexed, %d skipped, %d total\n",
			job.IndexedChunks, job.SkippedChunks, job.TotalChunks)
		if job.Error != "" {
			fmt.Printf("Error:      %s\n", job.Error)
		}
		if d := job.Duration(); d > 0 {
			fmt.Printf("Duration:   %s\n", d.Round(time.Millisecond))
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusBranch, "branch", "b", "main", "branch label")
}
