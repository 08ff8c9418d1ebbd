package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seekr-dev/codeseek/internal/query"
)

var (
	queryOwner     string
	queryRepo      string
	queryBranch    string
	queryLanguage  string
	queryTopK      int
	queryThreshold float64
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a natural-language question about indexed code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cfg, true)
		if err != nil {
			return err
		}
		defer a.close()

		scope := query.Scope{
			Owner:    queryOwner,
			Repo:     queryRepo,
			Branch:   queryBranch,
			Language: queryLanguage,
		}
		opts := &query.Options{TopK: queryTopK}
		if cmd.Flags().Changed("threshold") {
			opts.Threshold = &queryThreshold
		}

		result, err := a.engine.Answer(context.Background(), args[0], scope, opts)
		if err != nil {
			return err
		}

		if result.Answer != "" {
			fmt.Println(result.Answer)
			fmt.Println()
		}
		if result.Degraded {
			fmt.Println("(answer synthesis unavailable, showing raw matches)")
		}
		if len(result.Sources) > 0 {
			fmt.Printf("Sources (confidence: %s):\n", result.Confidence)
			for _, src := range result.Sources {
				name := src.ChunkName
				if name == "" {
					name = "-"
				}
				fmt.Printf("  %.3f  %s:%d-%d  %s\n",
					src.Similarity, src.FilePath, src.StartLine, src.EndLine, name)
			}
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryOwner, "owner", "", "restrict to owner")
	queryCmd.Flags().StringVar(&queryRepo, "repo", "", "restrict to repository")
	queryCmd.Flags().StringVar(&queryBranch, "branch", "", "restrict to branch")
	queryCmd.Flags().StringVar(&queryLanguage, "language", "", "restrict to language")
	queryCmd.Flags().IntVar(&queryTopK, "top-k", 0, "maximum chunks to retrieve")
	queryCmd.Flags().Float64Var(&queryThreshold, "threshold", 0, "minimum similarity")
}
