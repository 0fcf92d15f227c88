package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/junu-go/internal/logging"
)

// notFoundMessage is printed when no chunk passes the relevance threshold.
const notFoundMessage = "सम्बन्धित परिणाम भेटिएन।"

// NewSearchCmd constructs the `junu search` command, which prints the
// context retrieval would hand to the model for a query.
func NewSearchCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Print the retrieved context for a query",
		Long: `Embed the query, search the index and print the retrieved context.

Without --raw only context above the relevance threshold is printed, exactly
as it would be placed in the prompt. With --raw the top results are listed
with their scores and sources regardless of the threshold.

Examples:
  junu search "नागरिकता नवीकरण"
  junu search --raw "चलानी"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			st, err := buildRetrieval(ctx, log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer st.Close()

			query := joinArgs(args)
			out := cmd.OutOrStdout()

			if raw {
				docs, err := st.retriever.Search(ctx, query)
				if err != nil {
					return fmt.Errorf("search: %w", err)
				}
				if len(docs) == 0 {
					fmt.Fprintln(out, notFoundMessage)
					return nil
				}
				for i, d := range docs {
					fmt.Fprintf(out, "[%d] score=%.3f source=%s\n%s\n\n", i+1, d.Score, d.Source, d.Content)
				}
				return nil
			}

			rc, err := st.retriever.Retrieve(ctx, query)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			if !rc.Found() {
				fmt.Fprintln(out, notFoundMessage)
				return nil
			}
			fmt.Fprintln(out, rc.Text)
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "List top results with scores, ignoring the threshold")

	return cmd
}

// joinArgs rebuilds a question split by the shell.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
