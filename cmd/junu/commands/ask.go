package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/junu-go/internal/chat"
	"github.com/54b3r/junu-go/internal/logging"
	"github.com/54b3r/junu-go/internal/prompt"
)

// NewAskCmd constructs the `junu ask` command, which answers a single
// question and prints the answer to stdout.
func NewAskCmd() *cobra.Command {
	var mode string
	var showPrompt bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question",
		Long: `Answer one question from the indexed documents and print the answer.

Examples:
  junu ask "नागरिकता प्रमाणपत्र नवीकरण गर्न के के चाहिन्छ?"
  junu ask --mode voice "राहदानी कसरी बनाउने?"
  junu ask --show-prompt "जग्गा नामसारी गर्न कस्ता कागजातहरू चाहिन्छ?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if _, err := prompt.ParseMode(mode); err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			st, err := buildStack(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer st.Close()

			res, err := st.service.Answer(ctx, chat.Request{Mode: mode, Input: joinArgs(args)})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			if showPrompt {
				fmt.Fprintf(out, "%s\n\n", res.Prompt)
			}
			fmt.Fprintln(out, res.Answer)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", string(prompt.ModeText), "Prompt template: text or voice")
	cmd.Flags().BoolVar(&showPrompt, "show-prompt", false, "Print the prompt sent to the model before the answer")

	return cmd
}
