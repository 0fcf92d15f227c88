package commands

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/junu-go/internal/chat"
	"github.com/54b3r/junu-go/internal/logging"
	"github.com/54b3r/junu-go/internal/prompt"
	"github.com/54b3r/junu-go/internal/store"
)

// evalQuestions is the built-in smoke set.
var evalQuestions = []string{
	"नागरिकता प्रमाणपत्र नवीकरण गर्न के के चाहिन्छ?",
	"जग्गा नामसारी गर्न कस्ता कागजातहरू चाहिन्छ?",
	"चलानीका लागि अनलाइन आवेदन दिन मिल्छ?",
}

// NewEvalCmd constructs the `junu eval` command, which runs the built-in
// questions as one conversation and prints each prompt and answer.
func NewEvalCmd() *cobra.Command {
	var mode string
	var questions []string

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run the built-in test questions and print prompts and answers",
		Long: `Ask the built-in Nepali test questions in order, carrying history from one
to the next, and print the full prompt and the answer for each. Use it to
check retrieval and prompt assembly after ingesting.

Examples:
  junu eval
  junu eval --mode voice
  junu eval -q "राहदानी कसरी बनाउने?"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if _, err := prompt.ParseMode(mode); err != nil {
				return fmt.Errorf("eval: %w", err)
			}
			if len(questions) == 0 {
				questions = evalQuestions
			}

			st, err := buildStack(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("eval: %w", err)
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			rule := strings.Repeat("=", 60)
			var history []store.Turn
			failed := 0
			for i, q := range questions {
				res, err := st.service.Answer(ctx, chat.Request{Mode: mode, Input: q, History: history})
				fmt.Fprintf(out, "%s\n[%d/%d] %s\n%s\n", rule, i+1, len(questions), q, rule)
				if err != nil {
					failed++
					log.Error("eval question failed", slog.Int("index", i+1), slog.Any("error", err))
					fmt.Fprintf(out, "ERROR: %v\n\n", err)
					continue
				}
				history = res.History
				fmt.Fprintf(out, "--- prompt ---\n%s\n--- answer (context found: %t) ---\n%s\n\n",
					res.Prompt, res.Context.Found(), res.Answer)
			}
			if failed > 0 {
				return fmt.Errorf("eval: %d of %d questions failed", failed, len(questions))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", string(prompt.ModeText), "Prompt template: text or voice")
	cmd.Flags().StringArrayVarP(&questions, "question", "q", nil, "Question to ask instead of the built-in set (repeatable)")

	return cmd
}
