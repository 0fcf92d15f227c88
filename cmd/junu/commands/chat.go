package commands

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/54b3r/junu-go/internal/logging"
	"github.com/54b3r/junu-go/internal/prompt"
	"github.com/54b3r/junu-go/internal/tui"
)

// NewChatCmd constructs the `junu chat` command, an interactive terminal
// conversation.
func NewChatCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat in the terminal",
		Long: `Open a full-screen chat. Each question is answered from the indexed
documents with the conversation so far as history.

Type exit, quit or bye (or press Ctrl+C) to leave, /clear to forget the
conversation and /mode text|voice to switch prompt templates.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// The alternate screen owns the terminal; log lines would tear it.
			log := logging.Discard()
			ctx := logging.WithLogger(cmd.Context(), log)

			m, err := prompt.ParseMode(mode)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}

			st, err := buildStack(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			defer st.Close()

			p := tea.NewProgram(tui.New(ctx, st.service, m), tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", string(prompt.ModeText), "Prompt template: text or voice")

	return cmd
}
