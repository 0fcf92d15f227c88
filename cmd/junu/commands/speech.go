package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/54b3r/junu-go/internal/speech"
)

// NewTranscribeCmd constructs the `junu transcribe` command, which prints
// the transcript of a WAV file.
func NewTranscribeCmd() *cobra.Command {
	var language string

	cmd := &cobra.Command{
		Use:   "transcribe [file.wav]",
		Short: "Convert a WAV recording to text",
		Long: `Send a WAV recording to the configured speech backend and print the
transcript. Recordings with no recognisable speech exit with an error.

Examples:
  junu transcribe question.wav
  SPEECH_PROVIDER=openai junu transcribe question.wav`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := speech.ConfigFromEnv()
			if language == "" {
				language = cfg.Language
			}
			client, err := speech.New(cfg)
			if err != nil {
				return fmt.Errorf("transcribe: %w", err)
			}

			wav, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("transcribe: %w", err)
			}
			if err := speech.ValidateWAV(wav); err != nil {
				return fmt.Errorf("transcribe: %s: %w", args[0], err)
			}

			rec, err := client.Recognize(cmd.Context(), wav, language)
			if err != nil {
				return fmt.Errorf("transcribe: %w", err)
			}
			if rec.Status == speech.NoMatch {
				return errors.New("transcribe: no speech could be recognized")
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.Text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "Recognition language (default: SPEECH_LANGUAGE or ne-NP)")

	return cmd
}

// NewSpeakCmd constructs the `junu speak` command, which renders text to a
// WAV file.
func NewSpeakCmd() *cobra.Command {
	var output string
	var voice string

	cmd := &cobra.Command{
		Use:   "speak [text]",
		Short: "Convert text to a WAV file",
		Long: `Synthesise text with the configured speech backend and write a WAV file.

Voices: hemkala (female, default) or sagar (male), or any full voice name.

Examples:
  junu speak "नमस्ते" -o greeting.wav
  junu speak --voice sagar "धन्यवाद" -o thanks.wav`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := speech.ConfigFromEnv()
			client, err := speech.New(cfg)
			if err != nil {
				return fmt.Errorf("speak: %w", err)
			}

			wav, err := client.Synthesize(cmd.Context(), joinArgs(args), speech.ResolveVoice(voice, cfg.Voice), cfg.Language)
			if err != nil {
				return fmt.Errorf("speak: %w", err)
			}
			if err := os.WriteFile(output, wav, 0o644); err != nil {
				return fmt.Errorf("speak: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(wav), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "output_audio.wav", "Output WAV path")
	cmd.Flags().StringVarP(&voice, "voice", "v", "", "Voice name or alias (hemkala, sagar)")

	return cmd
}
