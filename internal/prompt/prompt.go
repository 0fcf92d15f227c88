// Package prompt builds the single user message sent to the chat model from
// the conversation history, the current question and the retrieved context.
// There is one template per answer mode; substitution is purely textual so
// user text and document text are inserted verbatim.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/junu-go/internal/store"
)

// Mode selects the answer style.
type Mode string

const (
	// ModeText produces concise written answers.
	ModeText Mode = "text"
	// ModeVoice produces conversational answers suited to speech synthesis.
	ModeVoice Mode = "voice"
)

// DefaultMaxHistory is the number of most recent turns rendered.
const DefaultMaxHistory = 5

// ErrInvalidMode is returned for any mode other than text or voice.
var ErrInvalidMode = errors.New("prompt: invalid mode (valid: text, voice)")

// ParseMode validates s. The empty string is not a mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeText, ModeVoice:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Formatter renders prompts. It is safe for concurrent use.
type Formatter struct {
	maxHistory int
	templates  map[Mode]*einoprompt.DefaultChatTemplate
}

// NewFormatter returns a Formatter that renders the last maxHistory turns.
// A non-positive maxHistory selects DefaultMaxHistory.
func NewFormatter(maxHistory int) *Formatter {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	f := &Formatter{maxHistory: maxHistory, templates: make(map[Mode]*einoprompt.DefaultChatTemplate, len(templates))}
	for mode, tpl := range templates {
		f.templates[mode] = einoprompt.FromMessages(schema.FString, schema.UserMessage(tpl))
	}
	return f
}

// MaxHistory returns the history window size.
func (f *Formatter) MaxHistory() int { return f.maxHistory }

// Window returns the last MaxHistory turns of history, in order. The
// returned slice aliases history.
func (f *Formatter) Window(history []store.Turn) []store.Turn {
	if len(history) > f.maxHistory {
		return history[len(history)-f.maxHistory:]
	}
	return history
}

// Line renders one turn as "<label>: <utterance>".
func Line(t store.Turn) string {
	label := LabelUser
	if t.Role == store.RoleAssistant {
		label = LabelAssistant
	}
	return label + ": " + t.Content
}

// RenderHistory renders the windowed history one turn per line.
func (f *Formatter) RenderHistory(history []store.Turn) string {
	window := f.Window(history)
	lines := make([]string, len(window))
	for i, t := range window {
		lines[i] = Line(t)
	}
	return strings.Join(lines, "\n")
}

// Format fills the mode's template. An empty retrieved context is rendered
// as NoDataMessage.
func (f *Formatter) Format(ctx context.Context, mode Mode, history []store.Turn, question, retrieved string) (string, error) {
	tpl, ok := f.templates[mode]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if retrieved == "" {
		retrieved = NoDataMessage
	}

	msgs, err := tpl.Format(ctx, map[string]any{
		varHistory:  f.RenderHistory(history),
		varQuestion: question,
		varContext:  retrieved,
	})
	if err != nil {
		return "", fmt.Errorf("prompt: format %s template: %w", mode, err)
	}
	if len(msgs) != 1 {
		return "", fmt.Errorf("prompt: format %s template: expected 1 message, got %d", mode, len(msgs))
	}
	return msgs[0].Content, nil
}
