// Package tui is the interactive terminal chat used by `junu chat`. History
// is held by the model and sent with every question, like a browser client.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/54b3r/junu-go/internal/chat"
	"github.com/54b3r/junu-go/internal/prompt"
	"github.com/54b3r/junu-go/internal/store"
)

// Answerer is the subset of the chat service the TUI calls.
type Answerer interface {
	Answer(ctx context.Context, req chat.Request) (chat.Result, error)
}

// quitWords end the session when typed on their own.
var quitWords = map[string]bool{"exit": true, "quit": true, "bye": true}

// answerMsg carries a finished answer back into Update.
type answerMsg struct {
	question string
	result   chat.Result
	err      error
}

// Model is the Bubble Tea model for the chat loop.
type Model struct {
	ctx     context.Context
	service Answerer
	mode    prompt.Mode

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	history []store.Turn
	// transcript is the rendered conversation, oldest first.
	transcript []string
	status     string
	busy       bool
	ready      bool
}

// New creates a chat model that answers in mode.
func New(ctx context.Context, service Answerer, mode prompt.Mode) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "प्रश्न लेख्नुहोस् र Enter थिच्नुहोस्"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusStyle

	return Model{
		ctx:      ctx,
		service:  service,
		mode:     mode,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Type a question. /clear resets history, /mode text|voice switches templates, exit quits.",
	}
}

// History returns the conversation so far.
func (m Model) History() []store.Turn { return m.history }

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, resize and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		// header, status line and the one-line input.
		reserved := 2 + 1 + ih + th
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.refresh()
		return m, nil

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.transcript = append(m.transcript, errorStyle.Render("त्रुटि: "+msg.err.Error()))
		} else {
			m.history = msg.result.History
			m.transcript = append(m.transcript, assistantStyle.Render("Junu: ")+msg.result.Answer)
			m.status = fmt.Sprintf("%d turns in history", len(m.history))
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(cmd, vpCmd)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	q := strings.TrimSpace(m.input.Value())
	if q == "" || m.busy {
		return m, nil
	}
	m.input.Reset()

	switch {
	case quitWords[strings.ToLower(q)]:
		return m, tea.Quit
	case q == "/clear":
		m.history = nil
		m.transcript = nil
		m.status = "History cleared."
		m.refresh()
		return m, nil
	case strings.HasPrefix(q, "/mode"):
		mode, err := prompt.ParseMode(strings.TrimSpace(strings.TrimPrefix(q, "/mode")))
		if err != nil {
			m.status = "Error: " + err.Error()
			return m, nil
		}
		m.mode = mode
		m.status = "Mode: " + string(mode)
		return m, nil
	}

	m.busy = true
	m.status = "Thinking…"
	m.transcript = append(m.transcript, userStyle.Render("तपाईं: ")+q)
	m.refresh()
	return m, tea.Batch(m.ask(q), m.spinner.Tick)
}

// ask returns a command that answers q off the UI goroutine.
func (m Model) ask(q string) tea.Cmd {
	history := append([]store.Turn(nil), m.history...)
	ctx, service, mode := m.ctx, m.service, m.mode
	return func() tea.Msg {
		res, err := service.Answer(ctx, chat.Request{Mode: string(mode), Input: q, History: history})
		return answerMsg{question: q, result: res, err: err}
	}
}

func (m *Model) refresh() {
	if len(m.transcript) == 0 {
		m.viewport.SetContent(hintStyle.Render("नमस्ते! सरकारी सेवाबारे सोध्नुहोस्।"))
		return
	}
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	m.viewport.SetContent(lipgloss.NewStyle().Width(width).Render(strings.Join(m.transcript, "\n\n")))
	m.viewport.GotoBottom()
}

// View renders the header, transcript, input and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Junu") + " " + hintStyle.Render("mode: "+string(m.mode))
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" +
		transcriptStyle.Render(m.viewport.View()) + "\n" +
		inputStyle.Render(m.input.View()) + "\n" +
		status
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	hintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	assistantStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
