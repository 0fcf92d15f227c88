package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/54b3r/junu-go/internal/chat"
	"github.com/54b3r/junu-go/internal/prompt"
	"github.com/54b3r/junu-go/internal/store"
)

type fakeAnswerer struct {
	got []chat.Request
	err error
}

func (f *fakeAnswerer) Answer(_ context.Context, req chat.Request) (chat.Result, error) {
	f.got = append(f.got, req)
	if f.err != nil {
		return chat.Result{}, f.err
	}
	answer := "उत्तर: " + req.Input
	history := append(append([]store.Turn(nil), req.History...),
		store.Turn{Role: store.RoleUser, Content: req.Input},
		store.Turn{Role: store.RoleAssistant, Content: answer},
	)
	return chat.Result{Answer: answer, History: history}, nil
}

func newModel(t *testing.T, svc Answerer) Model {
	t.Helper()
	m := New(t.Context(), svc, prompt.ModeText)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

// typeLine enters text and presses Enter.
func typeLine(m Model, text string) (Model, tea.Cmd) {
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func TestModel_AskCarriesHistory(t *testing.T) {
	t.Parallel()
	svc := &fakeAnswerer{}
	m := newModel(t, svc)

	for i, q := range []string{"पहिलो", "दोस्रो"} {
		var cmd tea.Cmd
		m, cmd = typeLine(m, q)
		if cmd == nil || !m.busy {
			t.Fatalf("turn %d: expected a pending answer", i)
		}
		next, _ := m.Update(m.ask(q)())
		m = next.(Model)
		if m.busy {
			t.Fatalf("turn %d: still busy after answer", i)
		}
	}

	if len(svc.got) != 2 {
		t.Fatalf("answer calls = %d, want 2", len(svc.got))
	}
	if got := len(svc.got[1].History); got != 2 {
		t.Errorf("second request history = %d turns, want 2", got)
	}
	if got := len(m.History()); got != 4 {
		t.Errorf("history = %d turns, want 4", got)
	}
	if view := m.View(); !strings.Contains(view, "उत्तर: दोस्रो") {
		t.Errorf("view missing latest answer:\n%s", view)
	}
}

func TestModel_Commands(t *testing.T) {
	t.Parallel()
	svc := &fakeAnswerer{}
	m := newModel(t, svc)

	m, _ = typeLine(m, "/mode voice")
	if m.mode != prompt.ModeVoice {
		t.Errorf("mode = %q, want voice", m.mode)
	}
	m, _ = typeLine(m, "/mode sms")
	if m.mode != prompt.ModeVoice || !strings.HasPrefix(m.status, "Error") {
		t.Errorf("invalid mode accepted: mode=%q status=%q", m.mode, m.status)
	}

	m.history = []store.Turn{{Role: store.RoleUser, Content: "x"}}
	m, _ = typeLine(m, "/clear")
	if len(m.History()) != 0 {
		t.Error("/clear kept history")
	}

	_, cmd := typeLine(m, "exit")
	if cmd == nil {
		t.Fatal("exit returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("exit did not quit")
	}
	if len(svc.got) != 0 {
		t.Errorf("commands reached the service: %+v", svc.got)
	}
}

func TestModel_ErrorKeepsHistory(t *testing.T) {
	t.Parallel()
	svc := &fakeAnswerer{err: errors.New("model unavailable")}
	m := newModel(t, svc)
	m.history = []store.Turn{{Role: store.RoleUser, Content: "a"}, {Role: store.RoleAssistant, Content: "b"}}

	m, _ = typeLine(m, "q")
	next, _ := m.Update(m.ask("q")())
	m = next.(Model)

	if len(m.History()) != 2 {
		t.Errorf("history changed on error: %+v", m.History())
	}
	if !strings.Contains(m.status, "model unavailable") {
		t.Errorf("status = %q", m.status)
	}
}

func TestModel_EmptyInputIgnored(t *testing.T) {
	t.Parallel()
	m := newModel(t, &fakeAnswerer{})
	m, cmd := typeLine(m, "   ")
	if cmd != nil || m.busy {
		t.Error("blank input should be ignored")
	}
}
