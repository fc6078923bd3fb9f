package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/rivo/tview"

	"github.com/ashwch/aipkg/internal/runtime"
)

// Confirmer gates a batch of side effects behind a yes/no answer.
type Confirmer interface {
	Confirm(title string, body string) (bool, error)
}

// TerminalConfirmer tries the configured TUI backend and falls back to a
// plain [y/N] prompt on stdin.
type TerminalConfirmer struct {
	Backend string
	Out     io.Writer
}

func (c TerminalConfirmer) Confirm(title string, body string) (bool, error) {
	if IsInteractiveBackend(c.Backend) && runtime.IsInteractive() {
		approved, handled, err := ConfirmPrompt(c.Backend, title, body)
		if handled && err == nil {
			return approved, nil
		}
	}
	question := strings.TrimSpace(title)
	if strings.TrimSpace(body) != "" && c.Out != nil {
		fmt.Fprintln(c.Out, strings.TrimRight(body, "\n"))
	}
	return runtime.Confirm(question, c.Out)
}

func ConfirmPrompt(backend string, title string, body string) (bool, bool, error) {
	var firstErr error
	for _, candidate := range backendCandidates(backend) {
		var (
			approved bool
			err      error
		)
		switch candidate {
		case BackendBubbleTea:
			approved, err = confirmWithBubbleTea(title, body)
		case BackendHuh:
			approved, err = confirmWithHuh(title, body)
		case BackendTView:
			approved, err = confirmWithTView(title, body)
		case BackendPlain:
			continue
		default:
			continue
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return approved, true, nil
	}
	if firstErr != nil {
		return false, false, firstErr
	}
	return false, false, nil
}

const confirmViewportHeight = 12

type bubbleConfirmModel struct {
	title    string
	body     viewport.Model
	approved bool
	done     bool
}

func newBubbleConfirmModel(title string, body string) bubbleConfirmModel {
	lines := strings.Count(body, "\n") + 1
	height := confirmViewportHeight
	if lines < height {
		height = lines
	}
	vp := viewport.New(100, height)
	vp.SetContent(body)
	return bubbleConfirmModel{title: strings.TrimSpace(title), body: vp}
}

func (m bubbleConfirmModel) Init() tea.Cmd { return nil }

func (m bubbleConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch k := msg.(type) {
	case tea.WindowSizeMsg:
		m.body.Width = k.Width
		if k.Height-6 < m.body.Height && k.Height > 6 {
			m.body.Height = k.Height - 6
		}
		return m, nil
	case tea.KeyMsg:
		switch strings.ToLower(k.String()) {
		case "y":
			m.approved = true
			m.done = true
			return m, tea.Quit
		case "n", "esc", "ctrl+c", "enter", "q":
			m.approved = false
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.body, cmd = m.body.Update(msg)
	return m, cmd
}

func (m bubbleConfirmModel) View() string {
	hint := "[y] proceed  [n] cancel"
	if m.body.TotalLineCount() > m.body.Height {
		hint += "  [↑/↓] scroll"
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s", titleStyle.Render(m.title), m.body.View(), hintStyle.Render(hint))
}

func confirmWithBubbleTea(title string, body string) (bool, error) {
	model := newBubbleConfirmModel(title, body)
	final, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
	if err != nil {
		return false, err
	}
	out, ok := final.(bubbleConfirmModel)
	if !ok {
		return false, nil
	}
	if !out.done {
		return false, nil
	}
	return out.approved, nil
}

func confirmWithHuh(title string, body string) (bool, error) {
	approved := false
	prompt := huh.NewConfirm().
		Title(strings.TrimSpace(title)).
		Description(strings.TrimSpace(body)).
		Affirmative("Proceed").
		Negative("Cancel").
		Value(&approved).
		WithTheme(huh.ThemeCharm())
	err := prompt.Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return approved, nil
}

func confirmWithTView(title string, body string) (bool, error) {
	app := tview.NewApplication()
	approved := false
	done := false

	text := fmt.Sprintf("%s\n\n%s", strings.TrimSpace(title), strings.TrimSpace(body))
	modal := tview.NewModal().
		SetText(text).
		AddButtons([]string{"Proceed", "Cancel"}).
		SetDoneFunc(func(_ int, label string) {
			done = true
			approved = strings.EqualFold(strings.TrimSpace(label), "proceed")
			app.Stop()
		})

	if err := app.SetRoot(modal, true).Run(); err != nil {
		return false, err
	}
	if !done {
		return false, nil
	}
	return approved, nil
}
