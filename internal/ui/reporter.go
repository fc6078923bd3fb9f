package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/ashwch/aipkg/internal/safety"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("87"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	infoStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	commandStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	debugStyle   = lipgloss.NewStyle().Faint(true)
	bannerStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("33")).
			Padding(0, 2)
)

// Reporter is the output sink handed to components that report progress.
// Everything it prints passes through secret redaction.
type Reporter struct {
	out     io.Writer
	styled  bool
	verbose bool
}

func NewReporter(out io.Writer, verbose bool) *Reporter {
	if out == nil {
		out = io.Discard
	}
	return &Reporter{out: out, styled: isTerminalWriter(out), verbose: verbose}
}

func (r *Reporter) Writer() io.Writer {
	return r.out
}

// Banner prints the program name, tagline and a usage hint. It only shows
// on a styled terminal so piped output stays clean.
func (r *Reporter) Banner(version string) {
	if !r.styled {
		return
	}
	lines := []string{
		titleStyle.Render("ai-pkg " + version),
		"AI package recommender for Arch Linux",
		"",
		hintStyle.Render(`usage: ai-pkg "setup django dev"`),
		hintStyle.Render("--dry-run to preview, --yes to auto-confirm"),
	}
	fmt.Fprintln(r.out, bannerStyle.Render(strings.Join(lines, "\n")))
}

func (r *Reporter) Header(format string, args ...any) {
	r.line(headerStyle, format, args...)
}

func (r *Reporter) Info(format string, args ...any) {
	r.line(infoStyle, format, args...)
}

func (r *Reporter) Success(format string, args ...any) {
	r.line(successStyle, format, args...)
}

func (r *Reporter) Warn(format string, args ...any) {
	r.line(warnStyle, "warning: "+format, args...)
}

func (r *Reporter) Error(format string, args ...any) {
	r.line(errorStyle, "error: "+format, args...)
}

func (r *Reporter) Debug(format string, args ...any) {
	if !r.verbose {
		return
	}
	r.line(debugStyle, "debug: "+format, args...)
}

// DryRun prints a command that would have been executed.
func (r *Reporter) DryRun(command string) {
	r.line(commandStyle, "[dry run] would run: %s", shownCommand(command))
}

func (r *Reporter) Command(command string) {
	r.line(commandStyle, "running: %s", shownCommand(command))
}

// shownCommand redacts secrets in a command line and says so, since the
// printed line then differs from what actually runs.
func shownCommand(command string) string {
	redacted := safety.RedactText(command)
	if redacted == command {
		return command
	}
	return redacted + " (secret values hidden)"
}

func (r *Reporter) List(title string, items []string, numbered bool) {
	if len(items) == 0 {
		return
	}
	r.Info("%s", title)
	for idx, item := range items {
		if numbered {
			r.plain("  %d. %s", idx+1, item)
			continue
		}
		r.plain("  - %s", item)
	}
}

func (r *Reporter) plain(format string, args ...any) {
	fmt.Fprintln(r.out, safety.RedactText(fmt.Sprintf(format, args...)))
}

func (r *Reporter) line(style lipgloss.Style, format string, args ...any) {
	text := safety.RedactText(fmt.Sprintf(format, args...))
	if r.styled {
		text = style.Render(text)
	}
	fmt.Fprintln(r.out, text)
}

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
