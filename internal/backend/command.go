package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/ashwch/aipkg/internal/runtime"
)

var placeholderRegex = regexp.MustCompile(`\{([a-z_]+)\}`)

// CommandGenerator asks an LLM CLI (gemini, claude -p, ollama run ...) for
// text by running it with the prompt as an argument and reading stdout.
type CommandGenerator struct {
	Command string
	Args    []string
	Model   string
	Timeout time.Duration
}

func NewCommandGenerator(command string, args []string, model string, timeout time.Duration) (*CommandGenerator, error) {
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("command backend requires a command")
	}
	return &CommandGenerator{
		Command: strings.TrimSpace(command),
		Args:    append([]string(nil), args...),
		Model:   strings.TrimSpace(model),
		Timeout: timeout,
	}, nil
}

func (g *CommandGenerator) Name() string {
	return g.Command
}

func (g *CommandGenerator) HealthCheck() error {
	if _, err := runtime.LookPath(g.Command); err != nil {
		return fmt.Errorf("command not found in PATH: %s", g.Command)
	}
	return nil
}

func (g *CommandGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := g.HealthCheck(); err != nil {
		return "", fatal(g.Name(), err)
	}
	invocation, err := g.BuildInvocation(prompt)
	if err != nil {
		return "", fatal(g.Name(), err)
	}

	runCtx := ctx
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, invocation[0], invocation[1:]...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if runErr := cmd.Run(); runErr != nil {
		failure := fmt.Errorf("command failed (%s): %w; stderr=%s", g.Command, runErr, truncate(stderr.String(), 800))
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", transient(g.Name(), failure)
		}
		return "", fatal(g.Name(), failure)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (g *CommandGenerator) BuildInvocation(prompt string) ([]string, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}
	values := map[string]string{
		"prompt": prompt,
		"model":  g.Model,
	}

	args := make([]string, 0, len(g.Args)+1)
	hasPromptPlaceholder := false
	for _, templateArg := range g.Args {
		if strings.Contains(templateArg, "{prompt}") {
			hasPromptPlaceholder = true
		}
		rendered, ok := renderTemplateArg(templateArg, values)
		if !ok {
			continue
		}
		args = append(args, rendered)
	}
	if !hasPromptPlaceholder {
		args = append(args, prompt)
	}
	return append([]string{g.Command}, args...), nil
}

// renderTemplateArg drops an argument whose placeholder has no value, so
// "--model {model}" style pairs should be written as "--model={model}" when
// the model is optional.
func renderTemplateArg(template string, values map[string]string) (string, bool) {
	matches := placeholderRegex.FindAllStringSubmatch(template, -1)
	rendered := template
	for _, match := range matches {
		if len(match) < 2 {
			continue
		}
		key := match[1]
		value, ok := values[key]
		if !ok || strings.TrimSpace(value) == "" {
			return "", false
		}
		rendered = strings.ReplaceAll(rendered, "{"+key+"}", value)
	}
	rendered = strings.TrimSpace(rendered)
	if rendered == "" {
		return "", false
	}
	return rendered, true
}

func truncate(text string, max int) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= max {
		return trimmed
	}
	return trimmed[:max] + "..."
}
