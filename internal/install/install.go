package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ashwch/aipkg/internal/config"
	"github.com/ashwch/aipkg/internal/plan"
	"github.com/ashwch/aipkg/internal/runtime"
	"github.com/ashwch/aipkg/internal/ui"
)

var ErrDeclined = errors.New("declined by user")

// ExitError reports an external tool that ran and exited non-zero.
type ExitError struct {
	Tool string
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s failed (exit %d)", e.Tool, e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

type Policy struct {
	DryRun      bool
	AutoConfirm bool
	AutoRunEnv  bool
	Helper      string
	Order       string
}

type Executor struct {
	Runner    runtime.Runner
	Confirmer ui.Confirmer
	Reporter  *ui.Reporter
	LookPath  func(string) (string, error)
	Manager   string
	// AsRoot drops the sudo prefix from the package manager call.
	AsRoot bool
}

func NewExecutor(runner runtime.Runner, confirmer ui.Confirmer, reporter *ui.Reporter) *Executor {
	return &Executor{
		Runner:    runner,
		Confirmer: confirmer,
		Reporter:  reporter,
		LookPath:  runtime.LookPath,
		Manager:   plan.DefaultManager,
		AsRoot:    os.Geteuid() == 0,
	}
}

// Execute applies p according to policy. Package installs and setup steps
// run in the order policy.Order names; a failed package install aborts the
// run before any later category.
func (e *Executor) Execute(ctx context.Context, p plan.ExecutionPlan, policy Policy) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if len(p.SuppressedSteps) > 0 {
		e.Reporter.List("Skipped setup steps that repeat package installation:", p.SuppressedSteps, false)
	}

	if policy.Order == config.OrderStepsFirst {
		if err := e.runSteps(ctx, p.PassthroughSteps, policy); err != nil {
			return err
		}
		return e.installPackages(ctx, p, policy)
	}

	if err := e.installPackages(ctx, p, policy); err != nil {
		return err
	}
	return e.runSteps(ctx, p.PassthroughSteps, policy)
}

func (e *Executor) installPackages(ctx context.Context, p plan.ExecutionPlan, policy Policy) error {
	primary := nonBlank(p.PrimaryPackages)
	secondary := nonBlank(p.SecondaryPackages)
	if len(primary) == 0 && len(secondary) == 0 {
		e.Reporter.Warn("no packages suggested")
		return nil
	}

	var helper string
	if len(secondary) > 0 {
		name := policy.Helper
		if strings.TrimSpace(name) == "" {
			name = config.DefaultAURHelper
		}
		validated, err := config.ValidateAURHelper(name)
		if err != nil {
			return err
		}
		if _, err := e.lookPath(validated); err != nil {
			e.Reporter.Warn("'%s' not found in PATH; skipping AUR packages: %s", validated, strings.Join(secondary, ", "))
			secondary = nil
		} else {
			helper = validated
		}
	}

	var commands [][]string
	if len(primary) > 0 {
		commands = append(commands, e.primaryCommand(primary, policy.AutoConfirm))
	}
	if len(secondary) > 0 {
		commands = append(commands, secondaryCommand(helper, secondary, policy.AutoConfirm))
	}
	if len(commands) == 0 {
		return nil
	}

	if policy.DryRun {
		for _, command := range commands {
			e.Reporter.DryRun(strings.Join(command, " "))
		}
		return nil
	}

	if !policy.AutoConfirm {
		lines := make([]string, 0, len(commands))
		for _, command := range commands {
			lines = append(lines, strings.Join(command, " "))
		}
		approved, err := e.Confirmer.Confirm("Proceed with package installation?", strings.Join(lines, "\n"))
		if err != nil {
			return fmt.Errorf("could not confirm package installation: %w", err)
		}
		if !approved {
			return ErrDeclined
		}
	}

	for _, command := range commands {
		e.Reporter.Command(strings.Join(command, " "))
		if err := e.Runner.Run(ctx, command[0], command[1:]...); err != nil {
			tool := e.toolName(command)
			exitErr := &ExitError{Tool: tool, Code: runtime.ExitCode(err), Err: err}
			e.Reporter.Error("%s failed (exit %d). See output above.", tool, exitErr.Code)
			return exitErr
		}
	}
	e.Reporter.Success("packages installed")
	return nil
}

func (e *Executor) runSteps(ctx context.Context, steps []string, policy Policy) error {
	normalized := make([]string, 0, len(steps))
	for _, step := range steps {
		command, err := runtime.NormalizeCommand(step)
		if err != nil {
			e.Reporter.Debug("dropping setup step %q: %v", step, err)
			continue
		}
		normalized = append(normalized, command)
	}
	if len(normalized) == 0 {
		return nil
	}

	for _, step := range normalized {
		if runtime.HighRisk(step) {
			e.Reporter.Warn("setup step looks destructive: %s", step)
		}
	}

	script := runtime.JoinSteps(normalized)
	if policy.DryRun {
		e.Reporter.DryRun(script)
		return nil
	}

	if !policy.AutoRunEnv && !policy.AutoConfirm {
		body := make([]string, 0, len(normalized))
		for idx, step := range normalized {
			body = append(body, fmt.Sprintf("%d. %s", idx+1, step))
		}
		approved, err := e.Confirmer.Confirm("Run the environment setup steps now?", strings.Join(body, "\n"))
		if err != nil {
			return fmt.Errorf("could not confirm setup steps: %w", err)
		}
		if !approved {
			e.Reporter.Info("Skipping environment setup steps.")
			return nil
		}
	}

	e.Reporter.Command(script)
	if err := e.Runner.RunShell(ctx, script); err != nil {
		exitErr := &ExitError{Tool: "environment setup steps", Code: runtime.ExitCode(err), Err: err}
		e.Reporter.Error("environment setup steps failed (exit %d)", exitErr.Code)
		return exitErr
	}
	e.Reporter.Success("environment setup steps completed")
	return nil
}

func (e *Executor) primaryCommand(packages []string, autoConfirm bool) []string {
	command := make([]string, 0, len(packages)+5)
	if !e.AsRoot {
		command = append(command, "sudo")
	}
	command = append(command, e.manager(), "-S", "--needed")
	if autoConfirm {
		command = append(command, "--noconfirm")
	}
	return append(command, packages...)
}

// AUR helpers refuse to run as root and escalate on their own.
func secondaryCommand(helper string, packages []string, autoConfirm bool) []string {
	command := []string{helper, "-S", "--needed"}
	if autoConfirm {
		command = append(command, "--noconfirm")
	}
	return append(command, packages...)
}

func (e *Executor) toolName(command []string) string {
	if len(command) > 1 && command[0] == "sudo" {
		return command[1]
	}
	return command[0]
}

func (e *Executor) manager() string {
	if strings.TrimSpace(e.Manager) == "" {
		return plan.DefaultManager
	}
	return e.Manager
}

func (e *Executor) lookPath(name string) (string, error) {
	if e.LookPath == nil {
		return runtime.LookPath(name)
	}
	return e.LookPath(name)
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
