package runtime

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"
)

var stdinIsInteractive = isStdinInteractive

// LookPath resolves an executable on PATH. Tests swap it out.
var LookPath = exec.LookPath

// InterruptedExitCode is reported when a run is stopped by SIGINT or SIGTERM.
const InterruptedExitCode = 130

// defaultWaitDelay bounds how long an interrupted child may take to exit
// before it is killed.
const defaultWaitDelay = 10 * time.Second

// Runner starts external processes and blocks until they exit.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
	RunShell(ctx context.Context, script string) error
}

type ExecRunner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// WaitDelay overrides defaultWaitDelay when positive.
	WaitDelay time.Duration
}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cmd := exec.CommandContext(ctx, name, args...)
	// Cancellation interrupts the child instead of killing it, so helpers
	// such as yay can stop their own pacman before Run returns.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = defaultWaitDelay
	if r.WaitDelay > 0 {
		cmd.WaitDelay = r.WaitDelay
	}
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	return cmd.Run()
}

func (r *ExecRunner) RunShell(ctx context.Context, script string) error {
	shell, args := shellCommandInvocation(script)
	return r.Run(ctx, shell, args...)
}

// ExitCode returns the process exit status carried by err, 0 for nil and 1
// when the process never ran. Interrupted runs and children killed by a
// signal map to 128+signal the way shells report them.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		return InterruptedExitCode
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code > 0 {
			return code
		}
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
	}
	return 1
}

// Setup steps rely on bash features such as `source`, so bash is preferred
// over the login shell.
func shellCommandInvocation(script string) (string, []string) {
	if resolved, err := LookPath("bash"); err == nil {
		return resolved, []string{"-c", script}
	}

	shell := strings.TrimSpace(os.Getenv("SHELL"))
	if shell != "" {
		if filepath.IsAbs(shell) {
			if _, err := os.Stat(shell); err == nil {
				return shell, []string{"-c", script}
			}
		} else if resolved, err := LookPath(shell); err == nil {
			return resolved, []string{"-c", script}
		}
	}
	return "sh", []string{"-c", script}
}

// JoinSteps chains steps into one script so state set by one step (cd,
// source) is visible to the next, stopping at the first failure.
func JoinSteps(steps []string) string {
	return strings.Join(steps, " && ")
}

func NormalizeCommand(command string) (string, error) {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return "", fmt.Errorf("command cannot be empty")
	}
	if strings.ContainsRune(trimmed, '\x00') {
		return "", fmt.Errorf("command contains invalid null byte")
	}

	if strings.HasPrefix(trimmed, "```") {
		lines := strings.Split(trimmed, "\n")
		if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[0]), "```") {
			lines = lines[1:]
		}
		if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
			lines = lines[:len(lines)-1]
		}
		trimmed = strings.TrimSpace(strings.Join(lines, "\n"))
	}

	switch {
	case strings.HasPrefix(trimmed, "$ "):
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "$ "))
	case strings.HasPrefix(trimmed, "> "):
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "> "))
	}

	if trimmed == "" {
		return "", fmt.Errorf("command cannot be empty")
	}
	return trimmed, nil
}

// Confirm asks a yes/no question on stdin. The default answer is no.
func Confirm(question string, out io.Writer) (bool, error) {
	return confirmFrom(os.Stdin, out, question)
}

func confirmFrom(in io.Reader, out io.Writer, question string) (bool, error) {
	if !stdinIsInteractive() {
		return false, fmt.Errorf("confirmation requires an interactive terminal; rerun with --yes or --dry-run")
	}
	if out == nil {
		out = os.Stdout
	}
	reader := bufio.NewReader(in)
	fmt.Fprintf(out, "%s [y/N]: ", strings.TrimSpace(question))
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	trimmed := strings.ToLower(strings.TrimSpace(line))
	return trimmed == "y" || trimmed == "yes", nil
}

func IsInteractive() bool {
	return stdinIsInteractive()
}

func isStdinInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func HighRisk(command string) bool {
	low := strings.ToLower(strings.TrimSpace(command))
	highRiskPatterns := []string{
		"rm -rf /",
		"rm -rf ~",
		"mkfs",
		"dd if=",
		"shutdown",
		"reboot",
		"userdel",
		"chmod 777 /",
		"chmod -r 777 /",
		"| sudo bash",
		"| sudo sh",
	}
	for _, pattern := range highRiskPatterns {
		if strings.Contains(low, pattern) {
			return true
		}
	}
	return false
}
