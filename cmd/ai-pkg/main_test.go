package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/ashwch/aipkg/internal/appdirs"
	"github.com/ashwch/aipkg/internal/backend"
	"github.com/ashwch/aipkg/internal/config"
	"github.com/ashwch/aipkg/internal/doctor"
)

type stubGenerator struct {
	text    string
	err     error
	prompts []string
}

func (g *stubGenerator) Name() string { return "stub" }

func (g *stubGenerator) GenerateText(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.text, g.err
}

type recordingRunner struct {
	commands []string
	err      error
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) error {
	r.commands = append(r.commands, strings.Join(append([]string{name}, args...), " "))
	return r.err
}

func (r *recordingRunner) RunShell(_ context.Context, script string) error {
	r.commands = append(r.commands, "shell: "+script)
	return r.err
}

type answerConfirmer bool

func (a answerConfirmer) Confirm(string, string) (bool, error) { return bool(a), nil }

func newTestApp(t *testing.T, gen *stubGenerator) (*app, *bytes.Buffer, *bytes.Buffer, *recordingRunner) {
	t.Helper()
	t.Setenv(appdirs.ConfigPathEnv, filepath.Join(t.TempDir(), "config.toml"))
	t.Setenv(config.DefaultAPIKeyEnv, "test-key")
	t.Setenv(config.AURHelperEnv, "")
	t.Setenv("NO_COLOR", "1")

	registry := backend.NewRegistry()
	registry.Register(config.BackendGemini, func(config.Config, backend.Options) (backend.Generator, error) {
		return gen, nil
	})

	var stdout, stderr bytes.Buffer
	runner := &recordingRunner{}
	return &app{
		stdout:    &stdout,
		stderr:    &stderr,
		registry:  registry,
		runner:    runner,
		confirmer: answerConfirmer(true),
		lookPath: func(name string) (string, error) {
			if name == "yay" {
				return "/usr/bin/yay", nil
			}
			return "", exec.ErrNotFound
		},
	}, &stdout, &stderr, runner
}

const djangoReply = "```json\n" + `{"packages": ["python", "python-pip", "aur:visual-studio-code-bin"],
"env_steps": ["sudo pacman -S python-virtualenv", "python -m venv .venv", "source .venv/bin/activate", "pip install django"]}` + "\n```"

func TestParseArgsHelpReturnsFlagErrHelp(t *testing.T) {
	_, _, err := parseArgs([]string{"--help"}, &bytes.Buffer{})
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected flag.ErrHelp, got %v", err)
	}
}

func TestParseArgsJoinsGoalWords(t *testing.T) {
	opts, goal, err := parseArgs([]string{"--dry-run", "--aur-helper", "paru", "setup", "django", "dev"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if !opts.DryRun || opts.AURHelper != "paru" {
		t.Fatalf("unexpected options: %#v", opts)
	}
	if goal != "setup django dev" {
		t.Fatalf("unexpected goal: %q", goal)
	}
	if opts.Format != formatText {
		t.Fatalf("expected text format by default, got %q", opts.Format)
	}
}

func TestParseArgsRejectsUnknownFormat(t *testing.T) {
	if _, _, err := parseArgs([]string{"--format", "xml", "goal"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected unknown format to be rejected")
	}
}

func TestFlagOverridesOnlySetNonEmpty(t *testing.T) {
	changes := flagOverrides(options{Model: "gemini-2.5-pro", Order: "steps-first"})
	if len(changes) != 2 || changes["backend.model"] != "gemini-2.5-pro" || changes["install.order"] != "steps-first" {
		t.Fatalf("unexpected overrides: %#v", changes)
	}
}

func TestRunVersion(t *testing.T) {
	a, stdout, _, _ := newTestApp(t, &stubGenerator{})
	if code := a.run(context.Background(), []string{"--version"}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if strings.TrimSpace(stdout.String()) != version {
		t.Fatalf("expected version output, got %q", stdout.String())
	}
}

func TestRunDryRunPrintsPlanAndRunsNothing(t *testing.T) {
	gen := &stubGenerator{text: djangoReply}
	a, stdout, _, runner := newTestApp(t, gen)

	code := a.run(context.Background(), []string{"--dry-run", "setup", "django", "dev"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d\n%s", code, stdout.String())
	}
	if len(runner.commands) != 0 {
		t.Fatalf("expected no commands in dry run, got %q", runner.commands)
	}
	if len(gen.prompts) != 1 || !strings.Contains(gen.prompts[0], "setup django dev") {
		t.Fatalf("expected one prompt containing the goal, got %q", gen.prompts)
	}

	out := stdout.String()
	for _, want := range []string{
		"Suggested packages: python, python-pip, aur:visual-studio-code-bin",
		"1. sudo pacman -S python-virtualenv",
		"pacman -S --needed python python-pip",
		"[dry run] would run: yay -S --needed visual-studio-code-bin",
		"[dry run] would run: python -m venv .venv && source .venv/bin/activate && pip install django",
		"  - sudo pacman -S python-virtualenv",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRunYesInstallsAndRunsSteps(t *testing.T) {
	a, stdout, _, runner := newTestApp(t, &stubGenerator{text: djangoReply})

	code := a.run(context.Background(), []string{"--yes", "--aur-helper", "yay", "django"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d\n%s", code, stdout.String())
	}
	want := []string{
		"sudo pacman -S --needed --noconfirm python python-pip",
		"yay -S --needed --noconfirm visual-studio-code-bin",
		"shell: python -m venv .venv && source .venv/bin/activate && pip install django",
	}
	if strings.Join(runner.commands, "\n") != strings.Join(want, "\n") {
		t.Fatalf("expected commands %q, got %q", want, runner.commands)
	}
}

func TestRunPropagatesToolExitCode(t *testing.T) {
	a, _, _, runner := newTestApp(t, &stubGenerator{text: `["htop"]`})
	runner.err = exec.Command("sh", "-c", "exit 9").Run()

	if code := a.run(context.Background(), []string{"--yes", "monitor"}); code != 9 {
		t.Fatalf("expected exit 9, got %d", code)
	}
}

func TestRunInterruptedInstallExits130(t *testing.T) {
	a, _, _, runner := newTestApp(t, &stubGenerator{text: `["htop"]`})
	runner.err = context.Canceled

	if code := a.run(context.Background(), []string{"--yes", "monitor"}); code != 130 {
		t.Fatalf("expected exit 130, got %d", code)
	}
}

func TestRunInterruptedBackendCallExits130(t *testing.T) {
	a, _, _, runner := newTestApp(t, &stubGenerator{err: context.Canceled})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if code := a.run(ctx, []string{"--yes", "monitor"}); code != 130 {
		t.Fatalf("expected exit 130, got %d", code)
	}
	if len(runner.commands) != 0 {
		t.Fatalf("expected nothing to run, got %q", runner.commands)
	}
}

func TestRunDeclineIsCleanExit(t *testing.T) {
	a, stdout, _, runner := newTestApp(t, &stubGenerator{text: `["htop"]`})
	a.confirmer = answerConfirmer(false)

	if code := a.run(context.Background(), []string{"monitor"}); code != 0 {
		t.Fatalf("expected exit 0 on decline, got %d", code)
	}
	if len(runner.commands) != 0 {
		t.Fatalf("expected nothing to run, got %q", runner.commands)
	}
	if !strings.Contains(stdout.String(), "Aborting installation.") {
		t.Fatalf("expected abort notice, got:\n%s", stdout.String())
	}
}

func TestRunMissingAPIKeyExitsOne(t *testing.T) {
	gen := &stubGenerator{text: `["htop"]`}
	a, stdout, _, _ := newTestApp(t, gen)
	t.Setenv(config.DefaultAPIKeyEnv, "")

	if code := a.run(context.Background(), []string{"monitor"}); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if len(gen.prompts) != 0 {
		t.Fatalf("expected backend not to be called without a key")
	}
	if !strings.Contains(stdout.String(), config.DefaultAPIKeyEnv) {
		t.Fatalf("expected message to name %s, got:\n%s", config.DefaultAPIKeyEnv, stdout.String())
	}
}

func TestRunInvalidAURHelperExitsOne(t *testing.T) {
	a, _, _, _ := newTestApp(t, &stubGenerator{text: `["htop"]`})
	t.Setenv(config.AURHelperEnv, "pikaur")

	if code := a.run(context.Background(), []string{"monitor"}); code != 1 {
		t.Fatalf("expected exit 1 for invalid helper, got %d", code)
	}
}

func TestRunBackendFailureExitsOne(t *testing.T) {
	a, _, _, runner := newTestApp(t, &stubGenerator{err: errors.New("quota exceeded")})

	if code := a.run(context.Background(), []string{"--yes", "monitor"}); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if len(runner.commands) != 0 {
		t.Fatalf("expected nothing to run, got %q", runner.commands)
	}
}

func TestRunUnreadableReplyInstallsNothing(t *testing.T) {
	a, stdout, _, runner := newTestApp(t, &stubGenerator{text: "Sorry, I cannot help with that."})

	if code := a.run(context.Background(), []string{"--yes", "--verbose", "monitor"}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if len(runner.commands) != 0 {
		t.Fatalf("expected nothing to run, got %q", runner.commands)
	}
	if !strings.Contains(stdout.String(), "could not read backend reply") {
		t.Fatalf("expected verbose parse reason, got:\n%s", stdout.String())
	}
}

func TestRunEmptyGoalIsUsageError(t *testing.T) {
	a, _, stderr, _ := newTestApp(t, &stubGenerator{})
	if code := a.run(context.Background(), nil); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "describe what you want") {
		t.Fatalf("expected usage hint, got %q", stderr.String())
	}
}

func TestRunInvalidOrderIsUsageError(t *testing.T) {
	a, _, _, _ := newTestApp(t, &stubGenerator{})
	if code := a.run(context.Background(), []string{"--order", "sideways", "goal"}); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestRunJSONFormatExportsPlanWithoutExecuting(t *testing.T) {
	a, stdout, _, runner := newTestApp(t, &stubGenerator{text: djangoReply})

	if code := a.run(context.Background(), []string{"--format", "json", "--yes", "django"}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if len(runner.commands) != 0 {
		t.Fatalf("expected export to run nothing, got %q", runner.commands)
	}

	var doc report
	if err := json.Unmarshal(stdout.Bytes(), &doc); err != nil {
		t.Fatalf("expected JSON document on stdout: %v\n%s", err, stdout.String())
	}
	if doc.Goal != "django" || doc.Backend != "stub" {
		t.Fatalf("unexpected header fields: %#v", doc)
	}
	if strings.Join(doc.Plan.SecondaryPackages, ",") != "visual-studio-code-bin" {
		t.Fatalf("unexpected secondary packages: %q", doc.Plan.SecondaryPackages)
	}
	if strings.Join(doc.Plan.SuppressedSteps, ",") != "sudo pacman -S python-virtualenv" {
		t.Fatalf("unexpected suppressed steps: %q", doc.Plan.SuppressedSteps)
	}
}

func TestRunYAMLFormatExportsPlan(t *testing.T) {
	a, stdout, _, _ := newTestApp(t, &stubGenerator{text: djangoReply})

	if code := a.run(context.Background(), []string{"--format", "yaml", "django"}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	var doc report
	if err := yaml.Unmarshal(stdout.Bytes(), &doc); err != nil {
		t.Fatalf("expected YAML document on stdout: %v\n%s", err, stdout.String())
	}
	if strings.Join(doc.Plan.PrimaryPackages, ",") != "python,python-pip" {
		t.Fatalf("unexpected primary packages: %q", doc.Plan.PrimaryPackages)
	}
	if len(doc.Suggestion.EnvSteps) != 4 {
		t.Fatalf("expected 4 env steps, got %q", doc.Suggestion.EnvSteps)
	}
}

func TestRunShowConfigAppliesFlagOverrides(t *testing.T) {
	a, stdout, _, _ := newTestApp(t, &stubGenerator{})

	code := a.run(context.Background(), []string{"--show-config", "--format", "json", "--model", "gemini-2.5-pro"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	var doc struct {
		Path   string        `json:"path"`
		Config config.Config `json:"config"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &doc); err != nil {
		t.Fatalf("expected JSON config: %v\n%s", err, stdout.String())
	}
	if doc.Config.Backend.Model != "gemini-2.5-pro" {
		t.Fatalf("expected model override, got %q", doc.Config.Backend.Model)
	}
	if !strings.HasSuffix(doc.Path, "config.toml") {
		t.Fatalf("unexpected config path %q", doc.Path)
	}
}

func TestRunShowConfigTextIsTOML(t *testing.T) {
	a, stdout, _, _ := newTestApp(t, &stubGenerator{})
	if code := a.run(context.Background(), []string{"--show-config"}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(stdout.String(), "[install]") || !strings.Contains(stdout.String(), "aur_helper") {
		t.Fatalf("expected TOML output, got:\n%s", stdout.String())
	}
}

func TestRunDoctorFailsWithoutPacman(t *testing.T) {
	a, stdout, _, _ := newTestApp(t, &stubGenerator{})
	a.probe = doctor.Probe{
		GOOS:     "linux",
		LookPath: func(string) (string, error) { return "", exec.ErrNotFound },
		ReadFile: func(string) ([]byte, error) { return []byte("ID=arch\nPRETTY_NAME=\"Arch Linux\"\n"), nil },
		Stat:     os.Stat,
		Getenv:   os.Getenv,
	}

	if code := a.run(context.Background(), []string{"--doctor", "--format", "json"}); code != 1 {
		t.Fatalf("expected exit 1 when pacman is missing, got %d", code)
	}
	var checks []doctor.Check
	if err := json.Unmarshal(stdout.Bytes(), &checks); err != nil {
		t.Fatalf("expected JSON checks: %v\n%s", err, stdout.String())
	}
	found := false
	for _, check := range checks {
		if check.Key == "pacman" && check.Status == doctor.StatusError {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a failing pacman check, got %#v", checks)
	}
}

func TestRunDoctorChecksHelperFromFlag(t *testing.T) {
	a, stdout, _, _ := newTestApp(t, &stubGenerator{})
	a.probe = doctor.Probe{
		GOOS: "linux",
		LookPath: func(name string) (string, error) {
			if name == "pacman" || name == "paru" {
				return "/usr/bin/" + name, nil
			}
			return "", exec.ErrNotFound
		},
		ReadFile: func(string) ([]byte, error) { return []byte("ID=arch\n"), nil },
		Stat:     os.Stat,
		Getenv:   func(string) string { return "" },
	}

	a.run(context.Background(), []string{"--doctor", "--aur-helper", "paru", "--format", "json"})
	var checks []doctor.Check
	if err := json.Unmarshal(stdout.Bytes(), &checks); err != nil {
		t.Fatalf("expected JSON checks: %v\n%s", err, stdout.String())
	}
	for _, check := range checks {
		if check.Key == "aur_helper" {
			if check.Value != "paru: /usr/bin/paru" || check.Status != doctor.StatusOK {
				t.Fatalf("expected paru from --aur-helper, got %#v", check)
			}
			return
		}
	}
	t.Fatalf("expected an aur_helper check, got %#v", checks)
}

func TestRunUnexpectedShapeExitsOne(t *testing.T) {
	a, stdout, _, runner := newTestApp(t, &stubGenerator{})

	for _, reply := range []string{`42`, `["git", 7]`} {
		a.registry.Register(config.BackendGemini, func(config.Config, backend.Options) (backend.Generator, error) {
			return &stubGenerator{text: reply}, nil
		})
		if code := a.run(context.Background(), []string{"--yes", "git"}); code != 1 {
			t.Fatalf("reply %q: expected exit 1, got %d", reply, code)
		}
	}
	if len(runner.commands) != 0 {
		t.Fatalf("expected nothing to run, got %q", runner.commands)
	}
	if !strings.Contains(stdout.String(), "unexpected response shape") {
		t.Fatalf("expected shape error, got:\n%s", stdout.String())
	}
}
