package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/ashwch/aipkg/internal/backend"
	"github.com/ashwch/aipkg/internal/config"
	"github.com/ashwch/aipkg/internal/doctor"
	"github.com/ashwch/aipkg/internal/install"
	"github.com/ashwch/aipkg/internal/plan"
	"github.com/ashwch/aipkg/internal/runtime"
	"github.com/ashwch/aipkg/internal/suggest"
	"github.com/ashwch/aipkg/internal/ui"
)

var version = "dev"

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

type options struct {
	APIKey     string
	AURHelper  string
	Backend    string
	Model      string
	Order      string
	UI         string
	Format     string
	DryRun     bool
	Yes        bool
	RunEnv     bool
	Verbose    bool
	Version    bool
	ShowConfig bool
	Doctor     bool
}

// report is the document written by --format json|yaml.
type report struct {
	Goal       string             `json:"goal" yaml:"goal"`
	Backend    string             `json:"backend" yaml:"backend"`
	Suggestion suggest.Suggestion `json:"suggestion" yaml:"suggestion"`
	Plan       plan.ExecutionPlan `json:"plan" yaml:"plan"`
}

// app holds the collaborators main wires up; tests swap them for fakes.
type app struct {
	stdout    io.Writer
	stderr    io.Writer
	registry  *backend.Registry
	runner    runtime.Runner
	confirmer ui.Confirmer
	lookPath  func(string) (string, error)
	probe     doctor.Probe
	asRoot    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := newApp().run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func newApp() *app {
	return &app{
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		registry: backend.NewRegistry(),
		runner:   runtime.NewExecRunner(),
		lookPath: runtime.LookPath,
		probe:    doctor.HostProbe(),
		asRoot:   os.Geteuid() == 0,
	}
}

func (a *app) run(ctx context.Context, args []string) int {
	opts, goal, err := parseArgs(args, a.stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(a.stderr, "ai-pkg: %v\n", err)
		return 2
	}
	if opts.Version {
		fmt.Fprintln(a.stdout, version)
		return 0
	}

	if err := config.LoadEnvFile(); err != nil {
		fmt.Fprintf(a.stderr, "ai-pkg: %v\n", err)
	}
	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		fmt.Fprintf(a.stderr, "ai-pkg: could not load config: %v\n", err)
		return 1
	}
	for key, value := range flagOverrides(opts) {
		if err := cfg.Set(key, value); err != nil {
			fmt.Fprintf(a.stderr, "ai-pkg: invalid value for %s: %v\n", key, err)
			return 2
		}
	}

	if opts.ShowConfig {
		if err := writeConfig(a.stdout, cfg, cfgPath, opts.Format); err != nil {
			fmt.Fprintf(a.stderr, "ai-pkg: %v\n", err)
			return 1
		}
		return 0
	}
	if opts.Doctor {
		return a.runDoctor(cfg, cfgPath, opts)
	}
	if goal == "" {
		fmt.Fprintln(a.stderr, `ai-pkg: describe what you want to set up, e.g. ai-pkg "setup django dev"`)
		return 2
	}

	// Structured output keeps stdout for the document.
	reportOut := a.stdout
	if opts.Format != formatText {
		reportOut = a.stderr
	}
	reporter := ui.NewReporter(reportOut, opts.Verbose)

	helper, err := cfg.ResolveAURHelper(opts.AURHelper)
	if err != nil {
		reporter.Error("%v", err)
		return 1
	}

	var apiKey string
	if backend.NeedsAPIKey(cfg.Backend.Name) {
		apiKey, err = cfg.ResolveAPIKey(opts.APIKey)
		if err != nil {
			reporter.Error("%v", err)
			return 1
		}
	}

	generator, err := a.registry.Build(cfg, backend.Options{APIKey: apiKey})
	if err != nil {
		reporter.Error("could not initialize backend: %v", err)
		return 1
	}
	generator.OnRetry = func(attempt int, max int, err error) {
		reporter.Debug("attempt %d/%d failed: %v; retrying", attempt, max, err)
	}

	if opts.Format == formatText {
		reporter.Banner(version)
	}
	reporter.Debug("config: %s", cfgPath)
	reporter.Debug("asking %s for packages: %s", generator.Name(), goal)

	text, err := generator.GenerateText(ctx, backend.BuildPrompt(goal))
	if err != nil {
		if ctx.Err() != nil {
			reporter.Warn("interrupted")
			return runtime.InterruptedExitCode
		}
		reporter.Error("%s request failed: %v", generator.Name(), err)
		return 1
	}

	suggestion, parseErr := suggest.Parse(text)
	if parseErr != nil {
		reporter.Debug("could not read backend reply: %v", parseErr)
		reporter.Debug("raw reply: %s", text)
	}
	if errors.Is(parseErr, suggest.ErrShape) {
		reporter.Error("unexpected response shape from %s; aborting", generator.Name())
		return 1
	}
	execPlan := plan.Build(suggestion)

	if opts.Format != formatText {
		doc := report{Goal: goal, Backend: generator.Name(), Suggestion: suggestion, Plan: execPlan}
		if err := writeDocument(a.stdout, doc, opts.Format); err != nil {
			reporter.Error("%v", err)
			return 1
		}
		return 0
	}

	printSuggestion(reporter, suggestion)

	confirmer := a.confirmer
	if confirmer == nil {
		confirmer = ui.TerminalConfirmer{Backend: cfg.UI.Backend, Out: reportOut}
	}
	executor := install.NewExecutor(a.runner, confirmer, reporter)
	executor.AsRoot = a.asRoot
	if a.lookPath != nil {
		executor.LookPath = a.lookPath
	}

	policy := install.Policy{
		DryRun:      opts.DryRun,
		AutoConfirm: opts.Yes || cfg.Install.AutoConfirm,
		AutoRunEnv:  opts.RunEnv || cfg.Install.AutoRunEnv,
		Helper:      helper,
		Order:       cfg.Install.Order,
	}
	return exitCode(reporter, executor.Execute(ctx, execPlan, policy))
}

func parseArgs(args []string, output io.Writer) (options, string, error) {
	fs := flag.NewFlagSet("ai-pkg", flag.ContinueOnError)
	fs.SetOutput(output)

	var opts options
	fs.StringVar(&opts.APIKey, "api-key", "", "Gemini API key (default: $GEMINI_API_KEY)")
	fs.StringVar(&opts.AURHelper, "aur-helper", "", "AUR helper: yay|paru (default: $AI_PKG_AUR_HELPER, then config)")
	fs.StringVar(&opts.Backend, "backend", "", "override backend: gemini|command")
	fs.StringVar(&opts.Model, "model", "", "override model for this invocation")
	fs.StringVar(&opts.Order, "order", "", "override order: packages-first|steps-first")
	fs.StringVar(&opts.UI, "ui", "", "override ui backend: auto|bubbletea|huh|tview|plain")
	fs.StringVar(&opts.Format, "format", formatText, "output format: text|json|yaml")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "preview without installing")
	fs.BoolVar(&opts.Yes, "yes", false, "auto-confirm installation")
	fs.BoolVar(&opts.RunEnv, "run-env", false, "run environment setup steps without prompting")
	fs.BoolVar(&opts.Verbose, "verbose", false, "print debug diagnostics")
	fs.BoolVar(&opts.Version, "version", false, "print version")
	fs.BoolVar(&opts.ShowConfig, "show-config", false, "show effective settings and exit")
	fs.BoolVar(&opts.Doctor, "doctor", false, "check this system can install suggestions and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, "", err
	}
	opts.Format = strings.ToLower(strings.TrimSpace(opts.Format))
	switch opts.Format {
	case formatText, formatJSON, formatYAML:
	default:
		return options{}, "", fmt.Errorf("--format must be one of: text, json, yaml")
	}
	goal := strings.TrimSpace(strings.Join(fs.Args(), " "))
	return opts, goal, nil
}

func (a *app) runDoctor(cfg config.Config, cfgPath string, opts options) int {
	format := opts.Format
	checks := doctor.Run(cfg, cfgPath, opts.AURHelper, a.probe)
	if format != formatText {
		if err := writeDocument(a.stdout, checks, format); err != nil {
			fmt.Fprintf(a.stderr, "ai-pkg: %v\n", err)
			return 1
		}
	} else {
		reporter := ui.NewReporter(a.stdout, false)
		reporter.Header("doctor checks:")
		for _, check := range checks {
			switch check.Status {
			case doctor.StatusOK:
				reporter.Success("%s: %s", check.Key, check.Value)
			case doctor.StatusError:
				reporter.Error("%s: %s", check.Key, check.Value)
			default:
				reporter.Warn("%s: %s", check.Key, check.Value)
			}
		}
	}
	if doctor.Failed(checks) {
		return 1
	}
	return 0
}

func flagOverrides(opts options) map[string]string {
	changes := map[string]string{}
	if strings.TrimSpace(opts.Backend) != "" {
		changes["backend.name"] = opts.Backend
	}
	if strings.TrimSpace(opts.Model) != "" {
		changes["backend.model"] = opts.Model
	}
	if strings.TrimSpace(opts.Order) != "" {
		changes["install.order"] = opts.Order
	}
	if strings.TrimSpace(opts.UI) != "" {
		changes["ui.backend"] = opts.UI
	}
	return changes
}

func printSuggestion(reporter *ui.Reporter, s suggest.Suggestion) {
	if len(s.Packages) == 0 && len(s.EnvSteps) == 0 {
		reporter.Warn("the backend did not suggest anything for this goal")
		return
	}
	reporter.Header("Suggested packages: %s", strings.Join(s.Packages, ", "))
	reporter.List("Recommended environment setup steps:", s.EnvSteps, true)
}

func exitCode(reporter *ui.Reporter, err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, install.ErrDeclined) {
		reporter.Info("Aborting installation.")
		return 0
	}
	var exitErr *install.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, context.Canceled) {
		return runtime.InterruptedExitCode
	}
	reporter.Error("%v", err)
	return 1
}

func writeDocument(w io.Writer, doc any, format string) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("could not encode yaml: %w", err)
		}
		return enc.Close()
	case formatJSON:
		encoded, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("could not encode json: %w", err)
		}
		_, err = fmt.Fprintln(w, string(encoded))
		return err
	default:
		encoded, err := toml.Marshal(doc)
		if err != nil {
			return fmt.Errorf("could not encode toml: %w", err)
		}
		_, err = w.Write(encoded)
		return err
	}
}

func writeConfig(w io.Writer, cfg config.Config, cfgPath string, format string) error {
	if format == formatText {
		fmt.Fprintf(w, "# %s\n", cfgPath)
		return writeDocument(w, cfg, "toml")
	}
	doc := struct {
		Path   string        `json:"path" yaml:"path"`
		Config config.Config `json:"config" yaml:"config"`
	}{Path: cfgPath, Config: cfg}
	return writeDocument(w, doc, format)
}
