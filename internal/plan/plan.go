package plan

import (
	"regexp"
	"strings"

	"github.com/ashwch/aipkg/internal/suggest"
)

const (
	DefaultManager         = "pacman"
	DefaultSecondaryPrefix = "aur:"
)

// ExecutionPlan is a Suggestion split by install source and by whether a
// setup step repeats the package manager's work.
type ExecutionPlan struct {
	PrimaryPackages   []string `json:"primary_packages" yaml:"primary_packages"`
	SecondaryPackages []string `json:"secondary_packages" yaml:"secondary_packages"`
	PassthroughSteps  []string `json:"passthrough_steps" yaml:"passthrough_steps"`
	SuppressedSteps   []string `json:"suppressed_steps" yaml:"suppressed_steps"`
}

func (p ExecutionPlan) Empty() bool {
	return len(p.PrimaryPackages) == 0 &&
		len(p.SecondaryPackages) == 0 &&
		len(p.PassthroughSteps) == 0 &&
		len(p.SuppressedSteps) == 0
}

type Planner struct {
	Manager         string
	SecondaryPrefix string
}

func Build(s suggest.Suggestion) ExecutionPlan {
	return Planner{}.Build(s)
}

func (p Planner) Build(s suggest.Suggestion) ExecutionPlan {
	manager := strings.TrimSpace(p.Manager)
	if manager == "" {
		manager = DefaultManager
	}
	prefix := p.SecondaryPrefix
	if prefix == "" {
		prefix = DefaultSecondaryPrefix
	}

	out := ExecutionPlan{
		PrimaryPackages:   []string{},
		SecondaryPackages: []string{},
		PassthroughSteps:  []string{},
		SuppressedSteps:   []string{},
	}

	for _, pkg := range s.Packages {
		if strings.HasPrefix(pkg, prefix) {
			out.SecondaryPackages = append(out.SecondaryPackages, strings.TrimPrefix(pkg, prefix))
			continue
		}
		out.PrimaryPackages = append(out.PrimaryPackages, pkg)
	}

	matcher := managerPattern(manager)
	for _, step := range s.EnvSteps {
		if matcher.MatchString(step) {
			out.SuppressedSteps = append(out.SuppressedSteps, step)
			continue
		}
		out.PassthroughSteps = append(out.PassthroughSteps, step)
	}
	return out
}

// InvokesManager reports whether step runs the named package manager, either
// as the command itself, after sudo, or as a standalone word in a chain.
func InvokesManager(step string, manager string) bool {
	return managerPattern(manager).MatchString(step)
}

// A word boundary here excludes "-" and "." so pacman-key or pacman.conf do
// not count as an install.
func managerPattern(manager string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(^|[^\w.-])` + regexp.QuoteMeta(manager) + `($|[^\w.-])`)
}
