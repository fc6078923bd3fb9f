package backend

import (
	"fmt"
	"strings"

	"github.com/ashwch/aipkg/internal/config"
)

// Options carries per-invocation values that do not live in the config
// file, such as the resolved API key.
type Options struct {
	APIKey string
}

type Factory func(cfg config.Config, opts Options) (Generator, error)

type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	r := &Registry{factories: map[string]Factory{}}
	r.Register(config.BackendGemini, newGeminiFromConfig)
	r.Register(config.BackendCommand, newCommandFromConfig)
	return r
}

func (r *Registry) Register(name string, factory Factory) {
	if r.factories == nil {
		r.factories = map[string]Factory{}
	}
	r.factories[strings.ToLower(strings.TrimSpace(name))] = factory
}

// Build returns the configured backend wrapped with retry/backoff.
func (r *Registry) Build(cfg config.Config, opts Options) (*Retrying, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Backend.Name))
	if name == "" {
		name = config.BackendGemini
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unsupported backend: %s", name)
	}
	generator, err := factory(cfg, opts)
	if err != nil {
		return nil, err
	}
	return NewRetrying(generator, cfg.Retry.Attempts, cfg.RetryBaseDelay()), nil
}

// NeedsAPIKey reports whether the named backend authenticates with an API
// key rather than delegating to an external CLI.
func NeedsAPIKey(name string) bool {
	return strings.ToLower(strings.TrimSpace(name)) != config.BackendCommand
}

func newGeminiFromConfig(cfg config.Config, opts Options) (Generator, error) {
	return NewGeminiClient(opts.APIKey, cfg.Backend.Model, cfg.Backend.Endpoint, cfg.BackendTimeout())
}

func newCommandFromConfig(cfg config.Config, _ Options) (Generator, error) {
	return NewCommandGenerator(cfg.Command.Command, cfg.Command.Args, cfg.Backend.Model, cfg.BackendTimeout())
}
