package ui

import "strings"

const (
	BackendAuto      = "auto"
	BackendBubbleTea = "bubbletea"
	BackendHuh       = "huh"
	BackendTView     = "tview"
	BackendPlain     = "plain"
)

// fallbackOrder lists, per configured backend, the confirm prompts to try.
// A prompt that cannot start (no tty, tiny terminal) falls through to the
// next one and finally to the line-based [y/N] question.
var fallbackOrder = map[string][]string{
	BackendAuto:      {BackendBubbleTea, BackendHuh, BackendTView},
	BackendBubbleTea: {BackendBubbleTea, BackendHuh, BackendTView},
	BackendHuh:       {BackendHuh, BackendBubbleTea, BackendTView},
	BackendTView:     {BackendTView, BackendBubbleTea, BackendHuh},
	BackendPlain:     {BackendPlain},
}

// NormalizeBackend maps unknown or empty names to auto.
func NormalizeBackend(backend string) string {
	name := strings.ToLower(strings.TrimSpace(backend))
	if _, ok := fallbackOrder[name]; ok {
		return name
	}
	return BackendAuto
}

func IsInteractiveBackend(backend string) bool {
	return NormalizeBackend(backend) != BackendPlain
}

func backendCandidates(backend string) []string {
	return append([]string(nil), fallbackOrder[NormalizeBackend(backend)]...)
}
