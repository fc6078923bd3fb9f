package ui

import (
	"strings"
	"testing"
)

func TestBackendCandidatesFallbackOrder(t *testing.T) {
	cases := map[string][]string{
		"auto":      {BackendBubbleTea, BackendHuh, BackendTView},
		"":          {BackendBubbleTea, BackendHuh, BackendTView},
		"bubbletea": {BackendBubbleTea, BackendHuh, BackendTView},
		"HUH":       {BackendHuh, BackendBubbleTea, BackendTView},
		"tview":     {BackendTView, BackendBubbleTea, BackendHuh},
		"plain":     {BackendPlain},
	}
	for backend, want := range cases {
		got := backendCandidates(backend)
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Fatalf("backend %q: expected %q, got %q", backend, want, got)
		}
	}
}

func TestBackendCandidatesReturnsCopy(t *testing.T) {
	first := backendCandidates("auto")
	first[0] = "mutated"
	if backendCandidates("auto")[0] != BackendBubbleTea {
		t.Fatalf("expected candidate order to be unaffected by callers")
	}
}

func TestNormalizeBackendUnknownIsAuto(t *testing.T) {
	if got := NormalizeBackend("neon"); got != BackendAuto {
		t.Fatalf("expected auto, got %q", got)
	}
	if IsInteractiveBackend("PLAIN") {
		t.Fatalf("expected plain to be non-interactive")
	}
	if !IsInteractiveBackend("huh") {
		t.Fatalf("expected huh to be interactive")
	}
}
