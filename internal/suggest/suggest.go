package suggest

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrEmpty  = errors.New("backend returned empty text")
	ErrNoJSON = errors.New("no JSON object or array found in backend text")
	ErrShape  = errors.New("unexpected response shape")
)

// Suggestion is the structured form of a backend reply: packages to install
// and shell steps to run afterwards, both in the order the backend gave them.
type Suggestion struct {
	Packages []string `json:"packages" yaml:"packages"`
	EnvSteps []string `json:"env_steps" yaml:"env_steps"`
}

func (s Suggestion) Empty() bool {
	return len(s.Packages) == 0 && len(s.EnvSteps) == 0
}

// Normalize never fails; any text it cannot read yields an empty Suggestion.
func Normalize(raw string) Suggestion {
	s, _ := Parse(raw)
	return s
}

func Parse(raw string) (Suggestion, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return empty(), ErrEmpty
	}

	value, ok := extractJSON(content)
	if !ok {
		return empty(), ErrNoJSON
	}
	return classify(value)
}

func empty() Suggestion {
	return Suggestion{Packages: []string{}, EnvSteps: []string{}}
}

func extractJSON(content string) (any, bool) {
	if value, err := decode(content); err == nil {
		return value, true
	}

	for _, markers := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(content, markers[0])
		end := strings.LastIndex(content, markers[1])
		if start == -1 || end <= start {
			continue
		}
		if value, err := decode(content[start : end+1]); err == nil {
			return value, true
		}
	}
	return nil, false
}

func decode(text string) (any, error) {
	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, err
	}
	return value, nil
}

func classify(value any) (Suggestion, error) {
	switch v := value.(type) {
	case []any:
		packages := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return empty(), ErrShape
			}
			packages = append(packages, str)
		}
		return Suggestion{Packages: packages, EnvSteps: []string{}}, nil
	case map[string]any:
		return Suggestion{
			Packages: stringList(v["packages"]),
			EnvSteps: stringList(v["env_steps"]),
		}, nil
	default:
		return empty(), ErrShape
	}
}

func stringList(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			continue
		}
		out = append(out, str)
	}
	return out
}
