package safety

import "regexp"

const (
	secretName  = `(?:token|secret|password|passwd|api[_-]?key|access[_-]?key)`
	secretValue = `([^\s"'&]+|"[^"]*"|'[^']*')`
)

type redactionRule struct {
	pattern     *regexp.Regexp
	replacement string
}

func rule(pattern, replacement string) redactionRule {
	return redactionRule{pattern: regexp.MustCompile(pattern), replacement: replacement}
}

var secretRedactionRules = []redactionRule{
	// GEMINI_API_KEY=..., token: ...
	rule(`(?i)\b([a-z0-9_]*`+secretName+`[a-z0-9_]*)\s*[=:]\s*`+secretValue, `$1=<redacted>`),
	// --api-key VALUE, --password=VALUE
	rule(`(?i)(--[a-z0-9_-]*(?:`+secretName+`|authorization)[a-z0-9_-]*)(\s*=\s*|\s+)`+secretValue, `$1$2<redacted>`),
	rule(`(?i)\b(authorization\s*:\s*bearer|x-goog-api-key\s*:)\s*([^\s"']+)`, `$1 <redacted>`),
	// Gemini REST URLs carry the key as a query parameter.
	rule(`(?i)([?&]key=)([^\s&"']+)`, `${1}<redacted>`),
	rule(`\bAIza[0-9A-Za-z_-]{30,}`, `<redacted>`),
}

// RedactText scrubs API keys, tokens and passwords from text before it is
// echoed to the terminal. Package-manager flags such as -S are left alone.
func RedactText(input string) string {
	redacted := input
	for _, r := range secretRedactionRules {
		redacted = r.pattern.ReplaceAllString(redacted, r.replacement)
	}
	return redacted
}
