package council

import "regexp"

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all )?(previous|prior) instructions`),
	regexp.MustCompile(`(?i)system prompt`),
	regexp.MustCompile(`(?i)developer message`),
	regexp.MustCompile(`(?i)reveal.*(secret|key|token|password)`),
	regexp.MustCompile(`(?i)exfiltrat`),
	regexp.MustCompile(`(?i)jailbreak`),
	regexp.MustCompile(`(?i)do anything now`),
	regexp.MustCompile(`(?i)override`),
}

// LooksLikeInjection reports whether text matches any of the prompt-injection heuristics.
func LooksLikeInjection(text string) bool {
	for _, re := range injectionPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)(\S+)`),
	regexp.MustCompile(`(?i)\b((?:key|secret|token|password)\s*[:=]\s*)(\S+)`),
	regexp.MustCompile(`(?i)(bearer\s+)(\S+)`),
}

// ScrubSecrets redacts credential-shaped values.
func ScrubSecrets(text string) string {
	for _, re := range secretPatterns {
		text = re.ReplaceAllString(text, "${1}[REDACTED]")
	}
	return text
}
