package policy

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/apperr"
)

var windowsAbs = regexp.MustCompile(`^[A-Za-z]:\\`)

// ScreenArgs rejects tool arguments carrying shell metacharacters, path traversal, or a
// "path" argument that leaves repoRoot.
func (p ToolPolicy) ScreenArgs(repoRoot string, args map[string]any) error {
	for _, s := range collectStrings(args) {
		for _, tok := range p.BlockedArgTokens {
			if strings.Contains(s, tok) {
				return apperr.Policy("tool.args", "suspicious shell-like tokens in args")
			}
		}
		if strings.Contains(strings.ReplaceAll(s, `\`, "/"), "..") {
			return apperr.Policy("tool.args", "path traversal '..' in args")
		}
	}

	raw, ok := args["path"].(string)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	if filepath.IsAbs(raw) || strings.HasPrefix(raw, "/") || windowsAbs.MatchString(raw) {
		return apperr.Policy("tool.args", "absolute paths are not allowed")
	}
	root := filepath.Clean(repoRoot)
	joined := filepath.Clean(filepath.Join(root, raw))
	if rel, err := filepath.Rel(root, joined); err != nil || strings.HasPrefix(rel, "..") {
		return apperr.Policy("tool.args", "path escapes repo root")
	}
	return nil
}

func collectStrings(v any) []string {
	switch value := v.(type) {
	case string:
		return []string{value}
	case map[string]any:
		keys := make([]string, 0, len(value))
		for k := range value {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []string
		for _, k := range keys {
			out = append(out, collectStrings(value[k])...)
		}
		return out
	case []any:
		var out []string
		for _, item := range value {
			out = append(out, collectStrings(item)...)
		}
		return out
	default:
		return nil
	}
}

// Guard checks a tool call against a loaded policy.
type Guard struct {
	Loaded   LoadedToolPolicy
	RepoRoot string
}

func (g *Guard) Check(server, tool string, args map[string]any) error {
	d := Evaluate(g.Loaded.Policy, g.Loaded.Hash, ToolInput{Server: server, Tool: tool})
	if !d.Allowed {
		reason := d.Reason
		if reason == "" {
			reason = "denied by policy"
		}
		return apperr.Policy("tool.call", "%s.%s: %s", server, tool, reason)
	}
	return g.Loaded.Policy.ScreenArgs(g.RepoRoot, args)
}
