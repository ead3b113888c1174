package policy

// ToolPolicy governs external tool calls. Rules are evaluated first-match; Defaults apply
// when nothing matches.
type ToolPolicy struct {
	PolicyID      string       `yaml:"policy_id"`
	PolicyVersion string       `yaml:"policy_version"`
	Defaults      ToolDefaults `yaml:"defaults"`
	Rules         []ToolRule   `yaml:"rules"`
	// BlockedToolPatterns are case-insensitive regexps matched against the tool name.
	BlockedToolPatterns []string `yaml:"blocked_tool_patterns"`
	// BlockedArgTokens are substrings rejected in any string argument.
	BlockedArgTokens []string `yaml:"blocked_arg_tokens"`
}

type ToolDefaults struct {
	Deny bool `yaml:"deny"`
}

type ToolRule struct {
	ID     string     `yaml:"id"`
	Match  ToolMatch  `yaml:"match"`
	Effect ToolEffect `yaml:"effect"`
}

// ToolMatch fields are path.Match globs; empty matches anything.
type ToolMatch struct {
	Server string `yaml:"server"`
	Tool   string `yaml:"tool"`
}

type ToolEffect struct {
	Deny   *bool  `yaml:"deny"`
	Reason string `yaml:"reason"`
}

// DefaultToolPolicy allows tools on configured servers except the destructive names.
func DefaultToolPolicy() ToolPolicy {
	return ToolPolicy{
		PolicyID:            "default",
		PolicyVersion:       "1",
		BlockedToolPatterns: []string{"delete", "rm", "exec", "shell", "network", "upload"},
		BlockedArgTokens:    []string{";", "&&", "||", "`", "$(", ">", "<"},
	}
}
