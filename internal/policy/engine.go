package policy

import (
	"fmt"
	"path"
	"regexp"
)

type ToolInput struct {
	Server string
	Tool   string
}

type ToolDecision struct {
	Allowed       bool
	Reason        string
	MatchedRuleID string
	ReasonCodes   []string
	PolicyID      string
	PolicyHash    string
}

func (p ToolPolicy) compile() error {
	for _, pat := range p.BlockedToolPatterns {
		if _, err := regexp.Compile("(?i)" + pat); err != nil {
			return fmt.Errorf("blocked_tool_patterns: %w", err)
		}
	}
	for _, rule := range p.Rules {
		for _, glob := range []string{rule.Match.Server, rule.Match.Tool} {
			if _, err := path.Match(glob, ""); err != nil {
				return fmt.Errorf("rule %s: %w", rule.ID, err)
			}
		}
	}
	return nil
}

// Evaluate applies blocked tool patterns, then the first matching rule, then defaults.
func Evaluate(p ToolPolicy, policyHash string, in ToolInput) ToolDecision {
	d := ToolDecision{Allowed: !p.Defaults.Deny, PolicyID: p.PolicyID, PolicyHash: policyHash}
	if p.Defaults.Deny {
		d.Reason = "denied by default"
	}

	for _, pat := range p.BlockedToolPatterns {
		re, err := regexp.Compile("(?i)" + pat)
		if err != nil || re.MatchString(in.Tool) {
			d.Allowed = false
			d.Reason = "tool name matches blocked pattern"
			d.ReasonCodes = append(d.ReasonCodes, "BLOCKED_TOOL:"+pat)
			return d
		}
	}

	for _, rule := range p.Rules {
		if !globMatch(rule.Match.Server, in.Server) || !globMatch(rule.Match.Tool, in.Tool) {
			continue
		}
		d.MatchedRuleID = rule.ID
		d.ReasonCodes = append(d.ReasonCodes, "POLICY_MATCH:"+rule.ID)
		if rule.Effect.Deny != nil {
			d.Allowed = !*rule.Effect.Deny
		}
		d.Reason = rule.Effect.Reason
		return d
	}
	return d
}

func globMatch(pattern, value string) bool {
	if pattern == "" {
		return true
	}
	ok, err := path.Match(pattern, value)
	return err == nil && ok
}
