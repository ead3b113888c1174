package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Verdict string

const (
	VerdictYes Verdict = "YES"
	VerdictNo  Verdict = "NO"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Severity orders risk levels; unknown values rank as LOW.
func (r RiskLevel) Severity() int {
	switch r {
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	default:
		return 1
	}
}

func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// NormalizeRisk maps a decoded risk_level value (string, number or nil) onto a RiskLevel.
// Numbers: >=3 HIGH, 2 MEDIUM, anything else LOW.
func NormalizeRisk(v any) RiskLevel {
	switch value := v.(type) {
	case nil:
		return RiskLow
	case float64:
		return riskFromNumber(value)
	case int:
		return riskFromNumber(float64(value))
	case json.Number:
		f, err := value.Float64()
		if err != nil {
			return RiskLow
		}
		return riskFromNumber(f)
	case RiskLevel:
		return NormalizeRisk(string(value))
	case string:
		s := strings.ToUpper(strings.TrimSpace(value))
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return riskFromNumber(f)
		}
		switch s {
		case "HIGH", "CRITICAL", "SEVERE":
			return RiskHigh
		case "MEDIUM", "MODERATE":
			return RiskMedium
		default:
			return RiskLow
		}
	default:
		return RiskLow
	}
}

func riskFromNumber(f float64) RiskLevel {
	if f >= 3 {
		return RiskHigh
	}
	if f == 2 {
		return RiskMedium
	}
	return RiskLow
}

// NormalizeVerdict treats anything other than an explicit YES as NO.
func NormalizeVerdict(v any) Verdict {
	s, _ := v.(string)
	if strings.ToUpper(strings.TrimSpace(s)) == string(VerdictYes) {
		return VerdictYes
	}
	return VerdictNo
}

// Review is the structured reply of a single reviewer, or the final council decision.
type Review struct {
	Verdict         Verdict   `json:"verdict"`
	RiskLevel       RiskLevel `json:"risk_level"`
	Reasons         []string  `json:"reasons"`
	RequiredChanges []string  `json:"required_changes"`
	MessageToHuman  *string   `json:"message_to_human,omitempty"`
}

// UnmarshalJSON accepts the loose shapes models produce: numeric risk levels,
// lower-case verdicts, and required_changes given as a string or "none".
func (r *Review) UnmarshalJSON(data []byte) error {
	var raw struct {
		Verdict         any     `json:"verdict"`
		RiskLevel       any     `json:"risk_level"`
		Reasons         any     `json:"reasons"`
		RequiredChanges any     `json:"required_changes"`
		MessageToHuman  *string `json:"message_to_human"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Verdict = NormalizeVerdict(raw.Verdict)
	r.RiskLevel = NormalizeRisk(raw.RiskLevel)
	r.Reasons = stringList(raw.Reasons)
	r.RequiredChanges = stringList(raw.RequiredChanges)
	r.MessageToHuman = raw.MessageToHuman
	return nil
}

func stringList(v any) []string {
	switch value := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(value)
		if s == "" || strings.EqualFold(s, "none") {
			return nil
		}
		return []string{value}
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			if s, ok := item.(string); ok {
				out = append(out, s)
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return []string{fmt.Sprint(value)}
	}
}

// ReviewVerdict is one role's review of a proposed plan.
type ReviewVerdict struct {
	Role     string `json:"role"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Result   Review `json:"result"`
}

type CouncilResult struct {
	Council []ReviewVerdict `json:"council"`
	Final   Review          `json:"final"`
}

// Assignment binds a reviewer slot to a provider and model.
type Assignment struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
}
