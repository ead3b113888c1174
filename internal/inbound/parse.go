// Package inbound interprets messages from the human approval channels: approval replies
// ("YES CODE" / "NO CODE") and SMS plan commands.
package inbound

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/pkg/types"
)

type Reply struct {
	Approve bool
	Code    string
}

// ParseReply reads "YES <code>" or "NO <code>", case-insensitively. Extra words are ignored.
func ParseReply(text string) (Reply, bool) {
	parts := strings.Fields(strings.ToUpper(strings.TrimSpace(text)))
	if len(parts) < 2 {
		return Reply{}, false
	}
	switch parts[0] {
	case "YES":
		return Reply{Approve: true, Code: parts[1]}, true
	case "NO":
		return Reply{Approve: false, Code: parts[1]}, true
	default:
		return Reply{}, false
	}
}

const SMSUsage = "Invalid format. Use: PLAN [RAGMODE] :: <request> | SHOT | TYPE: text | HOTKEY: ctrl+shift+p | CLICK: x,y"

var ragModes = map[string]bool{
	"naive": true, "advanced": true, "graphrag": true, "agentic": true, "finetune": true, "cag": true,
}

var (
	planHeader = regexp.MustCompile(`(?i)^PLAN(?:\s+(\w+))?\s*::\s*(.+)$`)
	shotStep   = regexp.MustCompile(`(?i)^SHOT$`)
	typeStep   = regexp.MustCompile(`(?i)^TYPE\s*:\s*(.+)$`)
	hotkeyStep = regexp.MustCompile(`(?i)^HOTKEY\s*:\s*(.+)$`)
	clickStep  = regexp.MustCompile(`(?i)^CLICK\s*:\s*(\d+)\s*,\s*(\d+)$`)
)

type SMSPlan struct {
	RagMode       string
	ActionRequest string
	Plan          types.Plan
}

// ParseSMSPlan reads `PLAN [MODE] :: request | step | step`. Unknown modes become "naive";
// unrecognized steps are skipped; a plan with no steps takes a screenshot.
func ParseSMSPlan(body string) (SMSPlan, error) {
	parts := strings.Split(strings.TrimSpace(body), "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	m := planHeader.FindStringSubmatch(parts[0])
	if m == nil {
		return SMSPlan{}, fmt.Errorf("sms must start with: PLAN [RAGMODE] :: <request>")
	}
	mode := strings.ToLower(m[1])
	if !ragModes[mode] {
		mode = "naive"
	}

	var actions []types.Action
	for _, step := range parts[1:] {
		switch {
		case step == "":
		case shotStep.MatchString(step):
			actions = append(actions, types.Screenshot{Path: "screenshot.png"})
		case typeStep.MatchString(step):
			actions = append(actions, types.TypeText{Text: typeStep.FindStringSubmatch(step)[1], Interval: 0.02})
		case hotkeyStep.MatchString(step):
			var keys []string
			for _, k := range strings.Split(hotkeyStep.FindStringSubmatch(step)[1], "+") {
				if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
					keys = append(keys, k)
				}
			}
			if len(keys) > 0 {
				actions = append(actions, types.Hotkey{Keys: keys})
			}
		case clickStep.MatchString(step):
			sm := clickStep.FindStringSubmatch(step)
			x, errX := strconv.Atoi(sm[1])
			y, errY := strconv.Atoi(sm[2])
			if errX == nil && errY == nil {
				actions = append(actions, types.Click{X: &x, Y: &y})
			}
		}
	}
	if len(actions) == 0 {
		actions = []types.Action{types.Screenshot{Path: "screenshot.png"}}
	}
	return SMSPlan{
		RagMode:       mode,
		ActionRequest: strings.TrimSpace(m[2]),
		Plan:          types.Plan{Type: types.PlanDesktop, Actions: actions},
	}, nil
}
