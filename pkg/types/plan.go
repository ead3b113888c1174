package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type PlanType string

const (
	PlanDesktop    PlanType = "desktop"
	PlanTrading    PlanType = "trading"
	PlanNotifyOnly PlanType = "notify_only"
)

// Supported reports whether the executor has handlers for this plan type.
func (p PlanType) Supported() bool {
	switch p {
	case PlanDesktop, PlanTrading, PlanNotifyOnly:
		return true
	default:
		return false
	}
}

// Plan is a typed list of actions. Actions are a closed union selected by their "name" tag.
type Plan struct {
	Type    PlanType       `json:"type"`
	Actions []Action       `json:"actions"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Validate checks every action's own field set. The plan type itself is checked at execution.
func (p Plan) Validate() error {
	if strings.TrimSpace(string(p.Type)) == "" {
		return fmt.Errorf("plan type is required")
	}
	for i, action := range p.Actions {
		if action == nil {
			return fmt.Errorf("action %d: missing", i+1)
		}
		if err := action.Validate(); err != nil {
			return fmt.Errorf("action %d (%s): %w", i+1, action.Kind(), err)
		}
	}
	return nil
}

// Preview renders one human-readable line per action.
func (p Plan) Preview() []string {
	out := make([]string, 0, len(p.Actions))
	for i, action := range p.Actions {
		out = append(out, fmt.Sprintf("%d. %s", i+1, action.Preview()))
	}
	return out
}

func (p Plan) MarshalJSON() ([]byte, error) {
	actions := make([]json.RawMessage, 0, len(p.Actions))
	for _, action := range p.Actions {
		raw, err := EncodeAction(action)
		if err != nil {
			return nil, err
		}
		actions = append(actions, raw)
	}
	return json.Marshal(struct {
		Type    PlanType          `json:"type"`
		Actions []json.RawMessage `json:"actions"`
		Meta    map[string]any    `json:"meta,omitempty"`
	}{Type: p.Type, Actions: actions, Meta: p.Meta})
}

func (p *Plan) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type    PlanType          `json:"type"`
		Actions []json.RawMessage `json:"actions"`
		Meta    map[string]any    `json:"meta"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var actions []Action
	for i, item := range raw.Actions {
		action, err := DecodeAction(item)
		if err != nil {
			return fmt.Errorf("action %d: %w", i+1, err)
		}
		actions = append(actions, action)
	}
	p.Type = raw.Type
	p.Actions = actions
	p.Meta = raw.Meta
	return nil
}

// EncodeAction marshals an action with its "name" tag first.
func EncodeAction(action Action) ([]byte, error) {
	if action == nil {
		return nil, fmt.Errorf("nil action")
	}
	body, err := json.Marshal(action)
	if err != nil {
		return nil, err
	}
	name, err := json.Marshal(string(action.Kind()))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"name":`)
	buf.Write(name)
	inner := bytes.TrimSpace(body)
	if len(inner) > 2 {
		buf.WriteByte(',')
		buf.Write(inner[1 : len(inner)-1])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DecodeAction selects the variant from the "name" tag, accepting legacy names.
func DecodeAction(data []byte) (Action, error) {
	var tag struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, err
	}
	kind, ok := NormalizeActionKind(tag.Name)
	if !ok {
		return nil, fmt.Errorf("unknown action %q", tag.Name)
	}
	decode, ok := actionDecoders[kind]
	if !ok {
		return nil, fmt.Errorf("unknown action %q", tag.Name)
	}
	return decode(data)
}

func decodeAs[T Action](data []byte) (Action, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

var actionDecoders = map[ActionKind]func([]byte) (Action, error){
	KindScreenshot:  decodeAs[Screenshot],
	KindMoveMouse:   decodeAs[MoveMouse],
	KindClick:       decodeAs[Click],
	KindTypeText:    decodeAs[TypeText],
	KindHotkey:      decodeAs[Hotkey],
	KindShellExec:   decodeAs[ShellExec],
	KindFSRead:      decodeAs[FSRead],
	KindFSWrite:     decodeAs[FSWrite],
	KindNetFetch:    decodeAs[NetFetch],
	KindToolCall:    decodeAs[ToolCall],
	KindPaperTrade:  decodeAs[PaperTrade],
	KindBrokerOrder: decodeAs[BrokerOrder],
	KindNotify:      decodeAs[Notify],
}
