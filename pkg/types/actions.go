package types

import (
	"errors"
	"fmt"
	"strings"
)

type ActionKind string

const (
	KindScreenshot  ActionKind = "desktop.screenshot"
	KindMoveMouse   ActionKind = "desktop.move_mouse"
	KindClick       ActionKind = "desktop.click"
	KindTypeText    ActionKind = "desktop.type_text"
	KindHotkey      ActionKind = "desktop.hotkey"
	KindShellExec   ActionKind = "shell.exec"
	KindFSRead      ActionKind = "fs.read"
	KindFSWrite     ActionKind = "fs.write"
	KindNetFetch    ActionKind = "net.fetch"
	KindToolCall    ActionKind = "tool.external_call"
	KindPaperTrade  ActionKind = "trade.paper"
	KindBrokerOrder ActionKind = "trade.broker_order"
	KindNotify      ActionKind = "notify"
)

var legacyActionNames = map[string]ActionKind{
	"screenshot":   KindScreenshot,
	"move_mouse":   KindMoveMouse,
	"click":        KindClick,
	"type_text":    KindTypeText,
	"hotkey":       KindHotkey,
	"shell_exec":   KindShellExec,
	"fs_read":      KindFSRead,
	"fs_write":     KindFSWrite,
	"web_fetch":    KindNetFetch,
	"mcp_call":     KindToolCall,
	"paper_trade":  KindPaperTrade,
	"alpaca_order": KindBrokerOrder,
}

// NormalizeActionKind maps a tagged or legacy action name onto the closed vocabulary.
func NormalizeActionKind(name string) (ActionKind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if kind, ok := legacyActionNames[name]; ok {
		return kind, true
	}
	kind := ActionKind(name)
	if _, ok := actionDecoders[kind]; ok {
		return kind, true
	}
	return "", false
}

// Action is one step of a plan. The set of implementations is closed.
type Action interface {
	Kind() ActionKind
	Validate() error
	Preview() string
}

var errRequired = errors.New("required")

func required(field string) error {
	return fmt.Errorf("%s: %w", field, errRequired)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func optFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}

type Screenshot struct {
	Path string `json:"path,omitempty"`
}

func (Screenshot) Kind() ActionKind { return KindScreenshot }
func (Screenshot) Validate() error  { return nil }
func (a Screenshot) Preview() string {
	if a.Path == "" {
		return "screenshot"
	}
	return "screenshot: " + a.Path
}

type MoveMouse struct {
	X        int     `json:"x"`
	Y        int     `json:"y"`
	Duration float64 `json:"duration,omitempty"`
}

func (MoveMouse) Kind() ActionKind { return KindMoveMouse }
func (a MoveMouse) Validate() error {
	if a.X < 0 || a.Y < 0 {
		return fmt.Errorf("coordinates must be non-negative")
	}
	if a.Duration < 0 {
		return fmt.Errorf("duration must be non-negative")
	}
	return nil
}
func (a MoveMouse) Preview() string { return fmt.Sprintf("move_mouse: (%d,%d)", a.X, a.Y) }

// Click clicks at the current pointer position when X and Y are nil.
type Click struct {
	X        *int    `json:"x,omitempty"`
	Y        *int    `json:"y,omitempty"`
	Button   string  `json:"button,omitempty"`
	Clicks   int     `json:"clicks,omitempty"`
	Interval float64 `json:"interval,omitempty"`
}

func (Click) Kind() ActionKind { return KindClick }
func (a Click) Validate() error {
	if (a.X == nil) != (a.Y == nil) {
		return fmt.Errorf("x and y must be set together")
	}
	switch a.Button {
	case "", "left", "right", "middle":
	default:
		return fmt.Errorf("unknown button %q", a.Button)
	}
	if a.Clicks < 0 {
		return fmt.Errorf("clicks must be non-negative")
	}
	return nil
}
func (a Click) Preview() string {
	if a.X == nil || a.Y == nil {
		return "click: (current)"
	}
	return fmt.Sprintf("click: (%d,%d)", *a.X, *a.Y)
}

type TypeText struct {
	Text     string  `json:"text"`
	Interval float64 `json:"interval,omitempty"`
}

func (TypeText) Kind() ActionKind { return KindTypeText }
func (a TypeText) Validate() error {
	if a.Text == "" {
		return required("text")
	}
	return nil
}
func (a TypeText) Preview() string { return "type_text: " + truncate(a.Text, 60) }

type Hotkey struct {
	Keys []string `json:"keys"`
}

func (Hotkey) Kind() ActionKind { return KindHotkey }
func (a Hotkey) Validate() error {
	if len(a.Keys) == 0 {
		return required("keys")
	}
	return nil
}
func (a Hotkey) Preview() string { return "hotkey: " + strings.Join(a.Keys, "+") }

type ShellExec struct {
	Cmd            string `json:"cmd"`
	TimeoutSeconds int    `json:"timeout_s,omitempty"`
}

func (ShellExec) Kind() ActionKind { return KindShellExec }
func (a ShellExec) Validate() error {
	if strings.TrimSpace(a.Cmd) == "" {
		return required("cmd")
	}
	if a.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_s must be non-negative")
	}
	return nil
}
func (a ShellExec) Preview() string { return "shell_exec: " + truncate(a.Cmd, 80) }

type FSRead struct {
	Path string `json:"path"`
}

func (FSRead) Kind() ActionKind { return KindFSRead }
func (a FSRead) Validate() error {
	if strings.TrimSpace(a.Path) == "" {
		return required("path")
	}
	return nil
}
func (a FSRead) Preview() string { return "fs_read: " + a.Path }

type FSWrite struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (FSWrite) Kind() ActionKind { return KindFSWrite }
func (a FSWrite) Validate() error {
	if strings.TrimSpace(a.Path) == "" {
		return required("path")
	}
	return nil
}
func (a FSWrite) Preview() string {
	return fmt.Sprintf("fs_write: %s (%d chars)", a.Path, len(a.Content))
}

type NetFetch struct {
	URL string `json:"url"`
}

func (NetFetch) Kind() ActionKind { return KindNetFetch }
func (a NetFetch) Validate() error {
	if strings.TrimSpace(a.URL) == "" {
		return required("url")
	}
	return nil
}
func (a NetFetch) Preview() string { return "web_fetch: " + a.URL }

// ToolCall invokes a tool on an external tool server.
type ToolCall struct {
	Server string         `json:"server"`
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
}

func (ToolCall) Kind() ActionKind { return KindToolCall }
func (a ToolCall) Validate() error {
	if strings.TrimSpace(a.Server) == "" {
		return required("server")
	}
	if strings.TrimSpace(a.Tool) == "" {
		return required("tool")
	}
	return nil
}
func (a ToolCall) Preview() string { return fmt.Sprintf("mcp_call: %s.%s", a.Server, a.Tool) }

type PaperTrade struct {
	Ticker string  `json:"ticker"`
	Side   string  `json:"side"`
	Qty    float64 `json:"qty"`
	Price  float64 `json:"price"`
}

func (PaperTrade) Kind() ActionKind { return KindPaperTrade }
func (a PaperTrade) Validate() error {
	if strings.TrimSpace(a.Ticker) == "" {
		return required("ticker")
	}
	switch strings.ToUpper(a.Side) {
	case "BUY", "SELL":
	default:
		return fmt.Errorf("side must be BUY or SELL")
	}
	if a.Qty <= 0 {
		return fmt.Errorf("qty must be positive")
	}
	if a.Price <= 0 {
		return fmt.Errorf("price must be positive")
	}
	return nil
}
func (a PaperTrade) Preview() string {
	return fmt.Sprintf("paper_trade: %s %g %s @ %g", strings.ToUpper(a.Side), a.Qty, strings.ToUpper(a.Ticker), a.Price)
}

// BrokerOrder places an order with the configured broker. Exactly one of Qty and Notional is set.
type BrokerOrder struct {
	BrokerMode           string   `json:"broker_mode"`
	Symbol               string   `json:"symbol"`
	Side                 string   `json:"side"`
	Qty                  *float64 `json:"qty,omitempty"`
	Notional             *float64 `json:"notional,omitempty"`
	OrderType            string   `json:"type,omitempty"`
	TimeInForce          string   `json:"time_in_force,omitempty"`
	LimitPrice           *float64 `json:"limit_price,omitempty"`
	StopPrice            *float64 `json:"stop_price,omitempty"`
	OrderClass           string   `json:"order_class,omitempty"`
	TakeProfitLimitPrice *float64 `json:"take_profit_limit_price,omitempty"`
	StopLossStopPrice    *float64 `json:"stop_loss_stop_price,omitempty"`
	ConfirmLive          bool     `json:"confirm_live,omitempty"`
}

func (BrokerOrder) Kind() ActionKind { return KindBrokerOrder }
func (a BrokerOrder) Validate() error {
	if strings.TrimSpace(a.Symbol) == "" {
		return required("symbol")
	}
	switch strings.ToLower(a.Side) {
	case "buy", "sell":
	default:
		return fmt.Errorf("side must be buy or sell")
	}
	if (a.Qty == nil) == (a.Notional == nil) {
		return fmt.Errorf("exactly one of qty and notional is required")
	}
	if a.Qty != nil && *a.Qty <= 0 {
		return fmt.Errorf("qty must be positive")
	}
	if a.Notional != nil && *a.Notional <= 0 {
		return fmt.Errorf("notional must be positive")
	}
	switch a.OrderType {
	case "", "market":
	case "limit":
		if a.LimitPrice == nil {
			return required("limit_price")
		}
	case "stop":
		if a.StopPrice == nil {
			return required("stop_price")
		}
	case "stop_limit":
		if a.LimitPrice == nil || a.StopPrice == nil {
			return fmt.Errorf("stop_limit requires limit_price and stop_price")
		}
	default:
		return fmt.Errorf("unknown order type %q", a.OrderType)
	}
	if a.OrderClass == "bracket" && (a.TakeProfitLimitPrice == nil || a.StopLossStopPrice == nil) {
		return fmt.Errorf("bracket requires take_profit_limit_price and stop_loss_stop_price")
	}
	return nil
}
func (a BrokerOrder) Preview() string {
	typ := a.OrderType
	if typ == "" {
		typ = "market"
	}
	size := "qty=" + optFloat(a.Qty)
	if a.Notional != nil {
		size = "notional=" + optFloat(a.Notional)
	}
	line := fmt.Sprintf("alpaca_order[%s]: %s %s %s %s", a.BrokerMode, strings.ToLower(a.Side), strings.ToUpper(a.Symbol), size, typ)
	if a.OrderClass == "bracket" {
		line += fmt.Sprintf(" tp=%s sl=%s", optFloat(a.TakeProfitLimitPrice), optFloat(a.StopLossStopPrice))
	}
	return line
}

type Notify struct {
	Channel string `json:"channel,omitempty"`
	Message string `json:"message"`
}

func (Notify) Kind() ActionKind { return KindNotify }
func (a Notify) Validate() error {
	if strings.TrimSpace(a.Message) == "" {
		return required("message")
	}
	return nil
}
func (a Notify) Preview() string { return "notify: " + truncate(a.Message, 60) }
