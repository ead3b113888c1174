package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/pkg/types"
)

type Config struct {
	ListenAddr    string          `yaml:"listen_addr"`
	RepoPath      string          `yaml:"repo_path"`
	PublicBaseURL string          `yaml:"public_base_url"`
	Store         StoreConfig     `yaml:"store"`
	Policy        PolicyConfig    `yaml:"policy"`
	Council       CouncilConfig   `yaml:"council"`
	Providers     ProvidersConfig `yaml:"providers"`
	Notify        NotifyConfig    `yaml:"notify"`
	Executor      ExecutorConfig  `yaml:"executor"`
	Trading       TradingConfig   `yaml:"trading"`
	Risk          RiskConfig      `yaml:"risk"`
	Autopilot     AutopilotConfig `yaml:"autopilot"`
	Briefing      BriefingConfig  `yaml:"briefing"`
	Logs          LogConfig       `yaml:"logs"`
	Auth          AuthConfig      `yaml:"auth"`
	Signing       SigningConfig   `yaml:"signing"`
}

// StoreConfig selects the KV backend: memory, sqlite or postgres.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type PolicyConfig struct {
	RulesPath      string `yaml:"rules_path"`
	ToolPolicyPath string `yaml:"tool_policy_path"`
}

type CouncilConfig struct {
	Roles         []string           `yaml:"roles"`
	EnableArbiter bool               `yaml:"enable_arbiter"`
	ProviderPlan  []types.Assignment `yaml:"provider_plan"`
	RolePrompts   map[string]string  `yaml:"role_prompts"`
}

type ProvidersConfig struct {
	OllamaHost        string `yaml:"ollama_host"`
	OpenRouterAPIKey  string `yaml:"openrouter_api_key"`
	OpenRouterBaseURL string `yaml:"openrouter_base_url"`
	GroqAPIKey        string `yaml:"groq_api_key"`
	GroqBaseURL       string `yaml:"groq_base_url"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Twilio   TwilioConfig   `yaml:"twilio"`
	Outbox   OutboxConfig   `yaml:"outbox"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	APIBase  string `yaml:"api_base"`
}

type TwilioConfig struct {
	AccountSID    string `yaml:"account_sid"`
	AuthToken     string `yaml:"auth_token"`
	From          string `yaml:"from"`
	ApproverPhone string `yaml:"approver_phone"`
	APIBase       string `yaml:"api_base"`
}

type OutboxConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSeconds int  `yaml:"interval_seconds"`
	BatchSize       int  `yaml:"batch_size"`
}

type ExecutorConfig struct {
	EnableDangerousTools bool              `yaml:"enable_dangerous_tools"`
	AllowAbsolutePaths   bool              `yaml:"allow_absolute_paths"`
	ShellTimeoutSeconds  int               `yaml:"shell_timeout_seconds"`
	WebAllowlist         []string          `yaml:"web_allowlist"`
	FetchMaxChars        int               `yaml:"fetch_max_chars"`
	ToolServers          map[string]string `yaml:"tool_servers"`
	DesktopAgentURL      string            `yaml:"desktop_agent_url"`
}

type TradingConfig struct {
	Broker          string  `yaml:"broker"`
	AlpacaAPIKey    string  `yaml:"alpaca_api_key"`
	AlpacaAPISecret string  `yaml:"alpaca_api_secret"`
	AlpacaPaper     bool    `yaml:"alpaca_paper"`
	AlpacaBaseURL   string  `yaml:"alpaca_base_url"`
	PaperStartCash  float64 `yaml:"paper_start_cash"`
}

// BrokerEnabled reports whether broker orders may be placed at all.
func (t TradingConfig) BrokerEnabled() bool {
	return strings.EqualFold(t.Broker, "alpaca")
}

// AccountMode is "paper" or "live" depending on the configured account.
func (t TradingConfig) AccountMode() string {
	if t.AlpacaPaper {
		return "paper"
	}
	return "live"
}

type RiskConfig struct {
	MaxPositionPct      float64 `yaml:"max_position_pct"`
	MaxSectorPct        float64 `yaml:"max_sector_pct"`
	DefaultStopATR      float64 `yaml:"default_stop_atr"`
	DefaultTakeProfitRR float64 `yaml:"default_take_profit_rr"`
}

type AutopilotConfig struct {
	Enabled              bool     `yaml:"enabled"`
	IntervalSeconds      int      `yaml:"interval_seconds"`
	MinScore             float64  `yaml:"min_score"`
	MaxTradesPerRun      int      `yaml:"max_trades_per_run"`
	Governance           bool     `yaml:"governance"`
	RespectCouncil       bool     `yaml:"respect_council"`
	SubmitProposals      bool     `yaml:"submit_proposals"`
	ProposalDryRun       bool     `yaml:"proposal_dry_run"`
	Watchlist            []string `yaml:"watchlist"`
	BacktestLookbackDays int      `yaml:"backtest_lookback_days"`
	HistoryLimit         int      `yaml:"history_limit"`
}

// BriefingConfig drives the daily news briefing. At is a local "HH:MM"; sources are RSS or
// Atom feed URLs.
type BriefingConfig struct {
	Enabled              bool     `yaml:"enabled"`
	At                   string   `yaml:"at"`
	CheckIntervalSeconds int      `yaml:"check_interval_seconds"`
	Sources              []string `yaml:"sources"`
	MaxItems             int      `yaml:"max_items"`
	ItemsPerSource       int      `yaml:"items_per_source"`
	Provider             string   `yaml:"provider"`
	Model                string   `yaml:"model"`
}

// TimeOfDay parses At into hour and minute.
func (b BriefingConfig) TimeOfDay() (hour, minute int, err error) {
	at, err := time.Parse("15:04", strings.TrimSpace(b.At))
	if err != nil {
		return 0, 0, fmt.Errorf("briefing.at must be HH:MM: %w", err)
	}
	return at.Hour(), at.Minute(), nil
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type AuthConfig struct {
	Tokens []string `yaml:"tokens"`
}

type SigningConfig struct {
	KeyID          string `yaml:"key_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// Defaults returns a config that runs locally with every side-effecting tool disabled.
func Defaults() Config {
	return Config{
		ListenAddr:    ":7070",
		RepoPath:      ".",
		PublicBaseURL: "http://localhost:7070",
		Store:         StoreConfig{Driver: "memory"},
		Policy:        PolicyConfig{RulesPath: "policies/rules.md"},
		Council: CouncilConfig{
			Roles: []string{"security", "ethics", "code"},
			ProviderPlan: []types.Assignment{
				{Provider: "ollama", Model: "llama3.1:8b"},
				{Provider: "ollama", Model: "llama3.1:8b"},
				{Provider: "ollama", Model: "qwen2.5-coder:7b"},
			},
		},
		Providers: ProvidersConfig{
			OllamaHost:        "http://localhost:11434",
			OpenRouterBaseURL: "https://openrouter.ai/api/v1",
			GroqBaseURL:       "https://api.groq.com/openai/v1",
			TimeoutSeconds:    120,
		},
		Notify: NotifyConfig{
			Outbox: OutboxConfig{IntervalSeconds: 5, BatchSize: 20},
		},
		Executor: ExecutorConfig{
			ShellTimeoutSeconds: 60,
			FetchMaxChars:       200_000,
		},
		Trading: TradingConfig{
			Broker:         "none",
			AlpacaPaper:    true,
			PaperStartCash: 100_000,
		},
		Risk: RiskConfig{
			MaxPositionPct:      0.10,
			MaxSectorPct:        0.30,
			DefaultStopATR:      2.0,
			DefaultTakeProfitRR: 2.0,
		},
		Autopilot: AutopilotConfig{
			IntervalSeconds:      3600,
			MinScore:             0.65,
			MaxTradesPerRun:      2,
			SubmitProposals:      true,
			ProposalDryRun:       true,
			BacktestLookbackDays: 365,
			HistoryLimit:         200,
		},
		Briefing: BriefingConfig{
			At:                   "09:00",
			CheckIntervalSeconds: 60,
			MaxItems:             8,
			ItemsPerSource:       3,
			Provider:             "ollama",
			Model:                "llama3.1:8b",
		},
		Logs: LogConfig{Level: "info", MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 30, Compress: true},
	}
}

// Load reads a YAML file over Defaults, expanding ${VAR} references first.
func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overlays GUARDIAN_* and the conventional provider variables onto c.
func (c *Config) ApplyEnv(getenv func(string) string) {
	c.ListenAddr = firstNonEmpty(getenv("GUARDIAN_LISTEN_ADDR"), c.ListenAddr)
	c.RepoPath = firstNonEmpty(getenv("REPO_PATH"), c.RepoPath)
	c.PublicBaseURL = firstNonEmpty(getenv("PUBLIC_BASE_URL"), c.PublicBaseURL)
	c.Store.Driver = firstNonEmpty(getenv("GUARDIAN_STORE_DRIVER"), c.Store.Driver)
	c.Store.DSN = firstNonEmpty(getenv("GUARDIAN_STORE_DSN"), c.Store.DSN)
	c.Policy.RulesPath = firstNonEmpty(getenv("GUARDIAN_POLICY_RULES"), c.Policy.RulesPath)
	c.Providers.OllamaHost = firstNonEmpty(getenv("OLLAMA_HOST"), c.Providers.OllamaHost)
	c.Providers.OpenRouterAPIKey = firstNonEmpty(getenv("OPENROUTER_API_KEY"), c.Providers.OpenRouterAPIKey)
	c.Providers.GroqAPIKey = firstNonEmpty(getenv("GROQ_API_KEY"), c.Providers.GroqAPIKey)
	c.Notify.Telegram.BotToken = firstNonEmpty(getenv("TELEGRAM_BOT_TOKEN"), c.Notify.Telegram.BotToken)
	c.Notify.Telegram.ChatID = firstNonEmpty(getenv("TELEGRAM_CHAT_ID"), c.Notify.Telegram.ChatID)
	c.Notify.Twilio.AccountSID = firstNonEmpty(getenv("TWILIO_ACCOUNT_SID"), c.Notify.Twilio.AccountSID)
	c.Notify.Twilio.AuthToken = firstNonEmpty(getenv("TWILIO_AUTH_TOKEN"), c.Notify.Twilio.AuthToken)
	c.Notify.Twilio.From = firstNonEmpty(getenv("TWILIO_FROM"), c.Notify.Twilio.From)
	c.Notify.Twilio.ApproverPhone = firstNonEmpty(getenv("APPROVER_PHONE"), c.Notify.Twilio.ApproverPhone)
	c.Trading.Broker = firstNonEmpty(getenv("TRADING_BROKER"), c.Trading.Broker)
	c.Trading.AlpacaAPIKey = firstNonEmpty(getenv("ALPACA_API_KEY"), c.Trading.AlpacaAPIKey)
	c.Trading.AlpacaAPISecret = firstNonEmpty(getenv("ALPACA_API_SECRET"), c.Trading.AlpacaAPISecret)
	c.Trading.AlpacaBaseURL = firstNonEmpty(getenv("ALPACA_BASE_URL"), c.Trading.AlpacaBaseURL)
	if v, err := strconv.ParseBool(getenv("ALPACA_PAPER")); err == nil {
		c.Trading.AlpacaPaper = v
	}
	if v, err := strconv.ParseBool(getenv("ENABLE_DANGEROUS_TOOLS")); err == nil {
		c.Executor.EnableDangerousTools = v
	}
	if v, err := strconv.ParseBool(getenv("GUARDIAN_BRIEFING")); err == nil {
		c.Briefing.Enabled = v
	}
	c.Briefing.At = firstNonEmpty(getenv("GUARDIAN_BRIEFING_AT"), c.Briefing.At)
	if v := getenv("GUARDIAN_BRIEFING_SOURCES"); v != "" {
		c.Briefing.Sources = splitList(v)
	}
	c.Logs.Level = firstNonEmpty(getenv("GUARDIAN_LOG_LEVEL"), c.Logs.Level)
	c.Signing.PrivateKeyPath = firstNonEmpty(getenv("GUARDIAN_SIGNING_KEY"), c.Signing.PrivateKeyPath)
	if token := getenv("GUARDIAN_DEV_TOKEN"); token != "" {
		c.Auth.Tokens = append(c.Auth.Tokens, token)
	}
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}

	switch c.Store.Driver {
	case "", "memory":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required when store.driver=%s", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unsupported store.driver %q", c.Store.Driver)
	}

	if len(c.Council.ProviderPlan) == 0 {
		return fmt.Errorf("council.provider_plan must not be empty")
	}

	if c.Risk.MaxPositionPct <= 0 || c.Risk.MaxPositionPct > 1 {
		return fmt.Errorf("risk.max_position_pct must be in (0, 1]")
	}
	if c.Risk.MaxSectorPct < 0 {
		return fmt.Errorf("risk.max_sector_pct must be non-negative")
	}

	switch strings.ToLower(c.Trading.Broker) {
	case "", "none":
	case "alpaca":
		if c.Trading.AlpacaAPIKey == "" || c.Trading.AlpacaAPISecret == "" {
			return fmt.Errorf("trading.alpaca_api_key and alpaca_api_secret are required when trading.broker=alpaca")
		}
	default:
		return fmt.Errorf("unsupported trading.broker %q", c.Trading.Broker)
	}

	if c.Autopilot.Enabled && c.Autopilot.IntervalSeconds <= 0 {
		return fmt.Errorf("autopilot.interval_seconds must be positive when autopilot.enabled=true")
	}

	if c.Briefing.Enabled {
		if _, _, err := c.Briefing.TimeOfDay(); err != nil {
			return err
		}
		if c.Briefing.CheckIntervalSeconds <= 0 {
			return fmt.Errorf("briefing.check_interval_seconds must be positive when briefing.enabled=true")
		}
		if c.Briefing.Provider == "" {
			return fmt.Errorf("briefing.provider is required when briefing.enabled=true")
		}
	}

	if c.Signing.PrivateKeyPath != "" && c.Signing.KeyID == "" {
		return fmt.Errorf("signing.key_id is required when signing.private_key_path is set")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
