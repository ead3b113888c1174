// Package app wires the gateway's components from a loaded config.
package app

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/api"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/auth"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/autopilot"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/briefing"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/broker"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/config"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/council"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/crypto"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/executor"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/inbound"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/kv"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/kv/pgstore"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/kv/sqlstore"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/ledger"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/llm"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/logging"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/notify"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/paper"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/pending"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/policy"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/risk"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/scheduler"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/signals"
)

const (
	LoopOutbox    = "notify_outbox"
	LoopAutopilot = "autopilot"
	LoopBriefing  = "daily_briefing"

	ephemeralKeyID = "ephemeral"
)

// App holds every long-lived component. Build it with New and release it with Close.
type App struct {
	Config config.Config
	Log    *logging.Logger
	Store  kv.Store

	Providers *llm.Registry
	Council   *council.Council
	Hub       *notify.Hub
	Twilio    *notify.Twilio
	Outbox    *notify.Outbox
	Notifier  *notify.Dispatcher
	Pending   *pending.Service
	Paper     *paper.Ledger
	Broker    *broker.Client
	Receipts  *ledger.Store
	Signer    ledger.KeySigner
	Executor  *executor.Executor
	Autopilot *autopilot.Engine
	Briefing  *briefing.Service
	Inbound   *inbound.Handler
	Scheduler *scheduler.Scheduler
	Handler   *api.Handler
}

// Options overrides pieces of the wiring, mostly for tests.
type Options struct {
	// LogOutput receives console logs. Defaults to io.Discard.
	LogOutput io.Writer
	// Store replaces the store opened from Config.Store.
	Store kv.Store
	// Providers replaces the registry built from Config.Providers.
	Providers *llm.Registry
	Clock     scheduler.Clock
}

// New builds the component graph. Nothing is started; call Start for the background loops.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	out := opts.LogOutput
	if out == nil {
		out = io.Discard
	}
	logger, err := logging.New(cfg.Logs, out)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	a := &App{Config: cfg, Log: logger}

	a.Store = opts.Store
	if a.Store == nil {
		store, err := OpenStore(ctx, cfg.Store)
		if err != nil {
			_ = logger.Close()
			return nil, fmt.Errorf("store: %w", err)
		}
		a.Store = store
	}

	a.Signer, err = loadSigner(cfg.Signing)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("signing key: %w", err)
	}
	if a.Signer.ID == ephemeralKeyID {
		logger.Warn("no signing key configured; receipts are signed with an ephemeral key")
	}

	toolPolicy, err := policy.LoadToolPolicy(cfg.Policy.ToolPolicyPath)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("tool policy: %w", err)
	}

	a.Providers = opts.Providers
	if a.Providers == nil {
		a.Providers = llm.FromConfig(cfg.Providers)
	}
	a.Council = council.New(a.Providers, council.Options{
		Roles:         cfg.Council.Roles,
		EnableArbiter: cfg.Council.EnableArbiter,
		RolePrompts:   cfg.Council.RolePrompts,
		Rules:         policy.LoadRules(cfg.Policy.RulesPath),
		Log:           logger.WithField("component", "council"),
	})

	a.wireNotify()

	a.Pending = pending.NewService(pending.NewStore(a.Store), a.Council, pending.Options{
		ProviderPlan: cfg.Council.ProviderPlan,
		Notifier:     a.Notifier,
		Log:          logger.WithField("component", "pending"),
	})

	a.Paper = paper.NewLedger(a.Store, cfg.Trading.PaperStartCash)
	a.Broker = broker.NewFromConfig(cfg.Trading)
	a.Receipts = ledger.NewStore(a.Store)

	execOpts := executor.Options{
		Trading: cfg.Trading,
		Desktop: &executor.DesktopAgent{BaseURL: cfg.Executor.DesktopAgentURL},
		Shell: &executor.Shell{
			Enabled:        cfg.Executor.EnableDangerousTools,
			Dir:            cfg.RepoPath,
			DefaultTimeout: time.Duration(cfg.Executor.ShellTimeoutSeconds) * time.Second,
		},
		Files: &executor.Files{
			Enabled:       cfg.Executor.EnableDangerousTools,
			Root:          cfg.RepoPath,
			AllowAbsolute: cfg.Executor.AllowAbsolutePaths,
		},
		Fetcher: &executor.Fetcher{
			Enabled:   cfg.Executor.EnableDangerousTools,
			Allowlist: cfg.Executor.WebAllowlist,
			MaxChars:  cfg.Executor.FetchMaxChars,
		},
		Tools: &executor.ToolClient{
			Servers: cfg.Executor.ToolServers,
			Guard:   &policy.Guard{Loaded: toolPolicy, RepoRoot: cfg.RepoPath},
		},
		Paper:    a.Paper,
		Notifier: a.Notifier,
		Signer:   a.Signer,
		Receipts: a.Receipts,
		Log:      logger.WithField("component", "executor"),
	}
	if cfg.Trading.BrokerEnabled() {
		execOpts.Broker = a.Broker
	}
	a.Executor = executor.New(a.Pending, execOpts)

	limits := risk.LimitsFromConfig(cfg.Risk)
	a.Autopilot = autopilot.New(autopilot.Options{
		Config:  cfg.Autopilot,
		Trading: cfg.Trading,
		Sources: signals.Sources{
			Prices:    a.Broker,
			Discovery: signals.Watchlist(cfg.Autopilot.Watchlist),
		},
		Risk:         risk.New(limits),
		Reviewer:     a.Council,
		ProviderPlan: cfg.Council.ProviderPlan,
		Submitter:    a.Pending,
		Store:        a.Store,
		Notifier:     a.Notifier,
		Equity:       a.paperEquity,
		Log:          logger.WithField("component", "autopilot"),
	})

	if cfg.Briefing.Enabled {
		if a.Briefing, err = a.newBriefing(opts.Clock); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	a.Inbound = inbound.NewHandler(a.Pending, a.Executor, logger.WithField("component", "inbound"))

	a.Scheduler = scheduler.New(scheduler.Options{Clock: opts.Clock, Log: logger.WithField("component", "scheduler")})
	if err := a.registerLoops(); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Handler = &api.Handler{
		Auth:           authenticator(cfg.Auth),
		Pending:        a.Pending,
		Executor:       a.Executor,
		Inbound:        a.Inbound,
		Notifier:       a.Notifier,
		ReplySMS:       a.Twilio.SendTo,
		TelegramChatID: cfg.Notify.Telegram.ChatID,
		ApproverPhone:  cfg.Notify.Twilio.ApproverPhone,
		Muter:          a.Notifier,
		Events:         a.Hub,
		Receipts:       a.Receipts,
		PublicKey:      a.Signer.PublicKey(),
		Autopilot:      a.Autopilot,
		Store:          a.Store,
		Scheduler:      a.Scheduler,
		Log:            logger.WithField("component", "api"),
	}
	return a, nil
}

func (a *App) wireNotify() {
	cfg := a.Config.Notify
	telegram := &notify.Telegram{BotToken: cfg.Telegram.BotToken, ChatID: cfg.Telegram.ChatID, APIBase: cfg.Telegram.APIBase}
	a.Twilio = &notify.Twilio{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		From:       cfg.Twilio.From,
		To:         cfg.Twilio.ApproverPhone,
		APIBase:    cfg.Twilio.APIBase,
	}
	a.Hub = notify.NewHub(a.Log.WithField("component", "hub"))

	var outbox *notify.Outbox
	if cfg.Outbox.Enabled {
		outbox = notify.NewOutbox(a.Store, telegram, a.Twilio)
		a.Outbox = outbox
	}
	a.Notifier = notify.NewDispatcher(notify.DispatcherOptions{
		Store:  a.Store,
		Outbox: outbox,
		Log:    a.Log.WithField("component", "notify"),
	}, telegram, a.Twilio, a.Hub)
}

// newBriefing fetches with its own Fetcher: the configured sources are the allowlist, and the
// dangerous-tools switch only governs plan actions.
func (a *App) newBriefing(clock scheduler.Clock) (*briefing.Service, error) {
	cfg := a.Config.Briefing
	provider, ok := a.Providers.Get(cfg.Provider)
	if !ok {
		return nil, fmt.Errorf("briefing: unknown provider %q", cfg.Provider)
	}
	var now func() time.Time
	if clock != nil {
		now = clock.Now
	}
	return briefing.New(briefing.Options{
		Config:   cfg,
		Fetcher:  &executor.Fetcher{Enabled: true, MaxChars: a.Config.Executor.FetchMaxChars},
		Provider: provider,
		Store:    a.Store,
		Notifier: a.Notifier,
		Log:      a.Log.WithField("component", "briefing"),
		Now:      now,
	})
}

func (a *App) registerLoops() error {
	if a.Outbox != nil {
		interval := time.Duration(a.Config.Notify.Outbox.IntervalSeconds) * time.Second
		if interval <= 0 {
			interval = 5 * time.Second
		}
		batch := a.Config.Notify.Outbox.BatchSize
		if batch <= 0 {
			batch = 50
		}
		err := a.Scheduler.Every(LoopOutbox, interval, false, func(ctx context.Context) error {
			_, err := a.Outbox.ProcessDue(ctx, time.Now().UTC(), batch)
			return err
		})
		if err != nil {
			return err
		}
	}
	if a.Config.Autopilot.Enabled {
		interval := time.Duration(a.Config.Autopilot.IntervalSeconds) * time.Second
		err := a.Scheduler.Every(LoopAutopilot, interval, false, func(ctx context.Context) error {
			_, err := a.Autopilot.RunOnce(ctx)
			return err
		})
		if err != nil {
			return err
		}
	}
	if a.Briefing != nil {
		interval := time.Duration(a.Config.Briefing.CheckIntervalSeconds) * time.Second
		if err := a.Scheduler.Every(LoopBriefing, interval, true, a.Briefing.Tick); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) paperEquity(ctx context.Context) (float64, error) {
	p, err := a.Paper.Portfolio(ctx)
	if err != nil {
		return 0, err
	}
	return p.Equity().InexactFloat64(), nil
}

// Router returns the HTTP surface.
func (a *App) Router() http.Handler { return api.NewRouter(a.Handler) }

// Start launches the background loops. They stop when ctx is cancelled or on Close.
func (a *App) Start(ctx context.Context) {
	a.Scheduler.Start(ctx)
}

// Close stops the loops, disconnects websocket clients and releases the store and log file.
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	errs = append(errs, a.Log.Close())
	return errors.Join(errs...)
}

// OpenStore opens the configured KV backend. Empty or "memory" is process-local.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (kv.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return kv.NewMemoryStore(), nil
	case "sqlite":
		return sqlstore.OpenSQLite(ctx, cfg.DSN)
	case "postgres":
		return pgstore.OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func loadSigner(cfg config.SigningConfig) (ledger.KeySigner, error) {
	if cfg.PrivateKeyPath != "" {
		priv, _, err := crypto.LoadSigningKey(cfg.PrivateKeyPath)
		if err != nil {
			return ledger.KeySigner{}, err
		}
		return ledger.KeySigner{ID: cfg.KeyID, Priv: priv}, nil
	}
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return ledger.KeySigner{}, err
	}
	priv, _, err := crypto.KeyPairFromSeed(seed)
	if err != nil {
		return ledger.KeySigner{}, err
	}
	return ledger.KeySigner{ID: ephemeralKeyID, Priv: priv}, nil
}

func authenticator(cfg config.AuthConfig) auth.Authenticator {
	return auth.NewFromConfig(cfg, "")
}
