package autopilot

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/config"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/council"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/kv"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/logging"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/pending"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/quant"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/risk"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/signals"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/pkg/types"
)

const (
	LastRunKey    = "autopilot:last_run"
	HistoryPrefix = "autopilot:history:"

	fastSMA = 20
	slowSMA = 50
	// Bars needed before the crossover backtest produces metrics.
	minBacktestBars = slowSMA + 5
)

// Submitter files a proposal with the pending pipeline.
type Submitter interface {
	Submit(ctx context.Context, req pending.SubmitRequest) (types.PendingAction, error)
}

type BackgroundNotifier interface {
	NotifyBackground(ctx context.Context, text string)
}

type Options struct {
	Config  config.AutopilotConfig
	Trading config.TradingConfig
	Sources signals.Sources
	Risk    *risk.Engine
	Weights *Weights
	// Reviewer runs the advisory council review when Config.Governance is set.
	Reviewer     pending.Reviewer
	ProviderPlan []types.Assignment
	Submitter    Submitter
	Store        kv.Store
	Notifier     BackgroundNotifier
	// Equity returns the account value used for sizing. Defaults to Trading.PaperStartCash.
	Equity func(ctx context.Context) (float64, error)
	Log    logrus.FieldLogger
	Now    func() time.Time
}

type Engine struct {
	cfg          config.AutopilotConfig
	trading      config.TradingConfig
	sources      signals.Sources
	risk         *risk.Engine
	weights      Weights
	reviewer     pending.Reviewer
	providerPlan []types.Assignment
	submitter    Submitter
	store        kv.Store
	notifier     BackgroundNotifier
	equity       func(ctx context.Context) (float64, error)
	log          logrus.FieldLogger
	now          func() time.Time
}

func New(opts Options) *Engine {
	e := &Engine{
		cfg:          opts.Config,
		trading:      opts.Trading,
		sources:      opts.Sources,
		risk:         opts.Risk,
		weights:      DefaultWeights(),
		reviewer:     opts.Reviewer,
		providerPlan: opts.ProviderPlan,
		submitter:    opts.Submitter,
		store:        opts.Store,
		notifier:     opts.Notifier,
		equity:       opts.Equity,
		log:          logging.OrDiscard(opts.Log),
		now:          opts.Now,
	}
	if opts.Weights != nil {
		e.weights = *opts.Weights
	}
	if e.risk == nil {
		e.risk = risk.New(risk.Limits{MaxPositionPct: 0.10, MaxSectorPct: 0.30, DefaultStopATR: 2, DefaultTakeProfitRR: 2})
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.equity == nil {
		start := opts.Trading.PaperStartCash
		e.equity = func(context.Context) (float64, error) { return start, nil }
	}
	return e
}

// Item is the outcome for one candidate symbol.
type Item struct {
	Symbol         string             `json:"symbol"`
	LastPrice      float64            `json:"last_price,omitempty"`
	Score          float64            `json:"score"`
	Parts          map[string]float64 `json:"parts,omitempty"`
	Indicators     quant.Snapshot     `json:"indicators"`
	Backtest       *quant.Metrics     `json:"backtest,omitempty"`
	Missing        map[string]string  `json:"missing,omitempty"`
	Risk           *risk.Decision     `json:"risk,omitempty"`
	Decision       Decision           `json:"decision"`
	CouncilVerdict *types.Review      `json:"council_verdict,omitempty"`
	CouncilError   string             `json:"council_error,omitempty"`
	PendingID      string             `json:"pending_id,omitempty"`
	Error          string             `json:"error,omitempty"`
}

type Proposal struct {
	Symbol    string              `json:"symbol"`
	Notional  float64             `json:"notional"`
	Score     float64             `json:"score"`
	PendingID string              `json:"pending_id,omitempty"`
	Status    types.PendingStatus `json:"status,omitempty"`
}

type Report struct {
	RunID       string            `json:"run_id"`
	StartedAt   time.Time         `json:"started_at"`
	Candidates  []string          `json:"candidates"`
	Results     []Item            `json:"results"`
	Proposals   []Proposal        `json:"proposals"`
	Settings    map[string]any    `json:"settings"`
	Sources     map[string]string `json:"sources,omitempty"`
	DurationSec float64           `json:"duration_sec"`
}

// HistoryEntry is the compact record kept per run.
type HistoryEntry struct {
	RunID      string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	Candidates int        `json:"n"`
	Proposals  []Proposal `json:"proposals"`
}

// RunOnce evaluates every candidate, files proposals for BUY decisions up to
// MaxTradesPerRun, then persists and announces the report.
func (e *Engine) RunOnce(ctx context.Context) (Report, error) {
	started := e.now().UTC()
	runID, err := ulid.New(ulid.Timestamp(started), rand.Reader)
	if err != nil {
		return Report{}, err
	}
	report := Report{
		RunID:      runID.String(),
		StartedAt:  started,
		Candidates: []string{},
		Results:    []Item{},
		Proposals:  []Proposal{},
		Settings: map[string]any{
			"min_score":          e.cfg.MinScore,
			"max_trades_per_run": e.cfg.MaxTradesPerRun,
			"governance":         e.cfg.Governance,
			"respect_council":    e.cfg.RespectCouncil,
			"submit_proposals":   e.cfg.SubmitProposals,
			"broker":             e.trading.Broker,
			"account_mode":       e.trading.AccountMode(),
		},
	}
	log := e.log.WithField("run_id", report.RunID)

	if cands := e.sources.FetchCandidates(ctx); cands.Present() {
		report.Candidates = cands.Value
	} else {
		report.Sources = map[string]string{"discovery": cands.Err.Error()}
		log.WithError(cands.Err).Warn("autopilot: no candidates")
	}

	equity, err := e.equity(ctx)
	if err != nil {
		log.WithError(err).Warn("autopilot: equity unavailable; using paper start cash")
		equity = e.trading.PaperStartCash
	}

	for _, sym := range report.Candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		item := e.evaluate(ctx, sym, equity)
		if item.Decision == Buy && e.cfg.SubmitProposals && e.submitter != nil {
			prop := Proposal{Symbol: item.Symbol, Notional: item.Risk.Notional, Score: item.Score}
			p, err := e.submitter.Submit(ctx, pending.SubmitRequest{
				ActionRequest: fmt.Sprintf("Autopilot BUY %s (score %.2f)", item.Symbol, item.Score),
				Plan:          e.proposalPlan(item),
				DryRun:        e.cfg.ProposalDryRun,
				Source:        "autopilot",
			})
			if err != nil {
				item.Error = err.Error()
				log.WithError(err).WithField("symbol", item.Symbol).Warn("autopilot: proposal failed")
			} else {
				item.PendingID = p.ID
				prop.PendingID = p.ID
				prop.Status = p.Status
			}
			report.Proposals = append(report.Proposals, prop)
		} else if item.Decision == Buy {
			report.Proposals = append(report.Proposals, Proposal{Symbol: item.Symbol, Notional: item.Risk.Notional, Score: item.Score})
		}
		report.Results = append(report.Results, item)

		if e.cfg.MaxTradesPerRun > 0 && len(report.Proposals) >= e.cfg.MaxTradesPerRun {
			break
		}
	}

	report.DurationSec = e.now().UTC().Sub(started).Seconds()
	e.persist(ctx, report)
	if e.notifier != nil {
		e.notifier.NotifyBackground(ctx, Summary(report))
	}
	log.WithFields(logrus.Fields{"candidates": len(report.Candidates), "proposals": len(report.Proposals)}).Info("autopilot: run complete")
	return report, nil
}

func (e *Engine) evaluate(ctx context.Context, sym string, equity float64) Item {
	item := Item{Symbol: sym, Decision: Skip, Missing: map[string]string{}}

	bars := e.sources.FetchBars(ctx, sym, e.cfg.BacktestLookbackDays)
	if !bars.Present() || len(bars.Value) == 0 {
		if bars.Err != nil {
			item.Error = bars.Err.Error()
		} else {
			item.Error = "no price history"
		}
		return item
	}
	item.LastPrice = bars.Value[len(bars.Value)-1].Close
	item.Indicators = quant.ComputeSnapshot(bars.Value)

	in := Inputs{Snapshot: item.Indicators}
	if len(bars.Value) >= minBacktestBars {
		bt := quant.SMACrossover(bars.Value, sym, fastSMA, slowSMA, true)
		item.Backtest = &bt.Metrics
		in.Backtest = item.Backtest
	} else {
		item.Missing["backtest"] = "insufficient history"
	}
	if r := e.sources.FetchMomentum(ctx, sym); r.Present() {
		in.Momentum = &r.Value
	} else {
		item.Missing["trends"] = string(r.Err.Kind)
	}
	if r := e.sources.FetchBuzz(ctx, sym); r.Present() {
		in.Buzz = &r.Value
	} else {
		item.Missing["buzz"] = string(r.Err.Kind)
	}
	if r := e.sources.FetchInsider(ctx, sym); r.Present() {
		in.Insider = &r.Value
	} else {
		item.Missing["insider"] = string(r.Err.Kind)
	}
	sectorPct := 0.0
	if r := e.sources.FetchFundamentals(ctx, sym); r.Present() {
		in.DebtEquity = r.Value.DebtEquity
		sectorPct = r.Value.SectorExposurePct
	} else {
		item.Missing["fundamentals"] = string(r.Err.Kind)
	}
	if len(item.Missing) == 0 {
		item.Missing = nil
	}

	b := Score(in, e.weights)
	item.Score = b.Score
	item.Parts = b.Parts

	rd := e.risk.AssessLongTrade(sym, item.LastPrice, equity, sectorPct, item.Indicators.ATR14, nil)
	item.Risk = &rd
	item.Decision = Decide(rd.OK, item.Score, e.cfg.MinScore)

	if item.Decision == Buy && e.cfg.Governance && e.reviewer != nil {
		e.govern(ctx, &item)
	}
	return item
}

// govern asks the council about a BUY. The verdict binds only with RespectCouncil.
func (e *Engine) govern(ctx context.Context, item *Item) {
	res, err := e.reviewer.Review(ctx, council.Request{
		ActionRequest: fmt.Sprintf("Autopilot trade decision for %s (advisory).", item.Symbol),
		Plan:          e.proposalPlan(*item),
		ProviderPlan:  e.providerPlan,
	})
	if err != nil {
		item.CouncilError = err.Error()
		e.log.WithError(err).WithField("symbol", item.Symbol).Warn("autopilot: council review failed")
		return
	}
	item.CouncilVerdict = &res.Final
	if e.cfg.RespectCouncil && res.Final.Verdict != types.VerdictYes {
		item.Decision = Skip
	}
}

// proposalPlan buys through the broker when one is enabled, otherwise on the paper ledger.
func (e *Engine) proposalPlan(item Item) types.Plan {
	rd := item.Risk
	meta := map[string]any{"score": item.Score, "source": "autopilot"}
	if e.trading.BrokerEnabled() {
		notional := rd.Notional
		order := types.BrokerOrder{
			BrokerMode:  e.trading.AccountMode(),
			Symbol:      item.Symbol,
			Side:        "buy",
			Notional:    &notional,
			OrderType:   "market",
			TimeInForce: "day",
		}
		if rd.HasBracket() {
			order.OrderClass = "bracket"
			order.TakeProfitLimitPrice = rd.TakeProfitPrice
			order.StopLossStopPrice = rd.StopLossPrice
		}
		return types.Plan{Type: types.PlanTrading, Actions: []types.Action{order}, Meta: meta}
	}
	qty, _ := decimal.NewFromFloat(rd.Notional).
		Div(decimal.NewFromFloat(item.LastPrice)).
		Truncate(4).
		Float64()
	return types.Plan{
		Type:    types.PlanTrading,
		Actions: []types.Action{types.PaperTrade{Ticker: item.Symbol, Side: "BUY", Qty: qty, Price: item.LastPrice}},
		Meta:    meta,
	}
}

func (e *Engine) persist(ctx context.Context, report Report) {
	if e.store == nil {
		return
	}
	log := e.log.WithField("run_id", report.RunID)
	if err := kv.SetJSON(ctx, e.store, LastRunKey, report); err != nil {
		log.WithError(err).Warn("autopilot: store last run failed")
	}
	entry := HistoryEntry{RunID: report.RunID, StartedAt: report.StartedAt, Candidates: len(report.Results), Proposals: report.Proposals}
	if err := kv.SetJSON(ctx, e.store, HistoryPrefix+report.RunID, entry); err != nil {
		log.WithError(err).Warn("autopilot: store history failed")
		return
	}
	if e.cfg.HistoryLimit <= 0 {
		return
	}
	entries, err := e.store.ScanPrefix(ctx, HistoryPrefix)
	if err != nil {
		log.WithError(err).Warn("autopilot: scan history failed")
		return
	}
	// Run ids are ULIDs, so key order is run order.
	for i := 0; i < len(entries)-e.cfg.HistoryLimit; i++ {
		if err := e.store.Delete(ctx, entries[i].Key); err != nil {
			log.WithError(err).Warn("autopilot: trim history failed")
			return
		}
	}
}

// LastRun loads the most recent persisted report.
func LastRun(ctx context.Context, store kv.Store) (Report, error) {
	var r Report
	err := kv.GetJSON(ctx, store, LastRunKey, &r)
	return r, err
}

// History returns the retained run summaries, newest first.
func History(ctx context.Context, store kv.Store) ([]HistoryEntry, error) {
	entries, err := store.ScanPrefix(ctx, HistoryPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		var h HistoryEntry
		if err := json.Unmarshal(entries[i].Value, &h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// Summary renders the run notification: counts, the top five scores and any proposals.
func Summary(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Autopilot] candidates=%d executed=%d duration=%.1fs", len(r.Candidates), len(r.Proposals), r.DurationSec)

	top := make([]Item, 0, len(r.Results))
	for _, it := range r.Results {
		if it.Error == "" {
			top = append(top, it)
		}
	}
	sort.SliceStable(top, func(i, j int) bool { return top[i].Score > top[j].Score })
	if len(top) > 5 {
		top = top[:5]
	}
	for _, it := range top {
		fmt.Fprintf(&b, "\n- %s score=%.2f last=%.2f decision=%s", it.Symbol, it.Score, it.LastPrice, it.Decision)
	}
	if len(r.Proposals) > 0 {
		b.WriteString("\nProposed:")
		for _, p := range r.Proposals {
			fmt.Fprintf(&b, "\n  %s notional=%.2f", p.Symbol, p.Notional)
			if p.PendingID != "" {
				fmt.Fprintf(&b, " pending=%s status=%s", p.PendingID, p.Status)
			}
		}
	}
	return b.String()
}
