// Package executor runs the actions of an approved pending record. Each action is dispatched
// by kind; a failing action is recorded and the pass continues with the next one.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/apperr"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/config"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/crypto"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/ledger"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/logging"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/paper"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/pending"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/pkg/types"
)

type Options struct {
	Trading  config.TradingConfig
	Desktop  Desktop
	Shell    *Shell
	Files    *Files
	Fetcher  *Fetcher
	Tools    *ToolClient
	Paper    *paper.Ledger
	Broker   Broker
	Notifier pending.Notifier
	// Signer and Receipts together enable signed execution receipts.
	Signer   ledger.Signer
	Receipts *ledger.Store
	Log      logrus.FieldLogger
	Now      func() time.Time
}

type Executor struct {
	pending  *pending.Service
	trading  config.TradingConfig
	desktop  Desktop
	shell    *Shell
	files    *Files
	fetcher  *Fetcher
	tools    *ToolClient
	paper    *paper.Ledger
	broker   Broker
	notifier pending.Notifier
	signer   ledger.Signer
	receipts *ledger.Store
	log      logrus.FieldLogger
	now      func() time.Time

	// running holds the ids of records whose actions are being dispatched.
	running sync.Map
}

func New(svc *pending.Service, opts Options) *Executor {
	e := &Executor{
		pending:  svc,
		trading:  opts.Trading,
		desktop:  opts.Desktop,
		shell:    opts.Shell,
		files:    opts.Files,
		fetcher:  opts.Fetcher,
		tools:    opts.Tools,
		paper:    opts.Paper,
		broker:   opts.Broker,
		notifier: opts.Notifier,
		signer:   opts.Signer,
		receipts: opts.Receipts,
		log:      logging.OrDiscard(opts.Log),
		now:      opts.Now,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.desktop == nil {
		e.desktop = &DesktopAgent{}
	}
	if e.shell == nil {
		e.shell = &Shell{}
	}
	if e.files == nil {
		e.files = &Files{}
	}
	if e.fetcher == nil {
		e.fetcher = &Fetcher{}
	}
	if e.tools == nil {
		e.tools = &ToolClient{}
	}
	return e
}

// Execute runs an APPROVED record and marks it EXECUTED, whatever the individual actions did.
// It returns one result line per action. Concurrent calls for one id run the actions once;
// the others fail with a State error.
func (e *Executor) Execute(ctx context.Context, id string) ([]string, error) {
	p, err := e.pending.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, busy := e.running.LoadOrStore(p.ID, struct{}{}); busy {
		return nil, apperr.State("executor.execute", "already executing %s", p.ID)
	}
	defer e.running.Delete(p.ID)
	// Re-read under the claim: a previous holder may have finished in between.
	if p, err = e.pending.Get(ctx, p.ID); err != nil {
		return nil, err
	}
	switch p.Status {
	case types.StatusApproved:
	case types.StatusDryRun:
		return nil, apperr.State("executor.execute", "dry run only; resend with dry_run=false to execute")
	default:
		return nil, apperr.State("executor.execute", "not approved (status=%s)", p.Status)
	}

	log := e.log.WithFields(logrus.Fields{"pending_id": p.ID, "plan_type": p.ProposedPlan.Type})

	if !p.ProposedPlan.Type.Supported() {
		reason := fmt.Sprintf("unsupported plan type %q", p.ProposedPlan.Type)
		receiptID := e.receipt(ctx, p, types.ReceiptDenied, nil)
		if _, err := e.pending.Transition(ctx, p.ID, pending.EventRejectPlan, func(p *types.PendingAction) {
			p.DenyReason = reason
			if receiptID != "" {
				p.ExecutionResults = &types.ExecutionResults{ExecutedAt: e.now().UTC(), Outputs: []types.ActionOutput{}, ReceiptID: receiptID}
			}
		}); err != nil {
			return nil, err
		}
		log.Warn("executor: " + reason)
		return nil, apperr.Validation("executor.execute", "%s", reason)
	}

	results := &types.ExecutionResults{Outputs: []types.ActionOutput{}, Errors: map[string][]string{}}
	lines := []string{}
	if p.ProposedPlan.Type != types.PlanNotifyOnly {
		for i, action := range p.ProposedPlan.Actions {
			out := e.run(ctx, i, action)
			results.Outputs = append(results.Outputs, out)
			if out.OK {
				lines = append(lines, out.Summary)
				continue
			}
			results.Errors[string(out.Kind)] = append(results.Errors[string(out.Kind)], out.Summary)
			lines = append(lines, fmt.Sprintf("ERROR %s: %s", out.Kind, out.Summary))
			log.WithFields(logrus.Fields{"index": i, "kind": out.Kind}).Warn("executor: action failed: " + out.Summary)
		}
	}
	if len(results.Errors) == 0 {
		results.Errors = nil
	}
	results.ExecutedAt = e.now().UTC()
	results.ReceiptID = e.receipt(ctx, p, types.ReceiptExecuted, results)

	if _, err := e.pending.Transition(ctx, p.ID, pending.EventExecute, func(p *types.PendingAction) {
		p.ExecutionResults = results
	}); err != nil {
		return nil, err
	}

	log.WithField("failed", len(results.Outputs)-succeeded(results)).Info("executor: plan executed")
	if e.notifier != nil {
		e.notifier.Notify(ctx, fmt.Sprintf("Executed plan for %s:\n%s", p.ID, strings.Join(lines, "\n")))
	}
	return lines, nil
}

func (e *Executor) run(ctx context.Context, index int, action types.Action) (out types.ActionOutput) {
	out = types.ActionOutput{Index: index, Kind: action.Kind()}
	defer func() {
		if r := recover(); r != nil {
			out.OK = false
			out.Summary = fmt.Sprintf("panic: %v", r)
			out.Data = nil
		}
	}()

	summary, data, err := e.dispatch(ctx, action)
	if err != nil {
		out.Summary = err.Error()
		return out
	}
	out.OK = true
	out.Summary = summary
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			out.Data = raw
		}
	}
	return out
}

func (e *Executor) dispatch(ctx context.Context, action types.Action) (string, any, error) {
	switch a := action.(type) {
	case types.Screenshot, types.MoveMouse, types.Click, types.TypeText, types.Hotkey:
		msg, err := e.desktop.Do(ctx, a)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s: %s", strings.TrimPrefix(string(a.Kind()), "desktop."), msg), nil, nil
	case types.ShellExec:
		res, err := e.shell.Run(ctx, a.Cmd, time.Duration(a.TimeoutSeconds)*time.Second)
		if err != nil {
			return "", nil, err
		}
		if res.TimedOut {
			return "", res, fmt.Errorf("shell_exec timed out")
		}
		return fmt.Sprintf("shell_exec rc=%d", res.ReturnCode), res, nil
	case types.FSRead:
		res, err := e.files.Read(a.Path)
		if err != nil {
			return "", nil, err
		}
		return "fs_read OK", res, nil
	case types.FSWrite:
		res, err := e.files.Write(a.Path, a.Content)
		if err != nil {
			return "", nil, err
		}
		return "fs_write OK", res, nil
	case types.NetFetch:
		res, err := e.fetcher.Fetch(ctx, a.URL)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("web_fetch OK status=%d truncated=%t", res.Status, res.Truncated), res, nil
	case types.ToolCall:
		res, err := e.tools.Call(ctx, a.Server, a.Tool, a.Args)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("mcp_call %s:%s OK", a.Server, a.Tool), res, nil
	case types.PaperTrade:
		return e.paperTrade(ctx, a)
	case types.BrokerOrder:
		return e.brokerOrder(ctx, a)
	case types.Notify:
		if e.notifier != nil {
			e.notifier.Notify(ctx, a.Message)
		}
		return "notify sent", nil, nil
	default:
		return "", nil, fmt.Errorf("no handler for action %s", action.Kind())
	}
}

func succeeded(r *types.ExecutionResults) int {
	n := 0
	for _, o := range r.Outputs {
		if o.OK {
			n++
		}
	}
	return n
}

// receipt signs and stores an audit receipt. Failures are logged; they never change the outcome.
func (e *Executor) receipt(ctx context.Context, p types.PendingAction, status types.ReceiptOutcomeStatus, results *types.ExecutionResults) string {
	if e.signer == nil || e.receipts == nil {
		return ""
	}
	log := e.log.WithField("pending_id", p.ID)

	planDigest, err := crypto.CanonicalDigest(p.ProposedPlan)
	if err != nil {
		log.WithError(err).Warn("executor: plan digest failed")
		return ""
	}
	roles := make([]string, 0, len(p.Verdict.Council))
	for _, rv := range p.Verdict.Council {
		roles = append(roles, rv.Role)
	}
	outcome := types.ReceiptOutcome{Status: status}
	if results != nil {
		outcome.Succeeded = succeeded(results)
		outcome.Failed = len(results.Outputs) - outcome.Succeeded
		outcome.Errors = results.Errors
	}

	r, err := ledger.MakeReceipt(ledger.MakeReceiptInput{
		CreatedAt:     e.now().UTC().Format(time.RFC3339),
		PendingID:     p.ID,
		ActionRequest: p.ActionRequest,
		Source:        p.Source,
		Plan:          types.ReceiptPlan{Type: p.ProposedPlan.Type, PlanDigest: planDigest, Actions: len(p.ProposedPlan.Actions)},
		Council:       types.ReceiptCouncil{Verdict: p.Verdict.Final.Verdict, RiskLevel: p.Verdict.Final.RiskLevel, Roles: roles},
		Approval:      &types.ReceiptApproval{ApprovalCode: p.ApprovalCode, ApprovedBy: p.ApprovedBy},
		Outcome:       outcome,
	}, e.signer)
	if err != nil {
		log.WithError(err).Warn("executor: receipt failed")
		return ""
	}
	if err := e.receipts.Put(ctx, r); err != nil {
		log.WithError(err).Warn("executor: receipt store failed")
		return ""
	}
	return r.ReceiptID
}
