// Package pending owns the lifecycle of reviewed proposals: creation from a council verdict,
// human approval by short code, and the hand-off to execution.
package pending

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/apperr"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/council"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/logging"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/pkg/types"
)

type Reviewer interface {
	Review(ctx context.Context, req council.Request) (types.CouncilResult, error)
}

// Notifier delivers human-readable updates. Implementations swallow their own failures.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

type Options struct {
	ProviderPlan []types.Assignment
	Notifier     Notifier
	IDs          *IDSource
	Now          func() time.Time
	Log          logrus.FieldLogger
}

type Service struct {
	store        *Store
	reviewer     Reviewer
	providerPlan []types.Assignment
	notifier     Notifier
	ids          *IDSource
	now          func() time.Time
	log          logrus.FieldLogger
}

func NewService(store *Store, reviewer Reviewer, opts Options) *Service {
	s := &Service{
		store:        store,
		reviewer:     reviewer,
		providerPlan: opts.ProviderPlan,
		notifier:     opts.Notifier,
		ids:          opts.IDs,
		now:          opts.Now,
		log:          logging.OrDiscard(opts.Log),
	}
	if s.ids == nil {
		s.ids = NewIDSource(nil)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type SubmitRequest struct {
	ActionRequest string
	Plan          types.Plan
	RagMode       string
	DryRun        bool
	Source        string
	Context       []types.Snippet
}

// Submit reviews a proposal and persists it in its initial status.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (types.PendingAction, error) {
	if strings.TrimSpace(req.ActionRequest) == "" {
		return types.PendingAction{}, apperr.Validation("pending.submit", "action_request is required")
	}
	if err := req.Plan.Validate(); err != nil {
		return types.PendingAction{}, apperr.Wrap(apperr.KindValidation, "pending.submit", err)
	}

	verdict, err := s.reviewer.Review(ctx, council.Request{
		ActionRequest: req.ActionRequest,
		Context:       req.Context,
		Plan:          req.Plan,
		ProviderPlan:  s.providerPlan,
	})
	if err != nil {
		return types.PendingAction{}, err
	}

	now := s.now().UTC()
	id, err := s.ids.NewID(now)
	if err != nil {
		return types.PendingAction{}, apperr.Wrap(apperr.KindInternal, "pending.submit", err)
	}
	code, err := s.ids.NewCode()
	if err != nil {
		return types.PendingAction{}, apperr.Wrap(apperr.KindInternal, "pending.submit", err)
	}

	p := types.PendingAction{
		ID:               id,
		ApprovalCode:     code,
		CreatedAt:        now,
		UpdatedAt:        now,
		Status:           InitialStatus(verdict.Final.Verdict, req.DryRun),
		ActionRequest:    req.ActionRequest,
		RagMode:          req.RagMode,
		Source:           req.Source,
		ProposedPlan:     req.Plan,
		Verdict:          verdict,
		DryRun:           req.DryRun,
		ExecutionPreview: req.Plan.Preview(),
	}
	if err := s.store.Put(ctx, p); err != nil {
		return types.PendingAction{}, apperr.Wrap(apperr.KindInternal, "pending.submit", err)
	}

	s.log.WithFields(logrus.Fields{"pending_id": p.ID, "status": p.Status, "source": p.Source}).Info("pending: created")
	s.notify(ctx, creationMessage(p))
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (types.PendingAction, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]types.PendingAction, error) {
	return s.store.List(ctx)
}

// Approve moves the WAITING_HUMAN record carrying code to APPROVED.
func (s *Service) Approve(ctx context.Context, code, by string) (types.PendingAction, error) {
	p, err := s.store.FindWaitingByCode(ctx, code)
	if err != nil {
		return types.PendingAction{}, err
	}
	return s.Transition(ctx, p.ID, EventApprove, func(p *types.PendingAction) {
		p.ApprovedBy = by
	})
}

// Deny moves the WAITING_HUMAN record carrying code to DENIED.
func (s *Service) Deny(ctx context.Context, code, reason string) (types.PendingAction, error) {
	p, err := s.store.FindWaitingByCode(ctx, code)
	if err != nil {
		return types.PendingAction{}, err
	}
	if reason == "" {
		reason = "denied by human"
	}
	out, err := s.Transition(ctx, p.ID, EventDeny, func(p *types.PendingAction) {
		p.DenyReason = reason
	})
	if err != nil {
		return types.PendingAction{}, err
	}
	s.notify(ctx, fmt.Sprintf("Denied %s", out.ID))
	return out, nil
}

// Transition applies ev to the record, runs mutate on the updated copy and persists it.
// A rejected transition leaves the stored record untouched.
func (s *Service) Transition(ctx context.Context, id string, ev Event, mutate func(*types.PendingAction)) (types.PendingAction, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return types.PendingAction{}, err
	}
	to, err := Next(p.Status, ev)
	if err != nil {
		return types.PendingAction{}, err
	}
	from := p.Status
	p.Status = to
	p.UpdatedAt = s.now().UTC()
	if mutate != nil {
		mutate(&p)
	}
	if err := s.store.Put(ctx, p); err != nil {
		return types.PendingAction{}, apperr.Wrap(apperr.KindInternal, "pending.transition", err)
	}
	s.log.WithFields(logrus.Fields{"pending_id": id, "from": from, "to": to}).Info("pending: transition")
	return p, nil
}

func (s *Service) notify(ctx context.Context, text string) {
	if s.notifier == nil || text == "" {
		return
	}
	s.notifier.Notify(ctx, text)
}

func creationMessage(p types.PendingAction) string {
	switch p.Status {
	case types.StatusWaitingHuman:
		msg := ""
		if p.Verdict.Final.MessageToHuman != nil {
			msg = *p.Verdict.Final.MessageToHuman
		}
		if msg == "" {
			raw, _ := json.Marshal(p.Verdict.Final)
			msg = string(raw)
		}
		return fmt.Sprintf("Council approved (pending human).\nApproval code: %s\nPending: %s\n\n%s\n\nReply: YES %s or NO %s",
			p.ApprovalCode, p.ID, msg, p.ApprovalCode, p.ApprovalCode)
	case types.StatusDryRun:
		return fmt.Sprintf("Dry run preview (no execution).\nPending: %s\n\nPlanned actions:\n%s\n\nIf you want to execute, resend the same request with dry_run=false.",
			p.ID, strings.Join(p.ExecutionPreview, "\n"))
	case types.StatusRejectedByCouncil:
		var b strings.Builder
		fmt.Fprintf(&b, "Council rejected (risk %s).\nPending: %s", p.Verdict.Final.RiskLevel, p.ID)
		for _, r := range p.Verdict.Final.Reasons {
			b.WriteString("\n- " + r)
		}
		return b.String()
	default:
		return ""
	}
}
