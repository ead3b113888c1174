package inbound

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/apperr"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/logging"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/pending"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/pkg/types"
)

type Approvals interface {
	Approve(ctx context.Context, code, by string) (types.PendingAction, error)
	Deny(ctx context.Context, code, reason string) (types.PendingAction, error)
	Submit(ctx context.Context, req pending.SubmitRequest) (types.PendingAction, error)
}

type Executor interface {
	Execute(ctx context.Context, id string) ([]string, error)
}

// Respond sends a reply back on the channel the message came from.
type Respond func(ctx context.Context, text string)

type Outcome string

const (
	OutcomeApproved  Outcome = "approved"
	OutcomeDenied    Outcome = "denied"
	OutcomeSubmitted Outcome = "submitted"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeInvalid   Outcome = "invalid"
)

type Result struct {
	Outcome   Outcome  `json:"outcome"`
	PendingID string   `json:"pending_id,omitempty"`
	Lines     []string `json:"lines,omitempty"`
}

type Message struct {
	// Channel names the source ("telegram", "sms") for the audit trail.
	Channel string
	From    string
	Text    string
	// AllowPlans lets the message submit a new plan when it is not an approval reply.
	AllowPlans bool
}

type Handler struct {
	approvals Approvals
	executor  Executor
	log       logrus.FieldLogger
}

func NewHandler(approvals Approvals, executor Executor, log logrus.FieldLogger) *Handler {
	return &Handler{approvals: approvals, executor: executor, log: logging.OrDiscard(log)}
}

// Handle applies an approval reply, executing the record on YES, or submits an SMS plan.
// Problems are reported through respond; the returned error is reserved for storage failures.
func (h *Handler) Handle(ctx context.Context, msg Message, respond Respond) (Result, error) {
	if respond == nil {
		respond = func(context.Context, string) {}
	}
	log := h.log.WithFields(logrus.Fields{"channel": msg.Channel, "from": msg.From})

	if reply, ok := ParseReply(msg.Text); ok {
		return h.reply(ctx, msg, reply, respond, log)
	}
	if !msg.AllowPlans {
		return Result{Outcome: OutcomeIgnored}, nil
	}

	sp, err := ParseSMSPlan(msg.Text)
	if err != nil {
		respond(ctx, SMSUsage)
		return Result{Outcome: OutcomeInvalid}, nil
	}
	p, err := h.approvals.Submit(ctx, pending.SubmitRequest{
		ActionRequest: sp.ActionRequest,
		Plan:          sp.Plan,
		RagMode:       sp.RagMode,
		Source:        msg.Channel,
	})
	if err != nil {
		log.WithError(err).Warn("inbound: submit failed")
		respond(ctx, "Request failed: "+err.Error())
		if apperr.Is(err, apperr.KindInternal) {
			return Result{Outcome: OutcomeInvalid}, err
		}
		return Result{Outcome: OutcomeInvalid}, nil
	}

	switch p.Status {
	case types.StatusWaitingHuman:
		respond(ctx, fmt.Sprintf("Council approved (pending human). Reply YES %s or NO %s. Pending: %s", p.ApprovalCode, p.ApprovalCode, p.ID))
	default:
		respond(ctx, fmt.Sprintf("Council rejected. Pending: %s. Query /v1/pending/%s for details.", p.ID, p.ID))
	}
	return Result{Outcome: OutcomeSubmitted, PendingID: p.ID}, nil
}

func (h *Handler) reply(ctx context.Context, msg Message, reply Reply, respond Respond, log logrus.FieldLogger) (Result, error) {
	if !reply.Approve {
		p, err := h.approvals.Deny(ctx, reply.Code, fmt.Sprintf("denied via %s", msg.Channel))
		if err != nil {
			return h.lookupFailed(ctx, reply, err, respond, log)
		}
		return Result{Outcome: OutcomeDenied, PendingID: p.ID}, nil
	}

	by := msg.Channel
	if msg.From != "" {
		by += ":" + msg.From
	}
	p, err := h.approvals.Approve(ctx, reply.Code, by)
	if err != nil {
		return h.lookupFailed(ctx, reply, err, respond, log)
	}
	respond(ctx, "Approved. Executing: "+p.ID)
	lines, err := h.executor.Execute(ctx, p.ID)
	if err != nil {
		log.WithError(err).WithField("pending_id", p.ID).Warn("inbound: execute failed")
		respond(ctx, fmt.Sprintf("Execution of %s failed: %v", p.ID, err))
		return Result{Outcome: OutcomeApproved, PendingID: p.ID}, nil
	}
	return Result{Outcome: OutcomeApproved, PendingID: p.ID, Lines: lines}, nil
}

func (h *Handler) lookupFailed(ctx context.Context, reply Reply, err error, respond Respond, log logrus.FieldLogger) (Result, error) {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		respond(ctx, fmt.Sprintf("No pending request with code %s.", reply.Code))
	case apperr.KindState:
		respond(ctx, fmt.Sprintf("Code %s is no longer awaiting approval.", reply.Code))
	default:
		log.WithError(err).Warn("inbound: approval lookup failed")
		return Result{Outcome: OutcomeIgnored}, err
	}
	return Result{Outcome: OutcomeIgnored}, nil
}

// Normalize trims a phone number for comparison against the configured approver.
func Normalize(phone string) string {
	return strings.ReplaceAll(strings.TrimSpace(phone), " ", "")
}
