package pending

import (
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/apperr"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/pkg/types"
)

type Event string

const (
	EventApprove Event = "approve"
	EventDeny    Event = "deny"
	EventExecute Event = "execute"
	// EventRejectPlan denies an approved record whose plan type has no executor.
	EventRejectPlan Event = "reject_plan"
)

var transitions = map[types.PendingStatus]map[Event]types.PendingStatus{
	types.StatusWaitingHuman: {
		EventApprove: types.StatusApproved,
		EventDeny:    types.StatusDenied,
	},
	types.StatusApproved: {
		EventExecute:    types.StatusExecuted,
		EventRejectPlan: types.StatusDenied,
	},
}

// InitialStatus is computed once, at creation, from the council's final verdict.
func InitialStatus(verdict types.Verdict, dryRun bool) types.PendingStatus {
	switch {
	case verdict != types.VerdictYes:
		return types.StatusRejectedByCouncil
	case dryRun:
		return types.StatusDryRun
	default:
		return types.StatusWaitingHuman
	}
}

// Next returns the status reached from `from` on ev, or a state error.
func Next(from types.PendingStatus, ev Event) (types.PendingStatus, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return from, apperr.State("pending."+string(ev), "cannot %s from status %s", ev, from)
}
