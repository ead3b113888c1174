package types

import (
	"encoding/json"
	"time"
)

type PendingStatus string

const (
	StatusDryRun            PendingStatus = "DRY_RUN"
	StatusWaitingHuman      PendingStatus = "WAITING_HUMAN"
	StatusRejectedByCouncil PendingStatus = "REJECTED_BY_COUNCIL"
	StatusApproved          PendingStatus = "APPROVED"
	StatusDenied            PendingStatus = "DENIED"
	StatusExecuted          PendingStatus = "EXECUTED"
)

// Terminal reports whether no transition leaves this status.
func (s PendingStatus) Terminal() bool {
	switch s {
	case StatusDryRun, StatusRejectedByCouncil, StatusDenied, StatusExecuted:
		return true
	default:
		return false
	}
}

// PendingAction is a reviewed proposal awaiting (or past) human approval.
type PendingAction struct {
	ID               string            `json:"pending_id"`
	ApprovalCode     string            `json:"approval_code"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	Status           PendingStatus     `json:"status"`
	ActionRequest    string            `json:"action_request"`
	RagMode          string            `json:"rag_mode,omitempty"`
	Source           string            `json:"source,omitempty"`
	ProposedPlan     Plan              `json:"proposed_plan"`
	Verdict          CouncilResult     `json:"verdict"`
	DryRun           bool              `json:"dry_run"`
	ExecutionPreview []string          `json:"execution_preview"`
	ExecutionResults *ExecutionResults `json:"execution_results,omitempty"`
	ApprovedBy       string            `json:"approved_by,omitempty"`
	DenyReason       string            `json:"deny_reason,omitempty"`
}

// ExecutionResults records one executor pass. Errors are keyed by action kind.
type ExecutionResults struct {
	ExecutedAt time.Time           `json:"executed_at"`
	Outputs    []ActionOutput      `json:"outputs"`
	Errors     map[string][]string `json:"errors,omitempty"`
	ReceiptID  string              `json:"receipt_id,omitempty"`
}

// ActionOutput is the result of one dispatched action.
type ActionOutput struct {
	Index   int             `json:"index"`
	Kind    ActionKind      `json:"kind"`
	OK      bool            `json:"ok"`
	Summary string          `json:"summary"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// OK reports whether every action in the pass succeeded.
func (r *ExecutionResults) OK() bool {
	if r == nil {
		return false
	}
	for _, errs := range r.Errors {
		if len(errs) > 0 {
			return false
		}
	}
	return true
}
