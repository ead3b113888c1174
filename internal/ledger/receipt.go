// Package ledger produces signed execution receipts: the audit record written for every
// pending action that reaches a terminal outcome through the executor.
package ledger

import (
	"fmt"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/crypto"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/pkg/types"
)

const ReceiptSchema = "guardian.receipt.v1"

type Signer interface {
	KeyID() string
	Sign(digest crypto.Digest) ([]byte, error)
}

type MakeReceiptInput struct {
	Schema    string
	CreatedAt string

	PendingID     string
	ActionRequest string
	Source        string

	Plan     types.ReceiptPlan
	Council  types.ReceiptCouncil
	Approval *types.ReceiptApproval
	Outcome  types.ReceiptOutcome
}

type StoredReceipt struct {
	ReceiptID  string `json:"receipt_id"`
	BodyDigest string `json:"body_digest"`
	BodyJSON   []byte `json:"body_json"`
	KeyID      string `json:"key_id"`
	Sig        []byte `json:"sig"`

	PendingID     string                     `json:"pending_id"`
	CreatedAt     string                     `json:"created_at"`
	OutcomeStatus types.ReceiptOutcomeStatus `json:"outcome_status"`
}

// MakeReceipt canonicalizes, hashes and signs a receipt body.
func MakeReceipt(in MakeReceiptInput, signer Signer) (StoredReceipt, error) {
	if in.Schema == "" {
		in.Schema = ReceiptSchema
	}
	if in.Schema != ReceiptSchema {
		return StoredReceipt{}, fmt.Errorf("invalid schema: %s", in.Schema)
	}
	if in.PendingID == "" || in.CreatedAt == "" || in.Plan.PlanDigest == "" {
		return StoredReceipt{}, fmt.Errorf("missing required receipt fields")
	}
	if in.Outcome.Status != types.ReceiptExecuted && in.Outcome.Status != types.ReceiptDenied {
		return StoredReceipt{}, fmt.Errorf("invalid outcome status: %s", in.Outcome.Status)
	}

	roles := make([]any, 0, len(in.Council.Roles))
	for _, r := range in.Council.Roles {
		roles = append(roles, r)
	}
	errs := map[string]any{}
	for kind, list := range in.Outcome.Errors {
		items := make([]any, 0, len(list))
		for _, e := range list {
			items = append(items, e)
		}
		errs[kind] = items
	}
	var approval any
	if in.Approval != nil {
		approval = map[string]any{
			"approval_code": in.Approval.ApprovalCode,
			"approved_by":   in.Approval.ApprovedBy,
		}
	}

	body := map[string]any{
		"schema":         in.Schema,
		"created_at":     in.CreatedAt,
		"key_id":         signer.KeyID(),
		"pending_id":     in.PendingID,
		"action_request": in.ActionRequest,
		"source":         in.Source,
		"plan": map[string]any{
			"type":        string(in.Plan.Type),
			"plan_digest": in.Plan.PlanDigest,
			"actions":     in.Plan.Actions,
		},
		"council": map[string]any{
			"verdict":    string(in.Council.Verdict),
			"risk_level": string(in.Council.RiskLevel),
			"roles":      roles,
		},
		"approval": approval,
		"outcome": map[string]any{
			"status":    string(in.Outcome.Status),
			"succeeded": in.Outcome.Succeeded,
			"failed":    in.Outcome.Failed,
			"errors":    errs,
		},
	}

	canonical, err := crypto.Canonicalize(body)
	if err != nil {
		return StoredReceipt{}, err
	}

	digest := crypto.Sum(canonical)
	sig, err := signer.Sign(digest)
	if err != nil {
		return StoredReceipt{}, err
	}
	bodyDigest := digest.String()

	return StoredReceipt{
		ReceiptID:     bodyDigest,
		BodyDigest:    bodyDigest,
		BodyJSON:      canonical,
		KeyID:         signer.KeyID(),
		Sig:           sig,
		PendingID:     in.PendingID,
		CreatedAt:     in.CreatedAt,
		OutcomeStatus: in.Outcome.Status,
	}, nil
}
