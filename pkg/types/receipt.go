package types

type ReceiptOutcomeStatus string

const (
	ReceiptExecuted ReceiptOutcomeStatus = "executed"
	ReceiptDenied   ReceiptOutcomeStatus = "denied"
)

type ReceiptPlan struct {
	Type       PlanType `json:"type"`
	PlanDigest string   `json:"plan_digest"`
	Actions    int      `json:"actions"`
}

type ReceiptCouncil struct {
	Verdict   Verdict   `json:"verdict"`
	RiskLevel RiskLevel `json:"risk_level"`
	Roles     []string  `json:"roles"`
}

type ReceiptApproval struct {
	ApprovalCode string `json:"approval_code"`
	ApprovedBy   string `json:"approved_by,omitempty"`
}

type ReceiptOutcome struct {
	Status    ReceiptOutcomeStatus `json:"status"`
	Succeeded int                  `json:"succeeded"`
	Failed    int                  `json:"failed"`
	Errors    map[string][]string  `json:"errors,omitempty"`
}
