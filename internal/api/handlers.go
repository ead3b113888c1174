// Package api is the HTTP surface: plan submission, status, execution, approval webhooks,
// notification mute, live events and receipt verification.
package api

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/apperr"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/auth"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/autopilot"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/inbound"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/kv"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/ledger"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/logging"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/pending"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/scheduler"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/pkg/types"
)

const maxBodyBytes = 1 << 20

type Pending interface {
	Submit(ctx context.Context, req pending.SubmitRequest) (types.PendingAction, error)
	Get(ctx context.Context, id string) (types.PendingAction, error)
	List(ctx context.Context) ([]types.PendingAction, error)
}

type Executor interface {
	Execute(ctx context.Context, id string) ([]string, error)
}

type Muter interface {
	Mute(ctx context.Context, d time.Duration) (time.Time, error)
	Unmute(ctx context.Context) error
}

type Autopilot interface {
	RunOnce(ctx context.Context) (autopilot.Report, error)
}

type Handler struct {
	Auth     auth.Authenticator
	Pending  Pending
	Executor Executor
	Inbound  *inbound.Handler
	// Notifier carries replies to Telegram approval messages.
	Notifier pending.Notifier
	// ReplySMS answers the sender of an inbound SMS.
	ReplySMS       func(ctx context.Context, to, text string) error
	TelegramChatID string
	ApproverPhone  string
	Muter          Muter
	Events         http.Handler
	Receipts       *ledger.Store
	PublicKey      ed25519.PublicKey
	Autopilot      Autopilot
	Store          kv.Store
	Scheduler      *scheduler.Scheduler
	Log            logrus.FieldLogger
}

func (h *Handler) log() logrus.FieldLogger { return logging.OrDiscard(h.Log) }

type PlanRequest struct {
	ActionRequest string          `json:"action_request"`
	ProposedPlan  types.Plan      `json:"proposed_plan"`
	RagMode       string          `json:"rag_mode"`
	DryRun        bool            `json:"dry_run"`
	Context       []types.Snippet `json:"context,omitempty"`
}

type PlanResponse struct {
	PendingID        string              `json:"pending_id"`
	Status           types.PendingStatus `json:"status"`
	ApprovalCode     string              `json:"approval_code"`
	Verdict          types.CouncilResult `json:"verdict"`
	ExecutionPreview []string            `json:"execution_preview"`
}

func (h *Handler) Plan(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	var req PlanRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
		return
	}
	p, err := h.Pending.Submit(r.Context(), pending.SubmitRequest{
		ActionRequest: req.ActionRequest,
		Plan:          req.ProposedPlan,
		RagMode:       req.RagMode,
		DryRun:        req.DryRun,
		Source:        "api",
		Context:       req.Context,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PlanResponse{
		PendingID:        p.ID,
		Status:           p.Status,
		ApprovalCode:     p.ApprovalCode,
		Verdict:          p.Verdict,
		ExecutionPreview: p.ExecutionPreview,
	})
}

func (h *Handler) PendingList(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	items, err := h.Pending.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) PendingGet(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	p, err := h.Pending.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	id := r.PathValue("id")
	lines, err := h.Executor.Execute(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending_id": id, "results": lines})
}

// InboundTelegram handles a Telegram bot update. Messages from other chats are ignored.
func (h *Handler) InboundTelegram(w http.ResponseWriter, r *http.Request) {
	var update struct {
		Message struct {
			Text string `json:"text"`
			Chat struct {
				ID json.Number `json:"id"`
			} `json:"chat"`
		} `json:"message"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&update); err != nil {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}
	chatID := update.Message.Chat.ID.String()
	if h.TelegramChatID != "" && chatID != h.TelegramChatID {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}
	respond := func(ctx context.Context, text string) {
		if h.Notifier != nil {
			h.Notifier.Notify(ctx, text)
		}
	}
	h.handleInbound(w, r, inbound.Message{Channel: "telegram", From: chatID, Text: update.Message.Text}, respond)
}

// InboundTwilio handles a Twilio SMS webhook (form fields Body and From).
func (h *Handler) InboundTwilio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid form"})
		return
	}
	from := strings.TrimSpace(r.PostForm.Get("From"))
	if h.ApproverPhone != "" && inbound.Normalize(from) != inbound.Normalize(h.ApproverPhone) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}
	respond := func(ctx context.Context, text string) {
		if h.ReplySMS == nil || from == "" {
			return
		}
		if err := h.ReplySMS(ctx, from, text); err != nil {
			h.log().WithError(err).Warn("api: sms reply failed")
		}
	}
	h.handleInbound(w, r, inbound.Message{Channel: "sms", From: from, Text: r.PostForm.Get("Body"), AllowPlans: true}, respond)
}

func (h *Handler) handleInbound(w http.ResponseWriter, r *http.Request, msg inbound.Message, respond inbound.Respond) {
	if h.Inbound == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "inbound handler not configured"})
		return
	}
	res, err := h.Inbound.Handle(r.Context(), msg, respond)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "outcome": res.Outcome, "pending_id": res.PendingID})
}

// Mute suppresses background notifications for ?minutes=N; N=0 lifts the mute.
func (h *Handler) Mute(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.Muter == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "notifications not configured"})
		return
	}
	minutes, err := strconv.Atoi(firstNonEmpty(r.URL.Query().Get("minutes"), "60"))
	if err != nil || minutes < 0 || minutes > 24*60 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "minutes must be an integer between 0 and 1440"})
		return
	}
	if minutes == 0 {
		if err := h.Muter.Unmute(r.Context()); err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"muted": false})
		return
	}
	until, err := h.Muter.Mute(r.Context(), time.Duration(minutes)*time.Minute)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"muted": true, "muted_until": until.UTC().Format(time.RFC3339)})
}

func (h *Handler) EventsStream(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.Events == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "events not configured"})
		return
	}
	h.Events.ServeHTTP(w, r)
}

func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.Receipts == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "receipts not configured"})
		return
	}
	receipt, err := h.Receipts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"receipt_id":  receipt.ReceiptID,
		"pending_id":  receipt.PendingID,
		"created_at":  receipt.CreatedAt,
		"outcome":     receipt.OutcomeStatus,
		"key_id":      receipt.KeyID,
		"body":        json.RawMessage(receipt.BodyJSON),
		"body_digest": receipt.BodyDigest,
	})
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.Receipts == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "verify not implemented"})
		return
	}
	receiptID := r.PathValue("id")
	receipt, err := h.Receipts.Get(r.Context(), receiptID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if h.PublicKey == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "public key not configured"})
		return
	}
	if err := ledger.VerifyReceipt(receipt, h.PublicKey); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"receipt_id": receiptID, "valid": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipt_id": receiptID, "valid": true})
}

func (h *Handler) AutopilotRun(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.Autopilot == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "autopilot not configured"})
		return
	}
	report, err := h.Autopilot.RunOnce(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) AutopilotLast(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.Store == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "store not configured"})
		return
	}
	report, err := autopilot.LastRun(r.Context(), h.Store)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"ok": true}
	if h.Scheduler != nil {
		body["loops"] = h.Scheduler.Status()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) ensureAuth(w http.ResponseWriter, r *http.Request) bool {
	if h.Auth == nil {
		return true
	}
	if _, err := h.Auth.Authenticate(r); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

// StatusFor maps an error to its HTTP status by apperr kind.
func StatusFor(err error) int {
	if errors.Is(err, kv.ErrNotFound) || errors.Is(err, ledger.ErrReceiptNotFound) {
		return http.StatusNotFound
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindPolicy:
		return http.StatusForbidden
	case apperr.KindProvider, apperr.KindSignalSource:
		return http.StatusBadGateway
	case apperr.KindState:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= 500 {
		h.log().WithError(err).Error("api: request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": string(apperr.KindOf(err))})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
