package pending

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/apperr"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/council"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/kv"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/pkg/types"
)

type stubReviewer struct {
	verdict types.Verdict
	err     error
	calls   int
}

func (r *stubReviewer) Review(_ context.Context, req council.Request) (types.CouncilResult, error) {
	r.calls++
	if r.err != nil {
		return types.CouncilResult{}, r.err
	}
	return types.CouncilResult{
		Council: []types.ReviewVerdict{{Role: "security", Result: types.Review{Verdict: r.verdict, RiskLevel: types.RiskLow}}},
		Final:   types.Review{Verdict: r.verdict, RiskLevel: types.RiskLow, Reasons: []string{"reviewed"}},
	}, nil
}

type recordingNotifier struct {
	texts []string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) {
	n.texts = append(n.texts, text)
}

func newService(t *testing.T, verdict types.Verdict) (*Service, *Store, *recordingNotifier) {
	t.Helper()
	store := NewStore(kv.NewMemoryStore())
	notifier := &recordingNotifier{}
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(store, &stubReviewer{verdict: verdict}, Options{
		ProviderPlan: []types.Assignment{{Provider: "ollama", Model: "m"}},
		Notifier:     notifier,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	return svc, store, notifier
}

func screenshotRequest(dryRun bool) SubmitRequest {
	return SubmitRequest{
		ActionRequest: "take a screenshot",
		Plan:          types.Plan{Type: types.PlanDesktop, Actions: []types.Action{types.Screenshot{}}},
		DryRun:        dryRun,
		Source:        "api",
	}
}

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, types.StatusRejectedByCouncil, InitialStatus(types.VerdictNo, false))
	assert.Equal(t, types.StatusRejectedByCouncil, InitialStatus(types.VerdictNo, true))
	assert.Equal(t, types.StatusDryRun, InitialStatus(types.VerdictYes, true))
	assert.Equal(t, types.StatusWaitingHuman, InitialStatus(types.VerdictYes, false))
}

func TestTransitionTable(t *testing.T) {
	all := []types.PendingStatus{
		types.StatusDryRun, types.StatusWaitingHuman, types.StatusRejectedByCouncil,
		types.StatusApproved, types.StatusDenied, types.StatusExecuted,
	}
	allowed := map[types.PendingStatus]map[Event]types.PendingStatus{
		types.StatusWaitingHuman: {EventApprove: types.StatusApproved, EventDeny: types.StatusDenied},
		types.StatusApproved:     {EventExecute: types.StatusExecuted, EventRejectPlan: types.StatusDenied},
	}
	for _, from := range all {
		for _, ev := range []Event{EventApprove, EventDeny, EventExecute, EventRejectPlan} {
			to, err := Next(from, ev)
			if want, ok := allowed[from][ev]; ok {
				require.NoError(t, err)
				assert.Equal(t, want, to)
				continue
			}
			require.Error(t, err, "%s --%s-->", from, ev)
			assert.Equal(t, apperr.KindState, apperr.KindOf(err))
			assert.Equal(t, from, to)
		}
	}
}

func TestSubmitWaitingHumanAndApprove(t *testing.T) {
	ctx := context.Background()
	svc, store, notifier := newService(t, types.VerdictYes)

	p, err := svc.Submit(ctx, screenshotRequest(false))
	require.NoError(t, err)
	assert.Equal(t, types.StatusWaitingHuman, p.Status)
	assert.Regexp(t, `^pending:[0-9A-Z]{26}$`, p.ID)
	assert.Regexp(t, `^[A-Z0-9]{8}$`, p.ApprovalCode)
	assert.Equal(t, []string{"1. screenshot"}, p.ExecutionPreview)
	require.Len(t, notifier.texts, 1)
	assert.Contains(t, notifier.texts[0], "Reply: YES "+p.ApprovalCode+" or NO "+p.ApprovalCode)

	approved, err := svc.Approve(ctx, " "+lower(p.ApprovalCode), "telegram")
	require.NoError(t, err)
	assert.Equal(t, types.StatusApproved, approved.Status)
	assert.Equal(t, "telegram", approved.ApprovedBy)
	assert.True(t, approved.UpdatedAt.After(p.UpdatedAt))

	stored, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusApproved, stored.Status)

	_, err = svc.Approve(ctx, p.ApprovalCode, "telegram")
	require.Error(t, err)
	assert.Equal(t, apperr.KindState, apperr.KindOf(err))
}

func lower(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'A' && c <= 'Z' {
			out[i] = c + 32
		}
	}
	return string(out)
}

func TestDryRunNeverWaits(t *testing.T) {
	ctx := context.Background()
	svc, store, notifier := newService(t, types.VerdictYes)

	p, err := svc.Submit(ctx, screenshotRequest(true))
	require.NoError(t, err)
	assert.Equal(t, types.StatusDryRun, p.Status)
	assert.Contains(t, notifier.texts[0], "Dry run preview")

	_, err = svc.Approve(ctx, p.ApprovalCode, "sms")
	require.Error(t, err)
	_, err = svc.Transition(ctx, p.ID, EventApprove, nil)
	require.Error(t, err)

	stored, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDryRun, stored.Status)
}

func TestRejectedByCouncil(t *testing.T) {
	ctx := context.Background()
	svc, _, notifier := newService(t, types.VerdictNo)

	p, err := svc.Submit(ctx, screenshotRequest(false))
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejectedByCouncil, p.Status)
	assert.Contains(t, notifier.texts[0], "Council rejected")
	assert.Contains(t, notifier.texts[0], "- reviewed")
}

func TestDenyByCode(t *testing.T) {
	ctx := context.Background()
	svc, _, notifier := newService(t, types.VerdictYes)

	p, err := svc.Submit(ctx, screenshotRequest(false))
	require.NoError(t, err)
	denied, err := svc.Deny(ctx, p.ApprovalCode, "")
	require.NoError(t, err)
	assert.Equal(t, types.StatusDenied, denied.Status)
	assert.Equal(t, "denied by human", denied.DenyReason)
	assert.Equal(t, "Denied "+p.ID, notifier.texts[len(notifier.texts)-1])
}

func TestSubmitValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, types.VerdictYes)

	_, err := svc.Submit(ctx, SubmitRequest{Plan: types.Plan{Type: types.PlanDesktop}})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.Submit(ctx, SubmitRequest{ActionRequest: "x", Plan: types.Plan{Type: types.PlanDesktop, Actions: []types.Action{types.TypeText{}}}})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSubmitPropagatesReviewError(t *testing.T) {
	store := NewStore(kv.NewMemoryStore())
	svc := NewService(store, &stubReviewer{err: apperr.Provider("council.arbiter", errors.New("down"))}, Options{})
	_, err := svc.Submit(context.Background(), screenshotRequest(false))
	assert.Equal(t, apperr.KindProvider, apperr.KindOf(err))

	all, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFindWaitingByCode(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kv.NewMemoryStore())
	require.NoError(t, store.Put(ctx, types.PendingAction{ID: "pending:01", ApprovalCode: "SAME0001", Status: types.StatusExecuted}))
	require.NoError(t, store.Put(ctx, types.PendingAction{ID: "pending:02", ApprovalCode: "SAME0001", Status: types.StatusWaitingHuman}))

	p, err := store.FindWaitingByCode(ctx, "same0001")
	require.NoError(t, err)
	assert.Equal(t, "pending:02", p.ID)

	_, err = store.FindWaitingByCode(ctx, "NOPE0000")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = store.Get(ctx, "receipt:x")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestIDsAreOrdered(t *testing.T) {
	ids := NewIDSource(nil)
	now := time.Now()
	a, err := ids.NewID(now)
	require.NoError(t, err)
	b, err := ids.NewID(now)
	require.NoError(t, err)
	assert.Less(t, a, b)
}
