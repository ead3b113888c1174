package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/config"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/kv"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/ledger"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/llm"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/pkg/types"
)

const approve = `{"verdict":"YES","risk_level":"LOW","reasons":["fine"],"required_changes":[]}`

func approvingProviders() *llm.Registry {
	reg := llm.NewRegistry()
	reg.Register("ollama", llm.ProviderFunc(func(context.Context, string, string, string) (string, error) {
		return approve, nil
	}))
	return reg
}

func newTestApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()
	cfg := config.Defaults()
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(context.Background(), cfg, Options{Providers: approvingProviders()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, err := OpenStore(ctx, config.StoreConfig{})
	require.NoError(t, err)
	assert.IsType(t, &kv.MemoryStore{}, s)

	s, err = OpenStore(ctx, config.StoreConfig{Driver: "sqlite", DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())})
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Close())

	_, err = OpenStore(ctx, config.StoreConfig{Driver: "redis"})
	assert.Error(t, err)
}

func TestNewRegistersLoops(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) {
		c.Notify.Outbox.Enabled = true
		c.Autopilot.Enabled = true
		c.Autopilot.IntervalSeconds = 60
		c.Briefing.Enabled = true
		c.Briefing.Sources = []string{"https://news.example/rss"}
	})
	var names []string
	for _, st := range a.Scheduler.Status() {
		names = append(names, st.Name)
	}
	assert.Equal(t, []string{LoopAutopilot, LoopBriefing, LoopOutbox}, names)
	require.NotNil(t, a.Outbox)
	require.NotNil(t, a.Briefing)
	assert.Equal(t, ephemeralKeyID, a.Signer.ID)
}

func TestNewWithoutLoops(t *testing.T) {
	a := newTestApp(t, nil)
	assert.Empty(t, a.Scheduler.Status())
	assert.Nil(t, a.Outbox)
	assert.Nil(t, a.Briefing)
}

func TestNewRejectsUnknownBriefingProvider(t *testing.T) {
	cfg := config.Defaults()
	cfg.Briefing.Enabled = true
	cfg.Briefing.Provider = "groq"
	_, err := New(context.Background(), cfg, Options{Providers: approvingProviders()})
	assert.ErrorContains(t, err, "briefing")
}

func TestNewRejectsBadSigningKey(t *testing.T) {
	cfg := config.Defaults()
	cfg.Signing = config.SigningConfig{KeyID: "k1", PrivateKeyPath: t.TempDir() + "/missing.key"}
	_, err := New(context.Background(), cfg, Options{Providers: approvingProviders()})
	assert.Error(t, err)
}

func TestPlanApproveExecuteVerify(t *testing.T) {
	a := newTestApp(t, nil)
	router := a.Router()
	ctx := context.Background()

	res := do(t, router, http.MethodPost, "/v1/plan", `{"action_request":"take a screenshot","proposed_plan":{"type":"desktop","actions":[{"name":"screenshot"}]}}`)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var planned struct {
		PendingID    string              `json:"pending_id"`
		Status       types.PendingStatus `json:"status"`
		ApprovalCode string              `json:"approval_code"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &planned))
	assert.Equal(t, types.StatusWaitingHuman, planned.Status)

	res = do(t, router, http.MethodPost, "/v1/inbound/telegram", `{"message":{"text":"YES `+planned.ApprovalCode+`","chat":{"id":1}}}`)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	p, err := a.Pending.Get(ctx, planned.PendingID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusExecuted, p.Status)
	assert.Equal(t, "telegram:1", p.ApprovedBy)
	require.NotNil(t, p.ExecutionResults)
	// No desktop agent is configured, so the screenshot is recorded as a failure.
	assert.NotEmpty(t, p.ExecutionResults.Errors[string(types.KindScreenshot)])
	require.NotEmpty(t, p.ExecutionResults.ReceiptID)

	receipt, err := a.Receipts.Get(ctx, p.ExecutionResults.ReceiptID)
	require.NoError(t, err)
	require.NoError(t, ledger.VerifyReceipt(receipt, a.Signer.PublicKey()))

	res = do(t, router, http.MethodGet, "/v1/verify/"+p.ExecutionResults.ReceiptID, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"valid":true`)
}

func TestHealthReportsLoops(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) {
		c.Notify.Outbox.Enabled = true
	})
	res := do(t, a.Router(), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), LoopOutbox)
}
