package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/policy"
)

// ToolClient calls tools on allow-listed external tool servers using JSON-RPC over HTTP
// (method "tools/call"). Servers absent from Servers are not reachable.
type ToolClient struct {
	Servers map[string]string
	Guard   *policy.Guard
	Client  *http.Client
	nextID  atomic.Int64
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (t *ToolClient) Call(ctx context.Context, server, tool string, args map[string]any) (json.RawMessage, error) {
	endpoint, ok := t.Servers[server]
	if !ok || endpoint == "" {
		return nil, fmt.Errorf("tool server %q is not allowlisted", server)
	}
	if t.Guard != nil {
		if err := t.Guard.Check(server, tool, args); err != nil {
			return nil, err
		}
	}
	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      t.nextID.Add(1),
		Method:  "tools/call",
		Params:  map[string]any{"name": tool, "arguments": args},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	c := t.Client
	if c == nil {
		c = &http.Client{Timeout: 20 * time.Second}
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("tool server %s: http %d", server, resp.StatusCode)
	}
	var out rpcResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("tool server %s: %w", server, err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("tool server %s: %s (code %d)", server, out.Error.Message, out.Error.Code)
	}
	return out.Result, nil
}
