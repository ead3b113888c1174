package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/autopilot"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/policy"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/pkg/types"
)

type client struct {
	addr    string
	token   string
	jsonOut bool
	http    *http.Client
}

func (c *client) do(method, path string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, strings.TrimRight(c.addr, "/")+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return respBody, resp.StatusCode, nil
}

// call performs the request and fails on any non-200 reply. With --json the raw body is printed
// and decode is skipped.
func (c *client) call(cmd *cobra.Command, method, path string, body any, out any) (bool, error) {
	respBody, status, err := c.do(method, path, body)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("%s %s failed (%d): %s", method, path, status, strings.TrimSpace(string(respBody)))
	}
	if c.jsonOut {
		_, _ = cmd.OutOrStdout().Write(respBody)
		return true, nil
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return false, fmt.Errorf("invalid response: %w", err)
		}
	}
	return false, nil
}

func exactArgs(n int, what string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return &usageError{msg: fmt.Sprintf("%s requires %s", cmd.Name(), what)}
		}
		return nil
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &client{http: http.DefaultClient}
	root := &cobra.Command{
		Use:   "guardian",
		Short: "Council Desktop Guardian CLI",
		Long: `Guardian submits plans for council review, inspects pending approvals,
triggers execution of approved plans and verifies signed execution receipts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return &usageError{msg: "a command is required"}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&c.addr, "addr", envOrDefault("GUARDIAN_ADDR", defaultAddr), "gateway address")
	root.PersistentFlags().StringVar(&c.token, "token", envOrDefault("GUARDIAN_TOKEN", os.Getenv("GUARDIAN_DEV_TOKEN")), "bearer token")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "print raw JSON response")

	root.AddCommand(
		planCmd(c),
		statusCmd(c),
		listCmd(c),
		executeCmd(c),
		verifyCmd(c),
		muteCmd(c),
		autopilotCmd(c),
		policyCmd(),
	)
	return root
}

type planResponse struct {
	PendingID        string              `json:"pending_id"`
	Status           types.PendingStatus `json:"status"`
	ApprovalCode     string              `json:"approval_code"`
	Verdict          types.CouncilResult `json:"verdict"`
	ExecutionPreview []string            `json:"execution_preview"`
}

func planCmd(c *client) *cobra.Command {
	var (
		request  string
		planPath string
		ragMode  string
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Submit a plan for council review",
		Args:  exactArgs(0, "no positional arguments"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if request == "" || planPath == "" {
				return &usageError{msg: "plan requires --request and --file"}
			}
			// #nosec G304 -- path is operator-provided.
			raw, err := os.ReadFile(planPath)
			if err != nil {
				return err
			}
			var plan types.Plan
			if err := json.Unmarshal(raw, &plan); err != nil {
				return fmt.Errorf("plan file: %w", err)
			}
			body := map[string]any{
				"action_request": request,
				"proposed_plan":  plan,
				"rag_mode":       ragMode,
				"dry_run":        dryRun,
			}
			var out planResponse
			printed, err := c.call(cmd, http.MethodPost, "/v1/plan", body, &out)
			if err != nil || printed {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "pending_id=%s status=%s verdict=%s risk=%s\n", out.PendingID, out.Status, out.Verdict.Final.Verdict, out.Verdict.Final.RiskLevel)
			if out.Status == types.StatusWaitingHuman {
				fmt.Fprintf(w, "approval_code=%s\n", out.ApprovalCode)
			}
			for _, line := range out.ExecutionPreview {
				fmt.Fprintln(w, "  "+line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&request, "request", "", "natural-language action request")
	cmd.Flags().StringVar(&planPath, "file", "", "path to a JSON plan")
	cmd.Flags().StringVar(&ragMode, "rag-mode", "", "retrieval mode recorded with the request")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "review only; the plan can never be executed")
	return cmd
}

func statusCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "status <pending_id>",
		Short: "Show one pending record",
		Args:  exactArgs(1, "<pending_id>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p types.PendingAction
			printed, err := c.call(cmd, http.MethodGet, "/v1/pending/"+url.PathEscape(args[0]), nil, &p)
			if err != nil || printed {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatPending(p))
			if p.ExecutionResults != nil {
				for _, out := range p.ExecutionResults.Outputs {
					fmt.Fprintf(cmd.OutOrStdout(), "  %d. %s ok=%t %s\n", out.Index+1, out.Kind, out.OK, out.Summary)
				}
			}
			return nil
		},
	}
}

func listCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending records",
		Args:  exactArgs(0, "no positional arguments"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out struct {
				Items []types.PendingAction `json:"items"`
			}
			printed, err := c.call(cmd, http.MethodGet, "/v1/pending", nil, &out)
			if err != nil || printed {
				return err
			}
			for _, p := range out.Items {
				fmt.Fprintln(cmd.OutOrStdout(), formatPending(p))
			}
			return nil
		},
	}
}

func formatPending(p types.PendingAction) string {
	line := fmt.Sprintf("%s status=%s plan=%s", p.ID, p.Status, p.ProposedPlan.Type)
	if p.Status == types.StatusWaitingHuman {
		line += " code=" + p.ApprovalCode
	}
	if p.ApprovedBy != "" {
		line += " approved_by=" + p.ApprovedBy
	}
	return line
}

func executeCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "execute <pending_id>",
		Short: "Execute an approved plan",
		Args:  exactArgs(1, "<pending_id>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Results []string `json:"results"`
			}
			printed, err := c.call(cmd, http.MethodPost, "/v1/execute/"+url.PathEscape(args[0]), nil, &out)
			if err != nil || printed {
				return err
			}
			for _, line := range out.Results {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

func verifyCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <receipt_id>",
		Short: "Verify a signed execution receipt",
		Args:  exactArgs(1, "<receipt_id>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload struct {
				ReceiptID string `json:"receipt_id"`
				Valid     bool   `json:"valid"`
				Error     string `json:"error,omitempty"`
			}
			printed, err := c.call(cmd, http.MethodGet, "/v1/verify/"+url.PathEscape(args[0]), nil, &payload)
			if err != nil || printed {
				return err
			}
			if payload.Valid {
				fmt.Fprintf(cmd.OutOrStdout(), "valid=true receipt_id=%s\n", payload.ReceiptID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid=false receipt_id=%s error=%s\n", payload.ReceiptID, payload.Error)
			return fmt.Errorf("receipt %s failed verification", payload.ReceiptID)
		},
	}
}

func muteCmd(c *client) *cobra.Command {
	var minutes int
	cmd := &cobra.Command{
		Use:   "mute",
		Short: "Mute notifications; --minutes 0 unmutes",
		Args:  exactArgs(0, "no positional arguments"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out struct {
				Muted      bool   `json:"muted"`
				MutedUntil string `json:"muted_until"`
			}
			printed, err := c.call(cmd, http.MethodPost, "/v1/notify/mute?minutes="+strconv.Itoa(minutes), nil, &out)
			if err != nil || printed {
				return err
			}
			if out.Muted {
				fmt.Fprintf(cmd.OutOrStdout(), "muted until %s\n", out.MutedUntil)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "notifications unmuted")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&minutes, "minutes", 60, "mute duration in minutes (0-1440)")
	return cmd
}

func autopilotCmd(c *client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autopilot",
		Short: "Run or inspect the autopilot",
	}
	report := func(method, path string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			var r autopilot.Report
			printed, err := c.call(cmd, method, path, nil, &r)
			if err != nil || printed {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), autopilot.Summary(r))
			return nil
		}
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run one autopilot pass now",
			Args:  exactArgs(0, "no positional arguments"),
			RunE:  report(http.MethodPost, "/v1/autopilot/run"),
		},
		&cobra.Command{
			Use:   "last",
			Short: "Show the last autopilot report",
			Args:  exactArgs(0, "no positional arguments"),
			RunE:  report(http.MethodGet, "/v1/autopilot/last"),
		},
	)
	return cmd
}

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Local policy file checks",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "lint <tool_policy_path>",
		Short: "Parse a tool policy file and print its hash",
		Args:  exactArgs(1, "<tool_policy_path>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := policy.LoadToolPolicy(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok policy_id=%s rules=%d policy_hash=%s\n", loaded.Policy.PolicyID, len(loaded.Policy.Rules), loaded.Hash)
			return nil
		},
	})
	return cmd
}
