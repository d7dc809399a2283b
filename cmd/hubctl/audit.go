package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/game-hub/wbp-hub/internal/collab"
)

// recordAudit appends one audit entry for a CLI-driven mutation. extra, if
// given, is merged into the entry's payload alongside the idempotency key
// every mutating hubctl command generates.
func recordAudit(ctx context.Context, userID, serverID, op string, result collab.AuditResult, opErr error, idempotencyKey string, extra ...map[string]interface{}) {
	payload := map[string]interface{}{"idempotencyKey": idempotencyKey, "source": "hubctl"}
	for _, m := range extra {
		for k, v := range m {
			payload[k] = v
		}
	}
	entry := collab.AuditEntry{
		UserID:   userID,
		ServerID: serverID,
		Op:       op,
		Payload:  payload,
		Result:   result,
	}
	if opErr != nil {
		entry.ErrorMessage = opErr.Error()
	}
	if err := store.AppendAudit(ctx, entry); err != nil {
		fmt.Printf("warning: failed to append audit entry: %v\n", err)
	}
}

var (
	auditUserID   string
	auditServerID string
	auditOp       string
	auditLimit    int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect or act on the audit trail",
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query audit entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := collab.AuditFilter{
			UserID:   auditUserID,
			ServerID: auditServerID,
			Op:       auditOp,
			Limit:    auditLimit,
		}
		entries, err := store.QueryAudit(context.Background(), filter)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no matching audit entries")
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%s user=%-12s server=%-12s op=%-20s result=%-8s %s\n",
				e.At.Format(time.RFC3339), e.UserID, e.ServerID, e.Op, e.Result, e.ErrorMessage)
		}
		return nil
	},
}

// auditReplayCmd requests the hub replay a server's deferred operations on
// its next reconnect sweep. hubctl cannot reach into a live hub process's
// in-memory degrader queue, so the request is recorded as an audit entry the
// hub's operators can act on; the actual FIFO replay still happens inside
// the running hub via its own degrader.ReplayReady.
var auditReplayCmd = &cobra.Command{
	Use:   "replay <serverID>",
	Short: "Request replay of a server's deferred pending operations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serverID := args[0]
		key := uuid.NewString()
		recordAudit(context.Background(), "", serverID, "pending.replay_requested", collab.AuditSuccess, nil, key)
		fmt.Fprintf(cmd.OutOrStdout(), "replay requested for %s (idempotency-key %s); the hub's degrader drains this server's queue on its next reconnect sweep\n", serverID, key)
		return nil
	},
}

func init() {
	auditQueryCmd.Flags().StringVar(&auditUserID, "user", "", "filter by user id")
	auditQueryCmd.Flags().StringVar(&auditServerID, "server", "", "filter by server id")
	auditQueryCmd.Flags().StringVar(&auditOp, "op", "", "filter by operation name")
	auditQueryCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum entries to return")

	auditCmd.AddCommand(auditQueryCmd, auditReplayCmd)
	rootCmd.AddCommand(auditCmd)
}
