package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/game-hub/wbp-hub/internal/collab"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue or revoke session auth tokens",
}

var tokenTTL time.Duration

var tokenIssueCmd = &cobra.Command{
	Use:   "issue <serverID>",
	Short: "Issue a new session auth token for a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serverID := args[0]
		raw, err := randomToken()
		if err != nil {
			return fmt.Errorf("generating token: %w", err)
		}

		// The hub never sees the raw token again: only its bcrypt hash is
		// persisted, matching the collab.Store.CreateToken(tokenHash, ...) contract.
		hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing token: %w", err)
		}

		ctx := context.Background()
		expiresAt := time.Now().Add(tokenTTL)
		tokenID, err := store.CreateToken(ctx, string(hash), serverID, expiresAt)
		if err != nil {
			recordAudit(ctx, "", serverID, "token.issue", collab.AuditFailure, err, tokenID)
			return err
		}
		recordAudit(ctx, "", serverID, "token.issue", collab.AuditSuccess, nil, tokenID)
		fmt.Fprintf(cmd.OutOrStdout(), "issued token %s for server %s (expires %s)\nraw token (copy now, it will not be shown again): %s\n",
			tokenID, serverID, expiresAt.Format(time.RFC3339), raw)
		return nil
	},
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke <tokenID>",
	Short: "Revoke a session auth token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokenID := args[0]
		ctx := context.Background()
		serverID, _, lookupErr := store.GetToken(ctx, tokenID)
		if err := store.DeleteToken(ctx, tokenID); err != nil {
			recordAudit(ctx, "", serverID, "token.revoke", collab.AuditFailure, err, tokenID)
			return err
		}
		if lookupErr != nil {
			serverID = ""
		}
		recordAudit(ctx, "", serverID, "token.revoke", collab.AuditSuccess, nil, tokenID)
		fmt.Fprintf(cmd.OutOrStdout(), "revoked token %s\n", tokenID)
		return nil
	},
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func init() {
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	tokenCmd.AddCommand(tokenIssueCmd, tokenRevokeCmd)
	rootCmd.AddCommand(tokenCmd)
}
