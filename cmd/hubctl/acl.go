package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/game-hub/wbp-hub/internal/collab"
)

var aclCmd = &cobra.Command{
	Use:   "acl",
	Short: "Manage per-user operation ACL grants",
}

var aclGrantCmd = &cobra.Command{
	Use:   "grant <userID> <op>",
	Short: "Grant a user permission to perform an operation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, op := args[0], args[1]
		store.GrantACL(userID, op)
		key := uuid.NewString()
		recordAudit(context.Background(), userID, "", "acl.grant", collab.AuditSuccess, nil, key,
			map[string]interface{}{"op": op})
		fmt.Fprintf(cmd.OutOrStdout(), "granted %q to %s\n", op, userID)
		return nil
	},
}

var aclListCmd = &cobra.Command{
	Use:   "list <userID>",
	Short: "List a user's granted operations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ops, err := store.ListACL(context.Background(), args[0])
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no grants")
			return nil
		}
		for _, op := range ops {
			fmt.Fprintln(cmd.OutOrStdout(), op)
		}
		return nil
	},
}

func init() {
	aclCmd.AddCommand(aclGrantCmd, aclListCmd)
	rootCmd.AddCommand(aclCmd)
}
