package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/game-hub/wbp-hub/internal/collab"
	"github.com/game-hub/wbp-hub/internal/model"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage registered game servers",
}

var (
	serverCoreKind      string
	serverPreferredMode string
	serverOwnerID       string
	serverTags          []string
)

var serverRegisterCmd = &cobra.Command{
	Use:   "register <serverID>",
	Short: "Register a new server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serverID := args[0]
		mode := model.ConnectionMode(serverPreferredMode)
		switch mode {
		case model.ModePlugin, model.ModeRCON, model.ModeTerminal:
		default:
			return fmt.Errorf("unknown connection mode %q (want plugin, rcon, or terminal)", serverPreferredMode)
		}

		sd := &model.ServerDescriptor{
			ServerID:      serverID,
			CoreKind:      serverCoreKind,
			PreferredMode: mode,
			OwnerID:       serverOwnerID,
			Tags:          serverTags,
		}

		ctx := context.Background()
		key := uuid.NewString()
		if err := store.CreateServer(ctx, sd); err != nil {
			recordAudit(ctx, serverOwnerID, serverID, "server.register", collab.AuditFailure, err, key)
			return err
		}
		recordAudit(ctx, serverOwnerID, serverID, "server.register", collab.AuditSuccess, nil, key)
		fmt.Fprintf(cmd.OutOrStdout(), "registered server %s (idempotency-key %s)\n", serverID, key)
		return nil
	},
}

var serverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		servers, err := store.ListServers(context.Background())
		if err != nil {
			return err
		}
		if len(servers) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no servers registered")
			return nil
		}
		for _, sd := range servers {
			fmt.Fprintf(cmd.OutOrStdout(), "%-20s core=%-10s mode=%-8s owner=%-12s tags=%s\n",
				sd.ServerID, sd.CoreKind, sd.PreferredMode, sd.OwnerID, strings.Join(sd.Tags, ","))
		}
		return nil
	},
}

var serverRemoveCmd = &cobra.Command{
	Use:   "remove <serverID>",
	Short: "Deregister a server and its bindings/tokens",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serverID := args[0]
		ctx := context.Background()
		key := uuid.NewString()
		if err := store.DeleteServer(ctx, serverID); err != nil {
			recordAudit(ctx, "", serverID, "server.remove", collab.AuditFailure, err, key)
			return err
		}
		recordAudit(ctx, "", serverID, "server.remove", collab.AuditSuccess, nil, key)
		fmt.Fprintf(cmd.OutOrStdout(), "removed server %s\n", serverID)
		return nil
	},
}

func init() {
	serverRegisterCmd.Flags().StringVar(&serverCoreKind, "core", "", "game core kind (e.g. minecraft, rust)")
	serverRegisterCmd.Flags().StringVar(&serverPreferredMode, "mode", string(model.ModePlugin), "preferred connection mode: plugin, rcon, or terminal")
	serverRegisterCmd.Flags().StringVar(&serverOwnerID, "owner", "", "owning user id")
	serverRegisterCmd.Flags().StringSliceVar(&serverTags, "tag", nil, "tag (repeatable)")

	serverCmd.AddCommand(serverRegisterCmd, serverListCmd, serverRemoveCmd)
	rootCmd.AddCommand(serverCmd)
}
