package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/game-hub/wbp-hub/internal/collab"
	"github.com/game-hub/wbp-hub/internal/model"
)

var bindingCmd = &cobra.Command{
	Use:   "binding",
	Short: "Manage chat/event/command bindings between groups and servers",
}

var (
	bindingGroupID string
	bindingKind    string
)

var bindingCreateCmd = &cobra.Command{
	Use:   "create <serverID>",
	Short: "Create a binding between a chat group and a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serverID := args[0]
		kind := model.BindingKind(bindingKind)
		switch kind {
		case model.BindingChat, model.BindingEvent, model.BindingCommand, model.BindingMonitoring:
		default:
			return fmt.Errorf("unknown binding kind %q", bindingKind)
		}

		b := &model.Binding{
			GroupID:     bindingGroupID,
			ServerID:    serverID,
			BindingKind: kind,
		}
		ctx := context.Background()
		key := uuid.NewString()
		if err := store.CreateBinding(ctx, b); err != nil {
			recordAudit(ctx, "", serverID, "binding.create", collab.AuditFailure, err, key)
			return err
		}
		recordAudit(ctx, "", serverID, "binding.create", collab.AuditSuccess, nil, key)
		fmt.Fprintf(cmd.OutOrStdout(), "created binding %s (%s -> %s)\n", b.BindingID, bindingGroupID, serverID)
		return nil
	},
}

var bindingListCmd = &cobra.Command{
	Use:   "list <serverID>",
	Short: "List bindings for a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bindings, err := store.ListBindings(context.Background(), args[0])
		if err != nil {
			return err
		}
		if len(bindings) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no bindings")
			return nil
		}
		for _, b := range bindings {
			fmt.Fprintf(cmd.OutOrStdout(), "%-36s group=%-16s kind=%-10s disabled=%v\n", b.BindingID, b.GroupID, b.BindingKind, b.Disabled)
		}
		return nil
	},
}

var bindingRemoveCmd = &cobra.Command{
	Use:   "remove <bindingID>",
	Short: "Delete a binding",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bindingID := args[0]
		ctx := context.Background()
		key := uuid.NewString()
		if err := store.DeleteBinding(ctx, bindingID); err != nil {
			recordAudit(ctx, "", "", "binding.remove", collab.AuditFailure, err, key)
			return err
		}
		recordAudit(ctx, "", "", "binding.remove", collab.AuditSuccess, nil, key)
		fmt.Fprintf(cmd.OutOrStdout(), "removed binding %s\n", bindingID)
		return nil
	},
}

func init() {
	bindingCreateCmd.Flags().StringVar(&bindingGroupID, "group", "", "chat group id")
	bindingCreateCmd.Flags().StringVar(&bindingKind, "kind", string(model.BindingChat), "binding kind: chat, event, command, or monitoring")

	bindingCmd.AddCommand(bindingCreateCmd, bindingListCmd, bindingRemoveCmd)
	rootCmd.AddCommand(bindingCmd)
}
