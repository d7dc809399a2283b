// Command hubctl is an operator CLI over the same collab.Store and
// collab.AuditLog contracts the hub depends on: registering servers,
// granting ACL entries, managing chat bindings, and inspecting or
// requesting replay of deferred operations. It never talks to a live
// hub process or bypasses the permission checks the hub itself enforces
// — mutating commands only ever write through the store, the same path
// the hub's own request router would take.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/game-hub/wbp-hub/internal/collabstore"
)

// store is process-local: hubctl is a reference tool over an in-memory
// collaborator, not a client of the hub's own running instance. Operators
// wanting a persistent backing can swap this construction for
// sqlstore.Open (internal/collab/sqlstore, built behind the "sqlstore"
// tag) without touching anything else in this package.
var store = collabstore.New()

var rootCmd = &cobra.Command{
	Use:   "hubctl",
	Short: "Operator CLI for the U-WBP hub's server registry, ACLs, and audit trail",
	Long: `hubctl manages the collaborator state the hub depends on: registered
servers, per-user ACL grants, chat bindings, and the append-only audit
log. It operates directly against the same collab.Store contract the
hub uses, so every mutation it makes is one the hub itself could have
made.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
