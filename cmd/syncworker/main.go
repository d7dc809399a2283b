// Command syncworker runs the whitelist/ban synchronization collaborator
// referenced but explicitly out of scope for the core hub (spec.md §1): on a
// cron schedule, it reconciles each registered server's reported whitelist
// against the canonical source and resolves any mismatch through the same
// conflict-resolution rules the hub's degrader applies inline. It is a thin,
// separately-buildable reference, not part of the session/routing/resilience
// engine itself.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	hubcfg "github.com/game-hub/wbp-hub/infrastructure/config"
	"github.com/game-hub/wbp-hub/infrastructure/logging"
	slmiddleware "github.com/game-hub/wbp-hub/infrastructure/middleware"
	"github.com/game-hub/wbp-hub/infrastructure/state"
	"github.com/game-hub/wbp-hub/internal/collab"
	"github.com/game-hub/wbp-hub/internal/collabstore"
	"github.com/game-hub/wbp-hub/internal/degrader"
	"github.com/game-hub/wbp-hub/internal/hubconfig"
	"github.com/game-hub/wbp-hub/internal/whitelistsync"
)

func main() {
	schedule := flag.String("schedule", "@every 5m", "cron schedule for the reconciliation sweep")
	healthAddr := flag.String("health-addr", "", "HTTP listen address for liveness/readiness (defaults to PORT env or :8081)")
	flag.Parse()

	ctx := context.Background()
	log := logging.NewFromEnv("syncworker")
	cfg := hubconfig.Load()

	// Backed by an in-memory PersistenceBackend here; a real deployment
	// swaps this for a disk- or database-backed one without touching
	// anything else in collabstore.
	store := collabstore.NewWithBackend(state.NewMemoryBackend(0))
	if err := store.Restore(ctx); err != nil {
		log.Error(ctx, "failed to restore collabstore snapshot", err, nil)
	}
	source := whitelistsync.NewMemSource()
	deg := degrader.New(cfg.Degradation)
	syncer := whitelistsync.New(source, source, deg)

	c := cron.New()
	_, err := c.AddFunc(*schedule, func() { runSweep(ctx, log, store, syncer) })
	if err != nil {
		log.Fatal(ctx, "invalid cron schedule", err)
	}

	ready := false
	checker := slmiddleware.NewHealthChecker("2.0")
	checker.RegisterCheck("collabstore", func() error {
		_, err := store.ListServers(ctx)
		return err
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/live", slmiddleware.LivenessHandler())
	mux.HandleFunc("/ready", slmiddleware.ReadinessHandler(&ready))
	mux.Handle("/health", checker.Handler())
	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, slmiddleware.RuntimeStats())
	})

	healthSrv := &http.Server{Addr: resolveHealthAddr(*healthAddr), Handler: mux}
	go func() {
		log.Info(ctx, "syncworker health endpoint listening", map[string]interface{}{"addr": healthSrv.Addr})
		if herr := healthSrv.ListenAndServe(); herr != nil && herr != http.ErrServerClosed {
			log.Error(ctx, "syncworker health server error", herr, nil)
		}
	}()

	log.Info(ctx, "syncworker starting", map[string]interface{}{"schedule": *schedule})
	c.Start()
	ready = true

	select {}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func resolveHealthAddr(flagAddr string) string {
	if flagAddr != "" {
		return flagAddr
	}
	port := hubcfg.GetPort("syncworker", 8081)
	return ":" + strconv.Itoa(port)
}

func runSweep(ctx context.Context, log *logging.Logger, store *collabstore.MemStore, syncer *whitelistsync.Syncer) {
	start := time.Now()
	servers, err := store.ListServers(ctx)
	if err != nil {
		log.Error(ctx, "failed to list servers for sync sweep", err, nil)
		return
	}

	var mismatches int
	for _, sd := range servers {
		result, err := syncer.Sync(ctx, sd.ServerID)
		if err != nil {
			log.Error(ctx, "whitelist sync failed", err, map[string]interface{}{"serverId": sd.ServerID})
			continue
		}
		if result.Matched {
			continue
		}
		mismatches++
		_ = store.AppendAudit(ctx, collab.AuditEntry{
			ServerID: sd.ServerID,
			Op:       "whitelist.sync_resolved",
			Result:   collab.AuditSuccess,
			Payload: map[string]interface{}{
				"resolution":      result.Conflict.Resolution,
				"missingOnServer": len(result.MissingOnServer),
				"missingOnCore":   len(result.MissingOnCore),
			},
		})
	}

	log.Info(ctx, "sync sweep complete", map[string]interface{}{
		"servers":    len(servers),
		"mismatches": mismatches,
		"durationMs": time.Since(start).Milliseconds(),
	})
}
