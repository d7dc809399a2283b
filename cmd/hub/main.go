// Command hub runs the U-WBP v2 session hub: the connection lifecycle
// manager, request router, event bus, retry/failover engine, business-error
// degrader, message router and cache/preload layer, coordinated under a
// single dependency graph and exposed over a health/metrics HTTP surface.
package main

import (
	"context"
	"flag"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	hubcfg "github.com/game-hub/wbp-hub/infrastructure/config"
	"github.com/game-hub/wbp-hub/infrastructure/logging"
	slmetrics "github.com/game-hub/wbp-hub/infrastructure/metrics"
	slmiddleware "github.com/game-hub/wbp-hub/infrastructure/middleware"
	"github.com/game-hub/wbp-hub/infrastructure/service"

	"github.com/game-hub/wbp-hub/internal/adapter"
	"github.com/game-hub/wbp-hub/internal/adapter/plugin"
	"github.com/game-hub/wbp-hub/internal/adapter/rcon"
	"github.com/game-hub/wbp-hub/internal/adapter/terminal"
	"github.com/game-hub/wbp-hub/internal/connmgr"
	"github.com/game-hub/wbp-hub/internal/coordinator"
	"github.com/game-hub/wbp-hub/internal/degrader"
	"github.com/game-hub/wbp-hub/internal/eventbus"
	"github.com/game-hub/wbp-hub/internal/failover"
	"github.com/game-hub/wbp-hub/internal/hubcache"
	"github.com/game-hub/wbp-hub/internal/hubconfig"
	"github.com/game-hub/wbp-hub/internal/model"
	"github.com/game-hub/wbp-hub/internal/msgrouter"
	"github.com/game-hub/wbp-hub/internal/router"
	"github.com/game-hub/wbp-hub/internal/security"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address for health/metrics (defaults to PORT env or :8080)")
	flag.Parse()

	ctx := context.Background()
	startedAt := time.Now()
	log := logging.NewFromEnv("hub")
	cfg := hubconfig.Load()

	var met *slmetrics.Metrics
	if slmetrics.Enabled() {
		met = slmetrics.Init("hub")
	} else {
		met = slmetrics.New("hub")
	}

	gate := security.New(log, cfg.Admission, cfg.AuthBackoff)
	bus := eventbus.New()
	quality := failover.NewQualityTracker(cfg.Quality, 0)
	retryEngine := failover.New(cfg.Retry, quality)
	deg := degrader.New(cfg.Degradation)
	msgRouter := msgrouter.New()
	cache := hubcache.New(cfg.Cache)
	reqRouter := router.New(log, met)

	connFactories := map[model.ConnectionMode]adapter.Factory{
		model.ModePlugin:   func() adapter.Adapter { return plugin.New(log) },
		model.ModeRCON:     func() adapter.Adapter { return rcon.New() },
		model.ModeTerminal: func() adapter.Adapter { return terminal.New() },
	}

	mgr := connmgr.New(log, connFactories, func(evt connmgr.TransitionEvent) {
		log.LogSessionEvent(ctx, evt.ServerID, "connectionModeSwitched", true, nil)
	})
	mgr.SetProbeInterval(connmgr.DefaultProbeInterval)
	retryEngine.RequestFailover = func(ctx context.Context, serverID string, avoidMode model.ConnectionMode) error {
		return mgr.Connect(ctx, &model.ServerDescriptor{ServerID: serverID})
	}

	coord := coordinator.New(log)
	coord.SetStopTimeout(15 * time.Second)

	coord.Register(newCacheComponent(cache))
	coord.Register(newServicesComponent(gate, bus, retryEngine, deg, reqRouter), "cache")
	coord.Register(newSessionsComponent(mgr), "services")
	coord.Register(newMsgRouterComponent(msgRouter), "sessions")

	startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
	err := coord.Start(startCtx)
	startCancel()
	if err != nil {
		log.Fatal(ctx, "failed to start hub components", err)
	}

	probes := service.NewProbeManager(10 * time.Second)
	probes.SetReady(true)

	healthChecker := service.NewDeepHealthChecker(5 * time.Second)
	healthChecker.Register("coordinator", func(ctx context.Context) *service.ComponentHealth {
		status, _ := coord.Health(ctx)
		return &service.ComponentHealth{Name: "coordinator", Status: string(status)}
	})
	if resProbe, err := service.NewResourceProbe(cfg.Resources.MaxRSSBytes, cfg.Resources.MaxOpenFDs); err != nil {
		log.Warn(ctx, "resource probe unavailable", map[string]interface{}{"error": err.Error()})
	} else {
		healthChecker.Register("resources", resProbe.Check)
	}

	r := mux.NewRouter()
	r.Use(slmiddleware.LoggingMiddleware(log))
	r.Use(slmiddleware.NewRecoveryMiddleware(log).Handler)
	validationCfg := slmiddleware.DefaultValidationConfig()
	validationCfg.AllowedMethods = []string{http.MethodGet, http.MethodOptions}
	r.Use(slmiddleware.NewValidationMiddleware(validationCfg).Handler)
	r.Use(slmiddleware.NewCORSMiddleware(nil).Handler)
	r.Use(slmiddleware.NewSecurityHeadersMiddleware(nil).Handler)
	r.Use(slmiddleware.NewTimeoutMiddleware(10 * time.Second).Handler)
	r.Use(slmiddleware.NewBodyLimitMiddleware(0).Handler)
	rateLimiter := slmiddleware.NewRateLimiterFromConfig(slmiddleware.DefaultRateLimiterConfig(log))
	stopRateLimiterCleanup := slmiddleware.StartCleanupFromConfig(rateLimiter, slmiddleware.DefaultRateLimiterConfig(log))
	r.Use(rateLimiter.Handler)
	if slmetrics.Enabled() {
		r.Use(slmiddleware.MetricsMiddleware("hub", met))
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/live", probes.LivenessHandler()).Methods(http.MethodGet)
	r.HandleFunc("/ready", probes.ReadinessHandler()).Methods(http.MethodGet)
	r.HandleFunc("/health", service.DeepHealthHandler(healthChecker, "hub", "2.0", false, func() time.Duration {
		return time.Since(startedAt)
	})).Methods(http.MethodGet)

	listenAddr := resolveAddr(*addr)
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           r,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info(ctx, "hub listening", map[string]interface{}{"addr": listenAddr})
		if lerr := server.ListenAndServe(); lerr != nil && lerr != http.ErrServerClosed {
			log.Fatal(ctx, "http server error", lerr)
		}
	}()

	shutdown := slmiddleware.NewGracefulShutdown(server, 30*time.Second)
	shutdown.OnShutdown(func() { probes.SetReady(false) })
	shutdown.OnShutdown(stopRateLimiterCleanup)
	shutdown.OnShutdown(func() {
		stopCtx, stopCancel := context.WithTimeout(ctx, 30*time.Second)
		defer stopCancel()
		coord.Stop(stopCtx)
	})
	shutdown.ListenForSignals()

	log.Info(ctx, "hub running, awaiting shutdown signal", nil)
	shutdown.Wait()
	log.Info(ctx, "hub stopped", nil)
}

func resolveAddr(flagAddr string) string {
	if flagAddr != "" {
		return flagAddr
	}
	port := hubcfg.GetPort("hub", 8080)
	return ":" + strconv.Itoa(port)
}
