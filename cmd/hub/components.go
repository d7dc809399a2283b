package main

import (
	"context"

	"github.com/game-hub/wbp-hub/infrastructure/service"
	"github.com/game-hub/wbp-hub/internal/connmgr"
	"github.com/game-hub/wbp-hub/internal/degrader"
	"github.com/game-hub/wbp-hub/internal/eventbus"
	"github.com/game-hub/wbp-hub/internal/failover"
	"github.com/game-hub/wbp-hub/internal/hubcache"
	"github.com/game-hub/wbp-hub/internal/msgrouter"
	"github.com/game-hub/wbp-hub/internal/router"
	"github.com/game-hub/wbp-hub/internal/security"
)

// cacheComponent wraps the hubcache layer as the coordinator's first
// dependency node; it is already running once constructed, so Start is a
// no-op and Stop halts its sweep goroutine.
type cacheComponent struct {
	cache *hubcache.Cache
}

func newCacheComponent(c *hubcache.Cache) *cacheComponent { return &cacheComponent{cache: c} }

func (c *cacheComponent) Name() string                 { return "cache" }
func (c *cacheComponent) Start(ctx context.Context) error { return nil }
func (c *cacheComponent) Stop(ctx context.Context) error {
	c.cache.Stop()
	return nil
}
func (c *cacheComponent) Health(ctx context.Context) *service.ComponentHealth {
	return &service.ComponentHealth{Name: "cache", Status: "healthy"}
}

// servicesComponent groups the stateless coordination services (security
// gate, event bus, retry/failover engine, degrader, request router) into a
// single coordinator node: none of them owns a goroutine that needs its own
// start/stop ordering, but they all depend on the cache being up first and
// must be up before sessions are accepted.
type servicesComponent struct {
	gate    *security.Gate
	bus     *eventbus.Bus
	retry   *failover.Engine
	deg     *degrader.Degrader
	router  *router.Router
}

func newServicesComponent(gate *security.Gate, bus *eventbus.Bus, retry *failover.Engine, deg *degrader.Degrader, r *router.Router) *servicesComponent {
	return &servicesComponent{gate: gate, bus: bus, retry: retry, deg: deg, router: r}
}

func (s *servicesComponent) Name() string                    { return "services" }
func (s *servicesComponent) Start(ctx context.Context) error { return nil }
func (s *servicesComponent) Stop(ctx context.Context) error  { return nil }
func (s *servicesComponent) Health(ctx context.Context) *service.ComponentHealth {
	return &service.ComponentHealth{Name: "services", Status: "healthy"}
}

// sessionsComponent wraps the connection-mode manager. Stop is a no-op:
// live sessions are not disconnected by this component during shutdown.
type sessionsComponent struct {
	mgr *connmgr.Manager
}

func newSessionsComponent(mgr *connmgr.Manager) *sessionsComponent {
	return &sessionsComponent{mgr: mgr}
}

func (s *sessionsComponent) Name() string                    { return "sessions" }
func (s *sessionsComponent) Start(ctx context.Context) error { return nil }
func (s *sessionsComponent) Stop(ctx context.Context) error  { return nil }
func (s *sessionsComponent) Health(ctx context.Context) *service.ComponentHealth {
	return &service.ComponentHealth{Name: "sessions", Status: "healthy"}
}

// msgRouterComponent wraps the chat-group message router, the last node in
// the dependency graph since it fans out through sessions to servers.
type msgRouterComponent struct {
	router *msgrouter.Router
}

func newMsgRouterComponent(r *msgrouter.Router) *msgRouterComponent {
	return &msgRouterComponent{router: r}
}

func (m *msgRouterComponent) Name() string                    { return "msgrouter" }
func (m *msgRouterComponent) Start(ctx context.Context) error { return nil }
func (m *msgRouterComponent) Stop(ctx context.Context) error  { return nil }
func (m *msgRouterComponent) Health(ctx context.Context) *service.ComponentHealth {
	errCount := m.router.RoutingErrors24h()
	status := "healthy"
	if errCount > 100 {
		status = "degraded"
	}
	return &service.ComponentHealth{Name: "msgrouter", Status: status}
}
