// Package coordinator implements the service coordinator (C11): a fixed
// dependency graph of named components, each exposing Start/Stop/Health,
// started in topological order and stopped in reverse with a per-component
// timeout, plus health aggregation across the graph.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/game-hub/wbp-hub/infrastructure/errors"
	"github.com/game-hub/wbp-hub/infrastructure/logging"
	"github.com/game-hub/wbp-hub/infrastructure/service"
)

// DefaultStopTimeout bounds how long a single component's Stop may run
// before the coordinator force-proceeds to the next one.
const DefaultStopTimeout = 10 * time.Second

// Component is a coordinator-managed unit of the hub: the database layer,
// the adapter/connection manager, the session registry, the message
// router, and so on.
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) *service.ComponentHealth
}

// node wraps a registered Component with its declared dependencies.
type node struct {
	component Component
	dependsOn []string
}

// Coordinator owns the startup/shutdown ordering and health aggregation
// for every component in the hub.
type Coordinator struct {
	log *logging.Logger

	mu    sync.Mutex
	nodes map[string]*node
	order []string // topological start order, computed by Start

	stopTimeout time.Duration
	started     bool
}

// New creates a service coordinator.
func New(log *logging.Logger) *Coordinator {
	return &Coordinator{
		log:         log,
		nodes:       make(map[string]*node),
		stopTimeout: DefaultStopTimeout,
	}
}

// SetStopTimeout overrides the per-component shutdown timeout.
func (c *Coordinator) SetStopTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimeout = d
}

// Register adds a component to the dependency graph. dependsOn names
// components that must be started before this one and stopped after it.
func (c *Coordinator) Register(comp Component, dependsOn ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[comp.Name()] = &node{component: comp, dependsOn: dependsOn}
}

// Start resolves the dependency graph into topological order and starts
// every component in that order, stopping and returning an error at the
// first failure (components already started are left running — callers
// should call Stop to unwind them).
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	order, err := topoSort(c.nodes)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.order = order
	c.mu.Unlock()

	for _, name := range order {
		n := c.nodes[name]
		start := time.Now()
		if err := n.component.Start(ctx); err != nil {
			return errors.Internal(fmt.Sprintf("component %q failed to start", name), err)
		}
		if c.log != nil {
			c.log.Info(ctx, "component started", map[string]interface{}{
				"component":  name,
				"durationMs": time.Since(start).Milliseconds(),
			})
		}
	}

	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	return nil
}

// Stop shuts every started component down in reverse start order. Each
// component gets its own timeout; a component that exceeds it is
// abandoned (force-stopped) and the coordinator proceeds to the next one
// rather than blocking shutdown on a single stuck component.
func (c *Coordinator) Stop(ctx context.Context) {
	c.mu.Lock()
	order := c.order
	timeout := c.stopTimeout
	c.started = false
	c.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		n := c.nodes[name]

		stopCtx, cancel := context.WithTimeout(ctx, timeout)
		done := make(chan error, 1)
		go func() { done <- n.component.Stop(stopCtx) }()

		select {
		case err := <-done:
			if err != nil && c.log != nil {
				c.log.Error(ctx, "component stop returned error", err, map[string]interface{}{"component": name})
			}
		case <-stopCtx.Done():
			if c.log != nil {
				c.log.Error(ctx, "component stop timed out, force-proceeding", stopCtx.Err(), map[string]interface{}{
					"component": name,
					"timeoutMs": timeout.Milliseconds(),
				})
			}
		}
		cancel()
	}
}

// AggregateStatus is the rolled-up health of the whole graph.
type AggregateStatus string

const (
	StatusHealthy   AggregateStatus = "healthy"
	StatusDegraded  AggregateStatus = "degraded"
	StatusUnhealthy AggregateStatus = "unhealthy"
)

// Health runs every component's Health check and rolls the results up:
// unhealthy if any dependency is unhealthy, degraded if any is degraded
// (and none unhealthy), healthy otherwise.
func (c *Coordinator) Health(ctx context.Context) (AggregateStatus, []*service.ComponentHealth) {
	c.mu.Lock()
	nodes := make([]*node, 0, len(c.nodes))
	for _, n := range c.nodes {
		nodes = append(nodes, n)
	}
	c.mu.Unlock()

	results := make([]*service.ComponentHealth, 0, len(nodes))
	overall := StatusHealthy
	for _, n := range nodes {
		h := n.component.Health(ctx)
		if h == nil {
			h = &service.ComponentHealth{Name: n.component.Name(), Status: "unknown"}
		}
		results = append(results, h)
		switch h.Status {
		case "unhealthy":
			overall = StatusUnhealthy
		case "degraded":
			if overall != StatusUnhealthy {
				overall = StatusDegraded
			}
		}
	}
	return overall, results
}

// topoSort computes a dependency-respecting start order via iterative
// Kahn's algorithm, returning an error if the graph has an unresolved
// dependency or a cycle.
func topoSort(nodes map[string]*node) ([]string, error) {
	inDegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))

	for name := range nodes {
		inDegree[name] = 0
	}
	for name, n := range nodes {
		for _, dep := range n.dependsOn {
			if _, ok := nodes[dep]; !ok {
				return nil, errors.Internal(fmt.Sprintf("component %q depends on unregistered component %q", name, dep), nil)
			}
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var queue []string
	for name, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}

	var order []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)
		for _, dep := range dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, errors.Internal("component dependency graph has a cycle", nil)
	}
	return order, nil
}
