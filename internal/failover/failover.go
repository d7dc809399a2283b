// Package failover implements the retry/failover engine (C7): exponential
// backoff with jitter for retrying an operation, a 0-100 connection-quality
// score, and cross-mode failover requests issued to the connection-mode
// manager when quality degrades past a threshold.
//
// Retry and backoff delegate directly to infrastructure/resilience's
// Retry/RetryConfig (itself backed by cenkalti/backoff/v4 conventions)
// rather than reimplementing exponential-backoff math a second time.
package failover

import (
	"context"
	"sync"
	"time"

	"github.com/game-hub/wbp-hub/infrastructure/resilience"
	"github.com/game-hub/wbp-hub/internal/hubconfig"
	"github.com/game-hub/wbp-hub/internal/model"
)

// sample is one recorded command outcome used for quality scoring.
type sample struct {
	success bool
	latency time.Duration
	at      time.Time
}

// QualityTracker scores a connection's recent reliability on a 0-100 scale.
type QualityTracker struct {
	mu      sync.Mutex
	samples map[string][]sample // keyed by serverId
	window  int
	cfg     hubconfig.QualityConfig
}

// NewQualityTracker creates a tracker retaining the last `window` samples
// per server.
func NewQualityTracker(cfg hubconfig.QualityConfig, window int) *QualityTracker {
	if window <= 0 {
		window = 20
	}
	return &QualityTracker{samples: make(map[string][]sample), window: window, cfg: cfg}
}

// Record registers one command outcome for a server.
func (q *QualityTracker) Record(serverID string, success bool, latency time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.samples[serverID]
	s = append(s, sample{success: success, latency: latency, at: time.Now()})
	if len(s) > q.window {
		s = s[len(s)-q.window:]
	}
	q.samples[serverID] = s
}

// Score computes the current 0-100 connection quality for a server.
// With no samples yet, a server is assumed healthy (100).
func (q *QualityTracker) Score(serverID string) float64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.samples[serverID]
	if len(s) == 0 {
		return 100
	}

	var failures int
	var totalLatency time.Duration
	for _, sm := range s {
		if !sm.success {
			failures++
		}
		totalLatency += sm.latency
	}
	failureRate := float64(failures) / float64(len(s))
	avgLatencyMs := float64(totalLatency.Milliseconds()) / float64(len(s))

	score := 100.0
	score -= failureRate * 70
	if q.cfg.LatencyThresholdMs > 0 && avgLatencyMs > float64(q.cfg.LatencyThresholdMs) {
		over := (avgLatencyMs - float64(q.cfg.LatencyThresholdMs)) / float64(q.cfg.LatencyThresholdMs)
		score -= clamp(over*30, 0, 30)
	}
	return clamp(score, 0, 100)
}

// IsDegraded reports whether a server's quality has fallen below the
// configured threshold.
func (q *QualityTracker) IsDegraded(serverID string) bool {
	threshold := q.cfg.ConnectionQualityThreshold
	if threshold <= 0 {
		threshold = 50
	}
	return q.Score(serverID) < threshold
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Engine retries operations with exponential backoff and requests
// cross-mode failover when a server's connection quality degrades.
type Engine struct {
	cfg     hubconfig.RetryConfig
	quality *QualityTracker

	// RequestFailover is invoked when a server should switch away from its
	// current mode. Wired to connmgr.Manager.Connect by the caller.
	RequestFailover func(ctx context.Context, serverID string, avoidMode model.ConnectionMode) error
}

// New creates a retry/failover engine.
func New(cfg hubconfig.RetryConfig, quality *QualityTracker) *Engine {
	return &Engine{cfg: cfg, quality: quality}
}

// retryConfig adapts hubconfig.RetryConfig to resilience.RetryConfig.
func (e *Engine) retryConfig() resilience.RetryConfig {
	jitter := 0.0
	if e.cfg.JitterEnabled {
		jitter = 0.2
	}
	return resilience.RetryConfig{
		MaxAttempts:  e.cfg.MaxRetryAttempts,
		InitialDelay: e.cfg.BaseRetryInterval,
		MaxDelay:     e.cfg.MaxRetryInterval,
		Multiplier:   e.cfg.ExponentialBackoffMultiplier,
		Jitter:       jitter,
	}
}

// Execute retries fn with exponential backoff, then records the overall
// outcome and total elapsed time once against the server's quality score.
func (e *Engine) Execute(ctx context.Context, serverID string, fn func() error) error {
	start := time.Now()
	err := resilience.Retry(ctx, e.retryConfig(), fn)
	if e.quality != nil {
		e.quality.Record(serverID, err == nil, time.Since(start))
	}
	return err
}

// MaybeFailover checks the server's current quality and, if degraded and
// failover is enabled, requests a mode switch away from currentMode.
func (e *Engine) MaybeFailover(ctx context.Context, serverID string, currentMode model.ConnectionMode) error {
	if !e.cfg.EnableFailover || e.quality == nil || e.RequestFailover == nil {
		return nil
	}
	if !e.quality.IsDegraded(serverID) {
		return nil
	}
	return e.RequestFailover(ctx, serverID, currentMode)
}
