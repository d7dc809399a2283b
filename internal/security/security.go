// Package security implements the connection-security gate (C4):
// admission control, progressive authentication backoff, IP
// allowlisting, and cooldown-gated security alerts.
//
// CIDR matching uses net/netip exclusively (never hand-rolled signed
// bit arithmetic on net.IP byte slices), per the Open Question decision
// recorded in DESIGN.md: net/netip's Prefix.Contains is unsigned by
// construction and eliminates an entire bug class the teacher's own
// codebase never had to deal with because it never did CIDR math at all.
package security

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/game-hub/wbp-hub/infrastructure/errors"
	"github.com/game-hub/wbp-hub/infrastructure/logging"
	"github.com/game-hub/wbp-hub/infrastructure/ratelimit"
	"github.com/game-hub/wbp-hub/internal/hubconfig"
	"github.com/game-hub/wbp-hub/internal/model"
)

// Gate enforces connection admission limits and authentication backoff.
type Gate struct {
	log *logging.Logger
	cfg hubconfig.AdmissionConfig
	bo  hubconfig.AuthBackoffConfig

	mu            sync.Mutex
	totalConns    int
	connsByIP     map[string]int
	connsByServer map[string]int
	failures      map[string]*model.AuthFailureRecord // key: ip|serverId
	lastAlert     time.Time

	allowlist []netip.Prefix

	connRateMu sync.Mutex
	connRate   map[string]*ratelimit.RateLimiter // key: ip
}

// New creates a connection-security gate.
func New(log *logging.Logger, cfg hubconfig.AdmissionConfig, bo hubconfig.AuthBackoffConfig) *Gate {
	return &Gate{
		log:           log,
		cfg:           cfg,
		bo:            bo,
		connsByIP:     make(map[string]int),
		connsByServer: make(map[string]int),
		failures:      make(map[string]*model.AuthFailureRecord),
		connRate:      make(map[string]*ratelimit.RateLimiter),
	}
}

// rateLimiterFor lazily creates the per-IP connect-rate limiter.
func (g *Gate) rateLimiterFor(ip string) *ratelimit.RateLimiter {
	g.connRateMu.Lock()
	defer g.connRateMu.Unlock()
	lim, ok := g.connRate[ip]
	if !ok {
		lim = ratelimit.New(ratelimit.RateLimitConfig{
			RequestsPerSecond: g.cfg.ConnectRatePerIP,
			Burst:             g.cfg.ConnectBurstPerIP,
		})
		g.connRate[ip] = lim
	}
	return lim
}

// SetAllowlist replaces the IP ranges that bypass admission caps and backoff.
func (g *Gate) SetAllowlist(cidrs []string) error {
	var prefixes []netip.Prefix
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(c)
		if err != nil {
			addr, aerr := netip.ParseAddr(c)
			if aerr != nil {
				return errors.InvalidRequest("invalid CIDR or IP in allowlist: " + c)
			}
			bits := 32
			if addr.Is6() {
				bits = 128
			}
			p = netip.PrefixFrom(addr, bits)
		}
		prefixes = append(prefixes, p)
	}
	g.mu.Lock()
	g.allowlist = prefixes
	g.mu.Unlock()
	return nil
}

func (g *Gate) isAllowlisted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, p := range g.allowlist {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Admit checks whether a new connection from ip to serverID may proceed
// under the configured admission caps.
func (g *Gate) Admit(ctx context.Context, ip, serverID string) error {
	if g.isAllowlisted(ip) {
		return nil
	}

	if g.cfg.ConnectRatePerIP > 0 && g.rateLimiterFor(ip).LimitExceeded() {
		return errors.IPNotAllowed(ip).WithDetails("reason", "connection attempt rate exceeded")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cfg.MaxTotalConnections > 0 && g.totalConns >= g.cfg.MaxTotalConnections {
		return errors.ServerUnavailable(serverID).WithDetails("reason", "total connection limit reached")
	}
	if g.cfg.MaxConnectionsPerIP > 0 && g.connsByIP[ip] >= g.cfg.MaxConnectionsPerIP {
		return errors.IPNotAllowed(ip).WithDetails("reason", "per-ip connection limit reached")
	}
	if g.cfg.MaxConnectionsPerServer > 0 && g.connsByServer[serverID] >= g.cfg.MaxConnectionsPerServer {
		return errors.ServerUnavailable(serverID).WithDetails("reason", "per-server connection limit reached")
	}

	g.totalConns++
	g.connsByIP[ip]++
	g.connsByServer[serverID]++
	return nil
}

// Release returns admission slots held by a closed connection.
func (g *Gate) Release(ip, serverID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.totalConns > 0 {
		g.totalConns--
	}
	if g.connsByIP[ip] > 0 {
		g.connsByIP[ip]--
	}
	if g.connsByServer[serverID] > 0 {
		g.connsByServer[serverID]--
	}
}

// CheckAuthBackoff reports whether ip/serverID is currently blocked from
// attempting authentication, and the delay that must still elapse if not.
func (g *Gate) CheckAuthBackoff(ip, serverID string) (blocked bool, wait time.Duration) {
	if g.isAllowlisted(ip) {
		return false, 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.failures[ip+"|"+serverID]
	if !ok {
		return false, 0
	}
	now := time.Now()
	if rec.Blocked && now.Before(rec.BlockUntil) {
		return true, rec.BlockUntil.Sub(now)
	}
	if now.Before(rec.NextAllowedAt) {
		return false, rec.NextAllowedAt.Sub(now)
	}
	return false, 0
}

// RecordAuthFailure registers a failed authentication attempt, applying
// progressive backoff and, past the configured threshold, a hard block.
func (g *Gate) RecordAuthFailure(ip, serverID string) *model.AuthFailureRecord {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := ip + "|" + serverID
	now := time.Now()
	rec, ok := g.failures[key]
	if !ok || now.Sub(rec.LastFailure) > g.bo.ResetWindow {
		rec = &model.AuthFailureRecord{IP: ip, ServerID: serverID, FirstFailure: now}
		g.failures[key] = rec
	}

	rec.Count++
	rec.LastFailure = now

	delay := backoffDelay(g.bo, rec.Count)
	rec.NextAllowedAt = now.Add(delay)

	if rec.Count >= g.bo.MaxFailuresBeforeBlock {
		rec.Blocked = true
		rec.BlockUntil = now.Add(g.bo.BlockDuration)
		g.maybeAlert(now)
	}
	return rec
}

// ResetAuthFailures clears the failure record after a successful auth.
func (g *Gate) ResetAuthFailures(ip, serverID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.failures, ip+"|"+serverID)
}

func backoffDelay(bo hubconfig.AuthBackoffConfig, attempt int) time.Duration {
	delay := bo.BaseDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * bo.BackoffMultiplier)
		if delay > bo.MaxDelay {
			return bo.MaxDelay
		}
	}
	if delay > bo.MaxDelay {
		delay = bo.MaxDelay
	}
	return delay
}

// maybeAlert logs a security alert, rate-limited by the configured cooldown.
// Caller must hold g.mu.
func (g *Gate) maybeAlert(now time.Time) {
	if now.Sub(g.lastAlert) < g.bo.AlertCooldown {
		return
	}
	g.lastAlert = now
	if g.log != nil {
		g.log.LogSessionEvent(context.Background(), "", "security_alert_auth_block", false, nil)
	}
}
