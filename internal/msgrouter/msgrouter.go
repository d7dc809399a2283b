// Package msgrouter implements the message router (C9): the chat-group to
// server routing table, a filter pipeline, per-binding rate limiting,
// template rendering and a rolling routing-error health signal.
package msgrouter

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/game-hub/wbp-hub/infrastructure/errors"
	"github.com/game-hub/wbp-hub/infrastructure/ratelimit"
	"github.com/game-hub/wbp-hub/internal/collab"
	"github.com/game-hub/wbp-hub/internal/model"
)

// Router maps chat groups to servers and applies the filter/rate-limit/
// template pipeline before handing a message off to its bindings.
type Router struct {
	mu       sync.RWMutex
	bindings map[string][]*model.Binding // keyed by groupId

	limiters   map[string]*ratelimit.RateLimiter // keyed by bindingId
	limitersMu sync.Mutex

	errMu     sync.Mutex
	errEvents []time.Time
}

// New creates an empty message router.
func New() *Router {
	return &Router{
		bindings: make(map[string][]*model.Binding),
		limiters: make(map[string]*ratelimit.RateLimiter),
	}
}

// AddBinding registers a binding under its group.
func (r *Router) AddBinding(b *model.Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[b.GroupID] = append(r.bindings[b.GroupID], b)
}

// RemoveBinding removes a binding from its group.
func (r *Router) RemoveBinding(bindingID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for groupID, bs := range r.bindings {
		for i, b := range bs {
			if b.BindingID == bindingID {
				r.bindings[groupID] = append(bs[:i], bs[i+1:]...)
				return
			}
		}
	}
}

// BindingsFor returns every enabled binding of a given kind registered for
// a group; disabled bindings are skipped.
func (r *Router) BindingsFor(groupID string, kind model.BindingKind) []*model.Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Binding
	for _, b := range r.bindings[groupID] {
		if b.BindingKind == kind && !b.Disabled {
			out = append(out, b)
		}
	}
	return out
}

// Route runs msg through every matching binding's filter pipeline and rate
// limiter, rendering its format template, and returns one rendered
// outbound payload per binding that accepted the message.
func (r *Router) Route(ctx context.Context, msg collab.GroupMessage, kind model.BindingKind) ([]string, error) {
	bindings := r.BindingsFor(msg.GroupID, kind)
	if len(bindings) == 0 {
		return nil, nil
	}

	var out []string
	var lastErr error
	for _, b := range bindings {
		content, err := r.applyFilters(b, msg.Content)
		if err != nil {
			r.recordError()
			lastErr = err
			continue
		}
		if content == "" {
			continue
		}
		if !r.allow(b) {
			r.recordError()
			lastErr = errors.RateLimited(0).WithDetails("bindingId", b.BindingID)
			continue
		}

		rendered, err := renderTemplate(b.FormatTemplate, msg, content)
		if err != nil {
			r.recordError()
			lastErr = err
			continue
		}
		b.LastActivity = time.Now()
		out = append(out, rendered)
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// applyFilters runs content through a binding's filter rules in order.
// A "block" rule that matches stops the pipeline and returns "". A
// "transform" rule rewrites the content and continues.
func (r *Router) applyFilters(b *model.Binding, content string) (string, error) {
	for _, rule := range b.Filters {
		switch rule.Type {
		case "regex":
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return "", errors.InvalidRequest("invalid filter regex: " + rule.Pattern)
			}
			if re.MatchString(content) {
				if rule.Action == "block" {
					return "", nil
				}
				content = re.ReplaceAllString(content, "")
			}
		case "keyword":
			if strings.Contains(strings.ToLower(content), strings.ToLower(rule.Pattern)) {
				if rule.Action == "block" {
					return "", nil
				}
				content = strings.ReplaceAll(content, rule.Pattern, "")
			}
		case "length":
			var max int
			if _, err := fmt.Sscanf(rule.Pattern, "%d", &max); err == nil && max > 0 && len(content) > max {
				if rule.Action == "block" {
					return "", nil
				}
				content = content[:max]
			}
		}
	}
	return content, nil
}

// allow checks a binding's rate limit, lazily creating its limiter.
func (r *Router) allow(b *model.Binding) bool {
	if b.RateLimitMax <= 0 {
		return true
	}
	window := b.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}

	r.limitersMu.Lock()
	lim, ok := r.limiters[b.BindingID]
	if !ok {
		perSecond := float64(b.RateLimitMax) / window.Seconds()
		lim = ratelimit.New(ratelimit.RateLimitConfig{
			RequestsPerSecond: perSecond,
			Burst:             b.RateLimitMax,
			Window:            window,
		})
		r.limiters[b.BindingID] = lim
	}
	r.limitersMu.Unlock()

	return lim.Allow()
}

func renderTemplate(tmpl string, msg collab.GroupMessage, content string) (string, error) {
	if tmpl == "" {
		return content, nil
	}
	t, err := template.New("binding").Parse(tmpl)
	if err != nil {
		return "", errors.InvalidRequest("invalid format template")
	}
	var sb strings.Builder
	data := map[string]interface{}{
		"UserName": msg.UserName,
		"UserID":   msg.UserID,
		"Content":  content,
		"GroupID":  msg.GroupID,
	}
	if err := t.Execute(&sb, data); err != nil {
		return "", errors.Internal("template render failed", err)
	}
	return sb.String(), nil
}

func (r *Router) recordError() {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	r.errEvents = append(r.errEvents, time.Now())
}

// RoutingErrors24h returns the number of routing errors recorded in the
// trailing 24 hours, pruning older entries as a side effect.
func (r *Router) RoutingErrors24h() int {
	r.errMu.Lock()
	defer r.errMu.Unlock()

	cutoff := time.Now().Add(-24 * time.Hour)
	i := 0
	for i < len(r.errEvents) && r.errEvents[i].Before(cutoff) {
		i++
	}
	r.errEvents = r.errEvents[i:]
	return len(r.errEvents)
}
