package httputil

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/game-hub/wbp-hub/infrastructure/runtime"
)

// BaseURLOptions configures NormalizeBaseURL.
type BaseURLOptions struct {
	// RequireHTTPSInStrictMode enforces https (or wss, with AllowWebsocket) URLs
	// whenever runtime.StrictIdentityMode() is enabled (production or hub mTLS bundle).
	RequireHTTPSInStrictMode bool

	// AllowWebsocket accepts ws/wss schemes alongside http/https, for callers
	// normalizing a persistent-connection endpoint rather than a REST base URL.
	AllowWebsocket bool
}

// NormalizeBaseURL normalizes and validates a base URL used for service-to-service calls.
//
// It trims whitespace, removes trailing slashes, validates scheme/host, disallows
// user info, and optionally enforces https in strict identity mode.
func NormalizeBaseURL(raw string, opts BaseURLOptions) (string, *url.URL, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(raw), "/")
	if baseURL == "" {
		return "", nil, fmt.Errorf("base URL is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", nil, fmt.Errorf("base URL must be a valid URL")
	}
	if parsed.User != nil {
		return "", nil, fmt.Errorf("base URL must not include user info")
	}
	validSchemes := map[string]bool{"http": true, "https": true}
	if opts.AllowWebsocket {
		validSchemes["ws"] = true
		validSchemes["wss"] = true
	}
	if !validSchemes[parsed.Scheme] {
		if opts.AllowWebsocket {
			return "", nil, fmt.Errorf("base URL scheme must be http, https, ws, or wss")
		}
		return "", nil, fmt.Errorf("base URL scheme must be http or https")
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return "", nil, fmt.Errorf("base URL must not include query or fragment")
	}
	if opts.RequireHTTPSInStrictMode && runtime.StrictIdentityMode() {
		secure := parsed.Scheme == "https" || (opts.AllowWebsocket && parsed.Scheme == "wss")
		if !secure {
			return "", nil, fmt.Errorf("base URL must use a TLS scheme in strict identity mode")
		}
	}

	return baseURL, parsed, nil
}

// NormalizeServiceBaseURL is the standard normalization used by service clients.
// It enforces https whenever strict identity mode is enabled.
func NormalizeServiceBaseURL(raw string) (string, *url.URL, error) {
	return NormalizeBaseURL(raw, BaseURLOptions{RequireHTTPSInStrictMode: true})
}

// NormalizeWebsocketURL validates a persistent-connection endpoint (ws/wss, or
// http/https for callers that upgrade in-band). It enforces wss/https whenever
// strict identity mode is enabled.
func NormalizeWebsocketURL(raw string) (string, *url.URL, error) {
	return NormalizeBaseURL(raw, BaseURLOptions{RequireHTTPSInStrictMode: true, AllowWebsocket: true})
}
