// Package runtime provides environment/runtime detection helpers shared across the service layer.
package runtime

import (
	"os"
	"strings"
	"sync"
)

// strictIdentityModeOnce caches the strict identity mode check at startup.
var (
	strictIdentityModeOnce  sync.Once
	strictIdentityModeValue bool
)

// ResetStrictIdentityModeCache resets the cached strict identity mode value.
// This should only be used in tests.
func ResetStrictIdentityModeCache() {
	strictIdentityModeOnce = sync.Once{}
	strictIdentityModeValue = false
}

// StrictIdentityMode returns true when the connection-security gate should fail closed
// on identity/security boundaries (e.g. only trust a token's claimed server identity
// once it has been validated, never assume it from an untrusted header).
//
// We treat a configured hub mTLS certificate bundle as "strict" too, so a mis-set
// HUB_ENV cannot silently weaken trust boundaries once certificates are provisioned.
func StrictIdentityMode() bool {
	strictIdentityModeOnce.Do(func() {
		env := Env()
		hasHubTLS := strings.TrimSpace(os.Getenv("HUB_TLS_CERT")) != "" &&
			strings.TrimSpace(os.Getenv("HUB_TLS_KEY")) != "" &&
			strings.TrimSpace(os.Getenv("HUB_TLS_ROOT_CA")) != ""
		strictIdentityModeValue = env == Production || hasHubTLS
	})
	return strictIdentityModeValue
}
