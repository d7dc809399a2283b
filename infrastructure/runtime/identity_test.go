package runtime

import "testing"

func TestStrictIdentityMode(t *testing.T) {
	t.Run("production env", func(t *testing.T) {
		ResetStrictIdentityModeCache()
		t.Setenv("HUB_ENV", "production")
		if !StrictIdentityMode() {
			t.Fatalf("StrictIdentityMode() = false, want true")
		}
	})

	t.Run("hub tls configured", func(t *testing.T) {
		ResetStrictIdentityModeCache()
		t.Setenv("HUB_ENV", "development")
		t.Setenv("HUB_TLS_CERT", "cert")
		t.Setenv("HUB_TLS_KEY", "key")
		t.Setenv("HUB_TLS_ROOT_CA", "ca")
		if !StrictIdentityMode() {
			t.Fatalf("StrictIdentityMode() = false, want true")
		}
	})

	t.Run("dev without tls", func(t *testing.T) {
		ResetStrictIdentityModeCache()
		t.Setenv("HUB_ENV", "development")
		if StrictIdentityMode() {
			t.Fatalf("StrictIdentityMode() = true, want false")
		}
	})
}
