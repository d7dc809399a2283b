package middleware

import (
	"testing"
	"time"

	"github.com/game-hub/wbp-hub/infrastructure/logging"
)

func TestNewRateLimiterFromConfig_Defaults(t *testing.T) {
	logger := logging.New("test", "info", "json")
	rl := NewRateLimiterFromConfig(DefaultRateLimiterConfig(logger))

	if rl == nil {
		t.Fatal("NewRateLimiterFromConfig() returned nil")
	}
	if rl.maxSize != 10000 {
		t.Errorf("maxSize = %d, want 10000", rl.maxSize)
	}
	if rl.limiterTTL != 24*time.Hour {
		t.Errorf("limiterTTL = %v, want 24h", rl.limiterTTL)
	}
}

func TestNewRateLimiterFromConfig_StrictVsLenient(t *testing.T) {
	logger := logging.New("test", "info", "json")
	strict := NewRateLimiterFromConfig(StrictRateLimiterConfig(logger))
	lenient := NewRateLimiterFromConfig(LenientRateLimiterConfig(logger))

	if strict.limit >= lenient.limit {
		t.Errorf("strict limit %d should be lower than lenient limit %d", strict.limit, lenient.limit)
	}
}

func TestNewRateLimiterFromConfig_FixedWindow(t *testing.T) {
	logger := logging.New("test", "info", "json")
	cfg := RateLimiterConfig{RequestsPerSecond: 60, Window: time.Minute, Burst: 10}
	rl := NewRateLimiterFromConfig(cfg)

	if rl.window != time.Minute {
		t.Errorf("window = %v, want 1m", rl.window)
	}
	if rl.limit != 3600 {
		t.Errorf("limit = %d, want 3600", rl.limit)
	}
}

func TestStartCleanupFromConfig(t *testing.T) {
	logger := logging.New("test", "info", "json")
	rl := NewRateLimiterFromConfig(DefaultRateLimiterConfig(logger))

	cfg := DefaultRateLimiterConfig(logger)
	cfg.CleanupInterval = 10 * time.Millisecond
	stop := StartCleanupFromConfig(rl, cfg)
	defer stop()

	time.Sleep(30 * time.Millisecond)
}
