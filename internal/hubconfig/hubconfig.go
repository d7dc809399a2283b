// Package hubconfig loads the hub's typed configuration from environment
// variables, following spec's configuration-key table. Each component
// constructor takes the narrow config struct it needs rather than a global
// singleton, per the teacher's dependency-injection style.
package hubconfig

import (
	"time"

	"github.com/game-hub/wbp-hub/infrastructure/config"
)

// AdmissionConfig holds the connection-security gate's admission caps.
type AdmissionConfig struct {
	MaxTotalConnections     int
	MaxConnectionsPerIP     int
	MaxConnectionsPerServer int

	// ConnectRatePerIP and ConnectBurstPerIP bound the rate of new connection
	// attempts from a single IP, independent of the concurrent-connection caps
	// above: a client can stay under MaxConnectionsPerIP while still hammering
	// the gate with rapid connect/disconnect cycles.
	ConnectRatePerIP  float64
	ConnectBurstPerIP int
}

// AuthBackoffConfig holds the progressive authentication backoff parameters.
type AuthBackoffConfig struct {
	BaseDelay              time.Duration
	MaxDelay               time.Duration
	BackoffMultiplier      float64
	ResetWindow            time.Duration
	MaxFailuresBeforeBlock int
	BlockDuration          time.Duration
	AlertCooldown          time.Duration
}

// RetryConfig holds the retry/failover engine's backoff and failover parameters.
type RetryConfig struct {
	MaxRetryAttempts             int
	BaseRetryInterval            time.Duration
	MaxRetryInterval             time.Duration
	ExponentialBackoffMultiplier float64
	JitterEnabled                bool
	EnableFailover               bool
	FailoverModes                []string
	FailoverDelay                time.Duration
}

// QualityConfig holds connection-quality scoring thresholds.
type QualityConfig struct {
	ConnectionQualityThreshold float64
	FailureRateThreshold       float64
	LatencyThresholdMs         int64
}

// DegradationConfig holds the business-error degrader's parameters.
type DegradationConfig struct {
	MaxCachedOperations        int
	CacheExpiration            time.Duration
	ConflictResolutionStrategy string
	EnableGracefulDegradation  bool
	MaxPermissionRetries       int
}

// CacheConfig holds the cache/preload layer's parameters.
type CacheConfig struct {
	MaxBytes          int64
	DefaultTTL        time.Duration
	EvictionPolicy    string
	CompressionEnabled bool
	PreloadEnabled    bool
	PreloadInterval   time.Duration
}

// ProtocolConfig holds wire-protocol timing parameters.
type ProtocolConfig struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	RequestTimeout    time.Duration
}

// ResourceConfig holds the deep-health resource probe's alert thresholds.
type ResourceConfig struct {
	MaxRSSBytes uint64
	MaxOpenFDs  int32
}

// HubConfig aggregates every component's configuration.
type HubConfig struct {
	Admission   AdmissionConfig
	AuthBackoff AuthBackoffConfig
	Retry       RetryConfig
	Quality     QualityConfig
	Degradation DegradationConfig
	Cache       CacheConfig
	Protocol    ProtocolConfig
	Resources   ResourceConfig
}

// Load reads HubConfig from the environment, applying spec-documented defaults.
func Load() HubConfig {
	return HubConfig{
		Admission: AdmissionConfig{
			MaxTotalConnections:     config.GetEnvInt("HUB_MAX_TOTAL_CONNECTIONS", 10000),
			MaxConnectionsPerIP:     config.GetEnvInt("HUB_MAX_CONNECTIONS_PER_IP", 20),
			MaxConnectionsPerServer: config.GetEnvInt("HUB_MAX_CONNECTIONS_PER_SERVER", 4),
			ConnectRatePerIP:        config.GetEnvFloat("HUB_CONNECT_RATE_PER_IP", 5.0),
			ConnectBurstPerIP:       config.GetEnvInt("HUB_CONNECT_BURST_PER_IP", 10),
		},
		AuthBackoff: AuthBackoffConfig{
			BaseDelay:              config.GetEnvDuration("HUB_AUTH_BASE_DELAY", time.Second),
			MaxDelay:               config.GetEnvDuration("HUB_AUTH_MAX_DELAY", 30*time.Second),
			BackoffMultiplier:      config.GetEnvFloat("HUB_AUTH_BACKOFF_MULTIPLIER", 2.0),
			ResetWindow:            config.GetEnvDuration("HUB_AUTH_RESET_WINDOW", 5*time.Minute),
			MaxFailuresBeforeBlock: config.GetEnvInt("HUB_AUTH_MAX_FAILURES", 5),
			BlockDuration:          config.GetEnvDuration("HUB_AUTH_BLOCK_DURATION", 30*time.Minute),
			AlertCooldown:          config.GetEnvDuration("HUB_ALERT_COOLDOWN", time.Minute),
		},
		Retry: RetryConfig{
			MaxRetryAttempts:             config.GetEnvInt("HUB_MAX_RETRY_ATTEMPTS", 3),
			BaseRetryInterval:            config.GetEnvDuration("HUB_BASE_RETRY_INTERVAL", 100*time.Millisecond),
			MaxRetryInterval:             config.GetEnvDuration("HUB_MAX_RETRY_INTERVAL", 30*time.Second),
			ExponentialBackoffMultiplier: config.GetEnvFloat("HUB_RETRY_MULTIPLIER", 2.0),
			JitterEnabled:                config.GetEnvBool("HUB_RETRY_JITTER_ENABLED", true),
			EnableFailover:               config.GetEnvBool("HUB_ENABLE_FAILOVER", true),
			FailoverModes:                config.SplitAndTrimCSV(config.GetEnv("HUB_FAILOVER_MODES", "plugin,rcon,terminal")),
			FailoverDelay:                config.GetEnvDuration("HUB_FAILOVER_DELAY", 500*time.Millisecond),
		},
		Quality: QualityConfig{
			ConnectionQualityThreshold: config.GetEnvFloat("HUB_QUALITY_THRESHOLD", 50.0),
			FailureRateThreshold:       config.GetEnvFloat("HUB_FAILURE_RATE_THRESHOLD", 0.5),
			LatencyThresholdMs:         int64(config.GetEnvInt("HUB_LATENCY_THRESHOLD_MS", 2000)),
		},
		Degradation: DegradationConfig{
			MaxCachedOperations:        config.GetEnvInt("HUB_MAX_CACHED_OPERATIONS", 100),
			CacheExpiration:            config.GetEnvDuration("HUB_CACHE_EXPIRATION", time.Hour),
			ConflictResolutionStrategy: config.GetEnv("HUB_CONFLICT_STRATEGY", "server_wins"),
			EnableGracefulDegradation:  config.GetEnvBool("HUB_ENABLE_GRACEFUL_DEGRADATION", true),
			MaxPermissionRetries:       config.GetEnvInt("HUB_MAX_PERMISSION_RETRIES", 3),
		},
		Cache: CacheConfig{
			MaxBytes:           mustBytes(config.GetEnv("HUB_CACHE_MAX_BYTES", "64MB")),
			DefaultTTL:         config.GetEnvDuration("HUB_CACHE_DEFAULT_TTL", 10*time.Minute),
			EvictionPolicy:     config.GetEnv("HUB_CACHE_EVICTION_POLICY", "lru"),
			CompressionEnabled: config.GetEnvBool("HUB_CACHE_COMPRESSION_ENABLED", true),
			PreloadEnabled:     config.GetEnvBool("HUB_CACHE_PRELOAD_ENABLED", false),
			PreloadInterval:    config.GetEnvDuration("HUB_CACHE_PRELOAD_INTERVAL", 5*time.Minute),
		},
		Protocol: ProtocolConfig{
			HeartbeatInterval: config.GetEnvDuration("HUB_HEARTBEAT_INTERVAL", 15*time.Second),
			HeartbeatTimeout:  config.GetEnvDuration("HUB_HEARTBEAT_TIMEOUT", 60*time.Second),
			RequestTimeout:    config.GetEnvDuration("HUB_REQUEST_TIMEOUT", 5*time.Second),
		},
		Resources: ResourceConfig{
			MaxRSSBytes: uint64(mustBytes(config.GetEnv("HUB_MAX_RSS_BYTES", "1GB"))),
			MaxOpenFDs:  int32(config.GetEnvInt("HUB_MAX_OPEN_FDS", 4096)),
		},
	}
}

func mustBytes(raw string) int64 {
	n, err := config.ParseByteSize(raw)
	if err != nil {
		return 64 * 1024 * 1024
	}
	return n
}
