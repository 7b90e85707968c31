package config

import "time"

// Discovery
const (
	DiscoveryMagic          = "SOURCCEY_DISCOVER_V1"
	DefaultDiscoveryPort    = 42111
	DiscoveryMaxMessageSize = 1024
	DiscoveryReadPoll       = 150 * time.Millisecond
	DiscoveryDefaultTimeout = 1200 * time.Millisecond
	DiscoveryMinTimeout     = 300 * time.Millisecond
)

// Pairing service
const (
	DefaultServicePort     = 42112
	DefaultPairingCodeTTL  = 10 * time.Minute
	MaxRequestLineBytes    = 64 * 1024
	AcceptErrorBackoff     = 50 * time.Millisecond
	DefaultRequestDeadline = 30 * time.Second
)

// Pairing client timeouts
const (
	ClientConnectTimeout = 4 * time.Second
	ClientIOTimeout      = 8 * time.Second
	DefaultClientName    = "Desktop App"
)

// Default robot identity
const (
	DefaultRobotName = "Sourccey"
	DefaultNickname  = "sourccey"
	DefaultRobotType = "sourccey"
)

// Process host
const HostStopGracePeriod = 2 * time.Second

// UI bridge HTTP server timeouts
const (
	UIReadTimeout     = 15 * time.Second
	UIIdleTimeout     = 120 * time.Second
	UIShutdownTimeout = 10 * time.Second
)

// Health check ping timeout
const RedisPingTimeout = 2 * time.Second

// Event source tag for UI events and download records
const EventSource = "desktop_pairing"

// Background sweeps (expired pairing code, idle limiter keys)
const CleanupJobInterval = time.Minute
