package feedclient

import "time"

const (
	DefaultHeartbeatInterval     = 30 * time.Second
	DefaultMaxReconnectAttempts  = 5
	DefaultInitialReconnectDelay = time.Second
)

// Config carries the connection settings for a Client.
type Config struct {
	// URL is the vendor's live feed endpoint (ws:// or wss://).
	URL string

	// APIKey authenticates the session; sent once in the auth frame.
	APIKey string

	// HeartbeatInterval is the transport ping period once authenticated.
	HeartbeatInterval time.Duration

	// AutoReconnect enables reconnection after unexpected socket closure.
	AutoReconnect bool

	// MaxReconnectAttempts bounds consecutive reconnect attempts.
	MaxReconnectAttempts int

	// InitialReconnectDelay seeds the exponential backoff between attempts.
	InitialReconnectDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.InitialReconnectDelay <= 0 {
		c.InitialReconnectDelay = DefaultInitialReconnectDelay
	}
	return c
}
