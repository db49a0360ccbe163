package config

import "time"

type Config struct {
	Server       ServerConfig
	ControlPlane ControlPlaneConfig `mapstructure:"controlPlane"`
	Transport    TransportConfig
	Heartbeat    HeartbeatConfig
	LogLevel     string `mapstructure:"logLevel"`
}

type ServerConfig struct {
	Address string
	Auth    AuthConfig
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
	// AllowAnonymous substitutes an ephemeral guest identity when no
	// credential is presented instead of rejecting the upgrade.
	AllowAnonymous bool `mapstructure:"allowAnonymous"`
}

// ControlPlaneConfig is the listener consumed by the CRUD tier, never by
// end clients.
type ControlPlaneConfig struct {
	Address string
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
	SendBuffer  int           `mapstructure:"sendBuffer"`
}

type HeartbeatConfig struct {
	// Interval is how often the sweep runs; Window is how stale a
	// connection's last heartbeat may be before it is evicted.
	Interval time.Duration `mapstructure:"interval"`
	Window   time.Duration `mapstructure:"window"`
}
