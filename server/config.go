package server

import (
	"fmt"
	"time"

	"velo/pkg/conf"

	"github.com/kelseyhightower/envconfig"
)

// Config is the daemon configuration, loaded from VELO_* environment
// variables and optionally overridden by CLI flags on top.
type Config struct {
	// Addr is the interface the API binds to. Loopback by default,
	// the daemon fronts interactive shells.
	Addr string `envconfig:"ADDR" default:"127.0.0.1"`
	Port int    `envconfig:"PORT" default:"8090"`

	// AdminUser and AdminPassword gate POST /api/login. The password
	// has no default on purpose: an empty value disables login.
	AdminUser     string `envconfig:"ADMIN_USER" default:"admin"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`

	// TokenTTL bounds how long issued API tokens stay valid
	TokenTTL time.Duration `envconfig:"TOKEN_TTL" default:"12h"`

	// Inventory points at the targets file. Empty means the default
	// location under the velo home.
	Inventory string `envconfig:"INVENTORY"`

	// TransferCap caps upload/download payloads moved through the
	// transfer endpoints, in bytes. Zero means the engine default.
	TransferCap int64 `envconfig:"TRANSFER_CAP"`

	// StatsInterval is how often host statistics are sampled
	StatsInterval time.Duration `envconfig:"STATS_INTERVAL" default:"5s"`

	Verbose string `envconfig:"VERBOSE" default:"info"`
	LogFile string `envconfig:"LOG_FILE"`
}

// LoadConfig reads the daemon configuration from the environment
func LoadConfig() (*Config, error) {
	c := &Config{}
	if err := envconfig.Process("VELO", c); err != nil {
		return nil, fmt.Errorf("failed to load daemon config - %v", err)
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) check() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}
	if c.TransferCap == 0 {
		c.TransferCap = conf.FileTransferCap
	}
	if c.StatsInterval < time.Second {
		c.StatsInterval = time.Second
	}
	return nil
}

// ListenAddr is the host:port the HTTP server binds
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Addr, c.Port)
}
