package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	CacheDir      string `env:"KIOSK_CACHE_DIR"`
	BindHost      string `env:"KIOSK_BIND_HOST" envDefault:"0.0.0.0"`
	DiscoveryPort int    `env:"KIOSK_DISCOVERY_PORT" envDefault:"42111"`
	ServicePort   int    `env:"KIOSK_SERVICE_PORT" envDefault:"42112"`
	UIAddr        string `env:"KIOSK_UI_ADDR" envDefault:"127.0.0.1:42113"`

	RobotName string `env:"KIOSK_ROBOT_NAME" envDefault:"Sourccey"`
	Nickname  string `env:"KIOSK_NICKNAME" envDefault:"sourccey"`
	RobotType string `env:"KIOSK_ROBOT_TYPE" envDefault:"sourccey"`

	PairingCodeTTLSeconds int           `env:"KIOSK_PAIRING_CODE_TTL_SECONDS" envDefault:"600"`
	RequestReadTimeout    time.Duration `env:"KIOSK_REQUEST_READ_TIMEOUT" envDefault:"30s"`
	PairAttemptsPerMin    int           `env:"KIOSK_PAIR_ATTEMPTS_PER_MIN" envDefault:"10"`

	PythonPath       string   `env:"KIOSK_PYTHON_PATH" envDefault:"python3"`
	HostWorkDir      string   `env:"KIOSK_HOST_WORKDIR"`
	HostCommand      []string `env:"KIOSK_HOST_COMMAND" envSeparator:" " envDefault:"-u -m lerobot.robots.sourccey.sourccey.sourccey.sourccey_host"`
	HostProcessMatch string   `env:"KIOSK_HOST_PROCESS_MATCH" envDefault:"sourccey_host"`

	RedisURL string `env:"REDIS_URL"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) PairingCodeTTL() time.Duration {
	return time.Duration(c.PairingCodeTTLSeconds) * time.Second
}

func (c *Config) DiscoveryAddr() string {
	return net.JoinHostPort(c.BindHost, strconv.Itoa(c.DiscoveryPort))
}

func (c *Config) ServiceAddr() string {
	return net.JoinHostPort(c.BindHost, strconv.Itoa(c.ServicePort))
}

// TokenFilePath is where the issued token set is persisted.
func (c *Config) TokenFilePath() string {
	return filepath.Join(c.CacheDir, "pairing", "pairing_state.json")
}

// ModelsDir is the root that download_model requests resolve under.
func (c *Config) ModelsDir() string {
	return filepath.Join(c.CacheDir, "ai_models")
}

func (c *Config) Validate() error {
	if c.CacheDir == "" {
		return fmt.Errorf("KIOSK_CACHE_DIR is empty and no home directory is available")
	}
	if err := validatePort("KIOSK_DISCOVERY_PORT", c.DiscoveryPort); err != nil {
		return err
	}
	if err := validatePort("KIOSK_SERVICE_PORT", c.ServicePort); err != nil {
		return err
	}
	if c.DiscoveryPort == c.ServicePort {
		log.Warn().Int("port", c.ServicePort).Msg("discovery and service share a port number (UDP vs TCP)")
	}
	if c.PairingCodeTTLSeconds <= 0 {
		return fmt.Errorf("KIOSK_PAIRING_CODE_TTL_SECONDS must be positive")
	}
	if c.RequestReadTimeout <= 0 {
		return fmt.Errorf("KIOSK_REQUEST_READ_TIMEOUT must be positive")
	}
	if strings.TrimSpace(c.Nickname) == "" {
		return fmt.Errorf("KIOSK_NICKNAME must not be empty")
	}
	if len(c.HostCommand) == 0 {
		return fmt.Errorf("KIOSK_HOST_COMMAND must not be empty")
	}
	if c.RedisURL == "" {
		log.Info().Msg("REDIS_URL not set: using in-memory pair limiter and local UI events")
	}
	return nil
}

func validatePort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
	}
	return nil
}

// DefaultCacheDir mirrors the lerobot cache location: ~/.cache/huggingface/lerobot.
func DefaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".cache", "huggingface", "lerobot")
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultCacheDir()
	}
	return &cfg, nil
}
