// Package config loads the hub configuration from ~/.jobhub/config.yaml,
// an optional .env file and HUB_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigDir is the directory under the user's home for hub state.
const DefaultConfigDir = ".jobhub"

// DefaultConfigFile is the config file name within the config directory.
const DefaultConfigFile = "config.yaml"

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverNoop   = "noop"
)

// Server configures the HTTP listener.
type Server struct {
	Addr           string   `yaml:"addr" env:"HUB_ADDR"`
	Verbose        bool     `yaml:"verbose" env:"HUB_VERBOSE"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// Origins is the comma-separated form of AllowedOrigins used by the
	// environment override.
	Origins         string        `yaml:"-" env:"HUB_ALLOWED_ORIGINS"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HUB_SHUTDOWN_TIMEOUT"`
}

// API configures the upstream marketplace API.
type API struct {
	BaseURL string        `yaml:"base_url" env:"HUB_API_URL"`
	Timeout time.Duration `yaml:"timeout" env:"HUB_API_TIMEOUT"`
}

// Storage selects the per-session persistence backend.
type Storage struct {
	Driver    string        `yaml:"driver" env:"HUB_STORAGE_DRIVER"`
	RedisAddr string        `yaml:"redis_addr" env:"HUB_REDIS_ADDR"`
	RedisTTL  time.Duration `yaml:"redis_ttl" env:"HUB_REDIS_TTL"`
}

// Session configures browser sessions.
type Session struct {
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"HUB_SESSION_IDLE_TIMEOUT"`
	CookieSecure bool          `yaml:"cookie_secure" env:"HUB_COOKIE_SECURE"`
	MaxSessions  int           `yaml:"max_sessions" env:"HUB_SESSION_MAX"`
}

// Maintenance configures the maintenance gate and the dismissible banners.
type Maintenance struct {
	Enabled bool     `yaml:"enabled" env:"HUB_MAINTENANCE"`
	Code    string   `yaml:"code" env:"HUB_MAINTENANCE_CODE"`
	Banners []string `yaml:"banners"`
}

// EndpointTest configures the endpoint-test proxy.
type EndpointTest struct {
	RatePerMinute int           `yaml:"rate_per_minute" env:"HUB_TEST_RATE"`
	Burst         int           `yaml:"burst" env:"HUB_TEST_BURST"`
	Timeout       time.Duration `yaml:"timeout" env:"HUB_TEST_TIMEOUT"`
}

// Config is the full hub configuration.
type Config struct {
	Server       Server       `yaml:"server"`
	API          API          `yaml:"api"`
	Storage      Storage      `yaml:"storage"`
	Session      Session      `yaml:"session"`
	Maintenance  Maintenance  `yaml:"maintenance"`
	EndpointTest EndpointTest `yaml:"endpoint_test"`
	AdminToken   string       `yaml:"admin_token" env:"HUB_ADMIN_TOKEN"`
	// SimulatedClock lets /admin/time/advance shift the service clock.
	SimulatedClock bool `yaml:"simulated_clock" env:"HUB_SIMULATED_CLOCK"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		API: API{
			BaseURL: "http://localhost:3001/api",
			Timeout: 15 * time.Second,
		},
		Storage: Storage{
			Driver:    DriverMemory,
			RedisAddr: "localhost:6379",
			RedisTTL:  7 * 24 * time.Hour,
		},
		Session: Session{IdleTimeout: 24 * time.Hour, MaxSessions: 10000},
		EndpointTest: EndpointTest{
			RatePerMinute: 30,
			Burst:         5,
			Timeout:       30 * time.Second,
		},
	}
}

// Path returns ~/.jobhub/config.yaml.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// Load reads the default config file, then .env in the working directory,
// then HUB_* environment variables.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path, ".env")
}

// LoadFrom reads the config file at path, the dotenv file at envFile and
// the environment, later sources overriding earlier ones. Missing files are
// not an error. Variables already in the environment win over envFile.
func LoadFrom(path, envFile string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decoding environment: %w", err)
	}
	if cfg.Server.Origins != "" {
		cfg.Server.AllowedOrigins = splitList(cfg.Server.Origins)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverRedis, DriverNoop:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.API.BaseURL == "" {
		return errors.New("api base_url is required")
	}
	if c.Session.MaxSessions < 0 {
		return errors.New("session max_sessions must not be negative")
	}
	if c.EndpointTest.RatePerMinute < 0 || c.EndpointTest.Burst < 0 {
		return errors.New("endpoint_test rate and burst must not be negative")
	}
	return nil
}

// Save writes cfg to path, creating the directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
