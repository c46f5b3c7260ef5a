package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/captainplanet9000/Agent9001/internal/logger"
	"github.com/spf13/viper"
)

// Config holds every tunable of the shim. It is read once at startup and
// never mutated afterward.
type Config struct {
	// Public surface
	ListenPort    int           `mapstructure:"listen_port"`
	HealthPath    string        `mapstructure:"health_path"`
	HealthTimeout time.Duration `mapstructure:"health_timeout"`

	// Backend process
	BackendHost    string `mapstructure:"backend_host"`
	BackendPort    int    `mapstructure:"backend_port"`
	BackendCommand string `mapstructure:"backend_command"`
	InitCommand    string `mapstructure:"init_command"`
	WorkDir        string `mapstructure:"work_dir"`
	MemoryDir      string `mapstructure:"memory_dir"`

	// Readiness probing
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`

	// Restart policy
	MaxRestarts int           `mapstructure:"max_restarts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`

	// Shutdown
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`

	// Informational only at this layer; the platform reads it, we just carry it.
	MaxReplicas int `mapstructure:"max_replicas"`

	// Optional postgres DSN for lifecycle history; empty means sqlite under MemoryDir.
	HistoryDSN string `mapstructure:"history_dsn"`

	Log logger.Config `mapstructure:"log"`
}

// BackendAddr returns host:port of the backend's internal listener.
func (c *Config) BackendAddr() string {
	return fmt.Sprintf("%s:%d", c.BackendHost, c.BackendPort)
}

// BackendURL returns the backend base URL the forwarder targets.
func (c *Config) BackendURL() string {
	return "http://" + c.BackendAddr()
}

// ListenAddr returns the public bind address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.ListenPort)
}

// HistoryPath returns the sqlite file used when no DSN is configured.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.MemoryDir, "lifecycle.db")
}

// Load reads configuration from the environment, optionally overlaid on a
// TOML file when path is non-empty. Environment variables use the AGENT9001_
// prefix (AGENT9001_BACKEND_PORT etc.); the bare PORT variable set by the
// hosting platform is honored for the public listen port.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGENT9001")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The platform injects the public port as plain PORT.
	_ = v.BindEnv("listen_port", "AGENT9001_LISTEN_PORT", "PORT")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_port", 8080)
	v.SetDefault("health_path", "/health")
	v.SetDefault("health_timeout", 5*time.Second)
	v.SetDefault("backend_host", "127.0.0.1")
	v.SetDefault("backend_port", 50001)
	v.SetDefault("backend_command", "")
	v.SetDefault("init_command", "")
	v.SetDefault("work_dir", "")
	v.SetDefault("memory_dir", "memory")
	v.SetDefault("probe_interval", time.Second)
	v.SetDefault("probe_timeout", 2*time.Second)
	v.SetDefault("max_restarts", 5)
	v.SetDefault("backoff_base", time.Second)
	v.SetDefault("backoff_max", 30*time.Second)
	v.SetDefault("shutdown_grace", 10*time.Second)
	v.SetDefault("max_replicas", 1)
	v.SetDefault("history_dsn", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.color", true)
}

// Validate rejects configurations the shim cannot safely run with.
func (c *Config) Validate() error {
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listen_port %d out of range", c.ListenPort)
	}
	if c.BackendPort <= 0 || c.BackendPort > 65535 {
		return fmt.Errorf("backend_port %d out of range", c.BackendPort)
	}
	if c.ListenPort == c.BackendPort {
		return fmt.Errorf("listen_port and backend_port must differ (both %d)", c.ListenPort)
	}
	if strings.TrimSpace(c.BackendCommand) == "" {
		return fmt.Errorf("backend_command is required")
	}
	if !strings.HasPrefix(c.HealthPath, "/") {
		return fmt.Errorf("health_path %q must start with '/'", c.HealthPath)
	}
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("probe_interval must be positive")
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive")
	}
	if c.MaxRestarts < 0 {
		return fmt.Errorf("max_restarts cannot be negative")
	}
	if c.BackoffBase <= 0 {
		return fmt.Errorf("backoff_base must be positive")
	}
	if c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("backoff_max %s must be >= backoff_base %s", c.BackoffMax, c.BackoffBase)
	}
	return nil
}
