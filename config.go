package ygggo_graph

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PoolConfig holds the pool sizing and acquisition policy.
type PoolConfig struct {
	// Capacity is the fixed maximum number of connections.
	Capacity int `yaml:"capacity"`

	// Blocking selects the behavior at capacity with nothing available:
	// true blocks the caller until a release, false fails immediately with
	// ErrPoolExhausted. Transaction-heavy workloads that must not deadlock
	// their own logic use blocking; helpers that must report exhaustion
	// use non-blocking.
	Blocking bool `yaml:"blocking"`

	// AcquireTimeout bounds a blocking acquire. Zero means wait until the
	// caller's context is done.
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`

	// MaxIdleTime is the idle threshold used by the maintenance loop's
	// CleanupIdle pass.
	MaxIdleTime time.Duration `yaml:"max_idle_time"`

	// MaintenanceInterval is the period of the background health/cleanup
	// loop started by StartMaintenance.
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
}

// Config holds library configuration.
type Config struct {
	Pool               PoolConfig    `yaml:"pool"`
	Retry              RetryPolicy   `yaml:"retry"`
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold"`
}

func (c *Config) applyDefaults() {
	if c.Pool.Capacity == 0 {
		c.Pool = DefaultPoolConfig()
	}
}

// DefaultPoolConfig returns a default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Capacity:            10,
		Blocking:            true,
		AcquireTimeout:      30 * time.Second,
		MaxIdleTime:         10 * time.Minute,
		MaintenanceInterval: 30 * time.Second,
	}
}

// DevelopmentPoolConfig returns a pool configuration sized for development.
func DevelopmentPoolConfig() PoolConfig {
	return PoolConfig{
		Capacity:            4,
		Blocking:            true,
		AcquireTimeout:      5 * time.Second,
		MaxIdleTime:         5 * time.Minute,
		MaintenanceInterval: time.Minute,
	}
}

// ProductionPoolConfig returns a pool configuration sized for production.
func ProductionPoolConfig() PoolConfig {
	return PoolConfig{
		Capacity:            32,
		Blocking:            true,
		AcquireTimeout:      30 * time.Second,
		MaxIdleTime:         30 * time.Minute,
		MaintenanceInterval: 30 * time.Second,
	}
}

// TestingPoolConfig returns a small non-blocking configuration for tests.
func TestingPoolConfig() PoolConfig {
	return PoolConfig{
		Capacity:            2,
		Blocking:            false,
		MaxIdleTime:         time.Minute,
		MaintenanceInterval: time.Second,
	}
}

// ValidatePoolConfig validates a pool configuration.
func ValidatePoolConfig(cfg PoolConfig) error {
	if cfg.Capacity <= 0 {
		return fmt.Errorf("Capacity must be positive, got %d", cfg.Capacity)
	}
	if cfg.AcquireTimeout < 0 {
		return fmt.Errorf("AcquireTimeout must be non-negative, got %v", cfg.AcquireTimeout)
	}
	if cfg.MaxIdleTime < 0 {
		return fmt.Errorf("MaxIdleTime must be non-negative, got %v", cfg.MaxIdleTime)
	}
	if cfg.MaintenanceInterval < 0 {
		return fmt.Errorf("MaintenanceInterval must be non-negative, got %v", cfg.MaintenanceInterval)
	}
	return nil
}

// LoadConfigFile reads a Config from a YAML file.
func LoadConfigFile(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.applyDefaults()
	if err := ValidatePoolConfig(cfg.Pool); err != nil {
		return cfg, err
	}
	return cfg, nil
}
