package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Budget    BudgetConfig    `yaml:"budget"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

// BudgetConfig configures the cost tracker.
type BudgetConfig struct {
	// Global caps across all senders, USD. Zero means unlimited.
	GlobalDailyUSD   float64 `yaml:"global_daily_usd"`
	GlobalMonthlyUSD float64 `yaml:"global_monthly_usd"`

	Persist     bool   `yaml:"persist"`
	PersistPath string `yaml:"persist_path"`
	// SaveEvery is the number of ledger mutations between automatic
	// snapshots.
	SaveEvery int `yaml:"save_every"`
	// ResetHourUTC is the UTC hour at which daily accumulators clear.
	ResetHourUTC int `yaml:"reset_hour_utc"`
}

// RateLimitConfig configures the admission rate limiter.
type RateLimitConfig struct {
	Window time.Duration `yaml:"window"`
	// GlobalLimit caps admissions per window across all senders; zero
	// disables the aggregate check.
	GlobalLimit int `yaml:"global_limit"`
	// MaxTrackedSenders bounds limiter memory under high sender
	// cardinality.
	MaxTrackedSenders int `yaml:"max_tracked_senders"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "tiergate",
			User:            "tiergate",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			DB:        0,
			PoolSize:  50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9090,
		},
		Budget: BudgetConfig{
			GlobalDailyUSD:   0,
			GlobalMonthlyUSD: 0,
			Persist:          true,
			PersistPath:      "data/ledger.json",
			SaveEvery:        50,
			ResetHourUTC:     0,
		},
		RateLimit: RateLimitConfig{
			Window:            time.Minute,
			GlobalLimit:       600,
			MaxTrackedSenders: 10_000,
		},
	}
}

// Validate surfaces malformed service settings at load time, before any
// request is served.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Budget.ResetHourUTC < 0 || c.Budget.ResetHourUTC > 23 {
		return fmt.Errorf("budget.reset_hour_utc %d out of range [0,23]", c.Budget.ResetHourUTC)
	}
	if c.Budget.GlobalDailyUSD < 0 || c.Budget.GlobalMonthlyUSD < 0 {
		return fmt.Errorf("budget global limits must be non-negative")
	}
	if c.Budget.SaveEvery < 0 {
		return fmt.Errorf("budget.save_every must be non-negative")
	}
	if c.RateLimit.Window < 0 {
		return fmt.Errorf("rate_limit.window must be non-negative")
	}
	if c.RateLimit.GlobalLimit < 0 {
		return fmt.Errorf("rate_limit.global_limit must be non-negative")
	}
	if c.RateLimit.MaxTrackedSenders < 0 {
		return fmt.Errorf("rate_limit.max_tracked_senders must be non-negative")
	}
	return nil
}
