package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Budget    BudgetConfig    `mapstructure:"budget"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Plan      PlanConfig      `mapstructure:"plan"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RateLimitConfig holds outbound HTTP rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
	MaxRetries        int `mapstructure:"max_retries"`
	InitialBackoffMs  int `mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int `mapstructure:"max_backoff_ms"`
}

// ProvidersConfig holds the external API credentials and endpoints
type ProvidersConfig struct {
	NaverClientID     string `mapstructure:"naver_client_id"`
	NaverClientSecret string `mapstructure:"naver_client_secret"`
	NCPClientID       string `mapstructure:"ncp_client_id"`
	NCPClientSecret   string `mapstructure:"ncp_client_secret"`
	KMAServiceKey     string `mapstructure:"kma_service_key"`
}

// BudgetConfig holds the monthly provider call budget
type BudgetConfig struct {
	MonthlyLimit  int     `mapstructure:"monthly_limit"`
	WarningRatio  float64 `mapstructure:"warning_ratio"`
	CriticalRatio float64 `mapstructure:"critical_ratio"`
}

// BreakerConfig holds the per-provider circuit breaker policy
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
	HalfOpenProbes   int           `mapstructure:"half_open_probes"`
}

// CacheConfig holds the per-provider cache TTLs and sweep interval
type CacheConfig struct {
	PlaceTTL      time.Duration `mapstructure:"place_ttl"`
	RouteTTL      time.Duration `mapstructure:"route_ttl"`
	WeatherTTL    time.Duration `mapstructure:"weather_ttl"`
	ShoppingTTL   time.Duration `mapstructure:"shopping_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// PlanConfig holds plan generation policy
type PlanConfig struct {
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	MaxBasketItems    int           `mapstructure:"max_basket_items"`
	OnlineConcurrency int           `mapstructure:"online_concurrency"`
	MinCoverage       float64       `mapstructure:"min_coverage"`
	RelaxedCoverage   float64       `mapstructure:"relaxed_coverage"`
	PriceWeight       float64       `mapstructure:"price_weight"`
	TravelWeight      float64       `mapstructure:"travel_weight"`
	CoverageWeight    float64       `mapstructure:"coverage_weight"`
	AllowedDomains    []string      `mapstructure:"allowed_domains"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

var globalConfig *Config

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// Load .env file
	if err := loadEnvFile(); err != nil {
		// .env is optional, log but don't fail
		log.Warn().Err(err).Msg("Warning: .env file not loaded")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvPrefix("PLAN_SERVICE")

	// Bind env keys for nested config
	bindEnvVars(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Validate checks cross-field configuration invariants.
func (c *Config) Validate() error {
	if c.Budget.WarningRatio >= c.Budget.CriticalRatio {
		return fmt.Errorf("budget warning ratio %.2f must be below critical ratio %.2f",
			c.Budget.WarningRatio, c.Budget.CriticalRatio)
	}
	if c.Plan.RelaxedCoverage > c.Plan.MinCoverage {
		return fmt.Errorf("relaxed coverage %.2f must not exceed min coverage %.2f",
			c.Plan.RelaxedCoverage, c.Plan.MinCoverage)
	}
	if c.Plan.MaxBasketItems < 1 {
		return fmt.Errorf("max basket items must be at least 1")
	}
	return nil
}

// loadEnvFile loads a .env file by parsing KEY=VALUE lines and setting them
// as environment variables
func loadEnvFile() error {
	envPaths := []string{
		".",
		"./config",
	}

	for _, path := range envPaths {
		envFile := fmt.Sprintf("%s/.env", path)
		if _, err := os.Stat(envFile); err == nil {
			if err := loadDotEnvFile(envFile); err == nil {
				return nil
			}
		}
	}
	return fmt.Errorf("no .env file found")
}

// loadDotEnvFile reads a .env file and sets environment variables
func loadDotEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			// Remove quotes if present
			value = strings.Trim(value, "\"'")
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	// Database
	v.BindEnv("database.url", "DATABASE_URL")

	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.host", "HOST")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")

	// Provider credentials
	v.BindEnv("providers.naver_client_id", "NAVER_CLIENT_ID")
	v.BindEnv("providers.naver_client_secret", "NAVER_CLIENT_SECRET")
	v.BindEnv("providers.ncp_client_id", "NCP_CLIENT_ID")
	v.BindEnv("providers.ncp_client_secret", "NCP_CLIENT_SECRET")
	v.BindEnv("providers.kma_service_key", "KMA_SERVICE_KEY")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.max_conn_lifetime", 1*time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)

	// Outbound rate limit defaults
	v.SetDefault("rate_limit.requests_per_second", 5)
	v.SetDefault("rate_limit.max_retries", 2)
	v.SetDefault("rate_limit.initial_backoff_ms", 100)
	v.SetDefault("rate_limit.max_backoff_ms", 5000)

	// Budget defaults
	v.SetDefault("budget.monthly_limit", 300000)
	v.SetDefault("budget.warning_ratio", 0.80)
	v.SetDefault("budget.critical_ratio", 0.95)

	// Breaker defaults
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.cooldown", 30*time.Second)
	v.SetDefault("breaker.half_open_probes", 3)

	// Cache defaults
	v.SetDefault("cache.place_ttl", 6*time.Hour)
	v.SetDefault("cache.route_ttl", 24*time.Hour)
	v.SetDefault("cache.weather_ttl", 1*time.Hour)
	v.SetDefault("cache.shopping_ttl", 30*time.Minute)
	v.SetDefault("cache.sweep_interval", 5*time.Minute)

	// Plan defaults
	v.SetDefault("plan.request_timeout", 10*time.Second)
	v.SetDefault("plan.max_basket_items", 50)
	v.SetDefault("plan.online_concurrency", 4)
	v.SetDefault("plan.min_coverage", 0.6)
	v.SetDefault("plan.relaxed_coverage", 0.4)
	v.SetDefault("plan.price_weight", 0.5)
	v.SetDefault("plan.travel_weight", 0.3)
	v.SetDefault("plan.coverage_weight", 0.2)
	v.SetDefault("plan.allowed_domains", []string{
		"ssg.com",
		"homeplus.co.kr",
		"kurly.com",
		"coupang.com",
		"lotteon.com",
	})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)
}

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// GetDatabaseURL returns the database URL from config or environment
func GetDatabaseURL() string {
	if cfg := Get(); cfg != nil && cfg.Database.URL != "" {
		return cfg.Database.URL
	}
	return os.Getenv("DATABASE_URL")
}
