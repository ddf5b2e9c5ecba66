package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the build service.
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Source    SourceConfig
	Builds    BuildsConfig
	RateLimit RateLimitConfig
	Toolchain ToolchainConfig
}

type ServerConfig struct {
	Port         int           `mapstructure:"SERVER_PORT"`
	MetricsPort  int           `mapstructure:"METRICS_PORT"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	GinMode      string        `mapstructure:"GIN_MODE"`
}

type RedisConfig struct {
	URL string `mapstructure:"REDIS_URL"`
}

type SourceConfig struct {
	// MasterURL is cloned to MasterPath at startup when the path is empty.
	MasterURL  string `mapstructure:"SOURCE_MASTER_URL"`
	MasterPath string `mapstructure:"SOURCE_MASTER_PATH"`
	// RemotesFile lists the remotes and releases offered for building.
	RemotesFile string        `mapstructure:"SOURCE_REMOTES_FILE"`
	CacheTTL    time.Duration `mapstructure:"SOURCE_CACHE_TTL"`
	ReloadEvery time.Duration `mapstructure:"SOURCE_RELOAD_INTERVAL"`
}

type BuildsConfig struct {
	Queue            string        `mapstructure:"BUILDS_QUEUE"`
	OutDir           string        `mapstructure:"BUILDS_OUT_DIR"`
	WorkDir          string        `mapstructure:"BUILDS_WORK_DIR"`
	TTL              time.Duration `mapstructure:"BUILDS_TTL"`
	Timeout          time.Duration `mapstructure:"BUILDS_TIMEOUT"`
	QueuePollTimeout time.Duration `mapstructure:"BUILDS_QUEUE_POLL_TIMEOUT"`
	ProgressEvery    time.Duration `mapstructure:"BUILDS_PROGRESS_INTERVAL"`
	CleanEvery       time.Duration `mapstructure:"BUILDS_CLEAN_INTERVAL"`
}

type RateLimitConfig struct {
	Window  time.Duration `mapstructure:"RATELIMIT_WINDOW"`
	Allowed int           `mapstructure:"RATELIMIT_ALLOWED"`
}

type ToolchainConfig struct {
	CompilerPath string `mapstructure:"TOOLCHAIN_COMPILER_PATH"`
	CacheDir     string `mapstructure:"TOOLCHAIN_CACHE_DIR"`
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("METRICS_PORT", 9090)
	viper.SetDefault("SERVER_READ_TIMEOUT", "10s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	viper.SetDefault("GIN_MODE", "debug")
	viper.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	viper.SetDefault("SOURCE_MASTER_URL", "https://github.com/ArduPilot/ardupilot.git")
	viper.SetDefault("SOURCE_MASTER_PATH", "./data/master")
	viper.SetDefault("SOURCE_REMOTES_FILE", "./data/remotes.json")
	viper.SetDefault("SOURCE_CACHE_TTL", "24h")
	viper.SetDefault("SOURCE_RELOAD_INTERVAL", "5m")
	viper.SetDefault("BUILDS_QUEUE", "buildforge:queue")
	viper.SetDefault("BUILDS_OUT_DIR", "./data/artifacts")
	viper.SetDefault("BUILDS_WORK_DIR", "./data/work")
	viper.SetDefault("BUILDS_TTL", "24h")
	viper.SetDefault("BUILDS_TIMEOUT", "30m")
	viper.SetDefault("BUILDS_QUEUE_POLL_TIMEOUT", "5s")
	viper.SetDefault("BUILDS_PROGRESS_INTERVAL", "3s")
	viper.SetDefault("BUILDS_CLEAN_INTERVAL", "60s")
	viper.SetDefault("RATELIMIT_WINDOW", "1h")
	viper.SetDefault("RATELIMIT_ALLOWED", 10)
	viper.SetDefault("TOOLCHAIN_COMPILER_PATH", "")
	viper.SetDefault("TOOLCHAIN_CACHE_DIR", "")

	// Attempt to read .env file (non-fatal if missing)
	_ = viper.ReadInConfig()

	cfg := &Config{}
	cfg.Server.Port = viper.GetInt("SERVER_PORT")
	cfg.Server.MetricsPort = viper.GetInt("METRICS_PORT")
	cfg.Server.ReadTimeout = viper.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = viper.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.GinMode = viper.GetString("GIN_MODE")
	cfg.Redis.URL = viper.GetString("REDIS_URL")
	cfg.Source.MasterURL = viper.GetString("SOURCE_MASTER_URL")
	cfg.Source.MasterPath = viper.GetString("SOURCE_MASTER_PATH")
	cfg.Source.RemotesFile = viper.GetString("SOURCE_REMOTES_FILE")
	cfg.Source.CacheTTL = viper.GetDuration("SOURCE_CACHE_TTL")
	cfg.Source.ReloadEvery = viper.GetDuration("SOURCE_RELOAD_INTERVAL")
	cfg.Builds.Queue = viper.GetString("BUILDS_QUEUE")
	cfg.Builds.OutDir = viper.GetString("BUILDS_OUT_DIR")
	cfg.Builds.WorkDir = viper.GetString("BUILDS_WORK_DIR")
	cfg.Builds.TTL = viper.GetDuration("BUILDS_TTL")
	cfg.Builds.Timeout = viper.GetDuration("BUILDS_TIMEOUT")
	cfg.Builds.QueuePollTimeout = viper.GetDuration("BUILDS_QUEUE_POLL_TIMEOUT")
	cfg.Builds.ProgressEvery = viper.GetDuration("BUILDS_PROGRESS_INTERVAL")
	cfg.Builds.CleanEvery = viper.GetDuration("BUILDS_CLEAN_INTERVAL")
	cfg.RateLimit.Window = viper.GetDuration("RATELIMIT_WINDOW")
	cfg.RateLimit.Allowed = viper.GetInt("RATELIMIT_ALLOWED")
	cfg.Toolchain.CompilerPath = viper.GetString("TOOLCHAIN_COMPILER_PATH")
	cfg.Toolchain.CacheDir = viper.GetString("TOOLCHAIN_CACHE_DIR")

	return cfg, nil
}
