package config

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// DefaultUserAgent is the default User-Agent string sent with all HTTP requests.
const DefaultUserAgent = "watchmirror/2.0 (+https://github.com/Belphemur/watchmirror)"

type Config struct {
	Trakt struct {
		BaseURL   string `mapstructure:"base_url"`
		ClientID  string `mapstructure:"client_id"`
		TokenFile string `mapstructure:"token_file"`
	} `mapstructure:"trakt"`
	Metadata struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
	} `mapstructure:"metadata"`
	DataDir       string `mapstructure:"data_dir"`
	ClientTimeout string `mapstructure:"client_timeout"` // Go duration string like "30s", "1h", etc.
	UserAgent     string `mapstructure:"user_agent"`
	LogLevel      string `mapstructure:"log_level"`
	SentryDSN     string `mapstructure:"sentry_dsn"`
	Server        struct {
		Port    int    `mapstructure:"port"`
		Address string `mapstructure:"address"`
	} `mapstructure:"server"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
	Gateway struct {
		ReadLimit        int    `mapstructure:"read_limit"`         // reads allowed per sliding window
		ReadWindow       string `mapstructure:"read_window"`        // sliding window length
		ReadMinSpacing   string `mapstructure:"read_min_spacing"`   // minimum gap between reads
		MutateMinSpacing string `mapstructure:"mutate_min_spacing"` // minimum gap between mutations
	} `mapstructure:"gateway"`
	Cache struct {
		MemorySize   int    `mapstructure:"memory_size"` // maximum entries in the in-memory hot layer
		CardTTL      string `mapstructure:"card_ttl"`
		ProgressTTL  string `mapstructure:"progress_ttl"`
		PageTTL      string `mapstructure:"page_ttl"`
		RetentionAge string `mapstructure:"retention_age"` // sweep threshold, typically much larger than the TTLs
	} `mapstructure:"cache"`
	Sync struct {
		BatchSize  int    `mapstructure:"batch_size"`  // progress enrichment batch width
		BatchDelay string `mapstructure:"batch_delay"` // pause between enrichment batches
	} `mapstructure:"sync"`
	Monitor struct {
		PollInterval  string `mapstructure:"poll_interval"`
		RecentWindow  string `mapstructure:"recent_window"`
		FullThreshold int    `mapstructure:"full_threshold"` // new items above this force a full page rebuild
	} `mapstructure:"monitor"`
}

var (
	globalConfig *Config
	logger       zerolog.Logger
)

func init() {
	// Initialize zerolog with console writer for human-readable output
	logger = zerolog.New(zerolog.ConsoleWriter{
		Out:     os.Stdout,
		NoColor: false,
	}).With().Timestamp().Logger()

	config, err := LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load config")
	}

	// Parse and set log level from config
	level := zerolog.InfoLevel // default
	if config.LogLevel != "" {
		if parsedLevel, err := zerolog.ParseLevel(config.LogLevel); err == nil {
			level = parsedLevel
		} else {
			logger.Warn().Str("invalid_level", config.LogLevel).Msg("Invalid log level, using default 'info'")
		}
	}

	zerolog.SetGlobalLevel(level)
	logger = logger.Level(level)

	globalConfig = config
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variable support
	viper.AutomaticEnv()
	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	_ = viper.BindEnv("log_level", "LOG_LEVEL")

	// Defaults mirror the documented quotas and timings of the remote service.
	viper.SetDefault("trakt.base_url", "https://api.trakt.tv")
	viper.SetDefault("trakt.token_file", "token.json")
	viper.SetDefault("metadata.base_url", "https://api.themoviedb.org")
	viper.SetDefault("data_dir", "data")
	viper.SetDefault("client_timeout", "30s")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.address", "localhost")
	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("gateway.read_limit", 1000)
	viper.SetDefault("gateway.read_window", "5m")
	viper.SetDefault("gateway.read_min_spacing", "100ms")
	viper.SetDefault("gateway.mutate_min_spacing", "1s")
	viper.SetDefault("cache.memory_size", 512)
	viper.SetDefault("cache.card_ttl", "6h")
	viper.SetDefault("cache.progress_ttl", "12h")
	viper.SetDefault("cache.page_ttl", "1h")
	viper.SetDefault("cache.retention_age", "720h")
	viper.SetDefault("sync.batch_size", 40)
	viper.SetDefault("sync.batch_delay", "1200ms")
	viper.SetDefault("monitor.poll_interval", "5m")
	viper.SetDefault("monitor.recent_window", "2m")
	viper.SetDefault("monitor.full_threshold", 5)

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}

	return &config, nil
}

func GetConfig() *Config {
	return globalConfig
}

func GetUserAgent() string {
	if globalConfig != nil && globalConfig.UserAgent != "" {
		return globalConfig.UserAgent
	}

	return DefaultUserAgent
}

func GetLogger() zerolog.Logger {
	return logger
}

// Duration parses a config duration string, falling back to def when the
// value is empty or malformed.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn().Str("duration", value).Msg("Invalid duration in config, using default")
		return def
	}
	return d
}
