package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"arena-tracker/internal/constants"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	DBPath              string
	CacheDir            string
	RelayURL            string
	LogLevel            string
	MatchPageSize       int
	AutoRefreshInterval time.Duration

	// relay only
	RiotAPIToken string
	RiotAPIBase  string
	RelayPort    string
}

func Load(logger zerolog.Logger) (*Config, error) {
	// .env.local wins: godotenv never overrides a variable that is already set
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil {
			logger.Debug().Str("file", file).Msg("env file not found, using environment variables or defaults")
		}
	}

	pageSize, err := getEnvInt("MATCH_PAGE_SIZE", constants.DefaultMatchPageSize)
	if err != nil {
		return nil, err
	}

	interval, err := getEnvDuration("AUTO_REFRESH_INTERVAL", constants.DefaultAutoRefreshGap)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DBPath:              getEnv("DB_PATH", "arena.db"),
		CacheDir:            getEnv("CACHE_DIR", "arena-cache"),
		RelayURL:            getEnv("RELAY_URL", "http://localhost:3000/api/riot"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		MatchPageSize:       ClampPageSize(pageSize),
		AutoRefreshInterval: interval,
		RiotAPIToken:        getEnv("RIOT_API_TOKEN", ""),
		RiotAPIBase:         getEnv("RIOT_API_BASE", "https://europe.api.riotgames.com"),
		RelayPort:           getEnv("RELAY_PORT", "3000"),
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("cache_dir", cfg.CacheDir).
		Str("relay_url", cfg.RelayURL).
		Str("log_level", cfg.LogLevel).
		Int("match_page_size", cfg.MatchPageSize).
		Dur("auto_refresh_interval", cfg.AutoRefreshInterval).
		Msg("configuration loaded")

	return cfg, nil
}

// ClampPageSize keeps a page size inside [1, MaxMatchPageSize].
func ClampPageSize(n int) int {
	if n < 1 {
		return 1
	}
	if n > constants.MaxMatchPageSize {
		return constants.MaxMatchPageSize
	}
	return n
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, v)
	}
	return d, nil
}

var Module = fx.Provide(Load)
