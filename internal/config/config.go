package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
)

type Config struct {
	Host string
	Port int

	// Identity verification.
	GoogleClientID string
	AdminEmail     string
	TokenInfoURL   string

	// Key-value store. Empty RedisAddr selects the in-memory store (dev only).
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Admission control.
	ReferenceTimezone  string
	UserBurstLimit     int64
	IPBurstLimit       int64
	BurstWindowSeconds int64
	DailyLimit         int64

	IdentityCacheTTLSeconds int
	BodyLimitBytes          int64
	KillSwitch              bool

	// Provider dispatch.
	SystemPrompt      string
	OpenAIKey         string
	AnthropicKey      string
	GeminiKey         string
	PerplexityKey     string
	ProviderTimeoutMs int

	// Video catalog proxy.
	VideoAPIKey     string
	VideoAPIBaseURL string

	AnalyticsRetentionDays int
	BackupRetentionDays    int

	AllowedOrigin string
	Debug         string
}

var (
	cfg  *Config
	once sync.Once
)

func Load() *Config {
	once.Do(func() {
		loadDotEnv()

		cfg = &Config{
			Host: getEnv("HOST", "0.0.0.0"),
			Port: getEnvInt("PORT", 8787),

			GoogleClientID: getEnv("GOOGLE_CLIENT_ID", ""),
			AdminEmail:     getEnv("ADMIN_EMAIL", ""),
			TokenInfoURL:   getEnv("TOKENINFO_URL", "https://oauth2.googleapis.com/tokeninfo"),

			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),

			ReferenceTimezone:  getEnv("REFERENCE_TIMEZONE", "America/New_York"),
			UserBurstLimit:     int64(getEnvInt("USER_BURST_LIMIT", 5)),
			IPBurstLimit:       int64(getEnvInt("IP_BURST_LIMIT", 10)),
			BurstWindowSeconds: int64(getEnvInt("BURST_WINDOW_SECONDS", 10)),
			DailyLimit:         int64(getEnvInt("DAILY_LIMIT", 50)),

			IdentityCacheTTLSeconds: getEnvInt("IDENTITY_CACHE_TTL_SECONDS", 3600),
			BodyLimitBytes:          int64(getEnvInt("BODY_LIMIT_BYTES", 50000)),
			KillSwitch:              getEnvBool("KILL_SWITCH", false),

			SystemPrompt:      getEnv("SYSTEM_PROMPT", ""),
			OpenAIKey:         getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:      getEnv("ANTHROPIC_API_KEY", ""),
			GeminiKey:         getEnv("GEMINI_API_KEY", ""),
			PerplexityKey:     getEnv("PERPLEXITY_API_KEY", ""),
			ProviderTimeoutMs: getEnvInt("PROVIDER_TIMEOUT_MS", 45000),

			VideoAPIKey:     getEnv("VIDEO_API_KEY", ""),
			VideoAPIBaseURL: getEnv("VIDEO_API_BASE_URL", "https://www.googleapis.com/youtube/v3"),

			AnalyticsRetentionDays: getEnvInt("ANALYTICS_RETENTION_DAYS", 90),
			BackupRetentionDays:    getEnvInt("BACKUP_RETENTION_DAYS", 90),

			AllowedOrigin: getEnv("ALLOWED_ORIGIN", "*"),
			Debug:         getEnv("DEBUG", "off"),
		}

		for i, arg := range os.Args[1:] {
			if arg == "-debug" && i+1 < len(os.Args[1:]) {
				cfg.Debug = os.Args[i+2]
			}
		}
	})

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
