package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis (behavior cache + event mirror); empty addr disables both
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT verification for the API surface; tokens are issued by the
	// identity service, not by this process
	JWTSecret string

	// Assistant
	OpenAIAPIKey   string
	OpenAIModel    string
	AITimeout      time.Duration
	AIRetryBackoff time.Duration

	// Summaries
	SummaryTimeout time.Duration

	// Behavior resolver cache
	BehaviorCacheTTL time.Duration

	// Voice services
	VoiceSTTURL  string
	VoiceTTSURL  string
	VoiceAPIKey  string
	VoiceTimeout time.Duration

	// Admin
	AdminEmails string

	// Server
	Port        string
	CORSOrigins string
}

func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "smartterapist"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       parseInt(getEnv("REDIS_DB", "0")),

		JWTSecret: getEnv("JWT_SECRET", ""),

		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		AITimeout:      parseDuration(getEnv("AI_TIMEOUT", "30s")),
		AIRetryBackoff: parseDuration(getEnv("AI_RETRY_BACKOFF", "500ms")),

		SummaryTimeout: parseDuration(getEnv("SUMMARY_TIMEOUT", "30s")),

		BehaviorCacheTTL: parseDuration(getEnv("BEHAVIOR_CACHE_TTL", "30s")),

		VoiceSTTURL:  getEnv("VOICE_STT_URL", ""),
		VoiceTTSURL:  getEnv("VOICE_TTS_URL", ""),
		VoiceAPIKey:  getEnv("VOICE_API_KEY", ""),
		VoiceTimeout: parseDuration(getEnv("VOICE_TIMEOUT", "60s")),

		AdminEmails: getEnv("ADMIN_EMAILS", ""),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

func parseInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
