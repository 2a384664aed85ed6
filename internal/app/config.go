package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	// Base URL of the streaming server whose HTTP contract we consume.
	StreamServerURL string

	// Mongo is optional: when MongoURI is empty, player settings live in
	// memory only and are lost on restart.
	MongoURI      string
	MongoDatabase string

	// Redis is optional: when RedisAddr is empty, online subtitle search
	// results are cached in process memory only.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Progress reporting interval towards the hosting page.
	ReportInterval time.Duration

	// Controls auto-hide delay while playing.
	ControlsHideDelay time.Duration

	// Keyframe probe limiter: pass-through reloads are rate limited to avoid
	// hammering ffprobe on the server during seek scrubbing.
	ProbeRatePerSec float64
	ProbeBurst      int

	CORSAllowedOrigins []string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8090"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		StreamServerURL:    strings.TrimRight(getEnv("STREAM_SERVER_URL", "http://localhost:8000"), "/"),
		MongoURI:           getEnv("MONGO_URI", ""),
		MongoDatabase:      getEnv("MONGO_DB", "streamplayer"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            int(getEnvInt64("REDIS_DB", 0)),
		ReportInterval:     getEnvDuration("REPORT_INTERVAL", 15*time.Second),
		ControlsHideDelay:  getEnvDuration("CONTROLS_HIDE_DELAY", 3*time.Second),
		ProbeRatePerSec:    getEnvFloat("PROBE_RATE_PER_SEC", 4),
		ProbeBurst:         int(getEnvInt64("PROBE_BURST", 8)),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
