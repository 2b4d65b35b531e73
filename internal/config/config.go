package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env        string
	Auth       AuthConfig
	Attendance AttendanceConfig
	Chat       ChatConfig
	Scanner    ScannerConfig
}

type AuthConfig struct {
	JWTSecret []byte
}

type AttendanceConfig struct {
	ServiceURL string
	// Window is how long check-in stays open after the scheduled start.
	Window         time.Duration
	ListCacheTTL   time.Duration
	RequestTimeout time.Duration
}

type ChatConfig struct {
	WebsocketURL   string
	ReconnectDelay time.Duration
}

type ScannerConfig struct {
	FrameInterval time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env file: %v", err)
	}

	env := getEnvOrDefault("APP_ENV", "production")

	// Staging and test builds get a short window so the full
	// open/close cycle can be exercised without waiting half an hour.
	defaultWindow := "30m"
	if env == "test" || env == "staging" {
		defaultWindow = "3m"
	}

	return &Config{
		Env: env,
		Auth: AuthConfig{
			JWTSecret: []byte(getEnvOrFatal("JWT_SECRET")),
		},
		Attendance: AttendanceConfig{
			ServiceURL:     getEnvOrDefault("ATTENDANCE_SERVICE_URL", "http://localhost:8080"),
			Window:         getDurationOrDefault("ATTENDANCE_WINDOW", defaultWindow),
			ListCacheTTL:   getDurationOrDefault("ATTENDANCE_LIST_CACHE_TTL", "5s"),
			RequestTimeout: getDurationOrDefault("ATTENDANCE_REQUEST_TIMEOUT", "10s"),
		},
		Chat: ChatConfig{
			WebsocketURL:   getEnvOrDefault("CHAT_WEBSOCKET_URL", "ws://localhost:8081/ws"),
			ReconnectDelay: getDurationOrDefault("CHAT_RECONNECT_DELAY", "5s"),
		},
		Scanner: ScannerConfig{
			FrameInterval: getDurationOrDefault("SCANNER_FRAME_INTERVAL", "100ms"),
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrFatal(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("%s environment variable is required", key)
	}
	return value
}

func getDurationOrDefault(key, defaultValue string) time.Duration {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("Invalid duration for %s: %v", key, err)
	}
	return duration
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("Invalid integer for %s: %v", key, err)
	}
	return intValue
}
