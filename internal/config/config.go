// Package config reads the service settings from the environment, after loading an
// optional .env file.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var (
	LogLevel         string
	ServerRunAddress string
	DatabaseURI      string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string
	// AdminUsername is granted the admin role when it registers.
	AdminUsername string

	ProviderAPIURL   string
	ProviderAPIToken string
	ProviderTimeout  time.Duration
	ProviderProfiles string

	SessionTTL time.Duration
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using default values")
	}

	LogLevel = getEnv("LOG_LEVEL", "info")
	ServerRunAddress = getEnv("SERVER_RUN_ADDRESS", "0.0.0.0:8080")
	DatabaseURI = getEnv("DATABASE_URI", "host=db user=postgres password=password dbname=topup sslmode=disable")

	RedisAddr = getEnv("REDIS_ADDR", "redis:6379")
	RedisPassword = os.Getenv("REDIS_PASSWORD")
	RedisDB = getInt("REDIS_DB", 0)

	JWTSecret = getEnv("JWT_SECRET", "supersecretkey")
	AdminUsername = os.Getenv("ADMIN_USERNAME")

	ProviderAPIURL = getEnv("PROVIDER_API_URL", "http://gateway:9000/api")
	ProviderAPIToken = os.Getenv("PROVIDER_API_TOKEN")
	ProviderTimeout = getDuration("PROVIDER_TIMEOUT", 15*time.Second)
	// Path of a YAML file overriding the built-in provider profiles.
	ProviderProfiles = os.Getenv("PROVIDER_PROFILES")

	SessionTTL = getDuration("SESSION_TTL", 30*time.Minute)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid %s=%q, using %d", key, value, fallback)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Printf("Invalid %s=%q, using %s", key, value, fallback)
		return fallback
	}
	return d
}
