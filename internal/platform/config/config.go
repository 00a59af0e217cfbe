// Package config loads service configuration from the environment. Every
// service in the platform shares the same knob names so deployments stay
// uniform.
package config

import (
	"errors"
	"os"
	"strings"
	"time"
)

type HTTPConfig struct {
	Addr string
}

// DownloadConfig controls signed download URL issuance.
type DownloadConfig struct {
	SigningSecret string
	GatewayURL    string
	TTL           time.Duration
}

type AppConfig struct {
	ServiceName string
	Env         string
	LogLevel    string
	HTTP        HTTPConfig

	DatabaseURL string
	RedisURL    string
	JWTSecret   string
	Download    DownloadConfig
}

// IsProduction reports whether the service runs with production guarantees:
// an in-memory store fallback is not acceptable there.
func (c AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func Load() (AppConfig, error) {
	cfg := AppConfig{
		ServiceName: getenv("SERVICE_NAME"),
		Env:         getenv("APP_ENV"),
		LogLevel:    getenv("LOG_LEVEL"),
		HTTP: HTTPConfig{
			Addr: getenv("HTTP_ADDR"),
		},
		DatabaseURL: getenv("DATABASE_URL"),
		RedisURL:    getenv("REDIS_URL"),
		JWTSecret:   getenv("JWT_SECRET"),
		Download: DownloadConfig{
			SigningSecret: getenv("DOWNLOAD_SIGNING_SECRET"),
			GatewayURL:    getenv("FILE_GATEWAY_URL"),
			TTL:           getenvDuration("DOWNLOAD_URL_TTL", 15*time.Minute),
		},
	}
	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	// Download links fall back to the auth secret so a single-secret
	// deployment still works.
	if cfg.Download.SigningSecret == "" {
		cfg.Download.SigningSecret = cfg.JWTSecret
	}
	if cfg.Download.GatewayURL == "" {
		cfg.Download.GatewayURL = "http://localhost:8090/download"
	}
	return cfg, nil
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
