package config

import (
	"os"
	"time"
)

// parseEnv overlays Config fields from environment variables. Duration
// variables use time.ParseDuration syntax ("15m", "168h"); invalid values
// panic, matching the behaviour of the JSON overlay.
func parseEnv(config *Config) {
	if v, ok := os.LookupEnv("ENDPOINT_ADDR"); ok {
		config.EndpointAddr = v
	}
	if v, ok := os.LookupEnv("DATABASE_DSN"); ok {
		config.DatabaseDSN = v
	}
	if v, ok := os.LookupEnv("REDIS_ADDR"); ok {
		config.RedisAddr = v
	}
	if v, ok := os.LookupEnv("STORE_BACKEND"); ok {
		config.StoreBackend = v
	}
	if v, ok := os.LookupEnv("SIGNING_KEY"); ok {
		config.SigningKey = v
	}
	if v, ok := os.LookupEnv("JWT_ISSUER"); ok {
		config.Issuer = v
	}
	if v, ok := os.LookupEnv("JWT_AUDIENCE"); ok {
		config.Audience = v
	}
	if v, ok := os.LookupEnv("ACCESS_TOKEN_LIFETIME"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(err)
		}
		config.AccessTokenLifetime = d
	}
	if v, ok := os.LookupEnv("REFRESH_TOKEN_LIFETIME"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(err)
		}
		config.RefreshTokenLifetime = d
	}
}
