package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/flagx"
	"github.com/dmitrijs2005/sessionkeeper/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for lifetime fields, which allows
// parsing both string values such as "15m" and integer nanoseconds.
//
// After unmarshalling, its fields are copied into the runtime Config struct
// which uses time.Duration.
type JsonConfig struct {
	EndpointAddr         string         `json:"endpoint_addr"`
	DatabaseDSN          string         `json:"database_dsn"`
	RedisAddr            string         `json:"redis_addr"`
	StoreBackend         string         `json:"store_backend"`
	SigningKey           string         `json:"signing_key"`
	Issuer               string         `json:"issuer"`
	Audience             string         `json:"audience"`
	AccessTokenLifetime  timex.Duration `json:"access_token_lifetime"`
	RefreshTokenLifetime timex.Duration `json:"refresh_token_lifetime"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path is taken from the -c or -config command-line flags; if
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics. Only fields present in the
// file override existing values.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.EndpointAddr != "" {
		config.EndpointAddr = c.EndpointAddr
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.RedisAddr != "" {
		config.RedisAddr = c.RedisAddr
	}
	if c.StoreBackend != "" {
		config.StoreBackend = c.StoreBackend
	}
	if c.SigningKey != "" {
		config.SigningKey = c.SigningKey
	}
	if c.Issuer != "" {
		config.Issuer = c.Issuer
	}
	if c.Audience != "" {
		config.Audience = c.Audience
	}
	if c.AccessTokenLifetime.Duration != 0 {
		config.AccessTokenLifetime = time.Duration(c.AccessTokenLifetime.Duration)
	}
	if c.RefreshTokenLifetime.Duration != 0 {
		config.RefreshTokenLifetime = time.Duration(c.RefreshTokenLifetime.Duration)
	}
}
