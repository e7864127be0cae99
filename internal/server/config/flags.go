package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-x string   redis address
//	-b string   refresh token store backend (postgres, redis, memory)
//	-k string   JWT HMAC signing key
//	-i string   JWT issuer
//	-u string   JWT audience
//	-t int      access token lifetime, minutes
//	-r int      refresh token lifetime, minutes
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components. Duration
// flags are accepted as integers in minutes and then converted to
// time.Duration values.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-x", "-b", "-k", "-i", "-u", "-t", "-r"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "x", config.RedisAddr, "redis address")
	fs.StringVar(&config.StoreBackend, "b", config.StoreBackend, "refresh token store backend")
	fs.StringVar(&config.SigningKey, "k", config.SigningKey, "JWT signing key")
	fs.StringVar(&config.Issuer, "i", config.Issuer, "JWT issuer")
	fs.StringVar(&config.Audience, "u", config.Audience, "JWT audience")

	accessTokenLifetime := fs.Int("t", int(config.AccessTokenLifetime.Minutes()), "access token lifetime (in minutes)")
	refreshTokenLifetime := fs.Int("r", int(config.RefreshTokenLifetime.Minutes()), "refresh token lifetime (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenLifetime = time.Duration(*accessTokenLifetime) * time.Minute
	config.RefreshTokenLifetime = time.Duration(*refreshTokenLifetime) * time.Minute
}
