package config

import (
	"flag"
	"io"

	"github.com/zhangleigang/knowledge-api/internal/flagx"
)

// flagNames lists every flag parseFlags understands.
var flagNames = []string{"-p", "-g", "-s", "-t", "-b", "-f", "-d", "-r", "-k", "-l"}

// parseFlags overlays command-line flags onto config.
//
// Supported flags (short forms):
//
//	-p int       HTTP port
//	-g string    gRPC health bind address
//	-s string    JWT HMAC secret
//	-t duration  token lifetime, e.g. "720h"
//	-b string    store backend: file, postgres or redis
//	-f string    users JSON file
//	-d string    PostgreSQL DSN
//	-r string    Redis address
//	-k string    knowledge dataset file
//	-l string    log backend: slog or zap
//
// args is filtered with flagx.FilterArgs first, so flags owned by other
// components are ignored.
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.IntVar(&config.Port, "p", config.Port, "HTTP port")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC health address")
	fs.StringVar(&config.JWTSecret, "s", config.JWTSecret, "JWT secret")
	fs.DurationVar(&config.TokenTTL, "t", config.TokenTTL, "token lifetime")
	fs.StringVar(&config.StoreBackend, "b", config.StoreBackend, "store backend (file|postgres|redis)")
	fs.StringVar(&config.UserDataFile, "f", config.UserDataFile, "users JSON file")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.KnowledgeFile, "k", config.KnowledgeFile, "knowledge dataset file")
	fs.StringVar(&config.LogBackend, "l", config.LogBackend, "log backend (slog|zap)")

	return fs.Parse(flagx.FilterArgs(args, flagNames))
}

// OwnedFlags lists every flag Load consumes, including the JSON config
// path. Commands sharing os.Args use it to find their own arguments.
func OwnedFlags() []string {
	out := append([]string{}, flagNames...)
	return append(out, "-c", "-config", "--config")
}
