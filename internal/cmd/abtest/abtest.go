// Package abtest parses abtest service flags and launches the service.
package abtest

import (
	"context"
	"flag"

	entrypoint "github.com/abtestkit/abtestkit/internal/platform/cmd"
	server "github.com/abtestkit/abtestkit/internal/services/abtest/app"
)

// Config holds abtest command configuration.
type Config struct {
	Port int `env:"ABTESTKIT_PORT" envDefault:"8080"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The abtest HTTP server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the abtest HTTP API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceABTest, func(context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
