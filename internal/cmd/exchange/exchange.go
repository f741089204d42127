// Package exchange wires configuration and startup for the exchange command.
package exchange

import (
	"context"
	"flag"
	"fmt"

	platformcmd "github.com/kringleapp/kringle/internal/platform/cmd"
	"github.com/kringleapp/kringle/internal/services/exchange/app"
)

// Config holds the exchange command configuration.
type Config struct {
	HTTPAddr  string `env:"KRINGLE_EXCHANGE_HTTP_ADDR" envDefault:"localhost:8090"`
	DBPath    string `env:"KRINGLE_EXCHANGE_DB_PATH" envDefault:"exchange.db"`
	JWTSecret string `env:"KRINGLE_AUTH_SECRET"`
}

// ParseConfig loads environment defaults and layers flags on top.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "bearer token signing secret")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the exchange server with telemetry configured.
func Run(ctx context.Context, cfg Config) error {
	return platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceExchange, func(ctx context.Context) error {
		server, err := app.NewServer(app.Config{
			HTTPAddr:  cfg.HTTPAddr,
			DBPath:    cfg.DBPath,
			JWTSecret: cfg.JWTSecret,
		})
		if err != nil {
			return fmt.Errorf("init exchange server: %w", err)
		}
		defer server.Close()

		if err := server.ListenAndServe(ctx); err != nil {
			return fmt.Errorf("serve exchange: %w", err)
		}
		return nil
	})
}
