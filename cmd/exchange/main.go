// Package main starts the gift exchange service.
//
// This process owns assignment draws: group-wide derangements, on-demand
// participant pulls, and one-time reveals, served over a callable JSON API.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	exchangecmd "github.com/kringleapp/kringle/internal/cmd/exchange"
)

func main() {
	// Optional local overrides; absence is not an error.
	_ = godotenv.Load()

	cfg, err := exchangecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[EXCHANGE] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := exchangecmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
