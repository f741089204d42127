// Package main provides a CLI for seeding a local exchange database with
// a demo group and member bearer tokens.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	seedcmd "github.com/kringleapp/kringle/internal/cmd/seed"
	platformcmd "github.com/kringleapp/kringle/internal/platform/cmd"
)

func main() {
	_ = godotenv.Load()

	var base seedcmd.Config
	if err := platformcmd.ParseConfig(&base); err != nil {
		log.Fatalf("parse env config: %v", err)
	}
	cfg, err := seedcmd.ParseConfig(flag.CommandLine, os.Args[1:], base)
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[SEED] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seedcmd.Run(ctx, cfg, os.Stdout); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}
