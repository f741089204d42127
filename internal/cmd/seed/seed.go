// Package seed wires configuration and execution for the seed command,
// which populates a local database with a demo exchange group.
package seed

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kringleapp/kringle/internal/platform/id"
	httpapi "github.com/kringleapp/kringle/internal/services/exchange/api/http"
	"github.com/kringleapp/kringle/internal/services/exchange/storage"
	"github.com/kringleapp/kringle/internal/services/exchange/storage/sqlite"
)

// Config holds seed command configuration.
type Config struct {
	DBPath    string `env:"KRINGLE_EXCHANGE_DB_PATH" envDefault:"exchange.db"`
	JWTSecret string `env:"KRINGLE_AUTH_SECRET"`
	GroupID   string
	Members   int
	TokenTTL  time.Duration
}

// ParseConfig parses flags into a Config on top of environment defaults.
func ParseConfig(fs *flag.FlagSet, args []string, base Config) (Config, error) {
	cfg := base
	if cfg.DBPath == "" {
		cfg.DBPath = "exchange.db"
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.Members == 0 {
		cfg.Members = 4
	}

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.GroupID, "group", cfg.GroupID, "group id (default: generated)")
	fs.IntVar(&cfg.Members, "members", cfg.Members, "number of members to create")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "bearer token lifetime")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run creates one pending demo group with generated members, printing the
// identifiers and, when a signing secret is configured, bearer tokens.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if cfg.Members < 1 {
		return fmt.Errorf("member count must be positive, got %d", cfg.Members)
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open exchange store: %w", err)
	}
	defer func() { _ = store.Close() }()

	groupID := strings.TrimSpace(cfg.GroupID)
	if groupID == "" {
		if groupID, err = id.NewID(); err != nil {
			return fmt.Errorf("generate group id: %w", err)
		}
	}
	memberIDs := make([]string, cfg.Members)
	for i := range memberIDs {
		if memberIDs[i], err = id.NewID(); err != nil {
			return fmt.Errorf("generate member id: %w", err)
		}
	}

	if err := store.CreateGroup(ctx, storage.GroupRecord{
		ID:      groupID,
		OwnerID: memberIDs[0],
		Status:  "pending",
	}); err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	for _, userID := range memberIDs {
		if err := store.AddMember(ctx, storage.MemberRecord{GroupID: groupID, UserID: userID}); err != nil {
			return fmt.Errorf("add member %s: %w", userID, err)
		}
	}

	fmt.Fprintf(out, "group: %s (owner %s)\n", groupID, memberIDs[0])
	for _, userID := range memberIDs {
		if cfg.JWTSecret == "" {
			fmt.Fprintf(out, "  member: %s\n", userID)
			continue
		}
		token, err := httpapi.IssueToken([]byte(cfg.JWTSecret), userID, cfg.TokenTTL)
		if err != nil {
			return fmt.Errorf("issue token for %s: %w", userID, err)
		}
		fmt.Fprintf(out, "  member: %s token: %s\n", userID, token)
	}
	return nil
}
