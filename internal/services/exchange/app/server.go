// Package app wires the exchange service: storage, domain, notification
// and the HTTP transport.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	httpapi "github.com/kringleapp/kringle/internal/services/exchange/api/http"
	"github.com/kringleapp/kringle/internal/services/exchange/domain"
	"github.com/kringleapp/kringle/internal/services/exchange/notify"
	"github.com/kringleapp/kringle/internal/services/exchange/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

// Config holds the exchange server wiring inputs.
type Config struct {
	// HTTPAddr is the listen address for the callable API.
	HTTPAddr string
	// DBPath is the SQLite database file path.
	DBPath string
	// JWTSecret verifies caller bearer tokens.
	JWTSecret string
}

// Server hosts the exchange service over HTTP.
type Server struct {
	httpAddr   string
	httpServer *http.Server
	store      *sqlite.Store
}

// NewServer opens storage and assembles the exchange service stack.
func NewServer(cfg Config) (*Server, error) {
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		return nil, errors.New("http listen address is required")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open exchange store: %w", err)
	}

	service := domain.NewService(
		newDomainStoreAdapter(store),
		notify.NewLogNotifier(nil),
		nil,
		nil,
	)
	api := httpapi.New(service, []byte(cfg.JWTSecret))

	return &Server{
		httpAddr: cfg.HTTPAddr,
		store:    store,
		httpServer: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// ListenAndServe serves the callable API until ctx is cancelled.
//
// On cancellation, it performs a bounded shutdown so in-flight requests
// are drained before hard close.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("exchange server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("exchange listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases storage resources held by the server.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close exchange store: %v", err)
		}
	}
}
