// Package server wires the abtest runtime and HTTP lifecycle.
package server

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/abtestkit/abtestkit/internal/platform/config"
	"github.com/abtestkit/abtestkit/internal/platform/timeouts"
	"github.com/abtestkit/abtestkit/internal/services/abtest/api/rest"
	"github.com/abtestkit/abtestkit/internal/services/abtest/evaluator"
	"github.com/abtestkit/abtestkit/internal/services/abtest/gateway"
	"github.com/abtestkit/abtestkit/internal/services/abtest/lifecycle"
	"github.com/abtestkit/abtestkit/internal/services/abtest/session"
	abteststorage "github.com/abtestkit/abtestkit/internal/services/abtest/storage"
	abtestsqlite "github.com/abtestkit/abtestkit/internal/services/abtest/storage/sqlite"
)

type serverEnv struct {
	DBPath         string `env:"ABTESTKIT_DB_PATH"`
	TrackingSecret string `env:"ABTESTKIT_TRACKING_SECRET"`
	SiteHost       string `env:"ABTESTKIT_SITE_HOST"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	_ = config.ParseEnv(&cfg)
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "abtest.db")
	}
	return cfg
}

// Server hosts the abtest HTTP API and storage lifecycle.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	gateway    *gateway.Gateway
	store      *abtestsqlite.Store
}

// New creates a configured abtest server listening on the provided port.
func New(port int) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", port))
}

// NewWithAddr creates a configured abtest server for the provided address.
func NewWithAddr(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	srvEnv := loadServerEnv()

	secret, err := decodeSecret(srvEnv.TrackingSecret)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	store, err := openStore(srvEnv.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	sessionCfg := session.Config{Secret: secret}

	gw, err := gateway.New(gateway.Config{
		Events:    store,
		Directory: experimentDirectory{experiments: store},
		Session:   sessionCfg,
		SiteHost:  srvEnv.SiteHost,
		Secret:    secret,
	})
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("build gateway: %w", err)
	}

	decider := evaluator.New(store, store)
	controller, err := lifecycle.New(lifecycle.Config{
		Store:   store,
		Decider: decider,
	})
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("build controller: %w", err)
	}

	apiServer, err := rest.NewServer(rest.Config{
		Gateway:    gw,
		Decider:    decider,
		Controller: controller,
		Store:      store,
		Session:    sessionCfg,
		Secret:     secret,
		SiteHost:   srvEnv.SiteHost,
	})
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("build api server: %w", err)
	}

	return &Server{
		listener:   listener,
		httpServer: &http.Server{
			Handler:           apiServer.Routes(),
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
		gateway:    gw,
		store:      store,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves an abtest server until context cancellation.
func Run(ctx context.Context, port int) error {
	server, err := New(port)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the HTTP server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("abtest server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP server: %w", err)
		}
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

// Close releases abtest server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.gateway != nil {
		s.gateway.Shutdown()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close abtest store: %v", err)
		}
	}
}

func openStore(path string) (*abtestsqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := abtestsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open abtest sqlite store: %w", err)
	}
	return store, nil
}

func decodeSecret(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("ABTESTKIT_TRACKING_SECRET is not configured")
	}
	secret, err := hex.DecodeString(raw)
	if err != nil {
		// A non-hex value is still usable as raw key material.
		return []byte(raw), nil
	}
	return secret, nil
}

// experimentDirectory answers experiment existence from the experiment store.
type experimentDirectory struct {
	experiments abteststorage.ExperimentStore
}

func (d experimentDirectory) HasExperiment(ctx context.Context, contentRef, experimentID string) (bool, error) {
	_, err := d.experiments.GetExperiment(ctx, contentRef, experimentID)
	if err != nil {
		if errors.Is(err, abteststorage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
