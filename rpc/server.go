// Package rpc exposes the node's client surface over HTTP: intent
// submission, status queries, cancellation, and a websocket stream of intent
// state transitions.
package rpc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"

	"github.com/arvo-net/arvo/config"
	"github.com/arvo-net/arvo/internal/intentpool"
	"github.com/arvo-net/arvo/internal/status"
	"github.com/arvo-net/arvo/libs/log"
	"github.com/arvo-net/arvo/libs/service"
	"github.com/arvo-net/arvo/types"
)

// Server serves the node's HTTP API.
type Server struct {
	service.BaseService
	logger log.Logger

	cfg     *config.RPCConfig
	pool    *intentpool.IntentPool
	tracker *status.Tracker
	nodeID  types.NodeID

	srv      *http.Server
	listener net.Listener
}

// NewServer returns an RPC server for the given pool and status tracker.
func NewServer(
	logger log.Logger,
	cfg *config.RPCConfig,
	pool *intentpool.IntentPool,
	tracker *status.Tracker,
	nodeID types.NodeID,
) *Server {
	s := &Server{
		logger:  logger,
		cfg:     cfg,
		pool:    pool,
		tracker: tracker,
		nodeID:  nodeID,
	}
	s.BaseService = *service.NewBaseService(logger, "RPC", s)
	return s
}

func (s *Server) OnStart(ctx context.Context) error {
	proto, addr, err := splitListenAddress(s.cfg.ListenAddress)
	if err != nil {
		return err
	}

	listener, err := net.Listen(proto, addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddress, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var handler http.Handler = mux
	if len(s.cfg.CORSAllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: s.cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Origin", "Accept", "Content-Type"},
		}).Handler(mux)
	}

	s.srv = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("RPC server terminated", "err", err)
		}
	}()

	s.logger.Info("serving RPC", "addr", s.cfg.ListenAddress)
	return nil
}

func (s *Server) OnStop() {
	if s.srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shut down RPC server", "err", err)
	}
}

// Addr returns the bound listener address, useful when the configuration
// requested an ephemeral port.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// splitListenAddress parses "tcp://host:port" or "unix:///path" forms.
func splitListenAddress(listenAddr string) (string, string, error) {
	parts := strings.SplitN(listenAddr, "://", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf(
			"invalid listen address %q; expected fully formed addresses, including the tcp:// or unix:// prefix",
			listenAddr,
		)
	}
	return parts[0], parts[1], nil
}
