// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

package gate

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/samber/oops"

	"github.com/duskhollow/duskhollow/internal/logging"
)

// DisconnectHook runs after a connection closes, whatever the cause.
// Hooks tear down per-connection state (key material, session entry).
type DisconnectHook func(conn Conn)

// Server accepts gate connections and pumps their frames through the
// router. Each connection gets one goroutine; frames on a connection
// are handled in arrival order.
type Server struct {
	addr         string
	router       *Router
	onDisconnect []DisconnectHook
	logger       *slog.Logger

	mu       sync.RWMutex
	listener net.Listener
}

// NewServer creates a gate server.
func NewServer(addr string, router *Router, logger *slog.Logger, hooks ...DisconnectHook) (*Server, error) {
	if router == nil {
		return nil, oops.Errorf("router is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		addr:         addr,
		router:       router,
		onDisconnect: hooks,
		logger:       logger,
	}, nil
}

// Addr returns the bound listen address, or "" before Run.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run starts the server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return oops.Code("GATE_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("gate server started", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil {
			s.logger.Debug("error closing listener", "error", err)
		}
	}()

	for {
		nc, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.logger.Error("accept failed", "error", err)
				continue
			}
		}
		ConnectionsTotal.Inc()
		go s.serve(ctx, newTCPConn(nc))
	}
}

// serve pumps one connection until it disconnects or the server stops.
func (s *Server) serve(ctx context.Context, conn *tcpConn) {
	ctx = logging.WithConnID(ctx, conn.ID())
	logger := s.logger.With("conn_id", conn.ID().String(), "remote", conn.RemoteAddr())
	logger.Debug("connection opened")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close() //nolint:errcheck
		case <-done:
		}
	}()

	defer func() {
		_ = conn.Close() //nolint:errcheck
		// Disconnect invalidates key material and session state
		// immediately; late-finishing operations re-check liveness.
		for _, hook := range s.onDisconnect {
			hook(conn)
		}
		logger.Debug("connection closed")
	}()

	reader := bufio.NewReader(conn.nc)
	for {
		tag, payload, err := ReadFrame(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) && !conn.Closed() {
				logger.Debug("connection read error", "error", err)
			}
			return
		}
		s.router.Dispatch(ctx, conn, tag, payload)
		if conn.Closed() {
			return
		}
	}
}
