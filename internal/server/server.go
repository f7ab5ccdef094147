// Package server runs the TCP accept loop and the per-connection handler
// loops that bridge the wire protocol to the rollout orchestrator.
package server

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mitchelldurbincs/bossrl/internal/training"
)

// Server accepts game-client connections and binds each to the single shared
// orchestrator. One physical game client is expected at a time; extra
// connections are tolerated because the orchestrator serializes internally.
type Server struct {
	addr string
	orch *training.Orchestrator

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	stopping bool

	wg     sync.WaitGroup
	logger zerolog.Logger
}

func New(addr string, orch *training.Orchestrator) *Server {
	return &Server{
		addr:   addr,
		orch:   orch,
		conns:  make(map[net.Conn]struct{}),
		logger: log.With().Str("component", "server").Logger(),
	}
}

// ListenAndServe binds the listener and serves until Stop. Failing to bind
// is the only fatal error it returns.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info().Str("address", ln.Addr().String()).Msg("Listening for game client")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error().Err(err).Msg("Accept failed")
			continue
		}

		// The game client sends one small frame per game tick; latency
		// matters more than throughput.
		if tcp, ok := conn.(*net.TCPConn); ok {
			tcp.SetNoDelay(true)
		}

		s.register(conn)
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer s.unregister(c)
			newHandler(c, s.orch).run()
		}(conn)
	}
}

// Addr returns the bound listener address, or nil before ListenAndServe.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every live connection, then waits for the
// handler loops to drain.
func (s *Server) Stop() {
	s.mu.Lock()
	s.stopping = true
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Server stopped")
}

func (s *Server) register(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Server) unregister(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}
