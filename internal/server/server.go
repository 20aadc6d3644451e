// Package server exposes the chat over plain TCP and an optional
// WebSocket endpoint. Each connection runs a session loop that feeds
// the message pipeline; deliveries come back through Broadcast.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"netchat/internal/config"
	"netchat/pkg/interfaces"
	"netchat/pkg/types"
)

type Server struct {
	cfg      config.ServerConfig
	broker   interfaces.Submitter
	registry interfaces.SessionRegistry
	limiter  interfaces.RateLimiter
	log      zerolog.Logger

	listener net.Listener
	httpSrv  *http.Server

	mu      sync.RWMutex
	clients map[string]*client

	sessions atomic.Int64
	closed   atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(cfg config.ServerConfig, broker interfaces.Submitter, registry interfaces.SessionRegistry, limiter interfaces.RateLimiter, log zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		broker:   broker,
		registry: registry,
		limiter:  limiter,
		log:      log.With().Str("component", "server").Logger(),
		clients:  make(map[string]*client),
	}
}

// Start opens the TCP listener and, when enabled, the WebSocket endpoint.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.log.Info().Str("addr", addr).Msg("tcp listener started")

	s.wg.Add(1)
	go s.acceptLoop()

	if s.cfg.WebSocketEnabled {
		if err := s.startWebSocket(); err != nil {
			s.listener.Close()
			return err
		}
	}
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.log.Warn().Err(err).Msg("accept failed")
			continue
		}
		s.admit(newTCPConn(conn, s.cfg.WriteTimeout, s.maxLineBytes()))
	}
}

// admit enforces the session cap, then hands the connection to a session
// goroutine. Used by both transports. The counter includes connections still
// in the handshake, so MaxSessions is a hard bound on accepted connections.
func (s *Server) admit(conn lineConn) {
	if s.sessions.Add(1) > int64(s.cfg.MaxSessions) {
		s.sessions.Add(-1)
		s.log.Warn().Str("addr", conn.RemoteAddr()).Msg("session cap reached, rejecting connection")
		_ = conn.WriteLine("Server is full, try again later.")
		conn.Close()
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sessions.Add(-1)
		s.runSession(conn)
	}()
}

// maxLineBytes is the connection-level read bound: the message limit plus
// room for a CRLF terminator.
func (s *Server) maxLineBytes() int {
	return s.cfg.MaxMessageLength + 2
}

// Broadcast delivers one routed message to every connected client. A failed
// write removes only that recipient; everyone else still gets the message.
func (s *Server) Broadcast(msg types.Message) {
	line := formatLine(msg)

	s.mu.RLock()
	recipients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		recipients = append(recipients, c)
	}
	s.mu.RUnlock()

	for _, c := range recipients {
		if err := c.send(line); err != nil {
			s.log.Warn().Str("identity", c.identity).Err(err).Msg("delivery failed, dropping client")
			s.dropClient(c, false)
			c.conn.Close()
		}
	}
}

// formatLine renders a message for the wire.
func formatLine(msg types.Message) string {
	switch msg.Kind {
	case types.KindSystem:
		return "[SYSTEM] " + msg.Text
	case types.KindStatistics:
		return "[BOT] " + msg.Text
	default:
		return "[" + msg.Sender + "] " + msg.Text
	}
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	s.clients[c.identity] = c
	s.mu.Unlock()
	s.log.Info().Str("identity", c.identity).Str("addr", c.conn.RemoteAddr()).Msg("client connected")
}

// dropClient removes the client from the table and releases its identity.
// It is safe to call twice for the same client.
func (s *Server) dropClient(c *client, announce bool) {
	s.mu.Lock()
	current, present := s.clients[c.identity]
	if present && current == c {
		delete(s.clients, c.identity)
	} else {
		present = false
	}
	s.mu.Unlock()

	if !present {
		return
	}

	// An identity evicted by the idle sweep is already unregistered and
	// announced; don't announce it a second time.
	wasRegistered := s.registry.IsRegistered(c.identity)
	s.registry.Unregister(c.identity)
	s.limiter.Forget(c.identity)
	s.log.Info().Str("identity", c.identity).Msg("client disconnected")

	if announce && wasRegistered && !s.closed.Load() {
		s.submitSystem(c.identity + " left the chat")
	}
}

func (s *Server) submitSystem(text string) {
	if err := s.broker.Submit(types.NewMessage(types.KindSystem, "server", text)); err != nil {
		s.log.Debug().Err(err).Msg("system message not submitted")
	}
}

// Addr returns the bound TCP address, usable once Start has returned.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the listeners and every live connection, then waits for the
// session goroutines to drain.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.closed.Store(true)

		if s.listener != nil {
			s.listener.Close()
		}
		if s.httpSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.httpSrv.Shutdown(ctx); err != nil {
				s.log.Warn().Err(err).Msg("websocket shutdown incomplete")
			}
		}

		s.mu.Lock()
		for _, c := range s.clients {
			_ = c.send("Server is shutting down. Goodbye.")
			c.conn.Close()
		}
		s.mu.Unlock()

		s.wg.Wait()
		s.log.Info().Msg("server stopped")
	})
}
