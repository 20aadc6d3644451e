package server

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"netchat/pkg/types"
)

// client pairs a registered identity with its connection. Writes are
// serialized through sendMu because broadcasts and the session loop may
// write concurrently.
type client struct {
	identity string
	conn     lineConn

	sendMu sync.Mutex
}

func (c *client) send(line string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.conn.WriteLine(line)
}

// runSession drives one connection from handshake to disconnect.
func (s *Server) runSession(conn lineConn) {
	defer conn.Close()

	identity, ok := s.handshake(conn)
	if !ok {
		return
	}

	c := &client{identity: identity, conn: conn}
	s.addClient(c)
	defer s.dropClient(c, true)

	_ = conn.WriteLine("Welcome to the chat, " + identity + "! Type /help for commands.")
	s.submitSystem(identity + " joined the chat")

	for {
		line, err := conn.ReadLine()
		if errors.Is(err, errLineTooLong) {
			_ = c.send("Message too long: the limit is " +
				strconv.Itoa(s.cfg.MaxMessageLength) + " characters.")
			continue
		}
		if err != nil {
			s.log.Debug().Str("identity", identity).Str("addr", conn.RemoteAddr()).Err(err).Msg("session read ended")
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if len(line) > s.cfg.MaxMessageLength {
			_ = c.send("Message too long: the limit is " +
				strconv.Itoa(s.cfg.MaxMessageLength) + " characters.")
			continue
		}

		if !s.registry.IsRegistered(identity) {
			// Evicted by the idle sweep while the connection stayed open.
			_ = c.send("You have been disconnected for inactivity.")
			return
		}

		if !s.limiter.Admit(identity) {
			_ = c.send("Rate limit exceeded, please slow down.")
			continue
		}

		kind := types.KindUser
		if strings.HasPrefix(line, "/") {
			kind = types.KindCommand
		}

		s.registry.Touch(identity)
		if err := s.broker.Submit(types.NewMessage(kind, identity, line)); err != nil {
			_ = c.send("The server is shutting down.")
			return
		}
	}
}

// handshake asks for a name and registers it. A failed registration closes
// the connection with a plain-text diagnostic.
func (s *Server) handshake(conn lineConn) (string, bool) {
	if err := conn.WriteLine("Enter your name:"); err != nil {
		return "", false
	}

	name, err := conn.ReadLine()
	if err != nil {
		return "", false
	}
	name = strings.TrimSpace(name)

	if err := s.registry.Register(name); err != nil {
		if name == "" {
			_ = conn.WriteLine("Name cannot be empty. Connection closed.")
		} else {
			_ = conn.WriteLine("Name " + name + " is already taken. Connection closed.")
		}
		s.log.Info().Str("addr", conn.RemoteAddr()).Err(err).Msg("registration rejected")
		return "", false
	}

	return name, true
}
