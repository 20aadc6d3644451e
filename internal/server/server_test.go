package server

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netchat/internal/bot"
	"netchat/internal/broker"
	"netchat/internal/config"
	"netchat/internal/ratelimit"
	"netchat/internal/registry"
	"netchat/internal/stats"
	"netchat/pkg/types"
)

func TestFormatLine(t *testing.T) {
	testCases := []struct {
		name     string
		msg      types.Message
		expected string
	}{
		{"user message", types.NewMessage(types.KindUser, "alice", "hi there"), "[alice] hi there"},
		{"system message", types.NewMessage(types.KindSystem, "server", "bob joined the chat"), "[SYSTEM] bob joined the chat"},
		{"bot reply", types.NewMessage(types.KindStatistics, "Analytics", "Total messages: 3"), "[BOT] Total messages: 3"},
		{"command echoes as sender line", types.NewMessage(types.KindCommand, "alice", "/help"), "[alice] /help"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, formatLine(tc.msg))
		})
	}
}

// testChat wires the full pipeline behind a real TCP listener on an
// ephemeral port.
func startTestChat(t *testing.T, maxSessions int) *Server {
	t.Helper()

	log := zerolog.Nop()
	reg := registry.New(log)
	limiter := ratelimit.New(1000, time.Minute)
	aggregator := stats.NewAggregator()

	brokerCfg := broker.DefaultConfig()
	brokerCfg.SweepInterval = 0
	brokerCfg.MonitorInterval = 0
	brokerCfg.ShutdownGrace = time.Second

	b := broker.New(brokerCfg, reg, limiter, aggregator, log)
	analytics := bot.New("Analytics", aggregator, bot.NewDispatcher(aggregator, log), b, 0, log)

	serverCfg := config.ServerConfig{
		Host:             "127.0.0.1",
		Port:             0,
		MaxSessions:      maxSessions,
		MaxMessageLength: 100,
		WriteTimeout:     5 * time.Second,
	}
	srv := New(serverCfg, b, reg, limiter, log)

	b.SetBroadcastFunc(srv.Broadcast)
	b.SetAnalyticsSink(analytics)
	require.NoError(t, b.Start())
	require.NoError(t, srv.Start())

	t.Cleanup(func() {
		srv.Stop()
		b.Stop()
	})
	return srv
}

type testClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dialTestChat(t *testing.T, addr, name string) *testClient {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	tc := &testClient{conn: conn, reader: bufio.NewReader(conn)}
	require.Equal(t, "Enter your name:", tc.readLine(t))
	tc.writeLine(t, name)
	return tc
}

func (c *testClient) readLine(t *testing.T) string {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	line, err := c.reader.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimRight(line, "\r\n")
}

func (c *testClient) writeLine(t *testing.T, line string) {
	t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

// waitForLine reads until a line containing want arrives.
func (c *testClient) waitForLine(t *testing.T, want string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		line := c.readLine(t)
		if strings.Contains(line, want) {
			return line
		}
	}
	t.Fatalf("line containing %q never arrived", want)
	return ""
}

func TestChat_TwoClientsExchangeMessages(t *testing.T) {
	srv := startTestChat(t, 10)

	alice := dialTestChat(t, srv.Addr(), "alice")
	alice.waitForLine(t, "Welcome to the chat, alice")

	bob := dialTestChat(t, srv.Addr(), "bob")
	bob.waitForLine(t, "Welcome to the chat, bob")

	// Alice sees Bob's arrival, then his message, with sender and text intact.
	alice.waitForLine(t, "[SYSTEM] bob joined the chat")
	bob.writeLine(t, "hello alice")
	assert.Equal(t, "[bob] hello alice", alice.waitForLine(t, "[bob]"))
}

func TestChat_DuplicateNameRejected(t *testing.T) {
	srv := startTestChat(t, 10)

	alice := dialTestChat(t, srv.Addr(), "alice")
	alice.waitForLine(t, "Welcome to the chat, alice")

	dup := dialTestChat(t, srv.Addr(), "alice")
	assert.Contains(t, dup.readLine(t), "already taken")
}

func TestChat_EmptyNameRejected(t *testing.T) {
	srv := startTestChat(t, 10)

	conn, err := net.DialTimeout("tcp", srv.Addr(), 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	reader := bufio.NewReader(conn)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = reader.ReadString('\n')
	require.NoError(t, err)

	_, err = conn.Write([]byte("   \n"))
	require.NoError(t, err)

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "cannot be empty")
}

func TestChat_SessionCap(t *testing.T) {
	srv := startTestChat(t, 1)

	alice := dialTestChat(t, srv.Addr(), "alice")
	alice.waitForLine(t, "Welcome to the chat, alice")

	conn, err := net.DialTimeout("tcp", srv.Addr(), 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "Server is full")
}

func TestChat_SessionCapCountsHandshakes(t *testing.T) {
	srv := startTestChat(t, 1)

	// The first connection holds its slot while still sitting in the
	// handshake; the cap must already apply to the second.
	first, err := net.DialTimeout("tcp", srv.Addr(), 5*time.Second)
	require.NoError(t, err)
	defer first.Close()

	require.NoError(t, first.SetReadDeadline(time.Now().Add(5*time.Second)))
	prompt, err := bufio.NewReader(first).ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, prompt, "Enter your name:")

	second, err := net.DialTimeout("tcp", srv.Addr(), 5*time.Second)
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, second.SetReadDeadline(time.Now().Add(5*time.Second)))
	line, err := bufio.NewReader(second).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "Server is full")
}

func TestChat_CommandReply(t *testing.T) {
	srv := startTestChat(t, 10)

	alice := dialTestChat(t, srv.Addr(), "alice")
	alice.waitForLine(t, "Welcome to the chat, alice")

	alice.writeLine(t, "/help")
	assert.Contains(t, alice.waitForLine(t, "[BOT]"), "Available commands")
}

func TestChat_MessageTooLong(t *testing.T) {
	srv := startTestChat(t, 10)

	alice := dialTestChat(t, srv.Addr(), "alice")
	alice.waitForLine(t, "Welcome to the chat, alice")

	alice.writeLine(t, strings.Repeat("x", 200))
	assert.Contains(t, alice.waitForLine(t, "Message too long"), "100 characters")
}

func TestChat_OversizedLineBounded(t *testing.T) {
	srv := startTestChat(t, 10)

	alice := dialTestChat(t, srv.Addr(), "alice")
	alice.waitForLine(t, "Welcome to the chat, alice")

	// A line far beyond the buffered read bound is discarded without
	// buffering it whole; the session keeps working afterwards.
	alice.writeLine(t, strings.Repeat("x", 64*1024))
	alice.waitForLine(t, "Message too long")

	alice.writeLine(t, "still here")
	assert.Equal(t, "[alice] still here", alice.waitForLine(t, "[alice]"))
}

func TestChat_DepartureAnnounced(t *testing.T) {
	srv := startTestChat(t, 10)

	alice := dialTestChat(t, srv.Addr(), "alice")
	alice.waitForLine(t, "Welcome to the chat, alice")

	bob := dialTestChat(t, srv.Addr(), "bob")
	bob.waitForLine(t, "Welcome to the chat, bob")
	alice.waitForLine(t, "bob joined the chat")

	bob.conn.Close()
	alice.waitForLine(t, "[SYSTEM] bob left the chat")
}
