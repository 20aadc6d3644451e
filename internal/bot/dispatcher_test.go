package bot

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netchat/internal/stats"
)

func newTestDispatcher() (*Dispatcher, *stats.Aggregator) {
	aggregator := stats.NewAggregator()
	return NewDispatcher(aggregator, zerolog.Nop()), aggregator
}

func TestDispatch_StatsForUnknownUser(t *testing.T) {
	d, _ := newTestDispatcher()

	reply := d.Dispatch("alice", "/stats nobody")
	require.NotEmpty(t, reply)
	assert.Contains(t, reply, `"nobody"`)
	assert.Contains(t, reply, "not found")
}

func TestDispatch_StatsDefaultsToSender(t *testing.T) {
	d, aggregator := newTestDispatcher()
	aggregator.RecordUserMessage("alice", "hello world")

	reply := d.Dispatch("alice", "/stats")
	assert.Contains(t, reply, "Stats for alice")
	assert.Contains(t, reply, "Messages: 1")
	assert.Contains(t, reply, "Share: [")
}

func TestDispatch_StatsForOtherUser(t *testing.T) {
	d, aggregator := newTestDispatcher()
	aggregator.RecordUserMessage("bob", "hello")

	reply := d.Dispatch("alice", "/stats bob")
	assert.Contains(t, reply, "Stats for bob")
}

func TestDispatch_MeAliasesStats(t *testing.T) {
	d, aggregator := newTestDispatcher()
	aggregator.RecordUserMessage("alice", "hello")

	// /me ignores any argument and always reports on the sender.
	assert.Equal(t, d.Dispatch("alice", "/stats"), d.Dispatch("alice", "/me"))
}

func TestDispatch_Top(t *testing.T) {
	d, aggregator := newTestDispatcher()
	aggregator.RecordUserMessage("alice", "apple apple banana")

	reply := d.Dispatch("alice", "/top")
	assert.Contains(t, reply, `"apple" - 2 times`)
	assert.Contains(t, reply, `"banana" - 1 times`)
}

func TestDispatch_TopWithoutData(t *testing.T) {
	d, _ := newTestDispatcher()

	reply := d.Dispatch("alice", "/top")
	assert.Contains(t, reply, "Not enough data")
}

func TestDispatch_UsersSortedByCount(t *testing.T) {
	d, aggregator := newTestDispatcher()
	aggregator.RecordUserMessage("bob", "one")
	aggregator.RecordUserMessage("alice", "one")
	aggregator.RecordUserMessage("alice", "two")

	reply := d.Dispatch("alice", "/users")
	aliceIdx := strings.Index(reply, "alice")
	bobIdx := strings.Index(reply, "bob")
	require.GreaterOrEqual(t, aliceIdx, 0)
	require.GreaterOrEqual(t, bobIdx, 0)
	assert.Less(t, aliceIdx, bobIdx, "higher count should be listed first")
	assert.Contains(t, reply, "Total chat messages: 3")
}

func TestDispatch_OnlineAliasesUsers(t *testing.T) {
	d, aggregator := newTestDispatcher()
	aggregator.RecordUserMessage("alice", "hi")

	assert.Equal(t, d.Dispatch("alice", "/users"), d.Dispatch("alice", "/online"))
}

func TestDispatch_Help(t *testing.T) {
	d, _ := newTestDispatcher()

	reply := d.Dispatch("alice", "/help")
	for _, command := range []string{"/stats", "/top", "/users", "/time", "/me"} {
		assert.Contains(t, reply, command)
	}
}

func TestDispatch_TimeAndUptime(t *testing.T) {
	d, _ := newTestDispatcher()

	assert.Contains(t, d.Dispatch("alice", "/time"), "Server time:")
	assert.Contains(t, d.Dispatch("alice", "/uptime"), "Uptime:")
}

func TestDispatch_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher()

	assert.Equal(t, replyUnknown, d.Dispatch("alice", "/frobnicate"))
}

func TestDispatch_CaseInsensitiveName(t *testing.T) {
	d, _ := newTestDispatcher()

	assert.Contains(t, d.Dispatch("alice", "/HELP"), "Available commands")
}

func TestDispatch_ArgumentTooLong(t *testing.T) {
	d, _ := newTestDispatcher()

	reply := d.Dispatch("alice", "/stats "+strings.Repeat("x", maxArgLength+1))
	assert.Equal(t, replyArgTooLong, reply)
}

func TestDispatch_RecoversFromPanic(t *testing.T) {
	// A dispatcher with a nil aggregator panics inside every stats-backed
	// handler; the boundary must turn that into a diagnostic reply.
	d := NewDispatcher(nil, zerolog.Nop())

	assert.Equal(t, replyFailure, d.Dispatch("alice", "/stats"))
}

func TestShareBar(t *testing.T) {
	assert.Equal(t, "[█████·····] 50%", shareBar(5, 10))
	assert.Equal(t, "[██████████] 100%", shareBar(10, 10))
	assert.Equal(t, "[··········] 0%", shareBar(0, 10))
}
