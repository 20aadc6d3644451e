// Package bot implements the analytics consumer: statistics recording,
// command handling and the periodic report.
package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"netchat/internal/stats"
)

// maxArgLength caps the single argument accepted after a command name.
const maxArgLength = 64

const (
	replyUnknown    = "❌ Unknown command. Type /help for the list of commands."
	replyFailure    = "⚠️ The command could not be processed. Please try again."
	replyArgTooLong = "❌ Command argument is too long."

	helpText = `📋 Available commands:
/help - show this message
/stats [name] - statistics for a user
/top - most popular words
/users - users ranked by activity
/time - current server time
/uptime - how long the server has been running
/me - your personal statistics

💡 Type anything without a leading slash to send it to the chat.`
)

// Dispatcher maps a parsed command name to a response-producing handler over
// the aggregator's current state. Dispatch never panics through its boundary
// and never returns an empty reply.
type Dispatcher struct {
	stats     *stats.Aggregator
	startedAt time.Time
	log       zerolog.Logger
}

// NewDispatcher creates a dispatcher backed by the given aggregator.
func NewDispatcher(aggregator *stats.Aggregator, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		stats:     aggregator,
		startedAt: time.Now(),
		log:       log.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch parses raw ("/name [argument]") and produces the reply text.
// Internal failures are converted to a generic diagnostic so a bad handler
// can never crash the analytics worker.
func (d *Dispatcher) Dispatch(sender, raw string) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Str("sender", sender).
				Str("command", raw).
				Interface("panic", r).
				Msg("command handler panicked")
			reply = replyFailure
		}
	}()

	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "/"))
	name, arg, _ := strings.Cut(trimmed, " ")
	name = strings.ToLower(name)
	arg = strings.TrimSpace(arg)

	if len(arg) > maxArgLength {
		return replyArgTooLong
	}

	switch name {
	case "stats":
		return d.handleStats(sender, arg)
	case "me":
		return d.handleStats(sender, "")
	case "top":
		return d.handleTop()
	case "users", "online":
		return d.handleUsers()
	case "help":
		return helpText
	case "time":
		return "🕐 Server time: " + time.Now().Format("15:04:05")
	case "uptime":
		return "⏱ Uptime: " + time.Since(d.startedAt).Truncate(time.Second).String()
	default:
		return replyUnknown
	}
}

func (d *Dispatcher) handleStats(sender, arg string) string {
	target := arg
	if target == "" {
		target = sender
	}

	counts := d.stats.SnapshotUserCounts()
	messages, exists := counts[target]
	if !exists {
		return fmt.Sprintf("❌ User %q not found or has not sent any messages.", target)
	}

	_, rankLabel, _ := d.stats.Rank(target)

	var b strings.Builder
	fmt.Fprintf(&b, "📈 Stats for %s:\n", target)
	fmt.Fprintf(&b, "  • Messages: %d\n", messages)
	fmt.Fprintf(&b, "  • Activity: %s\n", activityLabel(messages))
	fmt.Fprintf(&b, "  • Rank: %s\n", rankLabel)
	fmt.Fprintf(&b, "  • Share: %s", shareBar(messages, d.stats.TotalMessages()))
	return b.String()
}

func (d *Dispatcher) handleTop() string {
	top := d.stats.TopWords(10)
	if len(top) == 0 {
		return "📊 Not enough data for word statistics yet."
	}

	var b strings.Builder
	b.WriteString("🔥 Top 10 popular words:\n")
	for i, word := range top {
		fmt.Fprintf(&b, "  %d. %q - %d times\n", i+1, word.Word, word.Count)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *Dispatcher) handleUsers() string {
	users := d.stats.TopUsers(0)

	var b strings.Builder
	fmt.Fprintf(&b, "👥 Users with recorded messages (%d):\n", len(users))
	for _, user := range users {
		fmt.Fprintf(&b, "  %s %s: %d messages\n",
			activityIcon(user.Messages), user.Identity, user.Messages)
	}
	fmt.Fprintf(&b, "\n📊 Total chat messages: %d", d.stats.TotalMessages())
	return b.String()
}

func activityLabel(messages int64) string {
	switch {
	case messages > 100:
		return "🔥 Very active"
	case messages > 50:
		return "⭐ Active"
	case messages > 10:
		return "👍 Average"
	default:
		return "👶 Getting started"
	}
}

func activityIcon(messages int64) string {
	switch {
	case messages > 50:
		return "💬"
	case messages > 10:
		return "🗨️"
	default:
		return "👤"
	}
}

// shareBar renders the target's share of all messages as a ten-cell bar.
func shareBar(messages, total int64) string {
	if total <= 0 {
		total = 1
	}
	share := float64(messages) / float64(total)
	filled := int(share*10 + 0.5)
	if filled > 10 {
		filled = 10
	}
	return fmt.Sprintf("[%s%s] %.0f%%",
		strings.Repeat("█", filled), strings.Repeat("·", 10-filled), share*100)
}
