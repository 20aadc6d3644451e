package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Rank labels. Position 1 has its own label; the percentile tiers below it
// use a strictly-greater comparison, so users with equal counts share the
// same tier boundary.
const (
	rankFirst    = "🥇 #1"
	rankTop10    = "🏆 Top 10%"
	rankTop25    = "🥈 Top 25%"
	rankTop50    = "🥉 Top 50%"
	rankBaseline = "🎖️ Newcomer"
)

// UserCount pairs an identity with its message count for ranked listings.
type UserCount struct {
	Identity string
	Messages int64
}

// WordCount pairs a word with its global occurrence count.
type WordCount struct {
	Word  string
	Count int64
}

// TopUsers returns up to n identities ordered by message count, highest
// first. The sort is stable with no secondary key.
func (a *Aggregator) TopUsers(n int) []UserCount {
	counts := a.SnapshotUserCounts()

	users := make([]UserCount, 0, len(counts))
	for identity, messages := range counts {
		users = append(users, UserCount{Identity: identity, Messages: messages})
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].Messages > users[j].Messages
	})

	if n > 0 && len(users) > n {
		users = users[:n]
	}
	return users
}

// TopWords returns up to n words from the global frequency table, highest
// first. Stable sort by count descending, no defined tiebreak.
func (a *Aggregator) TopWords(n int) []WordCount {
	freq := a.SnapshotWordFrequency()

	words := make([]WordCount, 0, len(freq))
	for word, count := range freq {
		words = append(words, WordCount{Word: word, Count: count})
	}
	sort.SliceStable(words, func(i, j int) bool {
		return words[i].Count > words[j].Count
	})

	if n > 0 && len(words) > n {
		words = words[:n]
	}
	return words
}

// Rank computes the identity's standing among all identities with recorded
// messages: position = 1 + count of identities with a strictly greater
// count, percentile = position / total * 100. ok is false when the identity
// has no recorded messages.
func (a *Aggregator) Rank(identity string) (position int, label string, ok bool) {
	counts := a.SnapshotUserCounts()
	own, ok := counts[identity]
	if !ok {
		return 0, "", false
	}

	above := 0
	for _, count := range counts {
		if count > own {
			above++
		}
	}
	position = above + 1

	if position == 1 {
		return position, rankFirst, true
	}
	percentile := float64(position) / float64(len(counts)) * 100
	switch {
	case percentile <= 10:
		label = rankTop10
	case percentile <= 25:
		label = rankTop25
	case percentile <= 50:
		label = rankTop50
	default:
		label = rankBaseline
	}
	return position, label, true
}

// GenerateReport renders the periodic bot report: timestamp, totals, the
// trailing-minute counter, top-3 users and top-5 words.
func (a *Aggregator) GenerateReport() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Time: %s\n", time.Now().Format("15:04:05"))
	fmt.Fprintf(&b, "Total messages: %d\n", a.TotalMessages())
	fmt.Fprintf(&b, "Messages in the last minute: %d\n", a.MessagesLastMinute())
	fmt.Fprintf(&b, "Active users: %d\n", a.ActiveUserCount())

	wordCounts := a.SnapshotUserWordCounts()
	b.WriteString("\n🏆 Top 3 users:\n")
	for _, user := range a.TopUsers(3) {
		fmt.Fprintf(&b, "  %s: %d messages, %d words\n",
			user.Identity, user.Messages, wordCounts[user.Identity])
	}

	b.WriteString("\n🔥 Popular words:\n")
	for _, word := range a.TopWords(5) {
		fmt.Fprintf(&b, "  %q - %d times\n", word.Word, word.Count)
	}

	return b.String()
}
