// Package stats maintains concurrent per-user and global chat statistics and
// renders them into bot-facing report text.
package stats

import (
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// tokenPattern strips everything outside Latin, Cyrillic and digit ranges.
// Text is lower-cased first, so upper ranges never appear here.
var tokenPattern = regexp.MustCompile(`[^a-zа-яё0-9]+`)

// minUniqueWordLen is the shortest token (in runes) counted toward the
// unique-word set and the global frequency table.
const minUniqueWordLen = 3

// userStats holds the counters for one identity. The numeric counters are
// atomic; the unique-word set has its own mutex because set membership is not
// an atomic primitive.
type userStats struct {
	messages atomic.Int64
	words    atomic.Int64
	lastSeen atomic.Int64 // unix nanoseconds

	uniqueMu sync.Mutex
	unique   map[string]struct{}
}

// Aggregator is the statistics engine fed by the analytics branch of the
// pipeline. Concurrent identities mutate disjoint per-user state and contend
// only on the shared maps, which are guarded independently. Snapshot reads
// may be stale relative to in-flight updates but are never torn.
type Aggregator struct {
	startedAt     time.Time
	totalMessages atomic.Int64
	totalWords    atomic.Int64

	// Trailing-minute counter, reset whenever more than 60s have elapsed
	// since the last reset.
	minuteCount atomic.Int64
	minuteReset atomic.Int64 // unix nanoseconds

	usersMu sync.RWMutex
	users   map[string]*userStats

	// The global frequency table is only ever incremented, never pruned;
	// it is bounded in practice by vocabulary size.
	wordsMu sync.RWMutex
	words   map[string]*atomic.Int64
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	a := &Aggregator{
		startedAt: time.Now(),
		users:     make(map[string]*userStats),
		words:     make(map[string]*atomic.Int64),
	}
	a.minuteReset.Store(time.Now().UnixNano())
	return a
}

// RecordUserMessage is the only mutating entry point. It tokenizes text and
// updates the per-user counters, the unique-word set and the global word
// frequency table.
func (a *Aggregator) RecordUserMessage(identity, text string) {
	now := time.Now().UnixNano()

	a.totalMessages.Add(1)
	if reset := a.minuteReset.Load(); now-reset > int64(time.Minute) {
		if a.minuteReset.CompareAndSwap(reset, now) {
			a.minuteCount.Store(0)
		}
	}
	a.minuteCount.Add(1)

	tokens := Tokenize(text)
	a.totalWords.Add(int64(len(tokens)))

	user := a.userFor(identity)
	user.messages.Add(1)
	user.words.Add(int64(len(tokens)))
	user.lastSeen.Store(now)

	for _, token := range tokens {
		if utf8.RuneCountInString(token) < minUniqueWordLen {
			continue
		}
		user.uniqueMu.Lock()
		user.unique[token] = struct{}{}
		user.uniqueMu.Unlock()

		a.wordCounter(token).Add(1)
	}
}

// Tokenize lower-cases text, strips non-alphanumeric characters (Latin and
// Cyrillic ranges) and splits on whitespace.
func Tokenize(text string) []string {
	cleaned := tokenPattern.ReplaceAllString(strings.ToLower(text), " ")
	return strings.Fields(cleaned)
}

// TotalMessages returns the number of user messages recorded since start.
func (a *Aggregator) TotalMessages() int64 {
	return a.totalMessages.Load()
}

// MessagesLastMinute returns the trailing-window message counter.
func (a *Aggregator) MessagesLastMinute() int64 {
	return a.minuteCount.Load()
}

// ActiveUserCount returns the number of identities with recorded messages.
func (a *Aggregator) ActiveUserCount() int {
	a.usersMu.RLock()
	defer a.usersMu.RUnlock()
	return len(a.users)
}

// Uptime returns the duration since the aggregator was created.
func (a *Aggregator) Uptime() time.Duration {
	return time.Since(a.startedAt)
}

// SnapshotUserCounts returns a point-in-time identity → message count view.
func (a *Aggregator) SnapshotUserCounts() map[string]int64 {
	a.usersMu.RLock()
	defer a.usersMu.RUnlock()

	counts := make(map[string]int64, len(a.users))
	for identity, user := range a.users {
		counts[identity] = user.messages.Load()
	}
	return counts
}

// SnapshotUserWordCounts returns a point-in-time identity → word count view.
func (a *Aggregator) SnapshotUserWordCounts() map[string]int64 {
	a.usersMu.RLock()
	defer a.usersMu.RUnlock()

	counts := make(map[string]int64, len(a.users))
	for identity, user := range a.users {
		counts[identity] = user.words.Load()
	}
	return counts
}

// SnapshotWordFrequency returns a point-in-time word → occurrence view of the
// global frequency table.
func (a *Aggregator) SnapshotWordFrequency() map[string]int64 {
	a.wordsMu.RLock()
	defer a.wordsMu.RUnlock()

	freq := make(map[string]int64, len(a.words))
	for word, counter := range a.words {
		freq[word] = counter.Load()
	}
	return freq
}

// UniqueWordCount returns the size of the identity's unique-word set.
func (a *Aggregator) UniqueWordCount(identity string) int {
	a.usersMu.RLock()
	user, exists := a.users[identity]
	a.usersMu.RUnlock()
	if !exists {
		return 0
	}

	user.uniqueMu.Lock()
	defer user.uniqueMu.Unlock()
	return len(user.unique)
}

// PruneInactive removes per-user entries idle past threshold that are not
// currently registered. Stats stay alive for connected-but-quiet users.
func (a *Aggregator) PruneInactive(threshold time.Duration, isRegistered func(identity string) bool) {
	now := time.Now().UnixNano()

	a.usersMu.Lock()
	defer a.usersMu.Unlock()

	for identity, user := range a.users {
		if now-user.lastSeen.Load() <= int64(threshold) {
			continue
		}
		if isRegistered != nil && isRegistered(identity) {
			continue
		}
		delete(a.users, identity)
	}
}

func (a *Aggregator) userFor(identity string) *userStats {
	a.usersMu.RLock()
	user, exists := a.users[identity]
	a.usersMu.RUnlock()
	if exists {
		return user
	}

	a.usersMu.Lock()
	defer a.usersMu.Unlock()
	if user, exists = a.users[identity]; exists {
		return user
	}
	user = &userStats{unique: make(map[string]struct{})}
	a.users[identity] = user
	return user
}

// wordCounter returns the counter for word, inserting it atomically on first
// sight so concurrent writers never lose an increment.
func (a *Aggregator) wordCounter(word string) *atomic.Int64 {
	a.wordsMu.RLock()
	counter, exists := a.words[word]
	a.wordsMu.RUnlock()
	if exists {
		return counter
	}

	a.wordsMu.Lock()
	defer a.wordsMu.Unlock()
	if counter, exists = a.words[word]; exists {
		return counter
	}
	counter = &atomic.Int64{}
	a.words[word] = counter
	return counter
}
