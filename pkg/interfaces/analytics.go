package interfaces

import (
	"time"

	"netchat/pkg/types"
)

// AnalyticsSink consumes messages from the analytics branch of the pipeline.
// Delivery to the sink is best-effort: the broker may drop analytics messages
// under backpressure rather than stall chat delivery.
type AnalyticsSink interface {
	Consume(msg types.Message)
}

// StatsPruner removes stale per-user statistics. isRegistered lets the
// implementation keep entries alive for connected-but-quiet users.
type StatsPruner interface {
	PruneInactive(threshold time.Duration, isRegistered func(identity string) bool)
}

// CommandHandler turns a raw command line into a reply for the sender.
// Implementations must never panic through this boundary; any internal
// failure becomes a generic diagnostic reply.
type CommandHandler interface {
	Dispatch(sender, raw string) string
}
