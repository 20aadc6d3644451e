// Package interfaces defines the contracts between pipeline components.
// Components accept these interfaces and return concrete types, which keeps
// the wiring in internal/app testable with mock implementations.
package interfaces

import "netchat/pkg/types"

// Submitter is the single ingress point of the routing pipeline. Everything
// that enters the system (session lines, system events, bot replies) goes
// through Submit.
type Submitter interface {
	// Submit enqueues a message for routing. It blocks while the inbound
	// queue is at capacity and returns an error once the pipeline has
	// stopped; a dropped message is never silently swallowed.
	Submit(msg types.Message) error
}
