// Package statemachine defines the interface between the Raft core and the
// application-defined data it replicates. The core never inspects an
// operation's bytes; it only knows when to hand them to Apply.
package statemachine

import "github.com/quorumkv/raft/raftpb"

// StateMachine is the application logic driven by a committed Raft log.
// Apply is called exactly once per committed EntryApply entry, in log
// order, and must be deterministic: given the same sequence of operations,
// every replica's StateMachine must reach the same observable state.
type StateMachine interface {
	// Apply executes operation, committed at index, and returns whatever
	// result the proposer's future should be resolved with.
	Apply(index raftpb.LogIndex, operation []byte) (interface{}, error)

	// RunOperation executes a read-only operation against the current
	// state without going through the log, for leader-local and
	// eventually-consistent query policies. It must not mutate state.
	RunOperation(operation []byte) (interface{}, error)

	// TakeSnapshot serializes the entire current state as of the last
	// applied index, for a leader that needs to catch up a lagging
	// follower cheaply.
	TakeSnapshot() ([]byte, error)

	// InstallSnapshot replaces the current state wholesale with a
	// previously produced snapshot.
	InstallSnapshot(payload []byte) error
}
