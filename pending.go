package raft

import (
	"time"

	"github.com/google/uuid"

	"github.com/quorumkv/raft/raftpb"
)

// future is a single-resolution promise, generalizing the teacher's
// pattern of a buffered response channel per request kind (propRespChan,
// readRespChan, ...) into one reusable type so every request kind in this
// engine (submit, query, membership change, leadership transfer,
// termination) shares the same completion mechanism instead of each
// growing its own bespoke channel pair.
type future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *future[T] {
	return &future[T]{done: make(chan struct{})}
}

// resolve completes the future exactly once. Calling it more than once
// panics, since that would indicate the engine tried to answer the same
// request twice.
func (f *future[T]) resolve(val T, err error) {
	f.val = val
	f.err = err
	close(f.done)
}

// wait blocks until resolve is called or cancel fires, whichever comes
// first.
func (f *future[T]) wait(cancel <-chan struct{}) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-cancel:
		var zero T
		return zero, ErrCanceled
	}
}

// pendingSubmit is a proposal in flight from Submit to commit.
type pendingSubmit struct {
	seqNo  int64
	index  raftpb.LogIndex
	term   raftpb.Term
	future *future[SubmitResult]
}

// pendingQuery is a linearizable query in flight through a read-index
// round. corrID exists purely for log correlation across the leader and
// its followers' ack traffic; the protocol only keys on seqNo.
type pendingQuery struct {
	seqNo     int64
	corrID    uuid.UUID
	operation []byte
	acks      int
	future    *future[QueryResult]
}

// pendingEventualQuery is a QueryEventual call waiting for this node's
// commitIndex to catch up to minCommitIndex. deadline bounds that wait
// using Config.Clock, so a query against a node that never catches up
// (a partitioned follower, say) fails instead of hanging forever.
type pendingEventualQuery struct {
	minCommitIndex raftpb.LogIndex
	deadline       time.Time
	operation      []byte
	future         *future[QueryResult]
}
