// Package raftstore defines the durable persistence boundary of a Raft node:
// the current term and vote, the log entries, and snapshot chunks. A Store
// implementation is responsible for surviving process restarts; the node
// engine treats every method as capable of failing and never assumes a
// write landed until Flush returns nil.
package raftstore

import "github.com/quorumkv/raft/raftpb"

// RestoredState is everything a Store hands back on Open so a node can
// resume where it left off.
type RestoredState struct {
	CurrentTerm raftpb.Term
	VotedFor    string
	Entries     []raftpb.LogEntry
	Snapshot    *Snapshot
	Members     raftpb.GroupMembers
}

// Snapshot is the reassembled result of every persisted chunk for one
// snapshot index, in chunk order.
type Snapshot struct {
	Index   raftpb.LogIndex
	Term    raftpb.Term
	Payload []byte
	Members raftpb.GroupMembers
}

// Store is the durable persistence contract a Raft node depends on. Method
// names and responsibilities are grounded on microraft's RaftStore: initial
// membership is persisted once, term/vote changes are persisted as they
// occur, log entries and snapshot chunks are persisted and truncated
// independently, and Flush is the durability barrier a node waits on before
// acknowledging anything it wrote.
type Store interface {
	// Open loads whatever was previously persisted, or reports a freshly
	// initialized store if nothing was.
	Open() (RestoredState, error)

	// PersistInitialMembers records the group's founding membership. Called
	// at most once per store, before any term is persisted.
	PersistInitialMembers(members raftpb.GroupMembers) error

	// PersistTermAndVote records a term change and the vote (if any) cast in
	// that term. votedFor is empty when the node has not yet voted in term.
	PersistTermAndVote(term raftpb.Term, votedFor string) error

	// PersistEntries appends entries to the durable log. Entries must be
	// contiguous with what is already persisted.
	PersistEntries(entries []raftpb.LogEntry) error

	// TruncateEntriesFrom discards every persisted entry at or after index,
	// used when a conflicting leader overwrites a follower's tail.
	TruncateEntriesFrom(index raftpb.LogIndex) error

	// PersistSnapshotChunk records one chunk of a snapshot.
	PersistSnapshotChunk(chunk raftpb.SnapshotChunk) error

	// TruncateSnapshotChunksUntil discards every persisted chunk for
	// snapshots at or before index, once a newer snapshot supersedes them.
	// Pruning the log entries a new snapshot also covers is left as optional
	// background cleanup a Store implementation may perform on its own
	// schedule, the same way RaftStore's log eviction is not a dedicated
	// call a node ever has to make.
	TruncateSnapshotChunksUntil(index raftpb.LogIndex) error

	// Flush blocks until every prior Persist/Truncate call is durable.
	Flush() error

	// Close releases any resources held by the store.
	Close() error
}
