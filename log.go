package raft

import (
	"fmt"
	"sync"

	"github.com/quorumkv/raft/raftpb"
)

// raftLog holds the in-memory tail of the replicated log: everything after
// the most recent snapshot boundary. It generalizes the teacher's raftLog,
// which kept the entire log in one zero-based slice, to also track a
// snapshot boundary the way etcd's raft/log.go does: entries before
// snapshotIndex are not held in memory at all, only their (index, term)
// boundary is, and any read below that boundary is a programming error the
// caller must catch by first consulting snapshotIndex.
type raftLog struct {
	sync.RWMutex

	// snapshotIndex/snapshotTerm describe the last entry folded into the
	// most recent snapshot. entries[0] logically sits at snapshotIndex+1.
	snapshotIndex raftpb.LogIndex
	snapshotTerm  raftpb.Term

	entries []raftpb.LogEntry
}

func newRaftLog() *raftLog {
	return &raftLog{}
}

// restore resets the log to start fresh after snapshotIndex/snapshotTerm,
// discarding whatever tail it held. Used when installing a snapshot.
func (l *raftLog) restore(snapshotIndex raftpb.LogIndex, snapshotTerm raftpb.Term) {
	l.Lock()
	defer l.Unlock()
	l.snapshotIndex = snapshotIndex
	l.snapshotTerm = snapshotTerm
	l.entries = nil
}

// lastIndex returns the index of the last entry, or the snapshot boundary
// if the log tail is empty.
func (l *raftLog) lastIndex() raftpb.LogIndex {
	l.RLock()
	defer l.RUnlock()
	if len(l.entries) == 0 {
		return l.snapshotIndex
	}
	return l.entries[len(l.entries)-1].Index
}

// lastTerm returns the term of the last entry, or the snapshot boundary
// term if the log tail is empty.
func (l *raftLog) lastTerm() raftpb.Term {
	l.RLock()
	defer l.RUnlock()
	if len(l.entries) == 0 {
		return l.snapshotTerm
	}
	return l.entries[len(l.entries)-1].Term
}

// termAt returns the term of the entry at index i, and whether i is known
// to this log (either present in the tail or exactly the snapshot
// boundary). An index below the snapshot boundary is unknown: the caller
// must fall back to InstallSnapshot instead of AppendEntries.
func (l *raftLog) termAt(i raftpb.LogIndex) (raftpb.Term, bool) {
	l.RLock()
	defer l.RUnlock()
	if i == l.snapshotIndex {
		return l.snapshotTerm, true
	}
	if i < l.snapshotIndex {
		return 0, false
	}
	off := int(i - l.snapshotIndex - 1)
	if off < 0 || off >= len(l.entries) {
		return 0, false
	}
	return l.entries[off].Term, true
}

// entryAt returns the entry at index i. It panics if i is out of range;
// callers must check termAt or bounds first, same discipline the teacher's
// raftLog.entry expects from its callers.
func (l *raftLog) entryAt(i raftpb.LogIndex) raftpb.LogEntry {
	l.RLock()
	defer l.RUnlock()
	off := int(i - l.snapshotIndex - 1)
	if off < 0 || off >= len(l.entries) {
		panic(fmt.Sprintf("raft: log index %d out of range (snapshot=%d, len=%d)", i, l.snapshotIndex, len(l.entries)))
	}
	return l.entries[off]
}

// slice returns entries in [lo, hi], inclusive. Returns nil if lo > hi.
func (l *raftLog) slice(lo, hi raftpb.LogIndex) []raftpb.LogEntry {
	if lo > hi {
		return nil
	}
	l.RLock()
	defer l.RUnlock()
	loOff := int(lo - l.snapshotIndex - 1)
	hiOff := int(hi - l.snapshotIndex - 1)
	if loOff < 0 {
		loOff = 0
	}
	if hiOff >= len(l.entries) {
		hiOff = len(l.entries) - 1
	}
	if loOff > hiOff {
		return nil
	}
	out := make([]raftpb.LogEntry, hiOff-loOff+1)
	copy(out, l.entries[loOff:hiOff+1])
	return out
}

// appendAt truncates any tail after prevIndex and appends entries after it,
// mirroring the teacher's append(prev, entries...) semantics generalized
// for the snapshot boundary.
func (l *raftLog) appendAt(prevIndex raftpb.LogIndex, entries ...raftpb.LogEntry) (raftpb.LogIndex, raftpb.Term) {
	l.Lock()
	defer l.Unlock()
	cut := int(prevIndex - l.snapshotIndex)
	if cut < 0 {
		cut = 0
	}
	if cut > len(l.entries) {
		cut = len(l.entries)
	}
	l.entries = append(l.entries[:cut], entries...)
	if len(l.entries) == 0 {
		return l.snapshotIndex, l.snapshotTerm
	}
	last := l.entries[len(l.entries)-1]
	return last.Index, last.Term
}

// truncateAfterSnapshot discards entries covered by a newly taken snapshot
// up to and including newSnapshotIndex, keeping the tail after it. Unlike
// restore, the log's own tail is trusted (this is the leader/local
// snapshot path, not an install from a remote source).
func (l *raftLog) truncateAfterSnapshot(newSnapshotIndex raftpb.LogIndex, newSnapshotTerm raftpb.Term) {
	l.Lock()
	defer l.Unlock()
	cut := int(newSnapshotIndex - l.snapshotIndex)
	if cut < 0 {
		cut = 0
	}
	if cut > len(l.entries) {
		cut = len(l.entries)
	}
	l.entries = append([]raftpb.LogEntry(nil), l.entries[cut:]...)
	l.snapshotIndex = newSnapshotIndex
	l.snapshotTerm = newSnapshotTerm
}

func (l *raftLog) snapshotBoundary() (raftpb.LogIndex, raftpb.Term) {
	l.RLock()
	defer l.RUnlock()
	return l.snapshotIndex, l.snapshotTerm
}

// firstIndex returns the lowest index this log still holds, one past the
// snapshot boundary.
func (l *raftLog) firstIndex() raftpb.LogIndex {
	l.RLock()
	defer l.RUnlock()
	return l.snapshotIndex + 1
}
