package raft

import (
	"testing"

	"github.com/quorumkv/raft/raftpb"
)

func TestRaftLogAppendAndLastIndex(t *testing.T) {
	l := newRaftLog()
	if idx := l.lastIndex(); idx != 0 {
		t.Fatalf("lastIndex on empty log = %d, want 0", idx)
	}
	l.appendAt(0,
		raftpb.LogEntry{Index: 1, Term: 1},
		raftpb.LogEntry{Index: 2, Term: 1},
	)
	if idx := l.lastIndex(); idx != 2 {
		t.Fatalf("lastIndex = %d, want 2", idx)
	}
	if term := l.lastTerm(); term != 1 {
		t.Fatalf("lastTerm = %d, want 1", term)
	}
}

func TestRaftLogAppendAtTruncatesConflictingTail(t *testing.T) {
	l := newRaftLog()
	l.appendAt(0,
		raftpb.LogEntry{Index: 1, Term: 1},
		raftpb.LogEntry{Index: 2, Term: 1},
		raftpb.LogEntry{Index: 3, Term: 1},
	)
	l.appendAt(1, raftpb.LogEntry{Index: 2, Term: 2})
	if idx := l.lastIndex(); idx != 2 {
		t.Fatalf("lastIndex after truncating append = %d, want 2", idx)
	}
	if term, ok := l.termAt(2); !ok || term != 2 {
		t.Fatalf("termAt(2) = (%d, %v), want (2, true)", term, ok)
	}
}

func TestRaftLogTermAtBeforeSnapshotBoundary(t *testing.T) {
	l := newRaftLog()
	l.restore(5, 3)
	if _, ok := l.termAt(4); ok {
		t.Fatalf("termAt below snapshot boundary should be unknown")
	}
	if term, ok := l.termAt(5); !ok || term != 3 {
		t.Fatalf("termAt(snapshotIndex) = (%d, %v), want (3, true)", term, ok)
	}
	if idx := l.lastIndex(); idx != 5 {
		t.Fatalf("lastIndex after restore = %d, want 5", idx)
	}
}

func TestRaftLogSliceAfterSnapshot(t *testing.T) {
	l := newRaftLog()
	l.restore(5, 3)
	l.appendAt(5,
		raftpb.LogEntry{Index: 6, Term: 3},
		raftpb.LogEntry{Index: 7, Term: 3},
	)
	entries := l.slice(6, 7)
	if len(entries) != 2 || entries[0].Index != 6 || entries[1].Index != 7 {
		t.Fatalf("slice(6,7) = %+v, want entries 6 and 7", entries)
	}
}

func TestRaftLogTruncateAfterSnapshot(t *testing.T) {
	l := newRaftLog()
	l.appendAt(0,
		raftpb.LogEntry{Index: 1, Term: 1},
		raftpb.LogEntry{Index: 2, Term: 1},
		raftpb.LogEntry{Index: 3, Term: 2},
	)
	l.truncateAfterSnapshot(2, 1)
	if idx, term := l.snapshotBoundary(); idx != 2 || term != 1 {
		t.Fatalf("snapshotBoundary = (%d, %d), want (2, 1)", idx, term)
	}
	entries := l.slice(1, 3)
	if len(entries) != 1 || entries[0].Index != 3 {
		t.Fatalf("slice after truncate = %+v, want only entry 3", entries)
	}
}

func TestRaftLogEntryAtPanicsOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("entryAt out of range did not panic")
		}
	}()
	l := newRaftLog()
	l.entryAt(1)
}
