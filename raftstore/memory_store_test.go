package raftstore

import (
	"testing"

	"github.com/quorumkv/raft/raftpb"
)

func TestMemoryStoreOpenEmpty(t *testing.T) {
	s := NewMemoryStore()
	state, err := s.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if state.CurrentTerm != 0 {
		t.Fatalf("expected term 0, got %d", state.CurrentTerm)
	}
	if len(state.Entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(state.Entries))
	}
	if state.Snapshot != nil {
		t.Fatalf("expected no snapshot")
	}
}

func TestMemoryStoreTermAndEntries(t *testing.T) {
	s := NewMemoryStore()
	if err := s.PersistTermAndVote(3, "n1"); err != nil {
		t.Fatalf("PersistTermAndVote: %v", err)
	}
	entries := []raftpb.LogEntry{
		{Index: 1, Term: 1, Kind: raftpb.EntryNoop},
		{Index: 2, Term: 2, Kind: raftpb.EntryApply, Operation: []byte("x")},
	}
	if err := s.PersistEntries(entries); err != nil {
		t.Fatalf("PersistEntries: %v", err)
	}
	state, err := s.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if state.CurrentTerm != 3 || state.VotedFor != "n1" {
		t.Fatalf("unexpected restored term/vote: %+v", state)
	}
	if len(state.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(state.Entries))
	}
}

func TestMemoryStoreTruncateEntriesFrom(t *testing.T) {
	s := NewMemoryStore()
	entries := []raftpb.LogEntry{
		{Index: 1, Term: 1},
		{Index: 2, Term: 1},
		{Index: 3, Term: 1},
	}
	if err := s.PersistEntries(entries); err != nil {
		t.Fatalf("PersistEntries: %v", err)
	}
	if err := s.TruncateEntriesFrom(2); err != nil {
		t.Fatalf("TruncateEntriesFrom: %v", err)
	}
	state, err := s.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(state.Entries) != 1 || state.Entries[0].Index != 1 {
		t.Fatalf("unexpected entries after truncate: %+v", state.Entries)
	}
}

func TestMemoryStoreSnapshotChunks(t *testing.T) {
	s := NewMemoryStore()
	members := raftpb.NewGroupMembers(5, []raftpb.Endpoint{{ID: "n1"}, {ID: "n2"}}, nil)
	chunks := []raftpb.SnapshotChunk{
		{SnapshotIndex: 5, SnapshotTerm: 2, ChunkIndex: 0, ChunkCount: 2, Payload: []byte("ab"), GroupMembersAtIndex: members},
		{SnapshotIndex: 5, SnapshotTerm: 2, ChunkIndex: 1, ChunkCount: 2, Payload: []byte("cd"), GroupMembersAtIndex: members},
	}
	for _, c := range chunks {
		if err := s.PersistSnapshotChunk(c); err != nil {
			t.Fatalf("PersistSnapshotChunk: %v", err)
		}
	}
	state, err := s.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if state.Snapshot == nil {
		t.Fatalf("expected assembled snapshot")
	}
	if string(state.Snapshot.Payload) != "abcd" {
		t.Fatalf("unexpected payload: %q", state.Snapshot.Payload)
	}
	if err := s.TruncateSnapshotChunksUntil(5); err != nil {
		t.Fatalf("TruncateSnapshotChunksUntil: %v", err)
	}
	if idxs := s.snapshotIndices(); len(idxs) != 0 {
		t.Fatalf("expected snapshot chunks gone, got %v", idxs)
	}
}

func TestMemoryStoreIncompleteSnapshotNotAssembled(t *testing.T) {
	s := NewMemoryStore()
	members := raftpb.NewGroupMembers(5, []raftpb.Endpoint{{ID: "n1"}}, nil)
	if err := s.PersistSnapshotChunk(raftpb.SnapshotChunk{
		SnapshotIndex: 5, SnapshotTerm: 2, ChunkIndex: 0, ChunkCount: 2, Payload: []byte("ab"), GroupMembersAtIndex: members,
	}); err != nil {
		t.Fatalf("PersistSnapshotChunk: %v", err)
	}
	state, err := s.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if state.Snapshot != nil {
		t.Fatalf("expected no snapshot assembled from incomplete chunks")
	}
}
