package raftstore

import (
	"sort"
	"sync"

	"github.com/quorumkv/raft/raftpb"
)

// MemoryStore is an in-memory Store, useful for tests and for nodes that
// accept losing state on crash. It mirrors the locking style of the
// teacher's KVStore: a single RWMutex guards a handful of plain maps and
// slices, favoring straightforward code over fine-grained locking.
type MemoryStore struct {
	mu sync.RWMutex

	opened      bool
	currentTerm raftpb.Term
	votedFor    string
	members     raftpb.GroupMembers
	entries     []raftpb.LogEntry
	chunks      map[raftpb.LogIndex]map[int]raftpb.SnapshotChunk
}

// NewMemoryStore returns an empty, unopened MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chunks: make(map[raftpb.LogIndex]map[int]raftpb.SnapshotChunk)}
}

// Open implements Store.
func (s *MemoryStore) Open() (RestoredState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true

	state := RestoredState{
		CurrentTerm: s.currentTerm,
		VotedFor:    s.votedFor,
		Entries:     append([]raftpb.LogEntry(nil), s.entries...),
		Members:     s.members.Clone(),
	}
	if snap := s.assembleLatestSnapshotLocked(); snap != nil {
		state.Snapshot = snap
	}
	return state, nil
}

func (s *MemoryStore) assembleLatestSnapshotLocked() *Snapshot {
	var latest raftpb.LogIndex
	for idx := range s.chunks {
		if idx > latest {
			latest = idx
		}
	}
	if latest == 0 {
		return nil
	}
	byIdx := s.chunks[latest]
	first, ok := byIdx[0]
	if !ok || len(byIdx) != first.ChunkCount {
		return nil
	}
	payload := make([]byte, 0)
	for i := 0; i < first.ChunkCount; i++ {
		c, ok := byIdx[i]
		if !ok {
			return nil
		}
		payload = append(payload, c.Payload...)
	}
	return &Snapshot{
		Index:   first.SnapshotIndex,
		Term:    first.SnapshotTerm,
		Payload: payload,
		Members: first.GroupMembersAtIndex.Clone(),
	}
}

// PersistInitialMembers implements Store.
func (s *MemoryStore) PersistInitialMembers(members raftpb.GroupMembers) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = members.Clone()
	return nil
}

// PersistTermAndVote implements Store.
func (s *MemoryStore) PersistTermAndVote(term raftpb.Term, votedFor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentTerm = term
	s.votedFor = votedFor
	return nil
}

// PersistEntries implements Store.
func (s *MemoryStore) PersistEntries(entries []raftpb.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	return nil
}

// TruncateEntriesFrom implements Store.
func (s *MemoryStore) TruncateEntriesFrom(index raftpb.LogIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cut := len(s.entries)
	for i, e := range s.entries {
		if e.Index >= index {
			cut = i
			break
		}
	}
	s.entries = s.entries[:cut]
	return nil
}

// PersistSnapshotChunk implements Store.
func (s *MemoryStore) PersistSnapshotChunk(chunk raftpb.SnapshotChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byIdx, ok := s.chunks[chunk.SnapshotIndex]
	if !ok {
		byIdx = make(map[int]raftpb.SnapshotChunk)
		s.chunks[chunk.SnapshotIndex] = byIdx
	}
	byIdx[chunk.ChunkIndex] = chunk
	return nil
}

// TruncateSnapshotChunksUntil implements Store.
func (s *MemoryStore) TruncateSnapshotChunksUntil(index raftpb.LogIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for idx := range s.chunks {
		if idx <= index {
			delete(s.chunks, idx)
		}
	}
	return nil
}

// Flush implements Store. MemoryStore has nothing to flush.
func (s *MemoryStore) Flush() error { return nil }

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// snapshotIndices returns the indices with a persisted snapshot, sorted, for
// tests that want to assert on store contents.
func (s *MemoryStore) snapshotIndices() []raftpb.LogIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	indices := make([]raftpb.LogIndex, 0, len(s.chunks))
	for idx := range s.chunks {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	return indices
}
