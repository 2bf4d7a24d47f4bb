package raft

import (
	"go.uber.org/zap"

	"github.com/quorumkv/raft/raftpb"
)

// maxSnapshotChunkBytes bounds how large a single SnapshotChunk payload can
// be, so a whole-state snapshot is always split into more than one chunk
// once it grows past a modest size, exercising the chunk protocol instead
// of degenerating into a single always-complete chunk.
const maxSnapshotChunkBytes = 1 << 16

// maybeTakeSnapshot is called after every commit advance. Only the leader
// initiates snapshots in this design: followers receive them via
// InstallSnapshot instead of taking their own, keeping the "when to
// snapshot" decision in one place.
func (n *node) maybeTakeSnapshot() {
	if n.role != raftpb.RoleLeader || n.snapshotInFlight {
		return
	}
	snapIndex, _ := n.log.snapshotBoundary()
	n.commitsSinceSnapshot = int(n.commitIndex - snapIndex)
	if n.commitsSinceSnapshot < n.cfg.CommitCountToTakeSnapshot {
		return
	}
	n.takeSnapshot()
}

func (n *node) takeSnapshot() {
	n.snapshotInFlight = true
	defer func() { n.snapshotInFlight = false }()

	snapIndex := n.commitIndex
	snapTerm, ok := n.log.termAt(snapIndex)
	if !ok {
		return
	}
	payload, err := n.sm.TakeSnapshot()
	if err != nil {
		if n.l() {
			n.logger.Error("failed to take snapshot", zap.Error(err))
		}
		return
	}

	oldSnapIndex, _ := n.log.snapshotBoundary()
	chunks := chunkSnapshot(snapIndex, snapTerm, payload, n.effectiveMembers)
	for _, c := range chunks {
		if err := n.store.PersistSnapshotChunk(c); err != nil {
			n.fail(err)
			return
		}
	}
	// Pruning entries the new snapshot now covers is left to the Store's own
	// background cleanup; the in-memory log already stops serving reads
	// below snapIndex once truncateAfterSnapshot runs below.
	if oldSnapIndex > 0 {
		if err := n.store.TruncateSnapshotChunksUntil(oldSnapIndex); err != nil {
			n.fail(err)
			return
		}
	}
	if err := n.store.Flush(); err != nil {
		n.fail(err)
		return
	}

	n.log.truncateAfterSnapshot(snapIndex, snapTerm)
	n.lastSnapshotChunks = chunks
	n.commitsSinceSnapshot = 0
	if n.l() {
		n.logger.Info("took snapshot", zap.Uint64("index", uint64(snapIndex)), zap.Int("chunks", len(chunks)))
	}
}

func chunkSnapshot(index raftpb.LogIndex, term raftpb.Term, payload []byte, members raftpb.GroupMembers) []raftpb.SnapshotChunk {
	if len(payload) == 0 {
		return []raftpb.SnapshotChunk{{
			SnapshotIndex: index, SnapshotTerm: term,
			ChunkIndex: 0, ChunkCount: 1,
			GroupMembersAtIndex: members.Clone(),
		}}
	}
	count := (len(payload) + maxSnapshotChunkBytes - 1) / maxSnapshotChunkBytes
	chunks := make([]raftpb.SnapshotChunk, 0, count)
	for i := 0; i < count; i++ {
		lo := i * maxSnapshotChunkBytes
		hi := lo + maxSnapshotChunkBytes
		if hi > len(payload) {
			hi = len(payload)
		}
		chunks = append(chunks, raftpb.SnapshotChunk{
			SnapshotIndex:       index,
			SnapshotTerm:        term,
			ChunkIndex:          i,
			ChunkCount:          count,
			Payload:             append([]byte(nil), payload[lo:hi]...),
			GroupMembersAtIndex: members.Clone(),
		})
	}
	return chunks
}

// beginInstallSnapshot points a lagging follower at the leader's most
// recent snapshot. If transferSnapshotsFromFollowersEnabled and another
// peer is already caught up to that snapshot, the follower is redirected
// there instead of pulling every chunk from the leader.
func (n *node) beginInstallSnapshot(m *memberState) {
	if len(n.lastSnapshotChunks) == 0 || m.installingSnapshot {
		return
	}
	m.installingSnapshot = true
	m.snapshotAcked = make(map[int]bool)

	var sourceHint *raftpb.Endpoint
	if n.cfg.TransferSnapshotsFromFollowersEnabled {
		snapIndex := n.lastSnapshotChunks[0].SnapshotIndex
		for id, peer := range n.members {
			if id == m.id.ID || id == n.self.ID {
				continue
			}
			if peer.match >= snapIndex && !peer.installingSnapshot {
				hint := peer.id
				sourceHint = &hint
				break
			}
		}
	}

	first := n.lastSnapshotChunks[0]
	n.sendFunc(m.id.ID, raftpb.NewInstallSnapshotRequest(
		n.groupID(), n.self, n.term,
		first.SnapshotIndex, first.SnapshotTerm, first.ChunkCount, n.lastSnapshotChunks,
		first.GroupMembersAtIndex, 0, sourceHint,
	))
}

func (n *node) processInstallSnapshotRequest(msg raftpb.Message) {
	req := msg.InstallSnapshotRequest
	n.leader = msg.Sender
	if n.role != raftpb.RoleFollower && n.role != raftpb.RoleLearner {
		n.becomeFollower(n.term, msg.Sender)
	}
	n.electionCountdown.reset()

	if req.SourceHint != nil {
		// Leader redirected us to a caught-up peer; ask that peer
		// directly instead of installing anything from this message.
		n.sendFunc(req.SourceHint.ID, raftpb.NewInstallSnapshotRequest(
			n.groupID(), n.self, n.term, req.SnapshotIndex, req.SnapshotTerm, 0, nil,
			raftpb.GroupMembers{}, 0, nil))
		return
	}

	if snapIdx, _ := n.log.snapshotBoundary(); snapIdx >= req.SnapshotIndex && n.appliedIndex >= req.SnapshotIndex {
		n.sendFunc(msg.Sender.ID, raftpb.NewInstallSnapshotResponse(n.groupID(), n.self, n.term, req.SnapshotIndex, nil))
		return
	}

	received := make(map[int][]byte, req.ChunkCount)
	for _, c := range req.Chunks {
		received[c.ChunkIndex] = c.Payload
	}
	var missing []int
	payload := make([]byte, 0)
	for i := 0; i < req.ChunkCount; i++ {
		b, ok := received[i]
		if !ok {
			missing = append(missing, i)
			continue
		}
		payload = append(payload, b...)
	}
	if len(missing) > 0 {
		n.sendFunc(msg.Sender.ID, raftpb.NewInstallSnapshotResponse(n.groupID(), n.self, n.term, req.SnapshotIndex, missing))
		return
	}

	if err := n.installSnapshot(req.SnapshotIndex, req.SnapshotTerm, payload, req.Chunks, req.GroupMembersAtIndex); err != nil {
		n.fail(err)
		return
	}
	n.sendFunc(msg.Sender.ID, raftpb.NewInstallSnapshotResponse(n.groupID(), n.self, n.term, req.SnapshotIndex, nil))
}

func (n *node) installSnapshot(index raftpb.LogIndex, term raftpb.Term, payload []byte, chunks []raftpb.SnapshotChunk, members raftpb.GroupMembers) error {
	for _, c := range chunks {
		if err := n.store.PersistSnapshotChunk(c); err != nil {
			return err
		}
	}
	if err := n.store.Flush(); err != nil {
		return err
	}
	if err := n.sm.InstallSnapshot(payload); err != nil {
		return err
	}
	n.log.restore(index, term)
	n.committedMembers = members.Clone()
	n.effectiveMembers = members.Clone()
	n.syncMembersFromEffective()
	n.role = n.resolveFollowerRole()
	n.commitIndex = index
	n.appliedIndex = index
	n.lastSnapshotChunks = chunks
	if n.l() {
		n.logger.Info("installed snapshot", zap.Uint64("index", uint64(index)))
	}
	return nil
}

func (n *node) processInstallSnapshotResponse(msg raftpb.Message) {
	if n.role != raftpb.RoleLeader {
		return
	}
	m, ok := n.members[msg.Sender.ID]
	if !ok {
		return
	}
	resp := msg.InstallSnapshotResponse
	if len(resp.Requested) == 0 {
		m.installingSnapshot = false
		m.match = resp.SnapshotIndex
		m.next = resp.SnapshotIndex + 1
		m.acked = true
		return
	}
	// Resend only the requested chunks.
	wanted := make(map[int]bool, len(resp.Requested))
	for _, idx := range resp.Requested {
		wanted[idx] = true
	}
	var resend []raftpb.SnapshotChunk
	for _, c := range n.lastSnapshotChunks {
		if wanted[c.ChunkIndex] {
			resend = append(resend, c)
		}
	}
	if len(resend) == 0 {
		return
	}
	first := resend[0]
	n.sendFunc(msg.Sender.ID, raftpb.NewInstallSnapshotRequest(
		n.groupID(), n.self, n.term,
		first.SnapshotIndex, first.SnapshotTerm, len(n.lastSnapshotChunks), resend,
		first.GroupMembersAtIndex, 0, nil,
	))
}
