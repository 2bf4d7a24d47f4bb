package raft

import (
	"go.uber.org/zap"

	"github.com/quorumkv/raft/raftpb"
)

// sendHeartbeats replicates outstanding entries (or, for a caught-up
// follower, an empty append as a heartbeat/read-barrier) to every voting
// and learner peer. Followers behind the log's snapshot boundary are
// redirected to InstallSnapshot instead, generalizing the teacher's
// heartbeatWithEntries to cover both paths.
func (n *node) sendHeartbeats() {
	for id, m := range n.members {
		if id == n.self.ID {
			continue
		}
		n.replicateTo(m, 0)
	}
}

// sendReadBarrier fans a read-index round identified by querySeqNo out to
// every peer via the same AppendEntriesRequest a normal heartbeat uses,
// generalizing the teacher's heartbeatWithContext.
func (n *node) sendReadBarrier(querySeqNo int64) {
	for id, m := range n.members {
		if id == n.self.ID {
			continue
		}
		n.replicateTo(m, querySeqNo)
	}
}

func (n *node) replicateTo(m *memberState, querySeqNo int64) {
	snapIndex, _ := n.log.snapshotBoundary()
	if m.next <= snapIndex {
		n.beginInstallSnapshot(m)
		return
	}

	prevIndex := m.next - 1
	prevTerm, ok := n.log.termAt(prevIndex)
	if !ok {
		n.beginInstallSnapshot(m)
		return
	}

	lastIndex := n.log.lastIndex()
	hi := lastIndex
	batch := raftpb.LogIndex(n.cfg.AppendEntriesRequestBatchSize)
	if hi > m.next+batch-1 {
		hi = m.next + batch - 1
	}
	var entries []raftpb.LogEntry
	if m.next <= lastIndex {
		entries = n.log.slice(m.next, hi)
	}

	m.flowControlSeqNo++
	n.sendFunc(m.id.ID, raftpb.NewAppendEntriesRequest(
		n.groupID(), n.self, n.term,
		prevIndex, prevTerm, entries, n.commitIndex,
		uint64(querySeqNo), m.flowControlSeqNo,
	))
}

func (n *node) processAppendEntriesRequest(msg raftpb.Message) {
	req := msg.AppendEntriesRequest
	n.leader = msg.Sender
	switch n.role {
	case raftpb.RoleFollower, raftpb.RoleLearner:
		n.electionCountdown.reset()
	case raftpb.RoleCandidate:
		n.becomeFollower(n.term, msg.Sender)
	}

	var matchIndex raftpb.LogIndex
	prevTerm, known := n.log.termAt(req.PreviousLogIndex)
	success := known && prevTerm == req.PreviousLogTerm
	if success {
		lastIndex, _ := n.log.appendAt(req.PreviousLogIndex, req.Entries...)
		matchIndex = lastIndex
		if len(req.Entries) > 0 {
			// A leader's entries always replace anything this follower had
			// persisted after PreviousLogIndex, the same conflict-truncation
			// raftLog.appendAt applies in memory.
			if err := n.store.TruncateEntriesFrom(req.PreviousLogIndex + 1); err != nil {
				n.fail(err)
				return
			}
			if err := n.store.PersistEntries(req.Entries); err != nil {
				n.fail(err)
				return
			}
			if err := n.store.Flush(); err != nil {
				n.fail(err)
				return
			}
		}
		if req.LeaderCommitIndex > n.commitIndex {
			newCommit := req.LeaderCommitIndex
			if newCommit > matchIndex {
				newCommit = matchIndex
			}
			n.updateCommit(newCommit)
		}
	}

	if success {
		n.sendFunc(msg.Sender.ID, raftpb.NewAppendEntriesSuccessResponse(
			n.groupID(), n.self, n.term, matchIndex, req.QuerySeqNo, req.FlowControlSeqNo))
	} else {
		n.sendFunc(msg.Sender.ID, raftpb.NewAppendEntriesFailureResponse(
			n.groupID(), n.self, n.term, n.conflictHint(req.PreviousLogIndex), req.FlowControlSeqNo))
	}
}

// conflictHint tells the leader where to retry from when this follower
// rejects an append: firstIndex if the rejected point already sits below
// what this log still holds (the leader needs to fall back to
// InstallSnapshot instead), otherwise one past this follower's own last
// entry, since the mismatch means the leader's view of this log is stale
// past that point.
func (n *node) conflictHint(rejectedPrevIndex raftpb.LogIndex) raftpb.LogIndex {
	if first := n.log.firstIndex(); rejectedPrevIndex < first {
		return first
	}
	return n.log.lastIndex() + 1
}

func (n *node) processAppendEntriesSuccessResponse(msg raftpb.Message) {
	if n.role != raftpb.RoleLeader {
		return
	}
	m, ok := n.members[msg.Sender.ID]
	if !ok {
		return
	}
	m.acked = true
	resp := msg.AppendEntriesSuccessResponse

	if resp.LastLogIndex > 0 {
		if resp.LastLogIndex > m.match {
			m.match = resp.LastLogIndex
		}
		m.next = m.match + 1
		quorumIndex := n.quorumMatchIndex()
		if term, ok := n.log.termAt(quorumIndex); ok && term == n.term && quorumIndex > n.commitIndex {
			n.updateCommit(quorumIndex)
			// Tell followers about the new commitIndex right away instead of
			// on the next heartbeat tick, so they apply the entry as well.
			n.sendHeartbeats()
		}
	}

	if resp.QuerySeqNo != 0 {
		n.ackReadContext(m, int64(resp.QuerySeqNo))
	}
}

func (n *node) processAppendEntriesFailureResponse(msg raftpb.Message) {
	if n.role != raftpb.RoleLeader {
		return
	}
	m, ok := n.members[msg.Sender.ID]
	if !ok {
		return
	}
	m.acked = true
	resp := msg.AppendEntriesFailureResponse
	if resp.ExpectedNextIndex < m.next && resp.ExpectedNextIndex > 0 {
		m.next = resp.ExpectedNextIndex
	} else if m.next > 1 {
		m.next--
	}
	if n.debug && n.l() {
		n.logger.Debug("decreased next index", zap.String("follower", m.id.ID), zap.Uint64("next", uint64(m.next)))
	}
}
