package raft

import "github.com/quorumkv/raft/raftpb"

// handleSubmit implements submit(): only a leader appends new entries;
// followers get NotLeader so the caller can retry elsewhere. Bounds from
// Config guard against unbounded memory growth from a slow-committing
// leader or a runaway client.
func (n *node) handleSubmit(req submitRequest) {
	if n.status == raftpb.StatusTerminated {
		req.future.resolve(SubmitResult{}, errTerminated)
		return
	}
	if n.status != raftpb.StatusActive && n.status != raftpb.StatusUpdatingMembership {
		req.future.resolve(SubmitResult{}, errCannotReplicate)
		return
	}
	if n.role != raftpb.RoleLeader {
		req.future.resolve(SubmitResult{}, notLeader(n.leader))
		return
	}
	if len(n.pendingSubmits) >= n.cfg.MaxPendingLogEntryCount {
		req.future.resolve(SubmitResult{}, errCannotReplicate)
		return
	}
	if uint64(n.log.lastIndex()-n.commitIndex) >= uint64(n.cfg.MaxUncommittedLogEntryCount) {
		req.future.resolve(SubmitResult{}, errCannotReplicate)
		return
	}

	kind := req.kind
	if kind == raftpb.EntryNoop {
		kind = raftpb.EntryApply
	}
	index := n.log.lastIndex() + 1
	entry := raftpb.LogEntry{Index: index, Term: n.term, Kind: kind, Operation: req.operation}
	if err := n.appendLocal(entry); err != nil {
		n.fail(err)
		return
	}
	n.pendingSubmits = append(n.pendingSubmits, &pendingSubmit{index: index, term: n.term, future: req.future})

	if n.quorumSize() == 1 {
		n.updateCommit(index)
		return
	}
	n.sendHeartbeats()
}
