package raft

import "github.com/quorumkv/raft/raftpb"

// handleTerminateRequest implements terminateGroup(): the leader commits an
// EntryTerminateGroup entry; once it is applied, every replica moves to
// Terminated and stops accepting further requests.
func (n *node) handleTerminateRequest(req terminateRequest) {
	if n.status == raftpb.StatusTerminated {
		req.future.resolve(struct{}{}, errTerminated)
		return
	}
	if n.role != raftpb.RoleLeader {
		req.future.resolve(struct{}{}, notLeader(n.leader))
		return
	}
	if n.terminateFuture != nil {
		req.future.resolve(struct{}{}, invalidArgument("group termination is already in flight"))
		return
	}

	index := n.log.lastIndex() + 1
	entry := raftpb.LogEntry{Index: index, Term: n.term, Kind: raftpb.EntryTerminateGroup}
	if err := n.appendLocal(entry); err != nil {
		n.fail(err)
		return
	}
	n.status = raftpb.StatusTerminatingGroup
	n.terminateFuture = req.future
	if n.quorumSize() == 1 {
		n.updateCommit(index)
		return
	}
	n.sendHeartbeats()
}

// handleTransferRequest implements transferLeadership(): the current leader
// sends the target a TriggerLeaderElectionRequest so it can jump straight
// to candidate, bypassing both its own election timeout and sticky-vote
// disruption avoidance (see raftpb.VoteRequest.Sticky).
func (n *node) handleTransferRequest(req transferRequest) {
	if n.role != raftpb.RoleLeader {
		req.future.resolve(struct{}{}, notLeader(n.leader))
		return
	}
	if !n.effectiveMembers.IsVoting(req.targetID) {
		req.future.resolve(struct{}{}, invalidArgument("transfer target is not a voting member"))
		return
	}
	if n.transferFuture != nil {
		req.future.resolve(struct{}{}, invalidArgument("a leadership transfer is already in flight"))
		return
	}
	n.transferFuture = req.future
	n.transferTarget = req.targetID
	n.sendFunc(req.targetID, raftpb.NewTriggerLeaderElectionRequest(n.groupID(), n.self, n.term))
}
