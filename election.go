package raft

import (
	"go.uber.org/zap"

	"github.com/quorumkv/raft/raftpb"
)

// startElection begins a new term as candidate. sticky is true only when
// prompted by an incoming TriggerLeaderElectionRequest from the current
// leader (a deliberate handoff); in that case disruption-avoidance
// stickiness (electionCountdown not yet expired) is bypassed, matching the
// spec's leader-transfer flow.
func (n *node) startElection(sticky bool) {
	if n.status != raftpb.StatusActive && n.status != raftpb.StatusUpdatingMembership {
		return
	}
	if !n.effectiveMembers.IsVoting(n.self.ID) {
		// A learner is not counted toward quorum until promoted, so it must
		// not start or force an election either.
		return
	}
	if n.l() {
		n.logger.Info("starting election", zap.Uint64("newTerm", uint64(n.term)+1))
	}
	n.role = raftpb.RoleCandidate
	n.leader = raftpb.Endpoint{}
	n.term++
	n.votedFor = n.self.ID
	n.persistTermAndVote()
	n.electionCountdown.reset()

	for id, m := range n.members {
		if id == n.self.ID {
			m.voteGranted = true
			continue
		}
		m.voteGranted = false
	}
	lastIndex := n.log.lastIndex()
	lastTerm := n.log.lastTerm()
	for id := range n.effectiveMembers.VotingMembers {
		if id == n.self.ID {
			continue
		}
		n.sendFunc(id, raftpb.NewVoteRequest(n.groupID(), n.self, n.term, lastIndex, lastTerm, sticky))
	}

	if n.quorumSize() == 1 {
		n.becomeLeader()
	}
}

func (n *node) processVoteRequest(msg raftpb.Message) {
	req := msg.VoteRequest
	// Disruption avoidance: a non-sticky candidate only earns a vote once
	// this node has gone long enough without hearing from a leader that its
	// own countdown has decayed to the low end of its jittered range. A
	// sticky request (from a deliberate TriggerLeaderElectionRequest handoff)
	// always bypasses this check.
	grantVote := n.effectiveMembers.IsVoting(msg.Sender.ID) &&
		(n.votedFor == "" || n.votedFor == msg.Sender.ID) &&
		n.candidateLogIsUpToDate(req.LastLogIndex, req.LastLogTerm) &&
		(req.Sticky || n.electionCountdown.ticks <= n.electionCountdown.min)
	if grantVote {
		n.votedFor = msg.Sender.ID
		n.persistTermAndVote()
		n.electionCountdown.reset()
		if n.l() {
			n.logger.Info("voted for candidate", zap.String("candidate", msg.Sender.ID), zap.Uint64("term", uint64(n.term)))
		}
	}
	n.sendFunc(msg.Sender.ID, raftpb.NewVoteResponse(n.groupID(), n.self, n.term, grantVote))
}

// candidateLogIsUpToDate implements the leader-completeness safeguard: a
// candidate's log must be at least as up to date as this node's, comparing
// term first and then length.
func (n *node) candidateLogIsUpToDate(lastLogIndex raftpb.LogIndex, lastLogTerm raftpb.Term) bool {
	myLastTerm := n.log.lastTerm()
	if lastLogTerm != myLastTerm {
		return lastLogTerm > myLastTerm
	}
	return lastLogIndex >= n.log.lastIndex()
}

func (n *node) processVoteResponse(msg raftpb.Message) {
	if n.role != raftpb.RoleCandidate {
		return
	}
	m, ok := n.members[msg.Sender.ID]
	if !ok {
		return
	}
	if msg.VoteResponse.Granted {
		m.voteGranted = true
	}
	votes := 0
	for id := range n.effectiveMembers.VotingMembers {
		if id == n.self.ID {
			votes++
			continue
		}
		if mm, ok := n.members[id]; ok && mm.voteGranted {
			votes++
		}
	}
	if votes >= n.quorumSize() {
		n.becomeLeader()
	}
}

func (n *node) processTriggerLeaderElectionRequest(msg raftpb.Message) {
	if n.role == raftpb.RoleLeader {
		return
	}
	n.startElection(true)
}

func (n *node) becomeFollower(term raftpb.Term, leader raftpb.Endpoint) {
	if n.l() {
		n.logger.Info("becoming follower", zap.Uint64("term", uint64(term)))
	}
	n.term = term
	n.leader = leader
	n.electionCountdown.reset()
	for _, m := range n.members {
		m.voteGranted = false
	}
	if n.membershipInFlight {
		n.membershipInFlight = false
		n.effectiveMembers = n.committedMembers.Clone()
		n.syncMembersFromEffective()
		if n.status == raftpb.StatusUpdatingMembership {
			n.status = raftpb.StatusActive
		}
	}
	if n.status == raftpb.StatusTerminatingGroup {
		n.status = raftpb.StatusActive
		if n.terminateFuture != nil {
			n.terminateFuture.resolve(struct{}{}, indeterminateErr())
			n.terminateFuture = nil
		}
	}
	n.role = n.resolveFollowerRole()
	n.resolvePendingTransfer(leader)
}

// resolveFollowerRole reports whether this node's non-candidate,
// non-leader role should be Follower or Learner, based on whether it
// currently holds a voting seat in effectiveMembers.
func (n *node) resolveFollowerRole() raftpb.Role {
	if n.effectiveMembers.IsVoting(n.self.ID) {
		return raftpb.RoleFollower
	}
	return raftpb.RoleLearner
}

func (n *node) becomeCandidate() {
	n.startElection(false)
}

func (n *node) becomeLeader() {
	if n.l() {
		n.logger.Info("becoming leader", zap.Uint64("term", uint64(n.term)))
	}
	n.role = raftpb.RoleLeader
	n.leader = n.self
	lastIndex := n.log.lastIndex()
	for _, m := range n.members {
		m.voteGranted = false
		m.next = lastIndex + 1
		m.match = 0
		m.acked = false
	}

	kind := raftpb.EntryNoop
	if n.cfg.EnableNewTermOperation {
		kind = raftpb.EntryNewTerm
	}
	entry := raftpb.LogEntry{Index: lastIndex + 1, Term: n.term, Kind: kind}
	if err := n.appendLocal(entry); err != nil {
		n.fail(err)
		return
	}
	n.heartbeatCountdown.reset()
	n.sendHeartbeats()

	if n.quorumSize() == 1 {
		n.updateCommit(n.log.lastIndex())
	}
}

func (n *node) groupID() string { return "default" }

// resolvePendingTransfer completes an in-flight TransferLeadership request
// once this node steps down: it succeeds if the newly known leader is the
// requested target, and fails otherwise (e.g. a third node won the
// election instead).
func (n *node) resolvePendingTransfer(newLeader raftpb.Endpoint) {
	if n.transferFuture == nil {
		return
	}
	if newLeader.ID == n.transferTarget {
		n.transferFuture.resolve(struct{}{}, nil)
	} else {
		n.transferFuture.resolve(struct{}{}, notLeader(newLeader))
	}
	n.transferFuture = nil
	n.transferTarget = ""
}

// appendLocal appends entry to the leader's own log and persists it,
// mirroring the durability-before-reply invariant: an append-success at
// index i implies entry i is already persisted.
func (n *node) appendLocal(entry raftpb.LogEntry) error {
	n.log.appendAt(entry.Index-1, entry)
	if err := n.store.PersistEntries([]raftpb.LogEntry{entry}); err != nil {
		return err
	}
	return n.store.Flush()
}
