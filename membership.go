package raft

import (
	"go.uber.org/zap"

	"github.com/quorumkv/raft/raftpb"
)

// handleMembershipRequest implements the single-server-at-a-time
// membership change rule: at most one uncommitted change may be
// outstanding, enforced by membershipInFlight, and the caller must name
// the committed membership index they read before proposing, guarding
// against a stale view of the group.
func (n *node) handleMembershipRequest(req membershipRequest) {
	if n.role != raftpb.RoleLeader {
		req.future.resolve(SubmitResult{}, notLeader(n.leader))
		return
	}
	if n.status != raftpb.StatusActive {
		req.future.resolve(SubmitResult{}, errCannotReplicate)
		return
	}
	if n.membershipInFlight {
		req.future.resolve(SubmitResult{}, invalidArgument("a membership change is already in flight"))
		return
	}
	if req.expectedGroupMembersCommitIndex != n.committedMembers.LogIndex {
		req.future.resolve(SubmitResult{}, invalidArgument("expectedGroupMembersCommitIndex is stale"))
		return
	}

	newMembers, err := n.computeMembershipChange(req)
	if err != nil {
		req.future.resolve(SubmitResult{}, err)
		return
	}

	nextIndex := n.log.lastIndex() + 1
	newMembers.LogIndex = nextIndex
	payload, err := raftpb.EncodeMembershipChange(req.addVoter, req.addLearner, req.removeID, req.promoteID)
	if err != nil {
		req.future.resolve(SubmitResult{}, invalidArgument(err.Error()))
		return
	}
	entry := raftpb.LogEntry{Index: nextIndex, Term: n.term, Kind: raftpb.EntryMembershipChange, Operation: payload}
	if err := n.appendLocal(entry); err != nil {
		n.fail(err)
		return
	}

	n.status = raftpb.StatusUpdatingMembership
	n.membershipInFlight = true
	n.effectiveMembers = newMembers
	n.syncMembersFromEffective()
	n.pendingSubmits = append(n.pendingSubmits, &pendingSubmit{index: nextIndex, term: n.term, future: req.future})
	if n.quorumSize() == 1 {
		n.updateCommit(nextIndex)
		return
	}
	n.sendHeartbeats()
}

func (n *node) computeMembershipChange(req membershipRequest) (raftpb.GroupMembers, error) {
	members := n.effectiveMembers.Clone()
	switch {
	case req.addVoter != nil:
		if members.IsMember(req.addVoter.ID) {
			return members, invalidArgument("endpoint is already a member")
		}
		members.Members[req.addVoter.ID] = *req.addVoter
		members.VotingMembers[req.addVoter.ID] = struct{}{}
	case req.addLearner != nil:
		if members.IsMember(req.addLearner.ID) {
			return members, invalidArgument("endpoint is already a member")
		}
		members.Members[req.addLearner.ID] = *req.addLearner
	case req.removeID != "":
		if !members.IsMember(req.removeID) {
			return members, invalidArgument("unknown endpoint")
		}
		delete(members.Members, req.removeID)
		delete(members.VotingMembers, req.removeID)
	case req.promoteID != "":
		if !members.IsMember(req.promoteID) {
			return members, invalidArgument("unknown endpoint")
		}
		members.VotingMembers[req.promoteID] = struct{}{}
	default:
		return members, invalidArgument("no membership change specified")
	}
	return members, nil
}

// applyMembershipChange is called once the EntryMembershipChange entry
// committing this change reaches commitIndex; it makes the change durable
// in committedMembers and clears the in-flight flag.
func (n *node) applyMembershipChange(entry raftpb.LogEntry) {
	addVoter, addLearner, removeID, promoteID, err := raftpb.DecodeMembershipChange(entry.Operation)
	if err != nil {
		if n.l() {
			n.logger.Error("failed to decode membership change", zap.Error(err))
		}
		return
	}
	members := n.committedMembers.Clone()
	members.LogIndex = entry.Index
	switch {
	case addVoter != nil:
		members.Members[addVoter.ID] = *addVoter
		members.VotingMembers[addVoter.ID] = struct{}{}
	case addLearner != nil:
		members.Members[addLearner.ID] = *addLearner
	case removeID != "":
		delete(members.Members, removeID)
		delete(members.VotingMembers, removeID)
	case promoteID != "":
		members.VotingMembers[promoteID] = struct{}{}
	}
	n.committedMembers = members
	n.membershipInFlight = false
	if n.status == raftpb.StatusUpdatingMembership {
		n.status = raftpb.StatusActive
	}
	if n.l() {
		n.logger.Info("committed membership change", zap.Uint64("index", uint64(entry.Index)))
	}
}

// syncMembersFromEffective rebuilds n.members from n.effectiveMembers,
// preserving replication progress for retained peers and dropping state
// for removed ones.
func (n *node) syncMembersFromEffective() {
	next := make(map[string]*memberState, len(n.effectiveMembers.Members))
	for id, ep := range n.effectiveMembers.Members {
		if existing, ok := n.members[id]; ok {
			next[id] = existing
			continue
		}
		m := newMemberState(ep)
		m.next = n.log.lastIndex() + 1
		next[id] = m
	}
	n.members = next
}
