package raft

import (
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/quorumkv/raft/raftpb"
	"github.com/quorumkv/raft/raftstore"
	"github.com/quorumkv/raft/statemachine"
)

// ErrCanceled is returned when a caller's cancel channel fires before a
// request completes.
var ErrCanceled = errors.New("raft: request canceled")

// SubmitResult is what a successful Submit resolves to: the result the
// state machine's Apply returned for the committed operation.
type SubmitResult struct {
	Index  raftpb.LogIndex
	Term   raftpb.Term
	Result interface{}
}

// QueryResult is what a successful Query resolves to.
type QueryResult struct {
	Result interface{}
}

// submitRequest is sent on submitReqChan by Group.Submit.
type submitRequest struct {
	operation []byte
	kind      raftpb.EntryKind
	future    *future[SubmitResult]
}

// queryRequest is sent on queryReqChan by Group.Query. minCommitIndex is
// only meaningful for QueryEventual: the query blocks (bounded by
// Config.Clock) until commitIndex reaches it.
type queryRequest struct {
	operation      []byte
	policy         QueryPolicy
	minCommitIndex raftpb.LogIndex
	future         *future[QueryResult]
}

// membershipRequest is sent on membershipReqChan by Group.ChangeMembership.
type membershipRequest struct {
	addVoter                       *raftpb.Endpoint
	addLearner                     *raftpb.Endpoint
	removeID                       string
	promoteID                      string
	expectedGroupMembersCommitIndex raftpb.LogIndex
	future                         *future[SubmitResult]
}

// transferRequest is sent on transferReqChan by Group.TransferLeadership.
type transferRequest struct {
	targetID string
	future   *future[struct{}]
}

// terminateRequest is sent on terminateReqChan by Group.TerminateGroup.
type terminateRequest struct {
	future *future[struct{}]
}

// reportRequest is sent on reportReqChan by Group.Report.
type reportRequest struct {
	respChan chan Report
}

// node is the single-threaded cooperative Raft engine: every field below is
// touched only from run(), the same discipline the teacher's
// protocolStateMachine enforces by funneling all mutation through one
// select loop.
type node struct {
	cfg *Config

	self raftpb.Endpoint

	status raftpb.NodeStatus
	role   raftpb.Role

	term     raftpb.Term
	votedFor string
	leader   raftpb.Endpoint

	commitIndex  raftpb.LogIndex
	appliedIndex raftpb.LogIndex

	log   *raftLog
	store raftstore.Store
	sm    statemachine.StateMachine

	committedMembers raftpb.GroupMembers
	effectiveMembers raftpb.GroupMembers
	members          map[string]*memberState

	electionCountdown  *electionCountdown
	heartbeatCountdown *heartbeatCountdown

	readSeqNo     int64
	proposalSeqNo int64

	pendingSubmits         []*pendingSubmit
	pendingQueries         map[int64]*pendingQuery
	pendingEventualQueries []*pendingEventualQuery

	// pendingLeaderReadCtx is not read or written by the engine; in-flight
	// read-index rounds are tracked in pendingQueries.
	pendingLeaderReadCtx readContext

	membershipInFlight    bool
	membershipFuture      *future[SubmitResult]
	transferFuture        *future[struct{}]
	transferTarget        string
	terminateFuture       *future[struct{}]

	commitsSinceSnapshot int
	snapshotInFlight     bool
	lastSnapshotChunks   []raftpb.SnapshotChunk

	recvChan          <-chan raftpb.Message
	msgChan           chan raftpb.Message
	sendFunc          func(to string, msg raftpb.Message)
	submitReqChan     chan submitRequest
	queryReqChan      chan queryRequest
	membershipReqChan chan membershipRequest
	transferReqChan   chan transferRequest
	terminateReqChan  chan terminateRequest
	reportReqChan     chan reportRequest
	tickChan          chan struct{}
	stopChan          chan struct{}
	stoppedChan       chan struct{}

	logger *zap.Logger
	debug  bool
}

func newNode(cfg *Config, restored raftstore.RestoredState) *node {
	minTicks, maxTicks := cfg.electionTicksRange()
	n := &node{
		cfg:                cfg,
		self:               cfg.Self,
		status:             raftpb.StatusInitial,
		role:               raftpb.RoleFollower,
		term:               restored.CurrentTerm,
		votedFor:           restored.VotedFor,
		log:                newRaftLog(),
		store:              cfg.Store,
		sm:                 cfg.StateMachine,
		committedMembers:   restored.Members,
		effectiveMembers:   restored.Members,
		members:            make(map[string]*memberState),
		electionCountdown:  newElectionCountdown(minTicks, maxTicks, cfg.Rand),
		heartbeatCountdown: newHeartbeatCountdown(cfg.heartbeatTicks()),
		pendingQueries:     make(map[int64]*pendingQuery),
		recvChan:           cfg.Transport.Recv(),
		msgChan:            make(chan raftpb.Message),
		sendFunc:           cfg.Transport.Send,
		submitReqChan:      make(chan submitRequest),
		queryReqChan:       make(chan queryRequest),
		membershipReqChan:  make(chan membershipRequest),
		transferReqChan:    make(chan transferRequest),
		terminateReqChan:   make(chan terminateRequest),
		reportReqChan:      make(chan reportRequest),
		tickChan:           make(chan struct{}, 1),
		stopChan:           make(chan struct{}),
		stoppedChan:        make(chan struct{}),
		logger:             cfg.Logger,
		debug:              cfg.Debug,
	}
	if restored.Snapshot != nil {
		n.log.restore(restored.Snapshot.Index, restored.Snapshot.Term)
		n.appliedIndex = restored.Snapshot.Index
		n.commitIndex = restored.Snapshot.Index
		if err := n.sm.InstallSnapshot(restored.Snapshot.Payload); err != nil {
			n.logger.Error("failed to install restored snapshot", zap.Error(err))
		}
		n.lastSnapshotChunks = chunkSnapshot(restored.Snapshot.Index, restored.Snapshot.Term, restored.Snapshot.Payload, restored.Snapshot.Members)
	}
	if len(restored.Entries) > 0 {
		n.log.appendAt(n.log.lastIndex(), restored.Entries...)
	}
	for _, id := range n.effectiveMembers.MemberIDs() {
		n.members[id] = newMemberState(n.effectiveMembers.Members[id])
	}
	n.role = n.resolveFollowerRole()
	n.status = raftpb.StatusActive
	return n
}

func (n *node) l() bool { return n.logger != nil }

func (n *node) quorumSize() int { return n.effectiveMembers.QuorumSize() }

func (n *node) run() {
	defer close(n.stoppedChan)
	for {
		select {
		case <-n.stopChan:
			return
		case <-n.tickChan:
			n.handleTick()
		case msg := <-n.recvChan:
			n.processMessage(msg)
		case msg := <-n.msgChan:
			n.processMessage(msg)
		case req := <-n.submitReqChan:
			n.handleSubmit(req)
		case req := <-n.queryReqChan:
			n.handleQuery(req)
		case req := <-n.membershipReqChan:
			n.handleMembershipRequest(req)
		case req := <-n.transferReqChan:
			n.handleTransferRequest(req)
		case req := <-n.terminateReqChan:
			n.handleTerminateRequest(req)
		case req := <-n.reportReqChan:
			req.respChan <- n.buildReport()
		}
	}
}

func (n *node) handleTick() {
	if n.status == raftpb.StatusTerminated {
		return
	}
	n.expireEventualQueries()
	if n.role == raftpb.RoleLeader {
		if n.heartbeatCountdown.tick() {
			n.sendHeartbeats()
		}
		if n.electionCountdown.tick() {
			if !n.hasQuorumAcks() {
				if n.l() {
					n.logger.Info("no heartbeats acked within election timeout, stepping down")
				}
				n.becomeFollower(n.term, raftpb.Endpoint{})
			}
			n.resetAcks()
		}
		return
	}
	if n.electionCountdown.tick() {
		n.startElection(false)
	}
}

func (n *node) hasQuorumAcks() bool {
	acks := 0
	for id := range n.effectiveMembers.VotingMembers {
		if id == n.self.ID {
			acks++
			continue
		}
		if m, ok := n.members[id]; ok && m.acked {
			acks++
		}
	}
	return acks >= n.quorumSize()
}

func (n *node) resetAcks() {
	for _, m := range n.members {
		m.acked = false
	}
}

func (n *node) processMessage(msg raftpb.Message) {
	if n.status == raftpb.StatusTerminated {
		return
	}
	if msg.Term < n.term {
		if n.debug && n.l() {
			n.logger.Debug("ignoring stale message", zap.String("from", msg.Sender.ID), zap.String("kind", msg.Kind.String()))
		}
		return
	}
	if msg.Term > n.term {
		if n.l() {
			n.logger.Info("received message with higher term", zap.Uint64("term", uint64(msg.Term)))
		}
		n.term = msg.Term
		n.votedFor = ""
		n.persistTermAndVote()
		if n.role != raftpb.RoleFollower {
			n.becomeFollower(n.term, raftpb.Endpoint{})
		}
	}

	switch msg.Kind {
	case raftpb.MsgVoteRequest:
		n.processVoteRequest(msg)
	case raftpb.MsgVoteResponse:
		n.processVoteResponse(msg)
	case raftpb.MsgAppendEntriesRequest:
		n.processAppendEntriesRequest(msg)
	case raftpb.MsgAppendEntriesSuccessResponse:
		n.processAppendEntriesSuccessResponse(msg)
	case raftpb.MsgAppendEntriesFailureResponse:
		n.processAppendEntriesFailureResponse(msg)
	case raftpb.MsgInstallSnapshotRequest:
		n.processInstallSnapshotRequest(msg)
	case raftpb.MsgInstallSnapshotResponse:
		n.processInstallSnapshotResponse(msg)
	case raftpb.MsgTriggerLeaderElectionRequest:
		n.processTriggerLeaderElectionRequest(msg)
	}
}

func (n *node) persistTermAndVote() {
	if err := n.store.PersistTermAndVote(n.term, n.votedFor); err != nil {
		n.fail(err)
		return
	}
	if err := n.store.Flush(); err != nil {
		n.fail(err)
	}
}

// fail moves the node to Terminated after a durable store failure, per
// spec: "StoreError - durable storage failed; node is moving to
// Terminated."
func (n *node) fail(underlying error) {
	if n.l() {
		n.logger.Error("store failure, terminating node", zap.Error(underlying))
	}
	err := storeFailure(underlying)
	n.status = raftpb.StatusTerminated
	n.failPendingSubmits(err)
	n.failPendingQueries(err)
	n.failPendingEventualQueries(err)
}

func (n *node) updateCommit(newCommit raftpb.LogIndex) {
	if newCommit <= n.commitIndex {
		return
	}
	if n.debug && n.l() {
		n.logger.Debug("updating commit", zap.Uint64("old", uint64(n.commitIndex)), zap.Uint64("new", uint64(newCommit)))
	}
	n.commitIndex = newCommit
	n.applyCommitted()
	n.resolveEventualQueries()
	n.maybeTakeSnapshot()
}

func (n *node) applyCommitted() {
	for n.appliedIndex < n.commitIndex {
		idx := n.appliedIndex + 1
		entry := n.log.entryAt(idx)
		n.applyEntry(entry)
		n.appliedIndex = idx
	}
}

func (n *node) applyEntry(entry raftpb.LogEntry) {
	switch entry.Kind {
	case raftpb.EntryApply:
		result, err := n.sm.Apply(entry.Index, entry.Operation)
		n.resolveSubmitAt(entry.Index, entry.Term, result, err)
	case raftpb.EntryMembershipChange:
		n.applyMembershipChange(entry)
		n.resolveSubmitAt(entry.Index, entry.Term, nil, nil)
	case raftpb.EntryTerminateGroup:
		n.status = raftpb.StatusTerminated
		n.resolveSubmitAt(entry.Index, entry.Term, nil, nil)
		if n.terminateFuture != nil {
			n.terminateFuture.resolve(struct{}{}, nil)
			n.terminateFuture = nil
		}
	case raftpb.EntryNoop, raftpb.EntryNewTerm:
		n.resolveSubmitAt(entry.Index, entry.Term, nil, nil)
	}
}

func (n *node) resolveSubmitAt(index raftpb.LogIndex, term raftpb.Term, result interface{}, err error) {
	kept := n.pendingSubmits[:0]
	for _, p := range n.pendingSubmits {
		if p.index == index && p.term == term {
			p.future.resolve(SubmitResult{Index: index, Term: term, Result: result}, err)
			continue
		}
		if p.index == index && p.term != term {
			// The entry at this index was overwritten by a different
			// leader's term: the outcome is indeterminate to the
			// original proposer.
			p.future.resolve(SubmitResult{}, indeterminateErr())
			continue
		}
		kept = append(kept, p)
	}
	n.pendingSubmits = kept
}

func (n *node) failPendingSubmits(err error) {
	for _, p := range n.pendingSubmits {
		p.future.resolve(SubmitResult{}, err)
	}
	n.pendingSubmits = nil
}

func (n *node) failPendingQueries(err error) {
	for _, q := range n.pendingQueries {
		q.future.resolve(QueryResult{}, err)
	}
	n.pendingQueries = make(map[int64]*pendingQuery)
}

func (n *node) buildReport() Report {
	members := make(map[string]MemberReport, len(n.members))
	for id, m := range n.members {
		members[id] = MemberReport{
			ID:                 m.id,
			Match:              m.match,
			Next:               m.next,
			Acked:              m.acked,
			InstallingSnapshot: m.installingSnapshot,
		}
	}
	lastIdx := n.log.lastIndex()
	lastTerm := n.log.lastTerm()
	return Report{
		Self:             n.self,
		Status:           n.status,
		Role:             n.role,
		Term:             n.term,
		VotedFor:         n.votedFor,
		Leader:           n.leader,
		CommitIndex:      n.commitIndex,
		LastLogIndex:     lastIdx,
		LastLogTerm:      lastTerm,
		AppliedIndex:     n.appliedIndex,
		CommittedMembers: n.committedMembers.Clone(),
		EffectiveMembers: n.effectiveMembers.Clone(),
		Members:          members,
	}
}

// quorumMatchIndex returns the largest index acknowledged by a quorum of
// voting members, the same descending-sort technique the teacher's
// quorumMatchIndex uses.
func (n *node) quorumMatchIndex() raftpb.LogIndex {
	matches := make([]raftpb.LogIndex, 0, len(n.effectiveMembers.VotingMembers))
	for id := range n.effectiveMembers.VotingMembers {
		if id == n.self.ID {
			matches = append(matches, n.log.lastIndex())
			continue
		}
		if m, ok := n.members[id]; ok {
			matches = append(matches, m.match)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] > matches[j] })
	qs := n.quorumSize()
	if qs > len(matches) {
		return 0
	}
	return matches[qs-1]
}

func indeterminateErr() error {
	return errIndeterminateState
}
