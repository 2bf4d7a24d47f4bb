package raft

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quorumkv/raft/raftpb"
)

func (n *node) handleQuery(req queryRequest) {
	if n.status == raftpb.StatusTerminated {
		req.future.resolve(QueryResult{}, errTerminated)
		return
	}
	switch req.policy {
	case QueryEventual:
		n.handleEventualQuery(req)
	case QueryLeaderLocal:
		if n.role != raftpb.RoleLeader {
			req.future.resolve(QueryResult{}, notLeader(n.leader))
			return
		}
		n.serveLocalQuery(req)
	case QueryLinearizable:
		n.startLinearizableQuery(req)
	default:
		req.future.resolve(QueryResult{}, invalidArgument("unrecognized query policy"))
	}
}

func (n *node) serveLocalQuery(req queryRequest) {
	result, err := n.sm.RunOperation(req.operation)
	req.future.resolve(QueryResult{Result: result}, err)
}

// handleEventualQuery implements the eventual-consistency query policy: if
// this node's commitIndex already covers req.minCommitIndex the query is
// served immediately, otherwise it waits for commitIndex to catch up,
// bounded by Config.Clock so a node that can no longer catch up (e.g. cut
// off from the leader) eventually reports a timeout instead of hanging.
func (n *node) handleEventualQuery(req queryRequest) {
	if n.commitIndex >= req.minCommitIndex {
		n.serveLocalQuery(req)
		return
	}
	deadline := n.cfg.Clock.Now().Add(time.Duration(n.cfg.LeaderHeartbeatTimeoutSeconds * float64(time.Second)))
	n.pendingEventualQueries = append(n.pendingEventualQueries, &pendingEventualQuery{
		minCommitIndex: req.minCommitIndex,
		deadline:       deadline,
		operation:      req.operation,
		future:         req.future,
	})
}

// resolveEventualQueries is called after every commit advance to serve any
// QueryEventual call whose minCommitIndex has now been reached.
func (n *node) resolveEventualQueries() {
	if len(n.pendingEventualQueries) == 0 {
		return
	}
	kept := n.pendingEventualQueries[:0]
	for _, q := range n.pendingEventualQueries {
		if n.commitIndex < q.minCommitIndex {
			kept = append(kept, q)
			continue
		}
		result, err := n.sm.RunOperation(q.operation)
		q.future.resolve(QueryResult{Result: result}, err)
	}
	n.pendingEventualQueries = kept
}

// expireEventualQueries is called on every tick to fail any QueryEventual
// call whose bounded wait has elapsed without commitIndex catching up.
func (n *node) expireEventualQueries() {
	if len(n.pendingEventualQueries) == 0 {
		return
	}
	now := n.cfg.Clock.Now()
	kept := n.pendingEventualQueries[:0]
	for _, q := range n.pendingEventualQueries {
		if now.Before(q.deadline) {
			kept = append(kept, q)
			continue
		}
		q.future.resolve(QueryResult{}, errEventualReadTimeout)
	}
	n.pendingEventualQueries = kept
}

func (n *node) failPendingEventualQueries(err error) {
	for _, q := range n.pendingEventualQueries {
		q.future.resolve(QueryResult{}, err)
	}
	n.pendingEventualQueries = nil
}

func (n *node) startLinearizableQuery(req queryRequest) {
	if n.role != raftpb.RoleLeader {
		req.future.resolve(QueryResult{}, notLeader(n.leader))
		return
	}
	n.readSeqNo++
	seqNo := n.readSeqNo
	pq := &pendingQuery{seqNo: seqNo, corrID: uuid.New(), operation: req.operation, acks: 1, future: req.future}
	n.pendingQueries[seqNo] = pq
	if n.debug && n.l() {
		n.logger.Debug("starting read-index round", zap.Int64("seqNo", seqNo), zap.String("corrID", pq.corrID.String()))
	}

	if n.quorumSize() == 1 {
		n.resolveQuery(pq)
		return
	}
	n.sendReadBarrier(seqNo)
}

func (n *node) ackReadContext(m *memberState, seqNo int64) {
	// Only voting members count toward the read-index quorum.
	if !n.effectiveMembers.IsVoting(m.id.ID) {
		return
	}
	pq, ok := n.pendingQueries[seqNo]
	if !ok {
		return
	}
	pq.acks++
	if pq.acks >= n.quorumSize() {
		n.resolveQuery(pq)
	}
}

func (n *node) resolveQuery(pq *pendingQuery) {
	delete(n.pendingQueries, pq.seqNo)
	result, err := n.sm.RunOperation(pq.operation)
	pq.future.resolve(QueryResult{Result: result}, err)
}
