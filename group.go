package raft

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/quorumkv/raft/raftpb"
)

// Group is the public handle to a running Raft node: it owns the node
// engine, the timer/tick source is driven externally through Tick, and the
// pending-request registry lives inside node. This is the group runtime
// layer named in the package map, generalizing the teacher's Node type to
// the full operation set (membership changes, leadership transfer, group
// termination, three query policies) while keeping its channel-request/
// future-response shape.
type Group struct {
	n      *node
	logger *zap.Logger
}

// NewGroup constructs a Group from cfg. It opens cfg.Store and, if the
// store reports no prior state, bootstraps with initialMembers; otherwise
// it resumes from whatever the store restored.
func NewGroup(cfg *Config, initialMembers raftpb.GroupMembers) (*Group, error) {
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	restored, err := cfg.Store.Open()
	if err != nil {
		return nil, err
	}
	if len(restored.Members.Members) == 0 {
		if err := cfg.Store.PersistInitialMembers(initialMembers); err != nil {
			return nil, err
		}
		if err := cfg.Store.Flush(); err != nil {
			return nil, err
		}
		restored.Members = initialMembers
	}
	n := newNode(cfg, restored)
	return &Group{n: n, logger: cfg.Logger}, nil
}

// Start begins the node's run loop and its transport.
func (g *Group) Start() {
	g.n.cfg.Transport.Start()
	go g.n.run()
}

// Stop halts the node's run loop and its transport, aggregating any
// shutdown errors the way the teacher's Node.Stop/transport.stop do.
func (g *Group) Stop() error {
	close(g.n.stopChan)
	<-g.n.stoppedChan

	var result *multierror.Error
	g.n.cfg.Transport.Stop()
	if err := g.n.store.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Tick advances the node's internal timers by one unit. Callers drive the
// pace; a typical deployment calls Tick on a fixed-period external timer.
func (g *Group) Tick() {
	select {
	case g.n.tickChan <- struct{}{}:
	default:
	}
}

// HandleMessage delivers an inbound protocol message to the node, for
// deployments that read their own transport loop instead of letting the
// node read Config.Transport.Recv() directly.
func (g *Group) HandleMessage(msg raftpb.Message) {
	g.n.msgChan <- msg
}

// Submit proposes operation to the replicated log and waits for it to
// commit and apply, returning the state machine's result.
func (g *Group) Submit(ctx context.Context, operation []byte) (SubmitResult, error) {
	f := newFuture[SubmitResult]()
	req := submitRequest{operation: operation, kind: raftpb.EntryApply, future: f}
	select {
	case g.n.submitReqChan <- req:
	case <-ctx.Done():
		return SubmitResult{}, ctx.Err()
	}
	return f.wait(ctx.Done())
}

// Query runs operation against the state machine under the given
// consistency policy. minCommitIndex is only honored for QueryEventual: the
// call blocks (bounded by Config.Clock and Config.LeaderHeartbeatTimeoutSeconds)
// until this node's commitIndex reaches it, so a caller that already
// observed a write at a known index can avoid an eventual read that would
// otherwise miss it. It is ignored by QueryLinearizable and QueryLeaderLocal.
func (g *Group) Query(ctx context.Context, operation []byte, policy QueryPolicy, minCommitIndex raftpb.LogIndex) (QueryResult, error) {
	f := newFuture[QueryResult]()
	req := queryRequest{operation: operation, policy: policy, minCommitIndex: minCommitIndex, future: f}
	select {
	case g.n.queryReqChan <- req:
	case <-ctx.Done():
		return QueryResult{}, ctx.Err()
	}
	return f.wait(ctx.Done())
}

// ChangeMembership proposes a single membership change: exactly one of
// addVoter, addLearner should be non-nil, or removeID/promoteID non-empty.
// expectedCommitIndex must equal the caller's last known committed
// GroupMembers.LogIndex.
func (g *Group) ChangeMembership(
	ctx context.Context,
	addVoter, addLearner *raftpb.Endpoint,
	removeID, promoteID string,
	expectedCommitIndex raftpb.LogIndex,
) (SubmitResult, error) {
	f := newFuture[SubmitResult]()
	req := membershipRequest{
		addVoter: addVoter, addLearner: addLearner,
		removeID: removeID, promoteID: promoteID,
		expectedGroupMembersCommitIndex: expectedCommitIndex,
		future:                          f,
	}
	select {
	case g.n.membershipReqChan <- req:
	case <-ctx.Done():
		return SubmitResult{}, ctx.Err()
	}
	return f.wait(ctx.Done())
}

// TransferLeadership asks the current leader to hand off to targetID.
func (g *Group) TransferLeadership(ctx context.Context, targetID string) error {
	f := newFuture[struct{}]()
	req := transferRequest{targetID: targetID, future: f}
	select {
	case g.n.transferReqChan <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	_, err := f.wait(ctx.Done())
	return err
}

// TerminateGroup commits a group-termination marker; once applied, every
// replica stops accepting further requests.
func (g *Group) TerminateGroup(ctx context.Context) error {
	f := newFuture[struct{}]()
	req := terminateRequest{future: f}
	select {
	case g.n.terminateReqChan <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	_, err := f.wait(ctx.Done())
	return err
}

// Report returns a point-in-time snapshot of the node's protocol state.
func (g *Group) Report() Report {
	respChan := make(chan Report, 1)
	g.n.reportReqChan <- reportRequest{respChan: respChan}
	return <-respChan
}
