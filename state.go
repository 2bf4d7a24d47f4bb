package raft

import (
	"go.uber.org/zap/zapcore"

	"github.com/quorumkv/raft/raftpb"
)

// QueryPolicy selects how a Query call is served.
type QueryPolicy uint8

const (
	// QueryLinearizable serves the query only after a read-index quorum
	// round confirms this node was still leader when the query arrived.
	QueryLinearizable QueryPolicy = iota
	// QueryLeaderLocal serves the query directly against the leader's
	// local state without a quorum round, trading linearizability for
	// latency; it can return stale data during a partition until the
	// election timeout elapses.
	QueryLeaderLocal
	// QueryEventual serves the query against whatever node received it,
	// leader or not, after waiting (bounded) for its local commitIndex to
	// reach the caller-supplied minCommitIndex, so a client that already
	// observed a write can avoid reading a node that hasn't caught up to it.
	QueryEventual
)

func (p QueryPolicy) String() string {
	switch p {
	case QueryLinearizable:
		return "linearizable"
	case QueryLeaderLocal:
		return "leader-local"
	case QueryEventual:
		return "eventual"
	default:
		return "unknown"
	}
}

// readContext tracks an in-flight read-index quorum round, mirroring the
// teacher's ReadContext.
type readContext struct {
	seqNo int64
	index raftpb.LogIndex
	acks  int
}

func (rc readContext) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt64("seqNo", rc.seqNo)
	enc.AddUint64("index", uint64(rc.index))
	enc.AddInt("acks", rc.acks)
	return nil
}

// memberState is what a node tracks about one peer, kept only by leaders
// (and candidates, for vote bookkeeping).
type memberState struct {
	id raftpb.Endpoint

	match raftpb.LogIndex
	next  raftpb.LogIndex

	acked       bool
	voteGranted bool

	// flowControlSeqNo increments on every AppendEntriesRequest sent to
	// this peer; the peer echoes it back so a leader can tell a delayed
	// response for an old flight apart from the latest one, generalizing
	// the teacher's read-context TID scheme to ordinary replication too.
	flowControlSeqNo uint64

	readCtx readContext

	// installingSnapshot is set while this peer is known to be behind the
	// leader's log start and is being caught up via InstallSnapshot
	// instead of AppendEntries.
	installingSnapshot bool
	snapshotAcked      map[int]bool
}

func newMemberState(id raftpb.Endpoint) *memberState {
	return &memberState{id: id, snapshotAcked: make(map[int]bool)}
}

func (m *memberState) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", m.id.ID)
	enc.AddUint64("match", uint64(m.match))
	enc.AddUint64("next", uint64(m.next))
	enc.AddBool("acked", m.acked)
	enc.AddBool("voteGranted", m.voteGranted)
	enc.AddBool("installingSnapshot", m.installingSnapshot)
	return nil
}

// MemberReport is the exported, point-in-time snapshot of a memberState
// returned by Group.Report.
type MemberReport struct {
	ID                 raftpb.Endpoint
	Match              raftpb.LogIndex
	Next               raftpb.LogIndex
	Acked              bool
	InstallingSnapshot bool
}

// Report is the exported, point-in-time snapshot of a node's protocol
// state, generalizing the teacher's State.
type Report struct {
	Self   raftpb.Endpoint
	Status raftpb.NodeStatus
	Role   raftpb.Role

	Term     raftpb.Term
	VotedFor string
	Leader   raftpb.Endpoint

	CommitIndex   raftpb.LogIndex
	LastLogIndex  raftpb.LogIndex
	LastLogTerm   raftpb.Term
	AppliedIndex  raftpb.LogIndex

	CommittedMembers raftpb.GroupMembers
	EffectiveMembers raftpb.GroupMembers

	Members map[string]MemberReport
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (r Report) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("self", r.Self.ID)
	enc.AddString("status", r.Status.String())
	enc.AddString("role", r.Role.String())
	enc.AddUint64("term", uint64(r.Term))
	enc.AddString("leader", r.Leader.ID)
	enc.AddUint64("commitIndex", uint64(r.CommitIndex))
	enc.AddUint64("lastLogIndex", uint64(r.LastLogIndex))
	enc.AddUint64("appliedIndex", uint64(r.AppliedIndex))
	return nil
}
