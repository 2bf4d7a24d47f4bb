package raftpb

import "fmt"

// MessageKind discriminates which payload field of Message is populated.
type MessageKind uint8

const (
	MsgVoteRequest MessageKind = iota
	MsgVoteResponse
	MsgAppendEntriesRequest
	MsgAppendEntriesSuccessResponse
	MsgAppendEntriesFailureResponse
	MsgInstallSnapshotRequest
	MsgInstallSnapshotResponse
	MsgTriggerLeaderElectionRequest
)

func (k MessageKind) String() string {
	switch k {
	case MsgVoteRequest:
		return "VoteRequest"
	case MsgVoteResponse:
		return "VoteResponse"
	case MsgAppendEntriesRequest:
		return "AppendEntriesRequest"
	case MsgAppendEntriesSuccessResponse:
		return "AppendEntriesSuccessResponse"
	case MsgAppendEntriesFailureResponse:
		return "AppendEntriesFailureResponse"
	case MsgInstallSnapshotRequest:
		return "InstallSnapshotRequest"
	case MsgInstallSnapshotResponse:
		return "InstallSnapshotResponse"
	case MsgTriggerLeaderElectionRequest:
		return "TriggerLeaderElectionRequest"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Message is the envelope shared by every Raft protocol message. Exactly one
// of the payload fields is populated, selected by Kind. Messages are values;
// once built they are handed to a Transport and never mutated.
type Message struct {
	GroupID string
	Sender  Endpoint
	Term    Term
	Kind    MessageKind

	VoteRequest                  *VoteRequest
	VoteResponse                 *VoteResponse
	AppendEntriesRequest         *AppendEntriesRequest
	AppendEntriesSuccessResponse *AppendEntriesSuccessResponse
	AppendEntriesFailureResponse *AppendEntriesFailureResponse
	InstallSnapshotRequest       *InstallSnapshotRequest
	InstallSnapshotResponse      *InstallSnapshotResponse
	TriggerLeaderElectionRequest *TriggerLeaderElectionRequest
}

// VoteRequest is a candidate's solicitation for a vote in Term.
type VoteRequest struct {
	LastLogIndex LogIndex
	LastLogTerm  Term
	// Sticky, when true, indicates the candidate was prompted by an existing
	// leader (a deliberate leadership transfer) and so disruption-avoidance
	// stickiness should be bypassed by the receiver.
	Sticky bool
}

// VoteResponse answers a VoteRequest.
type VoteResponse struct {
	Granted bool
}

// AppendEntriesRequest replicates entries (or, with Entries empty, serves as
// a heartbeat / read barrier).
type AppendEntriesRequest struct {
	PreviousLogIndex  LogIndex
	PreviousLogTerm   Term
	Entries           []LogEntry
	LeaderCommitIndex LogIndex
	QuerySeqNo        uint64
	FlowControlSeqNo  uint64
}

// AppendEntriesSuccessResponse acknowledges a successful append or a
// read-barrier heartbeat.
type AppendEntriesSuccessResponse struct {
	LastLogIndex     LogIndex
	QuerySeqNo       uint64
	FlowControlSeqNo uint64
}

// AppendEntriesFailureResponse rejects an append; ExpectedNextIndex is a
// conservative hint for where the leader should retry from.
type AppendEntriesFailureResponse struct {
	ExpectedNextIndex LogIndex
	FlowControlSeqNo  uint64
}

// InstallSnapshotRequest pushes (or, with Chunks empty and SourceHint set,
// redirects a pull for) a subset of a snapshot's chunks.
type InstallSnapshotRequest struct {
	SnapshotIndex       LogIndex
	SnapshotTerm        Term
	ChunkCount          int
	Chunks              []SnapshotChunk
	GroupMembersAtIndex GroupMembers
	QuerySeqNo          uint64
	// SourceHint, when set, tells the receiver it may fetch the remaining
	// chunks directly from this peer instead of the sender. Only used when
	// transferSnapshotsFromFollowersEnabled is on.
	SourceHint *Endpoint
}

// InstallSnapshotResponse reports which chunk indices are still missing.
type InstallSnapshotResponse struct {
	SnapshotIndex LogIndex
	Requested     []int
}

// TriggerLeaderElectionRequest asks the receiver to begin an election
// immediately, bypassing its normal timeout and disruption-avoidance
// stickiness. Used for graceful leader handoff; it has no response.
type TriggerLeaderElectionRequest struct{}

func baseMessage(groupID string, sender Endpoint, term Term, kind MessageKind) Message {
	return Message{GroupID: groupID, Sender: sender, Term: term, Kind: kind}
}

// NewVoteRequest builds a VoteRequest message.
func NewVoteRequest(groupID string, sender Endpoint, term Term, lastLogIndex LogIndex, lastLogTerm Term, sticky bool) Message {
	m := baseMessage(groupID, sender, term, MsgVoteRequest)
	m.VoteRequest = &VoteRequest{LastLogIndex: lastLogIndex, LastLogTerm: lastLogTerm, Sticky: sticky}
	return m
}

// NewVoteResponse builds a VoteResponse message.
func NewVoteResponse(groupID string, sender Endpoint, term Term, granted bool) Message {
	m := baseMessage(groupID, sender, term, MsgVoteResponse)
	m.VoteResponse = &VoteResponse{Granted: granted}
	return m
}

// NewAppendEntriesRequest builds an AppendEntriesRequest message.
func NewAppendEntriesRequest(
	groupID string, sender Endpoint, term Term,
	prevIndex LogIndex, prevTerm Term, entries []LogEntry, leaderCommit LogIndex,
	querySeqNo, flowSeqNo uint64,
) Message {
	m := baseMessage(groupID, sender, term, MsgAppendEntriesRequest)
	m.AppendEntriesRequest = &AppendEntriesRequest{
		PreviousLogIndex:  prevIndex,
		PreviousLogTerm:   prevTerm,
		Entries:           entries,
		LeaderCommitIndex: leaderCommit,
		QuerySeqNo:        querySeqNo,
		FlowControlSeqNo:  flowSeqNo,
	}
	return m
}

// NewAppendEntriesSuccessResponse builds a success response message.
func NewAppendEntriesSuccessResponse(groupID string, sender Endpoint, term Term, lastLogIndex LogIndex, querySeqNo, flowSeqNo uint64) Message {
	m := baseMessage(groupID, sender, term, MsgAppendEntriesSuccessResponse)
	m.AppendEntriesSuccessResponse = &AppendEntriesSuccessResponse{
		LastLogIndex:     lastLogIndex,
		QuerySeqNo:       querySeqNo,
		FlowControlSeqNo: flowSeqNo,
	}
	return m
}

// NewAppendEntriesFailureResponse builds a failure response message.
func NewAppendEntriesFailureResponse(groupID string, sender Endpoint, term Term, expectedNextIndex LogIndex, flowSeqNo uint64) Message {
	m := baseMessage(groupID, sender, term, MsgAppendEntriesFailureResponse)
	m.AppendEntriesFailureResponse = &AppendEntriesFailureResponse{
		ExpectedNextIndex: expectedNextIndex,
		FlowControlSeqNo:  flowSeqNo,
	}
	return m
}

// NewInstallSnapshotRequest builds an InstallSnapshotRequest message.
func NewInstallSnapshotRequest(
	groupID string, sender Endpoint, term Term,
	snapshotIndex LogIndex, snapshotTerm Term, chunkCount int, chunks []SnapshotChunk,
	membersAtIndex GroupMembers, querySeqNo uint64, sourceHint *Endpoint,
) Message {
	m := baseMessage(groupID, sender, term, MsgInstallSnapshotRequest)
	m.InstallSnapshotRequest = &InstallSnapshotRequest{
		SnapshotIndex:       snapshotIndex,
		SnapshotTerm:        snapshotTerm,
		ChunkCount:          chunkCount,
		Chunks:              chunks,
		GroupMembersAtIndex: membersAtIndex,
		QuerySeqNo:          querySeqNo,
		SourceHint:          sourceHint,
	}
	return m
}

// NewInstallSnapshotResponse builds an InstallSnapshotResponse message.
func NewInstallSnapshotResponse(groupID string, sender Endpoint, term Term, snapshotIndex LogIndex, requested []int) Message {
	m := baseMessage(groupID, sender, term, MsgInstallSnapshotResponse)
	m.InstallSnapshotResponse = &InstallSnapshotResponse{SnapshotIndex: snapshotIndex, Requested: requested}
	return m
}

// NewTriggerLeaderElectionRequest builds a TriggerLeaderElectionRequest message.
func NewTriggerLeaderElectionRequest(groupID string, sender Endpoint, term Term) Message {
	m := baseMessage(groupID, sender, term, MsgTriggerLeaderElectionRequest)
	m.TriggerLeaderElectionRequest = &TriggerLeaderElectionRequest{}
	return m
}
