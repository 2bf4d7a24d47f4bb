// Package raftpb defines the immutable value types that flow through the
// Raft core: endpoints, terms, log indices, log entries, snapshot chunks,
// group membership, and the wire message envelope. Nothing in this package
// depends on a transport or a persistence medium; both are external to the
// model.
package raftpb

import (
	"fmt"
	"sort"

	"go.uber.org/zap/zapcore"
)

// Endpoint is the stable identity of a Raft member. Equality is by ID only;
// Address is transport-interpreted metadata the core never inspects.
type Endpoint struct {
	ID      string
	Address string
}

// Equal reports whether e and o identify the same member.
func (e Endpoint) Equal(o Endpoint) bool {
	return e.ID == o.ID
}

// IsZero reports whether e is the zero-value endpoint (no member).
func (e Endpoint) IsZero() bool {
	return e.ID == ""
}

func (e Endpoint) String() string {
	if e.Address == "" {
		return e.ID
	}
	return fmt.Sprintf("%s(%s)", e.ID, e.Address)
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (e Endpoint) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", e.ID)
	enc.AddString("address", e.Address)
	return nil
}

// Term is a monotonically non-decreasing election epoch.
type Term uint64

// LogIndex is a monotonically increasing, 1-based log position.
type LogIndex uint64

// EntryKind discriminates the payload carried by a LogEntry.
type EntryKind uint8

const (
	// EntryNoop is appended by a freshly elected leader to commit its term.
	EntryNoop EntryKind = iota
	// EntryApply carries a state machine operation.
	EntryApply
	// EntryMembershipChange carries an encoded MembershipChangePayload.
	EntryMembershipChange
	// EntryTerminateGroup marks the group for termination once committed.
	EntryTerminateGroup
	// EntryNewTerm is appended instead of EntryNoop when the new-term
	// operation feature is enabled.
	EntryNewTerm
)

func (k EntryKind) String() string {
	switch k {
	case EntryNoop:
		return "noop"
	case EntryApply:
		return "apply"
	case EntryMembershipChange:
		return "membership-change"
	case EntryTerminateGroup:
		return "terminate-group"
	case EntryNewTerm:
		return "new-term"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// LogEntry is immutable once persisted.
type LogEntry struct {
	Index     LogIndex
	Term      Term
	Kind      EntryKind
	Operation []byte
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (e LogEntry) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint64("index", uint64(e.Index))
	enc.AddUint64("term", uint64(e.Term))
	enc.AddString("kind", e.Kind.String())
	enc.AddInt("operationBytes", len(e.Operation))
	return nil
}

// SnapshotChunk is one piece of a snapshot. A snapshot is complete once all
// ChunkCount chunks for a given SnapshotIndex are present; chunks are
// order-independent on the wire.
type SnapshotChunk struct {
	SnapshotIndex       LogIndex
	SnapshotTerm        Term
	ChunkIndex          int
	ChunkCount          int
	Payload             []byte
	GroupMembersAtIndex GroupMembers
}

// GroupMembers is a versioned view of Raft group membership: the full member
// set plus which of those members are voting (a member present but absent
// from voting is a Learner).
type GroupMembers struct {
	LogIndex      LogIndex
	Members       map[string]Endpoint
	VotingMembers map[string]struct{}
}

// NewGroupMembers builds a GroupMembers value at logIndex from voters and
// learners. voters are both members and voting members; learners are
// members only.
func NewGroupMembers(logIndex LogIndex, voters, learners []Endpoint) GroupMembers {
	members := make(map[string]Endpoint, len(voters)+len(learners))
	voting := make(map[string]struct{}, len(voters))
	for _, e := range voters {
		members[e.ID] = e
		voting[e.ID] = struct{}{}
	}
	for _, e := range learners {
		members[e.ID] = e
	}
	return GroupMembers{LogIndex: logIndex, Members: members, VotingMembers: voting}
}

// IsVoting reports whether id is a voting member.
func (g GroupMembers) IsVoting(id string) bool {
	_, ok := g.VotingMembers[id]
	return ok
}

// IsMember reports whether id is a member (voter or learner).
func (g GroupMembers) IsMember(id string) bool {
	_, ok := g.Members[id]
	return ok
}

// VotingCount returns the number of voting members.
func (g GroupMembers) VotingCount() int {
	return len(g.VotingMembers)
}

// QuorumSize returns the majority size of the voting membership.
func (g GroupMembers) QuorumSize() int {
	return g.VotingCount()/2 + 1
}

// MemberIDs returns every member ID (voters and learners) in sorted order.
func (g GroupMembers) MemberIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for id := range g.Members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy so callers may not mutate a shared GroupMembers.
func (g GroupMembers) Clone() GroupMembers {
	members := make(map[string]Endpoint, len(g.Members))
	for k, v := range g.Members {
		members[k] = v
	}
	voting := make(map[string]struct{}, len(g.VotingMembers))
	for k := range g.VotingMembers {
		voting[k] = struct{}{}
	}
	return GroupMembers{LogIndex: g.LogIndex, Members: members, VotingMembers: voting}
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (g GroupMembers) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint64("logIndex", uint64(g.LogIndex))
	enc.AddInt("memberCount", len(g.Members))
	enc.AddInt("votingCount", len(g.VotingMembers))
	return nil
}

// NodeStatus is the coarse lifecycle stage of a Raft node.
type NodeStatus uint8

const (
	StatusInitial NodeStatus = iota
	StatusActive
	StatusUpdatingMembership
	StatusTerminatingGroup
	StatusTerminated
)

func (s NodeStatus) String() string {
	switch s {
	case StatusInitial:
		return "initial"
	case StatusActive:
		return "active"
	case StatusUpdatingMembership:
		return "updating-membership"
	case StatusTerminatingGroup:
		return "terminating-group"
	case StatusTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Role is the Raft role of a node.
type Role uint8

const (
	RoleFollower Role = iota
	RoleCandidate
	RoleLeader
	RoleLearner
)

func (r Role) String() string {
	switch r {
	case RoleFollower:
		return "follower"
	case RoleCandidate:
		return "candidate"
	case RoleLeader:
		return "leader"
	case RoleLearner:
		return "learner"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(r))
	}
}
