package statemachine

import (
	"fmt"
	"sync"

	"github.com/gogo/protobuf/proto"

	"github.com/quorumkv/raft/raftpb"
)

// CommandKind discriminates a KVStateMachine operation.
type CommandKind uint8

const (
	CommandPut CommandKind = iota
	CommandDelete
	CommandGet
)

// Command is the gogo/protobuf-tagged operation payload a KVStateMachine
// expects in an EntryApply entry (for Put/Delete) or in a RunOperation call
// (for Get). It follows the same hand-tagged, non-generated encoding as the
// teacher's raftpb.KV.
type Command struct {
	Kind  int32  `protobuf:"varint,1,opt,name=kind"`
	Key   string `protobuf:"bytes,2,opt,name=key"`
	Value string `protobuf:"bytes,3,opt,name=value"`
}

func (m *Command) Reset()         { *m = Command{} }
func (m *Command) String() string { return proto.CompactTextString(m) }
func (*Command) ProtoMessage()    {}

// EncodeCommand marshals a Command for use as a log entry operation or a
// RunOperation argument.
func EncodeCommand(kind CommandKind, key, value string) ([]byte, error) {
	return proto.Marshal(&Command{Kind: int32(kind), Key: key, Value: value})
}

func decodeCommand(b []byte) (Command, error) {
	var c Command
	if err := proto.Unmarshal(b, &c); err != nil {
		return Command{}, err
	}
	return c, nil
}

// kvEntry is one key/value pair as it appears in a snapshot.
type kvEntry struct {
	Key   string `protobuf:"bytes,1,opt,name=key"`
	Value string `protobuf:"bytes,2,opt,name=value"`
}

func (m *kvEntry) Reset()         { *m = kvEntry{} }
func (m *kvEntry) String() string { return proto.CompactTextString(m) }
func (*kvEntry) ProtoMessage()    {}

// kvSnapshot is the wire form of a whole KVStateMachine snapshot.
type kvSnapshot struct {
	Entries []*kvEntry `protobuf:"bytes,1,rep,name=entries"`
}

func (m *kvSnapshot) Reset()         { *m = kvSnapshot{} }
func (m *kvSnapshot) String() string { return proto.CompactTextString(m) }
func (*kvSnapshot) ProtoMessage()    {}

// KVStateMachine is a reference StateMachine implementation: an in-memory
// string-to-string map. It is the state machine the group tests in this
// module drive, in the same spirit as the teacher's KVStore but decoupled
// from the node engine and the transport.
type KVStateMachine struct {
	mu    sync.RWMutex
	store map[string]string
}

// NewKVStateMachine returns an empty KVStateMachine.
func NewKVStateMachine() *KVStateMachine {
	return &KVStateMachine{store: make(map[string]string)}
}

// Apply implements statemachine.StateMachine.
func (s *KVStateMachine) Apply(index raftpb.LogIndex, operation []byte) (interface{}, error) {
	cmd, err := decodeCommand(operation)
	if err != nil {
		return nil, fmt.Errorf("statemachine: decode command at index %d: %w", index, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch CommandKind(cmd.Kind) {
	case CommandPut:
		s.store[cmd.Key] = cmd.Value
		return nil, nil
	case CommandDelete:
		delete(s.store, cmd.Key)
		return nil, nil
	default:
		return nil, fmt.Errorf("statemachine: command kind %d is not applicable", cmd.Kind)
	}
}

// RunOperation implements statemachine.StateMachine.
func (s *KVStateMachine) RunOperation(operation []byte) (interface{}, error) {
	cmd, err := decodeCommand(operation)
	if err != nil {
		return nil, fmt.Errorf("statemachine: decode command: %w", err)
	}
	if CommandKind(cmd.Kind) != CommandGet {
		return nil, fmt.Errorf("statemachine: command kind %d is not a query", cmd.Kind)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.store[cmd.Key]
	if !ok {
		return nil, nil
	}
	return v, nil
}

// TakeSnapshot implements statemachine.StateMachine.
func (s *KVStateMachine) TakeSnapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &kvSnapshot{Entries: make([]*kvEntry, 0, len(s.store))}
	for k, v := range s.store {
		snap.Entries = append(snap.Entries, &kvEntry{Key: k, Value: v})
	}
	return proto.Marshal(snap)
}

// InstallSnapshot implements statemachine.StateMachine.
func (s *KVStateMachine) InstallSnapshot(payload []byte) error {
	snap := &kvSnapshot{}
	if err := proto.Unmarshal(payload, snap); err != nil {
		return fmt.Errorf("statemachine: unmarshal snapshot: %w", err)
	}
	store := make(map[string]string, len(snap.Entries))
	for _, e := range snap.Entries {
		store[e.Key] = e.Value
	}
	s.mu.Lock()
	s.store = store
	s.mu.Unlock()
	return nil
}
