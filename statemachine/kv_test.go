package statemachine

import "testing"

func TestKVStateMachinePutAndGet(t *testing.T) {
	sm := NewKVStateMachine()
	op, err := EncodeCommand(CommandPut, "a", "1")
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	if _, err := sm.Apply(1, op); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	query, err := EncodeCommand(CommandGet, "a", "")
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	v, err := sm.RunOperation(query)
	if err != nil {
		t.Fatalf("RunOperation: %v", err)
	}
	if v != "1" {
		t.Fatalf("expected 1, got %v", v)
	}
}

func TestKVStateMachineDelete(t *testing.T) {
	sm := NewKVStateMachine()
	put, _ := EncodeCommand(CommandPut, "a", "1")
	del, _ := EncodeCommand(CommandDelete, "a", "")
	if _, err := sm.Apply(1, put); err != nil {
		t.Fatalf("Apply put: %v", err)
	}
	if _, err := sm.Apply(2, del); err != nil {
		t.Fatalf("Apply delete: %v", err)
	}

	query, _ := EncodeCommand(CommandGet, "a", "")
	v, err := sm.RunOperation(query)
	if err != nil {
		t.Fatalf("RunOperation: %v", err)
	}
	if v != nil {
		t.Fatalf("expected nil after delete, got %v", v)
	}
}

func TestKVStateMachineSnapshotRoundTrip(t *testing.T) {
	sm := NewKVStateMachine()
	put1, _ := EncodeCommand(CommandPut, "a", "1")
	put2, _ := EncodeCommand(CommandPut, "b", "2")
	if _, err := sm.Apply(1, put1); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := sm.Apply(2, put2); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	snap, err := sm.TakeSnapshot()
	if err != nil {
		t.Fatalf("TakeSnapshot: %v", err)
	}

	restored := NewKVStateMachine()
	if err := restored.InstallSnapshot(snap); err != nil {
		t.Fatalf("InstallSnapshot: %v", err)
	}

	for _, kv := range []struct{ k, v string }{{"a", "1"}, {"b", "2"}} {
		query, _ := EncodeCommand(CommandGet, kv.k, "")
		got, err := restored.RunOperation(query)
		if err != nil {
			t.Fatalf("RunOperation: %v", err)
		}
		if got != kv.v {
			t.Fatalf("key %q: expected %q, got %v", kv.k, kv.v, got)
		}
	}
}
