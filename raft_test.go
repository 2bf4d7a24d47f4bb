package raft_test

import (
	"context"
	"testing"
	"time"

	raft "github.com/quorumkv/raft"
	"github.com/quorumkv/raft/raerr"
	"github.com/quorumkv/raft/raftpb"
	"github.com/quorumkv/raft/raftstore"
	"github.com/quorumkv/raft/rafttransport"
	"github.com/quorumkv/raft/statemachine"
)

// testCluster wires up a set of Groups sharing a FakeNetwork, each backed by
// its own MemoryStore and KVStateMachine. Every node's election timeout is
// pinned to exactly electionMillis/100 ticks (min == max), so a test controls
// leader election deterministically by choosing which node's Tick it calls.
type testCluster struct {
	t       *testing.T
	network *rafttransport.FakeNetwork
	groups  map[string]*raft.Group
	sms     map[string]*statemachine.KVStateMachine
}

func newTestCluster(t *testing.T, ids []string, electionMillis int) *testCluster {
	t.Helper()
	network := rafttransport.NewFakeNetwork()
	endpoints := make([]raftpb.Endpoint, len(ids))
	for i, id := range ids {
		endpoints[i] = raftpb.Endpoint{ID: id}
	}
	members := raftpb.NewGroupMembers(0, endpoints, nil)

	c := &testCluster{
		t:       t,
		network: network,
		groups:  make(map[string]*raft.Group),
		sms:     make(map[string]*statemachine.KVStateMachine),
	}
	for _, id := range ids {
		store := raftstore.NewMemoryStore()
		sm := statemachine.NewKVStateMachine()
		transport := network.NewTransport(id)
		cfg, err := raft.NewConfig(
			raftpb.Endpoint{ID: id}, store, sm, transport,
			raft.WithLeaderElectionTimeoutRange(electionMillis, electionMillis),
			raft.WithLeaderHeartbeatPeriodSeconds(0.1),
			raft.WithLeaderHeartbeatTimeoutSeconds(float64(electionMillis)/1000+0.1),
		)
		if err != nil {
			t.Fatalf("NewConfig(%s): %v", id, err)
		}
		g, err := raft.NewGroup(cfg, members)
		if err != nil {
			t.Fatalf("NewGroup(%s): %v", id, err)
		}
		c.groups[id] = g
		c.sms[id] = sm
	}
	for _, g := range c.groups {
		g.Start()
	}
	t.Cleanup(func() {
		for _, g := range c.groups {
			g.Stop()
		}
	})
	return c
}

// tickTo advances id's ticker n times, one at a time, giving the run loop a
// moment to process each so timer-driven state transitions land in order.
func (c *testCluster) tickTo(id string, n int) {
	g := c.groups[id]
	for i := 0; i < n; i++ {
		g.Tick()
		time.Sleep(time.Millisecond)
	}
}

func (c *testCluster) waitForLeader(timeout time.Duration) (string, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for id, g := range c.groups {
			r := g.Report()
			if r.Role == raftpb.RoleLeader && r.Status != raftpb.StatusTerminated {
				return id, true
			}
		}
		time.Sleep(time.Millisecond)
	}
	return "", false
}

func TestSingleNodeSubmitCommits(t *testing.T) {
	c := newTestCluster(t, []string{"n1"}, 200)
	// A single-voter cluster becomes its own leader as soon as its election
	// countdown expires: 200ms is 2 ticks, so on the second tick.
	c.tickTo("n1", 2)
	leader, ok := c.waitForLeader(time.Second)
	if !ok || leader != "n1" {
		t.Fatalf("single node did not become leader")
	}

	op, err := statemachine.EncodeCommand(statemachine.CommandPut, "foo", "bar")
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := c.groups["n1"].Submit(ctx, op); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	getOp, _ := statemachine.EncodeCommand(statemachine.CommandGet, "foo", "")
	res, err := c.groups["n1"].Query(ctx, getOp, raft.QueryLinearizable, 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Result != "bar" {
		t.Fatalf("Query result = %v, want %q", res.Result, "bar")
	}
}

func TestThreeNodeElectionAndReplication(t *testing.T) {
	c := newTestCluster(t, []string{"n1", "n2", "n3"}, 1000)
	c.tickTo("n1", 10)
	leader, ok := c.waitForLeader(2 * time.Second)
	if !ok {
		t.Fatalf("no leader elected")
	}
	if leader != "n1" {
		t.Fatalf("expected n1 to win the only-node-ticked election, got %s", leader)
	}

	op, _ := statemachine.EncodeCommand(statemachine.CommandPut, "k", "v1")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := c.groups[leader].Submit(ctx, op); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Every replica should eventually apply the committed entry.
	getOp, _ := statemachine.EncodeCommand(statemachine.CommandGet, "k", "")
	deadline := time.Now().Add(2 * time.Second)
	for {
		allCaughtUp := true
		for _, sm := range c.sms {
			v, err := sm.RunOperation(getOp)
			if err != nil || v != "v1" {
				allCaughtUp = false
			}
		}
		if allCaughtUp {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("not every replica applied the committed entry in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFollowerRejectsSubmitAndMembershipChange(t *testing.T) {
	c := newTestCluster(t, []string{"n1", "n2", "n3"}, 1000)
	c.tickTo("n1", 10)
	leader, ok := c.waitForLeader(2 * time.Second)
	if !ok {
		t.Fatalf("no leader elected")
	}
	var follower string
	for id := range c.groups {
		if id != leader {
			follower = id
			break
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	op, _ := statemachine.EncodeCommand(statemachine.CommandPut, "k", "v")
	if _, err := c.groups[follower].Submit(ctx, op); !raerr.IsCode(err, raerr.CodeNotLeader) {
		t.Fatalf("Submit on follower error = %v, want NotLeader", err)
	}

	_, err := c.groups[follower].ChangeMembership(ctx, &raftpb.Endpoint{ID: "n4"}, nil, "", "", 0)
	if !raerr.IsCode(err, raerr.CodeNotLeader) {
		t.Fatalf("ChangeMembership on follower error = %v, want NotLeader", err)
	}
}

func TestMembershipChangeAddsVoter(t *testing.T) {
	c := newTestCluster(t, []string{"n1", "n2", "n3"}, 1000)
	c.tickTo("n1", 10)
	leader, ok := c.waitForLeader(2 * time.Second)
	if !ok {
		t.Fatalf("no leader elected")
	}

	report := c.groups[leader].Report()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.groups[leader].ChangeMembership(ctx, &raftpb.Endpoint{ID: "n4"}, nil, "", "", report.CommittedMembers.LogIndex)
	if err != nil {
		t.Fatalf("ChangeMembership: %v", err)
	}

	after := c.groups[leader].Report()
	if !after.CommittedMembers.IsVoting("n4") {
		t.Fatalf("expected n4 to be a committed voting member, got %+v", after.CommittedMembers)
	}
}

func TestEventualQueryWaitsForMinCommitIndex(t *testing.T) {
	c := newTestCluster(t, []string{"n1", "n2", "n3"}, 1000)
	c.tickTo("n1", 10)
	leader, ok := c.waitForLeader(2 * time.Second)
	if !ok {
		t.Fatalf("no leader elected")
	}
	var follower string
	for id := range c.groups {
		if id != leader {
			follower = id
			break
		}
	}

	op, _ := statemachine.EncodeCommand(statemachine.CommandPut, "k", "v1")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := c.groups[leader].Submit(ctx, op)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	getOp, _ := statemachine.EncodeCommand(statemachine.CommandGet, "k", "")
	// An eventual read on the follower with no floor is served immediately,
	// possibly before it has caught up.
	if _, err := c.groups[follower].Query(ctx, getOp, raft.QueryEventual, 0); err != nil {
		t.Fatalf("Query with no floor: %v", err)
	}
	// An eventual read that requires the just-committed index blocks until
	// the follower's own commitIndex catches up rather than returning stale
	// data immediately.
	qres, err := c.groups[follower].Query(ctx, getOp, raft.QueryEventual, res.Index)
	if err != nil {
		t.Fatalf("Query with minCommitIndex: %v", err)
	}
	if qres.Result != "v1" {
		t.Fatalf("Query result = %v, want %q", qres.Result, "v1")
	}
}
