package rafttransport

import (
	"testing"
	"time"

	"github.com/quorumkv/raft/raftpb"
)

func TestFakeNetworkDelivers(t *testing.T) {
	n := NewFakeNetwork()
	a := n.NewTransport("a")
	b := n.NewTransport("b")

	a.Send("b", raftpb.NewVoteRequest("g", raftpb.Endpoint{ID: "a"}, 1, 0, 0, false))

	select {
	case msg := <-b.Recv():
		if msg.Sender.ID != "a" {
			t.Fatalf("expected sender a, got %s", msg.Sender.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestFakeNetworkPartition(t *testing.T) {
	n := NewFakeNetwork()
	a := n.NewTransport("a")
	b := n.NewTransport("b")

	n.Partition("a", "b")
	a.Send("b", raftpb.NewVoteRequest("g", raftpb.Endpoint{ID: "a"}, 1, 0, 0, false))

	select {
	case msg := <-b.Recv():
		t.Fatalf("expected no delivery across partition, got %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}

	n.Heal("a", "b")
	a.Send("b", raftpb.NewVoteRequest("g", raftpb.Endpoint{ID: "a"}, 1, 0, 0, false))
	select {
	case <-b.Recv():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery after heal")
	}
}
