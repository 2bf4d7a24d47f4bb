package rafttransport

import (
	"sync"

	"github.com/quorumkv/raft/raftpb"
)

// FakeNetwork is a shared in-memory switchboard for FakeTransport instances.
// It generalizes the teacher's fakeTransport/newFakeTransports pair with
// partition simulation, since scenario tests need to drop and later heal
// connectivity between specific pairs of nodes.
type FakeNetwork struct {
	mu         sync.Mutex
	transports map[string]*FakeTransport
	// partitioned[a][b] true means a cannot currently reach b. Partitions
	// are not required to be symmetric, though tests typically make them
	// so.
	partitioned map[string]map[string]bool
}

// NewFakeNetwork returns an empty switchboard.
func NewFakeNetwork() *FakeNetwork {
	return &FakeNetwork{
		transports:  make(map[string]*FakeTransport),
		partitioned: make(map[string]map[string]bool),
	}
}

// NewTransport registers and returns a FakeTransport for id, wired into the
// network. It is safe to call before or after other peers join.
func (n *FakeNetwork) NewTransport(id string) *FakeTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	t := &FakeTransport{
		id:       id,
		network:  n,
		recvChan: make(chan raftpb.Message, 256),
	}
	n.transports[id] = t
	return t
}

// Partition prevents messages from from reaching to until Heal is called
// for the same pair.
func (n *FakeNetwork) Partition(from, to string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.partitioned[from] == nil {
		n.partitioned[from] = make(map[string]bool)
	}
	n.partitioned[from][to] = true
}

// Heal reverses a prior Partition(from, to) call.
func (n *FakeNetwork) Heal(from, to string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.partitioned[from] != nil {
		delete(n.partitioned[from], to)
	}
}

// HealAll clears every partition in the network.
func (n *FakeNetwork) HealAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.partitioned = make(map[string]map[string]bool)
}

func (n *FakeNetwork) deliver(from, to string, msg raftpb.Message) {
	n.mu.Lock()
	blocked := n.partitioned[from] != nil && n.partitioned[from][to]
	target := n.transports[to]
	n.mu.Unlock()
	if blocked || target == nil {
		return
	}
	select {
	case target.recvChan <- msg:
	default:
		// Recv buffer full: drop, mirroring a lossy network link rather
		// than blocking the whole switchboard on one slow peer.
	}
}

// FakeTransport is an in-memory Transport bound to a FakeNetwork.
type FakeTransport struct {
	id      string
	network *FakeNetwork

	recvChan chan raftpb.Message
}

// Send implements Transport.
func (t *FakeTransport) Send(to string, msg raftpb.Message) {
	t.network.deliver(t.id, to, msg)
}

// Recv implements Transport.
func (t *FakeTransport) Recv() <-chan raftpb.Message {
	return t.recvChan
}

// Start implements Transport. FakeTransport delivers synchronously from
// Send, so Start is a no-op kept for interface conformance.
func (t *FakeTransport) Start() {}

// Stop implements Transport.
func (t *FakeTransport) Stop() {
	t.network.mu.Lock()
	delete(t.network.transports, t.id)
	t.network.mu.Unlock()
}
