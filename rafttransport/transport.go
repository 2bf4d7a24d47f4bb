// Package rafttransport defines how a Raft node exchanges messages with its
// peers. The core is transport-agnostic: it only ever calls Send and reads
// from Recv.
package rafttransport

import "github.com/quorumkv/raft/raftpb"

// Transport moves Message values between this node and its peers. A
// Transport implementation owns addressing; the core only knows peer IDs.
type Transport interface {
	// Send enqueues msg for delivery to the peer whose ID is to; it must
	// not block indefinitely on a single slow peer blocking delivery to
	// others.
	Send(to string, msg raftpb.Message)

	// Recv returns the channel the node engine reads inbound messages
	// from.
	Recv() <-chan raftpb.Message

	// Start begins delivering messages.
	Start()

	// Stop halts delivery and releases resources.
	Stop()
}
