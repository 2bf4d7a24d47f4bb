// Package raft implements the core of a Raft-based replicated state
// machine (see https://raft.github.io/): leader election, log
// replication, snapshotting, single-server membership changes, and
// linearizable/leader-local/eventual queries.
//
// A caller builds a Config, wires a raftstore.Store, a
// statemachine.StateMachine, and a rafttransport.Transport into it, and
// constructs a Group:
//
//  cfg, err := raft.NewConfig(self, store, sm, transport)
//  if err != nil {
//    log.Fatal(err)
//  }
//  g, err := raft.NewGroup(cfg, initialMembers)
//  if err != nil {
//    log.Fatal(err)
//  }
//  g.Start()
//  defer g.Stop()
//
//  // drive timers externally, e.g. on a 100ms ticker
//  go func() {
//    for range time.Tick(100 * time.Millisecond) {
//      g.Tick()
//    }
//  }()
//
//  res, err := g.Submit(ctx, operation)
//
// See statemachine.KVStateMachine for an example state machine backing a
// small key-value store.
package raft
