package raft

import (
	"github.com/quorumkv/raft/raerr"
	"github.com/quorumkv/raft/raftpb"
)

var (
	errIndeterminateState  = raerr.New(raerr.CodeIndeterminateState, "commit outcome of proposal is unknown")
	errCannotReplicate     = raerr.New(raerr.CodeCannotReplicate, "node is not accepting new entries")
	errTerminated          = raerr.New(raerr.CodeTerminated, "group has been terminated")
	errEventualReadTimeout = raerr.New(raerr.CodeTimeout, "commitIndex did not reach minCommitIndex before the eventual-read bound elapsed")
)

func invalidArgument(msg string) error {
	return raerr.New(raerr.CodeInvalidArgument, msg)
}

func notLeader(leader raftpb.Endpoint) error {
	return raerr.NotLeader(leader)
}

// storeFailure wraps a durable Store error so callers can detect it with
// raerr.IsCode(err, raerr.CodeStoreError).
func storeFailure(cause error) error {
	return raerr.Wrap(raerr.CodeStoreError, cause, "durable store failure")
}
