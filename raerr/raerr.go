// Package raerr defines the error taxonomy returned across the Raft core's
// public API. Every error a caller can act on programmatically carries a
// Code; unexpected internal failures are wrapped with pkg/errors so a
// stack trace survives up to whatever logs it.
package raerr

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/quorumkv/raft/raftpb"
)

// Code classifies why an operation on a Group failed.
type Code uint8

const (
	// CodeNotLeader means the node is not the leader and cannot service the
	// request itself.
	CodeNotLeader Code = iota
	// CodeCannotReplicate means the node is not in a state that accepts new
	// entries: it is terminating the group or changing membership, or a
	// configured bound on pending or uncommitted entries has been reached.
	CodeCannotReplicate
	// CodeInvalidArgument means the caller supplied a malformed or
	// impossible request (e.g. changing membership by removing a node
	// that isn't a member).
	CodeInvalidArgument
	// CodeIndeterminateState means the outcome of a submitted operation is
	// unknown and the caller must query the state machine to find out.
	CodeIndeterminateState
	// CodeStoreError means the durable Store returned an error.
	CodeStoreError
	// CodeTimeout means an internal bounded wait elapsed before the
	// operation could complete (an eventual query whose minCommitIndex was
	// not reached in time). Expiry of a caller's context is not reported
	// with this code.
	CodeTimeout
	// CodeTerminated means the group has been terminated and no longer
	// accepts operations.
	CodeTerminated
)

func (c Code) String() string {
	switch c {
	case CodeNotLeader:
		return "not_leader"
	case CodeCannotReplicate:
		return "cannot_replicate"
	case CodeInvalidArgument:
		return "invalid_argument"
	case CodeIndeterminateState:
		return "indeterminate_state"
	case CodeStoreError:
		return "store_error"
	case CodeTimeout:
		return "timeout"
	case CodeTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// Error is the concrete error type returned by Group methods. Callers
// should use errors.As to recover it and switch on Code.
type Error struct {
	Code Code
	// KnownLeader is set on CodeNotLeader when this node believes it knows
	// who the current leader is, so the caller can retry there directly.
	KnownLeader raftpb.Endpoint
	msg         string
	cause       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("raft: %s: %s: %v", e.Code, e.msg, e.cause)
	}
	return fmt.Sprintf("raft: %s: %s", e.Code, e.msg)
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// New builds an Error with no known leader hint.
func New(code Code, msg string) *Error {
	return &Error{Code: code, msg: msg}
}

// Wrap builds an Error that carries an underlying cause, stack-annotated
// via pkg/errors so the original failure site is not lost.
func Wrap(code Code, cause error, msg string) *Error {
	return &Error{Code: code, msg: msg, cause: errors.Wrap(cause, msg)}
}

// NotLeader builds a CodeNotLeader error, optionally naming the leader this
// node believes is current.
func NotLeader(knownLeader raftpb.Endpoint) *Error {
	return &Error{Code: CodeNotLeader, KnownLeader: knownLeader, msg: "node is not the leader"}
}

// IsCode reports whether err is a raerr.Error with the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
