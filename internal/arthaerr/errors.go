// Package arthaerr defines the error kinds shared across the consensus core.
//
// Every kind here maps to a §7 error-handling policy: Invalid* errors mean
// "reject this input, keep running"; RoundTimeout is surfaced by the
// scheduler; NetworkError is transient and retried; MempoolError drops the
// offending transaction from the proposal; State/Internal/Security errors
// are fatal to the current operation only.
package arthaerr

import "errors"

// Kind classifies an error for the engine's retry/drop/escalate policy.
type Kind string

const (
	KindInvalidSignature   Kind = "InvalidSignature"
	KindInvalidVote        Kind = "InvalidVote"
	KindInvalidProposal    Kind = "InvalidProposal"
	KindInvalidCommit      Kind = "InvalidCommit"
	KindInvalidBlock       Kind = "InvalidBlock"
	KindInvalidTransaction Kind = "InvalidTransaction"
	KindInvalidEvidence    Kind = "InvalidEvidence"
	KindInvalidValidator   Kind = "InvalidValidator"
	KindInvalidVotingPower Kind = "InvalidVotingPower"
	KindInvalidState       Kind = "InvalidState"
	KindRoundTimeout       Kind = "RoundTimeout"
	KindNetworkError       Kind = "NetworkError"
	KindMempoolError       Kind = "MempoolError"
	KindStateError         Kind = "StateError"
	KindInternalError      Kind = "InternalError"
	KindSecurityError      Kind = "SecurityError"
)

// Error is a classified error carrying a Kind alongside the usual message
// and wrapped cause, so callers can switch on Kind without string matching.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Msg + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func (k Kind) String() string { return string(k) }

// New builds a classified error with no wrapped cause.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds a classified error around an existing cause.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return New(kind, msg)
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Retryable reports whether the engine's generic retry policy applies
// (currently just NetworkError, retried up to 3 times with linear backoff).
func Retryable(err error) bool {
	return Is(err, KindNetworkError)
}

// Terminal reports whether an error is fatal to the *current* operation
// (never to the process — the core never escalates to termination).
func Terminal(err error) bool {
	return Is(err, KindStateError) || Is(err, KindInternalError) || Is(err, KindSecurityError)
}
